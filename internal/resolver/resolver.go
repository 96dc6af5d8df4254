package resolver

import (
	"context"
	"fmt"

	"github.com/KingRainbow44/modpack-installer/internal/artifact"
	"github.com/KingRainbow44/modpack-installer/internal/model"
	"go.uber.org/zap"
)

// Registry is the part of the registry client the resolver depends on
type Registry interface {
	VersionFetcher
	GetProject(ctx context.Context, id string) (*model.PackageInfo, error)
}

// ArtifactWriter persists a selected release
type ArtifactWriter interface {
	Write(ctx context.Context, target model.DownloadTarget, release *model.ReleaseInfo, pkg *model.PackageInfo) (artifact.Result, error)
}

// Resolver resolves requested packages and their required dependencies.
// One Resolver serves one install run; it is safe for concurrent use.
type Resolver struct {
	registry  Registry
	selector  *Selector
	writer    ArtifactWriter
	logger    *zap.Logger
	seen      *Seen
	stats     *Stats
	onResult  func(artifact.Result)
	onFailure func(ref string, err error)
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLoader overrides the loader releases must declare
func WithLoader(loader string) Option {
	return func(r *Resolver) {
		r.selector = NewSelector(r.registry, loader, r.logger)
	}
}

// WithResultHook is called after every successful artifact write
func WithResultHook(fn func(artifact.Result)) Option {
	return func(r *Resolver) {
		r.onResult = fn
	}
}

// WithFailureHook is called for every package that could not be installed
func WithFailureHook(fn func(ref string, err error)) Option {
	return func(r *Resolver) {
		r.onFailure = fn
	}
}

// New creates a Resolver for a single run
func New(registry Registry, writer ArtifactWriter, logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		registry: registry,
		selector: NewSelector(registry, model.LoaderFabric, logger),
		writer:   writer,
		logger:   logger,
		seen:     newSeen(),
		stats:    &Stats{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns the outcome counters of this run
func (r *Resolver) Stats() *Stats {
	return r.stats
}

// node is one package on the traversal stack
type node struct {
	ref     string
	pkg     *model.PackageInfo
	release *model.ReleaseInfo
	deps    []string
	next    int
}

// ResolvePrimary installs a package requested by the user. It reports false
// without error when the package does not support the install side; in that
// case nothing is written and no dependency is fetched. Otherwise required
// dependencies are installed first and the result reflects the package's own
// artifact write.
func (r *Resolver) ResolvePrimary(ctx context.Context, target model.DownloadTarget, ref string, isServer bool) (bool, error) {
	pkg, err := r.registry.GetProject(ctx, ref)
	if err != nil {
		r.stats.Failed.Add(1)
		r.notifyFailure(ref, err)
		return false, fmt.Errorf("failed to fetch package %s: %w", ref, err)
	}

	if !pkg.Supports(isServer) {
		r.stats.Unsupported.Add(1)
		r.logger.Info("not applicable",
			zap.String("package", pkg.Title),
			zap.String("project", pkg.ID),
			zap.Bool("server", isServer),
		)
		return false, nil
	}

	// Dependencies pointing back at this package are already covered.
	r.seen.Add(ref)
	r.seen.Add(pkg.ID)

	root := r.newNode(ctx, target, ref, pkg)
	if _, err := r.walk(ctx, target, root); err != nil {
		r.stats.Failed.Add(1)
		r.notifyFailure(ref, err)
		return false, err
	}
	return true, nil
}

// ResolveTransitive installs a dependency without the side filter. A package
// already taken up during this run is not resolved again. Failures of nested
// dependencies are logged and counted but do not stop their siblings.
func (r *Resolver) ResolveTransitive(ctx context.Context, target model.DownloadTarget, ref string) error {
	if !r.seen.Add(ref) {
		return nil
	}

	root, err := r.load(ctx, target, ref)
	if err != nil {
		r.fail(ref, err)
		return err
	}

	if _, err := r.walk(ctx, target, root); err != nil {
		r.fail(ref, err)
		return err
	}
	return nil
}

// walk installs the required dependency tree below root in post-order and
// then writes root itself, returning root's write result.
func (r *Resolver) walk(ctx context.Context, target model.DownloadTarget, root *node) (artifact.Result, error) {
	stack := []*node{root}

	for {
		top := stack[len(stack)-1]

		if top.next < len(top.deps) {
			id := top.deps[top.next]
			top.next++

			if !r.seen.Add(id) {
				continue
			}
			child, err := r.load(ctx, target, id)
			if err != nil {
				r.fail(id, err)
				continue
			}
			stack = append(stack, child)
			continue
		}

		stack = stack[:len(stack)-1]
		if len(stack) == 0 {
			return r.write(ctx, target, top)
		}
		if _, err := r.write(ctx, target, top); err != nil {
			r.fail(top.ref, err)
		}
	}
}

// load fetches a package and selects its release
func (r *Resolver) load(ctx context.Context, target model.DownloadTarget, ref string) (*node, error) {
	pkg, err := r.registry.GetProject(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package %s: %w", ref, err)
	}
	r.seen.Add(pkg.ID)
	return r.newNode(ctx, target, ref, pkg), nil
}

func (r *Resolver) newNode(ctx context.Context, target model.DownloadTarget, ref string, pkg *model.PackageInfo) *node {
	release := r.selector.Select(ctx, pkg, target.PlatformVersion)
	return &node{
		ref:     ref,
		pkg:     pkg,
		release: release,
		deps:    release.RequiredDependencies(),
	}
}

func (r *Resolver) write(ctx context.Context, target model.DownloadTarget, n *node) (artifact.Result, error) {
	res, err := r.writer.Write(ctx, target, n.release, n.pkg)
	if err != nil {
		return res, err
	}
	r.stats.record(res.Outcome)
	if r.onResult != nil {
		r.onResult(res)
	}
	return res, nil
}

// fail records a dependency failure without interrupting the caller
func (r *Resolver) fail(ref string, err error) {
	r.stats.Failed.Add(1)
	r.logger.Error("failed", zap.String("package", ref), zap.Error(err))
	r.notifyFailure(ref, err)
}

func (r *Resolver) notifyFailure(ref string, err error) {
	if r.onFailure != nil {
		r.onFailure(ref, err)
	}
}
