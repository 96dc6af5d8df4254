package manifest

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/KingRainbow44/modpack-installer/internal/model"
	"github.com/KingRainbow44/modpack-installer/pkg/files"
	"github.com/KingRainbow44/modpack-installer/pkg/git"
	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FileName is the manifest file name inside a directory or repository
const FileName = "modpack.json"

//go:embed modpack.schema.json
var schemaBytes []byte

// ErrNotFound is returned when no manifest exists and none can be derived
var ErrNotFound = errors.New("modpack manifest not found")

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
	printer        = message.NewPrinter(language.English)
)

// Issue is a single schema violation
type Issue struct {
	Path    string
	Message string
}

// ValidationError lists every schema violation of a manifest
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Path == "" {
			parts = append(parts, issue.Message)
			continue
		}
		parts = append(parts, issue.Path+": "+issue.Message)
	}
	return "invalid modpack manifest: " + strings.Join(parts, "; ")
}

// Downloader fetches a remote manifest
type Downloader interface {
	Download(ctx context.Context, url, path string) (int64, error)
}

// Loader reads a manifest from a local file, an http(s) URL or a git repository
type Loader struct {
	dl       Downloader
	cacheDir string
	logger   *zap.Logger
}

// NewLoader creates a Loader caching remote manifests under cacheDir
func NewLoader(dl Downloader, cacheDir string, logger *zap.Logger) *Loader {
	return &Loader{
		dl:       dl,
		cacheDir: cacheDir,
		logger:   logger,
	}
}

// Load reads and validates the manifest named by source
func (l *Loader) Load(ctx context.Context, source string) (*model.Modpack, error) {
	var (
		data []byte
		err  error
	)

	switch {
	case git.IsRepoURL(source):
		data, err = l.fromRepo(source)
	case files.IsURL(source):
		path := filepath.Join(l.cacheDir, "manifests", FileName)
		data, err = l.fromURL(ctx, source, path)
	default:
		data, err = os.ReadFile(source)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, source)
		}
	}
	if err != nil {
		return nil, err
	}

	pack, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if !IsSemver(pack.Target) {
		l.logger.Warn("target is not a semantic version, matching it verbatim", zap.String("target", pack.Target))
	}
	return pack, nil
}

// Fetch downloads a remote manifest to path and loads it from there
func (l *Loader) Fetch(ctx context.Context, url, path string) (*model.Modpack, error) {
	data, err := l.fromURL(ctx, url, path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (l *Loader) fromURL(ctx context.Context, url, path string) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if _, err := l.dl.Download(ctx, url, path); err != nil {
		return nil, fmt.Errorf("failed to download manifest: %w", err)
	}
	l.logger.Info("downloaded manifest", zap.String("url", url), zap.String("path", path))
	return os.ReadFile(path)
}

func (l *Loader) fromRepo(source string) ([]byte, error) {
	repo := git.NewRepo(git.RepoName(source), source, l.cacheDir, l.logger)
	if err := repo.PullOrClone(); err != nil {
		return nil, err
	}
	if commit, err := repo.HeadCommit(); err == nil {
		l.logger.Info("using manifest repository",
			zap.String("url", source),
			zap.String("commit", commit),
		)
	}
	return repo.ReadFile(FileName)
}

// Parse validates data against the manifest schema and decodes it
func Parse(data []byte) (*model.Modpack, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	pack := &model.Modpack{}
	if err := json.Unmarshal(data, pack); err != nil {
		return nil, fmt.Errorf("failed to decode modpack manifest: %w", err)
	}
	return pack, nil
}

// Validate checks raw manifest JSON against the embedded schema
func Validate(data []byte) error {
	schema, err := getSchema()
	if err != nil {
		return fmt.Errorf("failed to load manifest schema: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to parse modpack manifest: %w", err)
	}

	err = schema.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("failed to validate modpack manifest: %w", err)
	}
	return &ValidationError{Issues: collectIssues(ve, nil)}
}

// IsSemver reports whether a game version parses as a semantic version
func IsSemver(version string) bool {
	_, err := semver.NewVersion(version)
	return err == nil
}

// DeriveURL recovers a manifest URL encoded in the executable name, where
// "/" is written as "-" and ":" as ";". The boolean is false when the name
// does not decode to an http(s) URL.
func DeriveURL(exePath string) (string, bool) {
	name := exePath
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".exe")
	name = strings.ReplaceAll(name, "-", "/")
	name = strings.ReplaceAll(name, ";", ":")
	return name, files.IsURL(name)
}

func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = fmt.Errorf("unmarshaling schema JSON: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource("modpack.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("adding schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("modpack.schema.json")
	})
	return compiledSchema, compileErr
}

// collectIssues flattens the leaves of a validation error tree
func collectIssues(ve *jsonschema.ValidationError, issues []Issue) []Issue {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			issues = collectIssues(cause, issues)
		}
		return issues
	}

	path := ""
	if len(ve.InstanceLocation) > 0 {
		path = "/" + strings.Join(ve.InstanceLocation, "/")
	}
	msg := ve.Error()
	if ve.ErrorKind != nil {
		msg = ve.ErrorKind.LocalizedString(printer)
	}
	return append(issues, Issue{Path: path, Message: msg})
}
