package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/KingRainbow44/modpack-installer/internal/artifact"
	"github.com/KingRainbow44/modpack-installer/internal/config"
	"github.com/KingRainbow44/modpack-installer/internal/dispatch"
	"github.com/KingRainbow44/modpack-installer/internal/manifest"
	"github.com/KingRainbow44/modpack-installer/internal/model"
	"github.com/KingRainbow44/modpack-installer/internal/resolver"
	"github.com/KingRainbow44/modpack-installer/internal/store"
	"github.com/KingRainbow44/modpack-installer/pkg/files"
	"github.com/KingRainbow44/modpack-installer/pkg/zip"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrAlreadyInstalled is returned when the modpack folder already exists
var ErrAlreadyInstalled = errors.New("modpack already installed")

// Downloader streams a URL to a local path
type Downloader interface {
	Download(ctx context.Context, url, path string) (int64, error)
}

// Launcher is the client-side Minecraft installation
type Launcher interface {
	VersionsDir() string
	HasLoader(loader string) bool
	InstallLoader(ctx context.Context, fabric, target string) error
	CreateProfile(pack *model.Modpack, gameDir string) error
}

// Options selects what a single Install call does
type Options struct {
	Server     bool
	Manifest   string    // path, URL or git repository; defaults to install.manifest
	Executable string    // used to derive a manifest URL when the manifest is missing
	Progress   io.Writer // nil disables the progress bar
}

// Report summarizes a finished install
type Report struct {
	RunID       string
	Pack        *model.Modpack
	Dir         string
	Downloaded  int64
	Present     int64
	Skipped     int64
	Unsupported int64
	Failed      int64
	Externals   int
	Failures    []dispatch.Failure
	Elapsed     time.Duration
}

// InstallService installs modpacks and records each run
type InstallService struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *store.SQLiteStore
	registry  resolver.Registry
	dl        Downloader
	fs        files.OS
	manifests *manifest.Loader
	launcher  Launcher
}

// NewInstallService creates a new InstallService instance. launcher may be
// nil when only server installs are performed.
func NewInstallService(cfg *config.Config, logger *zap.Logger, registry resolver.Registry, dl Downloader, launcher Launcher) (*InstallService, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.Storage.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	return &InstallService{
		cfg:       cfg,
		logger:    logger,
		store:     dbStore,
		registry:  registry,
		dl:        dl,
		manifests: manifest.NewLoader(dl, cfg.Storage.Path, logger),
		launcher:  launcher,
	}, nil
}

// Close closes the service and its resources
func (s *InstallService) Close() error {
	return s.store.Close()
}

// Store exposes the run history
func (s *InstallService) Store() *store.SQLiteStore {
	return s.store
}

// Install resolves the manifest and installs the modpack it describes
func (s *InstallService) Install(ctx context.Context, opts Options) (*Report, error) {
	pack, err := s.loadManifest(ctx, opts)
	if err != nil {
		return nil, err
	}

	root, err := s.prepareRoot(ctx, pack, opts.Server)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(root, pack.Folder)
	if s.fs.Exists(dir) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInstalled, dir)
	}

	s.logger.Info("installing modpack",
		zap.String("name", pack.Name),
		zap.String("version", pack.Version),
		zap.String("dir", dir),
		zap.Bool("server", opts.Server),
	)

	for _, d := range []string{dir, filepath.Join(dir, artifact.ModsDir), filepath.Join(dir, "config")} {
		if err := s.fs.CreateDir(d); err != nil {
			return nil, err
		}
	}

	run := &model.DBRun{
		ID:        uuid.NewString(),
		Modpack:   pack.Name,
		Version:   pack.Version,
		Target:    pack.Target,
		Server:    opts.Server,
		Requested: len(pack.Mods),
	}
	if err := s.store.CreateRun(run); err != nil {
		return nil, err
	}

	report := &Report{RunID: run.ID, Pack: pack, Dir: dir}
	stats := s.installMods(ctx, run.ID, pack, dir, opts, report)
	var externalsFailed int
	report.Externals, externalsFailed = s.installExternals(ctx, run.ID, pack.External, dir)

	if !opts.Server {
		if err := s.launcher.CreateProfile(pack, dir); err != nil {
			s.logger.Error("failed to create launcher profile", zap.Error(err))
		}
	}

	report.Downloaded = stats.Downloaded.Load()
	report.Present = stats.Present.Load()
	report.Skipped = stats.Skipped.Load()
	report.Unsupported = stats.Unsupported.Load()
	report.Failed = stats.Failed.Load() + int64(externalsFailed)

	run.Downloaded = report.Downloaded
	run.Present = report.Present
	run.Skipped = report.Skipped
	run.Failed = report.Failed
	if err := s.store.FinishRun(run); err != nil {
		s.logger.Error("failed to record run", zap.String("run", run.ID), zap.Error(err))
	}

	s.logger.Info("modpack installed",
		zap.String("run", run.ID),
		zap.Int64("downloaded", report.Downloaded),
		zap.Int64("present", report.Present),
		zap.Int64("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// loadManifest reads the configured manifest, falling back to a URL encoded
// in the executable name when the local file is missing
func (s *InstallService) loadManifest(ctx context.Context, opts Options) (*model.Modpack, error) {
	source := opts.Manifest
	if source == "" {
		source = s.cfg.Install.Manifest
	}

	pack, err := s.manifests.Load(ctx, source)
	if !errors.Is(err, manifest.ErrNotFound) {
		return pack, err
	}

	exe := opts.Executable
	if exe == "" {
		if exe, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("%w: %s", manifest.ErrNotFound, source)
		}
	}
	url, ok := manifest.DeriveURL(exe)
	if !ok {
		return nil, fmt.Errorf("%w: %s (executable name %q is not a manifest URL)", manifest.ErrNotFound, source, url)
	}

	s.logger.Info("manifest not found, downloading", zap.String("url", url))
	return s.manifests.Fetch(ctx, url, source)
}

// prepareRoot returns the directory the modpack folder is created in,
// installing the loader first for client installs
func (s *InstallService) prepareRoot(ctx context.Context, pack *model.Modpack, server bool) (string, error) {
	if server {
		return s.cfg.Install.ServerDir, nil
	}
	if s.launcher == nil {
		return "", errors.New("client install requires a launcher")
	}

	if !s.launcher.HasLoader(pack.Loader) {
		if err := s.launcher.InstallLoader(ctx, pack.Fabric, pack.Target); err != nil {
			return "", err
		}
	}
	return s.launcher.VersionsDir(), nil
}

func (s *InstallService) installMods(ctx context.Context, runID string, pack *model.Modpack, dir string, opts Options, report *Report) *resolver.Stats {
	target := model.DownloadTarget{Dir: dir, PlatformVersion: pack.Target}
	writer := artifact.NewWriter(s.fs, s.dl, s.logger)

	res := resolver.New(s.registry, writer, s.logger,
		resolver.WithLoader(s.cfg.Registry.Loader),
		resolver.WithResultHook(func(r artifact.Result) {
			s.recordArtifact(runID, r)
		}),
		resolver.WithFailureHook(func(ref string, err error) {
			s.recordFailure(runID, ref, err)
		}),
	)

	d := dispatch.New(s.logger,
		dispatch.WithWorkers(s.cfg.Install.Workers),
		dispatch.WithStrategy(dispatch.Strategy(s.cfg.Install.Strategy)),
		dispatch.WithProgress(opts.Progress),
	)
	summary := d.Run(ctx, pack.Mods, func(ctx context.Context, ref string) error {
		_, err := res.ResolvePrimary(ctx, target, ref, opts.Server)
		return err
	})

	report.Failures = summary.Failures
	report.Elapsed = summary.Elapsed
	return res.Stats()
}

// installExternals downloads the extra files of a modpack and returns how
// many were installed and how many failed. Failures do not stop the install.
func (s *InstallService) installExternals(ctx context.Context, runID string, externals []model.External, dir string) (int, int) {
	installed, failed := 0, 0
	fail := func(file string, err error) {
		s.logger.Error("failed to install external file", zap.String("file", file), zap.Error(err))
		s.recordFailure(runID, file, err)
		failed++
	}

	for _, ext := range externals {
		path, err := within(dir, ext.File)
		if err != nil {
			fail(ext.File, err)
			continue
		}
		if err := s.fs.CreateDir(filepath.Dir(path)); err != nil {
			fail(ext.File, err)
			continue
		}

		size, err := s.dl.Download(ctx, ext.URL, path)
		if err != nil {
			fail(ext.File, err)
			continue
		}
		s.logger.Info("downloaded", zap.String("file", ext.File))

		if strings.HasSuffix(ext.File, ".zip") && ext.Extract != "" {
			if err := s.extract(path, dir, ext.Extract); err != nil {
				fail(ext.File, err)
				continue
			}
			s.logger.Info("extracted", zap.String("file", ext.File), zap.String("to", ext.Extract))
		}

		s.recordArtifact(runID, artifact.Result{
			Outcome:   artifact.Downloaded,
			ProjectID: "external",
			Filename:  filepath.Base(path),
			Path:      path,
			Size:      size,
		})
		installed++
	}
	return installed, failed
}

func (s *InstallService) extract(archive, dir, into string) error {
	dest := dir
	if into != "." {
		var err error
		if dest, err = within(dir, into); err != nil {
			return err
		}
	}
	if err := zip.Extract(archive, dest); err != nil {
		return err
	}
	return s.fs.Delete(archive)
}

func (s *InstallService) recordArtifact(runID string, r artifact.Result) {
	err := s.store.AddArtifact(&model.DBArtifact{
		RunID:     runID,
		ProjectID: r.ProjectID,
		Filename:  r.Filename,
		Path:      r.Path,
		Size:      r.Size,
		Outcome:   string(r.Outcome),
	})
	if err != nil {
		s.logger.Warn("failed to record artifact", zap.String("file", r.Filename), zap.Error(err))
	}
}

func (s *InstallService) recordFailure(runID, ref string, err error) {
	if err := s.store.AddFailure(&model.DBFailure{RunID: runID, Package: ref, Error: err.Error()}); err != nil {
		s.logger.Warn("failed to record failure", zap.String("package", ref), zap.Error(err))
	}
}

// within joins a manifest-relative path to dir and rejects escapes
func within(dir, rel string) (string, error) {
	path := filepath.Join(dir, filepath.FromSlash(rel))
	r, err := filepath.Rel(dir, path)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the modpack folder", rel)
	}
	return path, nil
}
