package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/KingRainbow44/modpack-installer/internal/config"
	"github.com/KingRainbow44/modpack-installer/internal/model"
	"go.uber.org/zap"
)

// ProfilesFile is the launcher's profile registry inside the Minecraft directory
const ProfilesFile = "launcher_profiles.json"

const profileIcon = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAIAAAACABAMAAAAxEHz4AAAAGFBMVEUAAAA4NCrb0LTGvKW8spyAem2uppSakn5SsnMLAAAAAXRSTlMAQObYZgAAAJ5JREFUaIHt1MENgCAMRmFWYAVXcAVXcAVXcH3bhCYNkYjcKO8dSf7v1JASUWdZAlgb0PEmDSMAYYBdGkYApgf8ER3SbwRgesAf0BACMD1gB6S9IbkEEBfwY49oNj4lgLhA64C0o9R9RABTAvp4SX5kB2TA5y8EEAK4pRrxB9QcA4QBWkj3GCAMUCO/xwBhAI/kEsCagCHDY4AwAC3VA6t4zTAMj0OJAAAAAElFTkSuQmCC"

// Downloader fetches the loader installer
type Downloader interface {
	Download(ctx context.Context, url, path string) (int64, error)
}

// Runner executes an external command to completion
type Runner func(ctx context.Context, name string, args ...string) error

// Option configures a Launcher
type Option func(*Launcher)

// WithRunner replaces the process runner
func WithRunner(run Runner) Option {
	return func(l *Launcher) {
		l.run = run
	}
}

// WithTempDir sets where the loader installer is downloaded
func WithTempDir(dir string) Option {
	return func(l *Launcher) {
		l.tempDir = dir
	}
}

// Launcher manages the client-side Minecraft installation
type Launcher struct {
	dir          string
	installerURL string
	java         string
	javaArgs     string
	tempDir      string
	dl           Downloader
	run          Runner
	logger       *zap.Logger
}

// New creates a Launcher rooted at the configured Minecraft directory,
// falling back to the platform default
func New(cfg config.Launcher, dl Downloader, logger *zap.Logger, opts ...Option) (*Launcher, error) {
	dir := cfg.MinecraftDir
	if dir == "" {
		var err error
		dir, err = DefaultMinecraftDir()
		if err != nil {
			return nil, err
		}
	}

	l := &Launcher{
		dir:          dir,
		installerURL: cfg.InstallerURL,
		java:         cfg.Java,
		javaArgs:     cfg.JavaArgs,
		tempDir:      os.TempDir(),
		dl:           dl,
		logger:       logger,
	}
	l.run = l.exec
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// DefaultMinecraftDir returns the launcher's data directory for this platform
func DefaultMinecraftDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA is not set")
		}
		return filepath.Join(appData, ".minecraft"), nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "minecraft"), nil
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, ".minecraft"), nil
	}
}

// Dir returns the Minecraft directory
func (l *Launcher) Dir() string {
	return l.dir
}

// VersionsDir returns the directory holding installed game versions
func (l *Launcher) VersionsDir() string {
	return filepath.Join(l.dir, "versions")
}

// HasLoader reports whether a loader version is installed
func (l *Launcher) HasLoader(loader string) bool {
	_, err := os.Stat(filepath.Join(l.VersionsDir(), loader))
	return err == nil
}

// InstallLoader downloads the Fabric installer and runs it for the given
// loader and game versions
func (l *Launcher) InstallLoader(ctx context.Context, fabric, target string) error {
	jar := filepath.Join(l.tempDir, "fabric-installer.jar")
	if _, err := l.dl.Download(ctx, l.installerURL, jar); err != nil {
		return fmt.Errorf("failed to download loader installer: %w", err)
	}

	l.logger.Info("installing loader",
		zap.String("loader", fabric),
		zap.String("target", target),
	)
	err := l.run(ctx, l.java,
		"-jar", jar,
		"client",
		"-dir", l.dir,
		"-loader", fabric,
		"-mcversion", target,
	)
	if err != nil {
		return fmt.Errorf("failed to run loader installer: %w", err)
	}
	return nil
}

// CreateProfile registers a launcher profile for the modpack, replacing
// any profile with the same name. Unknown fields of the profiles file are kept.
func (l *Launcher) CreateProfile(pack *model.Modpack, gameDir string) error {
	path := filepath.Join(l.dir, ProfilesFile)

	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse %s: %w", ProfilesFile, err)
		}
	case errors.Is(err, os.ErrNotExist):
		l.logger.Warn("launcher profiles not found, creating", zap.String("path", path))
	default:
		return fmt.Errorf("failed to read %s: %w", ProfilesFile, err)
	}

	profiles, ok := doc["profiles"].(map[string]any)
	if !ok {
		profiles = map[string]any{}
		doc["profiles"] = profiles
	}
	profiles[pack.Name] = map[string]any{
		"name":          pack.Name,
		"type":          "custom",
		"lastVersionId": pack.Loader,
		"gameDir":       gameDir,
		"icon":          profileIcon,
		"javaArgs":      l.javaArgs,
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", ProfilesFile, err)
	}
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", l.dir, err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ProfilesFile, err)
	}

	l.logger.Info("created launcher profile", zap.String("profile", pack.Name))
	return nil
}

func (l *Launcher) exec(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		l.logger.Debug("loader installer output", zap.String("output", strings.TrimSpace(string(out))))
	}
	return err
}
