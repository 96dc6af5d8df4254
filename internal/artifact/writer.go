package artifact

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/KingRainbow44/modpack-installer/internal/model"
	"go.uber.org/zap"
)

// ModsDir is the folder under the modpack directory that receives artifacts
const ModsDir = "mods"

// Outcome describes what Write did with a release
type Outcome string

const (
	Downloaded     Outcome = "downloaded"
	AlreadyPresent Outcome = "present"
	Skipped        Outcome = "skipped"
)

// FileSystem is the subset of filesystem primitives the writer needs
type FileSystem interface {
	Exists(path string) bool
}

// Downloader streams a URL to a local path
type Downloader interface {
	Download(ctx context.Context, url, path string) (int64, error)
}

// Result reports the artifact a Write call produced
type Result struct {
	Outcome   Outcome
	ProjectID string
	Filename  string
	Path      string
	Size      int64
}

// Writer persists the selected release of a package to <dir>/mods
type Writer struct {
	fs     FileSystem
	dl     Downloader
	logger *zap.Logger
}

// NewWriter creates a new Writer
func NewWriter(fs FileSystem, dl Downloader, logger *zap.Logger) *Writer {
	return &Writer{
		fs:     fs,
		dl:     dl,
		logger: logger,
	}
}

// Write downloads the first file of release unless it is already on disk.
// A release without files is skipped and reported as success. pkg is only
// used for log lines and may be nil.
func (w *Writer) Write(ctx context.Context, target model.DownloadTarget, release *model.ReleaseInfo, pkg *model.PackageInfo) (Result, error) {
	title, projectID := describe(release, pkg)

	if release == nil || len(release.Files) == 0 {
		w.logger.Info("skipped", zap.String("package", title), zap.String("project", projectID))
		return Result{Outcome: Skipped, ProjectID: projectID}, nil
	}

	// Only the first build of a release is installed.
	file := release.Files[0]
	name, err := decodeFilename(file.Filename)
	if err != nil {
		return Result{ProjectID: projectID}, err
	}

	path := filepath.Join(target.Dir, ModsDir, name)
	result := Result{
		ProjectID: projectID,
		Filename:  name,
		Path:      path,
	}

	if w.fs.Exists(path) {
		w.logger.Debug("already present", zap.String("package", title), zap.String("file", name))
		result.Outcome = AlreadyPresent
		return result, nil
	}

	size, err := w.dl.Download(ctx, file.URL, path)
	if err != nil {
		return result, fmt.Errorf("failed to download %s: %w", name, err)
	}

	w.logger.Info("downloaded",
		zap.String("package", title),
		zap.String("project", projectID),
		zap.String("file", name),
	)
	result.Outcome = Downloaded
	result.Size = size
	return result, nil
}

// decodeFilename percent-decodes a registry filename and keeps it inside the mods folder
func decodeFilename(raw string) (string, error) {
	name, err := url.PathUnescape(raw)
	if err != nil {
		name = raw
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("refusing unsafe artifact filename %q", raw)
	}
	return name, nil
}

func describe(release *model.ReleaseInfo, pkg *model.PackageInfo) (string, string) {
	var title, id string
	if pkg != nil {
		title, id = pkg.Title, pkg.ID
	}
	if release != nil && release.Owner() != "" {
		id = release.Owner()
	}
	return title, id
}
