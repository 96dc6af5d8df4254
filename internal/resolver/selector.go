package resolver

import (
	"context"

	"github.com/KingRainbow44/modpack-installer/internal/model"
	"go.uber.org/zap"
)

// VersionFetcher loads a single release of a project
type VersionFetcher interface {
	GetVersion(ctx context.Context, projectID, versionID string) (*model.ReleaseInfo, error)
}

// Selector picks the newest release compatible with a game version and loader
type Selector struct {
	versions VersionFetcher
	loader   string
	logger   *zap.Logger
}

// NewSelector creates a Selector. An empty loader means fabric.
func NewSelector(versions VersionFetcher, loader string, logger *zap.Logger) *Selector {
	if loader == "" {
		loader = model.LoaderFabric
	}
	return &Selector{
		versions: versions,
		loader:   loader,
		logger:   logger,
	}
}

// Select walks pkg.Versions newest first and returns the first usable release.
// Candidates that fail to load are logged and skipped. When nothing matches
// the sentinel empty release is returned.
func (s *Selector) Select(ctx context.Context, pkg *model.PackageInfo, platformVersion string) *model.ReleaseInfo {
	for i := len(pkg.Versions) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			break
		}

		versionID := pkg.Versions[i]
		release, err := s.versions.GetVersion(ctx, pkg.ID, versionID)
		if err != nil {
			s.logger.Warn("unable to load release",
				zap.String("package", pkg.Title),
				zap.String("project", pkg.ID),
				zap.String("version", versionID),
				zap.Error(err),
			)
			continue
		}

		if release.Usable(platformVersion, s.loader) {
			return release
		}
	}

	return model.EmptyRelease()
}
