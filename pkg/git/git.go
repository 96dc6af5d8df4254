package git

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

// Repo is a modpack repository checked out under a local cache directory
type Repo struct {
	Name     string
	URL      string
	Path     string
	Progress io.Writer
	Logger   *zap.Logger
}

// NewRepo creates a new Repo instance cached at basePath/repos/name
func NewRepo(name, url, basePath string, logger *zap.Logger) *Repo {
	return &Repo{
		Name:   name,
		URL:    url,
		Path:   filepath.Join(basePath, "repos", name),
		Logger: logger,
	}
}

// IsRepoURL reports whether source names a git repository
func IsRepoURL(source string) bool {
	return strings.HasPrefix(source, "git+") || strings.HasSuffix(source, ".git")
}

// RepoName derives a cache folder name from a repository URL
func RepoName(url string) string {
	url = strings.TrimPrefix(url, "git+")
	url = strings.TrimSuffix(strings.TrimRight(url, "/"), ".git")
	if i := strings.LastIndexAny(url, "/:"); i >= 0 {
		url = url[i+1:]
	}
	if url == "" {
		return "modpack"
	}
	return url
}

// PullOrClone pulls or clones the repository
func (r *Repo) PullOrClone() error {
	repo, err := r.openOrClone()
	if err != nil {
		return fmt.Errorf("failed to open/clone repo: %w", err)
	}

	// Get the worktree
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	// Pull the latest changes
	err = worktree.Pull(&git.PullOptions{
		Force: true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull: %w", err)
	}

	return nil
}

// HeadCommit returns the hash of the checked out commit
func (r *Repo) HeadCommit() (string, error) {
	repo, err := git.PlainOpen(r.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open repo: %w", err)
	}

	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// ReadFile reads a file from the worktree
func (r *Repo) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(r.Path, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from %s: %w", name, r.Name, err)
	}
	return data, nil
}

// openOrClone opens an existing repository or clones it if it doesn't exist
func (r *Repo) openOrClone() (*git.Repository, error) {
	// Try to open existing repository
	repo, err := git.PlainOpen(r.Path)
	if err == nil {
		return repo, nil
	}

	// If repository doesn't exist, clone it
	if errors.Is(err, git.ErrRepositoryNotExists) {
		r.Logger.Info("cloning repository",
			zap.String("name", r.Name),
			zap.String("url", r.URL),
		)

		// Create directory if it doesn't exist
		if err := os.MkdirAll(r.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}

		repo, err = git.PlainClone(r.Path, false, &git.CloneOptions{
			URL:      strings.TrimPrefix(r.URL, "git+"),
			Progress: r.Progress,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to clone: %w", err)
		}

		return repo, nil
	}

	return nil, err
}
