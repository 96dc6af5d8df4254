package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extract unpacks archive into destDir. When every entry sits below one
// shared top-level folder, that folder is stripped.
func Extract(archive, destDir string) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("failed to open zip file: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	prefix := commonRoot(reader.File)

	for _, file := range reader.File {
		name := strings.TrimPrefix(file.Name, prefix)
		if name == "" {
			continue
		}

		target, err := safeJoin(destDir, name)
		if err != nil {
			return err
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}

		if err := extractFile(file, target); err != nil {
			return err
		}
	}

	return nil
}

func extractFile(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Open the file in the archive
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open file in zip: %w", err)
	}
	defer src.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	// Copy the file contents out of the zip
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	return out.Close()
}

// commonRoot returns "dir/" when all entries live under a single top-level folder
func commonRoot(entries []*zip.File) string {
	root := ""
	for _, f := range entries {
		first, rest, found := strings.Cut(f.Name, "/")
		if !found || (rest == "" && !f.FileInfo().IsDir()) {
			return ""
		}
		if root == "" {
			root = first
		} else if root != first {
			return ""
		}
	}
	if root == "" {
		return ""
	}
	return root + "/"
}

// safeJoin rejects entries that would land outside destDir
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("illegal path in zip: %s", name)
	}
	return target, nil
}
