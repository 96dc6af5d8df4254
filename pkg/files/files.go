package files

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// OS implements the filesystem primitives on the local disk
type OS struct{}

// Exists checks if a file or directory exists
func (OS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Read reads a whole file as text
func (OS) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// Write replaces the contents of a file
func (OS) Write(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Delete removes a file
func (OS) Delete(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// CreateDir creates a directory and any missing parents
func (OS) CreateDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// IsURL checks if s looks like an http(s) URL
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
