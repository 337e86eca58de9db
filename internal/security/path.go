package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFileName rejects names that could escape the media directory.
func ValidateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("file name must not contain path separators: %s", name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("file name contains directory traversal: %s", name)
	}
	return nil
}

// ValidatePathWithinBase ensures path, once joined to baseDir, stays inside it.
func ValidatePathWithinBase(path, baseDir string) error {
	cleanPath := filepath.Clean(filepath.Join(baseDir, path))
	cleanBase := filepath.Clean(baseDir)

	if cleanPath != cleanBase && !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s", path)
	}
	return nil
}
