// Package filex locates files the client keeps next to where it runs.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataPath returns the absolute path of file name inside dir, which is
// resolved against the working directory and created (0700) if missing.
// dir must be relative.
func DataPath(dir, name string) (string, error) {
	if filepath.IsAbs(dir) {
		return "", fmt.Errorf("data dir %q: must be relative", dir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}

	full := filepath.Join(cwd, dir)
	if err := os.MkdirAll(full, 0o700); err != nil {
		return "", fmt.Errorf("create data dir %s: %w", full, err)
	}

	return filepath.Join(full, name), nil
}
