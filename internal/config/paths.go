package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const appDirName = "cadenza"

// Paths is where the catalog keeps its state on disk, separate from the
// music library it describes.
type Paths struct {
	DBPath        string
	CoverCacheDir string
}

// ResolvePaths places the catalog database and the cover thumbnail cache
// under the user's config directory, creating the directories on first use.
func ResolvePaths() (Paths, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve user config dir: %w", err)
	}

	base := filepath.Join(configDir, appDirName)
	paths := Paths{
		DBPath:        filepath.Join(base, "catalog.db"),
		CoverCacheDir: filepath.Join(base, "covers"),
	}

	for _, dir := range []string{base, paths.CoverCacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Paths{}, fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}

	return paths, nil
}
