package cache

import (
	"os"
	"path/filepath"
	goruntime "runtime"
	"sort"

	"github.com/samber/lo"
)

// GetCacheDir returns the OS-specific tile cache directory
func GetCacheDir() string {
	homeDir, _ := os.UserHomeDir()

	switch goruntime.GOOS {
	case "darwin": // macOS
		return filepath.Join(homeDir, "Library", "Caches", "recon-flyover", "tiles")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		return filepath.Join(appData, "recon-flyover", "cache", "tiles")
	default: // Linux and others
		cacheHome := os.Getenv("XDG_CACHE_HOME")
		if cacheHome == "" {
			cacheHome = filepath.Join(homeDir, ".cache")
		}
		return filepath.Join(cacheHome, "recon-flyover", "tiles")
	}
}

// sortByAccess returns the non-nil entries ordered oldest access first
func sortByAccess(entries []*TileMetadata) []*TileMetadata {
	kept := lo.Filter(entries, func(m *TileMetadata, _ int) bool { return m != nil })
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].AccessTime.Before(kept[j].AccessTime)
	})
	return kept
}
