package record

import (
	"path/filepath"
	"strings"
)

// DefaultHarvestDir is the harvest stage directory and the sentinel prefix of
// every image path it stores.
const DefaultHarvestDir = "instascraper"

// harvestLocalPrefix marks paths written relative to the harvest directory.
const harvestLocalPrefix = "output/"

// PathResolver maps stored image paths to files for a stage that does not
// run in the harvest directory.
//
//   - absolute paths are used as is;
//   - "<HarvestDir>/..." resolves against Root;
//   - "output/..." resolves against Root/<HarvestDir>;
//   - anything else resolves against WorkDir (the process cwd when empty).
type PathResolver struct {
	Root       string
	HarvestDir string
	WorkDir    string
}

func (r PathResolver) harvestDir() string {
	if r.HarvestDir == "" {
		return DefaultHarvestDir
	}
	return strings.Trim(filepath.ToSlash(r.HarvestDir), "/")
}

// Resolve returns the filesystem path for a stored image path.
func (r PathResolver) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	slash := filepath.ToSlash(p)
	hd := r.harvestDir()
	switch {
	case strings.HasPrefix(slash, hd+"/"):
		return filepath.Join(r.Root, filepath.FromSlash(slash))
	case strings.HasPrefix(slash, harvestLocalPrefix):
		return filepath.Join(r.Root, filepath.FromSlash(hd), filepath.FromSlash(slash))
	case r.WorkDir != "":
		return filepath.Join(r.WorkDir, filepath.FromSlash(slash))
	default:
		return filepath.FromSlash(slash)
	}
}

// StoredPath returns the path a harvest stage records for a committed file:
// the sentinel prefix followed by the path relative to the harvest directory.
func StoredPath(harvestDir, relToHarvest string) string {
	if harvestDir == "" {
		harvestDir = DefaultHarvestDir
	}
	return filepath.ToSlash(filepath.Join(harvestDir, relToHarvest))
}
