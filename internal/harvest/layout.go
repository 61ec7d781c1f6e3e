package harvest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/flarebyte/geotrail/internal/record"
)

// Layout places the harvest outputs under the harvest stage directory:
//
//	<Dir>/output/json/posts.json
//	<Dir>/output/images/<shortcode>_<n><ext>
//	<Dir>/temp/
type Layout struct {
	Dir string
	// Sentinel prefixes every stored image path; defaults to
	// record.DefaultHarvestDir.
	Sentinel string
}

func (l Layout) sentinel() string {
	if l.Sentinel == "" {
		return record.DefaultHarvestDir
	}
	return l.Sentinel
}

// StorePath is the Record Store written by the harvest stage.
func (l Layout) StorePath() string {
	return filepath.Join(l.Dir, "output", "json", "posts.json")
}

// ImagesDir holds committed media.
func (l Layout) ImagesDir() string {
	return filepath.Join(l.Dir, "output", "images")
}

// StagingDir is the per-post download area.
func (l Layout) StagingDir() string {
	return filepath.Join(l.Dir, "temp")
}

// Commit moves staged files into ImagesDir as <shortcode>_<n><ext>, n counting
// from 1 in the given order, and returns their stored paths.
func (l Layout) Commit(shortcode string, files []string) ([]string, error) {
	if err := os.MkdirAll(l.ImagesDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create images directory: %w", err)
	}
	stored := make([]string, 0, len(files))
	for i, src := range files {
		name := fmt.Sprintf("%s_%d%s", shortcode, i+1, filepath.Ext(src))
		if err := moveFile(src, filepath.Join(l.ImagesDir(), name)); err != nil {
			return nil, fmt.Errorf("commit %s: %w", name, err)
		}
		stored = append(stored, record.StoredPath(l.sentinel(), "output/images/"+name))
	}
	return stored, nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
