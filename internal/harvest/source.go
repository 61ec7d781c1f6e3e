package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/flarebyte/geotrail/internal/record"
)

// Item is one post offered by a Source.
type Item struct {
	Shortcode string
	Date      string
	Caption   string
	Location  *record.Location
	// Ref is an opaque handle the Source uses to fetch the media.
	Ref string
}

// PostURL is the canonical link recorded for the item.
func (it Item) PostURL() string {
	return "https://www.instagram.com/p/" + it.Shortcode + "/"
}

// Source lists the posts of a target account and downloads their media.
type Source interface {
	List(ctx context.Context, target string) ([]Item, error)
	Download(ctx context.Context, it Item, dst string) error
}

// DirSource serves posts from a pre-downloaded export directory. Each post is
// described by <stem>.json ({"shortcode","date","caption","location"}) with
// media files <stem>.<ext> and <stem>_<n>.<ext> next to it and an optional
// caption in <stem>.txt. When <Dir>/<target> exists it is used instead of Dir.
type DirSource struct {
	Dir string
}

type exportMeta struct {
	Shortcode string           `json:"shortcode"`
	Date      string           `json:"date"`
	Caption   string           `json:"caption"`
	Location  *record.Location `json:"location"`
}

func (s DirSource) dir(target string) string {
	if target != "" {
		p := filepath.Join(s.Dir, target)
		if st, err := os.Stat(p); err == nil && st.IsDir() {
			return p
		}
	}
	return s.Dir
}

// List implements Source. Items come back in stem order.
func (s DirSource) List(ctx context.Context, target string) ([]Item, error) {
	dir := s.dir(target)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list export %s: %w", dir, err)
	}
	var items []Item
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		stem := strings.TrimSuffix(name, ".json")
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var meta exportMeta
		if err := json.Unmarshal(b, &meta); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if meta.Shortcode == "" {
			meta.Shortcode = stem
		}
		if meta.Caption == "" {
			if txt, err := os.ReadFile(filepath.Join(dir, stem+".txt")); err == nil {
				meta.Caption = strings.TrimRight(string(txt), "\r\n")
			}
		}
		items = append(items, Item{
			Shortcode: meta.Shortcode,
			Date:      meta.Date,
			Caption:   meta.Caption,
			Location:  meta.Location,
			Ref:       filepath.Join(dir, stem),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Ref < items[j].Ref })
	return items, nil
}

// Download copies every file belonging to the item, except its metadata and
// caption, into dst.
func (s DirSource) Download(ctx context.Context, it Item, dst string) error {
	dir, stem := filepath.Split(it.Ref)
	if dir == "" {
		dir = "."
	}
	own := regexp.MustCompile(`^` + regexp.QuoteMeta(stem) + `(_\d+)?\.[^.]+$`)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("download %s: %w", it.Shortcode, err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := e.Name()
		if e.IsDir() || !own.MatchString(name) {
			continue
		}
		if ext := filepath.Ext(name); ext == ".json" || ext == ".txt" {
			continue
		}
		if err := copyFile(filepath.Join(dir, name), filepath.Join(dst, name)); err != nil {
			return fmt.Errorf("download %s: %w", it.Shortcode, err)
		}
	}
	return nil
}
