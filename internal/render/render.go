// Package render turns a Record Store into a self-contained HTML map with
// one marker per post, a timeline filter and a caption search.
package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/flarebyte/geotrail/internal/record"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxImages = 3
	defaultWorkers   = 4
)

// ErrNothingToRender is returned when no post has both a valid date and
// coordinates.
var ErrNothingToRender = errors.New("no posts with valid dates and locations")

// Marker is one post placed on the map.
type Marker struct {
	ID        string
	Number    int
	Lat       float64
	Lon       float64
	Date      string
	Time      time.Time
	Caption   string
	PostURL   string
	Images    []template.URL
	imagePath []string
}

// CaptionLines splits the caption for display.
func (m Marker) CaptionLines() []string {
	if m.Caption == "" {
		return nil
	}
	return strings.Split(m.Caption, "\n")
}

// Page is the template model.
type Page struct {
	Title     string
	CenterLat float64
	CenterLon float64
	MinTime   int64
	MaxTime   int64
	Markers   []Marker
	Filters   []filterEntry
}

type filterEntry struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Caption   string `json:"caption"`
}

// Summary counts why posts were kept or left out.
type Summary struct {
	Total      int
	Rendered   int
	BadDate    int
	NoLocation int
	Filtered   int
	Images     int
	Unreadable int
}

// Renderer builds maps from posts.
type Renderer struct {
	Paths     record.PathResolver
	Where     *Where
	MaxImages int
	Workers   int
	Title     string
	Logger    *slog.Logger
}

func (r Renderer) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

// Build selects renderable posts, sorts them by date and embeds their images.
// Per-post problems are logged and counted, never returned.
func (r Renderer) Build(ctx context.Context, posts []record.Post) (Page, Summary, error) {
	log := r.logger()
	s := Summary{Total: len(posts)}
	maxImages := r.MaxImages
	if maxImages <= 0 {
		maxImages = DefaultMaxImages
	}

	var markers []Marker
	for _, p := range posts {
		at, err := record.ParseDate(p.Date)
		if err != nil {
			s.BadDate++
			log.Warn("date parse failure, post excluded", slog.String("post", p.PostURL), slog.String("error", err.Error()))
			continue
		}
		if !p.HasCoordinates() {
			s.NoLocation++
			log.Debug("no coordinates, post excluded", slog.String("post", p.PostURL))
			continue
		}
		if r.Where != nil {
			ok, err := r.Where.Match(ctx, p)
			if err != nil {
				s.Filtered++
				log.Warn("predicate failed, post excluded", slog.String("post", p.PostURL), slog.String("error", err.Error()))
				continue
			}
			if !ok {
				s.Filtered++
				continue
			}
		}
		imgs := p.LocalImagePaths
		if len(imgs) > maxImages {
			imgs = imgs[:maxImages]
		}
		markers = append(markers, Marker{
			Lat:       *p.Location.Lat,
			Lon:       *p.Location.Lon,
			Date:      p.Date,
			Time:      at,
			Caption:   p.Caption,
			PostURL:   p.PostURL,
			imagePath: imgs,
		})
	}
	if len(markers) == 0 {
		return Page{}, s, ErrNothingToRender
	}
	sort.SliceStable(markers, func(i, j int) bool { return markers[i].Time.Before(markers[j].Time) })

	if err := r.embedImages(ctx, markers, &s); err != nil {
		return Page{}, s, err
	}

	page := Page{Title: r.Title, Markers: markers}
	if page.Title == "" {
		page.Title = "geotrail"
	}
	var sumLat, sumLon float64
	for i := range markers {
		m := &markers[i]
		m.Number = i + 1
		m.ID = fmt.Sprintf("marker_%d", m.Number)
		sumLat += m.Lat
		sumLon += m.Lon
		page.Filters = append(page.Filters, filterEntry{ID: m.ID, Timestamp: m.Time.UnixMilli(), Caption: strings.ToLower(m.Caption)})
	}
	page.CenterLat = sumLat / float64(len(markers))
	page.CenterLon = sumLon / float64(len(markers))
	page.MinTime = markers[0].Time.UnixMilli()
	page.MaxTime = markers[len(markers)-1].Time.UnixMilli()
	s.Rendered = len(markers)
	return page, s, nil
}

func (r Renderer) embedImages(ctx context.Context, markers []Marker, s *Summary) error {
	log := r.logger()
	workers := r.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	slots := make([][]template.URL, len(markers))
	for i := range markers {
		slots[i] = make([]template.URL, len(markers[i].imagePath))
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range markers {
		for j, stored := range markers[i].imagePath {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				path := r.Paths.Resolve(stored)
				b, err := os.ReadFile(path)
				if err != nil {
					log.Warn("image unreadable, omitted", slog.String("post", markers[i].PostURL), slog.String("image", path), slog.String("error", err.Error()))
					return nil
				}
				slots[i][j] = template.URL("data:" + imageMIME(path) + ";base64," + base64.StdEncoding.EncodeToString(b))
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i := range markers {
		for _, u := range slots[i] {
			if u == "" {
				s.Unreadable++
				continue
			}
			markers[i].Images = append(markers[i].Images, u)
			s.Images++
		}
	}
	return nil
}

func imageMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// File renders the store at inPath into outPath.
func (r Renderer) File(ctx context.Context, inPath, outPath string) (Summary, error) {
	posts, err := record.Load(inPath)
	if err != nil {
		return Summary{}, err
	}
	log := r.logger()
	log.Info("posts loaded", slog.String("store", inPath), slog.Int("posts", len(posts)))
	page, s, err := r.Build(ctx, posts)
	if err != nil {
		return s, err
	}
	if err := WriteFile(outPath, page); err != nil {
		return s, err
	}
	log.Info("map written",
		slog.String("out", outPath),
		slog.Int("markers", s.Rendered),
		slog.Int("bad_date", s.BadDate),
		slog.Int("no_location", s.NoLocation),
		slog.Int("filtered", s.Filtered))
	return s, nil
}
