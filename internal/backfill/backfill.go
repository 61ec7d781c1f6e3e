// Package backfill fills missing post locations by asking a Predictor for
// the coordinates of each post's first image.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/flarebyte/geotrail/internal/record"
)

// Predictor returns GPS coordinates for an image file.
type Predictor interface {
	Predict(ctx context.Context, imagePath string) (lat, lon float64, err error)
}

// ErrImageNotFound is reported when a post's image file does not exist.
var ErrImageNotFound = errors.New("image not found")

// RecordError is a per-post failure. It never stops the pass.
type RecordError struct {
	PostURL string
	Image   string
	Err     error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.PostURL, e.Image, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Summary counts what a pass did.
type Summary struct {
	Total      int
	Considered int
	Filled     int
	Failed     int
	Skipped    int
	Errors     []*RecordError
}

// Backfiller applies the backfill contract to a post sequence.
type Backfiller struct {
	Predictor Predictor
	Paths     record.PathResolver
	Logger    *slog.Logger
}

func (b Backfiller) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

// Fill updates Location in place for every post missing one. Order and count
// never change and no other field is touched.
func (b Backfiller) Fill(ctx context.Context, posts []record.Post) Summary {
	log := b.logger()
	s := Summary{Total: len(posts)}
	for i := range posts {
		p := &posts[i]
		if !p.MissingLocation() {
			continue
		}
		img, ok := p.FirstImage()
		if !ok {
			s.Skipped++
			log.Debug("no image, skipped", slog.String("post", p.PostURL))
			continue
		}
		s.Considered++
		lat, lon, err := b.predict(ctx, img)
		if err != nil {
			s.Failed++
			rerr := &RecordError{PostURL: p.PostURL, Image: img, Err: err}
			s.Errors = append(s.Errors, rerr)
			log.Warn("location prediction failed",
				slog.String("post", p.PostURL),
				slog.String("image", img),
				slog.String("error", err.Error()))
			if p.Location == nil {
				p.Location = record.NullLocation()
			}
			continue
		}
		p.Location = p.Location.WithCoordinates(lat, lon)
		s.Filled++
		log.Info("location predicted",
			slog.String("post", p.PostURL),
			slog.Float64("lat", lat),
			slog.Float64("lon", lon))
	}
	return s
}

func (b Backfiller) predict(ctx context.Context, stored string) (float64, float64, error) {
	path := b.Paths.Resolve(stored)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0, 0, fmt.Errorf("%w: %s", ErrImageNotFound, path)
	}
	if b.Predictor == nil {
		return 0, 0, errors.New("no predictor configured")
	}
	return b.Predictor.Predict(ctx, path)
}

// File runs a whole-document pass: read inPath, fill, write outPath (inPath
// when empty). The document is written even when some posts still have null
// coordinates.
func (b Backfiller) File(ctx context.Context, inPath, outPath string) (Summary, error) {
	if outPath == "" {
		outPath = inPath
	}
	posts, err := record.Load(inPath)
	if err != nil {
		return Summary{}, err
	}
	s := b.Fill(ctx, posts)
	if err := record.Save(outPath, posts); err != nil {
		return s, fmt.Errorf("write backfilled store: %w", err)
	}
	b.logger().Info("backfill complete",
		slog.String("out", outPath),
		slog.Int("posts", s.Total),
		slog.Int("filled", s.Filled),
		slog.Int("failed", s.Failed),
		slog.Int("skipped", s.Skipped))
	return s, nil
}
