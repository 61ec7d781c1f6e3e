// Package harvest implements the harvest stage's commit discipline: each
// post is downloaded into a staging area, its media are moved into the images
// directory under stable names and the Record Store is rewritten after every
// post.
package harvest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flarebyte/geotrail/internal/record"
)

// DefaultLimit caps the number of posts taken from a Source.
const DefaultLimit = 50

// Summary counts what a harvest did.
type Summary struct {
	Listed    int
	Committed int
	Skipped   int
	Failed    int
	StorePath string
}

// Harvester writes a fresh Record Store for one target account.
type Harvester struct {
	Layout   Layout
	Patterns []string
	// Limit caps the posts taken; zero means DefaultLimit, negative means
	// no cap.
	Limit  int
	Logger *slog.Logger
}

func (h Harvester) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return h.Logger
}

func (h Harvester) limit(n int) int {
	switch {
	case h.Limit == 0 && n > DefaultLimit:
		return DefaultLimit
	case h.Limit > 0 && n > h.Limit:
		return h.Limit
	}
	return n
}

// Run harvests target from src. Download failures and posts without still
// images are skipped; filesystem failures on the outputs stop the run. Posts
// committed before a failure stay in the store.
func (h Harvester) Run(ctx context.Context, target string, src Source) (Summary, error) {
	log := h.logger()
	s := Summary{StorePath: h.Layout.StorePath()}
	if target == "" {
		return s, fmt.Errorf("harvest: empty target")
	}
	items, err := src.List(ctx, target)
	if err != nil {
		return s, fmt.Errorf("harvest %s: %w", target, err)
	}
	items = items[:h.limit(len(items))]
	s.Listed = len(items)

	store, err := record.NewAppender(s.StorePath)
	if err != nil {
		return s, err
	}
	staging := Staging{Dir: h.Layout.StagingDir()}
	defer func() {
		if err := staging.Remove(); err != nil {
			log.Warn("staging cleanup failed", slog.String("error", err.Error()))
		}
	}()
	media := NewMediaMatcher(h.Patterns)

	log.Info("harvest started", slog.String("target", target), slog.Int("posts", len(items)))
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		if err := staging.Reset(); err != nil {
			return s, err
		}
		if err := src.Download(ctx, it, staging.Dir); err != nil {
			s.Failed++
			log.Warn("download failed", slog.String("shortcode", it.Shortcode), slog.String("error", err.Error()))
			continue
		}
		files, err := staging.Collect(media)
		if err != nil {
			return s, err
		}
		if len(files) == 0 {
			s.Skipped++
			log.Debug("no still images, skipped", slog.String("shortcode", it.Shortcode))
			continue
		}
		paths, err := h.Layout.Commit(it.Shortcode, files)
		if err != nil {
			return s, err
		}
		loc := it.Location
		if loc == nil {
			loc = record.NullLocation()
		}
		post := record.Post{
			PostURL:         it.PostURL(),
			LocalImagePaths: paths,
			Date:            it.Date,
			Caption:         it.Caption,
			Location:        loc,
		}
		if err := store.Append(post); err != nil {
			return s, err
		}
		s.Committed = store.Len()
		log.Info("post saved", slog.String("shortcode", it.Shortcode), slog.Int("images", len(paths)))
	}
	log.Info("harvest complete",
		slog.String("store", store.Path()),
		slog.Int("committed", s.Committed),
		slog.Int("skipped", s.Skipped),
		slog.Int("failed", s.Failed))
	return s, nil
}
