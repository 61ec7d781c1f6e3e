package backfill

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/flarebyte/geotrail/internal/record"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type fakePredictor struct {
	coords map[string][2]float64
	calls  []string
}

func (f *fakePredictor) Predict(_ context.Context, p string) (float64, float64, error) {
	f.calls = append(f.calls, filepath.Base(p))
	c, ok := f.coords[filepath.Base(p)]
	if !ok {
		return 0, 0, errors.New("model error")
	}
	return c[0], c[1], nil
}

// pipelineRoot lays out <root>/instascraper/output/images with the given files.
func pipelineRoot(t *testing.T, images ...string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "instascraper", "output", "images")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, img := range images {
		if err := os.WriteFile(filepath.Join(dir, img), []byte("jpg"), 0o644); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
	return root
}

func img(name string) []string { return []string{"instascraper/output/images/" + name} }

func ptr(f float64) *float64 { return &f }

func TestFill_PartialSuccessScenario(t *testing.T) {
	root := pipelineRoot(t, "A_1.jpg", "C_1.jpg")
	posts := []record.Post{
		{PostURL: "a", LocalImagePaths: img("A_1.jpg"), Location: record.NewLocation(10, 20)},
		{PostURL: "b", LocalImagePaths: nil},
		{PostURL: "c", LocalImagePaths: img("C_1.jpg")},
	}
	pred := &fakePredictor{coords: map[string][2]float64{"A_1.jpg": {1, 1}}}
	b := Backfiller{Predictor: pred, Paths: record.PathResolver{Root: root}}

	s := b.Fill(context.Background(), posts)

	if len(posts) != 3 || posts[0].PostURL != "a" || posts[1].PostURL != "b" || posts[2].PostURL != "c" {
		t.Fatalf("order or count changed: %+v", posts)
	}
	if *posts[0].Location.Lat != 10 || *posts[0].Location.Lon != 20 {
		t.Fatalf("existing location mutated: %+v", posts[0].Location)
	}
	if posts[1].Location != nil {
		t.Fatalf("post without images must stay untouched: %+v", posts[1].Location)
	}
	if posts[2].Location == nil || posts[2].Location.Lat != nil || posts[2].Location.Lon != nil {
		t.Fatalf("failed inference must yield null coordinates: %+v", posts[2].Location)
	}
	if diff := cmp.Diff([]string{"C_1.jpg"}, pred.calls); diff != "" {
		t.Fatalf("predictor calls (-want +got):\n%s", diff)
	}
	want := Summary{Total: 3, Considered: 1, Failed: 1, Skipped: 1}
	got := s
	got.Errors = nil
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("summary (-want +got):\n%s", diff)
	}
	if len(s.Errors) != 1 || s.Errors[0].PostURL != "c" {
		t.Fatalf("unexpected errors: %+v", s.Errors)
	}
}

func TestFill_FillsMissingAndNullLat(t *testing.T) {
	root := pipelineRoot(t, "A_1.jpg", "B_1.jpg")
	posts := []record.Post{
		{PostURL: "a", LocalImagePaths: img("A_1.jpg")},
		{PostURL: "b", LocalImagePaths: img("B_1.jpg"), Location: &record.Location{Lon: ptr(5)}},
	}
	pred := &fakePredictor{coords: map[string][2]float64{"A_1.jpg": {48.85, 2.35}, "B_1.jpg": {-33.9, 151.2}}}
	s := Backfiller{Predictor: pred, Paths: record.PathResolver{Root: root}}.Fill(context.Background(), posts)
	if s.Filled != 2 || s.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if *posts[0].Location.Lat != 48.85 || *posts[1].Location.Lon != 151.2 {
		t.Fatalf("unexpected locations: %+v %+v", posts[0].Location, posts[1].Location)
	}
}

func TestFill_ImageNotFoundKeepsPartialLocation(t *testing.T) {
	root := pipelineRoot(t)
	posts := []record.Post{
		{PostURL: "a", LocalImagePaths: img("gone.jpg")},
		{PostURL: "b", LocalImagePaths: img("gone.jpg"), Location: &record.Location{Lon: ptr(7)}},
	}
	pred := &fakePredictor{}
	s := Backfiller{Predictor: pred, Paths: record.PathResolver{Root: root}}.Fill(context.Background(), posts)
	if len(pred.calls) != 0 {
		t.Fatalf("predictor must not run for missing images: %v", pred.calls)
	}
	if s.Failed != 2 || !errors.Is(s.Errors[0], ErrImageNotFound) {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if posts[0].Location == nil || posts[0].Location.Lat != nil {
		t.Fatalf("absent location should become null: %+v", posts[0].Location)
	}
	if posts[1].Location.Lon == nil || *posts[1].Location.Lon != 7 {
		t.Fatalf("present location must be kept as is: %+v", posts[1].Location)
	}
}

func TestFile_IdempotentOnBackfilledStore(t *testing.T) {
	root := pipelineRoot(t, "A_1.jpg", "B_1.jpg")
	store := filepath.Join(root, "instascraper", "output", "json", "posts.json")
	in := []record.Post{
		{PostURL: "a", LocalImagePaths: img("A_1.jpg"), Date: "2025-01-01", Location: record.NewLocation(1, 2)},
		{PostURL: "b", LocalImagePaths: img("B_1.jpg"), Date: "2025-01-02", Location: record.NewLocation(3, 4)},
		{PostURL: "c", Caption: "no media"},
	}
	if err := record.Save(store, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	before, _ := os.ReadFile(store)

	pred := &fakePredictor{coords: map[string][2]float64{"A_1.jpg": {9, 9}, "B_1.jpg": {9, 9}}}
	b := Backfiller{Predictor: pred, Paths: record.PathResolver{Root: root}}
	for i := 0; i < 2; i++ {
		if _, err := b.File(context.Background(), store, ""); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}
	after, _ := os.ReadFile(store)
	if !bytes.Equal(before, after) {
		t.Fatalf("store changed\nbefore:\n%s\nafter:\n%s", before, after)
	}
	if len(pred.calls) != 0 {
		t.Fatalf("no post should be re-predicted: %v", pred.calls)
	}
}

func TestFile_PreservesOrderCountAndOtherFields(t *testing.T) {
	root := pipelineRoot(t, "P1_1.jpg", "P3_1.jpg", "P4_1.jpg")
	doc := `[
 {"post_url": "p1", "local_image_paths": ["instascraper/output/images/P1_1.jpg"], "date": "2025-02-01", "caption": "one", "location": {"lat": null, "lon": null}, "extra": {"k": 1}},
 {"post_url": "p2", "local_image_paths": [], "date": "x", "caption": "two"},
 {"post_url": "p3", "local_image_paths": ["instascraper/output/images/P3_1.jpg"], "date": "2025-02-03", "caption": "three"},
 {"post_url": "p4", "local_image_paths": ["instascraper/output/images/P4_1.jpg", "instascraper/output/images/P4_2.jpg"], "date": "2025-02-04", "caption": "four", "location": {"lat": 5, "lon": 6}}
]`
	in := filepath.Join(root, "posts.json")
	out := filepath.Join(root, "output.json")
	if err := os.WriteFile(in, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	pred := &fakePredictor{coords: map[string][2]float64{"P1_1.jpg": {11, 12}}}
	if _, err := (Backfiller{Predictor: pred, Paths: record.PathResolver{Root: root}}).File(context.Background(), in, out); err != nil {
		t.Fatalf("file: %v", err)
	}
	before, err := record.Load(in)
	if err != nil {
		t.Fatalf("load in: %v", err)
	}
	after, err := record.Load(out)
	if err != nil {
		t.Fatalf("load out: %v", err)
	}
	if len(before) != len(after) {
		t.Fatalf("count changed: %d -> %d", len(before), len(after))
	}
	opts := []cmp.Option{cmpopts.IgnoreUnexported(record.Post{}), cmpopts.IgnoreFields(record.Post{}, "Location")}
	if diff := cmp.Diff(before, after, opts...); diff != "" {
		t.Fatalf("only location may change (-before +after):\n%s", diff)
	}
	if *after[0].Location.Lat != 11 || after[1].Location != nil || after[2].Location.Lat != nil || *after[3].Location.Lat != 5 {
		t.Fatalf("unexpected locations: %+v %+v %+v %+v", after[0].Location, after[1].Location, after[2].Location, after[3].Location)
	}
	raw, _ := os.ReadFile(out)
	if !bytes.Contains(raw, []byte(`"extra"`)) {
		t.Fatalf("unknown keys must survive the rewrite:\n%s", raw)
	}
}

func TestFile_MissingStore(t *testing.T) {
	_, err := Backfiller{}.File(context.Background(), filepath.Join(t.TempDir(), "none.json"), "")
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestFile_FilledLocationKeepsUnknownKeys(t *testing.T) {
	root := pipelineRoot(t, "A_1.jpg")
	in := filepath.Join(root, "posts.json")
	doc := `[{"post_url": "a", "local_image_paths": ["instascraper/output/images/A_1.jpg"], "location": {"lat": null, "lon": null, "source": "manual"}}]`
	if err := os.WriteFile(in, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	pred := &fakePredictor{coords: map[string][2]float64{"A_1.jpg": {1.5, 2.5}}}
	if _, err := (Backfiller{Predictor: pred, Paths: record.PathResolver{Root: root}}).File(context.Background(), in, ""); err != nil {
		t.Fatalf("file: %v", err)
	}
	raw, _ := os.ReadFile(in)
	for _, want := range []string{`"lat": 1.5`, `"lon": 2.5`, `"source": "manual"`} {
		if !bytes.Contains(raw, []byte(want)) {
			t.Fatalf("missing %s in:\n%s", want, raw)
		}
	}
}
