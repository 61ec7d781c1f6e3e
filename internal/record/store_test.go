package record

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleStore = `[
  {
    "post_url": "https://www.instagram.com/p/AAA/",
    "local_image_paths": ["instascraper/output/images/AAA_1.jpg"],
    "date": "2025-09-01 12:34:56+02:00",
    "caption": "Tacos & <salsa>",
    "location": {"lat": 40.7, "lon": -74.0},
    "likes": 12
  },
  {
    "post_url": "https://www.instagram.com/p/BBB/",
    "date": "2025-09-02 08:00:00",
    "caption": null,
    "location": null
  },
  {
    "post_url": "https://www.instagram.com/p/CCC/",
    "local_image_paths": [],
    "date": "not a date",
    "caption": "",
    "location": {"lat": null, "lon": null}
  }
]`

func TestDecode_ToleratesPartialRecords(t *testing.T) {
	posts, err := Decode([]byte(sampleStore))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("unexpected count: %d", len(posts))
	}
	if posts[0].MissingLocation() || !posts[0].HasCoordinates() {
		t.Fatalf("first post should have coordinates: %+v", posts[0].Location)
	}
	if !posts[1].MissingLocation() || posts[1].LocalImagePaths != nil || posts[1].Caption != "" {
		t.Fatalf("unexpected second post: %+v", posts[1])
	}
	if !posts[2].MissingLocation() || posts[2].Location == nil {
		t.Fatalf("third post should have a null location object: %+v", posts[2])
	}
}

func TestMissingLocation_IgnoresLon(t *testing.T) {
	lon := 3.0
	p := Post{Location: &Location{Lon: &lon}}
	if !p.MissingLocation() {
		t.Fatalf("null lat must count as missing")
	}
	lat := 1.0
	p = Post{Location: &Location{Lat: &lat}}
	if p.MissingLocation() {
		t.Fatalf("set lat must not count as missing")
	}
	if p.HasCoordinates() {
		t.Fatalf("lon is null, no coordinates")
	}
}

func TestEncode_RewriteKeepsUnknownKeysAndNulls(t *testing.T) {
	posts, err := Decode([]byte(sampleStore))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b, err := Encode(posts)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := string(b)
	for _, want := range []string{`"likes": 12`, `"location": null`, `"Tacos & <salsa>"`, `"local_image_paths": []`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in output:\n%s", want, out)
		}
	}
	again, err := Decode(b)
	if err != nil {
		t.Fatalf("decode again: %v", err)
	}
	b2, err := Encode(again)
	if err != nil {
		t.Fatalf("encode again: %v", err)
	}
	if diff := cmp.Diff(out, string(b2)); diff != "" {
		t.Fatalf("rewrite not stable (-first +second):\n%s", diff)
	}
}

func TestEncode_CanonicalKeyOrder(t *testing.T) {
	b, err := Encode([]Post{{PostURL: "u", LocalImagePaths: []string{"a.jpg"}, Date: "d", Caption: "c", Location: NewLocation(1, 2)}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := "[\n" +
		"    {\n" +
		"        \"post_url\": \"u\",\n" +
		"        \"local_image_paths\": [\n" +
		"            \"a.jpg\"\n" +
		"        ],\n" +
		"        \"date\": \"d\",\n" +
		"        \"caption\": \"c\",\n" +
		"        \"location\": {\n" +
		"            \"lat\": 1,\n" +
		"            \"lon\": 2\n" +
		"        }\n" +
		"    }\n" +
		"]\n"
	if diff := cmp.Diff(want, string(b)); diff != "" {
		t.Fatalf("unexpected encoding (-want +got):\n%s", diff)
	}
}

func TestEncode_EmptyStore(t *testing.T) {
	b, err := Encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(b) != "[]\n" {
		t.Fatalf("unexpected empty encoding: %q", string(b))
	}
}

func TestSaveLoad_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "json", "posts.json")
	in := []Post{{PostURL: "u1"}, {PostURL: "u2", Location: NullLocation()}}
	if err := Save(p, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 2 || out[0].PostURL != "u1" || out[1].Location == nil {
		t.Fatalf("unexpected posts: %+v", out)
	}
	entries, err := os.ReadDir(filepath.Dir(p))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the store file, got %d entries", len(entries))
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected error for missing store")
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`[{"post_url": "u"`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected error for truncated store")
	}
}

func TestAppender_CrashKeepsCommittedPosts(t *testing.T) {
	p := filepath.Join(t.TempDir(), "posts.json")
	a, err := NewAppender(p)
	if err != nil {
		t.Fatalf("new appender: %v", err)
	}
	empty, err := Load(p)
	if err != nil || len(empty) != 0 {
		t.Fatalf("fresh store should be an empty array: %v %v", empty, err)
	}
	if err := a.Append(Post{PostURL: "https://www.instagram.com/p/ONE/", LocalImagePaths: []string{"instascraper/output/images/ONE_1.jpg"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	// The second post can never be encoded: the write fails mid-harvest.
	if err := a.Append(Post{PostURL: "two", Location: NewLocation(math.NaN(), 0)}); err == nil {
		t.Fatalf("expected append failure")
	}
	if a.Len() != 1 {
		t.Fatalf("failed append must not be committed, len=%d", a.Len())
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("store must stay well-formed: %v", err)
	}
	if len(got) != 1 || got[0].PostURL != "https://www.instagram.com/p/ONE/" {
		t.Fatalf("unexpected store content: %+v", got)
	}
}

func TestAppender_ReplacesPreviousRun(t *testing.T) {
	p := filepath.Join(t.TempDir(), "posts.json")
	if err := Save(p, []Post{{PostURL: "old"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := NewAppender(p); err != nil {
		t.Fatalf("new appender: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected fresh store, got %d posts", len(got))
	}
}

func TestLocation_UnknownKeysSurviveRewrite(t *testing.T) {
	doc := `[{"post_url": "u", "location": {"source": "exif", "lat": 1.5, "lon": null, "accuracy": {"m": 30}}}]`
	posts, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b, err := Encode(posts)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `"location": {
            "lat": 1.5,
            "lon": null,
            "accuracy": {
                "m": 30
            },
            "source": "exif"
        }`
	if !strings.Contains(string(b), want) {
		t.Fatalf("location keys not preserved:\n%s", b)
	}

	filled := posts[0].Location.WithCoordinates(2, 3)
	b, err = Encode([]Post{{PostURL: "u", Location: filled}})
	if err != nil {
		t.Fatalf("encode filled: %v", err)
	}
	if !strings.Contains(string(b), `"lat": 2,`) || !strings.Contains(string(b), `"source": "exif"`) {
		t.Fatalf("filled location lost its keys:\n%s", b)
	}
	if got := (*Location)(nil).WithCoordinates(4, 5); *got.Lat != 4 || *got.Lon != 5 {
		t.Fatalf("unexpected location: %+v", got)
	}
}

func TestLocation_RejectsNonNumericCoordinates(t *testing.T) {
	if _, err := Decode([]byte(`[{"post_url": "u", "location": {"lat": "north"}}]`)); err == nil {
		t.Fatalf("expected error for a string latitude")
	}
}

func TestAppender_Path(t *testing.T) {
	p := filepath.Join(t.TempDir(), "posts.json")
	a, err := NewAppender(p)
	if err != nil {
		t.Fatalf("new appender: %v", err)
	}
	if a.Path() != p || a.Len() != 0 {
		t.Fatalf("unexpected appender state: %s %d", a.Path(), a.Len())
	}
}
