// Package record defines the Record Store: the JSON document written by the
// harvest stage, patched by the backfill stage and read by the map renderer.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// JSON keys of a post, in canonical output order.
const (
	keyPostURL         = "post_url"
	keyLocalImagePaths = "local_image_paths"
	keyDate            = "date"
	keyCaption         = "caption"
	keyLocation        = "location"
)

var knownKeys = map[string]bool{
	keyPostURL: true, keyLocalImagePaths: true, keyDate: true, keyCaption: true, keyLocation: true,
}

const (
	keyLat = "lat"
	keyLon = "lon"
)

// Location holds coordinates; a nil field is written as null. Unknown keys
// of the location object survive a rewrite like those of Post.
type Location struct {
	Lat *float64
	Lon *float64

	extra map[string]json.RawMessage
}

// NewLocation returns a fully populated location.
func NewLocation(lat, lon float64) *Location {
	return &Location{Lat: &lat, Lon: &lon}
}

// WithCoordinates returns a copy of l (which may be nil) with lat and lon
// set, keeping its unknown keys.
func (l *Location) WithCoordinates(lat, lon float64) *Location {
	out := NewLocation(lat, lon)
	if l != nil {
		out.extra = l.extra
	}
	return out
}

// UnmarshalJSON tolerates missing and null coordinates.
func (l *Location) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("location must be an object")
	}
	*l = Location{}
	for k, v := range raw {
		switch k {
		case keyLat:
			if err := json.Unmarshal(v, &l.Lat); err != nil {
				return fmt.Errorf("%s: %w", keyLat, err)
			}
		case keyLon:
			if err := json.Unmarshal(v, &l.Lon); err != nil {
				return fmt.Errorf("%s: %w", keyLon, err)
			}
		default:
			if l.extra == nil {
				l.extra = map[string]json.RawMessage{}
			}
			l.extra[k] = v
		}
	}
	return nil
}

// MarshalJSON writes lat and lon, then unknown keys sorted.
func (l Location) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, kv := range []struct {
		key string
		val *float64
	}{{keyLat, l.Lat}, {keyLon, l.Lon}} {
		b, err := encodeValue(kv.val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kv.key, err)
		}
		writeField(&buf, &first, kv.key, b)
	}
	writeExtra(&buf, &first, l.extra)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NullLocation returns {lat: null, lon: null}.
func NullLocation() *Location { return &Location{} }

// Post is one harvested post.
//
// Keys the type does not know about are kept and written back unchanged so
// that a rewrite only changes what callers modified.
type Post struct {
	PostURL         string
	LocalImagePaths []string
	Date            string
	Caption         string
	Location        *Location

	nullLocation bool
	extra        map[string]json.RawMessage
}

// MissingLocation reports whether the post needs a location: absent, null,
// or present with a null lat. Lon is not checked on its own.
func (p Post) MissingLocation() bool {
	return p.Location == nil || p.Location.Lat == nil
}

// HasCoordinates reports whether both lat and lon are set.
func (p Post) HasCoordinates() bool {
	return p.Location != nil && p.Location.Lat != nil && p.Location.Lon != nil
}

// FirstImage returns the first local image path, if any.
func (p Post) FirstImage() (string, bool) {
	if len(p.LocalImagePaths) == 0 {
		return "", false
	}
	return p.LocalImagePaths[0], true
}

// UnmarshalJSON tolerates missing and null fields.
func (p *Post) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("post must be an object")
	}
	*p = Post{}
	if v, ok := raw[keyPostURL]; ok {
		if err := json.Unmarshal(v, &p.PostURL); err != nil {
			return fmt.Errorf("%s: %w", keyPostURL, err)
		}
	}
	if v, ok := raw[keyLocalImagePaths]; ok {
		if err := json.Unmarshal(v, &p.LocalImagePaths); err != nil {
			return fmt.Errorf("%s: %w", keyLocalImagePaths, err)
		}
	}
	if v, ok := raw[keyDate]; ok {
		if err := json.Unmarshal(v, &p.Date); err != nil {
			return fmt.Errorf("%s: %w", keyDate, err)
		}
	}
	if v, ok := raw[keyCaption]; ok {
		if err := json.Unmarshal(v, &p.Caption); err != nil {
			return fmt.Errorf("%s: %w", keyCaption, err)
		}
	}
	if v, ok := raw[keyLocation]; ok {
		if isNull(v) {
			p.nullLocation = true
		} else if err := json.Unmarshal(v, &p.Location); err != nil {
			return fmt.Errorf("%s: %w", keyLocation, err)
		}
	}
	for k, v := range raw {
		if knownKeys[k] {
			continue
		}
		if p.extra == nil {
			p.extra = map[string]json.RawMessage{}
		}
		p.extra[k] = v
	}
	return nil
}

// MarshalJSON writes known keys in canonical order, then unknown keys sorted.
// A nil image list is written as [].
func (p Post) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	field := func(k string, v any) error {
		b, err := encodeValue(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		writeField(&buf, &first, k, b)
		return nil
	}
	paths := p.LocalImagePaths
	if paths == nil {
		paths = []string{}
	}
	if err := field(keyPostURL, p.PostURL); err != nil {
		return nil, err
	}
	if err := field(keyLocalImagePaths, paths); err != nil {
		return nil, err
	}
	if err := field(keyDate, p.Date); err != nil {
		return nil, err
	}
	if err := field(keyCaption, p.Caption); err != nil {
		return nil, err
	}
	switch {
	case p.Location != nil:
		if err := field(keyLocation, p.Location); err != nil {
			return nil, err
		}
	case p.nullLocation:
		writeField(&buf, &first, keyLocation, []byte("null"))
	}
	writeExtra(&buf, &first, p.extra)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeExtra(buf *bytes.Buffer, first *bool, extra map[string]json.RawMessage) {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(buf, first, k, extra[k])
	}
}

func writeField(buf *bytes.Buffer, first *bool, key string, value []byte) {
	if !*first {
		buf.WriteByte(',')
	}
	*first = false
	k, _ := encodeValue(key)
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(value)
}

// encodeValue marshals v without HTML escaping so captions keep <, > and &.
func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func isNull(b json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}
