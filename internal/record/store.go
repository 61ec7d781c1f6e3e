package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const indent = "    "

// Decode parses a whole Record Store document.
func Decode(data []byte) ([]Post, error) {
	var posts []Post
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("decode record store: %w", err)
	}
	return posts, nil
}

// Encode renders posts as a pretty-printed UTF-8 JSON array.
func Encode(posts []Post) ([]byte, error) {
	if posts == nil {
		posts = []Post{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(posts); err != nil {
		return nil, fmt.Errorf("encode record store: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads the whole store at path.
func Load(path string) ([]Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record store: %w", err)
	}
	posts, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return posts, nil
}

// Save replaces the store at path with posts. The previous document stays in
// place until the new one is fully written and synced.
func Save(path string, posts []Post) error {
	data, err := Encode(posts)
	if err != nil {
		return err
	}
	return writeAtomic(path, data, 0o644)
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp store: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace record store: %w", err)
	}
	return nil
}

// Appender grows a store one post at a time. Every Append rewrites the whole
// document, so a crash loses at most the post being appended.
type Appender struct {
	path  string
	posts []Post
}

// NewAppender starts an empty store at path, replacing any previous one.
func NewAppender(path string) (*Appender, error) {
	a := &Appender{path: path}
	if err := Save(path, nil); err != nil {
		return nil, err
	}
	return a, nil
}

// Append adds p and durably rewrites the store.
func (a *Appender) Append(p Post) error {
	next := append(a.posts, p)
	if err := Save(a.path, next); err != nil {
		return err
	}
	a.posts = next
	return nil
}

// Len returns the number of committed posts.
func (a *Appender) Len() int { return len(a.posts) }

// Path returns the store path.
func (a *Appender) Path() string { return a.path }
