package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
)

//go:embed templates/map.html.tmpl
var templateFS embed.FS

var mapTemplate = template.Must(template.ParseFS(templateFS, "templates/map.html.tmpl"))

// Write executes the map template into w.
func Write(w io.Writer, page Page) error {
	if err := mapTemplate.Execute(w, page); err != nil {
		return fmt.Errorf("render map: %w", err)
	}
	return nil
}

// WriteFile renders page into path, creating parent directories.
func WriteFile(path string, page Page) error {
	var buf bytes.Buffer
	if err := Write(&buf, page); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create map directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write map: %w", err)
	}
	return nil
}
