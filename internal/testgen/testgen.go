// Package testgen provides utilities for generating EPUB files with
// configurable metadata for tests.
package testgen

import (
	"os"
	"path/filepath"
	"testing"
)

// SeriesStyle selects which metadata convention carries the series.
type SeriesStyle int

const (
	// SeriesCalibre writes <meta name="calibre:series" content="..."/>.
	SeriesCalibre SeriesStyle = iota
	// SeriesCollection writes EPUB 3 belongs-to-collection/group-position.
	SeriesCollection
)

// CoverStrategy selects how the cover is advertised in the package document.
type CoverStrategy int

const (
	// CoverByMeta references the item from <meta name="cover"/>, the
	// EPUB 2 convention. The item id is "img-main".
	CoverByMeta CoverStrategy = iota
	// CoverByProperties marks the item with properties="cover-image".
	CoverByProperties
	// CoverByID gives the item an id containing "cover".
	CoverByID
	// CoverByConventionalID gives the item the id "Cover-Image".
	CoverByConventionalID
)

// EPUBOptions configures the generated EPUB file.
type EPUBOptions struct {
	Title         string
	Authors       []string
	Description   string
	Language      string
	PublishedDate string

	Series       string
	SeriesNumber *float64
	// SeriesIndexRaw, when set, is written verbatim instead of SeriesNumber.
	SeriesIndexRaw string
	SeriesStyle    SeriesStyle

	HasCover      bool
	CoverMimeType string // "image/jpeg" or "image/png", defaults to "image/png"
	CoverStrategy CoverStrategy
	// CoverHref overrides the manifest href of the cover, e.g. to point at a
	// missing entry or to use an absolute path.
	CoverHref string

	// PackageDir is the directory holding content.opf, "OEBPS" by default.
	// Use "." for the archive root.
	PackageDir string

	OmitContainer bool
	OmitPackage   bool
	// RawOPF replaces the generated package document.
	RawOPF string
	// RawContainer replaces the generated container descriptor.
	RawContainer string
}

// TempDir creates a temporary directory for testing and registers cleanup.
// The directory is automatically removed when the test completes.
func TempDir(t *testing.T, pattern string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

// WriteFile creates a file with the given content in the specified directory.
// Returns the full path to the created file.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return path
}

// WriteSizedFile creates a file of exactly size bytes that is not a ZIP.
func WriteSizedFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	content := make([]byte, size)
	for i := range content {
		content[i] = 'x'
	}
	return WriteFile(t, dir, name, content)
}

// FileExists checks if a file exists at the given path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadFile reads and returns the contents of a file.
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file %s: %v", path, err)
	}
	return data
}
