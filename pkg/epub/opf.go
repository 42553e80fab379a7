package epub

import (
	"context"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/shelvr/shelvr/pkg/errcodes"
	"github.com/shelvr/shelvr/pkg/htmlutil"
)

// Metadata is what a package document yields. Zero values mean "absent".
type Metadata struct {
	Title         string
	Authors       []string
	Description   string
	Language      string
	PublishedDate string
	Series        string
	SeriesIndex   *float64

	// CoverPath is the archive path of the selected cover, set even when the
	// entry turned out to be unreadable.
	CoverPath     string
	CoverMimeType string
	CoverData     []byte
}

// HasCover reports whether cover bytes were actually read.
func (m *Metadata) HasCover() bool {
	return len(m.CoverData) > 0
}

// manifestItem is one <item> of the manifest.
type manifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties string
}

func (i manifestItem) isImage() bool {
	return strings.HasPrefix(strings.ToLower(i.MediaType), "image/")
}

// ParsePackage reads the package document at packagePath and extracts
// bibliographic metadata and the cover image.
func ParsePackage(ctx context.Context, a *Archive, packagePath string) (*Metadata, error) {
	doc, err := a.ReadText(packagePath)
	if err != nil {
		return nil, errcodes.Wrap(errcodes.CodeMissingContent, err, packagePath)
	}

	md := parseMetadata(doc)

	items := parseManifest(doc)
	if item, ok := selectCover(doc, items); ok {
		loadCover(ctx, a, packagePath, item, md)
	}

	return md, nil
}

// parseMetadata extracts everything but the cover from the document text.
func parseMetadata(doc string) *Metadata {
	md := &Metadata{
		Title:         firstText(doc, "title"),
		Authors:       parseCreators(doc),
		Language:      firstText(doc, "language"),
		PublishedDate: firstText(doc, "date"),
	}

	for _, el := range findElements(doc, "description") {
		if d := htmlutil.PlainText(unwrapCDATA(el.text)); d != "" {
			md.Description = d
			break
		}
	}

	metas := findElements(doc, "meta")
	md.Series, md.SeriesIndex = namedSeries(metas)
	if md.Series == "" {
		md.Series, md.SeriesIndex = collectionSeries(metas)
	}

	return md
}

// parseCreators returns every creator in document order without duplicates.
func parseCreators(doc string) []string {
	var authors []string
	seen := map[string]bool{}
	for _, el := range findElements(doc, "creator") {
		name := el.textValue()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		authors = append(authors, name)
	}
	return authors
}

// namedSeries reads the name/content convention popularized by calibre:
// <meta name="calibre:series" content="..."/>. Any prefix is accepted.
func namedSeries(metas []element) (string, *float64) {
	var series, index string
	for _, m := range metas {
		switch strings.ToLower(localName(m.attr("name"))) {
		case "series":
			if series == "" {
				series = strings.TrimSpace(m.attr("content"))
			}
		case "series_index":
			if index == "" {
				index = strings.TrimSpace(m.attr("content"))
			}
		}
	}
	if series == "" {
		return "", nil
	}
	return series, parseIndex(index)
}

// collectionSeries reads the EPUB 3 refinement convention:
// <meta property="belongs-to-collection" id="c1">Name</meta> refined by
// <meta refines="#c1" property="group-position">2</meta>.
func collectionSeries(metas []element) (string, *float64) {
	var name, id string
	for _, m := range metas {
		if strings.EqualFold(m.attr("property"), "belongs-to-collection") {
			if v := m.textValue(); v != "" {
				name, id = v, m.attr("id")
				break
			}
		}
	}
	if name == "" {
		return "", nil
	}

	var fallback string
	for _, m := range metas {
		if !strings.EqualFold(m.attr("property"), "group-position") {
			continue
		}
		pos := m.textValue()
		if id != "" && strings.TrimPrefix(m.attr("refines"), "#") == id {
			return name, parseIndex(pos)
		}
		if fallback == "" {
			fallback = pos
		}
	}
	return name, parseIndex(fallback)
}

// parseIndex parses a series position. Anything that isn't a finite decimal
// is dropped rather than reported.
func parseIndex(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func parseManifest(doc string) []manifestItem {
	els := findElements(doc, "item")
	items := make([]manifestItem, 0, len(els))
	for _, el := range els {
		items = append(items, manifestItem{
			ID:         el.attr("id"),
			Href:       el.attr("href"),
			MediaType:  strings.TrimSpace(el.attr("media-type")),
			Properties: el.attr("properties"),
		})
	}
	return items
}

// resolveHref maps a manifest href onto an archive path. Hrefs are relative to
// the package document's directory unless they start with "/".
func resolveHref(packagePath, href string) string {
	if i := strings.IndexAny(href, "#?"); i >= 0 {
		href = href[:i]
	}
	href = decodeHref(href)
	if strings.HasPrefix(href, "/") {
		return strings.TrimPrefix(path.Clean(href), "/")
	}
	dir := path.Dir(packagePath)
	if dir == "." {
		return path.Clean(href)
	}
	return path.Join(dir, href)
}
