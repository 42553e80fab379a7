package testgen

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path"
	"testing"
)

// GenerateEPUB creates an EPUB file at dir/filename with the given options
// and returns its path.
func GenerateEPUB(t *testing.T, dir, filename string, opts EPUBOptions) string {
	t.Helper()
	return WriteFile(t, dir, filename, GenerateEPUBBytes(t, opts))
}

// GenerateEPUBBytes builds the EPUB in memory. It contains mimetype,
// container.xml, content.opf with metadata, chapter1.xhtml, and optionally a
// cover image.
func GenerateEPUBBytes(t *testing.T, opts EPUBOptions) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	// 1. mimetype - must be first and uncompressed
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		t.Fatalf("failed to create mimetype entry: %v", err)
	}
	if _, err := w.Write([]byte("application/epub+zip")); err != nil {
		t.Fatalf("failed to write mimetype: %v", err)
	}

	pkgDir := opts.PackageDir
	if pkgDir == "" {
		pkgDir = "OEBPS"
	}
	opfPath := path.Join(pkgDir, "content.opf")

	// 2. META-INF/container.xml
	if !opts.OmitContainer {
		containerXML := opts.RawContainer
		if containerXML == "" {
			containerXML = fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="%s" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`, opfPath)
		}
		writeEntry(t, zw, "META-INF/container.xml", []byte(containerXML))
	}

	// 3. Cover image
	coverMimeType := opts.CoverMimeType
	if coverMimeType == "" {
		coverMimeType = "image/png"
	}
	var coverHref string
	if opts.HasCover {
		coverHref = "images/cover.png"
		if coverMimeType == "image/jpeg" {
			coverHref = "images/cover.jpg"
		}
		writeEntry(t, zw, path.Join(pkgDir, coverHref), GenerateImage(t, coverMimeType))
		if opts.CoverHref != "" {
			coverHref = opts.CoverHref
		}
	}

	// 4. Package document
	if !opts.OmitPackage {
		opf := opts.RawOPF
		if opf == "" {
			opf = generateOPF(opts, coverHref, coverMimeType)
		}
		writeEntry(t, zw, opfPath, []byte(opf))
	}

	// 5. Chapter, stored uncompressed so every generated book clears the
	// minimum EPUB size.
	chapter, err := zw.CreateHeader(&zip.FileHeader{
		Name:   path.Join(pkgDir, "chapter1.xhtml"),
		Method: zip.Store,
	})
	if err != nil {
		t.Fatalf("failed to create chapter entry: %v", err)
	}
	if _, err := chapter.Write([]byte(chapterContent)); err != nil {
		t.Fatalf("failed to write chapter: %v", err)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finalize EPUB: %v", err)
	}
	return buf.Bytes()
}

const chapterContent = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>Chapter 1</title>
</head>
<body>
  <h1>Chapter 1</h1>
  <p>This is a test chapter. It exists so that the package has a spine item to
  point at and so that the archive has the heft of a real book.</p>
  <p>The morning fog had not yet lifted from the harbor when the ferry pulled
  away from the pier, its horn low and patient over the water. Gulls wheeled
  above the stern, quarrelling over scraps, and a boy in a yellow coat leaned
  on the rail to watch the town grow small behind them.</p>
  <p>By noon the wind had turned. Clouds stacked up in the west like folded
  linen, grey at the edges, and the captain called for the passengers to keep
  below. Nobody listened. They stood along the deck in twos and threes, hands
  in pockets, looking at the islands that rose one after another out of the
  sea, each one greener and stranger than the last.</p>
  <p>When the first drops fell the boy went inside, found an empty bench by the
  window, and opened the book his grandmother had pressed into his hands at the
  station. The spine cracked. The pages smelled of dust and oranges.</p>
</body>
</html>`

func generateOPF(opts EPUBOptions, coverHref, coverMimeType string) string {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
`)

	// Title - only include if provided (allows testing filename fallback)
	if opts.Title != "" {
		fmt.Fprintf(&buf, "    <dc:title id=\"title\">%s</dc:title>\n", escapeXML(opts.Title))
	}
	for i, author := range opts.Authors {
		fmt.Fprintf(&buf, "    <dc:creator id=\"creator%d\" opf:role=\"aut\">%s</dc:creator>\n", i, escapeXML(author))
	}
	if opts.Description != "" {
		fmt.Fprintf(&buf, "    <dc:description>%s</dc:description>\n", escapeXML(opts.Description))
	}

	buf.WriteString("    <dc:identifier id=\"bookid\">urn:uuid:test-book-id</dc:identifier>\n")
	language := opts.Language
	if language == "" {
		language = "en"
	}
	fmt.Fprintf(&buf, "    <dc:language>%s</dc:language>\n", escapeXML(language))
	if opts.PublishedDate != "" {
		fmt.Fprintf(&buf, "    <dc:date>%s</dc:date>\n", escapeXML(opts.PublishedDate))
	}

	if opts.Series != "" {
		index := opts.SeriesIndexRaw
		if index == "" && opts.SeriesNumber != nil {
			index = fmt.Sprintf("%g", *opts.SeriesNumber)
		}
		switch opts.SeriesStyle {
		case SeriesCollection:
			fmt.Fprintf(&buf, "    <meta property=\"belongs-to-collection\" id=\"c01\">%s</meta>\n", escapeXML(opts.Series))
			buf.WriteString("    <meta refines=\"#c01\" property=\"collection-type\">series</meta>\n")
			if index != "" {
				fmt.Fprintf(&buf, "    <meta refines=\"#c01\" property=\"group-position\">%s</meta>\n", escapeXML(index))
			}
		default:
			fmt.Fprintf(&buf, "    <meta name=\"calibre:series\" content=\"%s\"/>\n", escapeXML(opts.Series))
			if index != "" {
				fmt.Fprintf(&buf, "    <meta name=\"calibre:series_index\" content=\"%s\"/>\n", escapeXML(index))
			}
		}
	}

	coverID, coverProps := "", ""
	if coverHref != "" {
		switch opts.CoverStrategy {
		case CoverByProperties:
			coverID, coverProps = "img-main", " properties=\"cover-image\""
		case CoverByID:
			coverID = "book-cover-art"
		case CoverByConventionalID:
			coverID = "Cover-Image"
		default:
			coverID = "img-main"
			buf.WriteString("    <meta name=\"cover\" content=\"img-main\"/>\n")
		}
	}

	buf.WriteString("  </metadata>\n")

	buf.WriteString("  <manifest>\n")
	buf.WriteString("    <item id=\"chapter1\" href=\"chapter1.xhtml\" media-type=\"application/xhtml+xml\"/>\n")
	if coverHref != "" {
		fmt.Fprintf(&buf, "    <item id=\"%s\" href=\"%s\" media-type=\"%s\"%s/>\n", coverID, escapeXML(coverHref), coverMimeType, coverProps)
	}
	buf.WriteString("  </manifest>\n")

	buf.WriteString("  <spine>\n")
	buf.WriteString("    <itemref idref=\"chapter1\"/>\n")
	buf.WriteString("  </spine>\n")

	buf.WriteString("</package>")

	return buf.String()
}

// ZipEntries builds a ZIP archive holding exactly the given entries, for
// tests that need hand-made layouts.
func ZipEntries(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		writeEntry(t, zw, name, data)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finalize zip: %v", err)
	}
	return buf.Bytes()
}

func writeEntry(t *testing.T, zw *zip.Writer, name string, data []byte) {
	t.Helper()
	w, err := zw.Create(name)
	if err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

// GenerateImage returns a small solid-color image encoded as mimeType.
func GenerateImage(t *testing.T, mimeType string) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	blue := color.RGBA{0, 100, 200, 255}
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, blue)
		}
	}

	var buf bytes.Buffer
	switch mimeType {
	case "image/jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			t.Fatalf("failed to encode JPEG: %v", err)
		}
	default: // image/png
		if err := png.Encode(&buf, img); err != nil {
			t.Fatalf("failed to encode PNG: %v", err)
		}
	}

	return buf.Bytes()
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	for _, r := range s {
		switch r {
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '&':
			buf.WriteString("&amp;")
		case '"':
			buf.WriteString("&quot;")
		case '\'':
			buf.WriteString("&apos;")
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}
