package epub

import (
	"context"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/robinjoseph08/golib/logger"
)

// conventionalCoverIDs are manifest ids producers commonly use for the cover
// image. They are compared without regard to case.
var conventionalCoverIDs = map[string]bool{
	"cover":       true,
	"cover-image": true,
	"cover_image": true,
	"coverimage":  true,
	"cover-img":   true,
	"book-cover":  true,
	"img-cover":   true,
}

// selectCover walks the manifest with each strategy in turn and returns the
// first hit:
//
//	A. properties contains the "cover-image" token
//	B. id contains "cover" and the item is an image
//	C. id is the target of <meta name="cover" content="...">
//	D. id is a conventional cover id (any case) and the item is an image
//
// B requires an image as well as D: an XHTML cover page with id "cover" is
// passed over, so a <meta name="cover"> image further down wins instead of
// a page being stored as the cover picture.
func selectCover(doc string, items []manifestItem) (manifestItem, bool) {
	for _, item := range items {
		for _, p := range strings.Fields(item.Properties) {
			if p == "cover-image" {
				return item, true
			}
		}
	}

	for _, item := range items {
		if strings.Contains(item.ID, "cover") && item.isImage() {
			return item, true
		}
	}

	if target := coverMetaTarget(doc); target != "" {
		for _, item := range items {
			if item.ID == target {
				return item, true
			}
		}
	}

	for _, item := range items {
		if conventionalCoverIDs[strings.ToLower(item.ID)] && item.isImage() {
			return item, true
		}
	}

	return manifestItem{}, false
}

func coverMetaTarget(doc string) string {
	for _, m := range findElements(doc, "meta") {
		if strings.EqualFold(m.attr("name"), "cover") {
			if c := strings.TrimSpace(m.attr("content")); c != "" {
				return c
			}
		}
	}
	return ""
}

// loadCover reads the selected item into md. A missing or unreadable entry is
// logged and leaves md without cover data.
func loadCover(ctx context.Context, a *Archive, packagePath string, item manifestItem, md *Metadata) {
	if item.Href == "" {
		return
	}

	coverPath := resolveHref(packagePath, item.Href)
	md.CoverPath = coverPath

	data, err := a.ReadBinary(coverPath)
	if err != nil {
		logger.FromContext(ctx).Warn("cover image unreadable; continuing without cover", logger.Data{
			"cover_path": coverPath,
			"error":      err.Error(),
		})
		return
	}

	md.CoverData = data
	md.CoverMimeType = item.MediaType
	if !strings.HasPrefix(strings.ToLower(md.CoverMimeType), "image/") {
		// Some producers leave media-type blank or wrong; trust the bytes.
		if detected := mimetype.Detect(data); strings.HasPrefix(detected.String(), "image/") {
			md.CoverMimeType = detected.String()
		}
	}
}

// decodeHref percent-decodes an href, keeping it as-is when malformed.
func decodeHref(href string) string {
	decoded, err := url.PathUnescape(href)
	if err != nil {
		return href
	}
	return decoded
}
