// Package metadata validates picked EPUB files and extracts their metadata
// for import. Validation fails fast with a user-facing error; extraction never
// fails.
package metadata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelvr/shelvr/pkg/config"
	"github.com/shelvr/shelvr/pkg/epub"
	"github.com/shelvr/shelvr/pkg/errcodes"
)

const (
	unknownTitle = "Unknown Title"

	WarningLargeFile = "This is a very large ePUB file and may take longer to load."
	WarningNotZip    = "This file does not look like a ZIP archive; its metadata may not be readable."
)

type ValidationResult struct {
	Warnings []string
}

type Service struct {
	minSize  int64
	warnSize int64
}

func NewService(cfg *config.Config) *Service {
	return &Service{
		minSize:  cfg.EpubMinSizeBytes,
		warnSize: cfg.EpubWarnSizeBytes,
	}
}

// Validate checks, in order, that path exists, carries a .epub extension, and
// is large enough to be an EPUB. Any failure is an *errcodes.Error. Oversized
// files and files whose content doesn't sniff as a ZIP pass with a warning.
func (svc *Service) Validate(ctx context.Context, path string) (*ValidationResult, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"path": path})

	info, err := os.Stat(path)
	if err != nil {
		var e *errcodes.Error
		switch {
		case os.IsNotExist(err):
			e = errcodes.Wrap(errcodes.CodeFileNotFound, err, path)
		case os.IsPermission(err):
			e = errcodes.Wrap(errcodes.CodePermissionDenied, err, path)
		default:
			e = errcodes.Wrap(errcodes.CodeUnknownError, err, path)
		}
		log.Warn("epub validation failed", logger.Data{"detail": e.LogDetail()})
		return nil, e
	}

	if !strings.HasSuffix(strings.ToLower(path), ".epub") {
		return nil, errcodes.New(errcodes.CodeInvalidExtension, path)
	}

	if info.IsDir() {
		return nil, errcodes.New(errcodes.CodeInvalidStructure, "path is a directory")
	}

	size := info.Size()
	if size < svc.minSize {
		return nil, errcodes.New(errcodes.CodeFileTooSmall, fmt.Sprintf("file size %d bytes is too small", size))
	}

	result := &ValidationResult{}
	if svc.warnSize > 0 && size > svc.warnSize {
		result.Warnings = append(result.Warnings, WarningLargeFile)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		log.Warn("can't detect the mime type of the file", logger.Data{"err": err.Error()})
	} else if !isZip(mtype) {
		log.Info("file content is not a zip archive", logger.Data{"mimetype": mtype.String()})
		result.Warnings = append(result.Warnings, WarningNotZip)
	}

	return result, nil
}

// Extract reads the EPUB at path and returns its metadata. It never fails: an
// unreadable archive degrades to a title derived from the filename and no
// authors, and a missing title is filled in the same way.
func (svc *Service) Extract(ctx context.Context, path string) *epub.Metadata {
	log := logger.FromContext(ctx).Data(logger.Data{"path": path})

	md, err := epub.Parse(ctx, path)
	if err != nil {
		detail := err.Error()
		var e *errcodes.Error
		if errors.As(err, &e) {
			detail = e.LogDetail()
		}
		log.Warn("couldn't parse epub; falling back to filename", logger.Data{"detail": detail})
		return &epub.Metadata{Title: TitleFromFilename(path)}
	}

	if md.Title == "" {
		log.Info("no title found in metadata; using filename")
		md.Title = TitleFromFilename(path)
	}

	return md
}

// TitleFromFilename turns ".../My_Book.epub" into "My Book".
func TitleFromFilename(path string) string {
	name := filepath.Base(path)
	if strings.HasSuffix(strings.ToLower(name), ".epub") {
		name = name[:len(name)-len(".epub")]
	}
	name = strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return unknownTitle
	}
	return name
}

// isZip reports whether mtype is a ZIP or one of its descendants (EPUB, ...).
func isZip(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}
