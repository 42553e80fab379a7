// Package epub reads EPUB containers: the ZIP archive, its container
// descriptor, and the package document's metadata and cover.
package epub

import (
	"context"
)

// Parse opens the EPUB at path and extracts its package metadata.
func Parse(ctx context.Context, path string) (*Metadata, error) {
	a, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	return ParseArchive(ctx, a)
}

// ParseArchive locates the package document inside an already opened archive
// and parses it.
func ParseArchive(ctx context.Context, a *Archive) (*Metadata, error) {
	packagePath, err := LocatePackageDocument(a)
	if err != nil {
		return nil, err
	}
	return ParsePackage(ctx, a, packagePath)
}
