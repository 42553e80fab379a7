package epub

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shelvr/shelvr/pkg/errcodes"
)

// ErrEntryNotFound is returned when a path is not present in the archive.
var ErrEntryNotFound = errors.New("epub: entry not found")

// maxEntrySize caps how much a single entry may inflate to.
const maxEntrySize = 512 << 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Archive is a read-only view over a ZIP container with path lookup.
type Archive struct {
	zr     *zip.Reader
	files  map[string]*zip.File
	folded map[string]*zip.File
	closer io.Closer
}

// Open reads the central directory of a ZIP stream. A stream whose directory
// can't be parsed yields a CORRUPTED_ARCHIVE error.
func Open(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errcodes.Wrap(errcodes.CodeCorruptedArchive, err, "unreadable zip central directory")
	}

	a := &Archive{
		zr:     zr,
		files:  make(map[string]*zip.File, len(zr.File)),
		folded: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		if _, dup := a.files[f.Name]; !dup {
			a.files[f.Name] = f
		}
		lower := strings.ToLower(f.Name)
		if _, dup := a.folded[lower]; !dup {
			a.folded[lower] = f
		}
	}
	return a, nil
}

// OpenBytes opens an archive held entirely in memory.
func OpenBytes(data []byte) (*Archive, error) {
	return Open(bytes.NewReader(data), int64(len(data)))
}

// OpenFile opens the archive at path. The caller must Close it.
func OpenFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errcodes.Wrap(errcodes.CodeFileNotFound, err, path)
		}
		if os.IsPermission(err) {
			return nil, errcodes.Wrap(errcodes.CodePermissionDenied, err, path)
		}
		return nil, errors.WithStack(err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.WithStack(err)
	}

	a, err := Open(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f
	return a, nil
}

// Close releases the underlying file, if any.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return errors.WithStack(err)
}

// Entries returns every file path in the archive, sorted.
func (a *Archive) Entries() []string {
	names := make([]string, 0, len(a.files))
	for name := range a.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadText returns the entry decoded as UTF-8 text with any BOM removed.
func (a *Archive) ReadText(name string) (string, error) {
	b, err := a.ReadBinary(name)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimPrefix(b, utf8BOM)), nil
}

// ReadBinary returns the raw, decompressed bytes of the entry.
func (a *Archive) ReadBinary(name string) ([]byte, error) {
	f := a.lookup(name)
	if f == nil {
		return nil, errors.Wrapf(ErrEntryNotFound, "%q", name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open entry %q", name)
	}
	defer rc.Close()

	b, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read entry %q", name)
	}
	if len(b) > maxEntrySize {
		return nil, errors.Errorf("entry %q exceeds %d bytes", name, maxEntrySize)
	}
	return b, nil
}

// lookup tries an exact match first, then a case-insensitive one since some
// producers disagree with their own manifests about case.
func (a *Archive) lookup(name string) *zip.File {
	name = strings.TrimPrefix(name, "/")
	if f, ok := a.files[name]; ok {
		return f
	}
	return a.folded[strings.ToLower(name)]
}
