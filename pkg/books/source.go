package books

// Source is the closed set of places a book can come from: LocalSource or
// KomgaSource.
type Source interface {
	sourceName() string
}

// LocalSource is a book imported from the device.
type LocalSource struct{}

func (LocalSource) sourceName() string { return SourceLocal }

// KomgaSource is a book linked to a remote Komga catalog. Both ids are
// required.
type KomgaSource struct {
	BookID   string `validate:"required"`
	ServerID string `validate:"required"`
}

func (KomgaSource) sourceName() string { return SourceKomga }

// SourceName returns the stored name of src; nil is local.
func SourceName(src Source) string {
	if src == nil {
		return SourceLocal
	}
	return src.sourceName()
}
