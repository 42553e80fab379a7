// Package locations caches the rendering engine's pagination table per book.
// The cache only saves time: every operation is best-effort, and a failure
// is logged and reported as a miss.
package locations

import (
	"context"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
)

// KeyPrefix namespaces cache keys: shelvr_locations_<bookID>.
const KeyPrefix = "shelvr_locations_"

type Cache struct {
	db *pebble.DB
}

// Open opens (creating if needed) the cache stored in dir.
func Open(dir string) (*Cache, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open locations cache")
	}
	return &Cache{db: db}, nil
}

// NewInMemory returns a cache that lives only as long as the process.
func NewInMemory() (*Cache, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open in-memory locations cache")
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return errors.WithStack(c.db.Close())
}

func key(bookID string) []byte {
	return []byte(KeyPrefix + bookID)
}

// Save replaces the stored table for bookID with locations.
func (c *Cache) Save(ctx context.Context, bookID string, locations []string) {
	if c == nil || c.db == nil {
		return
	}
	log := logger.FromContext(ctx).Data(logger.Data{"book_id": bookID})

	if locations == nil {
		locations = []string{}
	}
	value, err := json.Marshal(locations)
	if err != nil {
		log.Err(err).Warn("failed to encode locations")
		return
	}
	if err := c.db.Set(key(bookID), value, pebble.Sync); err != nil {
		log.Err(err).Warn("failed to save locations")
		return
	}
	log.Debug("saved locations", logger.Data{"count": len(locations)})
}

// Load returns the stored table for bookID. ok is false on a miss, including
// when the stored value can't be read.
func (c *Cache) Load(ctx context.Context, bookID string) (locations []string, ok bool) {
	if c == nil || c.db == nil {
		return nil, false
	}
	log := logger.FromContext(ctx).Data(logger.Data{"book_id": bookID})

	value, closer, err := c.db.Get(key(bookID))
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			log.Err(err).Warn("failed to load locations")
		}
		return nil, false
	}
	defer closer.Close()

	// value is only valid until closer is closed; Unmarshal copies out of it.
	if err := json.Unmarshal(value, &locations); err != nil {
		log.Err(err).Warn("stored locations are unreadable")
		return nil, false
	}
	return locations, true
}

// Remove drops the stored table for bookID, if any.
func (c *Cache) Remove(ctx context.Context, bookID string) {
	if c == nil || c.db == nil {
		return
	}
	if err := c.db.Delete(key(bookID), pebble.Sync); err != nil {
		logger.FromContext(ctx).Err(err).Warn("failed to remove locations", logger.Data{"book_id": bookID})
	}
}
