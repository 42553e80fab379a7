package reader

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shelvr/shelvr/pkg/books"
)

// significanceEpsilon absorbs float noise so that 0.43 - 0.42 counts as a
// full 0.01 step.
const significanceEpsilon = 1e-9

// ProgressStore is where a Tracker persists progress.
type ProgressStore interface {
	UpsertReadingProgress(ctx context.Context, progress *books.ReadingProgress) error
}

// LocationEvent is one position report from the rendering engine.
type LocationEvent struct {
	CFI string
	// Percentage is nil while the engine can't compute it yet.
	Percentage   *float64
	Chapter      string
	ChapterTitle string
}

// Position is what the reader currently shows.
type Position struct {
	CFI          string
	Percentage   float64
	ChapterTitle string
}

type TrackerOptions struct {
	Debounce     time.Duration
	MinDelta     float64
	FlushOnClose bool
	Clock        Clock
	// OnSaved is called after every successful write, outside the tracker's
	// lock.
	OnSaved func(progress *books.ReadingProgress)
}

// Tracker turns a stream of location events for one open book into
// debounced progress writes. A write is scheduled only for a significant
// move, and each new schedule replaces the pending one so a burst of events
// yields a single write of the last event.
type Tracker struct {
	bookID string
	store  ProgressStore
	opts   TrackerOptions
	log    logger.Logger

	mu       sync.Mutex
	position Position

	saved           bool
	savedCFI        string
	savedPercentage float64

	pending    Timer
	pendingRow *books.ReadingProgress
	generation uint64
	closed     bool

	// writeMu keeps writes strictly ordered even if one outlives the
	// debounce window.
	writeMu sync.Mutex
}

// NewTracker returns a tracker for bookID. Writes happen on timer goroutines
// and log through the logger carried by ctx.
func NewTracker(ctx context.Context, bookID string, store ProgressStore, opts TrackerOptions) *Tracker {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	return &Tracker{
		bookID: bookID,
		store:  store,
		opts:   opts,
		log:    logger.FromContext(ctx).Data(logger.Data{"book_id": bookID}),
	}
}

// Resume seeds the display state from stored progress so an unknown
// percentage early in the session doesn't read as 0.
func (t *Tracker) Resume(progress *books.ReadingProgress) {
	if progress == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.position.CFI = deref(progress.CFI)
	t.position.Percentage = progress.Percentage
	t.position.ChapterTitle = deref(progress.ChapterTitle)
}

// Position returns the current display state.
func (t *Tracker) Position() Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

// OnLocationEvent records a position report and schedules a write when the
// move is significant: nothing saved yet, a percentage change of at least
// MinDelta, or a different CFI.
func (t *Tracker) OnLocationEvent(ev LocationEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	if ev.Percentage != nil && !math.IsNaN(*ev.Percentage) {
		t.position.Percentage = min(1, max(0, *ev.Percentage))
	}
	t.position.CFI = ev.CFI
	t.position.ChapterTitle = ev.ChapterTitle

	effective := t.position.Percentage
	significant := !t.saved ||
		ev.CFI != t.savedCFI ||
		(ev.Percentage != nil && math.Abs(effective-t.savedPercentage)+significanceEpsilon >= t.opts.MinDelta)
	if !significant {
		return
	}

	row := &books.ReadingProgress{
		BookID:       t.bookID,
		CFI:          &ev.CFI,
		Percentage:   effective,
		Chapter:      optional(ev.Chapter),
		ChapterTitle: optional(ev.ChapterTitle),
	}
	t.schedule(row)
}

// schedule replaces any pending write with row. t.mu must be held.
func (t *Tracker) schedule(row *books.ReadingProgress) {
	if t.pending != nil {
		t.pending.Stop()
	}
	t.generation++
	gen := t.generation
	t.pendingRow = row
	t.pending = t.opts.Clock.AfterFunc(t.opts.Debounce, func() {
		t.fire(gen)
	})
}

func (t *Tracker) fire(gen uint64) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	if t.closed || gen != t.generation || t.pendingRow == nil {
		t.mu.Unlock()
		return
	}
	row := t.pendingRow
	t.pendingRow = nil
	t.pending = nil
	t.mu.Unlock()

	t.write(row)
}

// write persists row. Failures are logged and leave the last-saved marker
// untouched so the next event retries.
func (t *Tracker) write(row *books.ReadingProgress) {
	row.LastReadAt = t.opts.Clock.Now().UnixMilli()

	ctx := t.log.WithContext(context.Background())
	if err := t.store.UpsertReadingProgress(ctx, row); err != nil {
		t.log.Err(err).Error("failed to save reading progress", logger.Data{"percentage": row.Percentage})
		return
	}
	t.log.Debug("saved reading progress", logger.Data{"percentage": row.Percentage})

	t.mu.Lock()
	t.saved = true
	t.savedCFI = deref(row.CFI)
	t.savedPercentage = row.Percentage
	t.mu.Unlock()

	if t.opts.OnSaved != nil {
		t.opts.OnSaved(row)
	}
}

// Close ends the session. A pending write is dropped unless FlushOnClose is
// set, in which case it is written before Close returns.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	row := t.pendingRow
	if t.pending != nil {
		t.pending.Stop()
	}
	t.pending = nil
	t.pendingRow = nil
	t.mu.Unlock()

	if row == nil {
		return
	}
	if !t.opts.FlushOnClose {
		t.log.Debug("dropping pending progress write on close")
		return
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.write(row)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
