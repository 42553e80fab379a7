package library

import (
	"sort"
	"strings"
	"sync"

	"github.com/shelvr/shelvr/pkg/books"
	"github.com/shelvr/shelvr/pkg/sortname"
)

// SortOrder orders a library listing.
type SortOrder string

const (
	SortRecent SortOrder = "recent"
	SortTitle  SortOrder = "title"
	SortAuthor SortOrder = "author"
)

// ParseSortOrder maps a user-supplied order onto a SortOrder. Anything
// unrecognized yields false.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "", SortRecent:
		return SortRecent, true
	case SortTitle, SortAuthor:
		return o, true
	}
	return "", false
}

// BookWithProgress pairs a book with its reading progress, if any.
type BookWithProgress struct {
	*books.Book
	Progress *books.ReadingProgress `json:"progress,omitempty"`
}

// State is the in-memory library shared by every screen: books most
// recently updated first, plus progress by book id. It is safe for
// concurrent use.
type State struct {
	mu       sync.RWMutex
	books    []*books.Book
	progress map[string]*books.ReadingProgress
}

func NewState() *State {
	return &State{progress: map[string]*books.ReadingProgress{}}
}

// Replace swaps in a freshly loaded library.
func (s *State) Replace(list []*books.Book, progress []*books.ReadingProgress) {
	byBook := make(map[string]*books.ReadingProgress, len(progress))
	for _, p := range progress {
		byBook[p.BookID] = p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = append([]*books.Book(nil), list...)
	s.progress = byBook
}

// Add puts book at the front.
func (s *State) Add(book *books.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = append([]*books.Book{book}, s.books...)
}

// Update replaces the book with the same id and moves it to the front.
func (s *State) Update(book *books.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = append([]*books.Book{book}, removeByID(s.books, book.ID)...)
}

func (s *State) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = removeByID(s.books, id)
	delete(s.progress, id)
}

// SetProgress records progress for its book. Progress for a book that isn't
// in the library is ignored.
func (s *State) SetProgress(progress *books.ReadingProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.books {
		if b.ID == progress.BookID {
			s.progress[progress.BookID] = progress
			return
		}
	}
}

func (s *State) Get(id string) (BookWithProgress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.books {
		if b.ID == id {
			return BookWithProgress{Book: b, Progress: s.progress[id]}, true
		}
	}
	return BookWithProgress{}, false
}

func (s *State) Books() []BookWithProgress {
	return s.Search("")
}

// Search returns the books whose title or any author contains query,
// ignoring case. A blank query matches everything.
func (s *State) Search(query string) []BookWithProgress {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]BookWithProgress, 0, len(s.books))
	for _, b := range s.books {
		if query != "" && !matches(b, query) {
			continue
		}
		result = append(result, BookWithProgress{Book: b, Progress: s.progress[b.ID]})
	}
	return result
}

// Sorted returns the books matching query ordered by order. Ties keep their
// most-recent-first order.
func (s *State) Sorted(query string, order SortOrder) []BookWithProgress {
	result := s.Search(query)
	switch order {
	case SortTitle:
		sort.SliceStable(result, func(i, j int) bool {
			return titleKey(result[i].Book) < titleKey(result[j].Book)
		})
	case SortAuthor:
		sort.SliceStable(result, func(i, j int) bool {
			ai, aj := authorKey(result[i].Book), authorKey(result[j].Book)
			if ai != aj {
				return ai < aj
			}
			return titleKey(result[i].Book) < titleKey(result[j].Book)
		})
	}
	return result
}

func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books)
}

func matches(b *books.Book, query string) bool {
	if strings.Contains(strings.ToLower(b.Title), query) {
		return true
	}
	for _, a := range b.Authors {
		if strings.Contains(strings.ToLower(a), query) {
			return true
		}
	}
	return false
}

func removeByID(list []*books.Book, id string) []*books.Book {
	out := make([]*books.Book, 0, len(list))
	for _, b := range list {
		if b.ID != id {
			out = append(out, b)
		}
	}
	return out
}

func titleKey(b *books.Book) string {
	return strings.ToLower(sortname.ForTitle(b.Title))
}

// authorKey sorts books without authors last.
func authorKey(b *books.Book) string {
	if len(b.Authors) == 0 {
		return "\uffff"
	}
	return strings.ToLower(sortname.ForPerson(b.Authors[0]))
}
