package feed

import (
	"sync"
	"time"
)

// urlSentinel is the SeenSet entry that carries the last observed page URL.
// Record keys always have a tier prefix, so it cannot collide with one.
const urlSentinel = "__url__"

// SeenSet holds the records already emitted for one page.
type SeenSet struct {
	entries map[string]Record
}

// NewSeenSet returns an empty set.
func NewSeenSet() *SeenSet {
	return &SeenSet{entries: make(map[string]Record)}
}

// Observe records url in the sentinel entry. If it differs from the last
// observed URL the set is cleared first, and Observe reports true.
func (s *SeenSet) Observe(url string) bool {
	last, ok := s.entries[urlSentinel]
	if ok && last.Link == url {
		return false
	}
	cleared := ok && len(s.entries) > 1
	s.entries = map[string]Record{urlSentinel: {Link: url}}
	return cleared
}

// URL returns the last observed page URL.
func (s *SeenSet) URL() string {
	return s.entries[urlSentinel].Link
}

// Has reports whether key was seen.
func (s *SeenSet) Has(key string) bool {
	_, ok := s.entries[key]
	return ok
}

// Add stores rec under key.
func (s *SeenSet) Add(key string, rec Record) {
	s.entries[key] = rec
}

// Len counts seen records, not the sentinel.
func (s *SeenSet) Len() int {
	if _, ok := s.entries[urlSentinel]; ok {
		return len(s.entries) - 1
	}
	return len(s.entries)
}

// Clear empties the set, sentinel included.
func (s *SeenSet) Clear() {
	s.entries = make(map[string]Record)
}

// Engine turns full scrapes into deltas of unseen records.
type Engine struct {
	mu   sync.Mutex
	seen *SeenSet
	now  func() time.Time
}

// NewEngine returns an engine with an empty SeenSet.
func NewEngine() *Engine {
	return &Engine{seen: NewSeenSet(), now: time.Now}
}

// Diff keeps the records whose identity key is new, remembers them and
// returns them with the new set size. A URL different from the previous
// call's resets the set before anything else.
func (e *Engine) Diff(url string, records []Record) Delta {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seen.Observe(url)

	fresh := make([]Record, 0)
	for _, rec := range records {
		key := rec.IdentityKey()
		if e.seen.Has(key) {
			continue
		}
		e.seen.Add(key, rec)
		fresh = append(fresh, rec)
	}

	return Delta{
		NewFeeds:   fresh,
		TotalCount: e.seen.Len(),
		Timestamp:  e.now().UTC(),
		URL:        url,
	}
}

// Len returns the number of records seen on the current page.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seen.Len()
}

// Reset forgets the current page, as on unload.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen.Clear()
}
