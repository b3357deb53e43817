package colorcache

import (
	"sort"
	"sync"

	"github.com/nerrad567/moodring/internal/palette"
)

// State is the lifecycle stage of a cache entry.
type State int

const (
	// StateAbsent means no lookup has ever started for the key.
	StateAbsent State = iota

	// StatePending means a lookup is in flight (placeholder).
	StatePending

	// StateResolved means a non-empty palette is stored.
	StateResolved
)

// String returns the state name used by the status API.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	default:
		return "absent"
	}
}

// Key identifies a track for caching purposes.
type Key struct {
	Artist string `json:"artist"`
	Album  string `json:"album"`
}

// String returns the artist and album joined without a delimiter, for logs.
func (k Key) String() string {
	return k.Artist + k.Album
}

// Entry is a snapshot of one cache slot.
type Entry struct {
	Key     Key             `json:"key"`
	State   State           `json:"-"`
	Colors  palette.Palette `json:"colors,omitempty"`
	Pending bool            `json:"pending"`
}

type entry struct {
	colors  palette.Palette
	pending bool
}

// Cache maps track keys to palettes.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]entry)}
}

// Lookup returns the stored palette and the entry's state.
// The palette is nil unless the state is StateResolved.
func (c *Cache) Lookup(k Key) (palette.Palette, State) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[k]
	switch {
	case !ok:
		return nil, StateAbsent
	case e.pending:
		return nil, StatePending
	default:
		return e.colors.Clone(), StateResolved
	}
}

// Contains reports whether the key has any entry, pending or resolved.
func (c *Cache) Contains(k Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[k]
	return ok
}

// Reserve inserts a pending placeholder if the key is absent.
//
// Returns:
//   - bool: true if the placeholder was inserted and the caller owns the lookup
func (c *Cache) Reserve(k Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[k]; ok {
		return false
	}
	c.entries[k] = entry{pending: true}
	return true
}

// Store replaces the entry for k with a resolved palette.
// An empty palette is ignored; callers store the sentinel instead.
func (c *Cache) Store(k Key, p palette.Palette) {
	if len(p) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = entry{colors: p.Clone()}
}

// Release removes a pending placeholder so the key can be looked up again.
// Resolved entries are left untouched.
func (c *Cache) Release(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[k]; ok && e.pending {
		delete(c.entries, k)
	}
}

// Len returns the number of entries, pending included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns every entry sorted by artist then album.
func (c *Cache) Snapshot() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for k, e := range c.entries {
		state := StateResolved
		if e.pending {
			state = StatePending
		}
		out = append(out, Entry{
			Key:     k,
			State:   state,
			Colors:  e.colors.Clone(),
			Pending: e.pending,
		})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Artist != out[j].Key.Artist {
			return out[i].Key.Artist < out[j].Key.Artist
		}
		return out[i].Key.Album < out[j].Key.Album
	})
	return out
}
