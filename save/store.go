// Package save persists Z-machine snapshots: a compact CBOR encoding of
// vm.Snapshot and a set of slot stores keyed by story and slot name.
package save

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("storyvm.save")

var (
	// ErrNotFound is returned when a slot holds no save.
	ErrNotFound = errors.New("save not found")
	// ErrUnknownBackend is returned by Open for an unrecognised backend.
	ErrUnknownBackend = errors.New("unknown save backend")
)

// Entry describes a stored save.
type Entry struct {
	ID    string // unique per Put
	Story string
	Slot  string
	Size  int
	Saved time.Time
}

// Store keeps encoded saves. Story is a vm.StoryID string and slot a
// player-chosen name; a Put to an existing slot replaces it.
type Store interface {
	Put(ctx context.Context, story, slot string, data []byte) (Entry, error)
	Get(ctx context.Context, story, slot string) ([]byte, error)
	List(ctx context.Context, story string) ([]Entry, error)
	Delete(ctx context.Context, story, slot string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Open creates the store for a backend. path is ignored by the memory
// backend.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendBolt:
		return OpenBolt(path)
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", backend)
	}
}

func newEntry(story, slot string, size int) Entry {
	return Entry{
		ID:    uuid.NewString(),
		Story: story,
		Slot:  slot,
		Size:  size,
		Saved: time.Now().UTC(),
	}
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Slot < entries[j].Slot
	})
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

type memoryItem struct {
	entry Entry
	data  []byte
}

// MemoryStore keeps saves in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]map[string]memoryItem
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]map[string]memoryItem)}
}

func (s *MemoryStore) Put(ctx context.Context, story, slot string, data []byte) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := s.items[story]
	if slots == nil {
		slots = make(map[string]memoryItem)
		s.items[story] = slots
	}
	e := newEntry(story, slot, len(data))
	slots[slot] = memoryItem{entry: e, data: append([]byte(nil), data...)}
	return e, nil
}

func (s *MemoryStore) Get(ctx context.Context, story, slot string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[story][slot]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), item.data...), nil
}

func (s *MemoryStore) List(ctx context.Context, story string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []Entry
	for _, item := range s.items[story] {
		entries = append(entries, item.entry)
	}
	sortEntries(entries)
	return entries, nil
}

func (s *MemoryStore) Delete(ctx context.Context, story, slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[story][slot]; !ok {
		return ErrNotFound
	}
	delete(s.items[story], slot)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
