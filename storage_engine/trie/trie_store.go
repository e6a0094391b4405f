package trie

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// TrieStore serializes writers against each other while letting readers
// take an immutable snapshot without blocking writers and vice versa:
// the root pointer and its version are swapped under a short-lived
// rootLock; writeLock serializes the single-writer path that produces
// the next root.
type TrieStore struct {
	rootLock sync.Mutex
	root     Trie
	version  uint64

	writeLock sync.Mutex

	// cache is a bounded read-through cache of (snapshot version, key)
	// lookups. It exists purely to avoid re-walking the trie path for
	// repeat reads against a hot, frequently-re-read snapshot; a miss
	// always falls back to the authoritative snapshot walk, so the
	// cache is never a correctness dependency, only a speedup.
	cache *ristretto.Cache[string, []byte]
}

// NewStore returns an empty TrieStore with a small bounded read cache.
func NewStore() (*TrieStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e5,
		MaxCost:     1 << 20, // 1MiB of cached values
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("trie: building read cache: %w", err)
	}
	return &TrieStore{cache: cache}, nil
}

func (s *TrieStore) snapshot() (Trie, uint64) {
	s.rootLock.Lock()
	defer s.rootLock.Unlock()
	return s.root, s.version
}

func cacheKey(version uint64, key string) string {
	return strconv.FormatUint(version, 36) + "\x00" + key
}

// Get returns the value for key as of whichever snapshot is current at
// the time of the call.
func (s *TrieStore) Get(key string) ([]byte, bool) {
	snap, ver := s.snapshot()

	ck := cacheKey(ver, key)
	if v, ok := s.cache.Get(ck); ok {
		return v, true
	}

	v, ok := snap.Get(key)
	if ok {
		s.cache.Set(ck, v, int64(len(v)))
	}
	return v, ok
}

// Put installs a new value for key, publishing a new root snapshot.
// Writers are serialized by writeLock; readers never block on it.
func (s *TrieStore) Put(key string, value []byte) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	cur, _ := s.snapshot()
	next := cur.Put(key, value)

	s.rootLock.Lock()
	s.root = next
	s.version++
	s.rootLock.Unlock()
}

// Remove publishes a new root snapshot with key's value removed, if
// present.
func (s *TrieStore) Remove(key string) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	cur, _ := s.snapshot()
	next := cur.Remove(key)

	s.rootLock.Lock()
	s.root = next
	s.version++
	s.rootLock.Unlock()
}

// Close releases the read cache's background resources.
func (s *TrieStore) Close() {
	s.cache.Close()
}
