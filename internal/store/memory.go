package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is the default EntityStore: an in-process ordered map that
// the snapshot manager rehydrates at startup and serializes across
// restart/upgrade boundaries. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	keys     []string // sorted, mirrors data
	size     int64    // sum of key+value bytes
	maxBytes int64    // 0 = unlimited
}

// NewMemoryStore creates an empty store. maxBytes bounds the total size of
// keys plus values; zero disables the bound.
func NewMemoryStore(maxBytes int64) *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte), maxBytes: maxBytes}
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entrySize := int64(len(key) + len(value))
	newSize := s.size + entrySize
	if old, ok := s.data[key]; ok {
		newSize -= int64(len(key) + len(old))
	}
	if s.maxBytes > 0 && newSize > s.maxBytes {
		return ErrExhausted
	}

	if _, ok := s.data[key]; !ok {
		i := sort.SearchStrings(s.keys, key)
		s.keys = append(s.keys, "")
		copy(s.keys[i+1:], s.keys[i:])
		s.keys[i] = key
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
	s.size = newSize
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil
	}
	delete(s.data, key)
	s.size -= int64(len(key) + len(v))
	i := sort.SearchStrings(s.keys, key)
	if i < len(s.keys) && s.keys[i] == key {
		s.keys = append(s.keys[:i], s.keys[i+1:]...)
	}
	return nil
}

func (s *MemoryStore) ScanPrefix(_ context.Context, prefix string, fn func(key string, value []byte) error) error {
	// Snapshot the matching range under the read lock so fn runs without
	// holding it.
	s.mu.RLock()
	start := sort.SearchStrings(s.keys, prefix)
	var matched []string
	for i := start; i < len(s.keys) && strings.HasPrefix(s.keys[i], prefix); i++ {
		matched = append(matched, s.keys[i])
	}
	values := make([][]byte, len(matched))
	for i, k := range matched {
		v := s.data[k]
		values[i] = make([]byte, len(v))
		copy(values[i], v)
	}
	s.mu.RUnlock()

	for i, k := range matched {
		if err := fn(k, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Size reports the total stored bytes (keys plus values).
func (s *MemoryStore) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}
