// Package state is the engine's scratch store: job records, execution
// history, rate-limit counters and last-run markers, all TTL'd. Entries are
// best-effort — eviction loses history, never correctness.
package state

import (
	"encoding/json"
	"sync"
	"time"
)

type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, val []byte, ttl time.Duration)
	Forget(key string)
}

// GetJSON decodes the value at key into out; false if absent or undecodable.
func GetJSON(s Store, key string, out any) bool {
	b, ok := s.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(b, out) == nil
}

func PutJSON(s Store, key string, v any, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.Put(key, b, ttl)
}

type memEntry struct {
	val     []byte
	expires time.Time // zero = no expiry
}

// Memory is the in-process Store. The clock is injectable for tests.
type Memory struct {
	mu  sync.Mutex
	m   map[string]memEntry
	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]memEntry), Now: time.Now}
}

func (s *Memory) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !s.Now().Before(e.expires) {
		delete(s.m, key)
		return nil, false
	}
	return e.val, true
}

func (s *Memory) Put(key string, val []byte, ttl time.Duration) {
	e := memEntry{val: val}
	if ttl > 0 {
		e.expires = s.Now().Add(ttl)
	}
	s.mu.Lock()
	s.m[key] = e
	s.mu.Unlock()
}

func (s *Memory) Forget(key string) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}
