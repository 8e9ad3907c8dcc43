/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"container/list"
	"sync"
)

type keyStoreEntry[V any] struct {
	key   string
	value V
}

// keyStore is a bounded collection of per-key limiter states.
// When the store is full, the least recently used key is evicted.
type keyStore[V any] struct {
	maxKeys int

	mu      sync.Mutex
	order   *list.List // front is the most recently used key
	entries map[string]*list.Element
}

func newKeyStore[V any](maxKeys int) *keyStore[V] {
	return &keyStore[V]{
		maxKeys: maxKeys,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// getOrAdd returns the value stored for the key, making it with newValue when the key is not tracked yet.
func (s *keyStore[V]) getOrAdd(key string, newValue func() V) (value V, evicted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		s.order.MoveToFront(elem)
		return elem.Value.(*keyStoreEntry[V]).value, false
	}

	value = newValue()
	s.entries[key] = s.order.PushFront(&keyStoreEntry[V]{key: key, value: value})
	if len(s.entries) <= s.maxKeys {
		return value, false
	}

	oldest := s.order.Back()
	s.order.Remove(oldest)
	delete(s.entries, oldest.Value.(*keyStoreEntry[V]).key)
	return value, true
}

func (s *keyStore[V]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
