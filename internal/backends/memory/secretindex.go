package memory

import (
	"context"
	"maps"
	"sync"
)

type SecretIndex struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewSecretIndex() *SecretIndex {
	return &SecretIndex{entries: make(map[string]string)}
}

func (s *SecretIndex) Add(_ context.Context, secretEncrypted, nome string) error {
	s.mu.Lock()
	s.entries[secretEncrypted] = nome
	s.mu.Unlock()
	return nil
}

func (s *SecretIndex) Remove(_ context.Context, secretEncrypted string) error {
	s.mu.Lock()
	delete(s.entries, secretEncrypted)
	s.mu.Unlock()
	return nil
}

func (s *SecretIndex) Snapshot(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.entries), nil
}

func (s *SecretIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
