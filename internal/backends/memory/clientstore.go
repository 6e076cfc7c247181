package memory

import (
	"clientreg/internal/types"
	"context"
	"sort"
	"sync"
)

// ClientStore keeps clients in process. It is meant for local development and tests;
// nothing survives a restart.
type ClientStore struct {
	mu      sync.RWMutex
	clients map[string]types.Client
}

func NewClientStore() *ClientStore {
	return &ClientStore{clients: make(map[string]types.Client)}
}

func (s *ClientStore) Exists(_ context.Context, cnpj string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clients[cnpj]
	return ok, nil
}

func (s *ClientStore) Insert(_ context.Context, client types.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client.CNPJ]; ok {
		return types.ErrConflict
	}
	s.clients[client.CNPJ] = client
	return nil
}

func (s *ClientStore) List(_ context.Context) ([]types.ClientView, error) {
	s.mu.RLock()
	out := make([]types.ClientView, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c.View())
	}
	s.mu.RUnlock()
	SortByNome(out)
	return out, nil
}

func (s *ClientStore) Get(_ context.Context, cnpj string) (types.ClientView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[cnpj]
	if !ok {
		return types.ClientView{}, types.ErrNotFound
	}
	return c.View(), nil
}

func (s *ClientStore) SecretFor(_ context.Context, cnpj string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[cnpj]
	if !ok {
		return "", types.ErrNotFound
	}
	return c.SecretEncrypted, nil
}

func (s *ClientStore) Delete(_ context.Context, cnpj string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[cnpj]; !ok {
		return false, nil
	}
	delete(s.clients, cnpj)
	return true, nil
}

func (s *ClientStore) Secrets(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.clients))
	for _, c := range s.clients {
		out[c.SecretEncrypted] = c.Nome
	}
	return out, nil
}

func (s *ClientStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	s.clients = make(map[string]types.Client)
	s.mu.Unlock()
	return nil
}

// SortByNome orders views by Nome, breaking ties by CNPJ so the order is stable.
// Backends without server-side ordering use it.
func SortByNome(views []types.ClientView) {
	sort.Slice(views, func(i, j int) bool {
		if views[i].Nome != views[j].Nome {
			return views[i].Nome < views[j].Nome
		}
		return views[i].CNPJ < views[j].CNPJ
	})
}
