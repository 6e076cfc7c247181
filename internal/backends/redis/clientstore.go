package redis

import (
	"clientreg/internal/backends/memory"
	"clientreg/internal/types"
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	clientKeyNameTemplate = "_clientreg_client_%s"
)

// ClientStore keeps each client as a JSON string. Insert uses SETNX so a CNPJ can only be
// claimed once.
type ClientStore struct {
	cli *redis.Client
}

func NewClientStore(cli *redis.Client) *ClientStore {
	return &ClientStore{cli: cli}
}

func (s *ClientStore) load(ctx context.Context, cnpj string) (types.Client, error) {
	out := s.cli.Get(ctx, getClientKey(cnpj))
	if out.Err() != nil {
		if errors.Is(out.Err(), redis.Nil) {
			return types.Client{}, types.ErrNotFound
		}
		return types.Client{}, out.Err()
	}
	var c types.Client
	if err := json.Unmarshal([]byte(out.Val()), &c); err != nil {
		return types.Client{}, err
	}
	return c, nil
}

func (s *ClientStore) Exists(ctx context.Context, cnpj string) (bool, error) {
	n, err := s.cli.Exists(ctx, getClientKey(cnpj)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *ClientStore) Insert(ctx context.Context, client types.Client) error {
	out, err := json.Marshal(client)
	if err != nil {
		return err
	}
	ok, err := s.cli.SetNX(ctx, getClientKey(client.CNPJ), string(out), 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return types.ErrConflict
	}
	return nil
}

// all loads every stored client.
func (s *ClientStore) all(ctx context.Context) ([]types.Client, error) {
	var keys []string
	iter := s.cli.Scan(ctx, 0, getClientKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := s.cli.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	clients := make([]types.Client, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Deleted between SCAN and MGET.
			continue
		}
		var c types.Client
		if err := json.Unmarshal([]byte(str), &c); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}

func (s *ClientStore) List(ctx context.Context) ([]types.ClientView, error) {
	clients, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]types.ClientView, 0, len(clients))
	for _, c := range clients {
		views = append(views, c.View())
	}
	memory.SortByNome(views)
	return views, nil
}

func (s *ClientStore) Get(ctx context.Context, cnpj string) (types.ClientView, error) {
	c, err := s.load(ctx, cnpj)
	if err != nil {
		return types.ClientView{}, err
	}
	return c.View(), nil
}

func (s *ClientStore) SecretFor(ctx context.Context, cnpj string) (string, error) {
	c, err := s.load(ctx, cnpj)
	if err != nil {
		return "", err
	}
	return c.SecretEncrypted, nil
}

func (s *ClientStore) Delete(ctx context.Context, cnpj string) (bool, error) {
	n, err := s.cli.Del(ctx, getClientKey(cnpj)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *ClientStore) Secrets(ctx context.Context) (map[string]string, error) {
	clients, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(clients))
	for _, c := range clients {
		out[c.SecretEncrypted] = c.Nome
	}
	return out, nil
}

func (s *ClientStore) ClearAll(ctx context.Context) error {
	out := s.cli.Keys(ctx, getClientKey("*"))
	if out.Err() != nil {
		return out.Err()
	}
	keys := out.Val()
	if len(keys) == 0 {
		return nil
	}
	return s.cli.Del(ctx, keys...).Err()
}

func getClientKey(cnpj string) string {
	return fmt.Sprintf(clientKeyNameTemplate, cnpj)
}
