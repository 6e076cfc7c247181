// Package registry registers, lists, looks up and deletes clients, keeping the response
// cache and the secret index consistent with the client store.
package registry

import (
	"clientreg/internal/metrics"
	"clientreg/internal/ports"
	"clientreg/internal/types"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	OpRegister     = "register"
	OpList         = "list"
	OpGet          = "get"
	OpDelete       = "delete"
	OpAuthenticate = "authenticate"
)

// Service coordinates the client store, response cache, secret index and secret generator.
// Side effects on the cache, the index and the publisher only follow a committed store write.
type Service struct {
	Store   ports.ClientStore
	Index   ports.SecretIndex
	Secrets ports.SecretGenerator

	// Pub and TopicArn are optional. When both are set, lifecycle events are published.
	Pub      ports.Publisher
	TopicArn string

	cache *coherentCache
}

func NewService(store ports.ClientStore, cache ports.ResponseCache, index ports.SecretIndex, secrets ports.SecretGenerator) *Service {
	return &Service{
		Store:   store,
		Index:   index,
		Secrets: secrets,
		cache:   newCoherentCache(cache),
	}
}

// Register stores a new client and returns its plaintext secret. The secret is only ever
// returned here.
func (s *Service) Register(ctx context.Context, cnpj, nome string) (string, error) {
	client := types.Client{CNPJ: cnpj, Nome: nome}
	client.Normalize()
	if err := types.RequireFields("cnpj", client.CNPJ, "nome", client.Nome); err != nil {
		return "", s.fail(OpRegister, client.CNPJ, err)
	}

	exists, err := timed(OpRegister, func() (bool, error) { return s.Store.Exists(ctx, client.CNPJ) })
	if err != nil {
		return "", s.fail(OpRegister, client.CNPJ, types.Err(types.ErrPersistence, err, ""))
	}
	if exists {
		return "", s.fail(OpRegister, client.CNPJ, types.ErrConflict)
	}

	plaintext, encrypted, err := s.Secrets.Generate()
	if err != nil {
		return "", s.fail(OpRegister, client.CNPJ, fmt.Errorf("generate secret: %w", err))
	}
	client.SecretEncrypted = encrypted

	_, err = timed(OpRegister, func() (struct{}, error) { return struct{}{}, s.Store.Insert(ctx, client) })
	if errors.Is(err, types.ErrConflict) {
		// Lost a race with a concurrent registration of the same CNPJ.
		return "", s.fail(OpRegister, client.CNPJ, types.ErrConflict)
	}
	if err != nil {
		return "", s.fail(OpRegister, client.CNPJ, types.Err(types.ErrPersistence, err, ""))
	}

	if err := s.Index.Add(ctx, encrypted, client.Nome); err != nil {
		log.WithError(err).WithField("cnpj", client.CNPJ).Error("failed to add client to secret index")
	}
	s.invalidate(ctx, OpRegister, client.CNPJ)
	s.publish(ctx, EventRegistered, client.View())

	s.succeed(OpRegister)
	return plaintext, nil
}

// ListAll returns every client ordered by name, from cache when possible.
func (s *Service) ListAll(ctx context.Context) ([]types.ClientView, error) {
	key := types.AllClients()
	var views []types.ClientView
	if s.cache.load(ctx, key, &views) {
		s.succeed(OpList)
		return views, nil
	}

	ticket := s.cache.ticket()
	views, err := timed(OpList, func() ([]types.ClientView, error) { return s.Store.List(ctx) })
	if err != nil {
		return nil, s.fail(OpList, "", types.Err(types.ErrPersistence, err, ""))
	}
	if views == nil {
		views = []types.ClientView{}
	}
	s.cache.fill(ctx, ticket, key, views)

	s.succeed(OpList)
	return views, nil
}

// GetByCNPJ returns a single client, from cache when possible.
func (s *Service) GetByCNPJ(ctx context.Context, cnpj string) (types.ClientView, error) {
	cnpj = strings.TrimSpace(cnpj)
	if err := types.RequireFields("cnpj", cnpj); err != nil {
		return types.ClientView{}, s.fail(OpGet, cnpj, err)
	}

	key := types.ClientByCNPJ(cnpj)
	var view types.ClientView
	if s.cache.load(ctx, key, &view) && view.CNPJ == cnpj {
		s.succeed(OpGet)
		return view, nil
	}

	ticket := s.cache.ticket()
	view, err := timed(OpGet, func() (types.ClientView, error) { return s.Store.Get(ctx, cnpj) })
	if errors.Is(err, types.ErrNotFound) {
		return types.ClientView{}, s.fail(OpGet, cnpj, types.ErrNotFound)
	}
	if err != nil {
		return types.ClientView{}, s.fail(OpGet, cnpj, types.Err(types.ErrPersistence, err, ""))
	}
	s.cache.fill(ctx, ticket, key, view)

	s.succeed(OpGet)
	return view, nil
}

// Delete removes a client, then drops its cache entries and its secret index entry.
func (s *Service) Delete(ctx context.Context, cnpj string) (string, error) {
	cnpj = strings.TrimSpace(cnpj)
	if err := types.RequireFields("cnpj", cnpj); err != nil {
		return "", s.fail(OpDelete, cnpj, err)
	}

	encrypted, err := timed(OpDelete, func() (string, error) { return s.Store.SecretFor(ctx, cnpj) })
	if errors.Is(err, types.ErrNotFound) {
		return "", s.fail(OpDelete, cnpj, types.ErrNotFound)
	}
	if err != nil {
		return "", s.fail(OpDelete, cnpj, types.Err(types.ErrPersistence, err, ""))
	}

	deleted, err := timed(OpDelete, func() (bool, error) { return s.Store.Delete(ctx, cnpj) })
	if err != nil {
		return "", s.fail(OpDelete, cnpj, types.Err(types.ErrPersistence, err, ""))
	}
	if !deleted {
		// A concurrent delete got there first and owns the cleanup.
		return "", s.fail(OpDelete, cnpj, types.ErrNotFound)
	}

	s.invalidate(ctx, OpDelete, cnpj)
	if err := s.Index.Remove(ctx, encrypted); err != nil {
		log.WithError(err).WithField("cnpj", cnpj).Error("failed to remove client from secret index")
	}
	s.publish(ctx, EventDeleted, types.ClientView{CNPJ: cnpj})

	s.succeed(OpDelete)
	return cnpj, nil
}

// invalidate drops every cache key for cnpj. The store write already committed, so a
// backend failure is logged rather than reported to the caller.
func (s *Service) invalidate(ctx context.Context, op, cnpj string) {
	if err := s.cache.invalidate(ctx, types.KeysFor(cnpj)...); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"op":   op,
			"cnpj": cnpj,
		}).Error("cache invalidation failed, entries may be stale until they expire")
	}
}

// fail logs err at the operation boundary and counts it. Expected outcomes are logged at
// info, everything else at error.
func (s *Service) fail(op, cnpj string, err error) error {
	outcome := Outcome(err)
	metrics.OperationsTotal.WithLabelValues(op, outcome).Inc()
	entry := log.WithError(err).WithFields(log.Fields{
		"op":      op,
		"cnpj":    cnpj,
		"outcome": outcome,
	})
	if outcome == "internal" || outcome == "persistence" {
		entry.Error("client registry operation failed")
	} else {
		entry.Info("client registry operation rejected")
	}
	return err
}

func (s *Service) succeed(op string) {
	metrics.OperationsTotal.WithLabelValues(op, "ok").Inc()
}

// Outcome classifies err into the label used in metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrValidation):
		return "validation"
	case errors.Is(err, types.ErrConflict):
		return "conflict"
	case errors.Is(err, types.ErrNotFound):
		return "not_found"
	case errors.Is(err, types.ErrInvalidSecret):
		return "unauthorized"
	case errors.Is(err, types.ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}

func timed[T any](op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	metrics.StoreLatencyMs.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000)
	return v, err
}
