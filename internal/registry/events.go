package registry

import (
	"clientreg/internal/metrics"
	"clientreg/internal/types"
	"context"
	"time"

	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

const (
	EventRegistered = "client.registered"
	EventDeleted    = "client.deleted"
)

// Event is the payload published after a committed register or delete.
type Event struct {
	Type string `json:"type"`
	CNPJ string `json:"cnpj"`
	Nome string `json:"nome,omitempty"`
	At   int64  `json:"at"`
}

// publish never fails the operation: the store write is already committed.
func (s *Service) publish(ctx context.Context, eventType string, view types.ClientView) {
	if s.Pub == nil || s.TopicArn == "" {
		return
	}
	b, err := json.Marshal(Event{Type: eventType, CNPJ: view.CNPJ, Nome: view.Nome, At: time.Now().Unix()})
	if err != nil {
		log.WithError(err).Error("failed to marshal client event")
		return
	}
	if err := s.Pub.PublishRaw(ctx, s.TopicArn, b); err != nil {
		metrics.EventsPublishFailedTotal.Inc()
		log.WithError(err).WithFields(log.Fields{
			"event": eventType,
			"cnpj":  view.CNPJ,
		}).Error("failed to publish client event")
	}
}
