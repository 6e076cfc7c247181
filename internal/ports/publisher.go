package ports

import "context"

// Publisher delivers client lifecycle events to a topic.
type Publisher interface {
	PublishRaw(ctx context.Context, topic string, payload []byte) error
}
