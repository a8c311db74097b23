package messaging

import (
	"context"

	"github.com/warungku/backend/internal/entity"
)

// Topics consumed by the staff-notification collaborator.
const (
	TopicOrdersPaid      = "orders.paid"
	TopicOrdersCanceled  = "orders.canceled"
	TopicOrdersDelivered = "orders.delivered"
)

// Publisher defines an interface for publishing domain events to a message
// broker.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event entity.Event) error
	Close() error
}
