package port

import (
	"context"

	"github.com/garyjia/counsel-settlement/internal/domain/event"
)

// EventPublisher receives domain events once the change they describe has
// committed. Publishing never fails the operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event)
}
