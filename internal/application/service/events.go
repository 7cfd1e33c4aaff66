package service

import (
	"context"
	"time"

	"github.com/garyjia/counsel-settlement/internal/application/port"
	"github.com/garyjia/counsel-settlement/internal/domain/event"
)

// Option configures optional collaborators of the report and master data services
type Option func(*options)

type options struct {
	events   port.EventPublisher
	location *time.Location
}

// WithEvents publishes domain events after each committed change
func WithEvents(publisher port.EventPublisher) Option {
	return func(o *options) {
		o.events = publisher
	}
}

// WithLocation sets the zone calendar dates are interpreted in
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}

func applyOptions(opts []Option) options {
	o := options{location: time.Local}
	for _, opt := range opts {
		opt(&o)
	}
	if o.location == nil {
		o.location = time.Local
	}
	return o
}

func publish(ctx context.Context, publisher port.EventPublisher, evt *event.Event) {
	if publisher != nil {
		publisher.Publish(ctx, evt)
	}
}
