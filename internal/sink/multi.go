package sink

import (
	"context"
	"errors"

	"github.com/muandane/slugcache/internal/event"
)

// Multi records every event in each of its sinks.
type Multi []event.Sink

func (m Multi) Record(ctx context.Context, e event.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Closer is implemented by sinks holding buffers or connections.
type Closer interface {
	Close(ctx context.Context) error
}

// Close closes every sink that implements Closer.
func (m Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(Closer); ok {
			if err := c.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
