package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/stream-notifier/internal/domain/channel"
)

// Notifier delivers a transition somewhere.
type Notifier interface {
	// Name identifies the sink in logs.
	Name() string
	// Notify delivers the transition. It is called synchronously once per transition.
	Notify(ctx context.Context, transition *channel.Transition) error
}

// Multi notifies every sink in order.
type Multi struct {
	// sinks are called in configuration order.
	sinks []Notifier
}

// NewMulti groups the sinks, skipping nil entries.
func NewMulti(sinks ...Notifier) *Multi {
	m := &Multi{sinks: make([]Notifier, 0, len(sinks))}

	for _, sink := range sinks {
		if sink != nil {
			m.sinks = append(m.sinks, sink)
		}
	}

	return m
}

// Name implements Notifier.
func (m *Multi) Name() string {
	return "multi"
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Names returns the sink names in call order.
func (m *Multi) Names() []string {
	names := make([]string, 0, len(m.sinks))
	for _, sink := range m.sinks {
		names = append(names, sink.Name())
	}

	return names
}

// Notify calls every sink even if some fail; failures are joined and prefixed with the sink name.
func (m *Multi) Notify(ctx context.Context, transition *channel.Transition) error {
	var errs []error

	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, transition); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}

	return errors.Join(errs...)
}
