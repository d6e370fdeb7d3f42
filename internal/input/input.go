// Package input defines the event stream consumed by the scripted-input
// detectors. The OS-level hooks that observe real mouse and keyboard
// activity are external collaborators; they plug in by implementing Source.
package input

import (
	"context"
	"errors"
	"time"
)

// Kind discriminates input events.
type Kind int

const (
	// MouseMove is a pointer position sample.
	MouseMove Kind = iota
	// KeyPress is a key-down event.
	KeyPress
)

// Event is a single interaction sample.
type Event struct {
	Kind Kind
	X, Y float64
	At   time.Time
}

// Source emits interaction events. Stream blocks until the context is
// cancelled or the source fails, invoking emit synchronously for each event
// in occurrence order.
type Source interface {
	Stream(ctx context.Context, emit func(Event) error) error
}

// SourceFunc adapts a function literal to the Source interface.
type SourceFunc func(ctx context.Context, emit func(Event) error) error

// Stream calls the underlying function.
func (f SourceFunc) Stream(ctx context.Context, emit func(Event) error) error {
	return f(ctx, emit)
}

// ErrUnsupported is returned by sources on platforms without input hooks.
var ErrUnsupported = errors.New("input capture not supported on this platform")

// Null is a Source that emits nothing and blocks until cancellation. It is
// the default when no platform hook is wired, keeping the rest of the agent
// (capture, delivery) fully operational.
type Null struct{}

// Stream blocks until ctx is done.
func (Null) Stream(ctx context.Context, emit func(Event) error) error {
	<-ctx.Done()
	return ctx.Err()
}

// Channel is a Source backed by a Go channel, used by tests and by embedders
// that already have an event feed.
type Channel struct {
	C chan Event
}

// NewChannel returns a Channel source with the given buffer size.
func NewChannel(buffer int) *Channel {
	return &Channel{C: make(chan Event, buffer)}
}

// Stream delivers events from the channel until ctx is done or the channel
// is closed.
func (c *Channel) Stream(ctx context.Context, emit func(Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.C:
			if !ok {
				return nil
			}
			if err := emit(ev); err != nil {
				return err
			}
		}
	}
}
