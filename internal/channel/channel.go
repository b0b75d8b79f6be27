// Package channel provides named message conduits with push or pull
// delivery discipline, the bridge between the two disciplines, and the
// shared channel registry used to wire binding sets together.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/memohai/streambind/internal/message"
)

// Discipline is the delivery discipline of a channel, fixed at creation.
type Discipline string

const (
	// Push delivers by synchronous callback to every subscriber.
	Push Discipline = "push"
	// Pull enqueues into a bounded queue consumers poll with a timeout.
	Pull Discipline = "pull"
)

// Errors returned by channel operations.
var (
	ErrNoSubscribers = errors.New("channel has no subscribers")
	ErrQueueClosed   = errors.New("channel queue closed")
)

// ParseDiscipline validates a raw discipline string.
func ParseDiscipline(raw string) (Discipline, error) {
	switch Discipline(raw) {
	case Push, Pull:
		return Discipline(raw), nil
	case "":
		return Push, nil
	default:
		return "", errors.New("unsupported channel discipline: " + raw)
	}
}

// Handler consumes one message delivered by a push channel.
type Handler func(ctx context.Context, msg *message.Message) error

// ConvertFunc is an optional per-channel payload conversion applied on
// send, installed by the binding factory according to the slot's declared
// content type and data type.
type ConvertFunc func(msg *message.Message) (*message.Message, error)

// Channel is a named conduit carrying message envelopes.
type Channel interface {
	Name() string
	Discipline() Discipline
	Send(ctx context.Context, msg *message.Message) error
}

// Subscribable is a push-discipline channel.
type Subscribable interface {
	Channel
	// Subscribe registers a handler invoked synchronously for every sent
	// message. The returned func removes the subscription.
	Subscribe(h Handler) (cancel func())
}

// Pollable is a pull-discipline channel.
type Pollable interface {
	Channel
	// Receive blocks until a message arrives or ctx is done.
	Receive(ctx context.Context) (*message.Message, error)
	// ReceiveTimeout blocks up to the given timeout.
	ReceiveTimeout(timeout time.Duration) (*message.Message, error)
	// TryReceive returns a queued message without blocking.
	TryReceive() (*message.Message, bool)
}

type options struct {
	convert  ConvertFunc
	capacity int
}

// Option configures a channel at creation.
type Option func(*options)

// WithConverter installs the payload conversion applied on every send.
func WithConverter(fn ConvertFunc) Option {
	return func(o *options) { o.convert = fn }
}

// WithCapacity sets the queue capacity of a pull channel.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{capacity: DefaultQueueCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
