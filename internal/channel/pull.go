package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/memohai/streambind/internal/message"
)

// DefaultQueueCapacity bounds a pull channel's queue when no capacity is
// configured.
const DefaultQueueCapacity = 256

// PullChannel is a bounded queue. Senders block while the queue is full
// (until ctx is done); consumers poll with a timeout or context.
type PullChannel struct {
	name    string
	convert ConvertFunc
	queue   chan *message.Message
}

// NewPull creates a pull-discipline channel.
func NewPull(name string, opts ...Option) *PullChannel {
	o := applyOptions(opts)
	return &PullChannel{
		name:    name,
		convert: o.convert,
		queue:   make(chan *message.Message, o.capacity),
	}
}

func (c *PullChannel) Name() string {
	return c.name
}

func (c *PullChannel) Discipline() Discipline {
	return Pull
}

// Send converts the message per the channel configuration and enqueues it,
// blocking while the queue is full.
func (c *PullChannel) Send(ctx context.Context, msg *message.Message) error {
	if c.convert != nil {
		converted, err := c.convert(msg)
		if err != nil {
			return fmt.Errorf("channel %s: %w", c.name, err)
		}
		msg = converted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case c.queue <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("channel %s: %w", c.name, ctx.Err())
	}
}

// Receive blocks until a message arrives or ctx is done.
func (c *PullChannel) Receive(ctx context.Context) (*message.Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case msg := <-c.queue:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReceiveTimeout blocks up to timeout. A non-positive timeout polls
// without blocking.
func (c *PullChannel) ReceiveTimeout(timeout time.Duration) (*message.Message, error) {
	if timeout <= 0 {
		if msg, ok := c.TryReceive(); ok {
			return msg, nil
		}
		return nil, context.DeadlineExceeded
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Receive(ctx)
}

// TryReceive returns a queued message without blocking.
func (c *PullChannel) TryReceive() (*message.Message, bool) {
	select {
	case msg := <-c.queue:
		return msg, true
	default:
		return nil, false
	}
}

// Len reports the number of queued messages.
func (c *PullChannel) Len() int {
	return len(c.queue)
}
