package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/memohai/streambind/internal/message"
)

// PushChannel broadcasts every sent message to all subscribers by
// synchronous callback on the sender's goroutine. The sender does not
// block beyond the subscriber callbacks themselves.
type PushChannel struct {
	name    string
	convert ConvertFunc

	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id      int
	handler Handler
}

// NewPush creates a push-discipline channel.
func NewPush(name string, opts ...Option) *PushChannel {
	o := applyOptions(opts)
	return &PushChannel{name: name, convert: o.convert}
}

func (c *PushChannel) Name() string {
	return c.name
}

func (c *PushChannel) Discipline() Discipline {
	return Push
}

// Subscribe registers a handler. Handlers receive messages in arrival
// order on the sending goroutine.
func (c *PushChannel) Subscribe(h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscription{id: id, handler: h})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (c *PushChannel) SubscriberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Send converts the message per the channel configuration and delivers it
// to every subscriber. Subscriber errors are joined and returned to the
// caller; delivery still reaches all subscribers.
func (c *PushChannel) Send(ctx context.Context, msg *message.Message) error {
	if c.convert != nil {
		converted, err := c.convert(msg)
		if err != nil {
			return fmt.Errorf("channel %s: %w", c.name, err)
		}
		msg = converted
	}
	c.mu.RLock()
	subs := make([]subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.RUnlock()

	if len(subs) == 0 {
		return fmt.Errorf("channel %s: %w", c.name, ErrNoSubscribers)
	}
	var errs []error
	for _, s := range subs {
		if err := s.handler(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
