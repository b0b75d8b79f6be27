package local

import (
	"context"
	"sync"
	"time"

	"github.com/memohai/streambind/internal/message"
)

// Collector subscribes to a hub topic and records what arrives. Test
// helper for asserting on binder output.
type Collector struct {
	mu     sync.Mutex
	msgs   []*message.Message
	cancel func()
	notify chan struct{}
}

// Collect starts recording messages published to the topic.
func Collect(hub *Hub, topic string) *Collector {
	c := &Collector{notify: make(chan struct{}, 1)}
	c.cancel = hub.Subscribe(topic, func(_ context.Context, msg *message.Message) error {
		c.mu.Lock()
		c.msgs = append(c.msgs, msg)
		c.mu.Unlock()
		select {
		case c.notify <- struct{}{}:
		default:
		}
		return nil
	})
	return c
}

// Messages returns a snapshot of everything collected so far.
func (c *Collector) Messages() []*message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*message.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Wait blocks until at least n messages arrived or the timeout elapses.
func (c *Collector) Wait(n int, timeout time.Duration) []*message.Message {
	deadline := time.After(timeout)
	for {
		c.mu.Lock()
		count := len(c.msgs)
		c.mu.Unlock()
		if count >= n {
			return c.Messages()
		}
		select {
		case <-c.notify:
		case <-deadline:
			return c.Messages()
		}
	}
}

// Stop unsubscribes the collector from its topic.
func (c *Collector) Stop() {
	c.cancel()
}
