// Package local implements an in-process loopback binder. Producers
// publish to named hub topics, consumers subscribe to them; messages never
// leave the process. It backs single-process deployments and tests.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/memohai/streambind/internal/channel"
	"github.com/memohai/streambind/internal/message"
)

// Hub is the loopback broker: a set of named topics with subscribers.
// Publishing to a topic without subscribers drops the message.
type Hub struct {
	mu     sync.RWMutex
	topics map[string][]topicSub
	nextID int
	logger *slog.Logger
}

type topicSub struct {
	id      int
	deliver channel.Handler
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		topics: make(map[string][]topicSub),
		logger: log.With(slog.String("component", "local-binder")),
	}
}

// Publish delivers a message to every subscriber of the topic.
func (h *Hub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	h.mu.RLock()
	subs := h.topics[topic]
	h.mu.RUnlock()
	if len(subs) == 0 {
		h.logger.Debug("message dropped, topic has no subscribers", slog.String("topic", topic))
		return nil
	}
	for _, sub := range subs {
		if err := sub.deliver(ctx, msg); err != nil {
			return fmt.Errorf("topic %s: %w", topic, err)
		}
	}
	return nil
}

// Subscribe registers a delivery function for the topic and returns a
// cancel function.
func (h *Hub) Subscribe(topic string, deliver channel.Handler) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.topics[topic] = append(h.topics[topic], topicSub{id: id, deliver: deliver})
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.topics[topic]
		for i, sub := range subs {
			if sub.id == id {
				h.topics[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Binder connects channels to hub topics. The topic name is the logical
// binding name as-is.
type Binder struct {
	hub    *Hub
	logger *slog.Logger

	mu        sync.Mutex
	consumers map[string][]func()
	producers map[string][]func()
}

// New creates a binder over the given hub. A nil hub gets a private one,
// which still loops producers back to consumers of the same binder.
func New(hub *Hub, log *slog.Logger) *Binder {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log)
	}
	return &Binder{
		hub:       hub,
		logger:    log.With(slog.String("component", "local-binder")),
		consumers: make(map[string][]func()),
		producers: make(map[string][]func()),
	}
}

// Hub returns the underlying hub, so several binders can share one.
func (b *Binder) Hub() *Hub { return b.hub }

// BindConsumer subscribes the channel to the topic: every message
// published under the name is sent into the channel.
func (b *Binder) BindConsumer(_ context.Context, ch channel.Channel, name string) error {
	cancel := b.hub.Subscribe(name, ch.Send)
	b.mu.Lock()
	b.consumers[name] = append(b.consumers[name], cancel)
	b.mu.Unlock()
	return nil
}

// BindProducer forwards every message sent on the channel to the topic.
// Push channels are subscribed directly; pull channels get a drain loop.
func (b *Binder) BindProducer(ctx context.Context, ch channel.Channel, name string) error {
	var cancel func()
	switch src := ch.(type) {
	case channel.Subscribable:
		cancel = src.Subscribe(func(ctx context.Context, msg *message.Message) error {
			return b.hub.Publish(ctx, name, msg)
		})
	case channel.Pollable:
		loopCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				msg, err := src.Receive(loopCtx)
				if err != nil {
					return
				}
				if err := b.hub.Publish(loopCtx, name, msg); err != nil {
					b.logger.Error("publish failed",
						slog.String("topic", name),
						slog.String("error", err.Error()))
				}
			}
		}()
		cancel = func() {
			stop()
			<-done
		}
	default:
		return fmt.Errorf("channel %s supports neither discipline", ch.Name())
	}
	b.mu.Lock()
	b.producers[name] = append(b.producers[name], cancel)
	b.mu.Unlock()
	return nil
}

// UnbindConsumers cancels every consumer binding for the name.
func (b *Binder) UnbindConsumers(_ context.Context, name string) error {
	b.mu.Lock()
	cancels := b.consumers[name]
	delete(b.consumers, name)
	b.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

// UnbindProducers cancels every producer binding for the name.
func (b *Binder) UnbindProducers(_ context.Context, name string) error {
	b.mu.Lock()
	cancels := b.producers[name]
	delete(b.producers, name)
	b.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

// Close unbinds everything.
func (b *Binder) Close() {
	b.mu.Lock()
	var cancels []func()
	for _, c := range b.consumers {
		cancels = append(cancels, c...)
	}
	for _, c := range b.producers {
		cancels = append(cancels, c...)
	}
	b.consumers = make(map[string][]func())
	b.producers = make(map[string][]func())
	b.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
