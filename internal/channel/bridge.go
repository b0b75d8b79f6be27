package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/memohai/streambind/internal/message"
)

// DefaultPollInterval is the pull→push bridge poll interval used when none
// is configured.
const DefaultPollInterval = time.Second

// Bridge relays messages between a push and a pull channel whose
// disciplines do not match a binding's requirement. Stop tears the relay
// down; it is safe to call more than once.
type Bridge struct {
	stop func()
	once sync.Once
}

// Stop tears the bridge down.
func (b *Bridge) Stop() {
	b.once.Do(b.stop)
}

// NewPushToPull subscribes to src and forwards every arriving message into
// dst synchronously on the delivering goroutine.
func NewPushToPull(src Subscribable, dst Channel) *Bridge {
	cancel := src.Subscribe(func(ctx context.Context, msg *message.Message) error {
		return dst.Send(ctx, msg)
	})
	return &Bridge{stop: cancel}
}

// NewPullToPush runs a background poll loop: every interval it drains src
// and forwards each message into dst. This is the only recurring
// background task the binding core owns.
func NewPullToPush(src Pollable, dst Channel, interval time.Duration, log *slog.Logger) *Bridge {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With(
		slog.String("component", "bridge"),
		slog.String("from", src.Name()),
		slog.String("to", dst.Name()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for {
					msg, ok := src.TryReceive()
					if !ok {
						break
					}
					if err := dst.Send(ctx, msg); err != nil {
						log.Error("bridge forward failed", slog.Any("error", err))
					}
				}
			}
		}
	}()
	return &Bridge{stop: func() {
		cancel()
		<-done
	}}
}
