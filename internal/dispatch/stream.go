package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/memohai/streambind/internal/channel"
	"github.com/memohai/streambind/internal/message"
)

// SendFunc emits one message to the stream's output slot.
type SendFunc func(ctx context.Context, msg *message.Message) error

// StreamHandler consumes the inbound message stream and emits results
// through send. It runs on its own goroutine until the inbound stream
// closes or the context is canceled.
type StreamHandler func(ctx context.Context, in <-chan *message.Message, send SendFunc)

// StreamRegistration binds a stream handler to one input and one output
// slot. Both targets must be given as parameters of the registration;
// unlike plain listeners there is no declarative return slot, and no
// additional arguments are supported.
type StreamRegistration struct {
	Input  string
	Output string
	// DeclaredOutput marks the output as supplied declaratively rather
	// than as a handler parameter. This combination is rejected: a stream
	// handler must receive its output target explicitly.
	DeclaredOutput bool
	// Extra lists any additional declared parameters. Stream handlers
	// accept none, so a non-empty list fails validation.
	Extra   []Param
	Handler StreamHandler
}

func (r StreamRegistration) validate() error {
	if strings.TrimSpace(r.Input) == "" || strings.TrimSpace(r.Output) == "" {
		return fmt.Errorf("stream listener requires both an input and an output channel")
	}
	if r.DeclaredOutput {
		return fmt.Errorf("stream listener on %s: output must be a handler parameter, not a declared return slot", r.Input)
	}
	if len(r.Extra) > 0 {
		return fmt.Errorf("stream listener on %s: additional parameters are not supported", r.Input)
	}
	if r.Handler == nil {
		return fmt.Errorf("stream listener on %s: handler is required", r.Input)
	}
	return nil
}

// RegisterStream adds a stream listener. Validation runs at Attach, when
// the referenced slots can be resolved.
func (d *Dispatcher) RegisterStream(reg StreamRegistration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached {
		return fmt.Errorf("cannot register listeners after attach")
	}
	if err := reg.validate(); err != nil {
		return err
	}
	d.streams = append(d.streams, reg)
	return nil
}

// streamFeed serializes sends against the close that happens on shutdown,
// so a late delivery never hits a closed Go channel.
type streamFeed struct {
	mu     sync.Mutex
	closed bool
	ch     chan *message.Message
}

func (f *streamFeed) send(ctx context.Context, msg *message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return channel.ErrQueueClosed
	}
	select {
	case f.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *streamFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	close(f.ch)
}

// runStream feeds the input channel into a Go channel the handler ranges
// over, and hands the handler a send function bound to the output slot.
func (d *Dispatcher) runStream(ctx context.Context, reg StreamRegistration, in channel.Channel, out channel.Channel) {
	feed := &streamFeed{ch: make(chan *message.Message, channel.DefaultQueueCapacity)}
	d.consume(ctx, reg.Input, in, feed.send)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		reg.Handler(ctx, feed.ch, func(ctx context.Context, msg *message.Message) error {
			return out.Send(ctx, msg)
		})
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		<-ctx.Done()
		feed.close()
	}()
	d.logger.Debug("stream listener started",
		slog.String("input", reg.Input),
		slog.String("output", reg.Output))
}
