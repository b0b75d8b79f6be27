package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/memohai/streambind/internal/binding"
	"github.com/memohai/streambind/internal/channel"
	"github.com/memohai/streambind/internal/converter"
	"github.com/memohai/streambind/internal/message"
)

// Dispatcher owns the listener table for one binding set. Listeners are
// registered before Attach; Attach freezes the table, validates it against
// the set's slots, and starts consuming the input channels.
type Dispatcher struct {
	registry *converter.Registry
	logger   *slog.Logger

	mu       sync.Mutex
	table    map[string][]Registration
	streams  []StreamRegistration
	attached bool

	outputs map[string]channel.Channel
	cancels []func()
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a dispatcher using the given converter registry for payload
// matching and conversion.
func New(registry *converter.Registry, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = converter.NewRegistry(log)
	}
	return &Dispatcher{
		registry: registry,
		logger:   log.With(slog.String("component", "dispatch")),
		table:    map[string][]Registration{},
		outputs:  map[string]channel.Channel{},
	}
}

// Register adds a listener. It fails on an invalid registration, on a
// mapping that cannot be disambiguated from an already registered listener
// on the same channel, or after Attach.
func (d *Dispatcher) Register(reg Registration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached {
		return fmt.Errorf("cannot register listeners after attach")
	}
	if err := reg.validate(); err != nil {
		return err
	}
	for _, existing := range d.table[reg.Input] {
		if reg.conflictsWith(existing) {
			return fmt.Errorf("channel %s: duplicate listener mapping, listeners cannot be disambiguated by payload type", reg.Input)
		}
	}
	d.table[reg.Input] = append(d.table[reg.Input], reg)
	return nil
}

// Attach freezes the table, resolves every referenced slot against the set
// and starts consuming. Push inputs are subscribed; pull inputs get a
// receive loop that runs until Close.
func (d *Dispatcher) Attach(ctx context.Context, set *binding.BindingSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached {
		return fmt.Errorf("dispatcher already attached")
	}

	for input, regs := range d.table {
		if _, ok := set.Input(input); !ok {
			return fmt.Errorf("listener references unknown input channel %s", input)
		}
		for _, reg := range regs {
			if reg.ReturnsTo == "" {
				continue
			}
			out, ok := set.Output(reg.ReturnsTo)
			if !ok {
				return fmt.Errorf("listener on %s references unknown output channel %s", input, reg.ReturnsTo)
			}
			d.outputs[reg.ReturnsTo] = out
		}
	}
	for _, sr := range d.streams {
		if err := sr.validate(); err != nil {
			return err
		}
		if _, ok := set.Input(sr.Input); !ok {
			return fmt.Errorf("stream listener references unknown input channel %s", sr.Input)
		}
		if _, ok := set.Output(sr.Output); !ok {
			return fmt.Errorf("stream listener references unknown output channel %s", sr.Output)
		}
	}
	d.attached = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.stop = cancel

	for input := range d.table {
		ch, _ := set.Input(input)
		d.consume(runCtx, input, ch, func(ctx context.Context, msg *message.Message) error {
			return d.dispatch(ctx, input, msg)
		})
	}
	for _, sr := range d.streams {
		in, _ := set.Input(sr.Input)
		out, _ := set.Output(sr.Output)
		d.runStream(runCtx, sr, in, out)
	}
	return nil
}

// consume wires one input channel to a delivery function according to its
// discipline.
func (d *Dispatcher) consume(ctx context.Context, name string, ch channel.Channel, deliver channel.Handler) {
	switch src := ch.(type) {
	case channel.Subscribable:
		d.cancels = append(d.cancels, src.Subscribe(deliver))
	case channel.Pollable:
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				msg, err := src.Receive(ctx)
				if err != nil {
					return
				}
				if err := deliver(ctx, msg); err != nil {
					d.logger.Error("listener failed",
						slog.String("channel", name),
						slog.String("error", err.Error()))
				}
			}
		}()
	}
}

// Close stops all consumption started by Attach and waits for receive
// loops to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	cancels := d.cancels
	d.cancels = nil
	stop := d.stop
	d.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	if stop != nil {
		stop()
	}
	d.wg.Wait()
}

// dispatch selects the listener for a message. A single listener receives
// every message unconditionally; with several, the message goes to the
// first listener, in registration order, whose payload type it converts
// into.
func (d *Dispatcher) dispatch(ctx context.Context, input string, msg *message.Message) error {
	d.mu.Lock()
	regs := d.table[input]
	d.mu.Unlock()
	if len(regs) == 0 {
		return fmt.Errorf("no listener for channel %s", input)
	}
	if len(regs) == 1 {
		payload, converted, err := d.registry.ConvertIn(msg, regs[0].Payload)
		if err != nil {
			return err
		}
		return d.invoke(ctx, regs[0], msg, payload, converted)
	}
	for _, reg := range regs {
		payload, converted, err := d.registry.ConvertIn(msg, reg.Payload)
		if err != nil {
			continue
		}
		return d.invoke(ctx, reg, msg, payload, converted)
	}
	return fmt.Errorf("channel %s: no listener matched the message payload", input)
}

func (d *Dispatcher) invoke(ctx context.Context, reg Registration, msg *message.Message, payload any, converted bool) error {
	envelope := msg
	if converted {
		envelope = message.From(msg).WithPayload(payload).Build()
	}
	args := make([]any, len(reg.Params))
	for i, p := range reg.Params {
		switch p.Kind {
		case ParamPayload:
			args[i] = payload
		case ParamEnvelope:
			args[i] = envelope
		case ParamHeaders:
			args[i] = msg.Headers()
		case ParamHeader:
			value, _ := msg.Header(p.Name)
			args[i] = value
		}
	}

	result, err := reg.Handler(ctx, args)
	if err != nil {
		return fmt.Errorf("listener on %s: %w", reg.Input, err)
	}
	if result == nil || reg.ReturnsTo == "" {
		return nil
	}

	reply, ok := result.(*message.Message)
	if !ok {
		b := message.NewBuilder(result)
		for _, key := range message.PropagatedHeaders {
			if v, ok := msg.Header(key); ok {
				b.SetHeader(key, v)
			}
		}
		reply = b.Build()
	}
	out := d.outputs[reg.ReturnsTo]
	return out.Send(ctx, reply)
}
