package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/memohai/streambind/internal/binder"
	"github.com/memohai/streambind/internal/channel"
)

// Holder wraps a resolved channel with its bindable flag. A holder for a
// shared channel this set does not own is not bindable: the set must not
// bind or unbind it against transport.
type Holder struct {
	ch       channel.Channel
	bindable bool
}

// Channel returns the held channel.
func (h Holder) Channel() channel.Channel { return h.ch }

// Bindable reports whether this set owns the transport binding.
func (h Holder) Bindable() bool { return h.bindable }

type bindingKey struct {
	direction Direction
	name      string
}

// BindingSet is the materialized binding interface: the name→holder maps
// are written once during materialization and read-only afterwards, so
// slot lookups need no locking. Bind and Unbind mutate binding state under
// one mutex; in-flight dispatch keeps using already-resolved channels.
type BindingSet struct {
	namespace string
	inputs    map[string]Holder
	outputs   map[string]Holder
	bridges   []*channel.Bridge
	logger    *slog.Logger

	mu    sync.Mutex
	bound map[bindingKey]bool
}

// Input resolves an input slot by name.
func (s *BindingSet) Input(name string) (channel.Channel, bool) {
	h, ok := s.inputs[name]
	return h.ch, ok
}

// Output resolves an output slot by name.
func (s *BindingSet) Output(name string) (channel.Channel, bool) {
	h, ok := s.outputs[name]
	return h.ch, ok
}

// InputHolder returns the full holder for an input slot.
func (s *BindingSet) InputHolder(name string) (Holder, bool) {
	h, ok := s.inputs[name]
	return h, ok
}

// OutputHolder returns the full holder for an output slot.
func (s *BindingSet) OutputHolder(name string) (Holder, bool) {
	h, ok := s.outputs[name]
	return h, ok
}

// InputNames returns all input slot names, sorted.
func (s *BindingSet) InputNames() []string {
	return sortedNames(s.inputs)
}

// OutputNames returns all output slot names, sorted.
func (s *BindingSet) OutputNames() []string {
	return sortedNames(s.outputs)
}

// Bind requests a transport consumer binding for every bindable input
// holder and a producer binding for every bindable output holder, each
// under its logical slot name. A failed slot is recorded in the returned
// error but does not prevent binding the remaining slots.
func (s *BindingSet) Bind(ctx context.Context, b binder.Binder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, name := range sortedNames(s.inputs) {
		h := s.inputs[name]
		key := bindingKey{DirectionInput, name}
		if !h.bindable || s.bound[key] {
			continue
		}
		if err := b.BindConsumer(ctx, h.ch, name); err != nil {
			errs = append(errs, fmt.Errorf("bind consumer %s: %w", name, err))
			continue
		}
		s.bound[key] = true
		s.logger.Info("consumer bound", slog.String("slot", name), slog.String("namespace", s.namespace))
	}
	for _, name := range sortedNames(s.outputs) {
		h := s.outputs[name]
		key := bindingKey{DirectionOutput, name}
		if !h.bindable || s.bound[key] {
			continue
		}
		if err := b.BindProducer(ctx, h.ch, name); err != nil {
			errs = append(errs, fmt.Errorf("bind producer %s: %w", name, err))
			continue
		}
		s.bound[key] = true
		s.logger.Info("producer bound", slog.String("slot", name), slog.String("namespace", s.namespace))
	}
	return errors.Join(errs...)
}

// Unbind is the exact inverse of Bind and unbinds only what Bind actually
// bound, so it is safe to call after a partially failed Bind.
func (s *BindingSet) Unbind(ctx context.Context, b binder.Binder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, name := range sortedNames(s.inputs) {
		key := bindingKey{DirectionInput, name}
		if !s.bound[key] {
			continue
		}
		if err := b.UnbindConsumers(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("unbind consumers %s: %w", name, err))
			continue
		}
		delete(s.bound, key)
		s.logger.Info("consumer unbound", slog.String("slot", name), slog.String("namespace", s.namespace))
	}
	for _, name := range sortedNames(s.outputs) {
		key := bindingKey{DirectionOutput, name}
		if !s.bound[key] {
			continue
		}
		if err := b.UnbindProducers(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("unbind producers %s: %w", name, err))
			continue
		}
		delete(s.bound, key)
		s.logger.Info("producer unbound", slog.String("slot", name), slog.String("namespace", s.namespace))
	}
	return errors.Join(errs...)
}

// Close stops all bridges owned by this set.
func (s *BindingSet) Close() {
	s.closeBridges()
}

func (s *BindingSet) closeBridges() {
	s.mu.Lock()
	bridges := s.bridges
	s.bridges = nil
	s.mu.Unlock()
	for _, b := range bridges {
		b.Stop()
	}
}

func sortedNames(holders map[string]Holder) []string {
	names := make([]string, 0, len(holders))
	for name := range holders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
