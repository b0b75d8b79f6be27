package binding

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/memohai/streambind/internal/channel"
	"github.com/memohai/streambind/internal/converter"
	"github.com/memohai/streambind/internal/message"
	"github.com/memohai/streambind/internal/mimetype"
)

// Options configures a binding factory. The shared registry and converter
// registry are passed explicitly; their lifecycle belongs to the caller.
type Options struct {
	// Namespace prefixes slot names when consulting the shared registry.
	Namespace string
	// PollInterval is the pull→push bridge poll interval (default 1s).
	PollInterval time.Duration
	// QueueCapacity bounds fresh pull channels (default 256).
	QueueCapacity int
	// Shared is consulted for pre-existing channels by qualified name.
	Shared *channel.SharedRegistry
	// Converters performs content-type payload conversion.
	Converters *converter.Registry
	// Tags resolves struct content types to registered in-process types.
	Tags map[string]converter.TypeTag
	Logger *slog.Logger
}

// Factory materializes a set of slot declarations into a BindingSet.
// Materialization runs exactly once per factory, even under concurrent
// first access, and fails as a whole on any slot error: no partial set is
// ever exposed.
type Factory struct {
	decls []Declaration
	opts  Options

	once sync.Once
	set  *BindingSet
	err  error
}

// NewFactory creates a factory for the given declarations.
func NewFactory(decls []Declaration, opts Options) *Factory {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Logger = opts.Logger.With(slog.String("component", "binding"))
	if opts.Converters == nil {
		opts.Converters = converter.NewRegistry(opts.Logger)
	}
	return &Factory{decls: decls, opts: opts}
}

// BindingSet returns the materialized set, building it on first call.
func (f *Factory) BindingSet() (*BindingSet, error) {
	f.once.Do(func() {
		f.set, f.err = f.materialize()
	})
	return f.set, f.err
}

func (f *Factory) materialize() (*BindingSet, error) {
	set := &BindingSet{
		namespace: f.opts.Namespace,
		inputs:    map[string]Holder{},
		outputs:   map[string]Holder{},
		bound:     map[bindingKey]bool{},
		logger:    f.opts.Logger,
	}
	for _, decl := range f.decls {
		if err := decl.validate(); err != nil {
			set.closeBridges()
			return nil, err
		}
		holders := set.inputs
		if decl.Direction == DirectionOutput {
			holders = set.outputs
		}
		if _, exists := holders[decl.Name]; exists {
			set.closeBridges()
			return nil, fmt.Errorf("slot %s: duplicate %s declaration", decl.Name, decl.Direction)
		}
		holder, bridge, err := f.resolveSlot(decl)
		if err != nil {
			set.closeBridges()
			return nil, err
		}
		holders[decl.Name] = holder
		if bridge != nil {
			set.bridges = append(set.bridges, bridge)
		}
		f.opts.Logger.Debug("slot resolved",
			slog.String("slot", decl.Name),
			slog.String("direction", string(decl.Direction)),
			slog.Bool("bindable", holder.bindable))
	}
	return set, nil
}

// resolveSlot applies the per-slot algorithm: look up the qualified name
// in the shared registry; absent → fresh bindable channel; present with
// matching discipline → reuse, not bindable; present with a differing
// discipline → fresh local bindable channel plus a bridge relaying from
// the shared channel.
func (f *Factory) resolveSlot(decl Declaration) (Holder, *channel.Bridge, error) {
	convert, err := f.convertFunc(decl)
	if err != nil {
		return Holder{}, nil, err
	}

	var shared channel.Channel
	if f.opts.Shared != nil {
		shared, _ = f.opts.Shared.Get(f.qualifiedName(decl.Name))
	}
	if shared == nil {
		return Holder{ch: f.newChannel(decl, convert), bindable: true}, nil, nil
	}
	if shared.Discipline() == decl.Discipline {
		return Holder{ch: shared, bindable: false}, nil, nil
	}

	local := f.newChannel(decl, convert)
	var bridge *channel.Bridge
	switch src := shared.(type) {
	case channel.Pollable:
		bridge = channel.NewPullToPush(src, local, f.opts.PollInterval, f.opts.Logger)
	case channel.Subscribable:
		bridge = channel.NewPushToPull(src, local)
	default:
		return Holder{}, nil, fmt.Errorf("slot %s: shared channel %s supports neither discipline", decl.Name, shared.Name())
	}
	return Holder{ch: local, bindable: true}, bridge, nil
}

func (f *Factory) qualifiedName(name string) string {
	if f.opts.Namespace == "" {
		return name
	}
	return f.opts.Namespace + "." + name
}

func (f *Factory) newChannel(decl Declaration, convert channel.ConvertFunc) channel.Channel {
	opts := []channel.Option{channel.WithCapacity(f.opts.QueueCapacity)}
	if convert != nil {
		opts = append(opts, channel.WithConverter(convert))
	}
	if decl.Discipline == channel.Pull {
		return channel.NewPull(decl.Name, opts...)
	}
	return channel.NewPush(decl.Name, opts...)
}

// convertFunc builds the conversion applied on every send through the
// slot's channel. Inputs convert toward the content type's in-process data
// type, outputs serialize toward the declared content type. A content type
// that cannot be resolved to a converter, or an unknown type tag, fails
// the whole materialization.
func (f *Factory) convertFunc(decl Declaration) (channel.ConvertFunc, error) {
	if decl.ContentType == "" {
		return nil, nil
	}
	ct, err := mimetype.Parse(decl.ContentType)
	if err != nil {
		return nil, fmt.Errorf("slot %s: %w", decl.Name, err)
	}
	if _, err := f.opts.Converters.Resolve(ct); err != nil {
		return nil, fmt.Errorf("slot %s: no converter for content type %s", decl.Name, ct)
	}
	registry := f.opts.Converters

	if decl.Direction == DirectionOutput {
		return func(msg *message.Message) (*message.Message, error) {
			return registry.ConvertOut(msg, ct)
		}, nil
	}

	dataType, err := f.dataTypeFor(decl, ct)
	if err != nil {
		return nil, err
	}
	return func(msg *message.Message) (*message.Message, error) {
		payload, converted, err := registry.ConvertIn(msg, dataType)
		if err != nil {
			return nil, err
		}
		if !converted {
			return msg, nil
		}
		return message.From(msg).WithPayload(payload).Build(), nil
	}, nil
}

// dataTypeFor maps a declared content type to the in-process type an input
// channel constrains its payloads to.
func (f *Factory) dataTypeFor(decl Declaration, ct mimetype.Type) (converter.TypeTag, error) {
	if ct.IsStruct() {
		tag, ok := f.opts.Tags[ct.StructTag()]
		if !ok {
			return converter.TypeTag{}, fmt.Errorf("slot %s: unknown type tag %q", decl.Name, ct.StructTag())
		}
		return tag, nil
	}
	switch {
	case mimetype.JSON.Includes(ct):
		return converter.MapTag, nil
	case mimetype.TextPlain.Includes(ct):
		return converter.StringTag, nil
	default:
		return converter.BytesTag, nil
	}
}
