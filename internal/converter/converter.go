// Package converter implements the ordered content-type converter registry:
// inbound payload conversion toward a declared type tag and outbound
// serialization toward a configured content type.
package converter

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/memohai/streambind/internal/message"
	"github.com/memohai/streambind/internal/mimetype"
)

// TypeTag identifies an in-process payload type registered at configuration
// time. It replaces loading types by name: the constructor is supplied by
// the application, the tag name travels in struct content types.
type TypeTag struct {
	Name string
	// New returns a pointer to a fresh zero value of the tagged type.
	New func() any
	// Structural marks struct/map shapes that can disambiguate listeners
	// on the same channel. Plain string/byte tags cannot.
	Structural bool

	typ reflect.Type
}

// Tag registers a type tag for T.
func Tag[T any](name string) TypeTag {
	typ := reflect.TypeFor[T]()
	kind := typ.Kind()
	return TypeTag{
		Name:       name,
		New:        func() any { return new(T) },
		Structural: kind == reflect.Struct,
		typ:        typ,
	}
}

// Built-in generic tags. None of them is structural: listeners declared
// with these tags cannot be told apart at dispatch time.
var (
	StringTag = Tag[string]("string")
	BytesTag  = Tag[[]byte]("bytes")
	MapTag    = Tag[map[string]any]("map")
)

// IsZero reports whether the tag is unset.
func (t TypeTag) IsZero() bool {
	return t.Name == "" && t.New == nil
}

// Matches reports whether v already is the tagged type (value or pointer).
func (t TypeTag) Matches(v any) bool {
	if t.typ == nil || v == nil {
		return false
	}
	rt := reflect.TypeOf(v)
	if rt == t.typ {
		return true
	}
	return rt.Kind() == reflect.Ptr && rt.Elem() == t.typ
}

// Error is a conversion failure naming the source and target shapes.
type Error struct {
	From  string
	To    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot convert payload from %s to %s: %v", e.From, e.To, e.Cause)
	}
	return fmt.Sprintf("no converter for payload from %s to %s", e.From, e.To)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func convErr(from, to string, cause error) *Error {
	if from == "" {
		from = "<none>"
	}
	if to == "" {
		to = "<none>"
	}
	return &Error{From: from, To: to, Cause: cause}
}

// Converter is one bidirectional payload converter. Each converter owns a
// wire content type: Read produces the in-process target from a message of
// that content type, Write serializes a payload toward it. A converter is
// reversible for its own content type only.
type Converter interface {
	Name() string
	// Handles reports ownership of the wire content type.
	Handles(ct mimetype.Type) bool
	// CanRead reports whether Read can produce target from a message
	// carrying the given content type.
	CanRead(ct mimetype.Type, target TypeTag) bool
	Read(msg *message.Message, target TypeTag) (any, error)
	// CanWrite reports whether Write can serialize payload to ct.
	CanWrite(payload any, ct mimetype.Type) bool
	Write(payload any, ct mimetype.Type) (converted any, actual mimetype.Type, err error)
}

// Registry is the ordered converter set. Converters are tried in
// registration order; the first that accepts wins. Immutable after
// construction and safe for concurrent use.
type Registry struct {
	converters []Converter
	logger     *slog.Logger
}

// NewRegistry builds a registry. With no converters given, the built-in
// set is installed in its canonical order.
func NewRegistry(log *slog.Logger, converters ...Converter) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if len(converters) == 0 {
		converters = Defaults()
	}
	return &Registry{
		converters: converters,
		logger:     log.With(slog.String("component", "converter")),
	}
}

// Resolve returns the first converter owning the given content type.
func (r *Registry) Resolve(ct mimetype.Type) (Converter, error) {
	for _, c := range r.converters {
		if c.Handles(ct) {
			return c, nil
		}
	}
	return nil, convErr(ct.String(), "", nil)
}

// ConvertIn converts a message payload into the target type tag. Payloads
// already matching the tag pass through unconverted, reported by converted
// being false; callers must not compare the returned payload against the
// original, since payload types need not be comparable. Failure to find an
// applicable converter, or a structural mismatch inside the selected one,
// is returned as *Error; headers and payload are never dropped silently.
func (r *Registry) ConvertIn(msg *message.Message, target TypeTag) (payload any, converted bool, err error) {
	payload = msg.Payload()
	if target.IsZero() || target.Matches(payload) {
		return payload, false, nil
	}
	ct := contentTypeOf(msg)
	for _, c := range r.converters {
		if !c.CanRead(ct, target) {
			continue
		}
		out, err := c.Read(msg, target)
		if err != nil {
			return nil, false, convErr(ct.String(), target.Name, err)
		}
		r.logger.Debug("payload converted",
			slog.String("converter", c.Name()),
			slog.String("from", ct.String()),
			slog.String("to", target.Name))
		return out, true, nil
	}
	return nil, false, convErr(ct.String(), target.Name, nil)
}

// ConvertOut serializes a message payload toward the declared content type
// and returns a derived message with the contentType header set. When the
// original message carried a different content type, it is preserved under
// originalContentType.
func (r *Registry) ConvertOut(msg *message.Message, ct mimetype.Type) (*message.Message, error) {
	if ct.IsZero() {
		return msg, nil
	}
	payload := msg.Payload()
	for _, c := range r.converters {
		if !c.CanWrite(payload, ct) {
			continue
		}
		out, actual, err := c.Write(payload, ct)
		if err != nil {
			return nil, convErr(payloadTypeName(payload), ct.String(), err)
		}
		b := message.From(msg).WithPayload(out)
		if prev := msg.HeaderString(message.HeaderContentType); prev != "" && prev != actual.String() {
			b.SetHeader(message.HeaderOriginalContentType, prev)
		}
		b.SetHeader(message.HeaderContentType, actual.String())
		r.logger.Debug("payload serialized",
			slog.String("converter", c.Name()),
			slog.String("to", actual.String()))
		return b.Build(), nil
	}
	return nil, convErr(payloadTypeName(payload), ct.String(), nil)
}

func contentTypeOf(msg *message.Message) mimetype.Type {
	raw := msg.HeaderString(message.HeaderContentType)
	if raw == "" {
		return mimetype.Type{}
	}
	ct, err := mimetype.Parse(raw)
	if err != nil {
		return mimetype.Type{}
	}
	return ct
}

func payloadTypeName(payload any) string {
	if payload == nil {
		return "<nil>"
	}
	return reflect.TypeOf(payload).String()
}
