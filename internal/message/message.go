// Package message defines the immutable envelope carried through channels.
package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Headers is the header mapping attached to a message.
type Headers map[string]any

// Clone returns an independent copy of the headers.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Message is an immutable payload plus header mapping. Deriving a message
// with different payload or headers always produces a new instance; the
// header map handed out by Headers is a copy.
type Message struct {
	payload any
	headers Headers
}

// New builds a message with a generated id and timestamp header.
func New(payload any) *Message {
	return NewBuilder(payload).Build()
}

// Payload returns the message payload.
func (m *Message) Payload() any {
	return m.payload
}

// Headers returns a copy of all headers.
func (m *Message) Headers() Headers {
	return m.headers.Clone()
}

// Header returns one header value.
func (m *Message) Header(key string) (any, bool) {
	v, ok := m.headers[key]
	return v, ok
}

// HeaderString returns one header value coerced to string, or "".
func (m *Message) HeaderString(key string) string {
	v, ok := m.headers[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ID returns the generated message id header.
func (m *Message) ID() string {
	return m.HeaderString(HeaderID)
}

// Builder assembles a message. Build may be called once per builder; the
// builder's header map is handed over to the message, not shared.
type Builder struct {
	payload any
	headers Headers
}

// NewBuilder starts a message with the given payload.
func NewBuilder(payload any) *Builder {
	return &Builder{
		payload: payload,
		headers: Headers{
			HeaderID:        uuid.NewString(),
			HeaderTimestamp: time.Now().UnixMilli(),
		},
	}
}

// From starts a builder from an existing message, copying its payload and
// headers. A fresh id and timestamp are generated.
func From(m *Message) *Builder {
	b := NewBuilder(m.payload)
	for k, v := range m.headers {
		if k == HeaderID || k == HeaderTimestamp {
			continue
		}
		b.headers[k] = v
	}
	return b
}

// WithPayload replaces the payload.
func (b *Builder) WithPayload(payload any) *Builder {
	b.payload = payload
	return b
}

// SetHeader sets one header.
func (b *Builder) SetHeader(key string, value any) *Builder {
	b.headers[key] = value
	return b
}

// SetHeaderIfAbsent sets one header unless it is already present.
func (b *Builder) SetHeaderIfAbsent(key string, value any) *Builder {
	if _, ok := b.headers[key]; !ok {
		b.headers[key] = value
	}
	return b
}

// CopyHeaders merges the given headers, overwriting existing keys.
func (b *Builder) CopyHeaders(h Headers) *Builder {
	for k, v := range h {
		b.headers[k] = v
	}
	return b
}

// RemoveHeader deletes one header.
func (b *Builder) RemoveHeader(key string) *Builder {
	delete(b.headers, key)
	return b
}

// Build produces the immutable message.
func (b *Builder) Build() *Message {
	return &Message{payload: b.payload, headers: b.headers.Clone()}
}
