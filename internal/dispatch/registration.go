// Package dispatch routes inbound messages to registered listeners. The
// dispatch table is built at registration time and frozen on attach; no
// per-message reflection happens on the hot path.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/memohai/streambind/internal/converter"
)

// ParamKind selects what a listener parameter receives.
type ParamKind int

const (
	// ParamPayload receives the converted payload.
	ParamPayload ParamKind = iota
	// ParamEnvelope receives the full message.
	ParamEnvelope
	// ParamHeaders receives the complete header map.
	ParamHeaders
	// ParamHeader receives one named header value.
	ParamHeader
)

// Param describes one listener argument. Name is set only for ParamHeader.
type Param struct {
	Kind ParamKind
	Name string
}

// Payload declares a converted-payload argument.
func Payload() Param { return Param{Kind: ParamPayload} }

// Envelope declares a full-message argument.
func Envelope() Param { return Param{Kind: ParamEnvelope} }

// Headers declares a header-map argument.
func Headers() Param { return Param{Kind: ParamHeaders} }

// Header declares a single-header argument.
func Header(name string) Param { return Param{Kind: ParamHeader, Name: name} }

// Handler is a listener body. It receives arguments resolved in Params
// order and may return a reply payload, a full reply message, or nil.
type Handler func(ctx context.Context, args []any) (any, error)

// Registration binds a handler to an input channel. When Payload carries a
// structural type tag it also acts as the listener's match condition: with
// several listeners on one channel, a message is delivered to the first
// whose payload type it converts into.
type Registration struct {
	// Input is the input slot the listener consumes.
	Input string
	// Payload is the in-process type the payload is converted to before
	// invocation. The zero tag delivers the payload as-is.
	Payload converter.TypeTag
	// Params describes the handler's arguments, in order.
	Params []Param
	// ReturnsTo names the output slot non-nil results are sent to. Empty
	// discards results.
	ReturnsTo string
	Handler   Handler
}

func (r Registration) validate() error {
	if strings.TrimSpace(r.Input) == "" {
		return fmt.Errorf("listener registration requires an input channel")
	}
	if r.Handler == nil {
		return fmt.Errorf("listener on %s: handler is required", r.Input)
	}
	for _, p := range r.Params {
		switch p.Kind {
		case ParamPayload, ParamEnvelope, ParamHeaders:
		case ParamHeader:
			if p.Name == "" {
				return fmt.Errorf("listener on %s: header parameter requires a name", r.Input)
			}
		default:
			return fmt.Errorf("listener on %s: unsupported parameter kind %d", r.Input, p.Kind)
		}
	}
	return nil
}

// conflictsWith reports whether two listeners on the same channel cannot be
// told apart. Two listeners without structural payload types always
// overlap; two structural listeners overlap only when they name the same
// type.
func (r Registration) conflictsWith(other Registration) bool {
	if !r.Payload.Structural && !other.Payload.Structural {
		return true
	}
	if r.Payload.Structural && other.Payload.Structural {
		return r.Payload.Name == other.Payload.Name
	}
	return false
}
