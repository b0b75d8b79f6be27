// Package binder declares the transport binder contract the binding core
// drives. Implementations connect channels to a concrete transport; the
// core calls each method exactly once per bindable holder and treats a
// failure as fatal to that one channel's binding only.
package binder

import (
	"context"

	"github.com/memohai/streambind/internal/channel"
)

// Binder binds channels to transport destinations by logical name.
type Binder interface {
	// BindConsumer starts delivering transport messages for the logical
	// name into the channel.
	BindConsumer(ctx context.Context, ch channel.Channel, name string) error
	// BindProducer starts forwarding messages sent on the channel to the
	// transport destination for the logical name.
	BindProducer(ctx context.Context, ch channel.Channel, name string) error
	// UnbindConsumers stops all consumer bindings for the logical name.
	UnbindConsumers(ctx context.Context, name string) error
	// UnbindProducers stops all producer bindings for the logical name.
	UnbindProducers(ctx context.Context, name string) error
}
