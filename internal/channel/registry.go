package channel

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// SharedRegistry maps namespaced qualified names to channels shared across
// binding sets. It is passed explicitly to whoever needs it — there is no
// process-wide instance — and all access is synchronized because multiple
// binding sets may race to register the same name.
type SharedRegistry struct {
	mu       sync.Mutex
	channels map[string]Channel
}

// NewSharedRegistry creates an empty shared channel registry.
func NewSharedRegistry() *SharedRegistry {
	return &SharedRegistry{channels: map[string]Channel{}}
}

// Get returns the channel registered under the qualified name.
func (r *SharedRegistry) Get(qualifiedName string) (Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[strings.TrimSpace(qualifiedName)]
	return ch, ok
}

// Put registers a channel under the qualified name.
func (r *SharedRegistry) Put(qualifiedName string, ch Channel) error {
	qualifiedName = strings.TrimSpace(qualifiedName)
	if qualifiedName == "" {
		return fmt.Errorf("shared channel name is required")
	}
	if ch == nil {
		return fmt.Errorf("shared channel %s is nil", qualifiedName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[qualifiedName]; exists {
		return fmt.Errorf("shared channel already registered: %s", qualifiedName)
	}
	r.channels[qualifiedName] = ch
	return nil
}

// Names returns all registered qualified names, sorted.
func (r *SharedRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
