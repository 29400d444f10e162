// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import "sync"

// EventHandler receives an emitted event's arguments.
type EventHandler func(args ...any)

// Registry is an observer registry mapping event names to handlers. A
// Controller holds one local Registry and a reference to the parent
// page's Registry; page-level code observes any named pagelet through the
// latter without holding a direct reference.
type Registry struct {
	mu       sync.Mutex
	handlers map[string][]EventHandler
}

// NewRegistry returns an empty observer registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]EventHandler)}
}

// On registers a handler for the named event.
func (r *Registry) On(event string, h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], h)
}

// Emit invokes all handlers registered for the named event, in
// registration order.
func (r *Registry) Emit(event string, args ...any) {
	r.mu.Lock()
	hs := r.handlers[event]
	r.mu.Unlock()
	for _, h := range hs {
		h(args...)
	}
}

// reset drops all registered handlers.
func (r *Registry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string][]EventHandler)
}

// Broadcaster emits events on two scopes: the owning pagelet's local
// Registry, and the parent page's Registry under "<name>::<event>" with
// the owner as first argument.
type Broadcaster struct {
	name  string
	owner any
	local *Registry
	page  *Registry
}

func newBroadcaster(owner any, page *Registry) *Broadcaster {
	return &Broadcaster{owner: owner, local: NewRegistry(), page: page}
}

// Broadcast emits event on the local scope with args, and additionally
// emits "<pageletName>::<event>" on the parent page scope, passing the
// owning pagelet followed by the same args.
func (b *Broadcaster) Broadcast(event string, args ...any) {
	b.local.Emit(event, args...)
	if b.page != nil && b.name != "" {
		b.page.Emit(b.name+ScopeSeparator+event, append([]any{b.owner}, args...)...)
	}
}

// Emit emits event on the local scope only. Used for externally pushed
// events, which get no page-scope fan-out.
func (b *Broadcaster) Emit(event string, args ...any) {
	b.local.Emit(event, args...)
}

// setName binds the page-scope naming prefix at configuration time.
func (b *Broadcaster) setName(name string) {
	b.name = name
}

// reset clears the naming prefix and all local handlers.
func (b *Broadcaster) reset() {
	b.name = ""
	b.local.reset()
}
