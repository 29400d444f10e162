// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// RPCCallback receives the response arguments of a remote call. By
// convention the first argument is an error indicator (nil on success).
type RPCCallback func(args ...any)

// Correlator tracks in-flight remote calls for one pagelet and matches
// inbound responses to their pending callbacks. Installed methods form an
// explicit capability table validated at configuration time; per-method
// sequence counters start at 1 and are never reused within one instance's
// lifetime.
type Correlator struct {
	mu       sync.Mutex
	methods  map[string]struct{}
	counters map[string]uint64
	pending  map[string]RPCCallback
}

func newCorrelator() *Correlator {
	return &Correlator{
		methods:  make(map[string]struct{}),
		counters: make(map[string]uint64),
		pending:  make(map[string]RPCCallback),
	}
}

// install adds a method to the capability table. Reserved names are the
// caller's responsibility to filter.
func (r *Correlator) install(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[method] = struct{}{}
}

// Methods returns the installed capability names.
func (r *Correlator) Methods() (names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.methods {
		names = append(names, name)
	}
	return
}

// Pending returns the number of calls awaiting a response.
func (r *Correlator) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Call issues a remote call on the given Substream. It registers cb as a
// one-shot handler keyed by the generated call id and writes the request
// envelope. There is no timeout; an undelivered response leaves the
// handler pending until the pagelet is destroyed.
func (r *Correlator) Call(s *Substream, method string, args []any, cb RPCCallback) error {
	r.mu.Lock()
	if _, known := r.methods[method]; !known {
		r.mu.Unlock()
		return errors.WithStack(UnknownMethodError{Method: method})
	}
	r.counters[method]++
	id := method + "#" + strconv.FormatUint(r.counters[method], 10)
	if cb != nil {
		r.pending[id] = cb
	}
	r.mu.Unlock()

	err := s.Write(Envelope{Kind: KindRPC, Method: method, Args: args, ID: id})
	if err != nil && cb != nil {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}
	return err
}

// resolve matches an inbound response to its pending callback and invokes
// it with the carried arguments. A given call id fires at most once;
// resolve reports whether a handler was consumed.
func (r *Correlator) resolve(id string, args []any) bool {
	r.mu.Lock()
	cb, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if ok {
		cb(args...)
	}
	return ok
}

// abandon fires every pending callback with the given error as its first
// argument, then clears the correlation table and the capability table.
// Called during teardown so orphaned calls fail explicitly instead of
// hanging forever.
func (r *Correlator) abandon(err error) {
	r.mu.Lock()
	orphans := r.pending
	r.pending = make(map[string]RPCCallback)
	r.methods = make(map[string]struct{})
	r.counters = make(map[string]uint64)
	r.mu.Unlock()
	for _, cb := range orphans {
		cb(err)
	}
}
