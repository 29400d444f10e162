// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

// ControllerPool holds a bounded set of recyclable Controller instances.
// Release only accepts instances whose teardown has fully completed;
// anything else is dropped, preventing reuse of a live pagelet.
type ControllerPool struct {
	ch chan *Controller
}

// NewControllerPool creates a pool holding at most size instances. A size
// of zero or less uses DefaultPoolSize.
func NewControllerPool(size int) *ControllerPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &ControllerPool{ch: make(chan *Controller, size)}
}

// Get returns a blank recycled Controller, or nil if the pool is empty.
// The caller constructs a fresh one with NewController in that case.
func (p *ControllerPool) Get() *Controller {
	select {
	case c := <-p.ch:
		c.reset()
		return c
	default:
		return nil
	}
}

// Release accepts a fully-torn-down Controller for reuse. Instances that
// are not destroyed, or that arrive when the pool is full, are discarded.
// Pooled instances stay in the destroyed state until Get hands them out,
// so a stale Destroy on a released instance remains a no-op.
func (p *ControllerPool) Release(c *Controller) {
	if c == nil || c.State() != StateDestroyed {
		return
	}
	select {
	case p.ch <- c:
	default:
	}
}

// Len returns the number of pooled instances.
func (p *ControllerPool) Len() int {
	return len(p.ch)
}
