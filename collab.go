// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import "context"

// Renderer mutates the document on behalf of a pagelet. Implementations
// own templating and DOM access; the runtime only drives them.
type Renderer interface {
	// Load fetches one declared dependency and injects it into the
	// document body, honoring ctx cancellation and deadline.
	Load(ctx context.Context, asset AssetDescriptor) error
	// Inject replaces the pagelet's placeholder content with the given
	// view, reporting success.
	Inject(view string) bool
	// Clear empties the placeholder content; when removePlaceholder is
	// set it also detaches the placeholder from the page.
	Clear(removePlaceholder bool)
}

// Container is an opaque handle to an isolated execution context created
// by a Sandbox.
type Container any

// Sandbox executes pagelet-supplied client code in isolation. The runtime
// creates a container only when client code was actually supplied.
type Sandbox interface {
	Create() (Container, error)
	Execute(c Container, code string) error
	Kill(c Container)
}

// FormBridge intercepts HTML form submissions inside a pagelet's
// placeholder and serializes them onto its Substream. Attach is called
// once configuration binds the placeholder; Detach runs as a teardown
// hook during Destroy.
type FormBridge interface {
	Attach(p *Controller)
	Detach(p *Controller)
}

// Pool recycles fully-torn-down pagelet instances for reuse.
type Pool interface {
	Release(p *Controller)
}
