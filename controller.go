// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// State is a Controller's position in the pagelet lifecycle.
type State int32

const (
	StateCreated = State(iota)
	StateConfiguring
	StateLoadingAssets
	StateRendered
	StateInitialised
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfiguring:
		return "configuring"
	case StateLoadingAssets:
		return "loading"
	case StateRendered:
		return "rendered"
	case StateInitialised:
		return "initialised"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Config is the server-provisioned configuration input to Configure.
type Config struct {
	ID      string   `cbor:"id,omitempty"`
	Name    string   `cbor:"name"`
	Remove  bool     `cbor:"remove,omitempty"`
	CSS     []string `cbor:"css,omitempty"`
	JS      []string `cbor:"js,omitempty"`
	Run     string   `cbor:"run,omitempty"`
	RPC     []string `cbor:"rpc,omitempty"`
	Data    any      `cbor:"data,omitempty"`
	Timeout int64    `cbor:"timeout,omitempty"` // asset phase deadline in milliseconds
}

func (cfg Config) assetTimeout() time.Duration {
	if cfg.Timeout > 0 {
		return time.Duration(cfg.Timeout) * time.Millisecond
	}
	return DefaultAssetTimeout
}

// Controller is the runtime representation of one pagelet: a lifecycle
// state machine owning one Substream, one Correlator and the collaborator
// handles needed to paint and run the fragment. A Controller is
// exclusively owned by its parent page until destroyed; after Destroy it
// is blank and ownership transfers to the Pool.
type Controller struct {
	Logger zerolog.Logger
	Pool   Pool       // recycler notified on Destroy (optional)
	Bridge FormBridge // form interception hooks (optional)

	transport  *Transport
	renderer   Renderer
	sandbox    Sandbox
	events     *Broadcaster
	correlator *Correlator
	loader     *AssetLoader

	state     int32 // atomic State
	destroyed int32 // atomic teardown guard

	mu           sync.Mutex // guards fields below
	id           string
	name         string
	sub          *Substream
	container    Container
	attached     bool
	clientCode   string
	templateData any
	cssAssets    []string
	jsAssets     []string
	timeout      time.Duration
	removed      bool
	serialNumber uint32
}

var controllerNextSerialNumber uint32

// NewController creates a pagelet Controller in the Created state. The
// Sandbox is injected here rather than discovered globally; page is the
// parent page's observer registry and may be nil.
func NewController(t *Transport, renderer Renderer, sandbox Sandbox, page *Registry) *Controller {
	c := &Controller{
		Logger:       zerolog.Nop(),
		transport:    t,
		renderer:     renderer,
		sandbox:      sandbox,
		correlator:   newCorrelator(),
		loader:       NewAssetLoader(renderer),
		serialNumber: atomic.AddUint32(&controllerNextSerialNumber, 1),
	}
	c.events = newBroadcaster(c, page)
	return c
}

func (c *Controller) String() string {
	return fmt.Sprintf("[Controller %x %q %v]", c.serialNumber, c.Name(), c.State())
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(atomic.LoadInt32(&c.state))
}

func (c *Controller) setState(s State) {
	atomic.StoreInt32(&c.state, int32(s))
}

// advance moves the lifecycle forward only from the expected prior state,
// so a concurrent teardown is never overwritten.
func (c *Controller) advance(from, to State) bool {
	return atomic.CompareAndSwapInt32(&c.state, int32(from), int32(to))
}

func (c *Controller) isDestroyed() bool {
	return atomic.LoadInt32(&c.destroyed) != 0
}

// Name returns the pagelet name, empty until configured.
func (c *Controller) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// ID returns the server-assigned pagelet id.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Removed reports whether teardown also detached the placeholder.
func (c *Controller) Removed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removed
}

func (c *Controller) substream() *Substream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub
}

// On registers a handler on the pagelet's local event scope.
func (c *Controller) On(event string, h EventHandler) {
	c.events.local.On(event, h)
}

// Configure ingests the server-provisioned configuration. Valid only in
// the Created state; calling it again returns AlreadyConfiguredError.
//
// A configuration with Remove set transitions directly to the destroyed
// state without ever opening a Substream or loading assets. Otherwise it
// opens the Substream, announces presence, installs the capability table
// (silently skipping reserved names), emits a "configured" broadcast and
// starts the asset loading phase.
func (c *Controller) Configure(cfg Config) error {
	if !atomic.CompareAndSwapInt32(&c.state, int32(StateCreated), int32(StateConfiguring)) {
		return errors.WithStack(AlreadyConfiguredError{})
	}

	c.mu.Lock()
	c.id = cfg.ID
	c.name = cfg.Name
	c.clientCode = cfg.Run
	c.templateData = cfg.Data
	c.cssAssets = cfg.CSS
	c.jsAssets = cfg.JS
	c.timeout = cfg.assetTimeout()
	c.mu.Unlock()
	c.events.setName(cfg.Name)

	if cfg.Remove {
		// server-directed teardown
		return c.destroy(true)
	}

	if c.Bridge != nil {
		c.Bridge.Attach(c)
		c.mu.Lock()
		c.attached = true
		c.mu.Unlock()
	}

	sub, err := c.transport.Open(cfg.Name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	if err = sub.Write(Envelope{Kind: KindRegistration, Name: cfg.Name}); err != nil {
		return err
	}

	for _, method := range cfg.RPC {
		if IsReservedMethod(method) {
			c.Logger.Debug().Str("pagelet", cfg.Name).Str("method", method).
				Msg("skipping reserved method name")
			continue
		}
		c.correlator.install(method)
	}

	c.events.Broadcast("configured", cfg.Name)
	c.setState(StateLoadingAssets)
	go c.run(sub)
	return nil
}

// run drives the asset phase, the render and initialise transitions, and
// then dispatches inbound envelopes until the Substream ends.
func (c *Controller) run(sub *Substream) {
	c.mu.Lock()
	assets := assetUnion(c.cssAssets, c.jsAssets)
	timeout := c.timeout
	c.mu.Unlock()

	err := c.loader.LoadAll(context.Background(), assets, timeout)
	if c.isDestroyed() {
		// destroyed mid-phase; the completion is ignored
		return
	}
	if err != nil {
		// fatal to this configuration attempt, lifecycle halts here
		c.Logger.Error().Err(err).Str("pagelet", c.Name()).Msg("asset loading failed")
		c.events.Broadcast("error", err)
		// release the channel, or stray inbound frames for it could fill
		// the backlog and wedge the shared read loop
		c.mu.Lock()
		c.sub = nil
		c.mu.Unlock()
		sub.End(Envelope{})
		return
	}

	if !c.advance(StateLoadingAssets, StateRendered) {
		return
	}
	if view := c.initialView(); view != "" {
		c.renderer.Inject(view)
		c.events.Broadcast("render", view)
	}

	c.initialise()

	for {
		env, err := sub.Receive()
		if err != nil {
			return
		}
		c.dispatch(env)
	}
}

// initialView returns the initial fragment carried in the configuration
// data, unwrapping it if the server sent it marker-wrapped.
func (c *Controller) initialView() string {
	c.mu.Lock()
	data := c.templateData
	c.mu.Unlock()
	s, ok := data.(string)
	if !ok {
		return ""
	}
	if view, err := ParseFragment(s); err == nil {
		return view
	}
	return s
}

// initialise runs the pagelet-supplied client code, creating a sandbox
// container only when there is code to run.
func (c *Controller) initialise() {
	c.mu.Lock()
	code := c.clientCode
	c.mu.Unlock()

	if code != "" {
		container, err := c.sandbox.Create()
		if err == nil {
			c.mu.Lock()
			c.container = container
			c.mu.Unlock()
			err = c.sandbox.Execute(container, code)
		}
		if err != nil {
			c.Logger.Error().Err(err).Str("pagelet", c.Name()).Msg("client code failed")
		}
	}

	if !c.advance(StateRendered, StateInitialised) {
		// teardown raced the creation and may have drained a nil handle
		// before the container was stored, so reclaim and kill it here
		c.mu.Lock()
		container := c.container
		c.container = nil
		c.mu.Unlock()
		if container != nil {
			c.sandbox.Kill(container)
		}
		return
	}
	c.events.Broadcast("initialise")
}

// dispatch routes one inbound envelope by kind. Unknown kinds are dropped
// for forward compatibility.
func (c *Controller) dispatch(env Envelope) {
	switch env.Kind {
	case KindRPC:
		if !c.correlator.resolve(env.ID, env.Args) {
			c.Logger.Debug().Str("pagelet", c.Name()).Str("id", env.ID).
				Msg("no pending handler for call id")
		}
	case KindEvent:
		if len(env.Args) > 0 {
			if name, ok := env.Args[0].(string); ok {
				// no page-scope fan-out for externally pushed events
				c.events.Emit(name, env.Args[1:]...)
			}
		}
	case KindFragment:
		if env.Frag != nil {
			c.renderer.Inject(env.Frag.View)
		}
	default:
		c.Logger.Debug().Str("pagelet", c.Name()).Str("type", string(env.Kind)).
			Msg("dropping envelope of unknown kind")
	}
}

// Call invokes a remote method from the capability table. The callback is
// one-shot and fires when the matching response envelope arrives, or with
// DestroyedError if the pagelet is destroyed first. There is no timeout.
func (c *Controller) Call(method string, args []any, cb RPCCallback) error {
	if c.isDestroyed() {
		return errors.WithStack(DestroyedError{})
	}
	sub := c.substream()
	if sub == nil {
		return errors.WithStack(SubstreamClosedError{})
	}
	return c.correlator.Call(sub, method, args, cb)
}

// Destroy unwinds the pagelet from any state: it emits the destroy
// signal, clears the placeholder, fails and uninstalls pending remote
// calls, releases the sandbox container, ends the Substream and hands the
// instance to the Pool. Destroy is idempotent; repeated calls are no-ops.
//
// An in-flight asset phase is abandoned, not cancelled; its completion is
// ignored once the instance is destroyed.
func (c *Controller) Destroy(removePlaceholder bool) error {
	return c.destroy(removePlaceholder)
}

func (c *Controller) destroy(removePlaceholder bool) error {
	if !atomic.CompareAndSwapInt32(&c.destroyed, 0, 1) {
		return nil
	}
	// entering the destroyed state first stops the lifecycle goroutine
	// from advancing past it
	c.setState(StateDestroyed)

	c.events.Broadcast("destroy")

	c.mu.Lock()
	attached := c.attached
	c.attached = false
	c.mu.Unlock()
	if attached && c.Bridge != nil {
		c.Bridge.Detach(c)
	}
	c.renderer.Clear(removePlaceholder)
	c.correlator.abandon(errors.WithStack(DestroyedError{}))

	c.mu.Lock()
	container := c.container
	c.container = nil
	sub := c.sub
	c.sub = nil
	c.clientCode = ""
	c.templateData = nil
	c.cssAssets = nil
	c.jsAssets = nil
	c.removed = removePlaceholder
	c.mu.Unlock()

	if container != nil {
		c.sandbox.Kill(container)
	}
	var err error
	if sub != nil {
		err = sub.End(Envelope{Kind: KindEnd})
	}

	if c.Pool != nil {
		c.Pool.Release(c)
	}
	return err
}

// reset restores a destroyed Controller to a blank reusable state. Called
// by the pool before handing the instance out again; no handlers or
// identifiers survive across reuse cycles.
func (c *Controller) reset() {
	c.mu.Lock()
	c.id = ""
	c.name = ""
	c.removed = false
	c.timeout = 0
	c.mu.Unlock()
	c.events.reset()
	atomic.StoreInt32(&c.destroyed, 0)
	c.setState(StateCreated)
}
