// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

/*
Package pagelet implements the client-side runtime for server-provisioned
UI fragments ("pagelets") delivered incrementally over a shared multiplexed
connection.

Many pagelets share one underlying Transport; each live pagelet owns a named
Substream over it. A Substream delivers typed envelopes in arrival order and
supports a graceful end-of-stream. Envelopes carry remote call results,
broadcast events or fragment updates, and the Controller routes each one by
its kind.

A Controller drives one pagelet through its lifecycle: Created, Configuring,
LoadingAssets, Rendered, Initialised and finally Destroyed. Configuration
opens the Substream, announces presence to the server, installs the remote
call capability table and starts the asset loading phase. Assets load
concurrently under a shared deadline; the first failure aborts the phase and
halts the lifecycle. On success the Renderer paints the initial fragment and
the Sandbox executes any pagelet-supplied client code.

Destroying a Controller is idempotent. It unwinds the capability table,
releases the sandbox container, ends the Substream and returns the instance
to a ControllerPool for reuse. */
package pagelet
