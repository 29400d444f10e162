// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import "time"

const (
	// DefaultAssetTimeout is the shared deadline for one asset loading phase
	// when the configuration doesn't specify one.
	DefaultAssetTimeout = time.Second * 25
	// DefaultPoolSize is the number of recyclable Controller instances a
	// ControllerPool holds when created with a size of zero or less.
	DefaultPoolSize = 64
	// SubstreamBacklog is the number of inbound envelopes a Substream may
	// buffer before delivery backpressures the shared Transport.
	SubstreamBacklog = 32
	// ScopeSeparator joins a pagelet name and an event name when an event
	// is re-emitted on the parent page scope.
	ScopeSeparator = "::"
)

// reservedMethods are the controller's own capability names. A
// server-declared RPC method that collides with one of these is
// silently skipped during configuration.
var reservedMethods = map[string]struct{}{
	"configure": {},
	"destroy":   {},
	"broadcast": {},
	"emit":      {},
	"call":      {},
	"render":    {},
	"end":       {},
}

// IsReservedMethod reports whether name collides with a built-in
// capability of the Controller.
func IsReservedMethod(name string) bool {
	_, reserved := reservedMethods[name]
	return reserved
}
