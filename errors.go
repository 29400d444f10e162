// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import (
	"io"

	"github.com/pkg/errors"
)

// TransportClosedError is returned for operations on a closed Transport,
// and is fatal to every Substream multiplexed on it.
type TransportClosedError struct{}

func (TransportClosedError) Error() string { return "transport closed" }

// SubstreamClosedError is returned when writing to a Substream after its
// end envelope has been sent.
type SubstreamClosedError struct{}

func (SubstreamClosedError) Error() string { return "substream closed" }

// DuplicateNameError is returned when opening a Substream whose channel
// name is already registered on the Transport.
type DuplicateNameError struct{ Name string }

func (e DuplicateNameError) Error() string { return "substream name in use: " + e.Name }

// AlreadyConfiguredError is returned when Configure is called on a
// Controller that has left the Created state.
type AlreadyConfiguredError struct{}

func (AlreadyConfiguredError) Error() string { return "already configured" }

// DestroyedError is returned for operations on a destroyed Controller. It
// is also the error handed to pending remote call callbacks orphaned by
// Destroy.
type DestroyedError struct{}

func (DestroyedError) Error() string { return "pagelet destroyed" }

// UnknownMethodError is returned when calling a remote method that is not
// in the capability table.
type UnknownMethodError struct{ Method string }

func (e UnknownMethodError) Error() string { return "unknown method: " + e.Method }

// AssetLoadError is the cause reported when a dependency fails to load or
// the asset phase deadline expires. It is fatal to that configuration
// attempt.
type AssetLoadError struct{ URL string }

func (e AssetLoadError) Error() string { return "asset load failed: " + e.URL }

// BadFragmentError is returned when parsing text that is not a
// marker-wrapped fragment.
type BadFragmentError struct{}

func (BadFragmentError) Error() string { return "malformed fragment" }

func isClosedError(err error) bool {
	switch errors.Cause(err) {
	case TransportClosedError{}:
		return true
	case io.ErrClosedPipe:
		return true
	case io.EOF:
		return true
	}
	return false
}
