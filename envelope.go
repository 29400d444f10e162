// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Kind tags an Envelope variant on the wire.
type Kind string

const (
	// KindRegistration announces a pagelet's presence to the server. Sent
	// once, when configuration begins.
	KindRegistration = Kind("pagelet")
	// KindRPC carries a remote call request or its response. Requests set
	// Method; responses are correlated by ID alone.
	KindRPC = Kind("rpc")
	// KindEvent carries a server-pushed event; Args holds the event name
	// followed by its payload.
	KindEvent = Kind("event")
	// KindFragment carries replacement view content for the pagelet.
	KindFragment = Kind("fragment")
	// KindEnd marks the graceful end of a Substream.
	KindEnd = Kind("end")
	// KindGet and KindPost carry intercepted form submissions from a
	// FormBridge; Body maps field names to values.
	KindGet  = Kind("get")
	KindPost = Kind("post")
)

// Frag is the payload of a fragment update envelope.
type Frag struct {
	View string `cbor:"view"`
}

// Envelope is the typed variant delivered over a Substream. Delivery order
// within one Substream is preserved; there is no ordering guarantee across
// Substreams.
type Envelope struct {
	Kind   Kind              `cbor:"type"`
	Name   string            `cbor:"name,omitempty"`
	Method string            `cbor:"method,omitempty"`
	ID     string            `cbor:"id,omitempty"`
	Args   []any             `cbor:"args,omitempty"`
	Frag   *Frag             `cbor:"frag,omitempty"`
	Body   map[string]string `cbor:"body,omitempty"`
}

// wireFrame is one message on the shared Transport: an Envelope tagged
// with the channel name of the Substream it belongs to.
type wireFrame struct {
	Channel  string   `cbor:"channel"`
	Envelope Envelope `cbor:"envelope"`
}

// EncodeFrame encodes an envelope tagged with its channel name into a
// single transport message.
func EncodeFrame(channel string, env Envelope) ([]byte, error) {
	b, err := cbor.Marshal(wireFrame{Channel: channel, Envelope: env})
	return b, errors.WithStack(err)
}

// DecodeFrame decodes one transport message. Unknown envelope kinds decode
// without error; dropping them is the dispatcher's policy.
func DecodeFrame(b []byte) (channel string, env Envelope, err error) {
	var wf wireFrame
	if err = cbor.Unmarshal(b, &wf); err != nil {
		err = errors.WithStack(err)
		return
	}
	return wf.Channel, wf.Envelope, nil
}
