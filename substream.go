// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Substream is a named logical sub-channel over a shared Transport, owned
// exclusively by one pagelet. Inbound envelopes are delivered in transport
// arrival order. Multiple Substreams interleave freely on the Transport.
type Substream struct {
	t    *Transport
	name string

	readCh      chan Envelope // inbound envelopes from the transport read loop
	localClosed chan struct{} // closed when End() has been called
	endOnce     sync.Once     // closes readCh on the inbound end envelope

	// atomic, so String() can print state without racing
	localSentEnd  int32
	remoteSentEnd int32
}

func newSubstream(t *Transport, name string) *Substream {
	return &Substream{
		t:           t,
		name:        name,
		readCh:      make(chan Envelope, SubstreamBacklog),
		localClosed: make(chan struct{}),
	}
}

// Name returns the channel name, identical to the owning pagelet's name.
func (s *Substream) Name() string { return s.name }

func (s *Substream) String() string {
	state := ""
	if atomic.LoadInt32(&s.localSentEnd) != 0 {
		state += " LE"
	}
	if atomic.LoadInt32(&s.remoteSentEnd) != 0 {
		state += " RE"
	}
	return fmt.Sprintf("[Substream %q%s]", s.name, state)
}

func (s *Substream) hasLocalSentEnd() bool {
	return atomic.LoadInt32(&s.localSentEnd) != 0
}

// submit gives the Substream an inbound envelope. Called only from the
// Transport read loop; if it blocks, it blocks all Substreams on the
// Transport.
func (s *Substream) submit(env Envelope) {
	if env.Kind == KindEnd {
		s.endOnce.Do(func() {
			atomic.StoreInt32(&s.remoteSentEnd, 1)
			close(s.readCh)
		})
		return
	}
	if atomic.LoadInt32(&s.remoteSentEnd) != 0 {
		// frame after the remote end envelope, drop it
		return
	}
	select {
	case <-s.localClosed:
		// locally ended, discard late arrivals
	case s.readCh <- env:
	}
}

// Write tags the envelope with this channel's name and enqueues it on the
// shared Transport. No writes are permitted after End.
func (s *Substream) Write(env Envelope) error {
	if s.hasLocalSentEnd() {
		return errors.WithStack(SubstreamClosedError{})
	}
	frame, err := EncodeFrame(s.name, env)
	if err != nil {
		return err
	}
	return s.t.write(frame)
}

// End sends a final envelope and marks the channel closed, releasing the
// channel name for reuse. Further writes return SubstreamClosedError.
func (s *Substream) End(env Envelope) error {
	if !atomic.CompareAndSwapInt32(&s.localSentEnd, 0, 1) {
		return errors.WithStack(SubstreamClosedError{})
	}
	env.Kind = KindEnd
	frame, err := EncodeFrame(s.name, env)
	if err == nil {
		err = s.t.write(frame)
	}
	close(s.localClosed)
	s.t.release(s.name)
	return err
}

// Receive returns the next inbound envelope in arrival order. It returns
// io.EOF after the remote end envelope, io.ErrClosedPipe after End has
// been called locally, and TransportClosedError if the Transport closes.
func (s *Substream) Receive() (env Envelope, err error) {
	select {
	case env, ok := <-s.readCh:
		if !ok {
			return env, errors.WithStack(io.EOF)
		}
		return env, nil
	case <-s.localClosed:
		return env, errors.WithStack(io.ErrClosedPipe)
	case <-s.t.AbortChannel():
		return env, errors.WithStack(TransportClosedError{})
	}
}
