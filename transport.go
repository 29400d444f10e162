// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// MessageConn is the I/O endpoint shared by all Substreams: a connection
// carrying discrete messages, such as a websocket. It is the only object
// that touches the network.
type MessageConn interface {
	// ReadMessage returns the next message, blocking until one arrives.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one message.
	WriteMessage(p []byte) error
	// Close closes the connection, unblocking readers.
	Close() error
}

// StatsCollector is the interface required to collect transfer statistics.
type StatsCollector interface {
	AddBytesWritten(int64)
	AddBytesRead(int64)
}

// SubstreamHandler is invoked for inbound frames addressed to a channel
// name with no registered Substream. A server-side Transport sets one to
// accept peer-opened channels; a client-side Transport leaves it nil and
// such frames are dropped.
type SubstreamHandler interface {
	ServeSubstream(s *Substream)
}

// Transport multiplexes Substreams over one shared MessageConn.
// It maintains the set of registered channel names; a name is never
// registered twice concurrently.
type Transport struct {
	StatsCollector // where to report statistics (optional)
	Handler        SubstreamHandler
	Logger         zerolog.Logger

	conn         MessageConn
	writeCh      chan []byte
	doneChan     chan struct{}
	mu           sync.Mutex // guards substreams and doneChan closing
	substreams   map[string]*Substream
	serialNumber uint32
}

var transportNextSerialNumber uint32

// NewTransport creates a Transport over the given message connection.
func NewTransport(conn MessageConn) *Transport {
	return &Transport{
		Logger:       zerolog.Nop(),
		conn:         conn,
		writeCh:      make(chan []byte),
		doneChan:     make(chan struct{}),
		substreams:   make(map[string]*Substream),
		serialNumber: atomic.AddUint32(&transportNextSerialNumber, 1),
	}
}

func (t *Transport) String() string {
	return fmt.Sprintf("[Transport %x]", t.serialNumber)
}

// Open registers a new Substream for the given channel name and returns
// it. Returns a DuplicateNameError if the name is already registered.
func (t *Transport) Open(name string) (*Substream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isClosedLocked() {
		return nil, errors.WithStack(TransportClosedError{})
	}
	if _, exists := t.substreams[name]; exists {
		return nil, errors.WithStack(DuplicateNameError{Name: name})
	}
	s := newSubstream(t, name)
	t.substreams[name] = s
	return s, nil
}

// release removes a Substream from the registry, freeing its channel name
// for reuse.
func (t *Transport) release(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.substreams, name)
}

func (t *Transport) lookup(name string) *Substream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.substreams[name]
}

// write queues an encoded frame for transmission.
func (t *Transport) write(frame []byte) error {
	select {
	case t.writeCh <- frame:
		return nil
	case <-t.doneChan:
		return errors.WithStack(TransportClosedError{})
	}
}

// AbortChannel returns the channel that is closed when the Transport is
// closing. Substream reads select on it.
func (t *Transport) AbortChannel() <-chan struct{} {
	return t.doneChan
}

// Serve processes inbound and outbound frames until the connection fails
// or the Transport is closed.
func (t *Transport) Serve() (err error) {
	errCh := make(chan error, 2)
	go func() { errCh <- t.readLoop() }()
	go func() { errCh <- t.writeLoop() }()

	err = <-errCh

	if !t.isClosed() {
		if closeErr := t.Close(); closeErr != nil && (err == nil || isClosedError(err)) {
			err = closeErr
		}
	}

	if otherErr := <-errCh; otherErr != nil && err == nil {
		err = otherErr
	}

	if isClosedError(err) {
		err = nil
	}
	return
}

func (t *Transport) readLoop() error {
	hasCollector := t.StatsCollector != nil
	for {
		p, err := t.conn.ReadMessage()
		if err != nil {
			if t.isClosed() {
				return errors.WithStack(TransportClosedError{})
			}
			return errors.WithStack(err)
		}
		if hasCollector {
			t.StatsCollector.AddBytesRead(int64(len(p)))
		}

		channel, env, err := DecodeFrame(p)
		if err != nil {
			// Undecodable frames are fatal to the shared connection.
			return err
		}

		s := t.lookup(channel)
		if s == nil {
			if t.Handler == nil {
				t.Logger.Debug().Str("channel", channel).Str("type", string(env.Kind)).
					Msg("dropping frame for unknown channel")
				continue
			}
			if s, err = t.Open(channel); err != nil {
				return err
			}
			go t.Handler.ServeSubstream(s)
		}
		s.submit(env)
	}
}

func (t *Transport) writeLoop() error {
	hasCollector := t.StatsCollector != nil
	for {
		select {
		case frame := <-t.writeCh:
			if err := t.conn.WriteMessage(frame); err != nil {
				return errors.WithStack(err)
			}
			if hasCollector {
				t.StatsCollector.AddBytesWritten(int64(len(frame)))
			}
		case <-t.doneChan:
			return errors.WithStack(TransportClosedError{})
		}
	}
}

func (t *Transport) isClosedLocked() bool {
	select {
	case <-t.doneChan:
		return true
	default:
		return false
	}
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isClosedLocked()
}

// Close closes the Transport immediately, aborting all Substreams.
func (t *Transport) Close() (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isClosedLocked() {
		close(t.doneChan)
		err = t.conn.Close()
		for name := range t.substreams {
			delete(t.substreams, name)
		}
	}
	return
}
