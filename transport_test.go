// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package pagelet

import (
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// pipeConn is an in-memory MessageConn. A pair shares one closed channel,
// so closing either end breaks the link both ways.
type pipeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   *sync.Once
}

func newPipeConns() (a, b *pipeConn) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	closed := make(chan struct{})
	once := &sync.Once{}
	a = &pipeConn{in: ba, out: ab, closed: closed, once: once}
	b = &pipeConn{in: ab, out: ba, closed: closed, once: once}
	return
}

func (p *pipeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.closed:
		return nil, io.EOF
	}
}

func (p *pipeConn) WriteMessage(msg []byte) error {
	select {
	case p.out <- msg:
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

type statsCounter struct {
	bytesWritten int64
	bytesRead    int64
}

func (s *statsCounter) AddBytesWritten(n int64) { atomic.AddInt64(&s.bytesWritten, n) }
func (s *statsCounter) AddBytesRead(n int64)    { atomic.AddInt64(&s.bytesRead, n) }

// collectHandler records peer-opened substreams and their envelopes.
type collectHandler struct {
	mu   sync.Mutex
	subs map[string]*Substream
	envs map[string][]Envelope
	seen chan Envelope
}

func newCollectHandler() *collectHandler {
	return &collectHandler{
		subs: make(map[string]*Substream),
		envs: make(map[string][]Envelope),
		seen: make(chan Envelope, 64),
	}
}

func (h *collectHandler) ServeSubstream(s *Substream) {
	h.mu.Lock()
	h.subs[s.Name()] = s
	h.mu.Unlock()
	for {
		env, err := s.Receive()
		if err != nil {
			return
		}
		h.mu.Lock()
		h.envs[s.Name()] = append(h.envs[s.Name()], env)
		h.mu.Unlock()
		h.seen <- env
	}
}

func (h *collectHandler) envelopes(name string) []Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Envelope(nil), h.envs[name]...)
}

func (h *collectHandler) wait(t *testing.T, n int) {
	t.Helper()
	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	for i := 0; i < n; i++ {
		select {
		case <-h.seen:
		case <-timer.C:
			t.Fatal("timeout waiting for envelopes")
		}
	}
}

// transportPair connects a client transport to a server transport running
// the given handler, both served until the test ends.
func transportPair(t *testing.T, h SubstreamHandler) (client, server *Transport) {
	t.Helper()
	a, b := newPipeConns()
	client = NewTransport(a)
	server = NewTransport(b)
	server.Handler = h
	go client.Serve()
	go server.Serve()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return
}

func Test_Transport_OpenDuplicateName(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	client, _ := transportPair(t, nil)
	_, err := client.Open("hero")
	assert.NoError(t, err)
	_, err = client.Open("hero")
	assert.Equal(t, DuplicateNameError{Name: "hero"}, errors.Cause(err))
}

func Test_Transport_SubstreamsInterleave(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	h := newCollectHandler()
	client, _ := transportPair(t, h)

	x, err := client.Open("x")
	assert.NoError(t, err)
	y, err := client.Open("y")
	assert.NoError(t, err)

	for i := 1; i <= 3; i++ {
		assert.NoError(t, x.Write(Envelope{Kind: KindEvent, ID: "x"}))
		assert.NoError(t, y.Write(Envelope{Kind: KindEvent, ID: "y"}))
	}
	h.wait(t, 6)

	for _, name := range []string{"x", "y"} {
		envs := h.envelopes(name)
		assert.Equal(t, 3, len(envs))
		for _, env := range envs {
			assert.Equal(t, name, env.ID)
		}
	}
}

func Test_Transport_InOrderDelivery(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	h := newCollectHandler()
	client, _ := transportPair(t, h)

	s, err := client.Open("seq")
	assert.NoError(t, err)
	const n = 20
	for i := 0; i < n; i++ {
		assert.NoError(t, s.Write(Envelope{Kind: KindEvent, Args: []any{i}}))
	}
	h.wait(t, n)

	envs := h.envelopes("seq")
	assert.Equal(t, n, len(envs))
	for i, env := range envs {
		assert.EqualValues(t, i, env.Args[0])
	}
}

func Test_Transport_UnknownChannelDropped(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	client, _ := transportPair(t, nil) // no handler on either side

	s, err := client.Open("known")
	assert.NoError(t, err)
	// peer has no handler; frames for it are dropped without killing the link
	assert.NoError(t, s.Write(Envelope{Kind: KindEvent}))
	assert.NoError(t, s.End(Envelope{}))
}

func Test_Transport_CloseAbortsReceive(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	client, _ := transportPair(t, nil)
	s, err := client.Open("doomed")
	assert.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Receive()
		done <- err
	}()
	client.Close()
	select {
	case err := <-done:
		assert.Equal(t, TransportClosedError{}, errors.Cause(err))
	case <-time.After(time.Second):
		t.Fatal("Receive did not abort")
	}
}

func Test_Transport_Stats(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	h := newCollectHandler()
	a, b := newPipeConns()
	stats := &statsCounter{}
	client := NewTransport(a)
	client.StatsCollector = stats
	server := NewTransport(b)
	server.Handler = h
	go client.Serve()
	go server.Serve()
	defer client.Close()
	defer server.Close()

	s, err := client.Open("stat")
	assert.NoError(t, err)
	assert.NoError(t, s.Write(Envelope{Kind: KindEvent}))
	h.wait(t, 1)

	assert.NotZero(t, atomic.LoadInt64(&stats.bytesWritten))
}

func Test_Substream_EndReleasesName(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	client, _ := transportPair(t, nil)

	s, err := client.Open("again")
	assert.NoError(t, err)
	assert.NoError(t, s.End(Envelope{}))

	// name is free once the end envelope is sent
	s2, err := client.Open("again")
	assert.NoError(t, err)
	assert.NotSame(t, s, s2)
}

func Test_Substream_WriteAfterEnd(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	client, _ := transportPair(t, nil)

	s, err := client.Open("done")
	assert.NoError(t, err)
	assert.NoError(t, s.End(Envelope{}))
	assert.Equal(t, SubstreamClosedError{}, errors.Cause(s.Write(Envelope{Kind: KindEvent})))
	assert.Equal(t, SubstreamClosedError{}, errors.Cause(s.End(Envelope{})))
}

func Test_Substream_RemoteEndIsEOF(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	h := newCollectHandler()
	client, _ := transportPair(t, h)

	s, err := client.Open("peer")
	assert.NoError(t, err)
	assert.NoError(t, s.Write(Envelope{Kind: KindRegistration, Name: "peer"}))
	h.wait(t, 1)

	h.mu.Lock()
	peer := h.subs["peer"]
	h.mu.Unlock()
	assert.NoError(t, peer.End(Envelope{}))

	_, err = s.Receive()
	assert.Equal(t, io.EOF, errors.Cause(err))
}
