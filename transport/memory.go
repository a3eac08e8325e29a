package transport

import (
	"errors"

	"github.com/distantsrv/hostd/protocol"
)

// ErrClosed is returned by Memory once it has been closed.
var ErrClosed = errors.New("transport: channel closed")

// Memory is a dispatch.Channel that never touches the network: it
// shuttles already-decoded envelopes over Go channels. Used to run the
// dispatcher end-to-end in tests without a socket (SPEC_FULL.md §6's
// "minimal in-memory implementation").
type Memory struct {
	requests  chan protocol.Request
	responses chan protocol.Response
	closed    chan struct{}
}

// NewMemoryPair returns two ends of one in-memory channel: server reads
// requests sent on client and writes responses read by client.
func NewMemoryPair() (server *Memory, client *MemoryClient) {
	m := &Memory{
		requests:  make(chan protocol.Request, 64),
		responses: make(chan protocol.Response, 64),
		closed:    make(chan struct{}),
	}
	return m, &MemoryClient{m: m}
}

// ReadRequest implements dispatch.Channel.
func (m *Memory) ReadRequest() (protocol.Request, error) {
	select {
	case req := <-m.requests:
		return req, nil
	case <-m.closed:
		return protocol.Request{}, ErrClosed
	}
}

// WriteResponse implements dispatch.Channel.
func (m *Memory) WriteResponse(r protocol.Response) error {
	select {
	case m.responses <- r:
		return nil
	case <-m.closed:
		return ErrClosed
	}
}

// Close implements dispatch.Channel.
func (m *Memory) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return nil
}

// MemoryClient is the test-harness-facing side of a Memory pair.
type MemoryClient struct {
	m *Memory
}

// Send enqueues req for the server side to read.
func (c *MemoryClient) Send(req protocol.Request) error {
	select {
	case c.m.requests <- req:
		return nil
	case <-c.m.closed:
		return ErrClosed
	}
}

// Recv blocks for the server's next response.
func (c *MemoryClient) Recv() (protocol.Response, error) {
	select {
	case resp := <-c.m.responses:
		return resp, nil
	case <-c.m.closed:
		return protocol.Response{}, ErrClosed
	}
}
