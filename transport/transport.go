// Package transport supplies the dispatch.Channel implementations a
// running server needs: an in-memory pair for tests and a
// length-prefixed framer over any net.Conn. Encryption and
// authentication are explicit non-goals (spec.md §1); this package only
// frames and decodes already-opened connections. Grounded in shape on
// the teacher's pkg/admin's minimal net/http server wiring, adapted to
// a raw length-prefixed TCP framer per SPEC_FULL.md §6.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/distantsrv/hostd/protocol"
)

// MaxFrameSize bounds a single frame to guard against a corrupt or
// hostile length prefix exhausting memory.
const MaxFrameSize = 64 * 1024 * 1024

// Format selects the wire serialization a Conn uses.
type Format int

// The two serialization formats spec.md §6 requires support for.
const (
	FormatJSON Format = iota
	FormatMsgpack
)

// Conn frames protocol.Request/Response envelopes over an underlying
// net.Conn using a 4-byte big-endian length prefix per frame.
type Conn struct {
	format Format
	rw     net.Conn
	r      *bufio.Reader

	writeMu sync.Mutex
}

// NewConn wraps rw, a single already-accepted connection, for a given
// wire format.
func NewConn(rw net.Conn, format Format) *Conn {
	return &Conn{format: format, rw: rw, r: bufio.NewReader(rw)}
}

// ReadRequest implements dispatch.Channel.
func (c *Conn) ReadRequest() (protocol.Request, error) {
	frame, err := readFrame(c.r)
	if err != nil {
		return protocol.Request{}, err
	}
	if c.format == FormatMsgpack {
		return protocol.DecodeRequestMsgpack(frame)
	}
	return protocol.DecodeRequestJSON(frame)
}

// WriteResponse implements dispatch.Channel.
func (c *Conn) WriteResponse(r protocol.Response) error {
	var frame []byte
	var err error
	if c.format == FormatMsgpack {
		frame, err = protocol.EncodeResponseMsgpack(r)
	} else {
		frame, err = protocol.EncodeResponseJSON(r)
	}
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.rw, frame)
}

// Close implements dispatch.Channel.
func (c *Conn) Close() error { return c.rw.Close() }

func readFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("transport: frame of %d bytes exceeds max %d", n, MaxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFrame(w io.Writer, frame []byte) error {
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("transport: frame of %d bytes exceeds max %d", len(frame), MaxFrameSize)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}
