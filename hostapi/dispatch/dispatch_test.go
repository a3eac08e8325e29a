package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/distantsrv/hostd/protocol"
)

// memChannel is an in-process Channel for exercising the dispatcher
// without a real transport, per SPEC_FULL.md §6's minimal in-memory
// Channel.
type memChannel struct {
	in     chan protocol.Request
	out    chan protocol.Response
	closed chan struct{}
}

func newMemChannel() *memChannel {
	return &memChannel{
		in:     make(chan protocol.Request, 16),
		out:    make(chan protocol.Response, 16),
		closed: make(chan struct{}),
	}
}

func (m *memChannel) ReadRequest() (protocol.Request, error) {
	select {
	case req := <-m.in:
		return req, nil
	case <-m.closed:
		return protocol.Request{}, errClosed
	}
}

func (m *memChannel) WriteResponse(r protocol.Response) error {
	select {
	case m.out <- r:
		return nil
	case <-m.closed:
		return errClosed
	}
}

func (m *memChannel) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return nil
}

type sentinel string

func (s sentinel) Error() string { return string(s) }

const errClosed = sentinel("channel closed")

func newTestConnection(t *testing.T) (*Connection, *memChannel) {
	t.Helper()
	logger := log.NewEntry(log.New())
	srv := NewServer(nil, logger)
	ch := newMemChannel()
	conn := NewConnection(srv, 1, ch)
	return conn, ch
}

func recvResponse(t *testing.T, ch *memChannel) protocol.Response {
	t.Helper()
	select {
	case r := <-ch.out:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for response")
		return protocol.Response{}
	}
}

func TestFileReadRoundTrip(t *testing.T) {
	conn, ch := newTestConnection(t)
	go conn.Serve(context.Background())
	defer ch.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	ch.in <- protocol.Request{ID: 1, Payload: protocol.FileRead{Path: path}}
	resp := recvResponse(t, ch)

	if resp.Origin != 1 {
		t.Fatalf("Origin = %d, want 1", resp.Origin)
	}
	blob, ok := resp.Payload.(protocol.Blob)
	if !ok {
		t.Fatalf("Payload = %T, want Blob", resp.Payload)
	}
	if string(blob.Data) != "hello" {
		t.Errorf("Data = %q, want %q", blob.Data, "hello")
	}
}

func TestBatchPreservesSubmissionOrder(t *testing.T) {
	conn, ch := newTestConnection(t)
	go conn.Serve(context.Background())
	defer ch.Close()

	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	os.WriteFile(a, []byte("A"), 0o644)
	os.WriteFile(b, []byte("B"), 0o644)

	ch.in <- protocol.Request{ID: 2, Payload: protocol.Batch{Operations: []protocol.Operation{
		protocol.FileRead{Path: a},
		protocol.FileRead{Path: b},
	}}}

	resp := recvResponse(t, ch)
	batch, ok := resp.Payload.(protocol.BatchResult)
	if !ok {
		t.Fatalf("Payload = %T, want BatchResult", resp.Payload)
	}
	if len(batch.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(batch.Results))
	}
	first, ok := batch.Results[0].(protocol.Blob)
	if !ok || string(first.Data) != "A" {
		t.Errorf("Results[0] = %+v, want Blob{A}", batch.Results[0])
	}
	second, ok := batch.Results[1].(protocol.Blob)
	if !ok || string(second.Data) != "B" {
		t.Errorf("Results[1] = %+v, want Blob{B}", batch.Results[1])
	}
}

func TestUnknownPathReadReturnsError(t *testing.T) {
	conn, ch := newTestConnection(t)
	go conn.Serve(context.Background())
	defer ch.Close()

	ch.in <- protocol.Request{ID: 3, Payload: protocol.FileRead{Path: "/no/such/path/at/all"}}
	resp := recvResponse(t, ch)

	if _, ok := resp.Payload.(protocol.ErrorResult); !ok {
		t.Fatalf("Payload = %T, want ErrorResult", resp.Payload)
	}
}

func TestProcessLifecycleThroughDispatcher(t *testing.T) {
	conn, ch := newTestConnection(t)
	go conn.Serve(context.Background())
	defer ch.Close()

	const spawnID = protocol.RequestID(4)
	ch.in <- protocol.Request{ID: spawnID, Payload: protocol.ProcSpawn{Cmd: protocol.Cmd("/bin/echo hi")}}
	spawnResp := recvResponse(t, ch)
	if spawnResp.Origin != spawnID {
		t.Fatalf("spawn Origin = %d, want %d", spawnResp.Origin, spawnID)
	}
	spawned, ok := spawnResp.Payload.(protocol.ProcSpawned)
	if !ok {
		t.Fatalf("Payload = %T, want ProcSpawned", spawnResp.Payload)
	}

	sawStdout := false
	sawDone := false
	for !sawDone {
		resp := recvResponse(t, ch)
		if resp.Origin != spawnID {
			t.Errorf("follow-up Origin = %d, want %d (the spawning request's id)", resp.Origin, spawnID)
		}
		switch p := resp.Payload.(type) {
		case protocol.ProcStdout:
			if p.ID != spawned.ID {
				t.Errorf("ProcStdout.ID = %d, want %d", p.ID, spawned.ID)
			}
			sawStdout = true
		case protocol.ProcDone:
			if p.ID != spawned.ID {
				t.Errorf("ProcDone.ID = %d, want %d", p.ID, spawned.ID)
			}
			if !p.Success {
				t.Errorf("ProcDone.Success = false, want true")
			}
			sawDone = true
		}
	}
	if !sawStdout {
		t.Error("never observed ProcStdout before ProcDone")
	}
}
