package process

import (
	"sync"
	"testing"
	"time"

	"github.com/distantsrv/hostd/protocol"
)

type recordingEvents struct {
	mu     sync.Mutex
	stdout map[protocol.ProcessID][]byte
	done   map[protocol.ProcessID]struct {
		success bool
		code    *int32
	}
	doneCh chan protocol.ProcessID
}

func newRecordingEvents() *recordingEvents {
	return &recordingEvents{
		stdout: make(map[protocol.ProcessID][]byte),
		done: make(map[protocol.ProcessID]struct {
			success bool
			code    *int32
		}),
		doneCh: make(chan protocol.ProcessID, 16),
	}
}

func (r *recordingEvents) ProcStdout(id protocol.ProcessID, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stdout[id] = append(r.stdout[id], data...)
}

func (r *recordingEvents) ProcStderr(id protocol.ProcessID, data []byte) {}

func (r *recordingEvents) ProcDone(id protocol.ProcessID, success bool, code *int32) {
	r.mu.Lock()
	r.done[id] = struct {
		success bool
		code    *int32
	}{success, code}
	r.mu.Unlock()
	r.doneCh <- id
}

func newTestTable(events Events) *Table {
	var next uint32
	return NewTable(events, func() protocol.ProcessID {
		next++
		return protocol.ProcessID(next)
	}, nil)
}

func TestProcessLifecycleStdoutThenDone(t *testing.T) {
	events := newRecordingEvents()
	table := newTestTable(events)

	id, perr := table.Spawn(protocol.Cmd("/bin/echo some stdout"), nil, "", nil)
	if perr != nil {
		t.Fatalf("Spawn: %v", perr)
	}

	select {
	case got := <-events.doneCh:
		if got != id {
			t.Fatalf("ProcDone id = %d, want %d", got, id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ProcDone")
	}

	events.mu.Lock()
	out := string(events.stdout[id])
	done := events.done[id]
	events.mu.Unlock()

	if out != "some stdout\n" {
		t.Errorf("stdout = %q, want %q", out, "some stdout\n")
	}
	if !done.success || done.code == nil || *done.code != 0 {
		t.Errorf("done = %+v, want success with code 0", done)
	}
}

func TestProcessKillMidRun(t *testing.T) {
	events := newRecordingEvents()
	table := newTestTable(events)

	id, perr := table.Spawn(protocol.Cmd("/bin/sleep 10"), nil, "", nil)
	if perr != nil {
		t.Fatalf("Spawn: %v", perr)
	}

	if perr := table.Kill(id); perr != nil {
		t.Fatalf("Kill: %v", perr)
	}

	select {
	case got := <-events.doneCh:
		if got != id {
			t.Fatalf("ProcDone id = %d, want %d", got, id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ProcDone after kill")
	}

	events.mu.Lock()
	done := events.done[id]
	events.mu.Unlock()
	if done.success {
		t.Errorf("expected unsuccessful exit after kill, got %+v", done)
	}

	if perr := table.Kill(protocol.ProcessID(99999)); perr == nil {
		t.Error("expected error killing unknown process id")
	}
}

func TestProcessStdinUnknownID(t *testing.T) {
	events := newRecordingEvents()
	table := newTestTable(events)

	if perr := table.Stdin(protocol.ProcessID(1), []byte("x")); perr == nil {
		t.Error("expected error writing stdin to unknown process id")
	}
}

func TestResizePtyUnsupportedOnSimpleProcess(t *testing.T) {
	events := newRecordingEvents()
	table := newTestTable(events)

	id, perr := table.Spawn(protocol.Cmd("/bin/sleep 1"), nil, "", nil)
	if perr != nil {
		t.Fatalf("Spawn: %v", perr)
	}
	defer table.Kill(id)

	perr = table.ResizePty(id, protocol.PtySize{Rows: 10, Cols: 10})
	if perr == nil || perr.Kind != "unsupported" {
		t.Errorf("ResizePty on simple process = %v, want unsupported error", perr)
	}
}
