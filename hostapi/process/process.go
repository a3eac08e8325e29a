// Package process implements the process supervisor: spawning,
// I/O streaming, signalling, and lifecycle bookkeeping for simple
// (three-pipe) and PTY (single-stream) child processes, per spec.md
// §4.2. The stdout-pipe-plus-goroutine shape is grounded on the
// teacher's cli/shell/shell.go AsyncStdout, generalized from one
// combined reader to independent stdout/stderr/waiter goroutines.
package process

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	log "github.com/sirupsen/logrus"

	"github.com/distantsrv/hostd/pkg/perr"
	"github.com/distantsrv/hostd/protocol"
)

// ChunkSize bounds a single stdout/stderr/PTY read, per spec.md §4.2's
// "host-tunable cap (e.g. 8 KiB-64 KiB)".
const ChunkSize = 32 * 1024

// GracePeriod bounds how long Table.Shutdown waits for killed processes
// to report their exit before giving up on their waiters.
const GracePeriod = 5 * time.Second

// defaultTERM is injected into a PTY-mode process's environment only
// when the caller did not already set TERM (spec.md §9's documented
// choice, not a bug).
const defaultTERM = "xterm-256color"

// Events is the reply-handle surface the supervisor uses to emit
// asynchronous responses; hostapi/dispatch's per-connection reply handle
// implements it.
type Events interface {
	ProcStdout(id protocol.ProcessID, data []byte)
	ProcStderr(id protocol.ProcessID, data []byte)
	ProcDone(id protocol.ProcessID, success bool, code *int32)
}

// entry is one live process record (spec.md §3's Process record).
type entry struct {
	id     protocol.ProcessID
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	ptyFile *os.File
	done   chan struct{}

	mu        sync.Mutex
	killed    bool
}

// Table owns every process spawned on one connection. It is exclusively
// mutated by its owning goroutine's callers under its own mutex — unlike
// the watcher, process lifetimes are short and concurrent access from
// Spawn/Kill/Stdin/ResizePty handlers is expected, so a mutex (rather
// than a message-passing actor) guards just the map.
type Table struct {
	events Events
	gen    idGenerator

	mu      sync.Mutex
	entries map[protocol.ProcessID]*entry

	log *log.Entry
}

// idGenerator is the minimal surface Table needs from pkg/id's
// ProcessGenerator, kept as an interface so tests can supply
// deterministic ids.
type idGenerator interface {
	Next() protocol.ProcessID
}

// processGeneratorAdapter adapts the plain id-minting function passed to
// NewTable to idGenerator.
type processGeneratorAdapter struct {
	next func() protocol.ProcessID
}

func (a processGeneratorAdapter) Next() protocol.ProcessID { return a.next() }

// NewTable constructs an empty process table reporting lifecycle events
// to events, minting ids via next.
func NewTable(events Events, next func() protocol.ProcessID, logger *log.Entry) *Table {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Table{
		events:  events,
		gen:     processGeneratorAdapter{next: next},
		entries: make(map[protocol.ProcessID]*entry),
		log:     logger,
	}
}

// Spawn starts a child process per cmd/environment/currentDir. If pty is
// non-nil the process is PTY-backed; otherwise it gets three pipes. On
// success it returns the freshly minted ProcessId and starts the
// reader/waiter goroutines; on failure no record is created.
func (t *Table) Spawn(cmd protocol.Cmd, environment protocol.Environment, currentDir string, ptySize *protocol.PtySize) (protocol.ProcessID, *perr.Error) {
	args := cmd.Args()
	c := exec.Command(cmd.Program(), args...)
	if currentDir != "" {
		c.Dir = currentDir
	}
	c.Env = mergeEnv(os.Environ(), environment, ptySize != nil)

	id := t.gen.Next()

	if ptySize != nil {
		return t.spawnPTY(id, c, *ptySize)
	}
	return t.spawnSimple(id, c)
}

func mergeEnv(base []string, extra protocol.Environment, isPTY bool) []string {
	env := append([]string{}, base...)
	hasTerm := false
	for k, v := range extra {
		env = append(env, k+"="+v)
		if k == "TERM" {
			hasTerm = true
		}
	}
	if isPTY && !hasTerm {
		for _, kv := range base {
			if len(kv) >= 5 && kv[:5] == "TERM=" {
				hasTerm = true
				break
			}
		}
		if !hasTerm {
			env = append(env, "TERM="+defaultTERM)
		}
	}
	return env
}

func (t *Table) spawnSimple(id protocol.ProcessID, c *exec.Cmd) (protocol.ProcessID, *perr.Error) {
	stdin, err := c.StdinPipe()
	if err != nil {
		return 0, perr.FromOS(err)
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return 0, perr.FromOS(err)
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return 0, perr.FromOS(err)
	}

	if err := c.Start(); err != nil {
		return 0, perr.FromOS(err)
	}

	e := &entry{id: id, cmd: c, stdin: stdin, done: make(chan struct{})}
	t.mu.Lock()
	t.entries[id] = e
	t.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go t.relay(&wg, id, stdout, t.events.ProcStdout)
	go t.relay(&wg, id, stderr, t.events.ProcStderr)
	go t.wait(e, &wg)

	return id, nil
}

func (t *Table) spawnPTY(id protocol.ProcessID, c *exec.Cmd, size protocol.PtySize) (protocol.ProcessID, *perr.Error) {
	f, err := pty.StartWithSize(c, &pty.Winsize{
		Rows: size.Rows,
		Cols: size.Cols,
		X:    size.PixelWidth,
		Y:    size.PixelHeight,
	})
	if err != nil {
		return 0, perr.FromOS(err)
	}

	e := &entry{id: id, cmd: c, stdin: f, ptyFile: f, done: make(chan struct{})}
	t.mu.Lock()
	t.entries[id] = e
	t.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go t.relay(&wg, id, f, t.events.ProcStdout)
	go t.wait(e, &wg)

	return id, nil
}

func (t *Table) relay(wg *sync.WaitGroup, id protocol.ProcessID, r io.Reader, emit func(protocol.ProcessID, []byte)) {
	defer wg.Done()
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			emit(id, chunk)
		}
		if err != nil {
			return
		}
	}
}

func (t *Table) wait(e *entry, wg *sync.WaitGroup) {
	wg.Wait()
	err := e.cmd.Wait()

	t.mu.Lock()
	delete(t.entries, e.id)
	t.mu.Unlock()
	close(e.done)

	success, code := exitStatus(err)
	t.events.ProcDone(e.id, success, code)
}

func exitStatus(err error) (bool, *int32) {
	if err == nil {
		zero := int32(0)
		return true, &zero
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return false, nil
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return false, nil
	}
	if status.Signaled() {
		return false, nil
	}
	code := int32(status.ExitStatus())
	success := code == 0
	return success, &code
}

// Kill signals id to terminate and closes its stdin. It returns an error
// if id is unknown; the kill itself is asynchronous — callers must still
// wait for ProcDone for exit details (spec.md §5).
func (t *Table) Kill(id protocol.ProcessID) *perr.Error {
	e := t.lookup(id)
	if e == nil {
		return perr.NotFound("no such process %d", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.killed {
		return nil
	}
	e.killed = true

	if e.cmd.Process != nil {
		_ = e.cmd.Process.Signal(syscall.SIGTERM)
	}
	_ = e.stdin.Close()
	return nil
}

// Stdin forwards data to id's stdin pipe.
func (t *Table) Stdin(id protocol.ProcessID, data []byte) *perr.Error {
	e := t.lookup(id)
	if e == nil {
		return perr.NotFound("no such process %d", id)
	}
	if _, err := e.stdin.Write(data); err != nil {
		return perr.FromOS(err)
	}
	return nil
}

// ResizePty resizes id's PTY window; it fails with Unsupported on a
// simple-mode process.
func (t *Table) ResizePty(id protocol.ProcessID, size protocol.PtySize) *perr.Error {
	e := t.lookup(id)
	if e == nil {
		return perr.NotFound("no such process %d", id)
	}
	if e.ptyFile == nil {
		return perr.Unsupported("process %d was not spawned with a pty", id)
	}
	if err := pty.Setsize(e.ptyFile, &pty.Winsize{
		Rows: size.Rows,
		Cols: size.Cols,
		X:    size.PixelWidth,
		Y:    size.PixelHeight,
	}); err != nil {
		return perr.FromOS(err)
	}
	return nil
}

func (t *Table) lookup(id protocol.ProcessID) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[id]
}

// Shutdown kills every owned process and waits up to GracePeriod for
// their waiters to finish, per spec.md §4.2's cancellation contract.
func (t *Table) Shutdown(ctx context.Context) {
	t.mu.Lock()
	all := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		all = append(all, e)
	}
	t.mu.Unlock()

	for _, e := range all {
		_ = t.Kill(e.id)
	}

	deadline := time.NewTimer(GracePeriod)
	defer deadline.Stop()
	for _, e := range all {
		select {
		case <-e.done:
		case <-deadline.C:
			t.log.Warnf("process %d did not exit within grace period", e.id)
			return
		case <-ctx.Done():
			return
		}
	}
}
