// Package dispatch owns one connection's lifecycle: it reads decoded
// requests off a Channel, spawns one concurrent handler per operation
// (per item, for a batch), and funnels every response — synchronous
// replies and asynchronous follow-ups alike — through a single
// serialized writer, per spec.md §4.1. The per-request-goroutine fan-in
// onto that one writer is grounded on the teacher's
// controller/tap/server.go (TapByResource's per-pod goroutine fan-in
// over a shared events channel, gated by the stream context); here a
// mutex rather than a channel serializes the writes.
package dispatch

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/distantsrv/hostd/hostapi/fsops"
	"github.com/distantsrv/hostd/hostapi/process"
	"github.com/distantsrv/hostd/hostapi/search"
	"github.com/distantsrv/hostd/hostapi/watcher"
	"github.com/distantsrv/hostd/pkg/id"
	"github.com/distantsrv/hostd/pkg/perr"
	"github.com/distantsrv/hostd/protocol"
)

// Channel is the minimal transport surface a connection needs: one
// decoded request per ReadRequest call, one response per WriteResponse
// call. Transport adapters (in-memory, length-prefixed TCP) implement
// this; dispatch owns no knowledge of framing or encoding.
type Channel interface {
	ReadRequest() (protocol.Request, error)
	WriteResponse(protocol.Response) error
	Close() error
}

// State is a connection's position in its accept/serve/drain/close
// state machine (spec.md §4.1).
type State int

// The connection state machine's states, in the order they occur.
const (
	StateAccepting State = iota
	StateServing
	StateDraining
	StateClosed
)

// Server is the shared, connection-independent state a Connection needs:
// the watcher engine (shared across every connection on this process)
// and the process/search id generators (server-global counters, never
// exposed across connections per spec.md §5).
type Server struct {
	Watcher   *watcher.Engine
	ProcGen   id.ProcessGenerator
	SearchGen id.SearchGenerator
	Log       *log.Entry
}

// NewServer constructs shared dispatcher state. logger may be nil.
func NewServer(w *watcher.Engine, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Server{Watcher: w, Log: logger}
}

// Connection is one client connection's dispatcher.
type Connection struct {
	id      protocol.ConnectionID
	srv     *Server
	channel Channel
	log     *log.Entry

	procs   *process.Table
	search  *search.Table
	watches sync.Map // path -> struct{} registered by this connection, for unwatch-all on close

	procOrigins   sync.Map // protocol.ProcessID -> protocol.RequestID of the spawning request
	searchOrigins sync.Map // protocol.SearchID -> protocol.RequestID of the starting request

	state   State
	stateMu sync.Mutex

	writeMu sync.Mutex

	wg sync.WaitGroup
}

// NewConnection wraps channel in a fresh per-connection dispatcher.
func NewConnection(srv *Server, connID protocol.ConnectionID, channel Channel) *Connection {
	c := &Connection{
		id:      connID,
		srv:     srv,
		channel: channel,
		log:     srv.Log.WithField("connection_id", connID),
		state:   StateAccepting,
	}
	c.procs = process.NewTable(connProcEvents{c}, func() protocol.ProcessID {
		return protocol.ProcessID(srv.ProcGen.Next())
	}, c.log)
	c.search = search.NewTable(connSearchEvents{c}, c.log)
	return c
}

func (c *Connection) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Serve runs until the channel closes or a fatal write error occurs.
// It implements the dispatcher's single public contract (spec.md §4.1).
func (c *Connection) Serve(ctx context.Context) {
	c.setState(StateServing)
	defer c.drain(ctx)

	for {
		req, err := c.channel.ReadRequest()
		if err != nil {
			c.log.WithError(err).Debug("connection closed reading request")
			return
		}
		c.dispatch(ctx, req)
	}
}

func (c *Connection) drain(ctx context.Context) {
	c.setState(StateDraining)
	c.wg.Wait()
	c.procs.Shutdown(ctx)
	c.watches.Range(func(key, _ any) bool {
		for c.srv.Watcher.Unwatch(c.id, key.(string)) == nil {
		}
		return true
	})
	c.setState(StateClosed)
	_ = c.channel.Close()
}

func (c *Connection) dispatch(ctx context.Context, req protocol.Request) {
	if batch, ok := req.Payload.(protocol.Batch); ok {
		c.dispatchBatch(ctx, req.ID, batch)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		result := c.handle(ctx, req.ID, req.Payload)
		c.write(protocol.Response{Origin: req.ID, Payload: result})
	}()
}

// dispatchBatch runs every sub-operation concurrently but assembles the
// outbound envelope in submission order, per spec.md §4.1's batch
// semantics.
func (c *Connection) dispatchBatch(ctx context.Context, origin protocol.RequestID, batch protocol.Batch) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		results := make([]protocol.Result, len(batch.Operations))
		var inner sync.WaitGroup
		inner.Add(len(batch.Operations))
		for i, op := range batch.Operations {
			go func(i int, op protocol.Operation) {
				defer inner.Done()
				results[i] = c.handle(ctx, origin, op)
			}(i, op)
		}
		inner.Wait()

		c.write(protocol.Response{Origin: origin, Payload: protocol.BatchResult{Results: results}})
	}()
}

func (c *Connection) write(resp protocol.Response) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.channel.WriteResponse(resp); err != nil {
		c.log.WithError(err).Warn("writer error, connection will close")
		_ = c.channel.Close()
	}
}

// handle invokes the operation named by op and returns its synchronous
// result. Asynchronous follow-ups (ProcStdout/ProcStderr/ProcDone,
// Changed, SearchResults/SearchDone) are emitted separately via the
// connProcEvents/connSearchEvents/watcher.Registration callbacks, never
// batched (spec.md §4.1).
func (c *Connection) handle(ctx context.Context, origin protocol.RequestID, op protocol.Operation) protocol.Result {
	kind := opKind(op)
	requestsTotal.WithLabelValues(kind).Inc()
	result := c.dispatchOp(ctx, origin, op)
	if errResult, ok := result.(protocol.ErrorResult); ok {
		errorsTotal.WithLabelValues(kind, string(errResult.Kind)).Inc()
	}
	return result
}

func (c *Connection) dispatchOp(ctx context.Context, origin protocol.RequestID, op protocol.Operation) protocol.Result {
	switch v := op.(type) {
	case protocol.FileRead:
		data, err := fsops.FileRead(v.Path)
		return resultOrError(err, protocol.Blob{Data: data})
	case protocol.FileReadText:
		text, err := fsops.FileReadText(v.Path)
		return resultOrError(err, protocol.Text{Data: text})
	case protocol.FileWrite:
		return okOrError(fsops.FileWrite(v.Path, v.Data))
	case protocol.FileWriteText:
		return okOrError(fsops.FileWriteText(v.Path, v.Text))
	case protocol.FileAppend:
		return okOrError(fsops.FileAppend(v.Path, v.Data))
	case protocol.FileAppendText:
		return okOrError(fsops.FileAppendText(v.Path, v.Text))
	case protocol.DirRead:
		entries, errs, err := fsops.DirRead(v.Path, v.Depth, v.Absolute, v.Canonicalize, v.IncludeRoot)
		return resultOrError(err, protocol.DirEntries{Entries: entries, Errors: errs})
	case protocol.DirCreate:
		return okOrError(fsops.DirCreate(v.Path, v.All))
	case protocol.Remove:
		return okOrError(fsops.Remove(v.Path, v.Force))
	case protocol.Copy:
		return okOrError(fsops.Copy(v.Src, v.Dst))
	case protocol.Rename:
		return okOrError(fsops.Rename(v.Src, v.Dst))
	case protocol.Watch:
		return c.handleWatch(origin, v)
	case protocol.Unwatch:
		return okOrError(c.srv.Watcher.Unwatch(c.id, v.Path))
	case protocol.Exists:
		ok, err := fsops.Exists(v.Path)
		return resultOrError(err, protocol.ExistsResult{Value: ok})
	case protocol.MetadataOp:
		m, err := fsops.Metadata(v.Path, v.Canonicalize, v.ResolveFileType)
		return resultOrError(err, protocol.MetadataResult{Metadata: m})
	case protocol.SetPermissions:
		return okOrError(fsops.SetPermissions(v.Path, v.Permissions, v.Options))
	case protocol.Search:
		return c.handleSearch(origin, v)
	case protocol.CancelSearch:
		return okOrError(c.search.Cancel(v.ID))
	case protocol.ProcSpawn:
		procID, err := c.procs.Spawn(v.Cmd, v.Environment, v.CurrentDir, v.Pty)
		if err != nil {
			return errorResult(err)
		}
		c.procOrigins.Store(procID, origin)
		return protocol.ProcSpawned{ID: procID}
	case protocol.ProcKill:
		return okOrError(c.procs.Kill(v.ID))
	case protocol.ProcStdin:
		return okOrError(c.procs.Stdin(v.ID, v.Data))
	case protocol.ProcResizePty:
		return okOrError(c.procs.ResizePty(v.ID, v.Size))
	case protocol.SystemInfoOp:
		return protocol.SystemInfoResult{SystemInfo: fsops.SystemInfo()}
	case protocol.VersionOp:
		return fsops.Version()
	default:
		return protocol.ErrorResult{Kind: perr.KindUnsupported, Description: "unrecognized operation"}
	}
}

func (c *Connection) handleWatch(origin protocol.RequestID, v protocol.Watch) protocol.Result {
	reg := watcher.Registration{
		ConnID:    c.id,
		RawPath:   v.Path,
		Recursive: v.Recursive,
		Only:      v.Only,
		Except:    v.Except,
		Emit: func(change protocol.Change) {
			c.write(protocol.Response{Origin: origin, Payload: protocol.Changed{Change: change}})
		},
		EmitError: func(e *perr.Error) {
			c.write(protocol.ErrorFrom(origin, e.Kind, e.Description))
		},
	}
	if err := c.srv.Watcher.Watch(reg); err != nil {
		return errorResult(err)
	}
	c.watches.Store(v.Path, struct{}{})
	return protocol.Ok{}
}

func (c *Connection) handleSearch(origin protocol.RequestID, v protocol.Search) protocol.Result {
	searchID := protocol.SearchID(c.srv.SearchGen.Next())
	c.searchOrigins.Store(searchID, origin)
	if err := c.search.Start(searchID, v.Query); err != nil {
		return errorResult(err)
	}
	return protocol.SearchStarted{ID: searchID}
}

// connProcEvents adapts a Connection to process.Events. Every lifecycle
// callback looks up the origin of the ProcSpawn request that created id
// and replies against it, so a process's entire async lifecycle
// (ProcStdout/ProcStderr/ProcDone) shares one origin per spec.md §4.1.
type connProcEvents struct{ c *Connection }

func (e connProcEvents) originOf(id protocol.ProcessID) protocol.RequestID {
	if v, ok := e.c.procOrigins.Load(id); ok {
		return v.(protocol.RequestID)
	}
	return protocol.RequestID(id)
}

func (e connProcEvents) ProcStdout(id protocol.ProcessID, data []byte) {
	e.c.write(protocol.Response{Origin: e.originOf(id), Payload: protocol.ProcStdout{ID: id, Data: data}})
}

func (e connProcEvents) ProcStderr(id protocol.ProcessID, data []byte) {
	e.c.write(protocol.Response{Origin: e.originOf(id), Payload: protocol.ProcStderr{ID: id, Data: data}})
}

func (e connProcEvents) ProcDone(id protocol.ProcessID, success bool, code *int32) {
	e.c.write(protocol.Response{Origin: e.originOf(id), Payload: protocol.ProcDone{ID: id, Success: success, Code: code}})
	e.c.procOrigins.Delete(id)
}

type connSearchEvents struct{ c *Connection }

func (e connSearchEvents) originOf(id protocol.SearchID) protocol.RequestID {
	if v, ok := e.c.searchOrigins.Load(id); ok {
		return v.(protocol.RequestID)
	}
	return protocol.RequestID(id)
}

func (e connSearchEvents) SearchResults(id protocol.SearchID, matches []protocol.SearchMatch) {
	e.c.write(protocol.Response{Origin: e.originOf(id), Payload: protocol.SearchResults{ID: id, Matches: matches}})
}

func (e connSearchEvents) SearchDone(id protocol.SearchID) {
	e.c.write(protocol.Response{Origin: e.originOf(id), Payload: protocol.SearchDone{ID: id}})
	e.c.searchOrigins.Delete(id)
}

func okOrError(err *perr.Error) protocol.Result {
	if err != nil {
		return errorResult(err)
	}
	return protocol.Ok{}
}

func resultOrError(err *perr.Error, ok protocol.Result) protocol.Result {
	if err != nil {
		return errorResult(err)
	}
	return ok
}

func errorResult(err *perr.Error) protocol.Result {
	return protocol.ErrorResult{Kind: err.Kind, Description: err.Description}
}
