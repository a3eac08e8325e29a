// Package watcher implements the filesystem watcher: a single
// background actor per server that owns an fsnotify engine, the list of
// per-connection registrations, and a refcount per canonicalized path,
// per spec.md §4.3. Grounded on the teacher's
// controller/identity/creds_watcher.go fsnotify event-loop shape and,
// for the registration/refcount state machine, on
// original_source/distant-host/src/api/state/watcher.rs's watcher_task.
package watcher

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/distantsrv/hostd/pkg/perr"
	"github.com/distantsrv/hostd/protocol"
)

// Capacity is the relay channel's bound between the fsnotify callback
// and the owning actor goroutine (spec.md §4.3's "bounded channel,
// default capacity e.g. 10 000").
const Capacity = 10000

// Registration is one (connection, path, filters, reply) tuple,
// spec.md §3's RegisteredPath.
type Registration struct {
	ConnID    protocol.ConnectionID
	RawPath   string
	Path      string
	Recursive bool
	Only      []protocol.ChangeKind
	Except    []protocol.ChangeKind

	// Emit delivers one Changed result bound to this registration's
	// origin Watch request.
	Emit func(protocol.Change)
	// EmitError delivers one Error result bound to this registration's
	// origin Watch request.
	EmitError func(*perr.Error)
}

func (r *Registration) matches(path string) bool {
	if path == r.Path {
		return true
	}
	if !r.Recursive {
		// fsnotify only watches r.Path itself (non-recursive), so every
		// event it reports for a path under r.Path is a direct child;
		// deeper descendants never arrive since nothing is watching them.
		return filepath.Dir(path) == r.Path
	}
	rel, err := filepath.Rel(r.Path, path)
	return err == nil && rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}

func (r *Registration) allows(kind protocol.ChangeKind) bool {
	for _, k := range r.Except {
		if k == kind {
			return false
		}
	}
	if len(r.Only) == 0 {
		return true
	}
	for _, k := range r.Only {
		if k == kind {
			return true
		}
	}
	return false
}

type watchRequest struct {
	reg  Registration
	resp chan *perr.Error
}

type unwatchRequest struct {
	connID protocol.ConnectionID
	path   string
	resp   chan *perr.Error
}

type relayedEvent struct {
	event fsnotify.Event
	err   error
}

// Engine is the single watcher actor for a whole server.
type Engine struct {
	fsw *fsnotify.Watcher

	watchCh   chan watchRequest
	unwatchCh chan unwatchRequest
	relay     chan relayedEvent
	done      chan struct{}

	log *log.Entry
}

// New starts the watcher actor. If creating the native fsnotify watcher
// fails, it is retried once after a short backoff before surfacing a
// startup error (DESIGN.md's "polling watcher fallback" resolution: no
// polling-backend library exists in this module's dependency surface).
func New(logger *log.Entry) (*Engine, error) {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithError(err).Warn("failed to start filesystem watcher, retrying once")
		time.Sleep(250 * time.Millisecond)
		fsw, err = fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("watcher: starting fsnotify engine: %w", err)
		}
	}

	e := &Engine{
		fsw:       fsw,
		watchCh:   make(chan watchRequest),
		unwatchCh: make(chan unwatchRequest),
		relay:     make(chan relayedEvent, Capacity),
		done:      make(chan struct{}),
		log:       logger,
	}

	go e.relayLoop()
	go e.run()
	return e, nil
}

func (e *Engine) relayLoop() {
	for {
		select {
		case ev, ok := <-e.fsw.Events:
			if !ok {
				return
			}
			e.trySend(relayedEvent{event: ev})
		case err, ok := <-e.fsw.Errors:
			if !ok {
				return
			}
			e.trySend(relayedEvent{err: err})
		}
	}
}

func (e *Engine) trySend(r relayedEvent) {
	select {
	case e.relay <- r:
	default:
		e.log.Warnf("reached watcher capacity of %d, dropping watcher event", Capacity)
	}
}

// Watch registers reg, canonicalizing its path first. If the
// canonicalized path already has a positive refcount, the engine watch
// is reused; otherwise a new native watch is created. The native
// fsnotify watch covers the path and its direct entries only, whatever
// reg.Recursive says: changes inside subdirectories are not reported,
// so a Recursive registration receives the same events as a
// non-recursive one.
func (e *Engine) Watch(reg Registration) *perr.Error {
	canon, err := filepath.EvalSymlinks(reg.RawPath)
	if err != nil {
		return perr.FromOS(err)
	}
	canon, err = filepath.Abs(canon)
	if err != nil {
		return perr.FromOS(err)
	}
	reg.Path = canon

	resp := make(chan *perr.Error, 1)
	e.watchCh <- watchRequest{reg: reg, resp: resp}
	return <-resp
}

// Unwatch removes one registration for (connID, path) on this
// connection; a path the connection watched twice needs two Unwatch
// calls. path is canonicalized on a best-effort basis (falling
// back to the raw string) so unwatch works regardless of how the
// client originally specified it.
func (e *Engine) Unwatch(connID protocol.ConnectionID, path string) *perr.Error {
	canon, err := filepath.EvalSymlinks(path)
	if err != nil {
		canon = path
	} else if abs, err := filepath.Abs(canon); err == nil {
		canon = abs
	}

	resp := make(chan *perr.Error, 1)
	e.unwatchCh <- unwatchRequest{connID: connID, path: canon, resp: resp}
	return <-resp
}

// Close stops the watcher actor and releases the native engine.
func (e *Engine) Close() {
	close(e.done)
	_ = e.fsw.Close()
}

func (e *Engine) run() {
	var registrations []*Registration
	refcount := make(map[string]int)

	for {
		select {
		case <-e.done:
			return

		case req := <-e.watchCh:
			reg := req.reg
			if refcount[reg.Path] > 0 {
				refcount[reg.Path]++
				registrations = append(registrations, &reg)
				req.resp <- nil
				continue
			}
			if err := e.fsw.Add(reg.Path); err != nil {
				req.resp <- perr.FromOS(err)
				continue
			}
			refcount[reg.Path] = 1
			registrations = append(registrations, &reg)
			req.resp <- nil

		case req := <-e.unwatchCh:
			cnt, tracked := refcount[req.path]
			if !tracked {
				req.resp <- perr.NotFound("%s is not being watched", req.path)
				continue
			}

			// Unwatch is idempotent per registration, not per path: two
			// Watch calls from the same connection on the same path each
			// get their own registration, and one Unwatch must remove
			// exactly one of them (spec.md §3/§8), not every registration
			// that connection holds on this path.
			idx := -1
			for i, r := range registrations {
				if r.ConnID == req.connID && (r.Path == req.path || r.RawPath == req.path) {
					idx = i
					break
				}
			}

			switch {
			case idx < 0:
				req.resp <- perr.NotFound("%s is not being watched", req.path)
			case cnt <= 1:
				registrations = append(registrations[:idx], registrations[idx+1:]...)
				delete(refcount, req.path)
				if err := e.fsw.Remove(req.path); err != nil {
					req.resp <- perr.FromOS(err)
				} else {
					req.resp <- nil
				}
			default:
				registrations = append(registrations[:idx], registrations[idx+1:]...)
				refcount[req.path] = cnt - 1
				req.resp <- nil
			}

		case r := <-e.relay:
			if r.err != nil {
				e.deliverError(registrations, r.err)
				continue
			}
			e.deliverEvent(registrations, r.event)
		}
	}
}

func (e *Engine) deliverEvent(registrations []*Registration, ev fsnotify.Event) {
	kind, details := translateEvent(ev)
	now := uint64(time.Now().Unix())

	for _, reg := range registrations {
		if !reg.matches(ev.Name) || !reg.allows(kind) {
			continue
		}
		reg.Emit(protocol.Change{
			TimestampEpochS: now,
			Kind:            kind,
			Path:            ev.Name,
			Details:         details,
		})
	}
}

func (e *Engine) deliverError(registrations []*Registration, err error) {
	e.log.WithError(err).Warn("watcher engine error")
	for _, reg := range registrations {
		reg.EmitError(perr.FromOS(err))
	}
}

// translateEvent maps an fsnotify event to the closed ChangeKind set
// (spec.md §4.3). fsnotify's Op is coarser than the notify crate's
// EventKind (e.g. it has no distinct access/open/close-write variants
// on Linux's inotify backend without cgo extensions), so Write/Create/
// Remove/Rename/Chmod map onto the closest matching kind.
func translateEvent(ev fsnotify.Event) (protocol.ChangeKind, protocol.ChangeDetails) {
	switch {
	case ev.Op&fsnotify.Create != 0:
		return protocol.ChangeCreate, protocol.ChangeDetails{}
	case ev.Op&fsnotify.Remove != 0:
		return protocol.ChangeDelete, protocol.ChangeDetails{}
	case ev.Op&fsnotify.Rename != 0:
		return protocol.ChangeRename, protocol.ChangeDetails{}
	case ev.Op&fsnotify.Chmod != 0:
		attr := protocol.AttributePermissions
		return protocol.ChangeAttribute, protocol.ChangeDetails{Attribute: &attr}
	case ev.Op&fsnotify.Write != 0:
		return protocol.ChangeModify, protocol.ChangeDetails{}
	default:
		return protocol.ChangeUnknown, protocol.ChangeDetails{}
	}
}
