// Package admin exposes the hostd daemon's metrics and liveness endpoints.
// It carries no knowledge of connections, processes, or watches: the
// daemon's main flips a readiness flag once its accept loop has started.
// Every request is tagged with a fresh google/uuid request id (returned as
// X-Request-Id) and the server's own instance id, for correlating admin
// traffic across a fleet of daemons sharing one log aggregator.
package admin

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type handler struct {
	promHandler http.Handler
	enablePprof bool
	ready       *atomic.Bool
	instanceID  string
}

// NewServer returns an initialized *http.Server bound to addr. ready is
// flipped by the caller (cmd/hostd's main, once its accept loop has
// started) and gates the /ready endpoint.
func NewServer(addr string, enablePprof bool, ready *atomic.Bool) *http.Server {
	h := &handler{
		promHandler: promhttp.Handler(),
		enablePprof: enablePprof,
		ready:       ready,
		instanceID:  uuid.NewString(),
	}

	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 15 * time.Second,
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	reqID := uuid.NewString()
	w.Header().Set("X-Request-Id", reqID)
	w.Header().Set("X-Hostd-Instance", h.instanceID)
	log.WithFields(log.Fields{"request_id": reqID, "path": req.URL.Path}).Debug("admin request")

	const debugPathPrefix = "/debug/pprof/"
	if h.enablePprof && strings.HasPrefix(req.URL.Path, debugPathPrefix) {
		switch req.URL.Path {
		case fmt.Sprintf("%scmdline", debugPathPrefix):
			pprof.Cmdline(w, req)
		case fmt.Sprintf("%sprofile", debugPathPrefix):
			pprof.Profile(w, req)
		case fmt.Sprintf("%strace", debugPathPrefix):
			pprof.Trace(w, req)
		case fmt.Sprintf("%ssymbol", debugPathPrefix):
			pprof.Symbol(w, req)
		default:
			pprof.Index(w, req)
		}
		return
	}

	switch req.URL.Path {
	case "/metrics":
		h.promHandler.ServeHTTP(w, req)
	case "/ping":
		h.servePing(w)
	case "/ready":
		h.serveReady(w)
	default:
		http.NotFound(w, req)
	}
}

func (h *handler) servePing(w http.ResponseWriter) {
	fmt.Fprintf(w, "pong %s\n", h.instanceID)
}

func (h *handler) serveReady(w http.ResponseWriter) {
	if h.ready == nil || h.ready.Load() {
		w.Write([]byte("ok\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("not ready\n"))
}
