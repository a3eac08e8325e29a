package dispatch

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatcher-wide counters, exposed on the admin server's /metrics per
// SPEC_FULL.md §4.1's ambient wiring note.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostd_dispatch_requests_total",
		Help: "Operations dispatched, by operation kind.",
	}, []string{"op"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostd_dispatch_errors_total",
		Help: "Operations that returned an error, by operation kind and error kind.",
	}, []string{"op", "error_kind"})
)

func opKind(op any) string {
	return fmt.Sprintf("%T", op)
}
