// Command hostd is the remote-host agent daemon: it accepts framed
// connections, decodes requests, and dispatches them against the local
// filesystem, process, watcher, and search subsystems. Grounded on the
// teacher's controller/cmd/tap/main.go (flag parsing, signal-driven
// shutdown, a metrics/admin server goroutine), adapted away from its
// Kubernetes bootstrapping into a plain TCP listener per spec.md §6's
// CLI/config surface.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/distantsrv/hostd/hostapi/dispatch"
	"github.com/distantsrv/hostd/hostapi/watcher"
	"github.com/distantsrv/hostd/pkg/admin"
	"github.com/distantsrv/hostd/pkg/flags"
	"github.com/distantsrv/hostd/pkg/id"
	"github.com/distantsrv/hostd/protocol"
	"github.com/distantsrv/hostd/transport"
)

func main() {
	cmd := flag.NewFlagSet("hostd", flag.ExitOnError)
	addr := cmd.String("addr", "127.0.0.1:7070", "address to accept connections on")
	adminAddr := cmd.String("admin-addr", "127.0.0.1:7071", "address to serve /metrics and /ready on")
	idleTimeout := cmd.Duration("idle-timeout", 0, "shut down after this long with no connections (0 disables)")
	format := cmd.String("format", "json", "wire format for accepted connections: json or msgpack")
	flags.ConfigureAndParse(cmd, os.Args[1:])

	wireFormat := transport.FormatJSON
	if *format == "msgpack" {
		wireFormat = transport.FormatMsgpack
	}

	watchEngine, err := watcher.New(nil)
	if err != nil {
		log.Fatalf("failed to start filesystem watcher: %s", err)
	}
	defer watchEngine.Close()

	dispatchSrv := dispatch.NewServer(watchEngine, log.NewEntry(log.StandardLogger()))

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %s", *addr, err)
	}
	defer ln.Close()

	ready := &atomic.Bool{}
	adminSrv := admin.NewServer(*adminAddr, false, ready)
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil {
			log.WithError(err).Warn("admin server stopped")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var connGen id.ConnectionGenerator
	active := &atomic.Int64{}
	go acceptLoop(ctx, ln, dispatchSrv, &connGen, wireFormat, active)

	if *idleTimeout > 0 {
		go shutdownWhenIdle(cancel, active, *idleTimeout)
	}

	ready.Store(true)
	log.Infof("hostd listening on %s (admin on %s)", *addr, *adminAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}

	log.Info("shutting down")
	cancel()
	_ = ln.Close()
	_ = adminSrv.Close()
}

func acceptLoop(ctx context.Context, ln net.Listener, srv *dispatch.Server, connGen *id.ConnectionGenerator, format transport.Format, active *atomic.Int64) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.WithError(err).Warn("accept failed")
				return
			}
		}

		connID := protocol.ConnectionID(connGen.Next())
		channel := transport.NewConn(conn, format)
		handler := dispatch.NewConnection(srv, connID, channel)

		active.Add(1)
		go func() {
			defer active.Add(-1)
			handler.Serve(ctx)
		}()
	}
}

func shutdownWhenIdle(cancel context.CancelFunc, active *atomic.Int64, timeout time.Duration) {
	ticker := time.NewTicker(timeout / 4)
	defer ticker.Stop()
	idleSince := time.Now()
	for range ticker.C {
		if active.Load() > 0 {
			idleSince = time.Now()
			continue
		}
		if time.Since(idleSince) >= timeout {
			log.Infof("idle for %s, shutting down", timeout)
			cancel()
			return
		}
	}
}
