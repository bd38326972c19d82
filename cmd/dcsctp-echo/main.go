// Command dcsctp-echo demonstrates the dcsctp association running
// end-to-end: two in-process Sockets ("alice" and "bob") connected over a
// lossy in-memory link (link.go), one generating traffic and the other
// echoing it back, with Prometheus metrics and a JSON stats endpoint
// exposed over HTTP and a periodic stats log line driven by robfig/cron,
// grounded on how asprocess.Watch installs SIGINT/SIGTERM handling for a
// long-lived oryx process.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/ossrs/go-dcsctp/association"
	"github.com/ossrs/go-dcsctp/logger"
	"github.com/ossrs/go-dcsctp/stats"
)

func main() {
	opts := association.DefaultOptions()
	opts.HeartbeatIntervalMs = 2000

	alice := newEndpoint("alice", opts, false)
	bob := newEndpoint("bob", opts, true)
	alice.peer = bob
	bob.peer = alice

	registry := stats.NewRegistry(nil)
	registry.Register("alice", alice.sock)
	registry.Register("bob", bob.sock)
	defer registry.Unregister("alice")
	defer registry.Unregister("bob")

	collector := stats.NewCollector(registry)
	prometheus.MustRegister(collector)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/stats", registry)
	httpServer := &http.Server{Addr: ":8808", Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.E(nil, "http server failed", err)
		}
	}()

	c := cron.New()
	if _, err := c.AddFunc("@every 10s", func() {
		for _, snap := range registry.All() {
			logger.T(nil, fmt.Sprintf("%s: rto=%dms cwnd=%dB outstanding=%dB delivered=%d retransmitted=%dB",
				snap.Label, snap.RTOMs, snap.CwndBytes, snap.OutstandingBytes, snap.MessagesDelivered, snap.BytesRetransmitted))
		}
	}); err != nil {
		logger.E(nil, "failed to schedule stats logging", err)
	}
	c.Start()
	defer c.Stop()

	alice.mu.Lock()
	alice.sock.Connect()
	alice.mu.Unlock()

	stopTraffic := make(chan struct{})
	go generateTraffic(alice, stopTraffic)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	logger.T(nil, "received signal", sig, "shutting down")
	close(stopTraffic)

	alice.mu.Lock()
	alice.sock.Shutdown()
	alice.mu.Unlock()
	bob.mu.Lock()
	bob.sock.Shutdown()
	bob.mu.Unlock()

	time.Sleep(500 * time.Millisecond)

	alice.mu.Lock()
	alice.sock.Close()
	alice.mu.Unlock()
	bob.mu.Lock()
	bob.sock.Close()
	bob.mu.Unlock()

	httpServer.Close()
}

// generateTraffic sends an incrementing counter payload from alice to bob
// every 200ms until stop is closed, giving the demo something to echo.
func generateTraffic(e *endpoint, stop <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			seq++
			payload := []byte(fmt.Sprintf("ping %d", seq))
			e.mu.Lock()
			err := e.sock.Send(association.Message{StreamID: 0, PPID: 1, Payload: payload}, association.SendOptions{MaxRetransmissions: -1, LifetimeMs: -1})
			e.mu.Unlock()
			if err != nil {
				logger.D(nil, "send failed", err)
			}
		}
	}
}
