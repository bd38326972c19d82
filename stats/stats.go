// Package stats exposes per-association throughput and congestion figures
// as plain record types (spec.md §9: "expose them as plain record types or
// explicit accessors, not as dynamically enumerable members"), plus a
// Prometheus collector and a JSON HTTP handler built on top of them.
//
// It deliberately never imports the txqueue/sendqueue packages directly:
// association.Socket already exposes the handful of accessors a dashboard
// needs (RTOMs, CwndBytes, OutstandingBytes, ...), and Source below mirrors
// that accessor set structurally so this package stays decoupled from the
// queue internals, the same way go-oryx-lib's exporter types never reach
// into a kernel socket struct directly.
package stats

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	dcsctphttp "github.com/ossrs/go-dcsctp/http"
	"github.com/ossrs/go-dcsctp/kxps"
	"github.com/ossrs/go-dcsctp/logger"
)

// Source is the subset of association.Socket's accessors a Snapshot is
// built from. A plain interface (rather than importing association)
// mirrors runZeroInc-sockstats/pkg/exporter's TCPInfoCollector, which reads
// kernel socket structs through a narrow accessor set instead of holding
// the connection itself.
type Source interface {
	RTOMs() int
	CwndBytes() int
	OutstandingBytes() int
	BufferedAmount() int
	MessagesDelivered() uint64
	BytesRetransmitted() uint64
	PendingRetries() int
}

// Snapshot is a point-in-time read of one association's transport health.
type Snapshot struct {
	Label               string  `json:"label"`
	RTOMs               int     `json:"rto_ms"`
	CwndBytes           int     `json:"cwnd_bytes"`
	OutstandingBytes    int     `json:"outstanding_bytes"`
	BufferedAmount      int     `json:"buffered_amount"`
	MessagesDelivered   uint64  `json:"messages_delivered"`
	BytesRetransmitted  uint64  `json:"bytes_retransmitted"`
	PendingRetries      int     `json:"pending_retries"`
	MessagesPerSec10s   float64 `json:"messages_per_sec_10s"`
	RetransmitBytesPerSec10s float64 `json:"retransmit_bytes_per_sec_10s"`
}

// messageCounter and retransmitCounter adapt Source's monotonic totals to
// kxps.KrpsSource, one per tracked association, so each gets its own
// rolling-window sampler.
type messageCounter struct{ src Source }

func (c messageCounter) NbRequests() uint64 { return c.src.MessagesDelivered() }

type retransmitCounter struct{ src Source }

func (c retransmitCounter) NbRequests() uint64 { return c.src.BytesRetransmitted() }

// tracked is one registered association: its Source plus the two kxps
// samplers fed from it.
type tracked struct {
	src          Source
	messages     kxps.Krps
	retransmits  kxps.Krps
}

// Registry is a guarded map of live associations being reported on,
// grounded on runZeroInc-sockstats/pkg/exporter.TCPInfoCollector's guarded
// map of live sources.
type Registry struct {
	mu   sync.Mutex
	ctx  logger.Context
	srcs map[string]*tracked
}

// NewRegistry builds an empty Registry. ctx is used for log lines emitted
// by the underlying kxps samplers; it may be nil.
func NewRegistry(ctx logger.Context) *Registry {
	return &Registry{
		ctx:  ctx,
		srcs: make(map[string]*tracked),
	}
}

// Register starts tracking src under label, starting its rolling-window
// samplers. Calling Register again with the same label replaces the prior
// entry.
func (r *Registry) Register(label string, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := &tracked{
		src:         src,
		messages:    kxps.NewKrps(r.ctx, messageCounter{src}),
		retransmits: kxps.NewKrps(r.ctx, retransmitCounter{src}),
	}
	t.messages.Start()
	t.retransmits.Start()
	r.srcs[label] = t
}

// Unregister stops tracking label, closing its samplers.
func (r *Registry) Unregister(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.srcs[label]; ok {
		t.messages.Close()
		t.retransmits.Close()
		delete(r.srcs, label)
	}
}

// Snapshot reads the current figures for label, or ok=false if it isn't
// registered.
func (r *Registry) Snapshot(label string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.srcs[label]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(label, t), true
}

// All returns a Snapshot for every registered association, in no particular
// order.
func (r *Registry) All() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.srcs))
	for label, t := range r.srcs {
		out = append(out, snapshotOf(label, t))
	}
	return out
}

func snapshotOf(label string, t *tracked) Snapshot {
	return Snapshot{
		Label:                    label,
		RTOMs:                    t.src.RTOMs(),
		CwndBytes:                t.src.CwndBytes(),
		OutstandingBytes:         t.src.OutstandingBytes(),
		BufferedAmount:           t.src.BufferedAmount(),
		MessagesDelivered:        t.src.MessagesDelivered(),
		BytesRetransmitted:       t.src.BytesRetransmitted(),
		PendingRetries:           t.src.PendingRetries(),
		MessagesPerSec10s:        t.messages.Rps10s(),
		RetransmitBytesPerSec10s: t.retransmits.Rps10s(),
	}
}

// ServeHTTP writes every registered Snapshot as a JSON array, using the
// teacher's Data()/WriteData() envelope from the http package instead of a
// hand-rolled json.Marshal call.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	dcsctphttp.WriteData(r.ctx, w, req, r.All())
}

// Collector exposes the registry as Prometheus gauges, one per Snapshot
// field, labeled by association label. Grounded on
// runZeroInc-sockstats/pkg/exporter.TCPInfoCollector's Describe/Collect
// pair over a guarded map of live sources.
type Collector struct {
	reg *Registry

	rto          *prometheus.Desc
	cwnd         *prometheus.Desc
	outstanding  *prometheus.Desc
	buffered     *prometheus.Desc
	delivered    *prometheus.Desc
	retransmitted *prometheus.Desc
	pendingRetry *prometheus.Desc
	msgRate      *prometheus.Desc
	retransmitRate *prometheus.Desc
}

// NewCollector builds a Collector reading from reg.
func NewCollector(reg *Registry) *Collector {
	labels := []string{"association"}
	return &Collector{
		reg:            reg,
		rto:            prometheus.NewDesc("dcsctp_rto_ms", "Current RTO estimate in milliseconds.", labels, nil),
		cwnd:           prometheus.NewDesc("dcsctp_cwnd_bytes", "Current congestion window in bytes.", labels, nil),
		outstanding:    prometheus.NewDesc("dcsctp_outstanding_bytes", "Bytes currently in flight.", labels, nil),
		buffered:       prometheus.NewDesc("dcsctp_buffered_amount_bytes", "Total buffered send amount in bytes.", labels, nil),
		delivered:      prometheus.NewDesc("dcsctp_messages_delivered_total", "Messages delivered to the application.", labels, nil),
		retransmitted:  prometheus.NewDesc("dcsctp_bytes_retransmitted_total", "Bytes retransmitted.", labels, nil),
		pendingRetry:   prometheus.NewDesc("dcsctp_pending_packet_retries", "Packets queued for transient-failure retry.", labels, nil),
		msgRate:        prometheus.NewDesc("dcsctp_messages_per_second", "10s rolling-window message delivery rate.", labels, nil),
		retransmitRate: prometheus.NewDesc("dcsctp_retransmit_bytes_per_second", "10s rolling-window retransmit byte rate.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rto
	ch <- c.cwnd
	ch <- c.outstanding
	ch <- c.buffered
	ch <- c.delivered
	ch <- c.retransmitted
	ch <- c.pendingRetry
	ch <- c.msgRate
	ch <- c.retransmitRate
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.reg.All() {
		ch <- prometheus.MustNewConstMetric(c.rto, prometheus.GaugeValue, float64(s.RTOMs), s.Label)
		ch <- prometheus.MustNewConstMetric(c.cwnd, prometheus.GaugeValue, float64(s.CwndBytes), s.Label)
		ch <- prometheus.MustNewConstMetric(c.outstanding, prometheus.GaugeValue, float64(s.OutstandingBytes), s.Label)
		ch <- prometheus.MustNewConstMetric(c.buffered, prometheus.GaugeValue, float64(s.BufferedAmount), s.Label)
		ch <- prometheus.MustNewConstMetric(c.delivered, prometheus.CounterValue, float64(s.MessagesDelivered), s.Label)
		ch <- prometheus.MustNewConstMetric(c.retransmitted, prometheus.CounterValue, float64(s.BytesRetransmitted), s.Label)
		ch <- prometheus.MustNewConstMetric(c.pendingRetry, prometheus.GaugeValue, float64(s.PendingRetries), s.Label)
		ch <- prometheus.MustNewConstMetric(c.msgRate, prometheus.GaugeValue, s.MessagesPerSec10s, s.Label)
		ch <- prometheus.MustNewConstMetric(c.retransmitRate, prometheus.GaugeValue, s.RetransmitBytesPerSec10s, s.Label)
	}
}
