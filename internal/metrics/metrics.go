// Package metrics exposes prometheus collectors for the resource store.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Recorder is what the hub and the services report to.
type Recorder interface {
	MutationRecorded(op, result string)
	SubscriptionOpened()
	SubscriptionClosed()
	SnapshotDelivered()
	ImportRecorded(imported, failed int)
}

type Collector struct {
	mutations     *prometheus.CounterVec
	subscriptions prometheus.Gauge
	snapshots     prometheus.Counter
	imported      *prometheus.CounterVec
	gatherer      prometheus.Gatherer
}

func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkshelf_resource_mutations_total",
			Help: "Resource mutations by operation and result.",
		}, []string{"op", "result"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkshelf_subscriptions_active",
			Help: "Live snapshot subscriptions.",
		}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkshelf_snapshots_delivered_total",
			Help: "Snapshots handed to subscribers.",
		}),
		imported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkshelf_imported_resources_total",
			Help: "Imported resources by result.",
		}, []string{"result"}),
		gatherer: reg,
	}

	reg.MustRegister(c.mutations, c.subscriptions, c.snapshots, c.imported)
	return c
}

func (c *Collector) MutationRecorded(op, result string) {
	c.mutations.WithLabelValues(op, result).Inc()
}

func (c *Collector) SubscriptionOpened() {
	c.subscriptions.Inc()
}

func (c *Collector) SubscriptionClosed() {
	c.subscriptions.Dec()
}

func (c *Collector) SnapshotDelivered() {
	c.snapshots.Inc()
}

func (c *Collector) ImportRecorded(imported, failed int) {
	c.imported.WithLabelValues(ResultOK).Add(float64(imported))
	c.imported.WithLabelValues(ResultError).Add(float64(failed))
}

// Handler serves the registry for prometheus scrapes.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) MutationRecorded(string, string) {}
func (Nop) SubscriptionOpened()             {}
func (Nop) SubscriptionClosed()             {}
func (Nop) SnapshotDelivered()              {}
func (Nop) ImportRecorded(int, int)         {}
