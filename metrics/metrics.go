// Package metrics exposes uplink counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/temoto/wetter/network"
	"github.com/temoto/wetter/uplink"
)

const (
	Uploads        = "wetter_uploads_total"
	UploadRecords  = "wetter_upload_records_total"
	UploadFailures = "wetter_upload_failures_total"
	FatalFailures  = "wetter_upload_fatal_total"
	Fetches        = "wetter_fetches_total"
	FetchFailures  = "wetter_fetch_failures_total"
	Restarts       = "wetter_restarts_total"
	NetworkStatus  = "wetter_network_status"
	BufferLength   = "wetter_buffer_length"
)

type Prom struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
}

var _ uplink.Metrics = &Prom{} // compile-time interface test

// NewProm registers collectors in reg, nil means prometheus.DefaultRegisterer.
func NewProm(reg prometheus.Registerer) *Prom {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prom{
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
	}
	counter := func(name, help string) {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		reg.MustRegister(c)
		p.counters[name] = c
	}
	gauge := func(name, help string) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		reg.MustRegister(g)
		p.gauges[name] = g
	}
	counter(Uploads, "Upload requests sent.")
	counter(UploadRecords, "Measurement records sent in upload requests.")
	counter(UploadFailures, "Uploads failed after connect, readings lost.")
	counter(FatalFailures, "Upload connect failures leading to restart.")
	counter(Fetches, "Remote ancillary fetch attempts finished.")
	counter(FetchFailures, "Remote ancillary fetch attempts failed.")
	counter(Restarts, "Scheduler restarts after fatal error.")
	gauge(NetworkStatus, "Network link status: 0=unknown 1=idle 2=connected 3=connect-failed 4=disconnected.")
	gauge(BufferLength, "Measurements waiting for next upload.")
	return p
}

func (p *Prom) Uploaded(records int) {
	p.inc(Uploads, 1)
	p.inc(UploadRecords, float64(records))
}

func (p *Prom) UploadFailed(fatal bool) {
	if fatal {
		p.inc(FatalFailures, 1)
	} else {
		p.inc(UploadFailures, 1)
	}
}

func (p *Prom) Fetched(ok bool) {
	p.inc(Fetches, 1)
	if !ok {
		p.inc(FetchFailures, 1)
	}
}

func (p *Prom) Restarted() { p.inc(Restarts, 1) }

func (p *Prom) NetworkStatus(s network.Status) { p.set(NetworkStatus, float64(s)) }
func (p *Prom) BufferLen(n int)                { p.set(BufferLength, float64(n)) }

func (p *Prom) inc(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *Prom) set(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

// Handler serves /metrics from g, nil means prometheus.DefaultGatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func NewServeMux(g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	return mux
}
