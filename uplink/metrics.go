package uplink

import (
	"github.com/temoto/wetter/network"
)

// Metrics receives scheduler events, see package metrics for Prometheus implementation.
type Metrics interface {
	Uploaded(records int)
	UploadFailed(fatal bool)
	Fetched(ok bool)
	NetworkStatus(network.Status)
	BufferLen(n int)
}

type NoopMetrics struct{}

var _ Metrics = NoopMetrics{} // compile-time interface test

func (NoopMetrics) Uploaded(int)                 {}
func (NoopMetrics) UploadFailed(bool)            {}
func (NoopMetrics) Fetched(bool)                 {}
func (NoopMetrics) NetworkStatus(network.Status) {}
func (NoopMetrics) BufferLen(int)                {}
