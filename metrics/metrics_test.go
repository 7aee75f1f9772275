package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/wetter/network"
)

func TestProm(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	p := NewProm(reg)

	p.Uploaded(3)
	p.Uploaded(2)
	p.UploadFailed(false)
	p.UploadFailed(true)
	p.Fetched(true)
	p.Fetched(false)
	p.Restarted()
	p.NetworkStatus(network.StatusConnected)
	p.BufferLen(4)

	cases := []struct {
		name   string
		c      prometheus.Collector
		expect float64
	}{
		{Uploads, p.counters[Uploads], 2},
		{UploadRecords, p.counters[UploadRecords], 5},
		{UploadFailures, p.counters[UploadFailures], 1},
		{FatalFailures, p.counters[FatalFailures], 1},
		{Fetches, p.counters[Fetches], 2},
		{FetchFailures, p.counters[FetchFailures], 1},
		{Restarts, p.counters[Restarts], 1},
		{NetworkStatus, p.gauges[NetworkStatus], float64(network.StatusConnected)},
		{BufferLength, p.gauges[BufferLength], 4},
	}
	for _, c := range cases {
		assert.Equal(t, c.expect, testutil.ToFloat64(c.c), c.name)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	p := NewProm(reg)
	p.Uploaded(7)

	srv := httptest.NewServer(NewServeMux(reg))
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), "wetter_upload_records_total 7")
}
