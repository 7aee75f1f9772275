package console

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/wetter/helpers/cli"
	"github.com/temoto/wetter/log2"
	"github.com/temoto/wetter/network"
	"github.com/temoto/wetter/session"
	"github.com/temoto/wetter/uplink"
	uplink_config "github.com/temoto/wetter/uplink/config"
)

func TestExec(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	config := &uplink_config.Config{DeviceID: "box", Server: "localhost", Capacity: 2}
	config.Fetch.Address = "10.0.0.2:80"
	fetchStream := session.NewMockStream("HTTP/1.1 200 OK\r\n\r\n5,270,3.5,7.25")
	fetchStream.CloseRemote()
	now := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	s, err := uplink.New(ctx, uplink.Options{
		Config:       config,
		Log:          log2.NewTest(t, log2.LDebug),
		Link:         network.NewMockLink(network.StatusIdle),
		UploadDialer: session.NewMockDialer(),
		FetchDialer:  session.NewMockDialer(fetchStream),
		Now:          func() time.Time { return now },
	})
	require.NoError(t, err)

	cases := []struct {
		line      string
		expect    string
		expectErr string
	}{
		{"", "", ""},
		{"add 5a1b2c3d4e5f60718293a4b1 1.5", "buffer=1\n", ""},
		{"add 5a1b2c3d4e5f60718293a4b2", "", "syntax"},
		{"add 5a1b2c3d4e5f60718293a4b2 x", "", "add value"},
		{"add temp 2", "", "length=4 expected=24"},
		{"add 5a1b2c3d4e5f60718293a4b2 1234567", "", "width=10"},
		{"add 5a1b2c3d4e5f60718293a4b2 2", "buffer=2\n", ""},
		{"add 5a1b2c3d4e5f60718293a4b3 3", "", "capacity exceeded"},
		{"status", "network=connected pending=none buffer=2 last_cycle=12:30:00 connects=1 failures=0 reconnects=0\n", ""},
		{"clear", "buffer=0\n", ""},
		{"fields", "no fetch yet\n", ""},
		{"fetch", "", ""},
		{"fetch", "", "exchange in progress"},
		{"tick", "", ""},
		{"tick", "", ""},
		{"fields", "wind_speed=5 wind_direction=270 pm25=3.50 pm10=7.25 updated=12:30:00\n", ""},
		{"bogus", "", "command 'bogus'"},
	}
	for _, c := range cases {
		out, err := Exec(ctx, s, c.line)
		if c.expectErr != "" {
			require.Error(t, err, c.line)
			assert.Contains(t, err.Error(), c.expectErr, c.line)
			continue
		}
		require.NoError(t, err, c.line)
		assert.Equal(t, c.expect, out, c.line)
	}
	help, err := Exec(ctx, s, "help")
	require.NoError(t, err)
	assert.Contains(t, help, "add ID VALUE")

	_, err = Exec(ctx, nil, "status")
	assert.Error(t, err)
}

func TestRunLines(t *testing.T) {
	t.Parallel()

	var lines []string
	cli.RunLines(strings.NewReader("status\n\n  add a 1 \n"), func(line string) { lines = append(lines, line) })
	assert.Equal(t, []string{"status", "add a 1"}, lines)
}
