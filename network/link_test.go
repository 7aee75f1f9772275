package network

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeLink(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	ctx := context.Background()
	l := NewProbeLink(ln.Addr().String(), time.Second)
	assert.Equal(t, StatusIdle, l.Status())
	require.NoError(t, l.Associate(ctx, Credentials{}))
	assert.Equal(t, StatusConnected, l.Status())
	l.MarkLost()
	assert.Equal(t, StatusDisconnected, l.Status())
	require.NoError(t, l.Dissociate())
	assert.Equal(t, StatusIdle, l.Status())

	empty := NewProbeLink("", 0)
	assert.True(t, errors.IsNotValid(empty.Associate(ctx, Credentials{})))
}

func TestProbeLinkFail(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	l := NewProbeLink(addr, time.Second)
	assert.Error(t, l.Associate(context.Background(), Credentials{}))
	assert.Equal(t, StatusConnectFailed, l.Status())
}

func TestNmcliLink(t *testing.T) {
	t.Parallel()

	var calls []string
	active := "home\n"
	l := NewNmcliLink(time.Second)
	l.Check = 0
	l.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, name+" "+strings.Join(args, " "))
		switch args[0] {
		case "device":
			if args[3] == "bad" {
				return []byte("Error: No network with SSID 'bad' found."), fmt.Errorf("exit status 10")
			}
			return []byte("Device 'wlan0' successfully activated"), nil
		case "-t":
			return []byte(active), nil
		}
		return nil, nil
	}

	ctx := context.Background()
	require.NoError(t, l.Associate(ctx, Credentials{SSID: "home", Key: "k"}))
	assert.Equal(t, StatusConnected, l.Status())
	active = "other\n"
	assert.Equal(t, StatusDisconnected, l.Status())
	require.NoError(t, l.Dissociate())
	assert.Equal(t, StatusIdle, l.Status())

	err := l.Associate(ctx, Credentials{SSID: "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No network with SSID")
	assert.Equal(t, StatusConnectFailed, l.Status())

	assert.Equal(t, []string{
		"nmcli device wifi connect home password k",
		"nmcli -t -f NAME connection show --active",
		"nmcli -t -f NAME connection show --active",
		"nmcli connection down id home",
		"nmcli device wifi connect bad",
	}, calls)
}

func TestNmcliStatusCheckTimeout(t *testing.T) {
	t.Parallel()

	l := NewNmcliLink(time.Minute)
	l.Check = 0
	l.CheckTimeout = 50 * time.Millisecond
	var statusBudget time.Duration
	l.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if args[0] == "-t" {
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			statusBudget = time.Until(deadline)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, nil
	}

	require.NoError(t, l.Associate(context.Background(), Credentials{SSID: "home"}))
	started := time.Now()
	assert.Equal(t, StatusUnknown, l.Status())
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.LessOrEqual(t, statusBudget, 50*time.Millisecond)
}
