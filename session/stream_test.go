package session

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnStreamReadAvailable(t *testing.T) {
	t.Parallel()

	local, remote := net.Pipe()
	s := NewConnStream(local, time.Millisecond, time.Second)
	buf := make([]byte, 16)

	n, err := s.ReadAvailable(buf)
	assert.NoError(t, err, "no data is not an error")
	assert.Equal(t, 0, n)

	go func() {
		_, _ = remote.Write([]byte("hello"))
		remote.Close()
	}()
	got := make([]byte, 0, 16)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		n, err = s.ReadAvailable(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			break
		}
	}
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "hello", string(got))
	assert.NoError(t, s.Close())
}

func TestNetDialer(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		b := make([]byte, len("ping"))
		_, _ = io.ReadFull(c, b)
		_, _ = c.Write([]byte("pong"))
		c.Close()
	}()

	d := &NetDialer{Dialer: &net.Dialer{Timeout: time.Second}}
	s, err := d.Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Write([]byte("ping"))
	require.NoError(t, err)

	got := make([]byte, 0, 8)
	buf := make([]byte, 8)
	deadline := time.Now().Add(5 * time.Second)
	finished := false
	for !finished && time.Now().Before(deadline) {
		var n int
		n, err = s.ReadAvailable(buf)
		got = append(got, buf[:n]...)
		finished = err != nil
	}
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "pong", string(got))
}

func TestDrainBounded(t *testing.T) {
	t.Parallel()

	s := NewMockStream()
	for i := 0; i < drainMaxReads+4; i++ {
		s.Feed("x")
	}
	buf := make([]byte, 4)
	n, finished, err := Drain(s, buf)
	assert.NoError(t, err)
	assert.False(t, finished)
	assert.Equal(t, drainMaxReads, n)
	s.CloseRemote()
	n, finished, err = Drain(s, buf)
	assert.NoError(t, err)
	assert.True(t, finished)
	assert.Equal(t, 4, n)
}
