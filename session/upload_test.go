package session

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/wetter/log2"
	"github.com/temoto/wetter/measure"
)

var testTarget = UploadTarget{DeviceID: "box1", Server: "ingress.example.org", Port: 443, AckTimeout: 10 * time.Second}

func TestUpload(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	buf := measure.New(4)
	require.NoError(t, buf.Add("5a1b2c3d4e5f60718293a4b5", 21.345))
	require.NoError(t, buf.Add("5a1b2c3d4e5f60718293a4b6", 1013.25))
	stream := NewMockStream()
	dialer := NewMockDialer(stream)

	u, err := BeginUpload(context.Background(), log2.NewTest(t, log2.LDebug), dialer, testTarget, buf, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"ingress.example.org:443"}, dialer.Addresses)
	assert.Equal(t, 2, u.Records)
	assert.Equal(t, 0, buf.Len())
	expect := "POST /boxes/box1/data HTTP/1.1\r\n" +
		"Host: ingress.example.org\r\n" +
		"Content-Type: text/csv\r\n" +
		"Connection: close\r\n" +
		"Content-Length: 70\r\n" +
		"\r\n" +
		"5a1b2c3d4e5f60718293a4b5,    21.35\n" +
		"5a1b2c3d4e5f60718293a4b6,  1013.25\n"
	assert.Equal(t, expect, stream.Written())

	assert.False(t, u.DrainAck(now))
	stream.Feed("HTTP/1.1 201 Created\r\n", "Content-Length: 16\r\n\r\n", "Measurements saved")
	assert.False(t, u.DrainAck(now))
	stream.CloseRemote()
	assert.True(t, u.DrainAck(now))
	assert.Equal(t, "HTTP/1.1 201 Created", u.AckStatus())
	u.Close()
	assert.True(t, stream.Closed())
}

func TestUploadDropsMisfitRecords(t *testing.T) {
	t.Parallel()

	buf := measure.New(4)
	require.NoError(t, buf.Add("temp", 21.345))
	require.NoError(t, buf.Add("5a1b2c3d4e5f60718293a4b5", 1234567.5))
	require.NoError(t, buf.Add("5a1b2c3d4e5f60718293a4b6", 1013.25))
	stream := NewMockStream()
	u, err := BeginUpload(context.Background(), log2.NewTest(t, log2.LDebug), NewMockDialer(stream), testTarget, buf, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, u.Records)
	assert.Equal(t, 0, buf.Len())
	expectBody := "5a1b2c3d4e5f60718293a4b6,  1013.25\n"
	written := stream.Written()
	assert.Contains(t, written, "Content-Length: 35\r\n\r\n")
	assert.True(t, strings.HasSuffix(written, "\r\n\r\n"+expectBody), written)
	u.Close()
}

func TestUploadConnectFail(t *testing.T) {
	t.Parallel()

	buf := measure.New(2)
	require.NoError(t, buf.Add("a", 1))
	dialer := NewMockDialer()
	dialer.Err = fmt.Errorf("tls: handshake failure")
	u, err := BeginUpload(context.Background(), nil, dialer, testTarget, buf, time.Now())
	assert.Nil(t, u)
	require.Error(t, err)
	assert.Equal(t, ErrUploadConnect, errors.Cause(err))
	assert.Equal(t, 1, buf.Len(), "buffer untouched")
}

func TestUploadWriteFail(t *testing.T) {
	t.Parallel()

	buf := measure.New(2)
	require.NoError(t, buf.Add("a", 1))
	stream := NewMockStream()
	stream.WriteErr = fmt.Errorf("broken pipe")
	u, err := BeginUpload(context.Background(), nil, NewMockDialer(stream), testTarget, buf, time.Now())
	assert.Nil(t, u)
	assert.Equal(t, ErrUploadWrite, errors.Cause(err))
	assert.Equal(t, 0, buf.Len())
	assert.True(t, stream.Closed())
}

func TestUploadAckTimeout(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	buf := measure.New(1)
	stream := NewMockStream()
	u, err := BeginUpload(context.Background(), nil, NewMockDialer(stream), testTarget, buf, now)
	require.NoError(t, err)
	assert.Equal(t, 0, u.Records)
	assert.False(t, u.DrainAck(now.Add(5*time.Second)))
	assert.True(t, u.DrainAck(now.Add(11*time.Second)))
	assert.True(t, u.DrainAck(now.Add(12*time.Second)))
	assert.True(t, u.TimedOut())

	released := u.Release()
	assert.Equal(t, stream, released)
	u.Close()
	assert.False(t, stream.Closed())
}
