// Package session implements request/response exchanges spread over many
// scheduler ticks. Every call performs bounded work and returns.
package session

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"github.com/juju/errors"
)

const (
	DefaultPoll         = 2 * time.Millisecond
	DefaultWriteTimeout = 30 * time.Second
)

// Stream is byte stream to peer with non-blocking read.
type Stream interface {
	io.Writer
	// ReadAvailable reads bytes already received.
	// Returns 0, nil when nothing is pending and io.EOF once peer closed stream.
	ReadAvailable(p []byte) (int, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, address string) (Stream, error)
}

// ContextDialer is implemented by *net.Dialer and *tls.Dialer.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NetDialer opens TCP (optionally TLS) streams.
// Read waits at most Poll for data, so tick stays bounded.
type NetDialer struct {
	Dialer       ContextDialer
	Poll         time.Duration
	WriteTimeout time.Duration
}

func (self *NetDialer) Dial(ctx context.Context, address string) (Stream, error) {
	conn, err := self.Dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return NewConnStream(conn, self.Poll, self.WriteTimeout), nil
}

type connStream struct {
	conn         net.Conn
	poll         time.Duration
	writeTimeout time.Duration
}

func NewConnStream(conn net.Conn, poll, writeTimeout time.Duration) Stream {
	if poll <= 0 {
		poll = DefaultPoll
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &connStream{conn: conn, poll: poll, writeTimeout: writeTimeout}
}

func (self *connStream) Write(p []byte) (int, error) {
	if err := self.conn.SetWriteDeadline(time.Now().Add(self.writeTimeout)); err != nil {
		return 0, err
	}
	return self.conn.Write(p)
}

func (self *connStream) ReadAvailable(p []byte) (int, error) {
	if err := self.conn.SetReadDeadline(time.Now().Add(self.poll)); err != nil {
		return 0, err
	}
	n, err := self.conn.Read(p)
	if err != nil && isTimeout(err) {
		err = nil
	}
	return n, err
}

func (self *connStream) Close() error { return self.conn.Close() }

func isTimeout(err error) bool {
	if errors.Cause(err) == os.ErrDeadlineExceeded {
		return true
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return true
	}
	return false
}

const drainMaxReads = 16

// Drain discards currently available bytes, at most drainMaxReads reads per call.
// finished=true when peer closed stream or read failed.
func Drain(s Stream, buf []byte) (n int, finished bool, err error) {
	for i := 0; i < drainMaxReads; i++ {
		m, err := s.ReadAvailable(buf)
		n += m
		switch {
		case err == io.EOF:
			return n, true, nil
		case err != nil:
			return n, true, err
		case m == 0:
			return n, false, nil
		}
	}
	return n, false, nil
}
