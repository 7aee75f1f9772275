package session

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/wetter/helpers"
	"github.com/temoto/wetter/log2"
	"github.com/temoto/wetter/measure"
	"github.com/temoto/wetter/wire"
)

const DefaultAckTimeout = 30 * time.Second

var (
	// ErrUploadConnect is fatal: local state is considered irrecoverable, process must restart.
	ErrUploadConnect = fmt.Errorf("upload connect failed")
	ErrUploadWrite   = fmt.Errorf("upload write failed")
)

type UploadTarget struct {
	DeviceID   string
	Server     string
	Port       int
	AckTimeout time.Duration
}

func (t UploadTarget) Address() string {
	return net.JoinHostPort(t.Server, strconv.Itoa(t.Port))
}

// Upload is POST of buffered readings to telemetry server.
// Server acknowledgement is drained and not validated.
type Upload struct {
	log         *log2.Log
	stream      Stream
	started     time.Time
	timeout     time.Duration
	Records     int
	ackBytes    int
	ackLine     []byte
	ackLineDone bool
	done        bool
	timedOut    bool
	buf         [fetchChunkSize]byte
}

// BeginUpload connects, writes request head and body, then drains buf.
// Connect failure returns error with cause ErrUploadConnect, buf untouched.
// Readings which would not encode to wire.RecordSize are dropped with error log,
// so declared Content-Length always matches body.
// Write failure returns error with cause ErrUploadWrite, buf is drained anyway:
// lost upload is accepted and next cycle collects fresh readings.
func BeginUpload(ctx context.Context, log *log2.Log, dialer Dialer, target UploadTarget, buf *measure.Buffer, now time.Time) (*Upload, error) {
	address := target.Address()
	log.Debugf("[upload] connect address=%s", address)
	stream, err := dialer.Dial(ctx, address)
	if err != nil {
		return nil, errors.Annotatef(ErrUploadConnect, "address=%s err=%v", address, err)
	}

	ms := make([]measure.Measurement, 0, buf.Len())
	for _, m := range buf.Peek() {
		if err := wire.ValidateRecord(m.SensorID, m.Value); err != nil {
			log.Errorf("[upload] dropped sensor=%s err=%v", m.SensorID, err)
			continue
		}
		ms = append(ms, m)
	}
	records := len(ms)
	var out bytes.Buffer
	out.Grow(256 + wire.ContentLength(records))
	out.WriteString(wire.UploadHead(target.DeviceID, target.Server, records))
	out.Write(wire.EncodeBody(ms))
	log.Debugf("[upload] request records=%d\n%s", records, out.String())
	err = helpers.WriteAll(stream, out.Bytes())
	buf.Drain()
	if err != nil {
		_ = stream.Close()
		return nil, errors.Annotatef(ErrUploadWrite, "address=%s records=%d err=%v", address, records, err)
	}

	timeout := target.AckTimeout
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	log.Infof("[upload] sent records=%d bytes=%d", records, out.Len())
	return &Upload{
		log:     log,
		stream:  stream,
		started: now,
		timeout: timeout,
		Records: records,
	}, nil
}

// DrainAck discards response bytes available now.
// Returns true when exchange is over: peer closed, read failed or ack timeout.
func (self *Upload) DrainAck(now time.Time) bool {
	if self.done {
		return true
	}
	if now.Sub(self.started) > self.timeout {
		self.log.Errorf("[upload] ack timeout after=%s received=%d", self.timeout, self.ackBytes)
		self.done = true
		self.timedOut = true
		return true
	}
	n, finished, err := Drain(readTap{self}, self.buf[:])
	self.ackBytes += n
	if err != nil {
		self.log.Errorf("[upload] ack read err=%v", err)
	}
	if finished {
		self.log.Debugf("[upload] ack done bytes=%d status='%s'", self.ackBytes, self.ackLine)
		self.done = true
	}
	return self.done
}

// AckStatus is first line of server response, informational only.
func (self *Upload) AckStatus() string { return string(self.ackLine) }

// TimedOut is true when DrainAck gave up before peer closed stream.
func (self *Upload) TimedOut() bool { return self.timedOut }

// Release hands stream over to caller, Close becomes no-op.
func (self *Upload) Release() Stream {
	s := self.stream
	self.stream = nil
	return s
}

func (self *Upload) Close() {
	if self.stream != nil {
		_ = self.stream.Close()
		self.stream = nil
	}
}

// readTap keeps first response line for diagnostics.
type readTap struct{ u *Upload }

func (r readTap) Write(p []byte) (int, error) { return len(p), nil }
func (r readTap) Close() error                { return nil }
func (r readTap) ReadAvailable(p []byte) (int, error) {
	n, err := r.u.stream.ReadAvailable(p)
	r.u.tapLine(p[:n])
	return n, err
}

const ackLineMax = 128

func (self *Upload) tapLine(b []byte) {
	for _, c := range b {
		if self.ackLineDone {
			return
		}
		switch {
		case c == '\n' || len(self.ackLine) >= ackLineMax:
			self.ackLineDone = true
		case c != '\r':
			self.ackLine = append(self.ackLine, c)
		}
	}
}
