package session

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/wetter/helpers"
	"github.com/temoto/wetter/log2"
	"github.com/temoto/wetter/wire"
)

const (
	DefaultFetchTimeout = 30 * time.Second

	fetchChunkSize = 64
	fetchLineSize  = 256
)

var (
	ErrFetchConnect    = fmt.Errorf("fetch connect failed")
	ErrFetchTimeout    = fmt.Errorf("fetch timeout")
	ErrFetchIncomplete = fmt.Errorf("fetch response ended before body")
	ErrBodyTooLarge    = fmt.Errorf("fetch response body too large")
)

type FetchState uint8

const (
	FetchNotStarted FetchState = iota
	FetchHeaderSkip
	FetchBodyCapture
	FetchComplete
	FetchFailed
)

func (s FetchState) String() string {
	switch s {
	case FetchNotStarted:
		return "not-started"
	case FetchHeaderSkip:
		return "header-skip"
	case FetchBodyCapture:
		return "body-capture"
	case FetchComplete:
		return "complete"
	case FetchFailed:
		return "failed"
	}
	return fmt.Sprintf("FetchState(%d)", uint8(s))
}

func (s FetchState) Terminal() bool { return s == FetchComplete || s == FetchFailed }

var headerEnd = [4]byte{'\r', '\n', '\r', '\n'}

// Fetch is GET exchange with secondary device publishing wind and particulate values.
// Response: header block, blank line, single CSV line; peer closes stream.
type Fetch struct {
	log     *log2.Log
	stream  Stream
	fields  wire.FieldMap
	timeout time.Duration
	started time.Time
	state   FetchState
	err     error
	values  wire.Values

	matched int // bytes of headerEnd matched so far, survives chunk boundaries
	chunk   [fetchChunkSize]byte
	line    [fetchLineSize]byte
	lineLen int
}

// BeginFetch opens plain connection and sends request.
// Connect or write failure returns Fetch in FetchFailed state, see Err().
func BeginFetch(ctx context.Context, log *log2.Log, dialer Dialer, address string, fields wire.FieldMap, timeout time.Duration, now time.Time) *Fetch {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	f := &Fetch{
		log:     log,
		fields:  fields,
		timeout: timeout,
		started: now,
		state:   FetchNotStarted,
	}
	log.Debugf("[fetch] connect address=%s", address)
	stream, err := dialer.Dial(ctx, address)
	if err != nil {
		f.fail(errors.Annotatef(ErrFetchConnect, "address=%s err=%v", address, err))
		return f
	}
	f.stream = stream
	f.state = FetchHeaderSkip
	if err = helpers.WriteAll(stream, []byte(wire.FetchRequest)); err != nil {
		f.fail(errors.Annotatef(err, "fetch request address=%s", address))
		return f
	}
	log.Debugf("[fetch] request sent")
	return f
}

func (self *Fetch) State() FetchState   { return self.state }
func (self *Fetch) Err() error          { return self.err }
func (self *Fetch) Values() wire.Values { return self.values }

// Step consumes bytes available now with single read. No bytes, no work.
func (self *Fetch) Step(now time.Time) FetchState {
	if self.state.Terminal() || self.state == FetchNotStarted {
		return self.state
	}
	if now.Sub(self.started) > self.timeout {
		self.fail(errors.Annotatef(ErrFetchTimeout, "state=%s after=%s", self.state, self.timeout))
		return self.state
	}

	n, err := self.stream.ReadAvailable(self.chunk[:])
	if n > 0 {
		self.consume(self.chunk[:n])
		if self.state.Terminal() {
			return self.state
		}
	}
	switch {
	case err == io.EOF:
		self.finish()
	case err != nil:
		self.fail(errors.Annotatef(err, "fetch read state=%s", self.state))
	}
	return self.state
}

func (self *Fetch) consume(b []byte) {
	if self.state == FetchHeaderSkip {
		for i, c := range b {
			switch {
			case c == headerEnd[self.matched]:
				self.matched++
			case c == '\r':
				self.matched = 1
			default:
				self.matched = 0
			}
			if self.matched == len(headerEnd) {
				self.log.Debugf("[fetch] headers end")
				self.state = FetchBodyCapture
				b = b[i+1:]
				break
			}
		}
		if self.state != FetchBodyCapture {
			return
		}
	}
	if len(b) > len(self.line)-self.lineLen {
		self.fail(errors.Annotatef(ErrBodyTooLarge, "limit=%d", len(self.line)))
		return
	}
	self.lineLen += copy(self.line[self.lineLen:], b)
}

func (self *Fetch) finish() {
	if self.state != FetchBodyCapture {
		self.fail(errors.Annotatef(ErrFetchIncomplete, "state=%s", self.state))
		return
	}
	line := string(self.line[:self.lineLen])
	self.log.Debugf("[fetch] body='%s'", line)
	v, err := wire.ParseAncillary(line, self.fields)
	if err != nil {
		self.fail(errors.Annotate(err, "fetch parse"))
		return
	}
	self.values = v
	self.state = FetchComplete
	self.log.Debugf("[fetch] complete values=%+v", v)
}

func (self *Fetch) fail(err error) {
	self.err = err
	self.state = FetchFailed
	self.log.Errorf("[fetch] %v", err)
}

// Close releases stream, safe to call in any state.
func (self *Fetch) Close() {
	if self.stream != nil {
		_ = self.stream.Close()
		self.stream = nil
	}
}
