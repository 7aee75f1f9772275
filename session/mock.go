package session

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/juju/errors"
)

// MockStream is scripted Stream for tests.
// Each ReadAvailable returns at most one fed chunk.
type MockStream struct {
	mu           sync.Mutex
	chunks       [][]byte
	remoteClosed bool
	closed       bool
	readErr      error
	written      bytes.Buffer
	WriteErr     error
	Reads        int
}

var _ Stream = &MockStream{} // compile-time interface test

func NewMockStream(chunks ...string) *MockStream {
	s := &MockStream{}
	s.Feed(chunks...)
	return s
}

func (self *MockStream) Feed(chunks ...string) {
	self.mu.Lock()
	defer self.mu.Unlock()
	for _, c := range chunks {
		self.chunks = append(self.chunks, []byte(c))
	}
}

// FeedBytewise feeds s one byte per chunk.
func (self *MockStream) FeedBytewise(s string) {
	for i := 0; i < len(s); i++ {
		self.Feed(s[i : i+1])
	}
}

// CloseRemote makes ReadAvailable return io.EOF after fed chunks are consumed.
func (self *MockStream) CloseRemote() {
	self.mu.Lock()
	self.remoteClosed = true
	self.mu.Unlock()
}

// FailRead makes ReadAvailable return err after fed chunks are consumed.
func (self *MockStream) FailRead(err error) {
	self.mu.Lock()
	self.readErr = err
	self.mu.Unlock()
}

func (self *MockStream) ReadAvailable(p []byte) (int, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.Reads++
	if self.closed {
		return 0, errors.New("read on closed stream")
	}
	if len(self.chunks) == 0 {
		if self.readErr != nil {
			return 0, self.readErr
		}
		if self.remoteClosed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(p, self.chunks[0])
	if n == len(self.chunks[0]) {
		self.chunks = self.chunks[1:]
	} else {
		self.chunks[0] = self.chunks[0][n:]
	}
	return n, nil
}

func (self *MockStream) Write(p []byte) (int, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.WriteErr != nil {
		return 0, self.WriteErr
	}
	return self.written.Write(p)
}

func (self *MockStream) Close() error {
	self.mu.Lock()
	self.closed = true
	self.mu.Unlock()
	return nil
}

func (self *MockStream) Closed() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.closed
}

func (self *MockStream) Written() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.written.String()
}

// MockDialer returns queued streams or Err.
type MockDialer struct {
	mu        sync.Mutex
	streams   []*MockStream
	Err       error
	Addresses []string
}

func NewMockDialer(streams ...*MockStream) *MockDialer {
	return &MockDialer{streams: streams}
}

func (self *MockDialer) Push(s *MockStream) {
	self.mu.Lock()
	self.streams = append(self.streams, s)
	self.mu.Unlock()
}

func (self *MockDialer) Dial(ctx context.Context, address string) (Stream, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.Addresses = append(self.Addresses, address)
	if self.Err != nil {
		return nil, self.Err
	}
	if len(self.streams) == 0 {
		return nil, errors.New("mock dialer: no stream queued")
	}
	s := self.streams[0]
	self.streams = self.streams[1:]
	return s, nil
}

func (self *MockDialer) Dials() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.Addresses)
}
