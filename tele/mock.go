package tele

import (
	"context"
	"sync"

	"github.com/temoto/wetter/log2"
	tele_config "github.com/temoto/wetter/tele/config"
)

type Message struct {
	Topic    string
	Retained bool
	Payload  string
}

// MockTransport records published messages.
// Fail is number of next Publish calls to fail.
type MockTransport struct {
	mu      sync.Mutex
	InitErr error
	Fail    int
	Will    Will
	Msgs    []Message
	Closed  bool
}

var _ Transporter = &MockTransport{} // compile-time interface test

func (self *MockTransport) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, will Will) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.Will = will
	return self.InitErr
}

func (self *MockTransport) Publish(topic string, retained bool, payload []byte) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.Fail > 0 {
		self.Fail--
		return false
	}
	self.Msgs = append(self.Msgs, Message{Topic: topic, Retained: retained, Payload: string(payload)})
	return true
}

func (self *MockTransport) Close() {
	self.mu.Lock()
	self.Closed = true
	self.mu.Unlock()
}

func (self *MockTransport) IsClosed() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.Closed
}

func (self *MockTransport) Messages() []Message {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]Message(nil), self.Msgs...)
}
