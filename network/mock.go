package network

import (
	"context"
	"sync"
)

// MockLink is scripted Link for tests.
// AssociateStatus is status after successful Associate,
// AssociateErr makes Associate fail.
type MockLink struct {
	mu              sync.Mutex
	status          Status
	AssociateStatus Status
	AssociateErr    error
	Associations    int
	Dissociations   int
	LastCredentials Credentials
}

var _ Link = &MockLink{} // compile-time interface test

func NewMockLink(initial Status) *MockLink {
	return &MockLink{status: initial, AssociateStatus: StatusConnected}
}

func (self *MockLink) Associate(ctx context.Context, c Credentials) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.Associations++
	self.LastCredentials = c
	if self.AssociateErr != nil {
		self.status = StatusConnectFailed
		return self.AssociateErr
	}
	self.status = self.AssociateStatus
	return nil
}

func (self *MockLink) Dissociate() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.Dissociations++
	self.status = StatusIdle
	return nil
}

func (self *MockLink) Status() Status {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.status
}

func (self *MockLink) MarkLost() {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.status == StatusConnected {
		self.status = StatusDisconnected
	}
}

// SetStatus simulates link report, e.g. link loss.
func (self *MockLink) SetStatus(s Status) {
	self.mu.Lock()
	self.status = s
	self.mu.Unlock()
}

func (self *MockLink) Calls() (associations, dissociations int) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.Associations, self.Dissociations
}
