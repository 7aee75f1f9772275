// Package network owns connection status and connect/disconnect/reconnect of the device link.
package network

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/wetter/log2"
)

const DefaultSettle = 200 * time.Millisecond

type Stat struct {
	Connects    uint32
	Disconnects uint32
	Reconnects  uint32
	Failures    uint32
}

// Manager is connection state owner.
// Status changes only via Manager operations or link reports collected by Poll.
type Manager struct {
	mu        sync.Mutex
	log       *log2.Log
	link      Link
	creds     Credentials
	settle    time.Duration
	status    Status
	connectAt time.Time // deferred connect after reconnect settling, zero=none
	stat      Stat
	onChange  func(old, new Status)
}

func NewManager(log *log2.Log, link Link, creds Credentials, settle time.Duration) *Manager {
	if link == nil {
		panic("code error network.NewManager link=nil")
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Manager{
		log:    log,
		link:   link,
		creds:  creds,
		settle: settle,
		status: StatusIdle,
	}
}

// OnChange registers status transition observer. Called without lock held.
func (self *Manager) OnChange(f func(old, new Status)) {
	self.mu.Lock()
	self.onChange = f
	self.mu.Unlock()
}

func (self *Manager) Status() Status {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.status
}

func (self *Manager) Stat() Stat {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.stat
}

// Settling is true between Reconnect and deferred Connect.
func (self *Manager) Settling() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return !self.connectAt.IsZero()
}

// Connect initiates association. Completion is observed by Status on later ticks.
// Failure is not returned: it is reflected as StatusConnectFailed.
func (self *Manager) Connect(ctx context.Context) {
	self.mu.Lock()
	self.stat.Connects++
	self.connectAt = time.Time{}
	self.mu.Unlock()

	self.log.Infof("[network] connect ssid=%s", self.creds.SSID)
	err := self.link.Associate(ctx, self.creds)
	if err != nil {
		err = errors.Annotatef(ErrConnectFailed, "[network] connect ssid=%s err=%v", self.creds.SSID, err)
		self.log.Error(err)
		self.mu.Lock()
		self.stat.Failures++
		self.mu.Unlock()
		self.setStatus(StatusConnectFailed)
		return
	}
	self.setStatus(self.link.Status())
}

// Disconnect tears down association. Idempotent.
func (self *Manager) Disconnect() {
	self.mu.Lock()
	self.stat.Disconnects++
	self.connectAt = time.Time{}
	self.mu.Unlock()

	self.log.Infof("[network] disconnect")
	if err := self.link.Dissociate(); err != nil {
		self.log.Errorf("[network] disconnect err=%v", err)
	}
	self.setStatus(StatusIdle)
}

// Reconnect disconnects now and schedules Connect after settle delay.
// Deferred connect is performed by Poll.
func (self *Manager) Reconnect(now time.Time) {
	self.Disconnect()
	self.mu.Lock()
	self.stat.Reconnects++
	self.connectAt = now.Add(self.settle)
	self.mu.Unlock()
	self.log.Debugf("[network] reconnect scheduled after=%s", self.settle)
}

// LinkLost reports link loss detected by failed exchange.
func (self *Manager) LinkLost() {
	if lr, ok := self.link.(LossReporter); ok {
		lr.MarkLost()
	}
	if self.Status() == StatusConnected {
		self.setStatus(StatusDisconnected)
	}
}

// SetIdle forces StatusIdle, used after giving up on failed connect.
func (self *Manager) SetIdle() { self.setStatus(StatusIdle) }

// Poll performs due deferred connect, otherwise collects link status.
func (self *Manager) Poll(ctx context.Context, now time.Time) {
	self.mu.Lock()
	at := self.connectAt
	current := self.status
	self.mu.Unlock()

	if !at.IsZero() {
		if !now.Before(at) {
			self.Connect(ctx)
		}
		return
	}
	// failed state is sticky until scheduler gives up with SetIdle or Disconnect
	if current != StatusConnectFailed {
		if s := self.link.Status(); s != current {
			self.setStatus(s)
		}
	}
}

func (self *Manager) setStatus(s Status) {
	self.mu.Lock()
	old := self.status
	self.status = s
	f := self.onChange
	self.mu.Unlock()
	if old != s {
		self.log.Infof("[network] status %s -> %s", old, s)
		if f != nil {
			f(old, s)
		}
	}
}
