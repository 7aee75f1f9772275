package network

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/juju/errors"
)

const DefaultProbeTimeout = 10 * time.Second

// ProbeLink is Link for hosts where operating system owns wifi association.
// Associate checks reachability of Address with TCP connect.
// Later link loss is reported via MarkLost by whoever detects it.
type ProbeLink struct {
	mu      sync.Mutex
	Address string
	Timeout time.Duration
	Dialer  interface {
		DialContext(ctx context.Context, network, address string) (net.Conn, error)
	}
	status Status
}

func NewProbeLink(address string, timeout time.Duration) *ProbeLink {
	if timeout == 0 {
		timeout = DefaultProbeTimeout
	}
	return &ProbeLink{
		Address: address,
		Timeout: timeout,
		Dialer:  &net.Dialer{Timeout: timeout},
		status:  StatusIdle,
	}
}

func (self *ProbeLink) Associate(ctx context.Context, _ Credentials) error {
	if self.Address == "" {
		return errors.NotValidf("probe address empty")
	}
	ctx, cancel := context.WithTimeout(ctx, self.Timeout)
	defer cancel()
	conn, err := self.Dialer.DialContext(ctx, "tcp", self.Address)
	if err != nil {
		self.set(StatusConnectFailed)
		return errors.Annotatef(err, "probe address=%s", self.Address)
	}
	_ = conn.Close()
	self.set(StatusConnected)
	return nil
}

func (self *ProbeLink) Dissociate() error {
	self.set(StatusIdle)
	return nil
}

func (self *ProbeLink) Status() Status {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.status
}

// MarkLost reports link loss detected outside, e.g. by failed exchange.
func (self *ProbeLink) MarkLost() {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.status == StatusConnected {
		self.status = StatusDisconnected
	}
}

func (self *ProbeLink) set(s Status) {
	self.mu.Lock()
	self.status = s
	self.mu.Unlock()
}
