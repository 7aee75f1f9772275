package network

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
)

const (
	DefaultNmcliTimeout      = 30 * time.Second
	DefaultNmcliCheck        = 10 * time.Second
	DefaultNmcliCheckTimeout = time.Second
)

// NmcliLink associates wifi with NetworkManager command line tool.
type NmcliLink struct {
	mu           sync.Mutex
	Timeout      time.Duration
	Check        time.Duration // minimal interval between active connection checks
	CheckTimeout time.Duration // Status runs inside scheduler tick, keep it short
	Command      string        // default "nmcli"
	status       Status
	ssid         string
	checked      time.Time

	// run is exec.CommandContext(...).CombinedOutput, replaced in tests
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewNmcliLink(timeout time.Duration) *NmcliLink {
	if timeout == 0 {
		timeout = DefaultNmcliTimeout
	}
	return &NmcliLink{
		Timeout:      timeout,
		Check:        DefaultNmcliCheck,
		CheckTimeout: DefaultNmcliCheckTimeout,
		Command:      "nmcli",
		status:       StatusIdle,
		run:          runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func (self *NmcliLink) Associate(ctx context.Context, c Credentials) error {
	if c.SSID == "" {
		return errors.NotValidf("ssid empty")
	}
	ctx, cancel := context.WithTimeout(ctx, self.Timeout)
	defer cancel()
	args := []string{"device", "wifi", "connect", c.SSID}
	if c.Key != "" {
		args = append(args, "password", c.Key)
	}
	out, err := self.run(ctx, self.Command, args...)
	if err != nil {
		self.set(StatusConnectFailed, "")
		return errors.Annotatef(err, "nmcli connect ssid=%s output=%s", c.SSID, strings.TrimSpace(string(out)))
	}
	self.set(StatusConnected, c.SSID)
	return nil
}

func (self *NmcliLink) Dissociate() error {
	self.mu.Lock()
	ssid := self.ssid
	self.mu.Unlock()
	defer self.set(StatusIdle, "")
	if ssid == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), self.Timeout)
	defer cancel()
	out, err := self.run(ctx, self.Command, "connection", "down", "id", ssid)
	if err != nil {
		return errors.Annotatef(err, "nmcli down ssid=%s output=%s", ssid, strings.TrimSpace(string(out)))
	}
	return nil
}

// Status asks NetworkManager about active connection when association is expected.
// Check failure or timeout gives StatusUnknown, association is kept.
func (self *NmcliLink) Status() Status {
	self.mu.Lock()
	s, ssid := self.status, self.ssid
	fresh := time.Since(self.checked) < self.Check
	if !fresh {
		self.checked = time.Now()
	}
	self.mu.Unlock()
	if s != StatusConnected || ssid == "" || fresh {
		return s
	}
	ctx, cancel := context.WithTimeout(context.Background(), self.CheckTimeout)
	defer cancel()
	out, err := self.run(ctx, self.Command, "-t", "-f", "NAME", "connection", "show", "--active")
	if err != nil {
		return StatusUnknown
	}
	for _, line := range bytes.Split(out, []byte{'\n'}) {
		if string(bytes.TrimSpace(line)) == ssid {
			return StatusConnected
		}
	}
	self.set(StatusDisconnected, ssid)
	return StatusDisconnected
}

func (self *NmcliLink) set(s Status, ssid string) {
	self.mu.Lock()
	self.status = s
	self.ssid = ssid
	self.mu.Unlock()
}
