// Package uplink drives periodic upload of buffered readings and remote
// ancillary fetch over single network link, one bounded step per Tick.
package uplink

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/wetter/log2"
	"github.com/temoto/wetter/measure"
	"github.com/temoto/wetter/network"
	"github.com/temoto/wetter/session"
	"github.com/temoto/wetter/tele"
	uplink_config "github.com/temoto/wetter/uplink/config"
	"github.com/temoto/wetter/wire"
)

var ErrBusy = fmt.Errorf("uplink exchange in progress")

// IsFatal reports error after which scheduler state is irrecoverable and process must restart.
func IsFatal(err error) bool {
	return err != nil && errors.Cause(err) == session.ErrUploadConnect
}

type PendingTask uint8

const (
	PendingNone PendingTask = iota
	PendingFetch
	PendingUploadAck
)

func (p PendingTask) String() string {
	switch p {
	case PendingNone:
		return "none"
	case PendingFetch:
		return "fetch"
	case PendingUploadAck:
		return "upload-ack"
	default:
		return fmt.Sprintf("PendingTask(%d)", uint8(p))
	}
}

// Ancillary is last successfully fetched remote values, zero until first fetch.
type Ancillary struct {
	wire.Values
	Updated time.Time
}

type Options struct {
	Config       *uplink_config.Config
	Log          *log2.Log
	Link         network.Link   // default from Config.Network
	UploadDialer session.Dialer // default TLS unless Config.Insecure
	FetchDialer  session.Dialer // default plain TCP
	Source       DataSource
	Tele         tele.Teler
	Metrics      Metrics
	Now          func() time.Time
}

type Scheduler struct {
	mu           sync.Mutex
	config       *uplink_config.Config
	log          *log2.Log
	conn         *network.Manager
	uploadDialer session.Dialer
	fetchDialer  session.Dialer
	source       DataSource
	tele         tele.Teler
	metrics      Metrics
	now          func() time.Time

	buf       *measure.Buffer
	target    session.UploadTarget
	fields    wire.FieldMap
	pending   PendingTask
	fetch     *session.Fetch
	upload    *session.Upload
	ancillary Ancillary
	lastCycle time.Time
	lastFetch time.Time
	fatal     error

	// stream of timed out upload, drained while nothing else is pending
	stray      session.Stream
	strayUntil time.Time
	drainBuf   [64]byte
}

// New prepares scheduler and, unless disabled in config, starts initial connect.
func New(ctx context.Context, opt Options) (*Scheduler, error) {
	c := opt.Config
	if c == nil {
		return nil, errors.NotValidf("code error uplink.New config=nil")
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Tele == nil {
		opt.Tele = tele.Noop{}
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Link == nil {
		link, err := NewLink(c)
		if err != nil {
			return nil, errors.Annotate(err, "uplink link")
		}
		opt.Link = link
	}
	if opt.UploadDialer == nil {
		opt.UploadDialer = NewUploadDialer(c)
	}
	if opt.FetchDialer == nil {
		opt.FetchDialer = &session.NetDialer{
			Dialer:       &net.Dialer{Timeout: c.NetworkTimeout()},
			Poll:         c.Poll(),
			WriteTimeout: c.NetworkTimeout(),
		}
	}

	now := opt.Now()
	self := &Scheduler{
		config:       c,
		log:          opt.Log,
		uploadDialer: opt.UploadDialer,
		fetchDialer:  opt.FetchDialer,
		source:       opt.Source,
		tele:         opt.Tele,
		metrics:      opt.Metrics,
		now:          opt.Now,
		buf:          measure.New(c.BufferCapacity()),
		fields:       c.FieldMap(),
		target: session.UploadTarget{
			DeviceID:   c.DeviceID,
			Server:     c.Server,
			Port:       c.ServerPort(),
			AckTimeout: c.AckTimeout(),
		},
		lastCycle: now,
		lastFetch: now,
	}
	creds := network.Credentials{SSID: c.Network.SSID, Key: c.Network.Key}
	self.conn = network.NewManager(opt.Log, opt.Link, creds, c.Settle())
	self.conn.OnChange(func(old, new network.Status) {
		self.metrics.NetworkStatus(new)
		self.tele.State(new)
	})
	self.metrics.NetworkStatus(self.conn.Status())
	self.tele.State(self.conn.Status())
	if !c.Network.SkipConnectOnStart {
		self.conn.Connect(ctx)
	}
	return self, nil
}

func NewLink(c *uplink_config.Config) (network.Link, error) {
	switch c.LinkKind() {
	case uplink_config.LinkProbe:
		return network.NewProbeLink(c.Network.ProbeAddress, c.NetworkTimeout()), nil
	case uplink_config.LinkNmcli:
		return network.NewNmcliLink(c.NetworkTimeout()), nil
	default:
		return nil, errors.NotSupportedf("link=%s", c.Network.Link)
	}
}

func NewUploadDialer(c *uplink_config.Config) session.Dialer {
	nd := &net.Dialer{Timeout: c.NetworkTimeout()}
	var cd session.ContextDialer = nd
	if !c.Insecure {
		cd = &tls.Dialer{
			NetDialer: nd,
			Config:    &tls.Config{ServerName: c.Server, MinVersion: tls.VersionTLS12},
		}
	}
	return &session.NetDialer{Dialer: cd, Poll: c.Poll(), WriteTimeout: c.NetworkTimeout()}
}

// Tick performs one bounded unit of work.
// Returned error is fatal (see IsFatal), after it Tick does nothing and returns same error.
func (self *Scheduler) Tick(ctx context.Context) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.fatal != nil {
		return self.fatal
	}
	now := self.now()
	self.conn.Poll(ctx, now)

	switch self.pending {
	case PendingNone:
		self.drainStray(now)
	case PendingFetch:
		self.stepFetch(now)
	case PendingUploadAck:
		self.stepUpload(now)
	}

	if now.Sub(self.lastCycle) >= self.config.UploadInterval() {
		if err := self.cycle(ctx, now); err != nil {
			return err
		}
	}

	if self.config.Fetch.Enable && self.pending == PendingNone &&
		self.conn.Status() == network.StatusConnected &&
		now.Sub(self.lastFetch) >= self.config.FetchInterval() {
		self.beginFetch(ctx, now)
	}
	self.metrics.BufferLen(self.buf.Len())
	return nil
}

func (self *Scheduler) cycle(ctx context.Context, now time.Time) error {
	switch status := self.conn.Status(); status {
	case network.StatusConnected:
		if self.pending != PendingNone {
			self.log.Debugf("uplink upload deferred pending=%s", self.pending)
			return nil
		}
		if err := self.beginUpload(ctx, now); err != nil {
			return err
		}

	case network.StatusIdle, network.StatusDisconnected:
		self.log.Debugf("uplink cycle status=%s reconnect", status)
		self.conn.Reconnect(now)

	default: // connect failed or unknown
		self.log.Debugf("uplink cycle status=%s give up", status)
		self.conn.Disconnect()
		self.conn.SetIdle()
	}
	self.lastCycle = now
	return nil
}

func (self *Scheduler) beginUpload(ctx context.Context, now time.Time) error {
	if self.source != nil {
		if err := self.source.PrepareUpload(ctx, bufferRecorder{log: self.log, buf: self.buf}); err != nil {
			self.log.Errorf("uplink prepare upload err=%v", err)
		}
	}
	records := self.buf.Len()
	u, err := session.BeginUpload(ctx, self.log, self.uploadDialer, self.target, self.buf, now)
	if err != nil {
		fatal := IsFatal(err)
		self.metrics.UploadFailed(fatal)
		if fatal {
			err = errors.Annotate(err, "uplink fatal")
			self.log.Error(err)
			self.fatal = err
			return err
		}
		self.log.Error(errors.Annotate(err, "uplink"))
		self.conn.LinkLost()
		return nil
	}
	self.upload = u
	self.pending = PendingUploadAck
	self.metrics.Uploaded(records)
	self.tele.Uploaded(records)
	return nil
}

func (self *Scheduler) stepUpload(now time.Time) {
	if !self.upload.DrainAck(now) {
		return
	}
	if self.upload.TimedOut() {
		self.closeStray()
		self.stray = self.upload.Release()
		self.strayUntil = now.Add(self.target.AckTimeout)
	}
	self.upload.Close()
	self.upload = nil
	self.pending = PendingNone
}

func (self *Scheduler) drainStray(now time.Time) {
	if self.stray == nil {
		return
	}
	n, finished, err := session.Drain(self.stray, self.drainBuf[:])
	if n > 0 || err != nil {
		self.log.Debugf("uplink stray drain bytes=%d err=%v", n, err)
	}
	if finished || now.After(self.strayUntil) {
		self.closeStray()
	}
}

func (self *Scheduler) closeStray() {
	if self.stray != nil {
		_ = self.stray.Close()
		self.stray = nil
	}
}

func (self *Scheduler) beginFetch(ctx context.Context, now time.Time) {
	self.lastFetch = now
	self.fetch = session.BeginFetch(ctx, self.log, self.fetchDialer, self.config.Fetch.Address, self.fields, self.config.FetchTimeout(), now)
	self.pending = PendingFetch
	if self.fetch.State().Terminal() {
		self.finishFetch(now)
	}
}

func (self *Scheduler) stepFetch(now time.Time) {
	if self.fetch.Step(now).Terminal() {
		self.finishFetch(now)
	}
}

func (self *Scheduler) finishFetch(now time.Time) {
	ok := self.fetch.State() == session.FetchComplete
	if ok {
		self.ancillary = Ancillary{Values: self.fetch.Values(), Updated: now}
		self.log.Infof("uplink ancillary %+v", self.ancillary.Values)
	}
	self.metrics.Fetched(ok)
	self.fetch.Close()
	self.fetch = nil
	self.pending = PendingNone
}

// AddMeasurement appends reading to buffer for next upload.
// Reading which does not fit fixed upload record is rejected.
func (self *Scheduler) AddMeasurement(sensorID string, value float32) error {
	if err := wire.ValidateRecord(sensorID, value); err != nil {
		return err
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.buf.Add(sensorID, value)
}

func (self *Scheduler) ClearMeasurements() {
	self.mu.Lock()
	self.buf.Clear()
	self.mu.Unlock()
}

func (self *Scheduler) BufferLen() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.buf.Len()
}

func (self *Scheduler) Ancillary() Ancillary {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.ancillary
}

// BeginFetch starts remote fetch now, regardless of fetch cadence.
func (self *Scheduler) BeginFetch(ctx context.Context) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.fatal != nil {
		return self.fatal
	}
	if self.config.Fetch.Address == "" {
		return errors.NotValidf("uplink.fetch.address empty")
	}
	if self.pending != PendingNone {
		return errors.Annotatef(ErrBusy, "pending=%s", self.pending)
	}
	self.beginFetch(ctx, self.now())
	return nil
}

func (self *Scheduler) Pending() PendingTask {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.pending
}

func (self *Scheduler) Status() network.Status { return self.conn.Status() }

func (self *Scheduler) NetworkStat() network.Stat { return self.conn.Stat() }

func (self *Scheduler) LastCycle() time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.lastCycle
}

// Close releases streams and link. Scheduler must not be used after Close.
func (self *Scheduler) Close() {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.fetch != nil {
		self.fetch.Close()
		self.fetch = nil
	}
	if self.upload != nil {
		self.upload.Close()
		self.upload = nil
	}
	self.closeStray()
	self.pending = PendingNone
	self.conn.Disconnect()
}
