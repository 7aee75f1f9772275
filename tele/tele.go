// Package tele is device state beacon over MQTT.
// Status messages may be lost. Error and upload events survive broker
// outages and restarts when persistent queue is configured.
package tele

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/spq"
	"github.com/temoto/wetter/helpers"
	"github.com/temoto/wetter/log2"
	"github.com/temoto/wetter/network"
	tele_config "github.com/temoto/wetter/tele/config"
)

const (
	TopicOnline = "online"
	TopicState  = "state"
	TopicError  = "error"
	TopicUpload = "upload"

	outQueueLen = 32
)

var (
	payloadOffline = []byte{'0'}
	payloadOnline  = []byte{'1'}
)

// Teler contract:
// - Init fails only with invalid config, network issues ignored
// - State/Error/Uploaded never block on network
// - Close delivers queued status messages and blocks until done
type Teler interface {
	Init(context.Context, *log2.Log, tele_config.Config) error
	Close()
	State(network.Status)
	Error(error)
	Uploaded(records int)
}

type tele struct {
	mu        sync.Mutex
	config    tele_config.Config
	log       *log2.Log
	transport Transporter
	prefix    string
	state     network.Status
	active    bool

	outch   chan Message
	q       *spq.Queue
	retry   helpers.Backoff
	workers sync.WaitGroup
}

func New() Teler { return &tele{} }
func NewWithTransporter(trans Transporter) Teler {
	return &tele{transport: trans}
}

func (self *tele) Init(ctx context.Context, log *log2.Log, config tele_config.Config) error {
	self.config = config
	self.log = log
	if self.config.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if !self.config.Enabled {
		return nil
	}
	self.prefix = config.TopicPrefix
	if self.prefix == "" {
		self.prefix = config.DeviceID
	}
	if self.prefix == "" {
		return errors.NotValidf("tele topic_prefix and device_id empty")
	}
	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	err := self.transport.Init(ctx, log, config, Will{Topic: self.topic(TopicOnline), Payload: payloadOffline})
	if err != nil {
		return errors.Annotate(err, "tele transport")
	}
	if config.PersistPath != "" {
		if self.q, err = spq.Open(config.PersistPath); err != nil {
			return errors.Annotate(err, "tele queue")
		}
		self.retry = helpers.Backoff{Min: 100 * time.Millisecond, Max: 30 * time.Second, K: 2}
		self.workers.Add(1)
		go self.qworker()
	}

	self.outch = make(chan Message, outQueueLen)
	self.workers.Add(1)
	go self.sender()
	self.active = true
	self.send(TopicOnline, true, payloadOnline)
	return nil
}

func (self *tele) Close() {
	self.mu.Lock()
	if !self.active {
		self.mu.Unlock()
		return
	}
	self.outch <- Message{Topic: self.topic(TopicOnline), Retained: true, Payload: string(payloadOffline)}
	self.active = false
	close(self.outch)
	self.mu.Unlock()
	if self.q != nil {
		_ = self.q.Close()
	}
	self.workers.Wait()
	self.transport.Close()
}

// State publishes retained network status, repeats are suppressed.
func (self *tele) State(s network.Status) {
	self.mu.Lock()
	changed := self.state != s
	self.state = s
	self.mu.Unlock()
	if changed {
		self.send(TopicState, true, []byte(s.String()))
	}
}

func (self *tele) Error(err error) {
	if err == nil {
		return
	}
	self.log.Debugf("tele error=%v", err)
	self.event(TopicError, []byte(err.Error()))
}

func (self *tele) Uploaded(records int) {
	self.event(TopicUpload, []byte(strconv.Itoa(records)))
}

// send enqueues message for sender, drops it when queue is full.
func (self *tele) send(suffix string, retained bool, payload []byte) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if !self.active {
		return
	}
	select {
	case self.outch <- Message{Topic: self.topic(suffix), Retained: retained, Payload: string(payload)}:
	default:
		self.log.Debugf("tele queue full, dropped topic=%s", suffix)
	}
}

// event goes to persistent queue if configured.
func (self *tele) event(suffix string, payload []byte) {
	if self.q == nil {
		self.send(suffix, false, payload)
		return
	}
	b := make([]byte, 0, len(suffix)+1+len(payload))
	b = append(b, suffix...)
	b = append(b, 0)
	b = append(b, payload...)
	if err := self.q.Push(b); err != nil {
		// log2 error func may point here, avoid loop
		self.log.Log(log2.LError, "tele queue push err="+err.Error())
	}
}

func (self *tele) sender() {
	defer self.workers.Done()
	for m := range self.outch {
		if !self.transport.Publish(m.Topic, m.Retained, []byte(m.Payload)) {
			self.log.Debugf("tele publish failed topic=%s", m.Topic)
		}
	}
}

func (self *tele) qworker() {
	defer self.workers.Done()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			// success path
			b := box.Bytes()
			sent := self.qhandle(b)
			if sent {
				self.retry.Reset()
				err = self.q.Delete(box)
			} else {
				err = self.q.DeletePush(box)
			}
			if err == spq.ErrClosed {
				return
			}
			if err != nil {
				self.log.Log(log2.LError, "tele queue b="+string(b)+" err="+err.Error())
			}
			if !sent {
				time.Sleep(self.retry.DelayAfter(false))
			}

		case spq.ErrClosed:
			return

		default:
			self.log.Log(log2.LError, "CRITICAL tele queue err="+err.Error())
			time.Sleep(self.retry.DelayAfter(false))
		}
	}
}

// qhandle returns false when message should be retried later.
func (self *tele) qhandle(b []byte) bool {
	i := bytes.IndexByte(b, 0)
	if i <= 0 {
		self.log.Log(log2.LError, "tele queue invalid item="+string(b))
		return true
	}
	return self.transport.Publish(self.topic(string(b[:i])), false, b[i+1:])
}

func (self *tele) topic(suffix string) string { return self.prefix + "/" + suffix }
