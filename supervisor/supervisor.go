// Package supervisor runs scheduler tick loop and restarts it from scratch
// after fatal error, with backoff delay.
package supervisor

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/wetter/helpers"
	"github.com/temoto/wetter/log2"
)

const (
	DefaultTick         = 50 * time.Millisecond
	DefaultRestartDelay = 5 * time.Second
)

type Ticker interface {
	// Tick returns error only when state is irrecoverable.
	Tick(ctx context.Context) error
	Close()
}

// Factory builds fresh ticker with pristine state.
// Error from Factory is not retried and stops Run.
type Factory func(ctx context.Context) (Ticker, error)

type Options struct {
	Log       *log2.Log
	New       Factory
	Tick      time.Duration
	Backoff   *helpers.Backoff // restart delay, default fixed DefaultRestartDelay
	Alive     *alive.Alive     // Stop() ends Run, required
	OnRestart func(cause error)

	// Notify is called with sd_notify state strings, optional.
	Notify   func(state string) bool
	Watchdog time.Duration // WATCHDOG=1 interval, 0 disables
}

// Run blocks until opt.Alive is stopped, ctx is done or factory fails.
func Run(ctx context.Context, opt Options) error {
	if opt.New == nil || opt.Alive == nil {
		return errors.NotValidf("code error supervisor.Run New or Alive nil")
	}
	if opt.Tick <= 0 {
		opt.Tick = DefaultTick
	}
	if opt.Backoff == nil {
		opt.Backoff = &helpers.Backoff{Min: DefaultRestartDelay, Max: DefaultRestartDelay, K: 1}
	}
	if opt.Notify == nil {
		opt.Notify = func(string) bool { return false }
	}
	if !opt.Alive.Add(1) {
		return nil
	}
	defer opt.Alive.Done()

	s := supervisor{Options: opt}
	for opt.Alive.IsRunning() && ctx.Err() == nil {
		t, err := opt.New(ctx)
		if err != nil {
			return errors.Annotate(err, "supervisor new")
		}
		s.restarts++
		if s.restarts == 1 {
			opt.Notify("READY=1")
		}
		err = s.loop(ctx, t)
		t.Close()
		if err == nil {
			break
		}

		opt.Backoff.Failure()
		delay := opt.Backoff.Next()
		opt.Log.Errorf("supervisor restart after=%s cause=%v", delay, err)
		opt.Notify("STATUS=restart")
		if opt.OnRestart != nil {
			opt.OnRestart(err)
		}
		if !s.sleep(ctx, delay) {
			break
		}
	}
	opt.Notify("STOPPING=1")
	return nil
}

type supervisor struct {
	Options
	restarts     int
	lastWatchdog time.Time
}

// loop ticks until fatal error (returned) or stop (nil).
func (self *supervisor) loop(ctx context.Context, t Ticker) error {
	tmr := time.NewTicker(self.Tick)
	defer tmr.Stop()
	stopch := self.Alive.StopChan()
	for {
		if err := t.Tick(ctx); err != nil {
			return err
		}
		self.watchdog()
		select {
		case <-stopch:
			return nil
		case <-ctx.Done():
			return nil
		case <-tmr.C:
		}
	}
}

func (self *supervisor) watchdog() {
	if self.Watchdog <= 0 {
		return
	}
	if now := time.Now(); now.Sub(self.lastWatchdog) >= self.Watchdog {
		self.lastWatchdog = now
		self.Notify("WATCHDOG=1")
	}
}

func (self *supervisor) sleep(ctx context.Context, d time.Duration) bool {
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-tmr.C:
		return true
	case <-self.Alive.StopChan():
		return false
	case <-ctx.Done():
		return false
	}
}
