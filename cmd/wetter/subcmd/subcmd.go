// Support sub-commands in wetter application.
package subcmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/wetter/state"
)

// Mod is one subcommand of wetter binary, e.g. run or console.
type Mod struct {
	Name  string
	Usage string // one line for -help listing, e.g. "upload loop as system service"
	Main  func(context.Context, *state.Config) error
}

// Parse finds module by command name.
func Parse(command string, modules []Mod) (*Mod, error) {
	if command == "" {
		return nil, fmt.Errorf("empty command")
	}

	var found *Mod
	for i := range modules {
		m := &modules[i]
		if m.Name == "" {
			panic(fmt.Sprintf("code error Name='' module=%#v", m))
		}
		if command == m.Name {
			found = m
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("unknown command='%s'", command)
	}
	return found, nil
}

// SdNotify sends state string to systemd, false when not running under systemd.
// main uses it to pick service log flags and supervisor reports READY/STATUS/STOPPING.
func SdNotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}

// SdWatchdog returns interval for WATCHDOG=1 notifications, 0 when watchdog is not enabled.
// Half of WatchdogSec leaves room for one slow tick between pings.
func SdWatchdog() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Printf("sdnotify watchdog: %v", err)
		return 0
	}
	return d / 2
}
