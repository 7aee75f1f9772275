// Service mode: upload readings until stopped by signal.
package run

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/wetter/cmd/wetter/subcmd"
	"github.com/temoto/wetter/helpers"
	"github.com/temoto/wetter/metrics"
	"github.com/temoto/wetter/state"
	"github.com/temoto/wetter/supervisor"
	"github.com/temoto/wetter/uplink"
)

const restartBackoffK = 2

var Mod = subcmd.Mod{Name: "run", Usage: "upload readings (default)", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)
	g.Log.Debugf("config uplink server=%s device=%s link=%s", config.Uplink.Server, config.Uplink.DeviceID, config.Uplink.LinkKind())
	defer g.Tele.Close()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigch
		g.Log.Infof("signal=%v stopping", s)
		g.Alive.Stop()
	}()

	if config.Metrics.Listen != "" {
		g.RegisterRuntimeMetrics()
		srv := &http.Server{
			Addr:              config.Metrics.Listen,
			Handler:           metrics.NewServeMux(g.Registry),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-g.Alive.StopChan()
			_ = srv.Close()
		}()
		go func() {
			g.Log.Infof("metrics listen=%s", config.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				g.Error(err, "metrics listen=%s", config.Metrics.Listen)
			}
		}()
	}

	err := supervisor.Run(ctx, supervisor.Options{
		Log: g.Log,
		New: func(ctx context.Context) (supervisor.Ticker, error) {
			s, err := g.NewScheduler(ctx, uplink.Options{})
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		Tick: config.Uplink.Tick(),
		Backoff: &helpers.Backoff{
			Min: config.RestartDelay(),
			Max: config.RestartMax(),
			K:   restartBackoffK,
		},
		Alive:     g.Alive,
		OnRestart: func(error) { g.Metrics.Restarted() },
		Notify:    subcmd.SdNotify,
		Watchdog:  subcmd.SdWatchdog(),
	})
	g.Alive.Stop()
	g.Alive.Wait()
	return errors.Annotate(err, "run")
}
