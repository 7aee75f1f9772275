package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/wetter/log2"
	"github.com/temoto/wetter/metrics"
	"github.com/temoto/wetter/sensor"
	"github.com/temoto/wetter/tele"
	"github.com/temoto/wetter/uplink"
)

type Global struct {
	Alive    *alive.Alive
	Config   *Config
	Log      *log2.Log
	Tele     tele.Teler
	Metrics  *metrics.Prom
	Registry *prometheus.Registry

	lk        sync.Mutex
	scheduler *uplink.Scheduler
}

const ContextKey = "run/state-global"

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

func NewContext(log *log2.Log, teler tele.Teler) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	reg := prometheus.NewRegistry()
	g := &Global{
		Alive:    alive.NewAlive(),
		Log:      log,
		Tele:     teler,
		Registry: reg,
		Metrics:  metrics.NewProm(reg),
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	if g.Config.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}
	if err := g.Config.Validate(); err != nil {
		return errors.Annotate(err, "config")
	}

	// Since tele is remote error reporting mechanism, it must be inited before anything else
	g.Config.Tele.DeviceID = g.Config.Uplink.DeviceID
	if err := g.Tele.Init(ctx, g.Log, g.Config.Tele); err != nil {
		return errors.Annotate(err, "tele init")
	}
	g.Log.SetErrorFunc(g.Tele.Error)
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

// RegisterRuntimeMetrics adds Go runtime and process collectors, once per process.
func (g *Global) RegisterRuntimeMetrics() {
	g.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

// NewScheduler fills unset opt fields from config and global services.
// Latest scheduler is available via Scheduler().
func (g *Global) NewScheduler(ctx context.Context, opt uplink.Options) (*uplink.Scheduler, error) {
	if opt.Config == nil {
		opt.Config = &g.Config.Uplink
	}
	if opt.Log == nil {
		opt.Log = g.Log
	}
	if opt.Tele == nil {
		opt.Tele = g.Tele
	}
	if opt.Metrics == nil {
		opt.Metrics = g.Metrics
	}
	if opt.Source == nil && g.Config.Sensor.SpoolPath != "" {
		opt.Source = &sensor.Spool{
			Path:   g.Config.Sensor.SpoolPath,
			MaxAge: time.Duration(g.Config.Sensor.MaxAgeSec) * time.Second,
			Log:    g.Log,
		}
	}
	s, err := uplink.New(ctx, opt)
	if err != nil {
		return nil, errors.Annotate(err, "uplink")
	}
	g.lk.Lock()
	g.scheduler = s
	g.lk.Unlock()
	return s, nil
}

func (g *Global) Scheduler() *uplink.Scheduler {
	g.lk.Lock()
	defer g.lk.Unlock()
	return g.scheduler
}
