// Interactive console: inspect and drive live scheduler.
package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/wetter/cmd/wetter/subcmd"
	"github.com/temoto/wetter/helpers/cli"
	"github.com/temoto/wetter/state"
	"github.com/temoto/wetter/supervisor"
	"github.com/temoto/wetter/uplink"
)

const modName = "console"

const usage = `commands:
- add ID VALUE  append measurement to upload buffer
- clear         drop buffered measurements
- fetch         start remote ancillary fetch now
- fields        show last fetched ancillary values
- status        show network status, pending exchange, buffer length
- tick          run one scheduler step now
- help          this text
`

var Mod = subcmd.Mod{Name: modName, Usage: "interactive control of running uplink", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)
	defer g.Tele.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errch := make(chan error, 1)
	go func() {
		errch <- supervisor.Run(ctx, supervisor.Options{
			Log: g.Log,
			New: func(ctx context.Context) (supervisor.Ticker, error) {
				s, err := g.NewScheduler(ctx, uplink.Options{})
				if err != nil {
					return nil, err
				}
				return s, nil
			},
			Tick:      config.Uplink.Tick(),
			Alive:     g.Alive,
			OnRestart: func(error) { g.Metrics.Restarted() },
		})
	}()

	cli.MainLoop("wetter-"+modName, g.Alive.Stop, newExecutor(ctx, g), newCompleter())
	g.Alive.Stop()
	g.Alive.Wait()
	return errors.Annotate(<-errch, modName)
}

var commands = []prompt.Suggest{
	{Text: "add", Description: "ID VALUE"},
	{Text: "clear"},
	{Text: "fetch"},
	{Text: "fields"},
	{Text: "status"},
	{Text: "tick"},
	{Text: "help"},
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	return func(d prompt.Document) []prompt.Suggest {
		if strings.Contains(d.TextBeforeCursor(), " ") {
			return nil
		}
		return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(ctx context.Context, g *state.Global) func(string) {
	return func(line string) {
		out, err := Exec(ctx, g.Scheduler(), line)
		if err != nil {
			g.Log.Errorf("%s", errors.ErrorStack(err))
			return
		}
		if out != "" {
			fmt.Print(out)
		}
	}
}

// Exec runs one console command against scheduler.
func Exec(ctx context.Context, s *uplink.Scheduler, line string) (string, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return "", nil
	}
	if s == nil {
		return "", errors.New("scheduler not ready")
	}
	switch words[0] {
	case "add":
		if len(words) != 3 {
			return "", errors.NotValidf("syntax: add ID VALUE")
		}
		v, err := strconv.ParseFloat(words[2], 32)
		if err != nil {
			return "", errors.Annotate(err, "add value")
		}
		if err = s.AddMeasurement(words[1], float32(v)); err != nil {
			return "", err
		}
		return fmt.Sprintf("buffer=%d\n", s.BufferLen()), nil

	case "clear":
		s.ClearMeasurements()
		return "buffer=0\n", nil

	case "fetch":
		return "", s.BeginFetch(ctx)

	case "fields":
		a := s.Ancillary()
		if a.Updated.IsZero() {
			return "no fetch yet\n", nil
		}
		return fmt.Sprintf("wind_speed=%d wind_direction=%d pm25=%.2f pm10=%.2f updated=%s\n",
			a.WindSpeed, a.WindDirection, a.PM25, a.PM10, a.Updated.Format("15:04:05")), nil

	case "status":
		stat := s.NetworkStat()
		return fmt.Sprintf("network=%s pending=%s buffer=%d last_cycle=%s connects=%d failures=%d reconnects=%d\n",
			s.Status(), s.Pending(), s.BufferLen(), s.LastCycle().Format("15:04:05"),
			stat.Connects, stat.Failures, stat.Reconnects), nil

	case "tick":
		return "", s.Tick(ctx)

	case "help", "?":
		return usage, nil

	default:
		return "", errors.NotFoundf("command '%s' (try help)", words[0])
	}
}
