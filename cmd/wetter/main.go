package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/wetter/cmd/wetter/console"
	"github.com/temoto/wetter/cmd/wetter/run"
	"github.com/temoto/wetter/cmd/wetter/subcmd"
	"github.com/temoto/wetter/log2"
	"github.com/temoto/wetter/state"
	"github.com/temoto/wetter/tele"
)

var log = log2.NewStderr(log2.LInfo)

var modules = []subcmd.Mod{
	run.Mod,
	console.Mod,
}

func main() {
	flagset := flag.NewFlagSet("wetter", flag.ContinueOnError)
	flagConfig := flagset.String("config", "wetter.hcl", "")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "Usage: wetter [-config=wetter.hcl] [command]\n\nCommands:\n")
		for _, m := range modules {
			fmt.Fprintf(flagset.Output(), "  %-10s %s\n", m.Name, m.Usage)
		}
		flagset.PrintDefaults()
	}
	if err := flagset.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}

	cmdName := flagset.Arg(0)
	if cmdName == "" {
		cmdName = run.Mod.Name
	}
	mod, err := subcmd.Parse(cmdName, modules)
	if err != nil {
		flagset.Usage()
		log.Fatal(err)
	}

	log.SetFlags(log2.LInteractiveFlags)
	if subcmd.SdNotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	}
	log.Infof("wetter %s", mod.Name)

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	ctx, _ := state.NewContext(log, tele.New())
	if err := mod.Main(ctx, config); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
