package tele

import (
	"context"

	"github.com/temoto/wetter/log2"
	"github.com/temoto/wetter/network"
	tele_config "github.com/temoto/wetter/tele/config"
)

type Noop struct{}

var _ Teler = Noop{} // compile-time interface test

func (Noop) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }

func (Noop) Close() {}

func (Noop) Error(error) {}

func (Noop) State(network.Status) {}

func (Noop) Uploaded(int) {}
