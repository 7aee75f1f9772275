package tele

import (
	"context"

	"github.com/temoto/wetter/log2"
	tele_config "github.com/temoto/wetter/tele/config"
)

type Will struct {
	Topic   string
	Payload []byte
}

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - Publish blocks until broker acknowledged message or network timeout, false on failure
// - application may start without network available
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, will Will) error
	Publish(topic string, retained bool, payload []byte) bool
	Close()
}
