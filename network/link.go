package network

import (
	"context"
	"fmt"
)

var ErrConnectFailed = fmt.Errorf("network connect failed")

type Credentials struct {
	SSID string
	Key  string // secret
}

// Link is network association of the device, e.g. wifi.
// Associate may block at most for link own connect timeout.
// Status reflects latest known state, including link loss detected by link itself.
type Link interface {
	Associate(context.Context, Credentials) error
	Dissociate() error
	Status() Status
}

// LossReporter is optional Link extension for links which can not detect loss themselves.
type LossReporter interface {
	MarkLost()
}
