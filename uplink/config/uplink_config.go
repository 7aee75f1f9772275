// Separate package is workaround to import cycles.
package uplink_config

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/wetter/helpers"
	"github.com/temoto/wetter/wire"
)

const (
	DefaultCapacity       = 8
	DefaultPort           = 443
	DefaultUploadInterval = 60 * time.Second
	DefaultAckTimeout     = 30 * time.Second
	DefaultTick           = 50 * time.Millisecond
	DefaultPoll           = 2 * time.Millisecond
	DefaultNetworkTimeout = 30 * time.Second
	DefaultSettle         = 200 * time.Millisecond
	DefaultFetchInterval  = 10 * time.Second
	DefaultFetchTimeout   = 30 * time.Second

	LinkProbe = "probe"
	LinkNmcli = "nmcli"
)

type Config struct { //nolint:maligned
	DeviceID          string `hcl:"device_id"`
	Server            string `hcl:"server"`
	Port              int    `hcl:"port"`
	Insecure          bool   `hcl:"insecure"` // plain TCP upload, for local test servers only
	Capacity          int    `hcl:"capacity"`
	UploadIntervalSec int    `hcl:"upload_interval_sec"`
	AckTimeoutSec     int    `hcl:"ack_timeout_sec"`
	TickMs            int    `hcl:"tick_ms"`
	PollMs            int    `hcl:"poll_ms"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	LogDebug          bool   `hcl:"log_debug"`

	Network struct {
		SSID               string `hcl:"ssid"`
		Key                string `hcl:"key"` // secret
		Link               string `hcl:"link"`
		ProbeAddress       string `hcl:"probe_address"`
		SettleMs           int    `hcl:"settle_ms"`
		SkipConnectOnStart bool   `hcl:"skip_connect_on_start"`
	} `hcl:"network"`

	Fetch struct {
		Enable      bool           `hcl:"enable"`
		Address     string         `hcl:"address"`
		IntervalSec int            `hcl:"interval_sec"`
		TimeoutSec  int            `hcl:"timeout_sec"`
		Fields      *wire.FieldMap `hcl:"fields"`
	} `hcl:"fetch"`
}

func (c *Config) BufferCapacity() int {
	if c.Capacity == 0 {
		return DefaultCapacity
	}
	return c.Capacity
}

func (c *Config) ServerPort() int {
	if c.Port == 0 {
		return DefaultPort
	}
	return c.Port
}

func (c *Config) UploadInterval() time.Duration {
	return helpers.IntSecondDefault(c.UploadIntervalSec, DefaultUploadInterval)
}
func (c *Config) AckTimeout() time.Duration {
	return helpers.IntSecondDefault(c.AckTimeoutSec, DefaultAckTimeout)
}
func (c *Config) Tick() time.Duration { return helpers.IntMillisecondDefault(c.TickMs, DefaultTick) }
func (c *Config) Poll() time.Duration { return helpers.IntMillisecondDefault(c.PollMs, DefaultPoll) }
func (c *Config) NetworkTimeout() time.Duration {
	return helpers.IntSecondDefault(c.NetworkTimeoutSec, DefaultNetworkTimeout)
}
func (c *Config) Settle() time.Duration {
	return helpers.IntMillisecondDefault(c.Network.SettleMs, DefaultSettle)
}
func (c *Config) FetchInterval() time.Duration {
	return helpers.IntSecondDefault(c.Fetch.IntervalSec, DefaultFetchInterval)
}
func (c *Config) FetchTimeout() time.Duration {
	return helpers.IntSecondDefault(c.Fetch.TimeoutSec, DefaultFetchTimeout)
}

func (c *Config) FieldMap() wire.FieldMap {
	if c.Fetch.Fields == nil {
		return wire.DefaultFieldMap
	}
	return *c.Fetch.Fields
}

func (c *Config) LinkKind() string {
	if c.Network.Link == "" {
		return LinkProbe
	}
	return c.Network.Link
}

func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	if c.DeviceID == "" {
		errs = append(errs, errors.NotValidf("uplink.device_id empty"))
	}
	if c.Server == "" {
		errs = append(errs, errors.NotValidf("uplink.server empty"))
	}
	if c.Capacity < 0 {
		errs = append(errs, errors.NotValidf("uplink.capacity=%d", c.Capacity))
	}
	switch c.LinkKind() {
	case LinkProbe:
		if c.Network.ProbeAddress == "" {
			errs = append(errs, errors.NotValidf("uplink.network.probe_address empty with link=probe"))
		}
	case LinkNmcli:
		if c.Network.SSID == "" {
			errs = append(errs, errors.NotValidf("uplink.network.ssid empty with link=nmcli"))
		}
	default:
		errs = append(errs, errors.NotValidf("uplink.network.link=%s", c.Network.Link))
	}
	if c.Fetch.Enable {
		if c.Fetch.Address == "" {
			errs = append(errs, errors.NotValidf("uplink.fetch.address empty"))
		}
		if err := c.FieldMap().Validate(); err != nil {
			errs = append(errs, errors.Annotate(err, "uplink.fetch.fields"))
		}
	}
	return helpers.FoldErrors(errs)
}
