package state

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/wetter/helpers"
	"github.com/temoto/wetter/log2"
	tele_config "github.com/temoto/wetter/tele/config"
	uplink_config "github.com/temoto/wetter/uplink/config"
)

const DefaultRestartDelay = 5 * time.Second

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	LogDebug bool `hcl:"log_debug"`

	Uplink uplink_config.Config `hcl:"uplink"`

	Supervisor struct {
		RestartDelaySec int `hcl:"restart_delay_sec"`
		RestartMaxSec   int `hcl:"restart_max_sec"`
	} `hcl:"supervisor"`

	Tele tele_config.Config `hcl:"tele"`

	Metrics struct {
		Listen string `hcl:"listen"`
	} `hcl:"metrics"`

	Sensor struct {
		SpoolPath string `hcl:"spool_path"`
		MaxAgeSec int    `hcl:"max_age_sec"`
	} `hcl:"sensor"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) RestartDelay() time.Duration {
	return helpers.IntSecondDefault(c.Supervisor.RestartDelaySec, DefaultRestartDelay)
}

// RestartMax is upper limit of growing restart delay, equal to RestartDelay by default (fixed delay).
func (c *Config) RestartMax() time.Duration {
	return helpers.IntSecondDefault(c.Supervisor.RestartMaxSec, c.RestartDelay())
}

func (c *Config) Validate() error {
	errs := make([]error, 0, 2)
	if err := c.Uplink.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Tele.Enabled && c.Tele.MqttBroker == "" {
		errs = append(errs, errors.NotValidf("tele.mqtt_broker empty with tele.enable"))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads sources in order, later values override earlier.
// Sources may include other files: include "local.hcl" { optional = true }
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.NotValidf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
