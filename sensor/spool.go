// Package sensor reads latest readings left by acquisition process.
package sensor

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/wetter/helpers"
	"github.com/temoto/wetter/log2"
	"github.com/temoto/wetter/uplink"
	"github.com/temoto/wetter/wire"
)

// Spool is file with one reading per line in upload record format:
// "<sensor id>,<value>". Acquisition process rewrites it on every sample.
type Spool struct {
	Path   string
	MaxAge time.Duration // older file is ignored, 0 disables check
	Log    *log2.Log
	Now    func() time.Time
}

var _ uplink.DataSource = &Spool{} // compile-time interface test

// PrepareUpload adds every valid line to r.
// Missing or stale file means no readings, not error.
// Bad lines are skipped and reported together in returned error.
func (self *Spool) PrepareUpload(ctx context.Context, r uplink.Recorder) error {
	fi, err := os.Stat(self.Path)
	if os.IsNotExist(err) {
		self.Log.Debugf("sensor spool path=%s not found", self.Path)
		return nil
	}
	if err != nil {
		return errors.Annotate(err, "sensor spool")
	}
	if self.MaxAge > 0 {
		if age := self.now().Sub(fi.ModTime()); age > self.MaxAge {
			self.Log.Infof("sensor spool path=%s stale age=%s", self.Path, age.Truncate(time.Second))
			return nil
		}
	}
	b, err := os.ReadFile(self.Path)
	if err != nil {
		return errors.Annotate(err, "sensor spool")
	}

	errs := make([]error, 0)
	added := 0
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for lineno := 1; scanner.Scan(); lineno++ {
		line := string(bytes.TrimSpace(scanner.Bytes()))
		if line == "" || line[0] == '#' {
			continue
		}
		m, err := wire.DecodeRecord(line)
		if err == nil {
			err = wire.ValidateRecord(m.SensorID, m.Value)
		}
		if err != nil {
			errs = append(errs, errors.Annotatef(err, "line=%d", lineno))
			continue
		}
		if err = r.AddMeasurement(m.SensorID, m.Value); err != nil {
			errs = append(errs, err)
			break
		}
		added++
	}
	self.Log.Debugf("sensor spool added=%d", added)
	return errors.Annotate(helpers.FoldErrors(errs), "sensor spool")
}

func (self *Spool) now() time.Time {
	if self.Now != nil {
		return self.Now()
	}
	return time.Now()
}
