package uplink

import (
	"context"

	"github.com/temoto/wetter/log2"
	"github.com/temoto/wetter/measure"
	"github.com/temoto/wetter/wire"
)

type Recorder interface {
	AddMeasurement(sensorID string, value float32) error
}

// DataSource is pre-upload hook: re-adds readings of every sensor channel
// right before request is sent.
type DataSource interface {
	PrepareUpload(ctx context.Context, r Recorder) error
}

type HookFunc func(ctx context.Context, r Recorder) error

func (f HookFunc) PrepareUpload(ctx context.Context, r Recorder) error { return f(ctx, r) }

// bufferRecorder is passed to hook while scheduler lock is held.
type bufferRecorder struct {
	log *log2.Log
	buf *measure.Buffer
}

func (r bufferRecorder) AddMeasurement(sensorID string, value float32) error {
	err := wire.ValidateRecord(sensorID, value)
	if err == nil {
		err = r.buf.Add(sensorID, value)
	}
	if err != nil {
		r.log.Errorf("uplink add measurement sensor=%s err=%v", sensorID, err)
	}
	return err
}
