// Package measure keeps readings pending upload in a fixed capacity buffer.
package measure

import (
	"fmt"

	"github.com/juju/errors"
)

var ErrCapacityExceeded = fmt.Errorf("measurement buffer capacity exceeded")

// Measurement is one reading of one sensor channel.
// SensorID is assigned by the telemetry server.
type Measurement struct {
	SensorID string
	Value    float32
}

// Buffer is ordered collection of pending readings, accumulated between upload cycles.
// Storage is allocated once in New and never grows.
// Not safe for concurrent use, owner must serialize access.
type Buffer struct {
	items []Measurement
	count int
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("code error measure.New capacity=%d", capacity))
	}
	return &Buffer{items: make([]Measurement, capacity)}
}

func (b *Buffer) Len() int { return b.count }
func (b *Buffer) Cap() int { return len(b.items) }

// Add appends reading. Full buffer is left unchanged and ErrCapacityExceeded returned.
func (b *Buffer) Add(sensorID string, value float32) error {
	if b.count == len(b.items) {
		return errors.Annotatef(ErrCapacityExceeded, "sensor=%s capacity=%d", sensorID, len(b.items))
	}
	b.items[b.count] = Measurement{SensorID: sensorID, Value: value}
	b.count++
	return nil
}

// Peek returns buffered readings in insertion order without removing them.
// Result is only valid until next Add/Drain/Clear.
func (b *Buffer) Peek() []Measurement { return b.items[:b.count] }

// Drain returns copy of buffered readings in insertion order and empties buffer.
func (b *Buffer) Drain() []Measurement {
	out := make([]Measurement, b.count)
	copy(out, b.items[:b.count])
	b.count = 0
	return out
}

// Clear empties buffer. Stored values are stale until overwritten.
func (b *Buffer) Clear() { b.count = 0 }
