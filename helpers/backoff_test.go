package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	b := &Backoff{Min: 5 * time.Second, Max: 20 * time.Second, K: 2, Now: func() time.Time { return now }}
	assert.Equal(t, time.Duration(0), b.DelayBefore(), "first delay is always 0")

	b.Failure()
	assert.Equal(t, 5*time.Second, b.DelayBefore())
	now = now.Add(2 * time.Second)
	assert.Equal(t, 3*time.Second, b.DelayBefore(), "time passed since failure counts")

	b.Failure()
	assert.Equal(t, 10*time.Second, b.Next())
	b.Failure()
	b.Failure()
	assert.Equal(t, 20*time.Second, b.Next(), "limited by Max")

	b.Reset()
	assert.Equal(t, time.Duration(0), b.DelayBefore())
}

func TestBackoffFixed(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	b := &Backoff{Min: 5 * time.Second, Max: 5 * time.Second, K: 2, Now: func() time.Time { return now }}
	for i := 0; i < 4; i++ {
		b.Failure()
		assert.Equal(t, 5*time.Second, b.DelayBefore())
	}
}
