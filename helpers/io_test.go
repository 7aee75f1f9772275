package helpers

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteAll(t *testing.T) {
	t.Parallel()

	errBroken := fmt.Errorf("broken pipe")
	content := []byte("5a1b2c3d4e5f60718293a4b5,    21.35\n")
	cases := []struct {
		name      string
		limit     int
		err       error
		expectErr error
		expectLen int
	}{
		{"whole", len(content), nil, nil, len(content)},
		{"partial", 7, nil, nil, len(content)},
		{"bytewise", 1, nil, nil, len(content)},
		{"stuck", 0, nil, io.ErrShortWrite, 0},
		{"error", 7, errBroken, errBroken, 0},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			buf := bytes.NewBuffer(nil)
			err := WriteAll(&throttleWriter{w: buf, n: c.limit, err: c.err}, content)
			assert.Equal(t, c.expectErr, err)
			assert.Equal(t, c.expectLen, buf.Len())
		})
	}
}

// throttleWriter accepts at most n bytes per Write.
type throttleWriter struct {
	w   io.Writer
	n   int
	err error
}

func (tw *throttleWriter) Write(p []byte) (int, error) {
	if tw.err != nil {
		return 0, tw.err
	}
	limit := len(p)
	if limit > tw.n {
		limit = tw.n
	}
	return tw.w.Write(p[:limit])
}
