package wire

import (
	"math"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/wetter/measure"
)

func TestEncodeRecord(t *testing.T) {
	t.Parallel()

	cases := []struct {
		id     string
		value  float32
		expect string
	}{
		{"temp", 21.345, "temp,    21.35\n"},
		{"temp", -3.5, "temp,    -3.50\n"},
		{"p", 1013.25, "p,  1013.25\n"},
		{"z", 0, "z,     0.00\n"},
		{"neg", -0.005, "neg,    -0.01\n"},
		{"big", 12345678, "big,12345678.00\n"},
		{"tiny", 1e-7, "tiny,     0.00\n"},
		{"exp", 1e6, "exp,1000000.00\n"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.expect, func(t *testing.T) {
			assert.Equal(t, c.expect, EncodeRecord(measure.Measurement{SensorID: c.id, Value: c.value}))
		})
	}
}

func TestRecordSize(t *testing.T) {
	t.Parallel()

	id := strings.Repeat("a", SensorIDSize)
	for _, v := range []float32{0, -99.99, 99999.99, 21.345} {
		assert.Len(t, EncodeRecord(measure.Measurement{SensorID: id, Value: v}), RecordSize)
	}
	assert.Equal(t, 35, RecordSize)
	assert.Equal(t, 105, ContentLength(3))
}

func TestBodyRoundTrip(t *testing.T) {
	t.Parallel()

	input := []measure.Measurement{
		{"5a1b2c3d4e5f60718293a4b5", 21.345},
		{"5a1b2c3d4e5f60718293a4b6", 1013.2},
		{"5a1b2c3d4e5f60718293a4b7", -7.777},
	}
	body := string(EncodeBody(input))
	lines := strings.SplitAfter(body, "\n")
	require.Len(t, lines, len(input)+1)
	assert.Equal(t, "", lines[len(input)])
	for i, line := range lines[:len(input)] {
		m, err := DecodeRecord(line)
		require.NoError(t, err)
		assert.Equal(t, input[i].SensorID, m.SensorID)
		assert.InDelta(t, input[i].Value, m.Value, 0.01)
	}
	assert.Len(t, body, ContentLength(len(input)))
}

func TestDecodeRecordInvalid(t *testing.T) {
	t.Parallel()

	_, err := DecodeRecord("novalue\n")
	assert.True(t, errors.IsNotValid(err))
	_, err = DecodeRecord("id,abc\n")
	assert.Error(t, err)
}

func TestDecodeField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text   string
		index  int
		expect string
	}{
		{"12,34,56", 0, "12"},
		{"12,34,56", 1, "34"},
		{"12,34,56", 2, "56"},
		{"12,34", 5, ""},
		{"12,", 1, ""},
		{"", 0, ""},
		{",a", 0, ""},
		{"a", -1, ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.expect, DecodeField(c.text, ',', c.index), "text=%q index=%d", c.text, c.index)
	}
}

func TestUploadHead(t *testing.T) {
	t.Parallel()

	expect := "POST /boxes/box1/data HTTP/1.1\r\n" +
		"Host: ingress.example.org\r\n" +
		"Content-Type: text/csv\r\n" +
		"Connection: close\r\n" +
		"Content-Length: 70\r\n" +
		"\r\n"
	assert.Equal(t, expect, UploadHead("box1", "ingress.example.org", 2))
}

func TestValidateRecord(t *testing.T) {
	t.Parallel()

	id := "5a1b2c3d4e5f60718293a4b5"
	cases := []struct {
		name      string
		id        string
		value     float32
		expectErr string
	}{
		{"ok", id, 21.345, ""},
		{"max", id, 99999.99, ""},
		{"min", id, -99999.99, ""},
		{"short-id", "temp", 1, "length=4 expected=24"},
		{"long-id", id + "0", 1, "length=25"},
		{"separator", "5a1b2c3d4e5f60718293a4b,", 1, "separator"},
		{"wide", id, 1234567.5, "width=10"},
		{"wide-negative", id, -100000, "width=10"},
		{"nan", id, float32(math.NaN()), "value=NaN"},
		{"inf", id, float32(math.Inf(1)), "value=+Inf"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			err := ValidateRecord(c.id, c.value)
			if c.expectErr == "" {
				require.NoError(t, err)
				assert.Len(t, EncodeRecord(measure.Measurement{SensorID: c.id, Value: c.value}), RecordSize)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsNotValid(err))
			assert.Contains(t, err.Error(), c.expectErr)
		})
	}
}
