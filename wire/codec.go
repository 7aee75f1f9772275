// Package wire implements text formats exchanged with the telemetry server
// and with the secondary (wind/particulate) device.
//
// Upload body is CSV, one record per line: "<sensor id>,<value %9.2f>\n".
// Server side Content-Length is computed from record count, so record size
// must stay fixed: change SensorIDSize/ValueWidth/ValuePrecision together.
package wire

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/wetter/measure"
)

const (
	SensorIDSize   = 24 // openSenseMap sensor id, hex
	ValueWidth     = 9
	ValuePrecision = 2
	RecordSize     = SensorIDSize + 1 + ValueWidth + 1

	FieldSeparator = ','
)

const FetchRequest = "GET / HTTP/1.1\r\nConnection: close\r\n\r\n"

// ContentLength of upload body with given number of records.
func ContentLength(records int) int { return records * RecordSize }

func UploadPath(deviceID string) string { return "/boxes/" + deviceID + "/data" }

func UploadHead(deviceID, host string, records int) string {
	var b strings.Builder
	b.Grow(160)
	b.WriteString("POST ")
	b.WriteString(UploadPath(deviceID))
	b.WriteString(" HTTP/1.1\r\nHost: ")
	b.WriteString(host)
	b.WriteString("\r\nContent-Type: text/csv\r\nConnection: close\r\nContent-Length: ")
	b.WriteString(strconv.Itoa(ContentLength(records)))
	b.WriteString("\r\n\r\n")
	return b.String()
}

// AppendValue appends fixed point value right aligned to ValueWidth.
// Rounds shortest decimal form of v half away from zero, so 21.345 -> 21.35
// regardless of binary float representation. Wider values are not truncated.
func AppendValue(dst []byte, v float32) []byte {
	var num []byte
	if r, ok := new(big.Rat).SetString(strconv.FormatFloat(float64(v), 'g', -1, 32)); ok {
		num = []byte(r.FloatString(ValuePrecision))
	} else { // NaN, Inf
		num = strconv.AppendFloat(nil, float64(v), 'f', ValuePrecision, 32)
	}
	for i := len(num); i < ValueWidth; i++ {
		dst = append(dst, ' ')
	}
	return append(dst, num...)
}

// ValidateRecord rejects readings which would not encode to exactly RecordSize bytes,
// upload head declares ContentLength computed from record count.
func ValidateRecord(sensorID string, value float32) error {
	if len(sensorID) != SensorIDSize {
		return errors.NotValidf("sensor id '%s' length=%d expected=%d", sensorID, len(sensorID), SensorIDSize)
	}
	if strings.ContainsAny(sensorID, ",\r\n") {
		return errors.NotValidf("sensor id '%s' separator", sensorID)
	}
	if math.IsNaN(float64(value)) || math.IsInf(float64(value), 0) {
		return errors.NotValidf("sensor=%s value=%v", sensorID, value)
	}
	if n := len(AppendValue(nil, value)); n != ValueWidth {
		return errors.NotValidf("sensor=%s value=%v width=%d max=%d", sensorID, value, n, ValueWidth)
	}
	return nil
}

func AppendRecord(dst []byte, m measure.Measurement) []byte {
	dst = append(dst, m.SensorID...)
	dst = append(dst, FieldSeparator)
	dst = AppendValue(dst, m.Value)
	return append(dst, '\n')
}

func EncodeRecord(m measure.Measurement) string {
	return string(AppendRecord(make([]byte, 0, RecordSize), m))
}

func EncodeBody(ms []measure.Measurement) []byte {
	b := make([]byte, 0, len(ms)*RecordSize)
	for _, m := range ms {
		b = AppendRecord(b, m)
	}
	return b
}

// DecodeField returns zero based index-th field of text split on sep.
// End of text terminates last field. Missing field is empty string.
func DecodeField(text string, sep byte, index int) string {
	if index < 0 {
		return ""
	}
	for i := 0; i < index; i++ {
		pos := strings.IndexByte(text, sep)
		if pos < 0 {
			return ""
		}
		text = text[pos+1:]
	}
	if pos := strings.IndexByte(text, sep); pos >= 0 {
		return text[:pos]
	}
	return text
}

// DecodeRecord parses one upload body line, trailing newline optional.
func DecodeRecord(line string) (measure.Measurement, error) {
	line = strings.TrimRight(line, "\r\n")
	id := DecodeField(line, FieldSeparator, 0)
	raw := DecodeField(line, FieldSeparator, 1)
	if id == "" || raw == "" {
		return measure.Measurement{}, errors.NotValidf("record '%s'", line)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 32)
	if err != nil {
		return measure.Measurement{}, errors.Annotatef(err, "record '%s' value", line)
	}
	return measure.Measurement{SensorID: id, Value: float32(v)}, nil
}
