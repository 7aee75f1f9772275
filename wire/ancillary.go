package wire

import (
	"math"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/wetter/helpers"
)

// FieldMap assigns response line field indexes to published values.
// Negative index disables field.
type FieldMap struct {
	WindSpeed     int  `hcl:"wind_speed"`
	WindDirection int  `hcl:"wind_direction"`
	PM25          int  `hcl:"pm25"`
	PM10          int  `hcl:"pm10"`
	AllowShared   bool `hcl:"allow_shared"`
}

var DefaultFieldMap = FieldMap{WindSpeed: 0, WindDirection: 1, PM25: 2, PM10: 3}

// Validate rejects two values mapped to same field, which is almost certainly a mistake.
func (fm FieldMap) Validate() error {
	if fm.AllowShared {
		return nil
	}
	seen := make(map[int]string, 4)
	errs := make([]error, 0)
	for _, f := range fm.fields() {
		if f.index < 0 {
			continue
		}
		if other, ok := seen[f.index]; ok {
			errs = append(errs, errors.NotValidf("field index=%d used by %s and %s", f.index, other, f.name))
			continue
		}
		seen[f.index] = f.name
	}
	return helpers.FoldErrors(errs)
}

type field struct {
	name  string
	index int
}

func (fm FieldMap) fields() [4]field {
	return [4]field{
		{"wind_speed", fm.WindSpeed},
		{"wind_direction", fm.WindDirection},
		{"pm25", fm.PM25},
		{"pm10", fm.PM10},
	}
}

// Values decoded from secondary device response.
type Values struct {
	WindDirection int
	WindSpeed     int
	PM25          float64
	PM10          float64
}

// ParseAncillary decodes single response line according to fm.
// Integer fields accept fraction and truncate toward zero.
func ParseAncillary(line string, fm FieldMap) (Values, error) {
	line = strings.TrimSpace(line)
	var v Values
	errs := make([]error, 0)
	num := func(name string, index int) float64 {
		if index < 0 {
			return 0
		}
		raw := strings.TrimSpace(DecodeField(line, FieldSeparator, index))
		if raw == "" {
			errs = append(errs, errors.NotValidf("field %s index=%d missing in '%s'", name, index, line))
			return 0
		}
		x, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
			errs = append(errs, errors.NotValidf("field %s index=%d value='%s'", name, index, raw))
			return 0
		}
		return x
	}
	v.WindSpeed = int(math.Trunc(num("wind_speed", fm.WindSpeed)))
	v.WindDirection = int(math.Trunc(num("wind_direction", fm.WindDirection)))
	v.PM25 = num("pm25", fm.PM25)
	v.PM10 = num("pm10", fm.PM10)
	if err := helpers.FoldErrors(errs); err != nil {
		return Values{}, err
	}
	return v, nil
}
