package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAncillary(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		line      string
		fm        FieldMap
		expect    Values
		expectErr string
	}
	cases := []Case{
		{"default", "10,20,1.1,2.2", DefaultFieldMap, Values{WindSpeed: 10, WindDirection: 20, PM25: 1.1, PM10: 2.2}, ""},
		{"trailing-newline", "10,20,1.1,2.2\r\n", DefaultFieldMap, Values{WindSpeed: 10, WindDirection: 20, PM25: 1.1, PM10: 2.2}, ""},
		{"truncate-int", "10.9,359.5,0,0", DefaultFieldMap, Values{WindSpeed: 10, WindDirection: 359}, ""},
		{"disabled", "7", FieldMap{WindSpeed: 0, WindDirection: -1, PM25: -1, PM10: -1}, Values{WindSpeed: 7}, ""},
		{"swapped", "1.5,2.5,270,4", FieldMap{PM25: 0, PM10: 1, WindDirection: 2, WindSpeed: 3}, Values{WindSpeed: 4, WindDirection: 270, PM25: 1.5, PM10: 2.5}, ""},
		{"missing", "10,20", DefaultFieldMap, Values{}, "field pm25 index=2 missing"},
		{"garbage", "10,x,1,2", DefaultFieldMap, Values{}, "field wind_direction index=1 value='x'"},
		{"nan", "NaN,20,1,2", DefaultFieldMap, Values{}, "field wind_speed index=0 value='NaN'"},
		{"inf", "10,+Inf,1,2", DefaultFieldMap, Values{}, "field wind_direction index=1 value='+Inf'"},
		{"inf-pm", "10,20,1,-inf", DefaultFieldMap, Values{}, "field pm10 index=3 value='-inf'"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			v, err := ParseAncillary(c.line, c.fm)
			if c.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expect, v)
		})
	}
}

func TestFieldMapValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultFieldMap.Validate())
	shared := FieldMap{WindSpeed: 0, WindDirection: 1, PM25: 0, PM10: 0}
	err := shared.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field index=0 used by wind_speed and pm25")
	shared.AllowShared = true
	assert.NoError(t, shared.Validate())
}
