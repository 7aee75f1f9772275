package subcmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	mods := []Mod{{Name: "run", Usage: "upload loop"}, {Name: "console", Usage: "interactive"}}
	cases := []struct {
		command   string
		expect    string
		expectErr string
	}{
		{"run", "run", ""},
		{"console", "console", ""},
		{"", "", "empty command"},
		{"vend", "", "unknown command='vend'"},
	}
	for _, c := range cases {
		m, err := Parse(c.command, mods)
		if c.expectErr != "" {
			require.Error(t, err, c.command)
			assert.Contains(t, err.Error(), c.expectErr)
			continue
		}
		require.NoError(t, err, c.command)
		assert.Equal(t, c.expect, m.Name)
	}
	assert.Panics(t, func() { _, _ = Parse("x", []Mod{{}}) })
}
