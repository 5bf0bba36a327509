package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{Active, Paused, true},
		{Active, Cancelled, true},
		{Active, Completed, true},
		{Paused, Active, true},
		{Paused, Cancelled, true},
		{Paused, Completed, false},
		{Completed, Active, false},
		{Cancelled, Active, false},
		{Active, Active, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsValidTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, Completed.Terminal())
	assert.True(t, Cancelled.Terminal())
	assert.False(t, Active.Terminal())
	assert.False(t, Paused.Terminal())
}
