package jobapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindValid(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.Valid(), "kind %s", k)
	}
	assert.False(t, Kind("unknown_kind").Valid())
	assert.False(t, Kind("").Valid())
}

func TestStatusCanAdvanceTo(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPending, true},
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusCompleted, true},
		{StatusRunning, StatusPending, false},
		{StatusRunning, StatusFailed, true},
		{StatusCompleted, StatusCompleted, true},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusRunning, false},
		{StatusRunning, Status("bogus"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.from.CanAdvanceTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}
