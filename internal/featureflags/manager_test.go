package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManagerParsesAndEvaluates(t *testing.T) {
	m := NewManager(" disable_thread_creation=ON , joins=off, bad-pair, =x, empty= ")

	assert.True(t, m.Enabled("disable_thread_creation", 1))
	assert.False(t, m.Enabled("joins", 1))
	// Absent and malformed flags are off.
	assert.False(t, m.Enabled("bad-pair", 1))
	assert.False(t, m.Enabled("never_configured", 1))

	assert.Equal(t, map[string]string{
		"disable_thread_creation": "on",
		"joins":                   "off",
	}, m.Raw())
}

func TestManagerPercentageRollout(t *testing.T) {
	m := NewManager("gradual=30%")

	enabled := 0
	for userID := uint(1); userID <= 1000; userID++ {
		if m.Enabled("gradual", userID) {
			enabled++
		}
		// Deterministic per user.
		assert.Equal(t, m.Enabled("gradual", userID), m.Enabled("gradual", userID))
	}
	assert.InDelta(t, 300, enabled, 60)

	// Anonymous callers never fall inside a partial rollout.
	assert.False(t, m.Enabled("gradual", 0))

	assert.True(t, NewManager("all=100%").Enabled("all", 0))
	assert.False(t, NewManager("none=0%").Enabled("none", 7))
	assert.False(t, NewManager("junk=x%").Enabled("junk", 7))
}

func TestManagerNilIsOff(t *testing.T) {
	var m *Manager
	assert.False(t, m.Enabled("anything", 1))

	snap := NewManager("a=on,b=off").Snapshot(3)
	assert.Equal(t, map[string]bool{"a": true, "b": false}, snap)
}
