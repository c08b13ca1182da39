package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled_BooleanValues(t *testing.T) {
	t.Parallel()

	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, "u1"), name)
	}
	for _, name := range []string{"b", "d", "f", "unknown"} {
		assert.False(t, m.Enabled(name, "u1"), name)
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	t.Parallel()

	m := NewManager("always=100%,never=0%,canary=25%")

	assert.True(t, m.Enabled("always", "u1"))
	assert.False(t, m.Enabled("never", "u1"))

	first := m.Enabled("canary", "u42")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", "u42"), "rollout must be deterministic per user")
	}
	assert.False(t, m.Enabled("canary", ""), "percentage rollout requires a user")
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	m := NewManager("")
	assert.False(t, m.Enabled(CacheBuster, ""))
	assert.True(t, m.Enabled(ViewRegistration, ""))

	overridden := NewManager("CACHE_BUSTER = on, view_registration=off")
	assert.True(t, overridden.Enabled(CacheBuster, ""))
	assert.False(t, overridden.Enabled(ViewRegistration, ""))

	var nilManager *Manager
	assert.True(t, nilManager.Enabled(ViewRegistration, ""))
}

func TestParseAndSnapshot(t *testing.T) {
	t.Parallel()

	m := NewManager(" bad ,x=on, y = 20% ,z=off ")

	raw := m.Raw()
	assert.Len(t, raw, 5)
	assert.Equal(t, "on", raw["x"])
	assert.Equal(t, "20%", raw["y"])
	assert.Equal(t, "off", raw["z"])

	assert.Len(t, m.Snapshot("u123"), 5)
}
