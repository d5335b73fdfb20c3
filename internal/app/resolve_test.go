package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickjm/domq/internal/daemon"
)

func TestResolveTabIDFromStatus(t *testing.T) {
	_, err := resolveTabIDFromStatus(daemon.StatusResult{})
	assert.Error(t, err, "no tabs")

	id, err := resolveTabIDFromStatus(daemon.StatusResult{Tabs: []daemon.TabInfo{{ID: 3}}})
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	id, err = resolveTabIDFromStatus(daemon.StatusResult{Tabs: []daemon.TabInfo{{ID: 1}, {ID: 2, Active: true}}})
	require.NoError(t, err)
	assert.Equal(t, 2, id)

	_, err = resolveTabIDFromStatus(daemon.StatusResult{Tabs: []daemon.TabInfo{{ID: 1}, {ID: 2}}})
	assert.Error(t, err, "multiple tabs without an active one")
}

func TestActionTimeoutMs(t *testing.T) {
	ms, err := actionTimeoutMs(GlobalFlags{})
	require.NoError(t, err)
	assert.Equal(t, 20000, ms)

	ms, err = actionTimeoutMs(GlobalFlags{Timeout: "5s"})
	require.NoError(t, err)
	assert.Equal(t, 5000, ms)

	ms, err = actionTimeoutMs(GlobalFlags{Timeout: "0s"})
	require.NoError(t, err)
	assert.Zero(t, ms)

	_, err = actionTimeoutMs(GlobalFlags{Timeout: "bad"})
	assert.Error(t, err)
}

func TestOverridesFromFlags(t *testing.T) {
	o, err := overridesFromFlags(GlobalFlags{Headed: true, TTL: "1h", Viewport: "800x600"})
	require.NoError(t, err)
	require.NotNil(t, o.Headless)
	assert.False(t, *o.Headless)
	require.NotNil(t, o.Viewport)
	assert.Equal(t, 800, o.Viewport.Width)

	_, err = overridesFromFlags(GlobalFlags{Headless: true, Headed: true})
	assert.Error(t, err)
	_, err = overridesFromFlags(GlobalFlags{Viewport: "wide"})
	assert.Error(t, err)
}
