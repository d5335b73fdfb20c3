package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreUpsertLoad(t *testing.T) {
	store := Store{Root: t.TempDir(), DefaultTTL: time.Hour}
	p, created, err := store.Upsert("Alice Smith", Overrides{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice-smith", p.Name)
	assert.Equal(t, Viewport{Width: 1280, Height: 800}, p.Viewport)
	assert.Equal(t, int64(3600), p.TTL)

	loaded, err := store.Load("alice-smith")
	require.NoError(t, err)
	assert.Equal(t, p.Name, loaded.Name)

	_, err = store.Load("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "profile.json", filepath.Base(store.ProfilePath("alice-smith")))

	vp := Viewport{Width: 390, Height: 844}
	p, created, err = store.Upsert("alice-smith", Overrides{Viewport: &vp})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, vp, p.Viewport)

	_, _, err = store.Upsert("  ", Overrides{})
	assert.ErrorIs(t, err, ErrNameRequired)
}

func TestLoadFillsMissingViewport(t *testing.T) {
	store := Store{Root: t.TempDir()}
	require.NoError(t, os.MkdirAll(store.ProfileDir("old"), 0o755))
	require.NoError(t, os.WriteFile(store.ProfilePath("old"), []byte(`{"name":"old","browser":"firefox"}`), 0o644))

	p, err := store.Load("old")
	require.NoError(t, err)
	assert.Equal(t, "firefox", p.Browser)
	assert.Equal(t, Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}, p.Viewport)
}

func TestStoreExpiry(t *testing.T) {
	store := Store{Root: t.TempDir(), DefaultTTL: time.Second}
	p, _, err := store.Upsert("expiring", Overrides{})
	require.NoError(t, err)
	_, _, err = store.Upsert("forever", Overrides{TTL: new(time.Duration)})
	require.NoError(t, err)

	p.LastUsed = time.Now().Add(-2 * time.Second)
	require.NoError(t, store.Save(p))

	loaded, err := store.Load("expiring")
	require.NoError(t, err)
	assert.True(t, store.IsExpired(loaded))

	removed, err := store.Prune()
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "expiring", removed[0].Name)

	left, err := store.List()
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "forever", left[0].Name)
	assert.Equal(t, "never", FormatTTL(left[0].TTL))
}

func TestParseViewport(t *testing.T) {
	v, err := ParseViewport("1024X768")
	require.NoError(t, err)
	assert.Equal(t, Viewport{Width: 1024, Height: 768}, v)
	assert.Equal(t, "1024x768", v.String())

	for _, bad := range []string{"", "1024", "0x10", "axb"} {
		_, err := ParseViewport(bad)
		assert.Error(t, err, bad)
	}
}
