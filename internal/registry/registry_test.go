package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/oracle-yield-curve/internal/model"
)

func seeded(t *testing.T) *Registry {
	t.Helper()
	r := New()
	require.NoError(t, r.AddOnKey("aave-on-borrow", true))
	require.NoError(t, r.AddSpotKey("btc/usd", true))
	require.NoError(t, r.AddFutureKey("btc/usd", "btc/usd-20220624", true, 1656043200))
	require.NoError(t, r.AddFutureKey("btc/usd", "btc/usd-20220930", true, 1664510400))
	return r
}

func TestRegistry_RegistrationOrder(t *testing.T) {
	r := seeded(t)

	assert.Equal(t, []string{"aave-on-borrow"}, r.OnKeys())
	assert.Equal(t, []string{"btc/usd"}, r.SpotKeys())

	futures := r.FutureKeys("btc/usd")
	require.Len(t, futures, 2)
	assert.Equal(t, "btc/usd-20220624", futures[0].Key)
	assert.Equal(t, int64(1656043200), futures[0].ExpiryTimestamp)
	assert.Equal(t, "btc/usd-20220930", futures[1].Key)
}

func TestRegistry_AddIsIdempotent(t *testing.T) {
	r := seeded(t)

	require.NoError(t, r.AddOnKey("aave-on-borrow", false))
	require.NoError(t, r.AddSpotKey("btc/usd", false))
	require.NoError(t, r.AddFutureKey("btc/usd", "btc/usd-20220624", false, 1))

	assert.Equal(t, []string{"aave-on-borrow"}, r.OnKeys())
	active, err := r.OnKeyIsActive("aave-on-borrow")
	require.NoError(t, err)
	assert.True(t, active, "re-adding must not change status")

	futures := r.FutureKeys("btc/usd")
	require.Len(t, futures, 2)
	assert.Equal(t, int64(1656043200), futures[0].ExpiryTimestamp, "expiry is fixed")
	assert.True(t, futures[0].Active)
}

func TestRegistry_Deactivate(t *testing.T) {
	r := seeded(t)

	require.NoError(t, r.SetSpotKeyActive("btc/usd", false))
	active, err := r.SpotKeyIsActive("btc/usd")
	require.NoError(t, err)
	assert.False(t, active)
	assert.Equal(t, []string{"btc/usd"}, r.SpotKeys(), "deactivation keeps history")

	require.NoError(t, r.SetSpotKeyActive("btc/usd", true))
	active, err = r.SpotKeyIsActive("btc/usd")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, r.SetFutureKeyActive("btc/usd", "btc/usd-20220624", false))
	active, err = r.FutureKeyIsActive("btc/usd", "btc/usd-20220624")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestRegistry_UnregisteredKeys(t *testing.T) {
	r := seeded(t)

	assert.NoError(t, r.SetOnKeyActive("never-registered", false), "deactivating unknown key is a no-op")
	assert.NoError(t, r.SetSpotKeyActive("eth/usd", false))
	assert.NoError(t, r.SetFutureKeyActive("btc/usd", "btc/usd-20991231", false))

	assert.ErrorIs(t, r.SetOnKeyActive("never-registered", true), model.ErrUnknownKey)

	_, err := r.OnKeyIsActive("never-registered")
	assert.ErrorIs(t, err, model.ErrUnknownKey)
	_, err = r.SpotKeyIsActive("eth/usd")
	assert.ErrorIs(t, err, model.ErrUnknownKey)
	_, err = r.FutureKeyIsActive("btc/usd", "nope")
	assert.ErrorIs(t, err, model.ErrUnknownKey)

	assert.Len(t, r.OnKeys(), 1, "no-op calls do not register keys")
}

func TestRegistry_FutureKeyRequiresSpotKey(t *testing.T) {
	r := seeded(t)

	assert.ErrorIs(t, r.AddFutureKey("eth/usd", "eth/usd-20220624", true, 1656043200), model.ErrUnknownKey)

	require.NoError(t, r.AddSpotKey("eth/usd", true))
	assert.ErrorIs(t, r.AddFutureKey("eth/usd", "btc/usd-20220624", true, 1656043200), ErrKeyConflict)
	assert.Error(t, r.AddFutureKey("eth/usd", "eth/usd-20220624", true, 0))
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	r := seeded(t)

	snap, err := r.RegisteredKeys(context.Background())
	require.NoError(t, err)
	snap.FutureKeys["btc/usd"][0].Active = false
	snap.OnKeys[0].Active = false

	again, err := r.RegisteredKeys(context.Background())
	require.NoError(t, err)
	assert.True(t, again.FutureKeys["btc/usd"][0].Active)
	assert.True(t, again.OnKeys[0].Active)
	assert.Equal(t, []string{"aave-on-borrow"}, again.ActiveOnKeys())
	assert.Len(t, again.ActiveFutureKeys("btc/usd"), 2)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TEST_SPOT_KEY", "btc/usd")

	content := `
on_keys:
  - key: aave-on-borrow
spot_keys:
  - key: ${TEST_SPOT_KEY}
    futures:
      - key: btc/usd-20220624
        expiry: 1656043200
      - key: btc/usd-20220930
        expiry: 1664510400
        active: false
  - key: eth/usd
    active: false
`
	path := filepath.Join(t.TempDir(), "keys.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r, err := LoadFile(path)
	require.NoError(t, err)

	snap, err := r.RegisteredKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"aave-on-borrow"}, snap.ActiveOnKeys())
	assert.Equal(t, []string{"btc/usd"}, snap.ActiveSpotKeys())
	assert.Equal(t, []string{"btc/usd", "eth/usd"}, r.SpotKeys())

	active := snap.ActiveFutureKeys("btc/usd")
	require.Len(t, active, 1)
	assert.Equal(t, "btc/usd-20220624", active[0].Key)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("on_keys: [\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("spot_keys:\n  - key: btc/usd\n    futures:\n      - key: btc/usd-1\n"))
	assert.Error(t, err, "future without expiry is rejected")
}
