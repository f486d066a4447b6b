package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/machinefabric/devlink-go/result"
	"github.com/machinefabric/devlink-go/storage"
)

func newAppsDispatcher(t *testing.T) (*Dispatcher, *storage.Store, *int) {
	t.Helper()
	store := storage.NewStore(t.TempDir(), zap.NewNop())
	refreshes := 0
	d := New(zap.NewNop())
	d.Register(&AppsSubsystem{Store: store, Refresh: func() { refreshes++ }})
	return d, store, &refreshes
}

func TestAppsListEmpty(t *testing.T) {
	d, _, _ := newAppsDispatcher(t)
	r := d.ExecLine("apps list")
	require.True(t, r.Success)
	assert.EqualValues(t, 0, r.Data["count"])
}

func TestAppsListAfterInstall(t *testing.T) {
	d, store, _ := newAppsDispatcher(t)
	require.NoError(t, store.SaveAppFile("Torch", "torch.js", []byte("x")))
	require.NoError(t, store.SaveAppFile("Clock", "clock.js", []byte("y")))

	r := d.ExecLine("apps list")
	require.True(t, r.Success)
	assert.EqualValues(t, 2, r.Data["count"])
	assert.Equal(t, result.PayloadString, r.PayloadKind)
	assert.Contains(t, string(r.Payload), "torch")
	assert.Contains(t, string(r.Payload), "clock")
}

func TestAppsRead(t *testing.T) {
	d, store, _ := newAppsDispatcher(t)
	require.NoError(t, store.SaveAppFile("Torch", "torch.js", []byte("var on=1;")))

	r := d.Exec("apps", "read", []string{"Torch", "torch.js"})
	require.True(t, r.Success)
	assert.Equal(t, result.PayloadBinary, r.PayloadKind)
	assert.Equal(t, "var on=1;", string(r.Payload))

	r = d.Exec("apps", "read", []string{"Torch", "missing.js"})
	assert.False(t, r.Success)
	assert.Equal(t, result.KindNotFound, r.Code)

	r = d.Exec("apps", "read", []string{"Torch"})
	assert.Equal(t, result.KindInvalid, r.Code)
}

func TestAppsRemoveTriggersRefresh(t *testing.T) {
	d, store, refreshes := newAppsDispatcher(t)
	require.NoError(t, store.SaveAppFile("Torch", "torch.js", []byte("x")))

	r := d.Exec("apps", "remove", []string{"Torch"})
	require.True(t, r.Success)
	assert.Equal(t, 1, *refreshes)

	apps, err := store.ListApps()
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestAppsRefreshCommand(t *testing.T) {
	d, _, refreshes := newAppsDispatcher(t)
	require.True(t, d.ExecLine("apps refresh").Success)
	assert.Equal(t, 1, *refreshes)
}
