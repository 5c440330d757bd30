package client_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tanjh/roombook/pkg/cache"
	"github.com/tanjh/roombook/pkg/client"
)

func newTestManager(t *testing.T, site *stubSite, store *cache.Store) (*client.Manager, *client.Client) {
	c := newTestClient(t, site)
	creds := client.Credentials{Username: stubUsername, Password: stubPassword}
	return client.NewManager(c, store, creds, zap.NewNop()), c
}

func newTestStore(t *testing.T) *cache.Store {
	store, err := cache.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEnsureSessionFreshLogin(t *testing.T) {
	site := newStubSite(t)
	store := newTestStore(t)
	manager, _ := newTestManager(t, site, store)

	reused, err := manager.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, 1, site.loginCalls)

	// The session snapshot must now be persisted.
	var state client.State
	require.NoError(t, store.GetJSON(cache.KeySession, &state))
	assert.NotEmpty(t, state.Cookies)
}

func TestEnsureSessionReusesCachedSession(t *testing.T) {
	site := newStubSite(t)
	store := newTestStore(t)

	first, _ := newTestManager(t, site, store)
	_, err := first.EnsureSession(context.Background())
	require.NoError(t, err)

	// A later run with a fresh client picks up the persisted session
	// without logging in again.
	second, _ := newTestManager(t, site, store)
	reused, err := second.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, 1, site.loginCalls)
}

func TestEnsureSessionRenewsExpiredSession(t *testing.T) {
	site := newStubSite(t)
	store := newTestStore(t)

	stale := client.State{Cookies: []client.StateCookie{{Name: "AppSession", Value: "stale"}}}
	require.NoError(t, store.PutJSON(cache.KeySession, stale))

	manager, _ := newTestManager(t, site, store)
	reused, err := manager.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, 1, site.loginCalls)
}

func TestEnsureSessionCheckFailureFallsBackToLogin(t *testing.T) {
	site := newStubSite(t)
	store := newTestStore(t)

	first, _ := newTestManager(t, site, store)
	_, err := first.EnsureSession(context.Background())
	require.NoError(t, err)

	// The validity check on the cached session hits a transport error; the
	// run recovers with a fresh login instead of aborting.
	site.entryFailures = 1
	second, _ := newTestManager(t, site, store)
	reused, err := second.EnsureSession(context.Background())
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, 2, site.loginCalls)
}

func TestEnsureTokenFollowsSessionLifecycle(t *testing.T) {
	site := newStubSite(t)
	store := newTestStore(t)
	manager, c := newTestManager(t, site, store)
	require.NoError(t, c.Login(context.Background(), stubUsername, stubPassword))

	require.NoError(t, store.PutToken("cached-token"))

	t.Run("cached token reused with cached session", func(t *testing.T) {
		token, err := manager.EnsureToken(context.Background(), true)
		require.NoError(t, err)
		assert.Equal(t, "cached-token", token)
	})

	t.Run("renewed session discards cached token", func(t *testing.T) {
		token, err := manager.EnsureToken(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, site.token, token)

		// The freshly minted token replaces the cached one.
		stored, err := store.GetToken()
		require.NoError(t, err)
		assert.Equal(t, site.token, stored)
	})
}

func TestEnsureTokenCacheMissFetches(t *testing.T) {
	site := newStubSite(t)
	store := newTestStore(t)
	manager, c := newTestManager(t, site, store)
	require.NoError(t, c.Login(context.Background(), stubUsername, stubPassword))

	token, err := manager.EnsureToken(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, site.token, token)
}

func TestInvalidate(t *testing.T) {
	site := newStubSite(t)
	store := newTestStore(t)
	manager, _ := newTestManager(t, site, store)

	_, err := manager.EnsureSession(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.PutToken("tok"))

	require.NoError(t, manager.Invalidate())

	var state client.State
	assert.ErrorIs(t, store.GetJSON(cache.KeySession, &state), cache.ErrCacheMiss)
	_, err = store.GetToken()
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}
