package sdk

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pubflow/pubflow-go/internal/telemetry"
	"github.com/pubflow/pubflow-go/sdk/platform"
	"github.com/pubflow/pubflow-go/sdk/storage"
	"github.com/pubflow/pubflow-go/sdk/testdata"
)

func TestNewClientRequiresConfig(t *testing.T) {
	_, err := NewClient(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewClient(DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewClientUsesAdapterStorage(t *testing.T) {
	store := storage.NewMemoryStorage()
	adapter, err := platform.New(platform.Cloudflare, platform.WithStorage(store))
	require.NoError(t, err)

	c, err := NewClient(DefaultConfig().
		WithBaseURL("http://localhost").
		WithAdapter(adapter).
		WithLogger(telemetry.NewNopLogger()))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, platform.Cloudflare, c.Runtime())
	assert.Same(t, store, c.Storage())
}

func TestNewClientStorageOverride(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	store := storage.NewMemoryStorage()
	c := newTestClient(t, ts, func(cfg *Config) {
		cfg.WithStorage(store).WithSessionKey("app_session")
	})

	assert.Equal(t, platform.Node, c.Runtime())
	assert.Same(t, store, c.Storage())

	_, err := c.Auth().Login(ts.Context, Credentials{Email: "ada@example.com", Password: testdata.TestPassword})
	require.NoError(t, err)
	v, ok, err := store.Get(ts.Context, "app_session")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, v, `"sessionId"`)
}

func TestNewClientRejectsUnknownRuntime(t *testing.T) {
	_, err := NewClient(DefaultConfig().WithBaseURL("http://localhost").WithRuntime("deno"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClientHistoryDisabledByDefault(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	c := newTestClient(t, ts)
	require.NoError(t, c.HTTP().Get(ts.Context, "/health", nil, nil))
	assert.Empty(t, c.History())
}

func TestClientDebugEnablesHistory(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	c := newTestClient(t, ts, func(cfg *Config) { cfg.WithDebug(true) })
	require.NoError(t, c.HTTP().Get(ts.Context, "/health", nil, nil))
	require.Len(t, c.History(), 1)
	assert.Equal(t, http.StatusOK, c.History()[0].Status)
}

func TestClientClose(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	c := newTestClient(t, ts)
	c.Query().Set("k", 1, 0)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Zero(t, c.Query().Len())

	_, err := c.Auth().Login(ts.Context, Credentials{Email: "ada@example.com", Password: testdata.TestPassword})
	assert.ErrorIs(t, err, ErrClientClosed)
	_, err = c.Bridge().Query(context.Background(), "posts", nil)
	assert.True(t, errors.Is(err, ErrClientClosed))
	assert.Zero(t, ts.Server.GetRequestCount())
}

func TestClientConcurrentUse(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	c := newTestClient(t, ts)
	ts.Server.Seed("posts", testdata.Posts(3)...)

	helper := testdata.NewConcurrentTestHelper(t)
	helper.Run(10, func(id int) error {
		_, err := Execute(ts.Context, c.Query(), func(ctx context.Context) (int, error) {
			raw, err := c.Bridge().Query(ctx, "posts", nil)
			if err != nil {
				return 0, err
			}
			return raw.Meta.Total, nil
		}, ExecuteOptions{CacheKey: "posts"})
		return err
	})
	helper.Wait()
}
