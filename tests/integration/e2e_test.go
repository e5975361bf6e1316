//go:build integration

package integration

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pubflow/pubflow-go/internal/mockapi"
	"github.com/pubflow/pubflow-go/internal/telemetry"
	"github.com/pubflow/pubflow-go/sdk"
	"github.com/pubflow/pubflow-go/sdk/events"
	"github.com/pubflow/pubflow-go/sdk/platform"
	"github.com/pubflow/pubflow-go/sdk/storage"
)

type task struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// TestEndToEnd runs the client against the mock backend on postgres, keeps
// its session in redis and publishes auth events to NATS JetStream.
func TestEndToEnd(t *testing.T) {
	resetTables(t, "pubflow_records")
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	require.NoError(t, err)
	provider.Logger.SetOutput(io.Discard)
	defer provider.Shutdown(ctx)

	records, err := mockapi.NewPostgresRecordStore(ctx, testContainers.PostgresConfig())
	require.NoError(t, err)
	defer records.Close()

	cfg := mockapi.DefaultConfig()
	cfg.RequireSession = true
	server := mockapi.New(cfg, records, provider)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.App().Listener(ln) }()
	defer server.Shutdown(ctx)

	natsCfg := events.DefaultConfig()
	natsCfg.URL = testContainers.NATSURL
	natsCfg.JetStream = true
	publisher, err := events.NewPublisher(natsCfg, provider.Logger)
	require.NoError(t, err)
	defer publisher.Close()

	var mu sync.Mutex
	var seen []sdk.AuthEventType
	sub, err := publisher.Subscribe(func(ctx context.Context, e sdk.AuthEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Type)
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	sessions, err := storage.NewRedisStorage(ctx, testContainers.RedisConfig())
	require.NoError(t, err)
	defer sessions.Close()

	metrics := telemetry.NewMetrics("e2e")
	client, err := sdk.NewClient(sdk.DefaultConfig().
		WithBaseURL("http://"+ln.Addr().String()).
		WithRuntime(platform.Node).
		WithStorage(sessions).
		WithEventPublisher(publisher).
		WithObserver(metrics).
		WithLogger(provider.Logger))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Auth().Login(ctx, sdk.Credentials{Email: "admin@pubflow.local", Password: cfg.DemoPassword})
	require.NoError(t, err)

	stored, ok, err := sessions.Get(ctx, sdk.DefaultSessionKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, stored, "user-admin")

	tasks := sdk.NewResource[task](client.Bridge(), "tasks", sdk.WithPageSize(5))
	for _, title := range []string{"write", "review", "ship"} {
		_, err := tasks.Create(ctx, task{Title: title})
		require.NoError(t, err)
	}

	found, err := tasks.Search(ctx, "REV")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "review", found[0].Title)

	all, err := tasks.Query(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 3)

	ids := make([]string, len(all))
	for i, tk := range all {
		ids[i] = tk.ID
	}
	require.NoError(t, tasks.BulkDelete(ctx, ids))
	n, err := records.Count(ctx, "tasks")
	require.NoError(t, err)
	assert.Zero(t, n)

	// repeated reads are served from the query cache
	load := func(ctx context.Context) (int, error) {
		resp, err := client.Bridge().Query(ctx, "tasks", nil)
		if err != nil {
			return 0, err
		}
		return resp.Meta.Total, nil
	}
	for i := 0; i < 3; i++ {
		total, err := sdk.Execute(ctx, client.Query(), load, sdk.ExecuteOptions{CacheKey: "tasks:count", CacheTime: time.Minute})
		require.NoError(t, err)
		assert.Zero(t, total)
	}

	require.NoError(t, client.Auth().Logout(ctx))
	_, ok, err = sessions.Get(ctx, sdk.DefaultSessionKey)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 5*time.Second, 50*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []sdk.AuthEventType{sdk.EventLogin, sdk.EventLogout}, seen)
	mu.Unlock()

	info, err := publisher.StreamInfo()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.State.Msgs, uint64(2))
}
