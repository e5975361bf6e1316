package mockapi

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/pubflow/pubflow-go/internal/telemetry"
	"github.com/pubflow/pubflow-go/sdk"
	"github.com/pubflow/pubflow-go/sdk/platform"
	"github.com/pubflow/pubflow-go/sdk/storage"
)

func newTestProvider(t *testing.T) *telemetry.Provider {
	t.Helper()
	p, err := telemetry.Init(context.Background(), telemetry.DefaultConfig())
	require.NoError(t, err)
	p.Logger.SetOutput(io.Discard)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func newTestServer(t *testing.T, configure ...func(*Config)) *Server {
	t.Helper()
	cfg := DefaultConfig()
	for _, fn := range configure {
		fn(cfg)
	}
	return New(cfg, NewMemoryRecordStore(), newTestProvider(t))
}

// call runs one request through the app and decodes the envelope.
func call(t *testing.T, s *Server, method, target, body string, header ...string) (*http.Response, Envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env Envelope
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &env), string(data))
	}
	return resp, env
}

func sessionCookie(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			return c.Value
		}
	}
	return ""
}

func TestLoginAndValidate(t *testing.T) {
	s := newTestServer(t)

	resp, env := call(t, s, http.MethodPost, "/auth/login", `{"email":"admin@pubflow.local","password":"pubflow"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	id := sessionCookie(resp)
	require.NotEmpty(t, id)
	assert.Equal(t, id, env.Data.(map[string]any)["sessionId"])
	assert.Equal(t, 1, s.Sessions().Len())

	resp, env = call(t, s, http.MethodPost, "/auth/validation", `{"sessionId":"`+id+`"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	user := env.Data.(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "admin", user["userType"])
	assert.Equal(t, "admin", user["userName"])

	resp, _ = call(t, s, http.MethodPost, "/auth/validation", "", "Cookie", SessionCookie+"="+id)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = call(t, s, http.MethodPost, "/auth/logout", "", "Cookie", SessionCookie+"="+id)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, s.Sessions().Len())

	resp, env = call(t, s, http.MethodPost, "/auth/validation", `{"sessionId":"`+id+`"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "Session expired", env.Error)
}

func TestLoginRejections(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"wrong password", `{"email":"admin@pubflow.local","password":"nope"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"unknown user", `{"userName":"ghost","password":"pubflow"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"no identity", `{"password":"pubflow"}`, http.StatusBadRequest, "Email or userName is required"},
		{"bad json", `{`, http.StatusBadRequest, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := call(t, s, http.MethodPost, "/auth/login", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.False(t, env.Success)
			assert.Equal(t, tt.msg, env.Error)
		})
	}
}

func TestBridgeEndpoints(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.Seed(ctx, "posts",
		Record{"id": "p1", "title": "Go generics", "status": "draft"},
		Record{"id": "p2", "title": "Fiber routing", "status": "published"},
		Record{"id": "p3", "title": "More generics", "status": "published"},
	))

	resp, env := call(t, s, http.MethodGet, "/bridge/posts?page=1&limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, env.Data, 2)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 3, env.Meta.Total)
	assert.Equal(t, 2, env.Meta.TotalPages)
	assert.True(t, env.Meta.HasMore)

	_, env = call(t, s, http.MethodGet, "/bridge/posts?status=published&orderBy=title&orderDir=desc", "")
	data := env.Data.([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "p3", data[0].(map[string]any)["id"])
	assert.False(t, env.Meta.HasMore)

	_, env = call(t, s, http.MethodGet, "/bridge/posts/search?q=generics&searchColumns[]=title", "")
	assert.Len(t, env.Data, 2)

	resp, env = call(t, s, http.MethodGet, "/bridge/posts/search", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Search query is required", env.Error)

	resp, env = call(t, s, http.MethodGet, "/bridge/posts/p2", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Fiber routing", env.Data.(map[string]any)["title"])

	resp, env = call(t, s, http.MethodPost, "/bridge/posts", `{"title":"New"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	newID := env.Data.(map[string]any)["id"].(string)
	assert.NotEmpty(t, newID)

	resp, _ = call(t, s, http.MethodPost, "/bridge/posts", `{"id":"p1"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, env = call(t, s, http.MethodPut, "/bridge/posts/"+newID, `{"title":"Renamed"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Renamed", env.Data.(map[string]any)["title"])

	resp, env = call(t, s, http.MethodDelete, "/bridge/posts/"+newID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"id": newID}, env.Data)

	resp, env = call(t, s, http.MethodDelete, "/bridge/posts/"+newID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Record not found", env.Error)

	resp, env = call(t, s, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Endpoint not found", env.Error)
}

func TestRequireSession(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) { cfg.RequireSession = true })

	resp, env := call(t, s, http.MethodGet, "/bridge/posts", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Session expired", env.Error)

	resp, _ = call(t, s, http.MethodPost, "/auth/login", `{"userName":"editor","password":"pubflow"}`)
	id := sessionCookie(resp)

	resp, _ = call(t, s, http.MethodGet, "/bridge/posts", "", "Cookie", SessionCookie+"="+id)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = call(t, s, http.MethodGet, "/bridge/posts", "", "Authorization", "Bearer "+id)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTaskSecret(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) { cfg.TaskSecret = "cron" })

	resp, _ := call(t, s, http.MethodGet, "/bridge/posts", "", "X-Scheduled-Task-Secret", "wrong")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = call(t, s, http.MethodGet, "/bridge/posts", "", "X-Scheduled-Task-Secret", "cron")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = call(t, s, http.MethodGet, "/bridge/posts", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) { cfg.RateLimit = 2 })

	for i := 0; i < 2; i++ {
		resp, _ := call(t, s, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, env := call(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Rate limit exceeded", env.Error)
}

func TestBridgeListHugePage(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Seed(context.Background(), "posts", Record{"id": "p1"}, Record{"id": "p2"}))

	resp, env := call(t, s, http.MethodGet, "/bridge/posts?page=100000000000000000&limit=100", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Empty(t, env.Data)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 2, env.Meta.Total)
	assert.False(t, env.Meta.HasMore)
}

func TestParseListQueryClampsPage(t *testing.T) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Parse("page=100000000000000000&limit=100")

	q := parseListQuery(args)
	assert.Equal(t, math.MaxInt/MaxLimit, q.Page)
	assert.Equal(t, 100, q.Limit)
	assert.GreaterOrEqual(t, q.offset(), 0)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Seed(context.Background(), "posts", Record{"id": "p1"}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "pubflow-mock", health.Service)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err = s.App().Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `pubflow_records_stored{resource="posts"} 1`)
	assert.Contains(t, string(body), "pubflow_http_requests_total")
}

// TestClientRoundTrip drives the mock backend with the client SDK over a
// real listener.
func TestClientRoundTrip(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) { cfg.RequireSession = true })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.App().Listener(ln) }()
	t.Cleanup(func() { _ = s.App().Shutdown() })

	client, err := sdk.NewClient(sdk.DefaultConfig().
		WithBaseURL("http://"+ln.Addr().String()).
		WithRuntime(platform.Node).
		WithStorage(storage.NewMemoryStorage()).
		WithTimeout(5*time.Second).
		WithLogger(telemetry.NewNopLogger()))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	_, err = client.Bridge().Query(ctx, "posts", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, sdk.StatusCode(err))

	session, err := client.Auth().Login(ctx, sdk.Credentials{UserName: "admin", Password: "pubflow"})
	require.NoError(t, err)
	assert.Equal(t, "user-admin", session.User.ID)
	assert.True(t, client.Auth().IsAuthenticated(ctx))

	type post struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	posts := sdk.NewResource[post](client.Bridge(), "posts", sdk.WithPageSize(2))
	for _, title := range []string{"one", "two", "three"} {
		_, err := posts.Create(ctx, post{Title: title})
		require.NoError(t, err)
	}

	page, err := posts.Query(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.True(t, posts.HasMore())
	_, err = posts.LoadMore(ctx)
	require.NoError(t, err)
	assert.Len(t, posts.Items(), 3)

	assert.NotNil(t, client.Auth().ValidateSession(ctx, ""))

	require.NoError(t, client.Auth().Logout(ctx))
	assert.False(t, client.Auth().IsAuthenticated(ctx))
	assert.Zero(t, s.Sessions().Len())
}
