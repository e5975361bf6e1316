package sdk

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pubflow/pubflow-go/sdk/testdata"
)

func TestResourcePagination(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	c := newTestClient(t, ts)
	ts.Server.Seed("posts", testdata.Posts(5)...)

	posts := NewResource[post](c.Bridge(), "posts", WithPageSize(2), WithOrder("id", "asc"))
	assert.Equal(t, "posts", posts.Name())
	assert.Zero(t, posts.Page())
	assert.Nil(t, posts.Meta())

	items, err := posts.Query(ts.Context, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "post-01", items[0].ID)
	assert.True(t, posts.HasMore())

	items, err = posts.LoadMore(ts.Context)
	require.NoError(t, err)
	assert.Len(t, items, 4)
	assert.Equal(t, 2, posts.Page())

	items, err = posts.LoadMore(ts.Context)
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.False(t, posts.HasMore())
	assert.Equal(t, 5, posts.Meta().Total)

	// No further page: no request.
	before := ts.Server.GetRequestCount()
	items, err = posts.LoadMore(ts.Context)
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.Equal(t, before, ts.Server.GetRequestCount())

	items, err = posts.Refresh(ts.Context)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 1, posts.Page())
}

func TestResourceSearch(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	c := newTestClient(t, ts)
	ts.Server.Seed("posts",
		map[string]any{"id": "a", "title": "Go tips"},
		map[string]any{"id": "b", "title": "Rust tips"},
		map[string]any{"id": "c", "title": "More go"},
	)

	posts := NewResource[post](c.Bridge(), "posts", WithPageSize(1), WithSearchColumns("title"))
	items, err := posts.Search(ts.Context, "go")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, posts.HasMore())

	items, err = posts.LoadMore(ts.Context)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	req := ts.RequireRequest(http.MethodGet, "/bridge/posts/search")
	assert.Contains(t, req.Query, "q=go")
	assert.Contains(t, req.Query, "page=2")

	// Refresh stays in search mode.
	_, err = posts.Refresh(ts.Context)
	require.NoError(t, err)
	ts.RequireRequest(http.MethodGet, "/bridge/posts/search")
}

func TestResourceMutations(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	c := newTestClient(t, ts)
	ts.Server.Seed("posts", testdata.Posts(2)...)

	posts := NewResource[post](c.Bridge(), "posts")
	_, err := posts.Query(ts.Context, 1)
	require.NoError(t, err)

	created, err := posts.Create(ts.Context, map[string]any{"title": "New"})
	require.NoError(t, err)
	assert.Len(t, posts.Items(), 3)

	updated, err := posts.Update(ts.Context, "post-01", map[string]any{"title": "Edited"})
	require.NoError(t, err)
	assert.Equal(t, "Edited", updated.Title)
	assert.Equal(t, "Edited", posts.Items()[0].Title)

	require.NoError(t, posts.Delete(ts.Context, created.ID))
	assert.Len(t, posts.Items(), 2)

	err = posts.Delete(ts.Context, "missing")
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.Len(t, posts.Items(), 2)
}

func TestResourceBulk(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	c := newTestClient(t, ts)
	ts.Server.Seed("posts", testdata.Posts(6)...)

	posts := NewResource[post](c.Bridge(), "posts", WithPageSize(10))
	_, err := posts.Query(ts.Context, 1)
	require.NoError(t, err)

	err = posts.BulkUpdate(ts.Context, map[string]any{
		"post-01": map[string]any{"draft": false},
		"post-02": map[string]any{"draft": false},
	})
	require.NoError(t, err)
	for _, p := range posts.Items()[:2] {
		assert.False(t, p.Draft)
	}

	require.NoError(t, posts.BulkDelete(ts.Context, []string{"post-03", "post-04", "post-05"}))
	assert.Len(t, posts.Items(), 3)
	assert.Len(t, ts.Server.Records("posts"), 3)

	err = posts.BulkDelete(ts.Context, []string{"post-06", "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete nope")
}

func TestResourceUnsuccessfulEnvelope(t *testing.T) {
	ts := testdata.NewTestSuite(t)
	c := newTestClient(t, ts)
	ts.Server.WithJSONResponse("GET /bridge/posts", http.StatusOK, testdata.Failure("Not allowed"))

	posts := NewResource[post](c.Bridge(), "posts")
	_, err := posts.Query(ts.Context, 1)
	require.Error(t, err)
	assert.True(t, IsRequestError(err))
	assert.Contains(t, err.Error(), "Not allowed")
	assert.Empty(t, posts.Items())
}

func TestIDOf(t *testing.T) {
	assert.Equal(t, "x", idOf(post{ID: "x"}))
	assert.Equal(t, "42", idOf(map[string]any{"id": 42}))
	assert.Equal(t, "", idOf(map[string]any{"title": "no id"}))
	assert.Equal(t, "", idOf(make(chan int)))
}
