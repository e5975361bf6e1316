package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultPageSize is the page size of a Resource without WithPageSize.
const DefaultPageSize = 10

const bulkConcurrency = 4

type resourceConfig struct {
	limit    int
	orderBy  string
	orderDir string
	include  []string
	filters  Params
	columns  []string
}

// ResourceOption customizes a Resource.
type ResourceOption func(*resourceConfig)

// WithPageSize sets the page size.
func WithPageSize(n int) ResourceOption {
	return func(c *resourceConfig) { c.limit = n }
}

// WithOrder sets the sort column and direction.
func WithOrder(by, dir string) ResourceOption {
	return func(c *resourceConfig) {
		c.orderBy = by
		c.orderDir = dir
	}
}

// WithInclude requests related records.
func WithInclude(relations ...string) ResourceOption {
	return func(c *resourceConfig) { c.include = relations }
}

// WithFilters adds server-interpreted filter parameters.
func WithFilters(p Params) ResourceOption {
	return func(c *resourceConfig) { c.filters = p }
}

// WithSearchColumns restricts searches to the given columns.
func WithSearchColumns(columns ...string) ResourceOption {
	return func(c *resourceConfig) { c.columns = columns }
}

// Resource is a typed, paginated view of one bridge resource. It keeps the
// records loaded so far and the pagination state of the last listing.
//
// Example:
//
//	tasks := sdk.NewResource[Task](client.Bridge(), "tasks", sdk.WithPageSize(20))
//	page, err := tasks.Query(ctx, 1)
//	for tasks.HasMore() {
//	    if _, err := tasks.LoadMore(ctx); err != nil {
//	        break
//	    }
//	}
type Resource[T any] struct {
	bridge *BridgeService
	name   string
	cfg    resourceConfig

	mu     sync.Mutex
	items  []T
	meta   *Meta
	page   int
	search *string
}

// NewResource creates a typed view of resource.
func NewResource[T any](b *BridgeService, name string, opts ...ResourceOption) *Resource[T] {
	cfg := resourceConfig{limit: DefaultPageSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Resource[T]{bridge: b, name: name, cfg: cfg}
}

// Name returns the resource name.
func (r *Resource[T]) Name() string {
	return r.name
}

// Query loads page and replaces the loaded records.
func (r *Resource[T]) Query(ctx context.Context, page int) ([]T, error) {
	items, meta, err := r.fetch(ctx, nil, page)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.search = nil
	r.items = items
	r.meta = meta
	r.page = page
	return append([]T(nil), items...), nil
}

// Search loads the first page of matches for q and replaces the loaded
// records. LoadMore continues the search.
func (r *Resource[T]) Search(ctx context.Context, q string) ([]T, error) {
	items, meta, err := r.fetch(ctx, &q, 1)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.search = &q
	r.items = items
	r.meta = meta
	r.page = 1
	return append([]T(nil), items...), nil
}

// LoadMore appends the next page of the current listing or search. It
// returns the loaded records unchanged when there is no further page.
func (r *Resource[T]) LoadMore(ctx context.Context) ([]T, error) {
	r.mu.Lock()
	if r.meta == nil || !r.meta.HasMore {
		items := append([]T(nil), r.items...)
		r.mu.Unlock()
		return items, nil
	}
	next, search := r.page+1, r.search
	r.mu.Unlock()

	items, meta, err := r.fetch(ctx, search, next)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, items...)
	r.meta = meta
	r.page = next
	return append([]T(nil), r.items...), nil
}

// Refresh reloads the first page of the current listing or search.
func (r *Resource[T]) Refresh(ctx context.Context) ([]T, error) {
	r.mu.Lock()
	search := r.search
	r.mu.Unlock()
	if search != nil {
		return r.Search(ctx, *search)
	}
	return r.Query(ctx, 1)
}

func (r *Resource[T]) fetch(ctx context.Context, search *string, page int) ([]T, *Meta, error) {
	var raw *Response[json.RawMessage]
	var err error
	if search != nil {
		raw, err = r.bridge.Search(ctx, r.name, *search, &SearchOptions{
			Page:          page,
			Limit:         r.cfg.limit,
			SearchColumns: r.cfg.columns,
			Filters:       r.cfg.filters,
		})
	} else {
		raw, err = r.bridge.Query(ctx, r.name, &ListOptions{
			Page:     page,
			Limit:    r.cfg.limit,
			OrderBy:  r.cfg.orderBy,
			OrderDir: r.cfg.orderDir,
			Include:  r.cfg.include,
			Filters:  r.cfg.filters,
		})
	}
	if err != nil {
		return nil, nil, err
	}
	resp, err := DecodeResponse[[]T](raw)
	if err != nil {
		return nil, nil, err
	}
	if err := envelopeError(resp); err != nil {
		return nil, nil, err
	}
	return resp.Data, resp.Meta, nil
}

// Page returns the last loaded page number, 0 before the first load.
func (r *Resource[T]) Page() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.page
}

// HasMore reports whether the server announced a further page.
func (r *Resource[T]) HasMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta != nil && r.meta.HasMore
}

// Meta returns the pagination state of the last load.
func (r *Resource[T]) Meta() *Meta {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.meta == nil {
		return nil
	}
	m := *r.meta
	return &m
}

// Items returns the records loaded so far.
func (r *Resource[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.items...)
}

// Create creates a record and appends it to the loaded records.
func (r *Resource[T]) Create(ctx context.Context, data any) (T, error) {
	var zero T
	raw, err := r.bridge.Create(ctx, r.name, data)
	if err != nil {
		return zero, err
	}
	item, err := decodeItem[T](raw)
	if err != nil {
		return zero, err
	}
	r.mu.Lock()
	r.items = append(r.items, item)
	r.mu.Unlock()
	return item, nil
}

// Update changes a record and replaces its loaded copy.
func (r *Resource[T]) Update(ctx context.Context, id string, data any) (T, error) {
	var zero T
	raw, err := r.bridge.Update(ctx, r.name, id, data)
	if err != nil {
		return zero, err
	}
	item, err := decodeItem[T](raw)
	if err != nil {
		return zero, err
	}
	r.mu.Lock()
	for i := range r.items {
		if idOf(r.items[i]) == id {
			r.items[i] = item
		}
	}
	r.mu.Unlock()
	return item, nil
}

// Delete removes a record and drops its loaded copy.
func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	raw, err := r.bridge.Delete(ctx, r.name, id)
	if err != nil {
		return err
	}
	if err := envelopeError(raw); err != nil {
		return err
	}
	r.forget(id)
	return nil
}

// BulkDelete deletes ids concurrently. The first failure is returned;
// records deleted before it are dropped from the loaded records.
func (r *Resource[T]) BulkDelete(ctx context.Context, ids []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			raw, err := r.bridge.Delete(gctx, r.name, id)
			if err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			if err := envelopeError(raw); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			r.forget(id)
			return nil
		})
	}
	return g.Wait()
}

// BulkUpdate applies updates (id to payload) concurrently. The first
// failure is returned.
func (r *Resource[T]) BulkUpdate(ctx context.Context, updates map[string]any) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for id, data := range updates {
		g.Go(func() error {
			if _, err := r.Update(gctx, id, data); err != nil {
				return fmt.Errorf("update %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Resource[T]) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.items[:0]
	for _, item := range r.items {
		if idOf(item) != id {
			kept = append(kept, item)
		}
	}
	r.items = kept
}

func decodeItem[T any](raw *Response[json.RawMessage]) (T, error) {
	var zero T
	resp, err := DecodeResponse[T](raw)
	if err != nil {
		return zero, err
	}
	if err := envelopeError(resp); err != nil {
		return zero, err
	}
	return resp.Data, nil
}

// idOf reads the "id" property of a record through its JSON form.
func idOf(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	var rec struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(data, &rec); err != nil || rec.ID == nil {
		return ""
	}
	switch id := rec.ID.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%v", id)
	default:
		return fmt.Sprint(id)
	}
}
