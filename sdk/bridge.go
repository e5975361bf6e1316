package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// ListOptions are the query parameters of a resource listing. Zero values
// are not sent.
type ListOptions struct {
	Page     int
	Limit    int
	OrderBy  string
	OrderDir string
	Include  []string
	// Filters are extra server-interpreted parameters.
	Filters Params
}

func (o *ListOptions) params() Params {
	p := Params{}
	if o == nil {
		return p
	}
	for k, v := range o.Filters {
		p[k] = v
	}
	if o.Page > 0 {
		p["page"] = o.Page
	}
	if o.Limit > 0 {
		p["limit"] = o.Limit
	}
	if o.OrderBy != "" {
		p["orderBy"] = o.OrderBy
	}
	if o.OrderDir != "" {
		p["orderDir"] = o.OrderDir
	}
	if len(o.Include) > 0 {
		p["include"] = o.Include
	}
	return p
}

// SearchOptions are the query parameters of a resource search.
type SearchOptions struct {
	Page          int
	Limit         int
	SearchColumns []string
	Filters       Params
}

func (o *SearchOptions) params(q string) Params {
	p := Params{}
	if o != nil {
		for k, v := range o.Filters {
			p[k] = v
		}
		if o.Page > 0 {
			p["page"] = o.Page
		}
		if o.Limit > 0 {
			p["limit"] = o.Limit
		}
		if len(o.SearchColumns) > 0 {
			p["searchColumns"] = o.SearchColumns
		}
	}
	p["q"] = q
	return p
}

// BridgeService performs CRUD against /bridge/<resource>. Every method
// returns the server envelope unmodified, including envelopes with
// success=false; only transport failures and non-2xx statuses are errors.
//
// Example:
//
//	resp, err := client.Bridge().Query(ctx, "tasks", &sdk.ListOptions{
//	    Page:    1,
//	    Limit:   20,
//	    OrderBy: "created_at",
//	    Include: []string{"owner"},
//	})
type BridgeService struct {
	http *HTTPClient

	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewBridgeService creates a bridge service.
func NewBridgeService(hc *HTTPClient) *BridgeService {
	return &BridgeService{http: hc, schemas: make(map[string]*Schema)}
}

// RegisterSchema makes Create validate payloads for resource with s and
// Update with s.Partial(). A nil schema removes the registration.
func (b *BridgeService) RegisterSchema(resource string, s *Schema) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s == nil {
		delete(b.schemas, resource)
		return
	}
	b.schemas[resource] = s
}

// Schema returns the schema registered for resource, if any.
func (b *BridgeService) Schema(resource string) *Schema {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.schemas[resource]
}

func resourcePath(resource string, segments ...string) string {
	var sb strings.Builder
	sb.WriteString("/bridge/")
	sb.WriteString(url.PathEscape(resource))
	for _, s := range segments {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(s))
	}
	return sb.String()
}

// Query lists records.
func (b *BridgeService) Query(ctx context.Context, resource string, opts *ListOptions) (*Response[json.RawMessage], error) {
	var resp Response[json.RawMessage]
	if err := b.http.Get(ctx, resourcePath(resource), opts.params(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search runs a full text search.
func (b *BridgeService) Search(ctx context.Context, resource, q string, opts *SearchOptions) (*Response[json.RawMessage], error) {
	var resp Response[json.RawMessage]
	if err := b.http.Get(ctx, resourcePath(resource, "search"), opts.params(q), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Create creates a record. With a registered schema the payload is
// validated first and the normalized payload is sent.
func (b *BridgeService) Create(ctx context.Context, resource string, data any) (*Response[json.RawMessage], error) {
	body, err := b.prepare(resource, data, false)
	if err != nil {
		return nil, err
	}
	var resp Response[json.RawMessage]
	if err := b.http.Post(ctx, resourcePath(resource), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Update changes a record. With a registered schema the payload is
// validated against its partial form.
func (b *BridgeService) Update(ctx context.Context, resource, id string, data any) (*Response[json.RawMessage], error) {
	body, err := b.prepare(resource, data, true)
	if err != nil {
		return nil, err
	}
	var resp Response[json.RawMessage]
	if err := b.http.Put(ctx, resourcePath(resource, id), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete removes a record. The envelope data is {"id": id}.
func (b *BridgeService) Delete(ctx context.Context, resource, id string) (*Response[json.RawMessage], error) {
	var resp Response[json.RawMessage]
	if err := b.http.Delete(ctx, resourcePath(resource, id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (b *BridgeService) prepare(resource string, data any, partial bool) (any, error) {
	s := b.Schema(resource)
	if s == nil {
		return data, nil
	}
	if partial {
		s = s.Partial()
	}
	return s.Validate(data)
}

// DecodeResponse converts a raw envelope into a typed one.
//
// Example:
//
//	raw, err := client.Bridge().Query(ctx, "tasks", nil)
//	tasks, err := sdk.DecodeResponse[[]Task](raw)
func DecodeResponse[T any](raw *Response[json.RawMessage]) (*Response[T], error) {
	out := &Response[T]{
		Success: raw.Success,
		Error:   raw.Error,
		Details: raw.Details,
		Meta:    raw.Meta,
	}
	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		if err := json.Unmarshal(raw.Data, &out.Data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}
	return out, nil
}

// envelopeError turns a success=false envelope into an error.
func envelopeError[T any](resp *Response[T]) error {
	if resp.Success {
		return nil
	}
	err := NewErrorWithCode(ErrorTypeRequest, CodeRequestError, resp.Error, nil)
	if err.Message == "" {
		err.Message = "Request failed"
	}
	err.Details = resp.Details
	return err
}
