package mockapi

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// Record is one stored resource item. Its "id" field is always a string.
type Record map[string]any

// ID returns the record id.
func (r Record) ID() string {
	if r == nil || r["id"] == nil {
		return ""
	}
	return fmt.Sprint(r["id"])
}

// ListQuery selects a page of records.
type ListQuery struct {
	Page  int
	Limit int

	// OrderBy names the field to sort by; records sort by id when empty.
	OrderBy string
	Desc    bool

	// Search keeps records with a string field containing it, ignoring
	// case. Columns restricts the fields searched.
	Search  string
	Columns []string

	// Filters keep records whose field equals the value in its string
	// form.
	Filters map[string]string
}

// offset saturates at math.MaxInt instead of overflowing.
func (q ListQuery) offset() int {
	if q.Page <= 1 || q.Limit <= 0 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return math.MaxInt
	}
	return (q.Page - 1) * q.Limit
}

// RecordStore persists bridge records per resource.
type RecordStore interface {
	List(ctx context.Context, resource string, q ListQuery) ([]Record, int, error)
	Get(ctx context.Context, resource, id string) (Record, error)
	Create(ctx context.Context, resource string, rec Record) (Record, error)
	Update(ctx context.Context, resource, id string, patch Record) (Record, error)
	Delete(ctx context.Context, resource, id string) error
	Count(ctx context.Context, resource string) (int, error)
	Health(ctx context.Context) error
}

// prepareRecord copies rec and assigns an id when it has none.
func prepareRecord(rec Record) Record {
	out := make(Record, len(rec)+1)
	for k, v := range rec {
		out[k] = v
	}
	if out.ID() == "" {
		out["id"] = uuid.NewString()
	} else {
		out["id"] = out.ID()
	}
	return out
}

// MemoryRecordStore keeps records in process memory.
type MemoryRecordStore struct {
	mu        sync.RWMutex
	resources map[string]map[string]Record
}

// NewMemoryRecordStore creates an empty store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{resources: make(map[string]map[string]Record)}
}

// List implements RecordStore.
func (s *MemoryRecordStore) List(ctx context.Context, resource string, q ListQuery) ([]Record, int, error) {
	s.mu.RLock()
	matched := make([]Record, 0, len(s.resources[resource]))
	for _, rec := range s.resources[resource] {
		if matches(rec, q) {
			matched = append(matched, copyRecord(rec))
		}
	}
	s.mu.RUnlock()

	field := q.OrderBy
	if field == "" {
		field = "id"
	}
	sort.SliceStable(matched, func(i, j int) bool {
		c := compareValues(matched[i][field], matched[j][field])
		if c == 0 {
			return matched[i].ID() < matched[j].ID()
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})

	total := len(matched)
	start := q.offset()
	if start > total {
		start = total
	}
	end := total
	if q.Limit >= 0 && q.Limit < total-start {
		end = start + q.Limit
	}
	return matched[start:end], total, nil
}

// compareValues orders numbers, numeric strings included, by value and
// before anything else. Other values compare by their string form.
func compareValues(a, b any) int {
	x, aNum := numericValue(a)
	y, bNum := numericValue(b)
	switch {
	case aNum && bNum:
		return cmp.Compare(x, y)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func matches(rec Record, q ListQuery) bool {
	for k, v := range q.Filters {
		if fmt.Sprint(rec[k]) != v {
			return false
		}
	}
	if q.Search == "" {
		return true
	}

	term := strings.ToLower(q.Search)
	contains := func(v any) bool {
		s, ok := v.(string)
		return ok && strings.Contains(strings.ToLower(s), term)
	}
	if len(q.Columns) > 0 {
		for _, c := range q.Columns {
			if contains(rec[c]) {
				return true
			}
		}
		return false
	}
	for _, v := range rec {
		if contains(v) {
			return true
		}
	}
	return false
}

// Get implements RecordStore.
func (s *MemoryRecordStore) Get(ctx context.Context, resource, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.resources[resource][id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

// Create implements RecordStore.
func (s *MemoryRecordStore) Create(ctx context.Context, resource string, rec Record) (Record, error) {
	rec = prepareRecord(rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.resources[resource]
	if !ok {
		items = make(map[string]Record)
		s.resources[resource] = items
	}
	if _, exists := items[rec.ID()]; exists {
		return nil, ErrConflict
	}
	items[rec.ID()] = rec
	return copyRecord(rec), nil
}

// Update implements RecordStore. The id of a record never changes.
func (s *MemoryRecordStore) Update(ctx context.Context, resource, id string, patch Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.resources[resource][id]
	if !ok {
		return nil, ErrNotFound
	}
	for k, v := range patch {
		if k != "id" {
			rec[k] = v
		}
	}
	return copyRecord(rec), nil
}

// Delete implements RecordStore.
func (s *MemoryRecordStore) Delete(ctx context.Context, resource, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[resource][id]; !ok {
		return ErrNotFound
	}
	delete(s.resources[resource], id)
	return nil
}

// Count implements RecordStore.
func (s *MemoryRecordStore) Count(ctx context.Context, resource string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.resources[resource]), nil
}

// Health implements RecordStore.
func (s *MemoryRecordStore) Health(ctx context.Context) error {
	return nil
}

func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
