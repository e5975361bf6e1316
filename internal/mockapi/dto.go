package mockapi

import (
	"github.com/pubflow/pubflow-go/sdk"
)

// SessionCookie carries the session id between requests.
const SessionCookie = "session_id"

// Pagination defaults
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Envelope is the response body of every endpoint.
type Envelope = sdk.Response[any]

// Success wraps data in a success envelope.
func Success(data any) *Envelope {
	return &Envelope{Success: true, Data: data}
}

// Failure builds a failed envelope.
func Failure(msg string) *Envelope {
	return &Envelope{Success: false, Error: msg}
}

// PageOf builds a list envelope for one page of a total.
func PageOf(records []Record, q ListQuery, total int) *Envelope {
	if records == nil {
		records = []Record{}
	}
	totalPages := (total + q.Limit - 1) / q.Limit
	return &Envelope{
		Success: true,
		Data:    records,
		Meta: &sdk.Meta{
			Page:       q.Page,
			Limit:      q.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasMore:    q.Page < totalPages,
		},
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Version  string            `json:"version"`
	Uptime   string            `json:"uptime"`
	Checks   map[string]string `json:"checks"`
	Sessions int               `json:"sessions"`
}
