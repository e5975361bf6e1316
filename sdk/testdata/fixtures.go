package testdata

import (
	"fmt"
	"time"
)

// Credentials accepted by the mock server.
const (
	TestPassword  = "secret"
	SessionCookie = "session_id"
)

// Users are the accounts the mock server knows. Every account logs in
// with TestPassword.
var Users = []map[string]any{
	{
		"id":       "u-1",
		"email":    "ada@example.com",
		"userName": "ada",
		"name":     "Ada Lovelace",
		"userType": "admin",
		"roles":    []string{"admin", "editor"},
		"theme":    "dark",
	},
	{
		"id":       "u-2",
		"email":    "grace@example.com",
		"userName": "grace",
		"name":     "Grace Hopper",
		"userType": "user",
	},
}

// Admin and Member are shortcuts into Users.
var (
	Admin  = Users[0]
	Member = Users[1]
)

// SessionJSON builds the stored form of a session for user, expiring at
// expiresAt.
func SessionJSON(id string, user map[string]any, expiresAt time.Time) string {
	return fmt.Sprintf(`{"sessionId":%q,"user":{"id":%q,"email":%q,"name":%q,"userType":%q},"expiresAt":%q}`,
		id, user["id"], user["email"], user["name"], user["userType"], expiresAt.UTC().Format(time.RFC3339))
}

// Success wraps data in a success envelope.
func Success(data any) map[string]any {
	return map[string]any{"success": true, "data": data}
}

// Failure builds a failed envelope.
func Failure(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

// Page builds a paginated list envelope.
func Page(items []map[string]any, page, limit, total int) map[string]any {
	if items == nil {
		items = []map[string]any{}
	}
	totalPages := (total + limit - 1) / limit
	return map[string]any{
		"success": true,
		"data":    items,
		"meta": map[string]any{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": totalPages,
			"hasMore":    page < totalPages,
		},
	}
}

// Posts generates n post records with ids post-01 .. post-n.
func Posts(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{
			"id":    fmt.Sprintf("post-%02d", i+1),
			"title": fmt.Sprintf("Post number %d", i+1),
			"draft": i%2 == 0,
		}
	}
	return out
}
