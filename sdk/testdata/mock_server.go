package testdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockServer is a PubFlow backend for tests. It serves /auth and /bridge
// from memory and records every request it receives.
type MockServer struct {
	*httptest.Server
	mu           sync.RWMutex
	handlers     map[string]HandlerFunc
	requestCount atomic.Int32
	requests     []RecordedRequest

	dataMu   sync.Mutex
	records  map[string][]map[string]any
	sessions map[string]map[string]any
	nextID   atomic.Int64
}

// HandlerFunc is a custom handler function type
type HandlerFunc func(w http.ResponseWriter, r *http.Request) (int, interface{})

// RecordedRequest stores information about a received request
type RecordedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    []byte
	Time    time.Time
}

// JSON decodes the recorded body.
func (r RecordedRequest) JSON() map[string]any {
	var out map[string]any
	_ = json.Unmarshal(r.Body, &out)
	return out
}

// NewMockServer creates a new mock server
func NewMockServer() *MockServer {
	ms := &MockServer{
		handlers: make(map[string]HandlerFunc),
		requests: make([]RecordedRequest, 0),
		records:  make(map[string][]map[string]any),
		sessions: make(map[string]map[string]any),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", ms.handleRequest)

	ms.Server = httptest.NewServer(mux)
	ms.setupDefaultHandlers()

	return ms
}

// setupDefaultHandlers sets up the auth and bridge endpoints
func (ms *MockServer) setupDefaultHandlers() {
	ms.RegisterHandler("GET /health", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"status": "healthy"}
	})

	ms.RegisterHandler("POST /auth/login", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		var creds struct {
			Email    string `json:"email"`
			UserName string `json:"userName"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&creds)

		user, ok := findUser(creds.Email, creds.UserName)
		if !ok || creds.Password != TestPassword {
			return http.StatusUnauthorized, Failure("Invalid credentials")
		}
		session := ms.newSession(user)
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: session["sessionId"].(string), Path: "/"})
		return http.StatusOK, Success(session)
	})

	ms.RegisterHandler("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		if c, err := r.Cookie(SessionCookie); err == nil {
			ms.dataMu.Lock()
			delete(ms.sessions, c.Value)
			ms.dataMu.Unlock()
		}
		return http.StatusOK, map[string]any{"success": true}
	})

	ms.RegisterHandler("POST /auth/validation", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		var body struct {
			SessionID string `json:"sessionId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		id := body.SessionID
		if id == "" {
			if c, err := r.Cookie(SessionCookie); err == nil {
				id = c.Value
			}
		}

		ms.dataMu.Lock()
		session, ok := ms.sessions[id]
		ms.dataMu.Unlock()
		if !ok {
			return http.StatusUnauthorized, Failure("Session expired")
		}
		return http.StatusOK, Success(session)
	})

	ms.RegisterHandler("GET /bridge/", ms.handleBridgeRead)
	ms.RegisterHandler("POST /bridge/", ms.handleBridgeCreate)
	ms.RegisterHandler("PUT /bridge/", ms.handleBridgeUpdate)
	ms.RegisterHandler("DELETE /bridge/", ms.handleBridgeDelete)
}

func findUser(email, userName string) (map[string]any, bool) {
	for _, u := range Users {
		if (email != "" && u["email"] == email) || (userName != "" && u["userName"] == userName) {
			return u, true
		}
	}
	return nil, false
}

func (ms *MockServer) newSession(user map[string]any) map[string]any {
	id := fmt.Sprintf("sess-%d", ms.nextID.Add(1))
	now := time.Now().UTC()
	session := map[string]any{
		"sessionId":  id,
		"user":       user,
		"expiresAt":  now.Add(time.Hour).Format(time.RFC3339),
		"lastUsedAt": now.Format(time.RFC3339),
	}
	ms.dataMu.Lock()
	ms.sessions[id] = session
	ms.dataMu.Unlock()
	return session
}

// AddSession registers a session the validation endpoint accepts.
func (ms *MockServer) AddSession(id string, user map[string]any) {
	ms.dataMu.Lock()
	defer ms.dataMu.Unlock()
	ms.sessions[id] = map[string]any{
		"sessionId":  id,
		"user":       user,
		"expiresAt":  time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
		"lastUsedAt": time.Now().UTC().Format(time.RFC3339),
	}
}

// Seed replaces the records of resource.
func (ms *MockServer) Seed(resource string, records ...map[string]any) {
	ms.dataMu.Lock()
	defer ms.dataMu.Unlock()
	ms.records[resource] = append([]map[string]any(nil), records...)
}

// Records returns the stored records of resource.
func (ms *MockServer) Records(resource string) []map[string]any {
	ms.dataMu.Lock()
	defer ms.dataMu.Unlock()
	return append([]map[string]any(nil), ms.records[resource]...)
}

// bridgePath splits /bridge/<resource>[/<id>].
func bridgePath(path string) (resource, id string) {
	parts := strings.SplitN(strings.TrimPrefix(path, "/bridge/"), "/", 2)
	resource = parts[0]
	if len(parts) == 2 {
		id = parts[1]
	}
	return resource, id
}

func (ms *MockServer) handleBridgeRead(w http.ResponseWriter, r *http.Request) (int, interface{}) {
	resource, id := bridgePath(r.URL.Path)
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 10
	}

	ms.dataMu.Lock()
	all := append([]map[string]any(nil), ms.records[resource]...)
	ms.dataMu.Unlock()

	if id == "search" {
		term := strings.ToLower(q.Get("q"))
		matched := all[:0:0]
		for _, rec := range all {
			for _, v := range rec {
				if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), term) {
					matched = append(matched, rec)
					break
				}
			}
		}
		all = matched
	} else if id != "" {
		for _, rec := range all {
			if fmt.Sprint(rec["id"]) == id {
				return http.StatusOK, Success(rec)
			}
		}
		return http.StatusNotFound, Failure("Record not found")
	}

	sort.SliceStable(all, func(i, j int) bool {
		return fmt.Sprint(all[i]["id"]) < fmt.Sprint(all[j]["id"])
	})
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return http.StatusOK, Page(all[start:end], page, limit, len(all))
}

func (ms *MockServer) handleBridgeCreate(w http.ResponseWriter, r *http.Request) (int, interface{}) {
	resource, _ := bridgePath(r.URL.Path)
	var rec map[string]any
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		return http.StatusBadRequest, Failure("Invalid JSON")
	}
	if _, ok := rec["id"]; !ok {
		rec["id"] = fmt.Sprintf("%s-%d", resource, ms.nextID.Add(1))
	}

	ms.dataMu.Lock()
	ms.records[resource] = append(ms.records[resource], rec)
	ms.dataMu.Unlock()
	return http.StatusCreated, Success(rec)
}

func (ms *MockServer) handleBridgeUpdate(w http.ResponseWriter, r *http.Request) (int, interface{}) {
	resource, id := bridgePath(r.URL.Path)
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		return http.StatusBadRequest, Failure("Invalid JSON")
	}

	ms.dataMu.Lock()
	defer ms.dataMu.Unlock()
	for _, rec := range ms.records[resource] {
		if fmt.Sprint(rec["id"]) == id {
			for k, v := range patch {
				rec[k] = v
			}
			return http.StatusOK, Success(rec)
		}
	}
	return http.StatusNotFound, Failure("Record not found")
}

func (ms *MockServer) handleBridgeDelete(w http.ResponseWriter, r *http.Request) (int, interface{}) {
	resource, id := bridgePath(r.URL.Path)

	ms.dataMu.Lock()
	defer ms.dataMu.Unlock()
	recs := ms.records[resource]
	for i, rec := range recs {
		if fmt.Sprint(rec["id"]) == id {
			ms.records[resource] = append(recs[:i:i], recs[i+1:]...)
			return http.StatusOK, Success(map[string]any{"id": id})
		}
	}
	return http.StatusNotFound, Failure("Record not found")
}

// RegisterHandler registers a custom handler for a "METHOD /path" pattern.
// A pattern ending in "/" matches every path below it.
func (ms *MockServer) RegisterHandler(pattern string, handler HandlerFunc) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.handlers[pattern] = handler
}

// handleRequest routes requests to appropriate handlers
func (ms *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	body := make([]byte, 0)
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	ms.mu.Lock()
	ms.requests = append(ms.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: r.Header.Clone(),
		Body:    body,
		Time:    time.Now(),
	})
	ms.mu.Unlock()

	ms.requestCount.Add(1)

	// Exact match first, then the longest prefix pattern
	pattern := r.Method + " " + r.URL.Path
	ms.mu.RLock()
	handler, exact := ms.handlers[pattern]
	if !exact {
		best := ""
		for p, h := range ms.handlers {
			if strings.HasSuffix(p, "/") && strings.HasPrefix(pattern, p) && len(p) > len(best) {
				best, handler = p, h
			}
		}
	}
	ms.mu.RUnlock()

	if handler == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(Failure("Not found"))
		return
	}

	status, response := handler(w, r)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if response != nil {
		json.NewEncoder(w).Encode(response)
	}
}

// GetRequestCount returns the total number of requests received
func (ms *MockServer) GetRequestCount() int {
	return int(ms.requestCount.Load())
}

// GetRequests returns all recorded requests
func (ms *MockServer) GetRequests() []RecordedRequest {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	result := make([]RecordedRequest, len(ms.requests))
	copy(result, ms.requests)
	return result
}

// LastRequest returns the most recent request.
func (ms *MockServer) LastRequest() (RecordedRequest, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if len(ms.requests) == 0 {
		return RecordedRequest{}, false
	}
	return ms.requests[len(ms.requests)-1], true
}

// Reset clears all recorded requests
func (ms *MockServer) Reset() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.requestCount.Store(0)
	ms.requests = ms.requests[:0]
}

// WithErrorResponse sets up a handler that returns an error envelope
func (ms *MockServer) WithErrorResponse(pattern string, statusCode int, errorMsg string) {
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return statusCode, Failure(errorMsg)
	})
}

// WithJSONResponse sets up a handler that always returns body.
func (ms *MockServer) WithJSONResponse(pattern string, statusCode int, body interface{}) {
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return statusCode, body
	})
}

// WithDelayedResponse sets up a handler that delays before responding
func (ms *MockServer) WithDelayedResponse(pattern string, delay time.Duration, handler HandlerFunc) {
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
		}
		return handler(w, r)
	})
}

// WithRetryResponse sets up a handler that fails N times before succeeding
func (ms *MockServer) WithRetryResponse(pattern string, failCount int, failStatus int) {
	attempts := atomic.Int32{}
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		current := int(attempts.Add(1))
		if current <= failCount {
			return failStatus, Failure("Temporary failure")
		}
		return http.StatusOK, Success(map[string]string{"status": "ok"})
	})
}

// Close shuts down the mock server
func (ms *MockServer) Close() {
	if ms.Server != nil {
		ms.Server.Close()
	}
}
