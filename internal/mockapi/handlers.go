package mockapi

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/pubflow/pubflow-go/internal/telemetry"
	"github.com/pubflow/pubflow-go/sdk"
)

var startTime = time.Now()

// Handler serves the auth and bridge endpoints.
type Handler struct {
	cfg      *Config
	store    RecordStore
	sessions *SessionManager
	metrics  *telemetry.Metrics
	logger   logrus.FieldLogger
}

// NewHandler creates a new handler instance
func NewHandler(cfg *Config, store RecordStore, sessions *SessionManager, metrics *telemetry.Metrics, logger logrus.FieldLogger) *Handler {
	return &Handler{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// Health handles GET /health
func (h *Handler) Health(c *fiber.Ctx) error {
	checks := map[string]string{"store": "healthy"}
	status := "healthy"
	if err := h.store.Health(c.UserContext()); err != nil {
		checks["store"] = "unhealthy: " + err.Error()
		status = "unhealthy"
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(&HealthResponse{
		Status:   status,
		Service:  "pubflow-mock",
		Version:  "1.0.0",
		Uptime:   time.Since(startTime).String(),
		Checks:   checks,
		Sessions: h.sessions.Len(),
	})
}

// Login handles POST /auth/login
func (h *Handler) Login(c *fiber.Ctx) error {
	var creds sdk.Credentials
	if err := c.BodyParser(&creds); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(Failure("Invalid request body"))
	}
	if creds.Email == "" && creds.UserName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(Failure("Email or userName is required"))
	}

	session, err := h.sessions.Login(creds)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"email":    creds.Email,
			"userName": creds.UserName,
		}).Info("Rejected login")
		return c.Status(fiber.StatusUnauthorized).JSON(Failure("Invalid credentials"))
	}

	expires, _ := session.Expiry()
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    session.SessionID,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
	})
	return c.JSON(Success(session))
}

// Logout handles POST /auth/logout
func (h *Handler) Logout(c *fiber.Ctx) error {
	if id := sessionID(c); id != "" {
		h.sessions.Logout(id)
	}
	c.ClearCookie(SessionCookie)
	return c.JSON(Success(nil))
}

// Validate handles POST /auth/validation. The session id comes from the
// body or, when absent, from the cookie.
func (h *Handler) Validate(c *fiber.Ctx) error {
	var body struct {
		SessionID string `json:"sessionId"`
	}
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(Failure("Invalid request body"))
		}
	}
	id := body.SessionID
	if id == "" {
		id = sessionID(c)
	}

	session, err := h.sessions.Validate(id)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(Failure("Session expired"))
	}
	return c.JSON(Success(session))
}

// RequireSession rejects requests without a valid session.
func (h *Handler) RequireSession(c *fiber.Ctx) error {
	if _, err := h.sessions.Validate(sessionID(c)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(Failure("Session expired"))
	}
	return c.Next()
}

func sessionID(c *fiber.Ctx) string {
	if id := c.Cookies(SessionCookie); id != "" {
		return id
	}
	if auth := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

var reservedParams = map[string]bool{
	"page":            true,
	"limit":           true,
	"orderBy":         true,
	"orderDir":        true,
	"include":         true,
	"include[]":       true,
	"q":               true,
	"searchColumns":   true,
	"searchColumns[]": true,
}

// parseListQuery reads paging, ordering, search and filter parameters.
// Parameters without a reserved meaning become equality filters.
func parseListQuery(args *fasthttp.Args) ListQuery {
	q := ListQuery{
		Page:    args.GetUintOrZero("page"),
		Limit:   args.GetUintOrZero("limit"),
		OrderBy: string(args.Peek("orderBy")),
		Desc:    strings.EqualFold(string(args.Peek("orderDir")), "desc"),
		Search:  string(args.Peek("q")),
		Filters: make(map[string]string),
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > math.MaxInt/MaxLimit {
		q.Page = math.MaxInt / MaxLimit
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	for _, col := range args.PeekMulti("searchColumns[]") {
		q.Columns = append(q.Columns, string(col))
	}
	args.VisitAll(func(key, value []byte) {
		if k := string(key); !reservedParams[k] {
			q.Filters[k] = string(value)
		}
	})
	return q
}

// List handles GET /bridge/:resource
func (h *Handler) List(c *fiber.Ctx) error {
	q := parseListQuery(c.Context().QueryArgs())
	return h.list(c, q)
}

// Search handles GET /bridge/:resource/search
func (h *Handler) Search(c *fiber.Ctx) error {
	q := parseListQuery(c.Context().QueryArgs())
	if q.Search == "" {
		return c.Status(fiber.StatusBadRequest).JSON(Failure("Search query is required"))
	}
	return h.list(c, q)
}

func (h *Handler) list(c *fiber.Ctx, q ListQuery) error {
	records, total, err := h.store.List(c.UserContext(), c.Params("resource"), q)
	if err != nil {
		return h.internalError(c, "Failed to list records", err)
	}
	return c.JSON(PageOf(records, q, total))
}

// Get handles GET /bridge/:resource/:id
func (h *Handler) Get(c *fiber.Ctx) error {
	rec, err := h.store.Get(c.UserContext(), c.Params("resource"), c.Params("id"))
	if err != nil {
		return h.storeError(c, "Failed to get record", err)
	}
	return c.JSON(Success(rec))
}

// Create handles POST /bridge/:resource
func (h *Handler) Create(c *fiber.Ctx) error {
	var rec Record
	if err := c.BodyParser(&rec); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(Failure("Invalid request body"))
	}

	resource := c.Params("resource")
	created, err := h.store.Create(c.UserContext(), resource, rec)
	if err != nil {
		return h.storeError(c, "Failed to create record", err)
	}
	h.recordCount(c, resource)
	return c.Status(fiber.StatusCreated).JSON(Success(created))
}

// Update handles PUT /bridge/:resource/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	var patch Record
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(Failure("Invalid request body"))
	}

	updated, err := h.store.Update(c.UserContext(), c.Params("resource"), c.Params("id"), patch)
	if err != nil {
		return h.storeError(c, "Failed to update record", err)
	}
	return c.JSON(Success(updated))
}

// Delete handles DELETE /bridge/:resource/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	resource, id := c.Params("resource"), c.Params("id")
	if err := h.store.Delete(c.UserContext(), resource, id); err != nil {
		return h.storeError(c, "Failed to delete record", err)
	}
	h.recordCount(c, resource)
	return c.JSON(Success(fiber.Map{"id": id}))
}

func (h *Handler) recordCount(c *fiber.Ctx, resource string) {
	n, err := h.store.Count(c.UserContext(), resource)
	if err != nil {
		h.logger.WithError(err).WithField("resource", resource).Warn("Failed to count records")
		return
	}
	h.metrics.SetRecordCount(resource, n)
}

func (h *Handler) storeError(c *fiber.Ctx, msg string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(Failure("Record not found"))
	case errors.Is(err, ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(Failure("Record already exists"))
	}
	return h.internalError(c, msg, err)
}

func (h *Handler) internalError(c *fiber.Ctx, msg string, err error) error {
	telemetry.WithContext(c.UserContext(), h.logger).WithError(err).WithFields(logrus.Fields{
		"resource": c.Params("resource"),
		"path":     c.Path(),
	}).Error(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(Failure(msg))
}
