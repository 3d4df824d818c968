package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/teemow/inboxbuckets/internal/inbox"
	"github.com/teemow/inboxbuckets/internal/instrumentation"
	"github.com/teemow/inboxbuckets/internal/logging"
	"github.com/teemow/inboxbuckets/internal/ratelimit"
)

// Client-facing error messages.
const (
	msgNotConnected   = "Google account is not connected"
	msgAuthExpired    = "Gmail authorization expired. Please sign in again."
	msgBucketNotFound = "Bucket not found"
	msgLastBucket     = "Cannot delete the last category"
)

// Inbox is the inbox service surface served by the API.
type Inbox interface {
	LoadInbox(ctx context.Context, userID string) (*inbox.View, error)
	Reclassify(ctx context.Context, userID string) (*inbox.View, error)
	AddBucket(ctx context.Context, userID, name, description string) (*inbox.View, error)
	UpdateBucket(ctx context.Context, userID, bucketID, name, description string) (*inbox.View, error)
	DeleteBucket(ctx context.Context, userID, bucketID string) (*inbox.View, error)
	Search(ctx context.Context, userID, query string, limit int) (*inbox.SearchResponse, error)
	MessageDetail(ctx context.Context, userID, messageID string) (*inbox.MessageDetail, error)
	CheckNew(ctx context.Context, userID string, knownIDs []string) (*inbox.NewMessages, error)
	Disconnect(ctx context.Context, userID string) error
}

// APIConfig wires an API.
type APIConfig struct {
	Inbox Inbox

	// Limiter enforces Policies; nil disables rate limiting.
	Limiter ratelimit.Limiter
	// Policies defaults to ratelimit.DefaultPolicies.
	Policies map[string]ratelimit.Policy

	// UserHeader names a header set by a trusted proxy that carries the
	// user id. Empty means every request is DefaultUserID.
	UserHeader string

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// API serves the inbox JSON endpoints under /api.
type API struct {
	inbox      Inbox
	limiter    ratelimit.Limiter
	policies   map[string]ratelimit.Policy
	userHeader string
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	now        func() time.Time
}

// NewAPI creates the API handlers.
func NewAPI(cfg APIConfig) *API {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policies := cfg.Policies
	if policies == nil {
		policies = ratelimit.DefaultPolicies()
	}
	return &API{
		inbox:      cfg.Inbox,
		limiter:    cfg.Limiter,
		policies:   policies,
		userHeader: cfg.UserHeader,
		logger:     logger,
		metrics:    cfg.Metrics,
		now:        time.Now,
	}
}

// Register adds the API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/threads", a.rateLimited(ratelimit.RouteThreadsGet, a.handleThreads))
	mux.HandleFunc("POST /api/classify", a.rateLimited(ratelimit.RouteClassifyPost, a.handleClassify))
	mux.HandleFunc("POST /api/buckets", a.rateLimited(ratelimit.RouteBucketsPost, a.handleCreateBucket))
	mux.HandleFunc("PUT /api/buckets", a.rateLimited(ratelimit.RouteBucketsPost, a.handleUpdateBucket))
	mux.HandleFunc("DELETE /api/buckets", a.rateLimited(ratelimit.RouteBucketsPost, a.handleDeleteBucket))
	mux.HandleFunc("POST /api/chat/search", a.rateLimited(ratelimit.RouteChatSearchPost, a.handleSearch))
	mux.HandleFunc("POST /api/messages/detail", a.rateLimited(ratelimit.RouteMessageDetailPost, a.handleMessageDetail))
	mux.HandleFunc("POST /api/messages/check-new", a.rateLimited(ratelimit.RouteMessagesCheckNew, a.handleCheckNew))
	mux.HandleFunc("POST /api/logout", a.handleLogout)
}

// Wrap applies the middleware every API response goes through: CORS,
// user resolution and request metrics.
func (a *API) Wrap(next http.Handler) http.Handler {
	return cors(a.userHeader, userResolver(a.userHeader, instrument(a.logger, a.metrics, next)))
}

// Handler returns a handler serving only the API routes.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.Register(mux)
	return a.Wrap(mux)
}

func (a *API) handleThreads(w http.ResponseWriter, r *http.Request) {
	view, err := a.inbox.LoadInbox(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeServiceError(w, r, "inbox.load", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleClassify(w http.ResponseWriter, r *http.Request) {
	view, err := a.inbox.Reclassify(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeServiceError(w, r, "inbox.reclassify", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleCreateBucket(w http.ResponseWriter, r *http.Request) {
	var req bucketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeServiceError(w, r, "bucket.create", err)
		return
	}
	if err := req.validateCreate(); err != nil {
		a.writeServiceError(w, r, "bucket.create", err)
		return
	}
	view, err := a.inbox.AddBucket(r.Context(), UserID(r.Context()), req.Name, req.description())
	if err != nil {
		a.writeServiceError(w, r, "bucket.create", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleUpdateBucket(w http.ResponseWriter, r *http.Request) {
	var req bucketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeServiceError(w, r, "bucket.update", err)
		return
	}
	if err := req.validateUpdate(); err != nil {
		a.writeServiceError(w, r, "bucket.update", err)
		return
	}
	view, err := a.inbox.UpdateBucket(r.Context(), UserID(r.Context()), req.ID, req.Name, req.description())
	if err != nil {
		a.writeServiceError(w, r, "bucket.update", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleDeleteBucket(w http.ResponseWriter, r *http.Request) {
	var req bucketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeServiceError(w, r, "bucket.delete", err)
		return
	}
	if err := req.validateID(); err != nil {
		a.writeServiceError(w, r, "bucket.delete", err)
		return
	}
	view, err := a.inbox.DeleteBucket(r.Context(), UserID(r.Context()), req.ID)
	if err != nil {
		a.writeServiceError(w, r, "bucket.delete", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeServiceError(w, r, "inbox.search", err)
		return
	}
	query, limit, err := req.normalize()
	if err != nil {
		a.writeServiceError(w, r, "inbox.search", err)
		return
	}
	resp, err := a.inbox.Search(r.Context(), UserID(r.Context()), query, limit)
	if err != nil {
		a.writeServiceError(w, r, "inbox.search", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMessageDetail(w http.ResponseWriter, r *http.Request) {
	var req messageDetailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeServiceError(w, r, "message.detail", err)
		return
	}
	id, err := req.normalize()
	if err != nil {
		a.writeServiceError(w, r, "message.detail", err)
		return
	}
	detail, err := a.inbox.MessageDetail(r.Context(), UserID(r.Context()), id)
	if err != nil {
		a.writeServiceError(w, r, "message.detail", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// checkNewResponse adds the reconnect hint to inbox.NewMessages.
type checkNewResponse struct {
	inbox.NewMessages
	NeedsGoogleAuth bool   `json:"needsGoogleAuth,omitempty"`
	Error           string `json:"error,omitempty"`
}

// handleCheckNew answers 200 even when Google needs reconnecting, so polling
// clients can show a prompt instead of an error.
func (a *API) handleCheckNew(w http.ResponseWriter, r *http.Request) {
	var req checkNewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeServiceError(w, r, "message.check_new", err)
		return
	}
	if err := req.validate(); err != nil {
		a.writeServiceError(w, r, "message.check_new", err)
		return
	}

	res, err := a.inbox.CheckNew(r.Context(), UserID(r.Context()), req.KnownIDs)
	switch {
	case errors.Is(err, inbox.ErrNotConnected):
		writeJSON(w, http.StatusOK, checkNewResponse{
			NewMessages:     inbox.NewMessages{LatestIDs: []string{}},
			NeedsGoogleAuth: true,
		})
	case errors.Is(err, inbox.ErrAuthExpired):
		writeJSON(w, http.StatusOK, checkNewResponse{
			NewMessages:     inbox.NewMessages{LatestIDs: []string{}},
			NeedsGoogleAuth: true,
			Error:           msgAuthExpired,
		})
	case err != nil:
		a.writeServiceError(w, r, "message.check_new", err)
	default:
		writeJSON(w, http.StatusOK, checkNewResponse{NewMessages: *res})
	}
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.inbox.Disconnect(r.Context(), UserID(r.Context())); err != nil {
		a.writeServiceError(w, r, "session.logout", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type errorResponse struct {
	Error           string `json:"error"`
	NeedsGoogleAuth bool   `json:"needsGoogleAuth,omitempty"`
}

// writeServiceError maps domain errors to status codes and client messages.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case isValidationError(err), errors.Is(err, inbox.ErrInvalidBucket):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, inbox.ErrNotConnected):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgNotConnected, NeedsGoogleAuth: true})
	case errors.Is(err, inbox.ErrAuthExpired):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgAuthExpired, NeedsGoogleAuth: true})
	case errors.Is(err, inbox.ErrBucketNotFound):
		writeError(w, http.StatusNotFound, msgBucketNotFound)
	case errors.Is(err, inbox.ErrLastBucket):
		writeError(w, http.StatusConflict, msgLastBucket)
	default:
		a.logger.Error("request failed",
			logging.Operation(op), logging.UserHash(UserID(r.Context())), logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
