package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pollhub.org/internal/audit"
	"pollhub.org/internal/auth"
	"pollhub.org/internal/comments"
	"pollhub.org/internal/moderation"
	"pollhub.org/internal/obs"
	"pollhub.org/internal/stream"
	"pollhub.org/internal/votes"
)

const serviceName = "pollhub-api"

// readinessChecker reports whether backing stores are reachable.
type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	Pinger interface {
		Ping(ctx context.Context) error
	}
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Pinger == nil {
		return nil
	}
	return rp.Pinger.Ping(ctx)
}

// Deps are the collaborators the HTTP layer dispatches to. Tokens, Gate and
// the three content services are required.
type Deps struct {
	Tokens     *auth.TokenManager
	Gate       *auth.Gate
	RBAC       *auth.RBACService
	Moderation *moderation.Service
	Comments   *comments.Service
	Votes      *votes.Service
	AuditLog   audit.Reader
	Events     *stream.Stream
	Ready      readinessChecker
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	deps    Deps
	version string
	log     logrus.FieldLogger

	rateBurst  int
	ratePerSec float64
}

// Option configures API.
type Option func(*API)

// WithRateLimit sets the per-client token bucket applied to mutations.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		if perSecond > 0 && burst > 0 {
			a.ratePerSec, a.rateBurst = perSecond, burst
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

func New(deps Deps, version string, opts ...Option) (*API, error) {
	if deps.Tokens == nil || deps.Gate == nil {
		return nil, errors.New("httpapi: token manager and profile gate are required")
	}
	if deps.Moderation == nil || deps.Comments == nil || deps.Votes == nil {
		return nil, errors.New("httpapi: moderation, comments and votes services are required")
	}
	if deps.Ready == nil {
		deps.Ready = ReadyProbe{}
	}
	a := &API{
		mux:        http.NewServeMux(),
		deps:       deps,
		version:    version,
		log:        obs.Logger().WithField("component", "httpapi"),
		rateBurst:  40,
		ratePerSec: 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	mutations := NewRateLimiter(a.rateBurst, a.ratePerSec)
	limited := func(h http.HandlerFunc) http.Handler {
		return mutations.Wrap(h)
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("GET /v1/me", a.handleMe)

	a.mux.HandleFunc("GET /v1/polls/{id}/comments", a.handleListComments)
	a.mux.Handle("POST /v1/polls/{id}/comments", limited(a.handleCreateComment))
	a.mux.Handle("PATCH /v1/comments/{id}", limited(a.handleUpdateComment))
	a.mux.Handle("DELETE /v1/comments/{id}", limited(a.handleDeleteComment))

	a.mux.Handle("POST /v1/polls/{id}/votes", limited(a.handleCastVote))

	a.mux.Handle("POST /v1/polls/{id}/moderation", limited(a.moderate(moderation.KindPoll)))
	a.mux.Handle("POST /v1/comments/{id}/moderation", limited(a.moderate(moderation.KindComment)))
	a.mux.HandleFunc("GET /v1/moderation/queue", a.handleQueue)
	a.mux.HandleFunc("GET /v1/moderation/stats", a.handleStats)
	a.mux.HandleFunc("GET /v1/moderation/stream", a.handleStream)

	a.mux.HandleFunc("GET /v1/identities", a.handleListIdentities)
	a.mux.HandleFunc("GET /v1/identities/stats", a.handleIdentityStats)
	a.mux.Handle("PUT /v1/identities/{id}/role", limited(a.handleChangeRole))
	a.mux.Handle("POST /v1/identities/{id}/suspension", limited(a.handleSuspend))
	a.mux.Handle("DELETE /v1/identities/{id}/suspension", limited(a.handleUnsuspend))

	a.mux.HandleFunc("GET /v1/audit", a.handleAudit)
}

// Handler returns the full middleware chain around the router.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.Authenticate(h)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		a.log.WithError(err).Warn("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

type meResponse struct {
	Authenticated bool              `json:"authenticated"`
	Profile       *auth.Profile     `json:"profile,omitempty"`
	Name          string            `json:"name,omitempty"`
	Permissions   []auth.Permission `json:"permissions"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())
	resp := meResponse{
		Authenticated: actor != nil,
		Profile:       actor,
		Permissions:   auth.EffectivePermissions(actor).Sorted(),
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		resp.Name = claims.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())
	d := auth.Authorize(actor, auth.ActionViewAnalytics, nil)
	obs.RecordDecision(string(auth.ActionViewAnalytics), d.Allowed, d.Reason)
	if err := d.Err(); err != nil {
		a.handleError(w, r, err)
		return
	}
	if a.deps.AuditLog == nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}
	q := r.URL.Query()
	limit, err := parseIntParam("limit", q.Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	events, err := a.deps.AuditLog.Query(r.Context(), audit.Filter{
		Type:       q.Get("type"),
		ActorID:    q.Get("actor_id"),
		ResourceID: q.Get("resource_id"),
		Limit:      limit,
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleError maps domain errors to HTTP responses. Storage failures get a
// generic message and are logged.
func (a *API) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *auth.DeniedError
	switch {
	case errors.As(err, &denied):
		code := http.StatusForbidden
		if auth.ActorFromContext(r.Context()) == nil {
			code = http.StatusUnauthorized
			w.Header().Set("WWW-Authenticate", `Bearer realm="pollhub"`)
		}
		writeError(w, r, code, denied.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, comments.ErrInvalidInput),
		errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, moderation.ErrInvalidAction),
		errors.Is(err, votes.ErrInvalidArguments):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, comments.ErrNotFound),
		errors.Is(err, moderation.ErrNotFound),
		errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "not available")
	case errors.Is(err, votes.ErrAlreadyVoted):
		writeError(w, r, http.StatusConflict, "already voted on this poll")
	case errors.Is(err, comments.ErrPollUnavailable),
		errors.Is(err, votes.ErrPollUnavailable),
		errors.Is(err, votes.ErrOptionNotInPoll):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		a.log.WithError(err).WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": RequestIDFromContext(r.Context()),
		}).Error("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parseIntParam(name, raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New(name + " must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}
