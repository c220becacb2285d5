// Package gateway implements the request mediation pipeline: identity
// resolution, capability authorization, per-partner rate limiting,
// backend forwarding, and audit recording, in that fixed order.
package gateway

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/hameed1198/api-gateway/internal/audit"
	"github.com/hameed1198/api-gateway/internal/middleware"
	"github.com/hameed1198/api-gateway/internal/observability"
	"github.com/hameed1198/api-gateway/internal/partner"
	"github.com/hameed1198/api-gateway/internal/proxy"
	"github.com/hameed1198/api-gateway/internal/ratelimit"
	"github.com/hameed1198/api-gateway/internal/util"
)

// Gateway mediates partner requests to the backend.
type Gateway struct {
	store     *partner.Store
	limiter   ratelimit.Limiter
	auditLog  *audit.Log
	forwarder *proxy.Forwarder

	logger     observability.Logger
	metrics    *Metrics
	extractor  *middleware.ClientIPExtractor
	version    string
	backendURL string
	window     time.Duration
}

// Option is a functional option for the gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMetrics sets the gateway request metrics.
func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithClientIPExtractor sets the trusted-proxy aware IP extractor used
// for audit records.
func WithClientIPExtractor(e *middleware.ClientIPExtractor) Option {
	return func(g *Gateway) {
		g.extractor = e
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(version string) Option {
	return func(g *Gateway) {
		g.version = version
	}
}

// WithBackendURL sets the backend URL reported by /info.
func WithBackendURL(backendURL string) Option {
	return func(g *Gateway) {
		g.backendURL = backendURL
	}
}

// WithWindow sets the rate-limit window reported by /me and /info.
func WithWindow(window time.Duration) Option {
	return func(g *Gateway) {
		g.window = window
	}
}

// New creates a gateway from its collaborators.
func New(
	store *partner.Store,
	limiter ratelimit.Limiter,
	auditLog *audit.Log,
	forwarder *proxy.Forwarder,
	opts ...Option,
) *Gateway {
	g := &Gateway{
		store:     store,
		limiter:   limiter,
		auditLog:  auditLog,
		forwarder: forwarder,
		logger:    observability.NopLogger(),
		extractor: middleware.NewClientIPExtractor(nil),
		version:   "dev",
		window:    ratelimit.DefaultWindow,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Register installs the gateway's routes on the mux.
func (g *Gateway) Register(mux *http.ServeMux) {
	mux.HandleFunc(APIPrefix, g.handleMediate)
	mux.HandleFunc("/me", g.handleMe)
	mux.HandleFunc("/info", g.handleInfo)
	g.registerAdmin(mux)
}

// handleMediate runs the mediation pipeline for one backend request.
func (g *Gateway) handleMediate(w http.ResponseWriter, r *http.Request) {
	// Unknown routes never enter the pipeline and are not audited.
	capability, backendPath, ok := ResolveRoute(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, errorBody{
			Error:  ErrorNotFound,
			Detail: fmt.Sprintf("unknown route %s", r.URL.Path),
		})
		return
	}

	start := time.Now()
	rw := util.NewStatusCapturingResponseWriter(w)

	record := audit.Record{
		Method:     r.Method,
		Path:       r.URL.Path,
		Capability: capability.String(),
		ClientIP:   g.extractor.Extract(r),
		RequestID:  observability.RequestIDFromContext(r.Context()),
	}
	record.TraceID, record.SpanID = audit.TraceContext(r.Context())

	var errText string

	// Exactly one audit record per request entering the pipeline, on
	// every exit path including panics.
	defer func() {
		if p := recover(); p != nil {
			g.logger.Error("pipeline panic recovered",
				observability.String("path", r.URL.Path),
				observability.Any("error", p),
				observability.String("stack", string(debug.Stack())),
			)
			errText = fmt.Sprintf("panic: %v", p)
			if !rw.HeaderWritten {
				writeError(rw, http.StatusInternalServerError, errorBody{
					Error:  ErrorInternal,
					Detail: "internal server error",
				})
			}
		}

		record.Status = rw.StatusCode
		record.Duration = time.Since(start)
		record.Error = errText
		appended := g.auditLog.Append(record)
		g.metrics.RecordRequest(record.Capability, record.Status, record.Duration)

		g.logger.Debug("request mediated",
			observability.String("record_id", appended.ID),
			observability.String("partner_id", record.PartnerID),
			observability.String("capability", record.Capability),
			observability.Int("status", record.Status),
		)
	}()

	// Stage 1: identity resolution.
	token := r.Header.Get(middleware.HeaderXAPIKey)
	if token == "" {
		errText = "missing token"
		writeError(rw, http.StatusUnauthorized, errorBody{
			Error:  ErrorUnauthenticated,
			Detail: "missing token",
		})
		return
	}

	caller, err := g.store.Resolve(token)
	if err != nil {
		errText = "invalid token"
		writeError(rw, http.StatusUnauthorized, errorBody{
			Error:  ErrorUnauthenticated,
			Detail: "invalid token",
		})
		return
	}
	record.PartnerID = caller.ID
	record.PartnerName = caller.Name

	// Stage 2: activation and capability authorization.
	if !caller.Active() {
		errText = "partner is deactivated"
		writeError(rw, http.StatusForbidden, errorBody{
			Error:  ErrorForbidden,
			Detail: "partner is deactivated",
		})
		return
	}

	if !caller.CanAccess(capability) {
		permitted := capabilityStrings(caller.CapabilityList())
		errText = fmt.Sprintf("capability %s not permitted", capability)
		writeError(rw, http.StatusForbidden, errorBody{
			Error:     ErrorForbidden,
			Detail:    fmt.Sprintf("access to %s is not permitted", capability),
			Permitted: permitted,
		})
		return
	}

	// Stage 3: rate limiting.
	decision, err := g.limiter.Allow(r.Context(), caller.ID, caller.RateLimit)
	if err != nil {
		errText = "rate limiter failure"
		writeError(rw, http.StatusInternalServerError, errorBody{
			Error:  ErrorInternal,
			Detail: "internal server error",
		})
		return
	}

	rw.Header().Set(middleware.HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
	rw.Header().Set(middleware.HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))

	if !decision.Allowed {
		retryAfter := ceilSeconds(decision.RetryAfter)
		rw.Header().Set(middleware.HeaderRetryAfter, strconv.Itoa(retryAfter))
		rw.Header().Set(middleware.HeaderRateLimitReset, strconv.Itoa(retryAfter))
		errText = "rate limit exceeded"
		writeError(rw, http.StatusTooManyRequests, errorBody{
			Error:      ErrorRateLimited,
			Detail:     fmt.Sprintf("rate limit of %d requests per window exceeded", decision.Limit),
			RetryAfter: retryAfter,
		})
		return
	}

	// Stage 4: forwarding.
	resp, err := g.forwarder.Forward(r.Context(), r, backendPath)
	if err != nil {
		errText = err.Error()
		status := http.StatusBadGateway
		detail := "backend unavailable"
		if errors.Is(err, util.ErrTimeout) {
			status = http.StatusGatewayTimeout
			detail = "backend request timed out"
		}
		writeError(rw, status, errorBody{
			Error:  ErrorUpstreamUnavailable,
			Detail: detail,
		})
		return
	}

	// Pass the backend response through untouched, including non-2xx.
	header := rw.Header()
	for name, values := range resp.Header {
		for _, v := range values {
			header.Add(name, v)
		}
	}
	rw.WriteHeader(resp.Status)
	_, _ = rw.Write(resp.Body)
}

// meResponse is the authenticated partner's own view.
type meResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Active        bool     `json:"active"`
	Capabilities  []string `json:"capabilities"`
	RateLimit     int      `json:"rate_limit"`
	Remaining     int      `json:"remaining"`
	WindowSeconds int      `json:"window_seconds"`
}

// handleMe returns the calling partner's identity, capabilities, and
// current quota usage. It authenticates but is not rate limited.
func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := g.authenticate(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:            caller.ID,
		Name:          caller.Name,
		Active:        caller.Active(),
		Capabilities:  capabilityStrings(caller.CapabilityList()),
		RateLimit:     caller.RateLimit,
		Remaining:     g.limiter.Remaining(caller.ID, caller.RateLimit),
		WindowSeconds: int(g.window.Seconds()),
	})
}

// infoResponse describes the gateway itself.
type infoResponse struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Backend      string   `json:"backend"`
	Capabilities []string `json:"capabilities"`
}

// handleInfo returns public gateway metadata.
func (g *Gateway) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		Name:         "api-gateway",
		Version:      g.version,
		Backend:      g.backendURL,
		Capabilities: capabilityStrings(partner.Capabilities()),
	})
}

// authenticate resolves the caller from X-API-Key, writing the 401
// itself on failure.
func (g *Gateway) authenticate(w http.ResponseWriter, r *http.Request) (*partner.Partner, bool) {
	token := r.Header.Get(middleware.HeaderXAPIKey)
	if token == "" {
		writeError(w, http.StatusUnauthorized, errorBody{
			Error:  ErrorUnauthenticated,
			Detail: "missing token",
		})
		return nil, false
	}

	caller, err := g.store.Resolve(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errorBody{
			Error:  ErrorUnauthenticated,
			Detail: "invalid token",
		})
		return nil, false
	}
	return caller, true
}

// capabilityStrings converts capabilities to their string form.
func capabilityStrings(caps []partner.Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = c.String()
	}
	return out
}

// ceilSeconds rounds a duration up to whole seconds, never below 1.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}
