package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/hameed1198/api-gateway/internal/middleware"
)

// Error taxonomy values carried in every gateway-generated error body.
const (
	ErrorUnauthenticated     = "unauthenticated"
	ErrorForbidden           = "forbidden"
	ErrorNotFound            = "not_found"
	ErrorInvalidRequest      = "invalid_request"
	ErrorRateLimited         = "rate_limited"
	ErrorUpstreamUnavailable = "upstream_unavailable"
	ErrorInternal            = "internal"
)

// errorBody is the JSON shape of gateway-generated error responses.
// Backend failures pass the backend's own body through instead.
type errorBody struct {
	Error      string   `json:"error"`
	Detail     string   `json:"detail"`
	Permitted  []string `json:"permitted,omitempty"`
	RetryAfter int      `json:"retry_after,omitempty"`
}

// writeError writes a gateway error response.
func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set(middleware.HeaderContentType, middleware.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSON writes a non-error JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(middleware.HeaderContentType, middleware.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
