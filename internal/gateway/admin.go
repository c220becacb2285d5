package gateway

import (
	"net/http"
	"strconv"
	"time"
)

// DefaultLogListLimit caps /admin/logs responses when no limit is given.
const DefaultLogListLimit = 100

// registerAdmin installs the read-only administrative surface.
func (g *Gateway) registerAdmin(mux *http.ServeMux) {
	mux.HandleFunc("/admin/partners", g.requireAuth(g.handleAdminPartners))
	mux.HandleFunc("/admin/logs", g.requireAuth(g.handleAdminLogs))
	mux.HandleFunc("/admin/stats", g.requireAuth(g.handleAdminStats))
}

// requireAuth wraps an admin handler with token authentication.
func (g *Gateway) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := g.authenticate(w, r); !ok {
			return
		}
		next(w, r)
	}
}

// partnerView is the redacted admin representation of a partner.
// Tokens are never stored in recoverable form, so there is nothing to
// leak here by construction.
type partnerView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Active       bool      `json:"active"`
	Capabilities []string  `json:"capabilities"`
	RateLimit    int       `json:"rate_limit"`
	CreatedAt    time.Time `json:"created_at"`
}

// handleAdminPartners lists all registered partners.
func (g *Gateway) handleAdminPartners(w http.ResponseWriter, r *http.Request) {
	partners := g.store.List()
	views := make([]partnerView, len(partners))
	for i, p := range partners {
		views[i] = partnerView{
			ID:           p.ID,
			Name:         p.Name,
			Active:       p.Active(),
			Capabilities: capabilityStrings(p.CapabilityList()),
			RateLimit:    p.RateLimit,
			CreatedAt:    p.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"partners": views,
		"total":    len(views),
	})
}

// handleAdminLogs returns the most recent audit records, newest first.
func (g *Gateway) handleAdminLogs(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLogListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, errorBody{
				Error:  ErrorInvalidRequest,
				Detail: "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	records := g.auditLog.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  records,
		"count": len(records),
	})
}

// handleAdminStats returns aggregate statistics over retained records.
func (g *Gateway) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.auditLog.Stats())
}
