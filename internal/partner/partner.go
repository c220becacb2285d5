package partner

import (
	"sync/atomic"
	"time"
)

// Partner represents an external caller entity with a shared-secret
// token, a permitted capability set, and a request quota. The capability
// set and quota are fixed at creation; only the activation flag is
// mutable afterwards.
type Partner struct {
	// ID is the immutable unique identifier of the partner.
	ID string

	// Name is the display name of the partner.
	Name string

	// RateLimit is the maximum number of admitted requests per rolling
	// rate-limit window.
	RateLimit int

	// CreatedAt is when the partner record was created.
	CreatedAt time.Time

	capabilities map[Capability]struct{}
	active       atomic.Bool
}

// newPartner builds a partner record with the activation flag set.
func newPartner(id, name string, caps []Capability, rateLimit int) *Partner {
	p := &Partner{
		ID:           id,
		Name:         name,
		RateLimit:    rateLimit,
		CreatedAt:    time.Now(),
		capabilities: make(map[Capability]struct{}, len(caps)),
	}
	for _, c := range caps {
		p.capabilities[c] = struct{}{}
	}
	p.active.Store(true)
	return p
}

// Active reports whether the partner is currently activated.
func (p *Partner) Active() bool {
	return p.active.Load()
}

// CanAccess reports whether the partner is active and the capability is
// a member of its permitted set.
func (p *Partner) CanAccess(c Capability) bool {
	if !p.active.Load() {
		return false
	}
	_, ok := p.capabilities[c]
	return ok
}

// HasCapability reports membership in the permitted set regardless of
// the activation flag.
func (p *Partner) HasCapability(c Capability) bool {
	_, ok := p.capabilities[c]
	return ok
}

// CapabilityList returns the permitted capability set in canonical order.
func (p *Partner) CapabilityList() []Capability {
	out := make([]Capability, 0, len(p.capabilities))
	for _, c := range allCapabilities {
		if _, ok := p.capabilities[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
