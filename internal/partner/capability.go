// Package partner provides the identity store for external partners:
// token resolution, capability checks, and quota configuration.
package partner

// Capability identifies a backend resource category a partner may access.
type Capability string

// The closed set of backend resource categories.
const (
	CapabilityUsers    Capability = "users"
	CapabilityPosts    Capability = "posts"
	CapabilityComments Capability = "comments"
	CapabilityTodos    Capability = "todos"
	CapabilityAlbums   Capability = "albums"
	CapabilityPhotos   Capability = "photos"
)

// allCapabilities lists every capability in canonical order.
var allCapabilities = []Capability{
	CapabilityUsers,
	CapabilityPosts,
	CapabilityComments,
	CapabilityTodos,
	CapabilityAlbums,
	CapabilityPhotos,
}

// Capabilities returns all known capabilities in canonical order.
func Capabilities() []Capability {
	out := make([]Capability, len(allCapabilities))
	copy(out, allCapabilities)
	return out
}

// ParseCapability maps a string onto a known capability.
func ParseCapability(s string) (Capability, bool) {
	c := Capability(s)
	return c, c.IsValid()
}

// IsValid reports whether the capability is a member of the closed set.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityUsers, CapabilityPosts, CapabilityComments,
		CapabilityTodos, CapabilityAlbums, CapabilityPhotos:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (c Capability) String() string {
	return string(c)
}
