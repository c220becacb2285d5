package gateway

import (
	"strings"

	"github.com/hameed1198/api-gateway/internal/partner"
)

// APIPrefix is the path prefix for mediated backend routes.
const APIPrefix = "/api/"

// nestedRouteOverrides maps route shapes whose governing capability is
// not the first path segment. The key is "segment/*/subsegment"; a
// request like /api/posts/1/comments is governed by the comments
// capability because that is the resource it reads.
var nestedRouteOverrides = map[string]partner.Capability{
	"posts/*/comments": partner.CapabilityComments,
	"users/*/todos":    partner.CapabilityTodos,
	"users/*/albums":   partner.CapabilityAlbums,
	"albums/*/photos":  partner.CapabilityPhotos,
}

// ResolveRoute maps a gateway request path onto the capability that
// governs it and the path to request from the backend. It reports
// false for paths outside /api/ or naming no known capability.
func ResolveRoute(path string) (partner.Capability, string, bool) {
	if !strings.HasPrefix(path, APIPrefix) {
		return "", "", false
	}

	backendPath := "/" + strings.TrimPrefix(path, APIPrefix)
	trimmed := strings.Trim(strings.TrimPrefix(path, APIPrefix), "/")
	if trimmed == "" {
		return "", "", false
	}

	segments := strings.Split(trimmed, "/")

	if len(segments) == 3 {
		key := segments[0] + "/*/" + segments[2]
		if capability, ok := nestedRouteOverrides[key]; ok {
			return capability, backendPath, true
		}
	}

	capability, ok := partner.ParseCapability(segments[0])
	if !ok {
		return "", "", false
	}
	return capability, backendPath, true
}
