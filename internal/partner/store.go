package partner

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Store errors.
var (
	// ErrPartnerNotFound is returned when no partner matches a token or ID.
	ErrPartnerNotFound = errors.New("partner not found")

	// ErrDuplicateID is returned when creating a partner with an ID that
	// is already registered.
	ErrDuplicateID = errors.New("partner id already exists")

	// ErrDuplicateToken is returned when creating a partner with a token
	// that is already registered to another partner.
	ErrDuplicateToken = errors.New("partner token already exists")

	// ErrInvalidCapability is returned when a seed names a capability
	// outside the closed set.
	ErrInvalidCapability = errors.New("invalid capability")
)

// Seed describes a partner record to register at startup. An empty
// Token requests a generated one.
type Seed struct {
	ID           string
	Name         string
	Token        string
	Capabilities []Capability
	RateLimit    int
}

// DefaultSeeds returns the built-in demo partners used when no partners
// are configured.
func DefaultSeeds() []Seed {
	return []Seed{
		{
			ID:           "partner-001",
			Name:         "Premium Partner Inc.",
			Token:        "premium-key-001",
			Capabilities: Capabilities(),
			RateLimit:    100,
		},
		{
			ID:           "partner-002",
			Name:         "Basic Partner Ltd.",
			Token:        "basic-key-002",
			Capabilities: []Capability{CapabilityUsers, CapabilityPosts},
			RateLimit:    30,
		},
		{
			ID:           "partner-003",
			Name:         "Social Analytics Co.",
			Token:        "social-key-003",
			Capabilities: []Capability{CapabilityPosts, CapabilityComments},
			RateLimit:    50,
		},
	}
}

// Store is the in-memory identity store. Request-path lookups take the
// read lock only; the administrative create path is the single guarded
// insertion point, so a partner is never visible half-constructed.
type Store struct {
	mu          sync.RWMutex
	byID        map[string]*Partner
	byTokenHash map[string]*Partner
}

// NewStore creates an empty identity store.
func NewStore() *Store {
	return &Store{
		byID:        make(map[string]*Partner),
		byTokenHash: make(map[string]*Partner),
	}
}

// NewSeededStore creates a store populated from the given seeds. When
// seeds is empty, the built-in demo partners are registered.
func NewSeededStore(seeds []Seed) (*Store, error) {
	if len(seeds) == 0 {
		seeds = DefaultSeeds()
	}

	s := NewStore()
	for _, seed := range seeds {
		if _, _, err := s.Create(seed); err != nil {
			return nil, fmt.Errorf("seeding partner %s: %w", seed.ID, err)
		}
	}
	return s, nil
}

// hashToken derives the index key for a token. Tokens are stored hashed
// so a memory dump of the store does not reveal the shared secrets.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generateToken produces a random partner token.
func generateToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "key-" + hex.EncodeToString(buf)
}

// Create registers a new partner. It is the only write path into the
// store. The returned string is the partner's token, which is the only
// time a generated token is visible.
func (s *Store) Create(seed Seed) (*Partner, string, error) {
	if seed.ID == "" {
		return nil, "", errors.New("partner id must not be empty")
	}
	if seed.RateLimit < 0 {
		return nil, "", errors.New("partner rate limit must not be negative")
	}
	for _, c := range seed.Capabilities {
		if !c.IsValid() {
			return nil, "", fmt.Errorf("%w: %q", ErrInvalidCapability, c)
		}
	}

	token := seed.Token
	if token == "" {
		token = generateToken()
	}
	tokenHash := hashToken(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[seed.ID]; exists {
		return nil, "", ErrDuplicateID
	}
	if _, exists := s.byTokenHash[tokenHash]; exists {
		return nil, "", ErrDuplicateToken
	}

	p := newPartner(seed.ID, seed.Name, seed.Capabilities, seed.RateLimit)
	s.byID[seed.ID] = p
	// Token index is updated last so a concurrent Resolve either misses
	// entirely or sees the fully built record.
	s.byTokenHash[tokenHash] = p

	return p, token, nil
}

// Resolve looks up a partner by its token. The match is exact and
// case-sensitive. Any input that does not match, including the empty
// string, yields ErrPartnerNotFound.
func (s *Store) Resolve(token string) (*Partner, error) {
	if token == "" {
		return nil, ErrPartnerNotFound
	}

	tokenHash := hashToken(token)

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byTokenHash[tokenHash]
	if !ok {
		return nil, ErrPartnerNotFound
	}
	return p, nil
}

// GetByID looks up a partner by its ID.
func (s *Store) GetByID(id string) (*Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, ErrPartnerNotFound
	}
	return p, nil
}

// Deactivate clears a partner's activation flag. The record itself is
// never deleted.
func (s *Store) Deactivate(id string) error {
	s.mu.RLock()
	p, ok := s.byID[id]
	s.mu.RUnlock()

	if !ok {
		return ErrPartnerNotFound
	}
	p.active.Store(false)
	return nil
}

// List returns all registered partners sorted by ID. Tokens are not
// part of the Partner record, so the listing is inherently redacted.
func (s *Store) List() []*Partner {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Partner, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered partners.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
