package cookies

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flover-luffy/newboy/models"
)

var (
	ErrProviderRequired = errors.New("provider id is required")
	ErrNoCookies        = errors.New("credential carries no cookies")
	ErrNotFound         = errors.New("no credential stored for provider")
	ErrExpired          = errors.New("credential for provider has expired")
)

// Store keeps per-provider authentication material in memory. Credentials
// arrive already decoded from configuration or the admin API; the store never
// touches the network or the filesystem. Reads are frequent, writes rare, and
// last-writer-wins on concurrent updates.
type Store struct {
	mu    sync.RWMutex
	creds map[string]models.Credential
	now   func() time.Time
}

// NewStore creates an empty credential store.
func NewStore() *Store {
	return &Store{
		creds: make(map[string]models.Credential),
		now:   time.Now,
	}
}

// Seed loads credentials in bulk, typically from the settings file at startup.
// Entries without cookies are skipped.
func (s *Store) Seed(creds []models.Credential) {
	for _, c := range creds {
		if strings.TrimSpace(c.Provider) == "" || len(c.Cookies) == 0 {
			continue
		}
		s.Set(c.Provider, c)
	}
}

// Get returns the stored credential for a provider. ErrExpired is returned
// for a credential whose expiry has passed; the caller decides whether an
// override makes the fetch viable anyway.
func (s *Store) Get(provider string) (models.Credential, error) {
	provider = normalize(provider)
	if provider == "" {
		return models.Credential{}, ErrProviderRequired
	}

	s.mu.RLock()
	cred, ok := s.creds[provider]
	s.mu.RUnlock()

	if !ok {
		return models.Credential{}, ErrNotFound
	}
	if cred.Expired(s.now()) {
		return models.Credential{}, ErrExpired
	}
	return cred, nil
}

// Set stores a credential, overwriting any prior credential for the provider.
func (s *Store) Set(provider string, cred models.Credential) error {
	provider = normalize(provider)
	if provider == "" {
		return ErrProviderRequired
	}
	if len(cred.Cookies) == 0 {
		return ErrNoCookies
	}
	cred.Provider = provider

	s.mu.Lock()
	s.creds[provider] = cred
	s.mu.Unlock()
	return nil
}

// Delete removes the credential for a provider, reporting whether one existed.
func (s *Store) Delete(provider string) bool {
	provider = normalize(provider)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.creds[provider]
	delete(s.creds, provider)
	return ok
}

// Status summarizes one stored credential without exposing cookie values.
type Status struct {
	Provider  string    `json:"provider"`
	Cookies   []string  `json:"cookies"` // names only, values redacted
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Expired   bool      `json:"expired"`
}

// List returns redacted credential state for every provider, sorted by id.
func (s *Store) List() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Status, 0, len(s.creds))
	for id, cred := range s.creds {
		names := make([]string, 0, len(cred.Cookies))
		for name := range cred.Cookies {
			names = append(names, name)
		}
		sort.Strings(names)
		out = append(out, Status{
			Provider:  id,
			Cookies:   names,
			ExpiresAt: cred.ExpiresAt,
			Expired:   cred.Expired(s.now()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
