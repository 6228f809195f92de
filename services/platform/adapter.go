package platform

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/flover-luffy/newboy/models"
)

// BuiltRequest is the provider-specific request an adapter hands to the
// gateway. Construction is deterministic: identical FetchRequest + Credential
// inputs always produce an identical method, URL, headers and body.
type BuiltRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// ParsedMedia is one media candidate prior to normalization. Candidates that
// encode the same picture or clip at different qualities share a Group.
type ParsedMedia struct {
	Kind     models.MediaKind
	URL      string
	Quality  string
	SizeHint int64
	Group    string
}

// ParsedItem is one provider post with its fields lifted out of the provider's
// JSON shape but not yet validated against the normalized contract.
type ParsedItem struct {
	ID        string
	Author    string
	AuthorID  string
	Title     string
	Link      string
	Media     []ParsedMedia
	Timestamp time.Time
}

// Parsed is the adapter's decoded view of one provider response page.
type Parsed struct {
	Provider string
	Items    []ParsedItem
	Cursor   string
	HasMore  bool
}

// CookieSpec declares which cookie parameters a provider recognizes and which
// subset must be present for a request to be buildable. An adapter tolerates
// any subset of Recognized but fails fast when Required is incomplete.
type CookieSpec struct {
	Recognized []string
	Required   []string
}

// Adapter isolates one provider's request construction and response parsing.
// Everything provider-shaped stays behind this interface; the normalizer never
// sees raw provider JSON.
type Adapter interface {
	Name() string
	Cookies() CookieSpec
	BuildRequest(req models.FetchRequest, cred models.Credential) (BuiltRequest, error)
	ParseResponse(raw models.RawResponse) (Parsed, error)
}

// ParseErrorKind classifies adapter parse failures.
type ParseErrorKind string

const (
	KindUnexpectedShape ParseErrorKind = "unexpected_shape"
	KindMissingField    ParseErrorKind = "missing_field"
	KindProviderError   ParseErrorKind = "provider_error"
)

// ParseError is a schema- or business-level failure. A ProviderError covers
// the provider-reported errors these APIs embed in HTTP 200 bodies; it is
// never retried since retrying without fresh credentials cannot succeed.
type ParseError struct {
	Provider string
	Kind     ParseErrorKind
	Field    string // populated for missing_field
	Code     int    // provider business code for provider_error
	Message  string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case KindMissingField:
		return fmt.Sprintf("%s: missing field %q", e.Provider, e.Field)
	case KindProviderError:
		return fmt.Sprintf("%s: provider error %d: %s", e.Provider, e.Code, e.Message)
	default:
		return fmt.Sprintf("%s: unexpected response shape: %s", e.Provider, e.Message)
	}
}

// ErrMissingCookie reports an absent required cookie parameter.
type ErrMissingCookie struct {
	Provider string
	Cookie   string
}

func (e *ErrMissingCookie) Error() string {
	return fmt.Sprintf("%s: required cookie %q not present in credential", e.Provider, e.Cookie)
}

// Registry is a read-only adapter lookup keyed by provider name.
type Registry struct {
	byName map[string]Adapter
}

// NewRegistry indexes the given adapters. Duplicate or unnamed adapters are
// construction errors.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	byName := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		if a == nil {
			return nil, fmt.Errorf("nil adapter")
		}
		name := strings.ToLower(strings.TrimSpace(a.Name()))
		if name == "" {
			return nil, fmt.Errorf("adapter with empty name")
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("duplicate adapter %q", name)
		}
		byName[name] = a
	}
	return &Registry{byName: byName}, nil
}

// Get returns the adapter registered under the provider name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// Names lists registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// cookieHeader renders the recognized subset of a credential as a Cookie
// header value, in CookieSpec declaration order. Returns an
// ErrMissingCookie for the first absent required parameter.
func cookieHeader(provider string, spec CookieSpec, cred models.Credential) (string, error) {
	for _, name := range spec.Required {
		if _, ok := cred.Cookie(name); !ok {
			return "", &ErrMissingCookie{Provider: provider, Cookie: name}
		}
	}
	var parts []string
	for _, name := range spec.Recognized {
		if v, ok := cred.Cookie(name); ok {
			parts = append(parts, name+"="+v)
		}
	}
	return strings.Join(parts, "; "), nil
}

// splitQuery separates a logical query like "user:123" into its kind and value.
func splitQuery(query string) (kind, value string) {
	query = strings.TrimSpace(query)
	if idx := strings.IndexByte(query, ':'); idx >= 0 {
		return query[:idx], strings.TrimSpace(query[idx+1:])
	}
	return "", query
}
