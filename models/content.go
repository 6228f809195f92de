package models

import (
	"net/http"
	"time"
)

// Normalized content structures shared by the fetch pipeline.

// MediaKind distinguishes the two media types providers publish.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// MediaRef is a single downloadable media pointer extracted from a post.
// Refs that are alternate encodings of the same picture or clip share a Group.
type MediaRef struct {
	Kind     MediaKind `json:"kind"`
	URL      string    `json:"url"`
	Quality  string    `json:"quality,omitempty"`  // provider-declared tag, e.g. "1080p", "normal_720"
	SizeHint int64     `json:"sizeHint,omitempty"` // bytes, 0 when unknown
	Group    string    `json:"group,omitempty"`
}

// ContentItem is the provider-agnostic representation of one fetched post.
// Media order matches the provider-declared display order.
type ContentItem struct {
	ID        string     `json:"id"`
	Provider  string     `json:"provider"`
	Author    string     `json:"author,omitempty"`
	AuthorID  string     `json:"authorId,omitempty"`
	Title     string     `json:"title,omitempty"`
	Link      string     `json:"link,omitempty"`
	Media     []MediaRef `json:"media"`
	Timestamp time.Time  `json:"timestamp"`
	Cursor    string     `json:"cursor,omitempty"`
}

// FetchRequest is the caller's logical request. Immutable once constructed.
type FetchRequest struct {
	Provider string `json:"provider"`
	Query    string `json:"query"` // e.g. "user:MS4wLjAB...", "container:107803..."
	Cursor   string `json:"cursor,omitempty"`
	// CredentialOverride, when non-nil, bypasses the cookie store for this call.
	CredentialOverride *Credential `json:"credential,omitempty"`
	Count              int         `json:"count,omitempty"`
}

// FetchResult is a fully normalized batch plus the continuation cursor.
// Warnings record per-item normalization skips; they never fail the batch.
type FetchResult struct {
	Provider  string        `json:"provider"`
	RequestID string        `json:"requestId"`
	Items     []ContentItem `json:"items"`
	Cursor    string        `json:"cursor,omitempty"`
	HasMore   bool          `json:"hasMore"`
	Warnings  []string      `json:"warnings,omitempty"`
}

// RawResponse is the transport-level result of one gateway execution,
// consumed exactly once by the matching provider adapter.
type RawResponse struct {
	Provider   string
	StatusCode int
	Body       []byte
	Header     http.Header
	Attempts   int
}

// Credential holds the cookie parameters that authenticate against one
// provider. Owned by the cookie store; adapters only read it.
type Credential struct {
	Provider  string            `json:"provider"`
	Cookies   map[string]string `json:"cookies"`
	ExpiresAt time.Time         `json:"expiresAt,omitempty"`
}

// Cookie returns the named cookie value and whether it is present and non-empty.
func (c *Credential) Cookie(name string) (string, bool) {
	if c == nil || len(c.Cookies) == 0 {
		return "", false
	}
	v, ok := c.Cookies[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Expired reports whether the credential carries an expiry in the past.
// A zero ExpiresAt means the credential does not expire on its own.
func (c *Credential) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
