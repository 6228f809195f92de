package fetch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/flover-luffy/newboy/models"
	"github.com/flover-luffy/newboy/services/cookies"
	"github.com/flover-luffy/newboy/services/gateway"
	"github.com/flover-luffy/newboy/services/platform"
)

// ErrUnknownProvider reports a fetch for a provider with no registered adapter.
var ErrUnknownProvider = errors.New("unknown provider")

// Executor is the transport seam; satisfied by *gateway.Gateway.
type Executor interface {
	Execute(ctx context.Context, req gateway.Request) (models.RawResponse, error)
}

// Service is the top-level fetch orchestrator: credential resolution, request
// construction, transport, parsing, normalization and media extraction for one
// logical request. Nothing is cached across calls.
type Service struct {
	store       *cookies.Store
	registry    *platform.Registry
	gateway     Executor
	maxParallel int
}

// NewService wires the orchestrator. maxParallel bounds FetchMany fan-out;
// zero or negative falls back to 4.
func NewService(store *cookies.Store, registry *platform.Registry, gw Executor, maxParallel int) *Service {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Service{store: store, registry: registry, gateway: gw, maxParallel: maxParallel}
}

// Providers lists the provider ids this service can fetch from.
func (s *Service) Providers() []string { return s.registry.Names() }

// Fetch runs one orchestration: cookie store → adapter build → gateway →
// adapter parse → normalize → extract. Failures come back classified; a page
// where every item fails normalization is an unexpected-shape parse failure.
func (s *Service) Fetch(ctx context.Context, req models.FetchRequest) (models.FetchResult, error) {
	requestID := uuid.NewString()

	adapter, ok := s.registry.Get(req.Provider)
	if !ok {
		return models.FetchResult{}, fmt.Errorf("%w: %q", ErrUnknownProvider, req.Provider)
	}

	cred, err := s.resolveCredential(adapter.Name(), req)
	if err != nil {
		return models.FetchResult{}, err
	}

	built, err := adapter.BuildRequest(req, cred)
	if err != nil {
		return models.FetchResult{}, err
	}

	raw, err := s.gateway.Execute(ctx, gateway.Request{
		Provider: adapter.Name(),
		Method:   built.Method,
		URL:      built.URL,
		Header:   built.Header,
		Body:     built.Body,
	})
	if err != nil {
		log.Printf("[fetch] %s request %s transport failure: %v", adapter.Name(), requestID, err)
		return models.FetchResult{}, err
	}

	parsed, err := adapter.ParseResponse(raw)
	if err != nil {
		log.Printf("[fetch] %s request %s parse failure: %v", adapter.Name(), requestID, err)
		return models.FetchResult{}, err
	}

	items, warnings := Normalize(parsed)
	for i := range items {
		items[i].Media = ExtractMedia(items[i])
	}
	// Extraction can empty an item's media; such items no longer satisfy the
	// normalized contract and are dropped like any other malformed entry.
	kept := items[:0]
	for _, item := range items {
		if len(item.Media) == 0 {
			warnings = append(warnings, fmt.Sprintf("%s: item %s skipped: no reachable media", parsed.Provider, item.ID))
			continue
		}
		kept = append(kept, item)
	}
	items = kept

	if len(items) == 0 {
		return models.FetchResult{}, &platform.ParseError{
			Provider: adapter.Name(),
			Kind:     platform.KindUnexpectedShape,
			Message:  "no items survived normalization",
		}
	}

	for _, w := range warnings {
		log.Printf("[fetch] request %s: %s", requestID, w)
	}

	return models.FetchResult{
		Provider:  adapter.Name(),
		RequestID: requestID,
		Items:     items,
		Cursor:    parsed.Cursor,
		HasMore:   parsed.HasMore,
		Warnings:  warnings,
	}, nil
}

func (s *Service) resolveCredential(provider string, req models.FetchRequest) (models.Credential, error) {
	if req.CredentialOverride != nil {
		override := *req.CredentialOverride
		override.Provider = provider
		return override, nil
	}
	return s.store.Get(provider)
}

// Outcome pairs one batch entry with its result or classified error.
type Outcome struct {
	Request models.FetchRequest `json:"request"`
	Result  *models.FetchResult `json:"result,omitempty"`
	Err     error               `json:"-"`
	Error   string              `json:"error,omitempty"`
}

// FetchMany runs the requests concurrently, one orchestration each, sharing
// the gateway's admission pool. Outcomes keep submission order.
func (s *Service) FetchMany(ctx context.Context, reqs []models.FetchRequest) []Outcome {
	outcomes := make([]Outcome, len(reqs))

	p := pool.New().WithMaxGoroutines(s.maxParallel)
	for i, req := range reqs {
		i, req := i, req
		p.Go(func() {
			outcomes[i].Request = req
			res, err := s.Fetch(ctx, req)
			if err != nil {
				outcomes[i].Err = err
				outcomes[i].Error = err.Error()
				return
			}
			outcomes[i].Result = &res
		})
	}
	p.Wait()

	return outcomes
}

// ErrorKind flattens the error taxonomy into a stable string for callers that
// render failures (the chat runtime needs the kind plus the provider id, not
// the Go error chain).
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, cookies.ErrNotFound):
		return "credential_missing"
	case errors.Is(err, cookies.ErrExpired):
		return "credential_expired"
	case errors.Is(err, ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	var missing *platform.ErrMissingCookie
	if errors.As(err, &missing) {
		return "credential_missing"
	}
	var parseErr *platform.ParseError
	if errors.As(err, &parseErr) {
		return "parse_" + string(parseErr.Kind)
	}
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return "gateway_" + string(gwErr.Kind)
	}
	return "internal"
}
