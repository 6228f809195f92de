package monitor

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/flover-luffy/newboy/models"
	"github.com/flover-luffy/newboy/services/fetch"
)

// Hard limits carried over from operating against live provider endpoints:
// never hit a provider faster than once per two seconds, and stop polling a
// subscription after five consecutive failures rather than hammering a feed
// that is clearly broken (expired cookies, deleted account, provider ban).
const (
	minRequestSpacing   = 2 * time.Second
	maxConsecutiveFails = 5
)

var (
	ErrNotSubscribed     = errors.New("subscription not found")
	ErrAlreadySubscribed = errors.New("subscription already exists")
)

// Fetcher is the slice of the fetch orchestrator the monitor needs.
type Fetcher interface {
	Fetch(ctx context.Context, req models.FetchRequest) (models.FetchResult, error)
}

// Notifier receives new items discovered by the polling loop. Implementations
// must not block; slow consumers stall the whole poll cycle.
type Notifier interface {
	NewItems(sub Subscription, items []models.ContentItem)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(sub Subscription, items []models.ContentItem)

func (f NotifierFunc) NewItems(sub Subscription, items []models.ContentItem) { f(sub, items) }

// Subscription tracks one watched author feed.
type Subscription struct {
	Provider     string    `json:"provider"`
	UserID       string    `json:"userId"`
	Nickname     string    `json:"nickname,omitempty"`
	LastItemID   string    `json:"lastItemId,omitempty"`
	FailureCount int       `json:"failureCount"`
	Active       bool      `json:"active"`
	LastPolledAt time.Time `json:"lastPolledAt,omitempty"`
	LastError    string    `json:"lastError,omitempty"`
}

// Status is a point-in-time view of the poll loop and its workload.
type Status struct {
	Running                  bool   `json:"running"`
	PollInterval             string `json:"pollInterval"`
	ActiveSubscriptions      int    `json:"activeSubscriptions"`
	DeactivatedSubscriptions int    `json:"deactivatedSubscriptions"`
}

func subKey(provider, userID string) string { return provider + "/" + userID }

// Service polls subscribed author feeds on an interval and pushes anything
// newer than the last seen item to the notifier.
type Service struct {
	fetcher  Fetcher
	notifier Notifier
	interval time.Duration

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	subMu sync.RWMutex
	subs  map[string]*Subscription

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates a monitor. interval is the gap between full poll cycles;
// values under the per-request spacing are raised to a sane floor.
func NewService(fetcher Fetcher, notifier Notifier, interval time.Duration) *Service {
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	return &Service{
		fetcher:  fetcher,
		notifier: notifier,
		interval: interval,
		subs:     make(map[string]*Subscription),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Subscribe registers an author feed for polling. The first poll only records
// the newest item id so an existing backlog is not replayed as new.
func (s *Service) Subscribe(provider, userID, nickname string) (Subscription, error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	key := subKey(provider, userID)
	if _, ok := s.subs[key]; ok {
		return Subscription{}, ErrAlreadySubscribed
	}
	sub := &Subscription{Provider: provider, UserID: userID, Nickname: nickname, Active: true}
	s.subs[key] = sub
	log.Printf("[monitor] subscribed %s user %s", provider, userID)
	return *sub, nil
}

// Unsubscribe removes an author feed.
func (s *Service) Unsubscribe(provider, userID string) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	key := subKey(provider, userID)
	if _, ok := s.subs[key]; !ok {
		return ErrNotSubscribed
	}
	delete(s.subs, key)
	log.Printf("[monitor] unsubscribed %s user %s", provider, userID)
	return nil
}

// Reactivate clears the failure state of a deactivated subscription, typically
// after fresh cookies were installed.
func (s *Service) Reactivate(provider, userID string) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	sub, ok := s.subs[subKey(provider, userID)]
	if !ok {
		return ErrNotSubscribed
	}
	sub.Active = true
	sub.FailureCount = 0
	sub.LastError = ""
	log.Printf("[monitor] reactivated %s user %s", provider, userID)
	return nil
}

// Subscriptions returns a stable-ordered snapshot of all subscriptions.
func (s *Service) Subscriptions() []Subscription {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, *sub)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Status reports whether the poll loop is running and how many
// subscriptions are active versus deactivated.
func (s *Service) Status() Status {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	st := Status{Running: running, PollInterval: s.interval.String()}
	s.subMu.RLock()
	for _, sub := range s.subs {
		if sub.Active {
			st.ActiveSubscriptions++
		} else {
			st.DeactivatedSubscriptions++
		}
	}
	s.subMu.RUnlock()
	return st
}

// Start begins the polling loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.pollLoop()

	log.Println("[monitor] Monitor service started")
	return nil
}

// Stop gracefully stops the polling loop.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[monitor] Monitor service stopped gracefully")
	case <-ctx.Done():
		log.Println("[monitor] Monitor service stopped (timeout)")
	}

	s.running = false
	return nil
}

func (s *Service) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.pollAll()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.pollAll()
		}
	}
}

// pollAll walks the active subscriptions sequentially with the mandatory
// inter-request spacing. Sequential on purpose: the spacing is a per-provider
// courtesy limit and fan-out would defeat it.
func (s *Service) pollAll() {
	for i, sub := range s.Subscriptions() {
		if !sub.Active {
			continue
		}
		if i > 0 {
			if err := s.sleep(s.ctx, minRequestSpacing); err != nil {
				return
			}
		}
		s.pollOne(sub)
	}
}

func (s *Service) pollOne(sub Subscription) {
	res, err := s.fetcher.Fetch(s.ctx, models.FetchRequest{
		Provider: sub.Provider,
		Query:    "user:" + sub.UserID,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.recordFailure(sub, err)
		return
	}

	fresh := itemsSince(res.Items, sub.LastItemID)

	s.subMu.Lock()
	cur, ok := s.subs[subKey(sub.Provider, sub.UserID)]
	if !ok {
		// unsubscribed mid-poll
		s.subMu.Unlock()
		return
	}
	cur.FailureCount = 0
	cur.LastError = ""
	cur.LastPolledAt = s.now()
	firstPoll := cur.LastItemID == ""
	if len(res.Items) > 0 {
		cur.LastItemID = res.Items[0].ID
	}
	if cur.Nickname == "" && len(res.Items) > 0 {
		cur.Nickname = res.Items[0].Author
	}
	snapshot := *cur
	s.subMu.Unlock()

	// A brand-new subscription just learns the high-water mark.
	if firstPoll || len(fresh) == 0 {
		return
	}

	log.Printf("[monitor] %s user %s: %d new item(s)", sub.Provider, sub.UserID, len(fresh))
	if s.notifier != nil {
		s.notifier.NewItems(snapshot, fresh)
	}
}

func (s *Service) recordFailure(sub Subscription, err error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	cur, ok := s.subs[subKey(sub.Provider, sub.UserID)]
	if !ok {
		return
	}
	cur.FailureCount++
	cur.LastError = err.Error()
	cur.LastPolledAt = s.now()
	log.Printf("[monitor] %s user %s poll failed (%d/%d): %v",
		sub.Provider, sub.UserID, cur.FailureCount, maxConsecutiveFails, err)

	if cur.FailureCount >= maxConsecutiveFails {
		cur.Active = false
		log.Printf("[monitor] %s user %s deactivated after %d consecutive failures",
			sub.Provider, sub.UserID, cur.FailureCount)
	}
}

// itemsSince returns the items strictly newer than lastID, preserving the
// provider's newest-first order. Feeds list newest first, so everything before
// the marker is new; an absent marker (post deleted) falls back to timestamps
// being useless and returns the whole page.
func itemsSince(items []models.ContentItem, lastID string) []models.ContentItem {
	if lastID == "" {
		return items
	}
	for i, item := range items {
		if item.ID == lastID {
			return items[:i]
		}
	}
	return items
}

var _ Fetcher = (*fetch.Service)(nil)
