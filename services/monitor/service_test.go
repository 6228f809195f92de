package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flover-luffy/newboy/models"
)

type fetcherFunc func(ctx context.Context, req models.FetchRequest) (models.FetchResult, error)

func (f fetcherFunc) Fetch(ctx context.Context, req models.FetchRequest) (models.FetchResult, error) {
	return f(ctx, req)
}

func item(id, title string) models.ContentItem {
	return models.ContentItem{ID: id, Provider: "douyin", Author: "tester", Title: title}
}

func newTestMonitor(fetcher Fetcher, notifier Notifier) *Service {
	s := NewService(fetcher, notifier, time.Minute)
	s.ctx = context.Background()
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return s
}

func TestSubscribeLifecycle(t *testing.T) {
	s := newTestMonitor(nil, nil)

	sub, err := s.Subscribe("douyin", "u1", "tester")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if !sub.Active || sub.Provider != "douyin" {
		t.Fatalf("unexpected subscription: %+v", sub)
	}

	if _, err := s.Subscribe("douyin", "u1", ""); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}

	if err := s.Unsubscribe("douyin", "u1"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if err := s.Unsubscribe("douyin", "u1"); !errors.Is(err, ErrNotSubscribed) {
		t.Fatalf("expected ErrNotSubscribed, got %v", err)
	}
}

func TestFirstPollOnlyRecordsHighWaterMark(t *testing.T) {
	var notified [][]models.ContentItem
	s := newTestMonitor(
		fetcherFunc(func(ctx context.Context, req models.FetchRequest) (models.FetchResult, error) {
			return models.FetchResult{Items: []models.ContentItem{item("3", "newest"), item("2", "older")}}, nil
		}),
		NotifierFunc(func(sub Subscription, items []models.ContentItem) {
			notified = append(notified, items)
		}),
	)
	sub, _ := s.Subscribe("douyin", "u1", "")

	s.pollOne(sub)

	if len(notified) != 0 {
		t.Fatalf("first poll must not replay the backlog, got %v", notified)
	}
	subs := s.Subscriptions()
	if subs[0].LastItemID != "3" {
		t.Fatalf("expected high-water mark 3, got %q", subs[0].LastItemID)
	}
}

func TestPollNotifiesOnlyFreshItems(t *testing.T) {
	page := []models.ContentItem{item("2", "older"), item("1", "oldest")}
	var notified [][]models.ContentItem
	s := newTestMonitor(
		fetcherFunc(func(ctx context.Context, req models.FetchRequest) (models.FetchResult, error) {
			return models.FetchResult{Items: page}, nil
		}),
		NotifierFunc(func(sub Subscription, items []models.ContentItem) {
			notified = append(notified, items)
		}),
	)
	sub, _ := s.Subscribe("douyin", "u1", "")

	s.pollOne(sub) // establishes mark at "2"

	page = []models.ContentItem{item("4", "newest"), item("3", "newer"), item("2", "older")}
	s.pollOne(s.Subscriptions()[0])

	if len(notified) != 1 {
		t.Fatalf("expected one notification, got %d", len(notified))
	}
	fresh := notified[0]
	if len(fresh) != 2 || fresh[0].ID != "4" || fresh[1].ID != "3" {
		t.Fatalf("expected items newer than the mark, got %+v", fresh)
	}
	if s.Subscriptions()[0].LastItemID != "4" {
		t.Fatalf("mark should advance to 4, got %q", s.Subscriptions()[0].LastItemID)
	}
}

func TestConsecutiveFailuresDeactivate(t *testing.T) {
	s := newTestMonitor(
		fetcherFunc(func(ctx context.Context, req models.FetchRequest) (models.FetchResult, error) {
			return models.FetchResult{}, errors.New("cookie expired")
		}),
		nil,
	)
	sub, _ := s.Subscribe("douyin", "u1", "")

	for i := 0; i < maxConsecutiveFails; i++ {
		if cur := s.Subscriptions()[0]; !cur.Active && i < maxConsecutiveFails {
			t.Fatalf("deactivated too early at failure %d", i)
		}
		s.pollOne(sub)
	}

	cur := s.Subscriptions()[0]
	if cur.Active {
		t.Fatalf("expected deactivation after %d failures, got %+v", maxConsecutiveFails, cur)
	}
	if cur.FailureCount != maxConsecutiveFails {
		t.Fatalf("failure count = %d", cur.FailureCount)
	}
	if cur.LastError == "" {
		t.Fatal("last error should be recorded")
	}

	if err := s.Reactivate("douyin", "u1"); err != nil {
		t.Fatalf("Reactivate failed: %v", err)
	}
	cur = s.Subscriptions()[0]
	if !cur.Active || cur.FailureCount != 0 || cur.LastError != "" {
		t.Fatalf("Reactivate should clear failure state, got %+v", cur)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	fail := true
	s := newTestMonitor(
		fetcherFunc(func(ctx context.Context, req models.FetchRequest) (models.FetchResult, error) {
			if fail {
				return models.FetchResult{}, errors.New("transient")
			}
			return models.FetchResult{Items: []models.ContentItem{item("1", "x")}}, nil
		}),
		nil,
	)
	sub, _ := s.Subscribe("douyin", "u1", "")

	s.pollOne(sub)
	s.pollOne(sub)
	if got := s.Subscriptions()[0].FailureCount; got != 2 {
		t.Fatalf("failure count = %d", got)
	}

	fail = false
	s.pollOne(sub)
	if got := s.Subscriptions()[0].FailureCount; got != 0 {
		t.Fatalf("success should reset failure count, got %d", got)
	}
}

func TestPollAllSpacesRequests(t *testing.T) {
	var slept []time.Duration
	s := newTestMonitor(
		fetcherFunc(func(ctx context.Context, req models.FetchRequest) (models.FetchResult, error) {
			return models.FetchResult{Items: []models.ContentItem{item("1", "x")}}, nil
		}),
		nil,
	)
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	_, _ = s.Subscribe("douyin", "u1", "")
	_, _ = s.Subscribe("douyin", "u2", "")
	_, _ = s.Subscribe("weibo", "u3", "")

	s.pollAll()

	if len(slept) != 2 {
		t.Fatalf("expected spacing between 3 polls, got %d sleeps", len(slept))
	}
	for _, d := range slept {
		if d < minRequestSpacing {
			t.Fatalf("spacing %v below the provider floor %v", d, minRequestSpacing)
		}
	}
}

func TestItemsSinceFallsBackToFullPage(t *testing.T) {
	page := []models.ContentItem{item("5", ""), item("4", "")}
	// The marked post was deleted; the whole page counts as new.
	if got := itemsSince(page, "3"); len(got) != 2 {
		t.Fatalf("expected full page fallback, got %d items", len(got))
	}
	if got := itemsSince(page, "5"); len(got) != 0 {
		t.Fatalf("expected nothing newer than the newest, got %d", len(got))
	}
}

func TestStatusCountsSubscriptions(t *testing.T) {
	s := newTestMonitor(
		fetcherFunc(func(ctx context.Context, req models.FetchRequest) (models.FetchResult, error) {
			return models.FetchResult{}, errors.New("unreachable")
		}),
		nil,
	)
	sub, _ := s.Subscribe("douyin", "u1", "")
	s.Subscribe("weibo", "u2", "")

	st := s.Status()
	if st.Running {
		t.Fatal("service was never started")
	}
	if st.ActiveSubscriptions != 2 || st.DeactivatedSubscriptions != 0 {
		t.Fatalf("unexpected counts: %+v", st)
	}

	for i := 0; i < maxConsecutiveFails; i++ {
		s.pollOne(sub)
	}
	st = s.Status()
	if st.ActiveSubscriptions != 1 || st.DeactivatedSubscriptions != 1 {
		t.Fatalf("expected one deactivated subscription, got %+v", st)
	}
}
