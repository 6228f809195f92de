package fetch

import (
	"strings"
	"testing"
	"time"

	"github.com/flover-luffy/newboy/models"
	"github.com/flover-luffy/newboy/services/platform"
)

func TestNormalizeMapsFields(t *testing.T) {
	ts := time.Date(2023, 11, 14, 2, 0, 0, 0, time.UTC)
	parsed := platform.Parsed{
		Provider: "douyin",
		Cursor:   "1699999999000",
		Items: []platform.ParsedItem{
			{
				ID:        "7300000000000000001",
				Author:    "tester",
				AuthorID:  "MS4wLjABAAAAtest",
				Title:     "first clip",
				Link:      "https://www.douyin.com/video/7300000000000000001",
				Timestamp: ts,
				Media: []platform.ParsedMedia{
					{Kind: models.MediaKindVideo, URL: "https://v.example.com/1.mp4", Quality: "1080p", SizeHint: 1024, Group: "video"},
				},
			},
		},
	}

	items, warnings := Normalize(parsed)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	got := items[0]
	if got.Provider != "douyin" || got.ID != "7300000000000000001" {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if got.Cursor != "1699999999000" {
		t.Fatalf("cursor not propagated: %q", got.Cursor)
	}
	if !got.Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %v", got.Timestamp)
	}
	if len(got.Media) != 1 || got.Media[0].SizeHint != 1024 {
		t.Fatalf("media not mapped: %+v", got.Media)
	}
}

func TestNormalizeSkipsMalformedItems(t *testing.T) {
	parsed := platform.Parsed{
		Provider: "weibo",
		Items: []platform.ParsedItem{
			{ID: "", Title: "no id", Media: []platform.ParsedMedia{{Kind: models.MediaKindImage, URL: "https://img.example.com/a.jpg"}}},
			{ID: "2", Title: "no media"},
			{ID: "3", Title: "survives", Media: []platform.ParsedMedia{{Kind: models.MediaKindImage, URL: "https://img.example.com/b.jpg"}}},
		},
	}

	items, warnings := Normalize(parsed)
	if len(items) != 1 || items[0].ID != "3" {
		t.Fatalf("expected only item 3 to survive, got %+v", items)
	}
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warnings)
	}
	for _, w := range warnings {
		if !strings.Contains(w, "skipped") {
			t.Fatalf("warning should record the skip: %q", w)
		}
	}
}

func TestNormalizeDedupesMediaKeepingFirst(t *testing.T) {
	parsed := platform.Parsed{
		Provider: "weibo",
		Items: []platform.ParsedItem{
			{
				ID: "1",
				Media: []platform.ParsedMedia{
					{Kind: models.MediaKindImage, URL: "https://img.example.com/a.jpg", Quality: "large"},
					{Kind: models.MediaKindImage, URL: "https://img.example.com/a.jpg"},
					{Kind: models.MediaKindImage, URL: ""},
					{Kind: models.MediaKindImage, URL: "https://img.example.com/b.jpg"},
				},
			},
		},
	}

	items, _ := Normalize(parsed)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	media := items[0].Media
	if len(media) != 2 {
		t.Fatalf("expected dedupe to 2 refs, got %+v", media)
	}
	if media[0].Quality != "large" {
		t.Fatalf("first occurrence must win, got %+v", media[0])
	}
}
