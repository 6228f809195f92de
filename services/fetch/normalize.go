package fetch

import (
	"fmt"

	"github.com/flover-luffy/newboy/models"
	"github.com/flover-luffy/newboy/services/platform"
)

// Normalize maps an adapter's parsed page onto the common ContentItem shape.
// Pure function, no I/O. An item missing its required fields (an id and at
// least one media reference) is skipped with a recorded warning rather than
// failing the page; duplicate media URLs within one item are dropped, keeping
// the first occurrence so provider display order survives.
func Normalize(parsed platform.Parsed) ([]models.ContentItem, []string) {
	var (
		items    []models.ContentItem
		warnings []string
	)

	for idx, src := range parsed.Items {
		if src.ID == "" {
			warnings = append(warnings, fmt.Sprintf("%s: item %d skipped: no id", parsed.Provider, idx))
			continue
		}

		media := dedupeMedia(src.Media)
		if len(media) == 0 {
			warnings = append(warnings, fmt.Sprintf("%s: item %s skipped: no media references", parsed.Provider, src.ID))
			continue
		}

		items = append(items, models.ContentItem{
			ID:        src.ID,
			Provider:  parsed.Provider,
			Author:    src.Author,
			AuthorID:  src.AuthorID,
			Title:     src.Title,
			Link:      src.Link,
			Media:     media,
			Timestamp: src.Timestamp,
			Cursor:    parsed.Cursor,
		})
	}

	return items, warnings
}

func dedupeMedia(candidates []platform.ParsedMedia) []models.MediaRef {
	seen := make(map[string]struct{}, len(candidates))
	refs := make([]models.MediaRef, 0, len(candidates))
	for _, c := range candidates {
		if c.URL == "" {
			continue
		}
		if _, dup := seen[c.URL]; dup {
			continue
		}
		seen[c.URL] = struct{}{}
		refs = append(refs, models.MediaRef{
			Kind:     c.Kind,
			URL:      c.URL,
			Quality:  c.Quality,
			SizeHint: c.SizeHint,
			Group:    c.Group,
		})
	}
	return refs
}
