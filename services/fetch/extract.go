package fetch

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/flover-luffy/newboy/models"
)

// ExtractMedia is the final validation and ranking pass over an item's media.
// Unreachable-looking references (empty URL, non-http scheme, missing host)
// and duplicate URLs are discarded; within a group of alternate encodings of
// the same logical media the highest declared quality comes first, with
// first-seen order breaking ties.
func ExtractMedia(item models.ContentItem) []models.MediaRef {
	type entry struct {
		ref  models.MediaRef
		pos  int
		rank int
	}

	seen := make(map[string]struct{}, len(item.Media))
	groups := make(map[string][]entry)
	var order []string

	for i, ref := range item.Media {
		if !reachableURL(ref.URL) {
			continue
		}
		if _, dup := seen[ref.URL]; dup {
			continue
		}
		seen[ref.URL] = struct{}{}

		key := string(ref.Kind) + "/" + ref.Group
		if ref.Group == "" {
			// Ungrouped refs are singletons; keep them where they stand.
			key = "#" + strconv.Itoa(i)
		}
		if _, exists := groups[key]; !exists {
			order = append(order, key)
		}
		groups[key] = append(groups[key], entry{ref: ref, pos: i, rank: qualityRank(ref.Quality)})
	}

	var out []models.MediaRef
	for _, key := range order {
		entries := groups[key]
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].rank != entries[j].rank {
				return entries[i].rank > entries[j].rank
			}
			return entries[i].pos < entries[j].pos
		})
		for _, e := range entries {
			out = append(out, e.ref)
		}
	}
	return out
}

func reachableURL(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// qualityRank orders declared quality tags. Tags carrying a pixel count
// ("1080p", "normal_720_0") rank by that number; the handful of wordy tags
// these APIs use rank just above untagged variants.
func qualityRank(tag string) int {
	tag = strings.ToLower(tag)
	digits := ""
	for _, r := range tag {
		if r >= '0' && r <= '9' {
			digits += string(r)
		} else if digits != "" {
			break
		}
	}
	if digits != "" {
		if n, err := strconv.Atoi(digits); err == nil {
			return n
		}
	}
	switch tag {
	case "hd", "large", "original":
		return 1
	default:
		return 0
	}
}
