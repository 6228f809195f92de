package platform

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/flover-luffy/newboy/models"
)

const (
	weiboName         = "weibo"
	weiboContainerURL = "https://m.weibo.cn/api/container/getIndex"

	// 107603<uid> is the m.weibo.cn container holding a user's own feed,
	// which saves the profile round trip the mobile web client performs.
	weiboUserFeedPrefix = "107603"

	weiboUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	weiboCardTypePost = 9
	weiboTimeLayout   = "Mon Jan 02 15:04:05 -0700 2006"
)

var htmlTagPattern = regexp.MustCompile(`<[^<>]+>`)

// WeiboAdapter fetches feed containers from the m.weibo.cn mobile API.
// The endpoint mixes field types freely (booleans that arrive as ints,
// numeric ids that arrive as strings), so parsing goes through gjson rather
// than rigid struct decoding.
type WeiboAdapter struct{}

// NewWeiboAdapter constructs the Weibo provider adapter.
func NewWeiboAdapter() *WeiboAdapter { return &WeiboAdapter{} }

func (a *WeiboAdapter) Name() string { return weiboName }

func (a *WeiboAdapter) Cookies() CookieSpec {
	return CookieSpec{
		Recognized: []string{"SUB", "SUBP", "_T_WM"},
		Required:   []string{"SUB"},
	}
}

func (a *WeiboAdapter) BuildRequest(req models.FetchRequest, cred models.Credential) (BuiltRequest, error) {
	kind, value := splitQuery(req.Query)
	if value == "" {
		return BuiltRequest{}, fmt.Errorf("weibo: empty query %q", req.Query)
	}

	var containerID string
	switch kind {
	case "", "user":
		containerID = weiboUserFeedPrefix + value
	case "container":
		containerID = value
	default:
		return BuiltRequest{}, fmt.Errorf("weibo: unsupported query kind %q", kind)
	}

	cookie, err := cookieHeader(weiboName, a.Cookies(), cred)
	if err != nil {
		return BuiltRequest{}, err
	}

	params := url.Values{}
	params.Set("containerid", containerID)
	if req.Cursor != "" {
		params.Set("since_id", req.Cursor)
	}

	header := http.Header{}
	header.Set("User-Agent", weiboUserAgent)
	header.Set("Accept", "application/json, text/plain, */*")
	header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	header.Set("Referer", "https://m.weibo.cn/")
	header.Set("X-Requested-With", "XMLHttpRequest")
	header.Set("Cookie", cookie)

	return BuiltRequest{
		Method: http.MethodGet,
		URL:    weiboContainerURL + "?" + params.Encode(),
		Header: header,
	}, nil
}

func (a *WeiboAdapter) ParseResponse(raw models.RawResponse) (Parsed, error) {
	if !gjson.ValidBytes(raw.Body) {
		return Parsed{}, &ParseError{Provider: weiboName, Kind: KindUnexpectedShape, Message: "response is not valid JSON"}
	}
	root := gjson.ParseBytes(raw.Body)

	ok := root.Get("ok")
	if !ok.Exists() {
		return Parsed{}, &ParseError{Provider: weiboName, Kind: KindMissingField, Field: "ok"}
	}
	if ok.Int() != 1 {
		msg := root.Get("msg").String()
		if msg == "" {
			msg = "container request rejected"
		}
		return Parsed{}, &ParseError{Provider: weiboName, Kind: KindProviderError, Code: int(ok.Int()), Message: msg}
	}

	data := root.Get("data")
	if !data.Exists() {
		return Parsed{}, &ParseError{Provider: weiboName, Kind: KindMissingField, Field: "data"}
	}

	parsed := Parsed{
		Provider: weiboName,
		Cursor:   data.Get("cardlistInfo.since_id").String(),
	}
	parsed.HasMore = parsed.Cursor != "" && parsed.Cursor != "0"

	data.Get("cards").ForEach(func(_, card gjson.Result) bool {
		// Super-topic responses nest post cards one level down.
		if card.Get("show_type").Int() == 1 && card.Get("card_group").Exists() {
			card.Get("card_group").ForEach(func(_, inner gjson.Result) bool {
				if item, keep := parseWeiboCard(inner); keep {
					parsed.Items = append(parsed.Items, item)
				}
				return true
			})
			return true
		}
		if item, keep := parseWeiboCard(card); keep {
			parsed.Items = append(parsed.Items, item)
		}
		return true
	})

	return parsed, nil
}

// parseWeiboCard lifts one feed card into a ParsedItem. Non-post cards and
// pinned posts are dropped; a post with no usable fields still comes back so
// the normalizer records the skip instead of silently losing it.
func parseWeiboCard(card gjson.Result) (ParsedItem, bool) {
	if card.Get("card_type").Int() != weiboCardTypePost {
		return ParsedItem{}, false
	}
	mblog := card.Get("mblog")
	if !mblog.Exists() {
		return ParsedItem{}, false
	}
	if weiboPinned(mblog) {
		return ParsedItem{}, false
	}

	item := ParsedItem{
		ID:       mblog.Get("id").String(),
		Author:   mblog.Get("user.screen_name").String(),
		AuthorID: mblog.Get("user.id").String(),
		Title:    stripHTML(mblog.Get("text").String()),
		Link:     card.Get("scheme").String(),
	}
	if ts, err := time.Parse(weiboTimeLayout, mblog.Get("created_at").String()); err == nil {
		item.Timestamp = ts.UTC()
	}

	item.Media = weiboMedia(mblog)

	// Retweets carry their pics/page_info (and often the only text worth
	// keeping) on the embedded original post.
	if rt := mblog.Get("retweeted_status"); rt.Exists() {
		if len(item.Media) == 0 {
			item.Media = weiboMedia(rt)
		}
		if item.Title == "" {
			item.Title = stripHTML(rt.Get("text").String())
		}
	}

	return item, true
}

// weiboMedia collects the image and video references declared on one mblog.
func weiboMedia(mblog gjson.Result) []ParsedMedia {
	var media []ParsedMedia

	mblog.Get("pics").ForEach(func(idx, pic gjson.Result) bool {
		group := "image-" + idx.String()
		if large := pic.Get("large.url").String(); large != "" {
			media = append(media, ParsedMedia{
				Kind:    models.MediaKindImage,
				URL:     large,
				Quality: "large",
				Group:   group,
			})
		}
		if thumb := pic.Get("url").String(); thumb != "" {
			media = append(media, ParsedMedia{
				Kind:  models.MediaKindImage,
				URL:   thumb,
				Group: group,
			})
		}
		return true
	})

	if mblog.Get("page_info.type").String() == "video" {
		if hd := mblog.Get("page_info.media_info.stream_url_hd").String(); hd != "" {
			media = append(media, ParsedMedia{
				Kind:    models.MediaKindVideo,
				URL:     hd,
				Quality: "hd",
				Group:   "video",
			})
		}
		if sd := mblog.Get("page_info.media_info.stream_url").String(); sd != "" {
			media = append(media, ParsedMedia{
				Kind:  models.MediaKindVideo,
				URL:   sd,
				Group: "video",
			})
		}
	}

	return media
}

// weiboPinned detects pinned posts across the several spellings the API uses,
// where the same flag may arrive as a bool or as 0/1.
func weiboPinned(mblog gjson.Result) bool {
	for _, field := range []string{"isTop", "pinned", "top"} {
		v := mblog.Get(field)
		if v.Exists() && (v.Bool() || v.Int() == 1) {
			return true
		}
	}
	return mblog.Get("mblogtype").String() == "置顶"
}

func stripHTML(text string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(text, ""))
}
