package platform

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flover-luffy/newboy/models"
)

const (
	douyinName         = "douyin"
	douyinAwemePostURL = "https://www.douyin.com/aweme/v1/web/aweme/post/"
	douyinVideoPage    = "https://www.douyin.com/video/"

	// Fixed desktop UA: request construction must be reproducible, so no
	// per-request UA rotation here.
	douyinUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// DouyinAdapter fetches a user's published posts from the Douyin web API.
type DouyinAdapter struct{}

// NewDouyinAdapter constructs the Douyin provider adapter.
func NewDouyinAdapter() *DouyinAdapter { return &DouyinAdapter{} }

func (a *DouyinAdapter) Name() string { return douyinName }

// Cookies declares the recognized cookie parameters. Historically the
// integration ran with the full three-cookie browser harvest, but sessionid
// alone is sufficient for the post listing.
func (a *DouyinAdapter) Cookies() CookieSpec {
	return CookieSpec{
		Recognized: []string{"sessionid", "ttwid", "msToken"},
		Required:   []string{"sessionid"},
	}
}

func (a *DouyinAdapter) BuildRequest(req models.FetchRequest, cred models.Credential) (BuiltRequest, error) {
	kind, secUserID := splitQuery(req.Query)
	if kind != "" && kind != "user" {
		return BuiltRequest{}, fmt.Errorf("douyin: unsupported query kind %q", kind)
	}
	if secUserID == "" {
		return BuiltRequest{}, fmt.Errorf("douyin: empty user id in query %q", req.Query)
	}

	cookie, err := cookieHeader(douyinName, a.Cookies(), cred)
	if err != nil {
		return BuiltRequest{}, err
	}

	header := http.Header{}
	header.Set("User-Agent", douyinUserAgent)
	header.Set("Referer", "https://www.douyin.com/user/"+secUserID)
	header.Set("Accept", "application/json, text/plain, */*")
	header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	header.Set("Sec-Fetch-Dest", "empty")
	header.Set("Sec-Fetch-Mode", "cors")
	header.Set("Sec-Fetch-Site", "same-origin")
	header.Set("Cookie", cookie)

	return BuiltRequest{
		Method: http.MethodGet,
		URL:    douyinAwemePostURL + "?" + buildAwemePostQuery(secUserID, req.Cursor, req.Count),
		Header: header,
	}, nil
}

type douyinPostResponse struct {
	StatusCode *int           `json:"status_code"`
	StatusMsg  string         `json:"status_msg"`
	AwemeList  *[]douyinAweme `json:"aweme_list"`
	MaxCursor  int64          `json:"max_cursor"`
	HasMore    int            `json:"has_more"`
}

type douyinAweme struct {
	AwemeID    string `json:"aweme_id"`
	Desc       string `json:"desc"`
	CreateTime int64  `json:"create_time"`
	Author     struct {
		Nickname string `json:"nickname"`
		SecUID   string `json:"sec_uid"`
	} `json:"author"`
	Video struct {
		PlayAddr douyinPlayAddr `json:"play_addr"`
		BitRate  []struct {
			GearName string         `json:"gear_name"`
			PlayAddr douyinPlayAddr `json:"play_addr"`
		} `json:"bit_rate"`
	} `json:"video"`
	Images []struct {
		URLList []string `json:"url_list"`
	} `json:"images"`
}

type douyinPlayAddr struct {
	URLList  []string `json:"url_list"`
	DataSize int64    `json:"data_size"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
}

func (a *DouyinAdapter) ParseResponse(raw models.RawResponse) (Parsed, error) {
	var payload douyinPostResponse
	if err := json.Unmarshal(raw.Body, &payload); err != nil {
		return Parsed{}, &ParseError{Provider: douyinName, Kind: KindUnexpectedShape, Message: err.Error()}
	}
	if payload.StatusCode == nil {
		return Parsed{}, &ParseError{Provider: douyinName, Kind: KindMissingField, Field: "status_code"}
	}
	if *payload.StatusCode != 0 {
		msg := payload.StatusMsg
		if msg == "" {
			msg = "request rejected"
		}
		return Parsed{}, &ParseError{Provider: douyinName, Kind: KindProviderError, Code: *payload.StatusCode, Message: msg}
	}
	if payload.AwemeList == nil {
		return Parsed{}, &ParseError{Provider: douyinName, Kind: KindMissingField, Field: "aweme_list"}
	}

	parsed := Parsed{
		Provider: douyinName,
		Cursor:   strconv.FormatInt(payload.MaxCursor, 10),
		HasMore:  payload.HasMore != 0,
	}

	for _, aweme := range *payload.AwemeList {
		item := ParsedItem{
			ID:       aweme.AwemeID,
			Author:   aweme.Author.Nickname,
			AuthorID: aweme.Author.SecUID,
			Title:    aweme.Desc,
		}
		if aweme.AwemeID != "" {
			item.Link = douyinVideoPage + aweme.AwemeID
		}
		if aweme.CreateTime > 0 {
			item.Timestamp = time.Unix(aweme.CreateTime, 0).UTC()
		}
		item.Media = douyinMedia(aweme)
		parsed.Items = append(parsed.Items, item)
	}
	return parsed, nil
}

// douyinMedia lifts video variants and image candidates out of one aweme.
// Bit-rate variants of the main video share the "video" group so the
// extractor can rank them by quality.
func douyinMedia(aweme douyinAweme) []ParsedMedia {
	var media []ParsedMedia

	if u := firstURL(aweme.Video.PlayAddr.URLList); u != "" {
		media = append(media, ParsedMedia{
			Kind:     models.MediaKindVideo,
			URL:      u,
			Quality:  resolutionTag(aweme.Video.PlayAddr.Width, aweme.Video.PlayAddr.Height),
			SizeHint: aweme.Video.PlayAddr.DataSize,
			Group:    "video",
		})
	}
	for _, variant := range aweme.Video.BitRate {
		u := firstURL(variant.PlayAddr.URLList)
		if u == "" {
			continue
		}
		media = append(media, ParsedMedia{
			Kind:     models.MediaKindVideo,
			URL:      u,
			Quality:  variant.GearName,
			SizeHint: variant.PlayAddr.DataSize,
			Group:    "video",
		})
	}
	for i, img := range aweme.Images {
		u := firstURL(img.URLList)
		if u == "" {
			continue
		}
		media = append(media, ParsedMedia{
			Kind:  models.MediaKindImage,
			URL:   u,
			Group: "image-" + strconv.Itoa(i),
		})
	}
	return media
}

func firstURL(urls []string) string {
	for _, u := range urls {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// resolutionTag tags a variant by its shorter edge, so portrait and landscape
// encodings of the same clip compare on the same scale.
func resolutionTag(width, height int) string {
	edge := height
	if width > 0 && width < edge {
		edge = width
	}
	if edge <= 0 {
		return ""
	}
	return strconv.Itoa(edge) + "p"
}
