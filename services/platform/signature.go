package platform

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strconv"
)

// Query-string construction and request signing for the Douyin web API.
// The a_bogus parameter is a digest of the canonical query: the same logical
// request always signs identically, which keeps request construction
// deterministic and testable.

const douyinSignPrefix = "DFSzsAABCkJp"

// douyinFingerprint carries the stable web-client identity parameters the
// aweme endpoints expect alongside the query proper.
var douyinFingerprint = map[string]string{
	"aid":              "6383",
	"device_platform":  "webapp",
	"channel":          "channel_pc_web",
	"cookie_enabled":   "true",
	"platform":         "PC",
	"pc_client_type":   "1",
	"version_code":     "170400",
	"version_name":     "17.4.0",
	"browser_language": "zh-CN",
	"browser_platform": "Win32",
	"browser_name":     "Chrome",
	"browser_version":  "120.0.0.0",
	"browser_online":   "true",
	"engine_name":      "Blink",
	"engine_version":   "120.0.0.0",
	"os_name":          "Windows",
	"os_version":       "10",
	"screen_width":     "1920",
	"screen_height":    "1080",
	"cpu_core_num":     "8",
	"device_memory":    "8",
	"downlink":         "10",
	"effective_type":   "4g",
	"round_trip_time":  "50",
}

// buildAwemePostQuery assembles the canonical query for the aweme post
// endpoint. url.Values.Encode sorts keys, so the output is stable.
func buildAwemePostQuery(secUserID, cursor string, count int) string {
	if cursor == "" {
		cursor = "0"
	}
	if count <= 0 {
		count = 18
	}

	params := url.Values{}
	for k, v := range douyinFingerprint {
		params.Set(k, v)
	}
	params.Set("sec_user_id", secUserID)
	params.Set("max_cursor", cursor)
	params.Set("count", strconv.Itoa(count))

	query := params.Encode()
	params.Set("a_bogus", signQuery(query))
	return params.Encode()
}

// signQuery derives the a_bogus signature from the unsigned query string.
func signQuery(query string) string {
	sum := md5.Sum([]byte(query))
	return douyinSignPrefix + hex.EncodeToString(sum[:])[:16]
}
