package fetch

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/flover-luffy/newboy/models"
	"github.com/flover-luffy/newboy/services/gateway"
)

// ProbeResult describes what a media URL actually serves, as opposed to what
// the provider payload claimed.
type ProbeResult struct {
	URL         string           `json:"url"`
	ContentType string           `json:"contentType"`
	Kind        models.MediaKind `json:"kind,omitempty"`
	Size        int64            `json:"size,omitempty"`
	KindMatches bool             `json:"kindMatches"`
}

// probeRangeBytes is enough for every sniffer mimetype ships.
const probeRangeBytes = 3072

// Probe fetches the leading bytes of a media URL and sniffs its real content
// type. Providers routinely mislabel media (weibo serves stills behind video
// thumbs), so the sniffed kind is compared against the ref's declared kind.
// Size comes from Content-Range when the server honors the range request,
// from Content-Length otherwise.
func (s *Service) Probe(ctx context.Context, ref models.MediaRef) (ProbeResult, error) {
	header := http.Header{}
	header.Set("Range", "bytes=0-"+strconv.Itoa(probeRangeBytes-1))

	raw, err := s.gateway.Execute(ctx, gateway.Request{
		Method: http.MethodGet,
		URL:    ref.URL,
		Header: header,
	})
	if err != nil {
		return ProbeResult{}, err
	}

	mt := mimetype.Detect(raw.Body)
	result := ProbeResult{
		URL:         ref.URL,
		ContentType: mt.String(),
		Kind:        kindForMIME(mt),
		Size:        sizeFromHeaders(raw),
	}
	result.KindMatches = result.Kind == ref.Kind
	return result, nil
}

func kindForMIME(mt *mimetype.MIME) models.MediaKind {
	switch {
	case strings.HasPrefix(mt.String(), "image/"):
		return models.MediaKindImage
	case strings.HasPrefix(mt.String(), "video/"):
		return models.MediaKindVideo
	}
	// HLS playlists sniff as text but are video transports.
	if mt.Is("application/vnd.apple.mpegurl") || mt.Is("audio/x-mpegurl") {
		return models.MediaKindVideo
	}
	return ""
}

func sizeFromHeaders(raw models.RawResponse) int64 {
	// "bytes 0-3071/8388608" → total after the slash.
	if cr := raw.Header.Get("Content-Range"); cr != "" {
		if idx := strings.LastIndexByte(cr, '/'); idx >= 0 {
			if n, err := strconv.ParseInt(cr[idx+1:], 10, 64); err == nil {
				return n
			}
		}
	}
	if raw.StatusCode == http.StatusOK {
		if n, err := strconv.ParseInt(raw.Header.Get("Content-Length"), 10, 64); err == nil {
			return n
		}
	}
	return 0
}
