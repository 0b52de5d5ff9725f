package browser

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"tapfeed/internal/hls"
	"tapfeed/internal/media"
)

const playInfoMarker = "video/v1/play-info"

// Sniffer classifies network responses observed during a page visit into
// media candidates, deduplicating by URL.
type Sniffer struct {
	mu         sync.Mutex
	seen       map[string]bool
	candidates []media.Candidate
	pending    map[network.RequestID]bool
	log        *zap.Logger
}

// NewSniffer creates an empty Sniffer.
func NewSniffer(log *zap.Logger) *Sniffer {
	return &Sniffer{
		seen:    make(map[string]bool),
		pending: make(map[network.RequestID]bool),
		log:     log,
	}
}

// AddURL classifies a response URL. Signed manifests on the origin's hosts
// become master or variant candidates; anything carrying .mp4 becomes a
// direct-file candidate. Other URLs are ignored.
func (s *Sniffer) AddURL(rawURL string) {
	switch {
	case strings.Contains(rawURL, ".m3u8") &&
		strings.Contains(rawURL, "sign=") &&
		strings.Contains(rawURL, "taptap.cn"):
		assetID := hls.AssetID(rawURL)
		kind := media.KindVariant
		if assetID != "" && hls.IsRootManifest(rawURL, assetID) {
			kind = media.KindMaster
		}
		s.add(media.Candidate{URL: rawURL, Kind: kind, AssetID: assetID})

	case strings.Contains(rawURL, ".mp4"):
		s.add(media.Candidate{URL: rawURL, Kind: media.KindDirectFile})
	}
}

// AddPlayInfoBody parses a play-info response body for its resolved URL.
// Malformed bodies are dropped silently; the page often probes this endpoint
// with partial requests.
func (s *Sniffer) AddPlayInfoBody(body []byte) {
	var resp struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Data.URL == "" {
		return
	}
	s.add(media.Candidate{
		URL:     resp.Data.URL,
		Kind:    media.KindAPIResolved,
		AssetID: hls.AssetID(resp.Data.URL),
	})
}

func (s *Sniffer) add(c media.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[c.URL] {
		return
	}
	s.seen[c.URL] = true
	s.candidates = append(s.candidates, c)
	s.log.Debug("sniffed media candidate",
		zap.String("url", c.URL),
		zap.Stringer("kind", c.Kind))
}

// Candidates returns a copy of everything captured so far, in capture order.
func (s *Sniffer) Candidates() []media.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]media.Candidate, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// trackPlayInfo marks a play-info request whose body should be read once the
// browser reports it finished loading.
func (s *Sniffer) trackPlayInfo(id network.RequestID) {
	s.mu.Lock()
	s.pending[id] = true
	s.mu.Unlock()
}

// takePlayInfo consumes a tracked play-info request, reporting whether it was
// tracked. Each request is taken at most once.
func (s *Sniffer) takePlayInfo(id network.RequestID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending[id] {
		return false
	}
	delete(s.pending, id)
	return true
}

// Attach subscribes the sniffer to the tab's network events. Play-info
// responses are noted when their headers arrive; the body is fetched only on
// the matching loading-finished event, since the protocol does not guarantee
// it any earlier.
func (s *Sniffer) Attach(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			s.AddURL(e.Response.URL)
			if strings.Contains(e.Response.URL, playInfoMarker) && e.Response.Status == 200 {
				s.trackPlayInfo(e.RequestID)
			}
		case *network.EventLoadingFinished:
			if !s.takePlayInfo(e.RequestID) {
				return
			}
			reqID := e.RequestID
			go func() {
				body, err := network.GetResponseBody(reqID).Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Target))
				if err != nil {
					s.log.Debug("play-info body unavailable", zap.Error(err))
					return
				}
				s.AddPlayInfoBody(body)
			}()
		}
	})
}
