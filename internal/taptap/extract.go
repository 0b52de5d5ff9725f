package taptap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tapfeed/internal/hls"
	"tapfeed/internal/httputil"
	"tapfeed/internal/media"
	"tapfeed/internal/nuxt"
)

// ErrUnavailable is returned when neither extraction path produced a bundle.
var ErrUnavailable = errors.New("content unavailable through any extraction path")

// imageBlacklist filters chrome assets (icons, avatars, emoji sprites) out of
// payload-derived image lists.
var imageBlacklist = []string{"appicon", "avatars", "logo", "badge", "emojis", "market"}

// Capture is what a browser visit to a moment page yields: the page payload
// plus every media candidate sniffed off the network.
type Capture struct {
	Payload    nuxt.Payload
	Candidates []media.Candidate
}

// Browser drives a headless visit to a page and reports its Capture.
type Browser interface {
	Capture(ctx context.Context, pageURL string) (*Capture, error)
}

// Extractor combines the structured API path with the browser path. The API
// path runs first; the browser runs only when the API failed outright or
// reported a video it could not resolve to a playable URL.
type Extractor struct {
	client  *Client
	browser Browser
	log     *zap.Logger
}

// NewExtractor creates an Extractor. browser may be nil, restricting
// extraction to the API path.
func NewExtractor(client *Client, browser Browser, log *zap.Logger) *Extractor {
	return &Extractor{client: client, browser: browser, log: log}
}

// Extract produces the content bundle for a moment. Fields filled by the API
// path win over browser-derived values; the browser only supplements what the
// API left empty.
func (e *Extractor) Extract(ctx context.Context, momentID string) (*media.ContentBundle, error) {
	bundle, apiErr := e.apiPath(ctx, momentID)
	apiOK := apiErr == nil
	if !apiOK {
		e.log.Warn("api extraction failed", zap.String("moment", momentID), zap.Error(apiErr))
		bundle = &media.ContentBundle{
			ID:  momentID,
			URL: e.client.BaseURL + "/moment/" + momentID,
		}
	}

	needBrowser := !apiOK || (bundle.VideoID != "" && len(bundle.Videos) == 0)
	if needBrowser && e.browser != nil {
		if err := e.browserPath(ctx, bundle); err != nil {
			e.log.Warn("browser extraction failed", zap.String("moment", momentID), zap.Error(err))
			if !apiOK {
				return nil, fmt.Errorf("%w: %s", ErrUnavailable, momentID)
			}
		}
	} else if !apiOK {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, momentID)
	}

	return bundle, nil
}

// apiPath fetches structured detail, resolves the pinned video through the
// play-info endpoint, and attaches comments best effort.
func (e *Extractor) apiPath(ctx context.Context, momentID string) (*media.ContentBundle, error) {
	bundle, err := e.client.MomentDetail(ctx, momentID)
	if err != nil {
		return nil, err
	}

	if bundle.VideoID != "" {
		if playURL, err := e.client.PlayInfo(ctx, bundle.VideoID); err != nil {
			e.log.Debug("play-info lookup failed",
				zap.String("video", bundle.VideoID), zap.Error(err))
		} else {
			bundle.Videos = append(bundle.Videos, playURL)
		}
	}

	if comments, err := e.client.Comments(ctx, momentID); err != nil {
		e.log.Debug("comment fetch failed", zap.String("moment", momentID), zap.Error(err))
	} else {
		bundle.Comments = comments
	}

	return bundle, nil
}

// browserPath visits the moment page headlessly and folds the capture into
// bundle, filling only what is still empty.
func (e *Extractor) browserPath(ctx context.Context, bundle *media.ContentBundle) error {
	capture, err := e.browser.Capture(ctx, bundle.URL)
	if err != nil {
		return fmt.Errorf("browser capture: %w", err)
	}
	MergeCapture(bundle, capture)
	return nil
}

// Latest returns the newest moment listing for a user.
func (e *Extractor) Latest(ctx context.Context, userID string) (*Listing, error) {
	p, err := e.userPayload(ctx, userID)
	if err != nil {
		return nil, err
	}
	return LatestListing(p)
}

// Profile looks up a user's identity from their page payload.
func (e *Extractor) Profile(ctx context.Context, userID string) (*Profile, error) {
	p, err := e.userPayload(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ProfileFromPayload(p, userID)
}

// userPayload decodes a user page's embedded payload, falling back to a
// browser visit when the plain fetch is blocked or stripped.
func (e *Extractor) userPayload(ctx context.Context, userID string) (nuxt.Payload, error) {
	if err := httputil.ValidateNumericID(userID); err != nil {
		return nil, err
	}
	pageURL := e.client.BaseURL + "/user/" + userID

	html, err := e.client.FetchPage(ctx, "/user/"+userID)
	if err == nil {
		if p, err := nuxt.Decode(html); err == nil {
			return p, nil
		}
	}
	e.log.Debug("plain user page fetch yielded no payload",
		zap.String("user", userID), zap.Error(err))

	if e.browser == nil {
		return nil, fmt.Errorf("%w: user %s", ErrUnavailable, userID)
	}
	capture, err := e.browser.Capture(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("browser capture: %w", err)
	}
	if capture.Payload == nil {
		return nil, fmt.Errorf("%w: user %s", ErrUnavailable, userID)
	}
	return capture.Payload, nil
}

// MergeCapture folds a browser capture into a bundle. Existing non-empty
// bundle fields are kept; payload-derived candidates join the sniffed set
// before quality selection.
func MergeCapture(bundle *media.ContentBundle, capture *Capture) {
	candidates := capture.Candidates

	if capture.Payload != nil {
		title, summary := titleAndSummary(capture.Payload)
		if bundle.Title == "" || bundle.Title == "TapTap 动态分享" {
			if title != "" {
				bundle.Title = title
			}
		}
		if bundle.Text == "" && summary != "" {
			bundle.Text = summary
		}
		if len(bundle.Images) == 0 {
			bundle.Images = payloadImages(capture.Payload)
		}
		candidates = append(candidates, payloadVideoCandidates(capture.Payload)...)
	}

	for _, v := range hls.SelectBest(candidates) {
		if !containsString(bundle.Videos, v) {
			bundle.Videos = append(bundle.Videos, v)
		}
	}
}

// titleAndSummary finds the first payload entry carrying both a title and a
// summary.
func titleAndSummary(p nuxt.Payload) (title, summary string) {
	for _, entry := range p {
		row, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if _, hasTitle := row["title"]; !hasTitle {
			continue
		}
		if _, hasSummary := row["summary"]; !hasSummary {
			continue
		}
		t, _ := nuxt.ResolveString(p, row["title"])
		s, _ := nuxt.ResolveString(p, row["summary"])
		if title == "" && t != "" {
			title = t
		}
		if summary == "" && s != "" {
			summary = s
		}
		if title != "" && summary != "" {
			return title, summary
		}
	}
	return title, summary
}

// payloadImages collects original_url values from the payload, filtered
// through the chrome-asset blacklist, order-preserving and deduplicated.
func payloadImages(p nuxt.Payload) []string {
	var out []string
	for _, entry := range p {
		row, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		ref, ok := row["original_url"]
		if !ok {
			continue
		}
		u, ok := nuxt.ResolveString(p, ref)
		if !ok || !strings.HasPrefix(u, "http") {
			continue
		}
		if blacklisted(u) || containsString(out, u) {
			continue
		}
		out = append(out, u)
	}
	return out
}

// payloadVideoCandidates finds direct MP4 links embedded in the payload.
func payloadVideoCandidates(p nuxt.Payload) []media.Candidate {
	var out []media.Candidate
	for _, entry := range p {
		row, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range []string{"video_url", "url"} {
			ref, ok := row[key]
			if !ok {
				continue
			}
			u, ok := nuxt.ResolveString(p, ref)
			if ok && strings.HasPrefix(u, "http") && strings.Contains(u, ".mp4") {
				out = append(out, media.Candidate{URL: u, Kind: media.KindDirectFile})
				break
			}
		}
	}
	return out
}

func blacklisted(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, marker := range imageBlacklist {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
