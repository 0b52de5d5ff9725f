// Package hls resolves HLS manifests into ordered segment lists and picks
// one canonical URL per logical media asset out of a sniffed candidate set.
package hls

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"tapfeed/internal/httputil"
)

// ErrNoSubPlaylists is returned when a master manifest lists no sub-manifests.
var ErrNoSubPlaylists = errors.New("master playlist contains no sub-playlists")

// masterMarker distinguishes a master manifest from a media manifest.
const masterMarker = "#EXT-X-STREAM-INF"

// maxPlaylistDepth bounds master-manifest recursion so a manifest that
// references itself cannot loop the resolver.
const maxPlaylistDepth = 4

// Resolver fetches and resolves HLS manifests.
type Resolver struct {
	client  *http.Client
	referer string
	log     *zap.Logger
}

// NewResolver creates a Resolver that fetches manifests with the given client.
func NewResolver(client *http.Client, referer string, log *zap.Logger) *Resolver {
	return &Resolver{client: client, referer: referer, log: log}
}

// Resolve fetches the manifest at manifestURL and returns the ordered list
// of segment URLs. Master manifests are followed recursively through the
// last listed sub-manifest.
//
// TODO: the origin always lists its best rendition last; verify against
// manifests from other CDN edges before relying on it further.
func (r *Resolver) Resolve(ctx context.Context, manifestURL string) ([]string, error) {
	return r.resolve(ctx, manifestURL, 0)
}

func (r *Resolver) resolve(ctx context.Context, manifestURL string, depth int) ([]string, error) {
	body, err := httputil.GetText(ctx, r.client, manifestURL, r.referer)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}

	if strings.Contains(body, masterMarker) {
		if depth >= maxPlaylistDepth {
			return nil, fmt.Errorf("sub-playlist nesting exceeds %d levels at %s", maxPlaylistDepth, manifestURL)
		}
		subs := manifestLines(manifestURL, body)
		if len(subs) == 0 {
			return nil, ErrNoSubPlaylists
		}
		next := subs[len(subs)-1]
		r.log.Debug("following sub-playlist", zap.String("url", next))
		return r.resolve(ctx, next, depth+1)
	}

	segments := manifestLines(manifestURL, body)
	return segments, nil
}

// manifestLines returns every non-comment, non-empty line of a manifest,
// resolved against the manifest's base URL, in file order.
func manifestLines(manifestURL, body string) []string {
	base, baseErr := url.Parse(manifestURL)

	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, resolveReference(base, baseErr, line))
	}
	return out
}

// resolveReference resolves a manifest line against the manifest base URL.
// Absolute lines pass through; a broken base URL degrades to the raw line.
func resolveReference(base *url.URL, baseErr error, line string) string {
	if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
		return line
	}
	if baseErr != nil || base == nil {
		return line
	}
	ref, err := url.Parse(line)
	if err != nil {
		return line
	}
	return base.ResolveReference(ref).String()
}
