package hls

import (
	"regexp"
	"strconv"
	"strings"

	"tapfeed/internal/media"
)

// qualityPreference is the origin's quality-marker ladder, best first.
// Markers appear as the variant's filename under the asset directory.
var qualityPreference = []string{"2206", "2204", "2202"}

var (
	// assetIDPattern extracts the logical asset id from a media URL path.
	assetIDPattern = regexp.MustCompile(`/hls/([a-zA-Z0-9_-]+)`)

	// trailingNumberPattern matches a numeric filename before the manifest
	// extension, used to rank variants when no preference marker matches.
	trailingNumberPattern = regexp.MustCompile(`/(\d+)\.m3u8`)
)

// AssetID extracts the logical asset id from a URL, or "" when the URL does
// not follow the origin's asset path shape.
func AssetID(rawURL string) string {
	if m := assetIDPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

// IsRootManifest reports whether rawURL is the asset's root manifest
// (directly `/hls/{asset}.m3u8`) rather than a quality variant below it.
func IsRootManifest(rawURL, assetID string) bool {
	re := regexp.MustCompile(`/hls/` + regexp.QuoteMeta(assetID) + `\.m3u8`)
	return re.MatchString(rawURL)
}

// SelectBest reduces a raw candidate set to one canonical URL per logical
// asset. Candidates without an asset id pass through after exact-duplicate
// removal. For a grouped asset the single highest-quality variant wins;
// if only the root manifest was seen, the root is emitted. First-seen asset
// order is preserved.
func SelectBest(candidates []media.Candidate) []string {
	var out []string
	seen := make(map[string]bool)

	// Group by asset id while recording first-seen order.
	groups := make(map[string][]media.Candidate)
	var order []string

	for _, c := range candidates {
		if c.AssetID == "" {
			if !seen[c.URL] {
				seen[c.URL] = true
				out = append(out, c.URL)
			}
			continue
		}
		if _, ok := groups[c.AssetID]; !ok {
			order = append(order, c.AssetID)
		}
		if !containsURL(groups[c.AssetID], c.URL) {
			groups[c.AssetID] = append(groups[c.AssetID], c)
		}
	}

	for _, id := range order {
		group := groups[id]
		if len(group) == 1 {
			out = append(out, group[0].URL)
			continue
		}

		var root string
		var variants []string
		for _, c := range group {
			if c.Kind == media.KindMaster || IsRootManifest(c.URL, id) {
				root = c.URL
			} else {
				variants = append(variants, c.URL)
			}
		}

		switch {
		case len(variants) > 0:
			out = append(out, bestVariant(variants))
		case root != "":
			out = append(out, root)
		default:
			out = append(out, group[0].URL)
		}
	}

	return out
}

// bestVariant picks the highest-quality variant: the first preference marker
// that matches wins; otherwise the largest trailing numeric filename.
func bestVariant(variants []string) string {
	for _, marker := range qualityPreference {
		for _, v := range variants {
			if strings.Contains(v, marker) {
				return v
			}
		}
	}

	best := variants[0]
	bestNum := trailingNumber(best)
	for _, v := range variants[1:] {
		if n := trailingNumber(v); n > bestNum {
			best, bestNum = v, n
		}
	}
	return best
}

func trailingNumber(rawURL string) int {
	if m := trailingNumberPattern.FindStringSubmatch(rawURL); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

func containsURL(group []media.Candidate, url string) bool {
	for _, c := range group {
		if c.URL == url {
			return true
		}
	}
	return false
}
