package taptap

import (
	"errors"
	"strconv"

	"tapfeed/internal/media"
	"tapfeed/internal/nuxt"
)

// ErrNoListings is returned when a user page payload yields no moments.
var ErrNoListings = errors.New("no moments found for user")

// listingSignature is the key set identifying a moment row in a user page
// payload.
var listingSignature = [...]string{"id_str", "author", "topic", "created_time"}

// LatestListing scans a user page payload for moment rows and returns the one
// with the greatest content id.
func LatestListing(p nuxt.Payload) (*Listing, error) {
	var best *Listing

	for _, entry := range p {
		row, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if !hasKeys(row, listingSignature[:]) {
			continue
		}

		id, ok := nuxt.ResolveString(p, row["id_str"])
		if !ok || !isDigits(id) || len(id) <= 10 {
			continue
		}

		// The topic field must reference a payload map entry; rows with an
		// inline or dangling topic are stale duplicates.
		topic, ok := referencedMap(p, row["topic"])
		if !ok {
			continue
		}

		if best != nil && media.CompareIDs(id, best.ID) <= 0 {
			continue
		}
		l := &Listing{ID: id}
		l.Title, _ = nuxt.ResolveString(p, topic["title"])
		l.Summary, _ = nuxt.ResolveString(p, topic["summary"])
		best = l
	}

	if best == nil {
		return nil, ErrNoListings
	}
	return best, nil
}

// ProfileFromPayload scans a user page payload for the identity entry
// matching userID.
func ProfileFromPayload(p nuxt.Payload, userID string) (*Profile, error) {
	want, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, errors.New("user id must be numeric")
	}

	for _, entry := range p {
		row, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if _, hasID := row["id"]; !hasID {
			continue
		}
		if _, hasName := row["name"]; !hasName {
			continue
		}

		id, ok := resolveInt(p, row["id"])
		if !ok || id != want {
			continue
		}

		prof := &Profile{UserID: userID}
		prof.Nickname, _ = nuxt.ResolveString(p, row["name"])
		prof.AvatarURL, _ = nuxt.ResolveString(p, row["avatar"])
		return prof, nil
	}
	return nil, errors.New("user not found in page payload")
}

func hasKeys(row map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := row[k]; !ok {
			return false
		}
	}
	return true
}

// referencedMap requires value to be an integer index into p whose target is
// a map.
func referencedMap(p nuxt.Payload, value any) (map[string]any, bool) {
	var idx int
	switch v := value.(type) {
	case int:
		idx = v
	case float64:
		if float64(int(v)) != v {
			return nil, false
		}
		idx = int(v)
	default:
		return nil, false
	}
	if idx < 0 || idx >= len(p) {
		return nil, false
	}
	m, ok := p[idx].(map[string]any)
	return m, ok
}

// resolveInt resolves value and interprets the result as an integer; JSON
// numbers arrive as float64.
func resolveInt(p nuxt.Payload, value any) (int64, bool) {
	switch v := nuxt.Resolve(p, value).(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
