// Package media defines shared types for the tapfeed application.
package media

import (
	"strings"
	"time"
)

// Author identifies the creator of a piece of content.
type Author struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Stats holds the numeric counters attached to a piece of content.
type Stats struct {
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
	Views    int64 `json:"views"`
	Plays    int64 `json:"plays"`
}

// Comment is a single top-level comment on a piece of content.
type Comment struct {
	ID        string     `json:"id"`
	Author    Author     `json:"author"`
	Text      string     `json:"text"`
	Likes     int64      `json:"likes"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// ContentBundle is the normalized output of one extraction.
// It is created per extraction call and never mutated after being returned.
type ContentBundle struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Title      string            `json:"title"`
	Text       string            `json:"text,omitempty"`
	Images     []string          `json:"images,omitempty"`
	Videos     []string          `json:"videos,omitempty"`
	VideoID    string            `json:"video_id,omitempty"`
	VideoCover string            `json:"video_cover,omitempty"`
	Author     *Author           `json:"author,omitempty"`
	Stats      Stats             `json:"stats"`
	Timestamp  *time.Time        `json:"timestamp,omitempty"`
	Comments   []Comment         `json:"comments,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// CandidateKind classifies a sniffed media locator URL.
type CandidateKind int

const (
	// KindMaster is a top-level HLS manifest covering all qualities.
	KindMaster CandidateKind = iota
	// KindVariant is a single-quality HLS sub-manifest.
	KindVariant
	// KindDirectFile is a direct video file URL.
	KindDirectFile
	// KindAPIResolved is a signed URL returned by the play-info endpoint.
	KindAPIResolved
)

func (k CandidateKind) String() string {
	switch k {
	case KindMaster:
		return "master"
	case KindVariant:
		return "variant"
	case KindDirectFile:
		return "direct"
	case KindAPIResolved:
		return "api"
	default:
		return "unknown"
	}
}

// Candidate is a media locator URL captured during one sniffing session.
type Candidate struct {
	URL     string
	Kind    CandidateKind
	AssetID string // logical asset id parsed from the URL path, may be empty
}

// CompareIDs orders two content ids by numeric magnitude without parsing
// them into machine integers (ids routinely exceed 19 digits).
// Returns -1 if a < b, 0 if equal, 1 if a > b.
func CompareIDs(a, b string) int {
	a = strings.TrimLeft(strings.TrimSpace(a), "0")
	b = strings.TrimLeft(strings.TrimSpace(b), "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// NewerID reports whether candidate is strictly newer than current.
// An empty current always loses.
func NewerID(candidate, current string) bool {
	if candidate == "" {
		return false
	}
	if current == "" {
		return true
	}
	return CompareIDs(candidate, current) > 0
}
