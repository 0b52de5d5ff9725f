// Package nuxt decodes the origin's embedded application-state payload.
//
// The payload ships as a flat JSON array in which an entry may be a literal
// value or a small integer reference that indexes back into the same array.
// Extraction of the array from page markup is regex-and-selector based and
// therefore coupled to the origin's current templates; keeping it isolated
// here means origin drift breaks one package, loudly.
package nuxt

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrMalformedPayload is returned when no known embedding pattern matches.
var ErrMalformedPayload = errors.New("malformed payload: no embedded state found")

// Payload is the decoded application-state array.
type Payload []any

const scriptID = "__NUXT_DATA__"

var (
	scriptTagPattern = regexp.MustCompile(`(?s)<script[^>]*id=["']?__NUXT_DATA__["']?[^>]*>(.*?)</script>`)
	inlineArrPattern = regexp.MustCompile(`(?s)__NUXT_DATA__\s*=\s*(\[.*?\])`)
	windowPattern    = regexp.MustCompile(`(?s)window\.__NUXT__\s*=\s*(\[.*?\])`)
	windowDataPat    = regexp.MustCompile(`(?s)window\.__NUXT_DATA__\s*=\s*(\[.*?\])`)
)

// Resolve follows at most one level of indirection: an integer value that is
// a valid index into p returns p[value]; anything else (including
// out-of-range integers such as large numeric ids stored inline) is returned
// unchanged.
func Resolve(p Payload, value any) any {
	switch v := value.(type) {
	case int:
		if v >= 0 && v < len(p) {
			return p[v]
		}
	case float64:
		// encoding/json decodes array numbers as float64.
		i := int(v)
		if float64(i) == v && i >= 0 && i < len(p) {
			return p[i]
		}
	}
	return value
}

// ResolveString resolves value and returns it if it is a non-empty string.
func ResolveString(p Payload, value any) (string, bool) {
	s, ok := Resolve(p, value).(string)
	return s, ok && s != ""
}

// Decode extracts the payload array from page markup, trying each known
// embedding pattern in order.
func Decode(html string) (Payload, error) {
	// DOM lookup first: the canonical embedding is a JSON script element.
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		text := strings.TrimSpace(doc.Find("script#" + scriptID).Text())
		if text != "" {
			if p, err := parseArray(text); err == nil {
				return p, nil
			}
		}
	}

	// Regex fallbacks, for markup goquery refuses or scripts assembled
	// inline by the page.
	if m := scriptTagPattern.FindStringSubmatch(html); m != nil {
		if inner := inlineArrPattern.FindStringSubmatch(m[1]); inner != nil {
			if p, err := parseArray(inner[1]); err == nil {
				return p, nil
			}
		}
		if p, err := parseArray(strings.TrimSpace(m[1])); err == nil {
			return p, nil
		}
	}

	for _, re := range []*regexp.Regexp{windowPattern, windowDataPat} {
		if m := re.FindStringSubmatch(html); m != nil {
			if p, err := parseArray(m[1]); err == nil {
				return p, nil
			}
		}
	}

	return nil, ErrMalformedPayload
}

// DecodeScript parses the raw text content of the payload script element,
// as read out of a live page by the browser session.
func DecodeScript(text string) (Payload, error) {
	p, err := parseArray(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return p, nil
}

func parseArray(text string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, err
	}
	return p, nil
}
