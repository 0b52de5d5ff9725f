package nuxt

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	p := Payload{"zero", "one", float64(7), "three"}

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"in-range int", 1, "one"},
		{"in-range float", float64(0), "zero"},
		{"index to number entry", 2, float64(7)},
		{"out-of-range returns literal", 99, 99},
		{"negative returns literal", -1, -1},
		{"large id stays literal", float64(612233445566), float64(612233445566)},
		{"non-integral float", 1.5, 1.5},
		{"string passthrough", "hello", "hello"},
		{"nil passthrough", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(p, tt.value); got != tt.want {
				t.Errorf("Resolve(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestResolveEveryIndex(t *testing.T) {
	p := Payload{"a", "b", "c", "d"}
	for i := range p {
		if got := Resolve(p, i); got != p[i] {
			t.Errorf("Resolve(%d) = %v, want %v", i, got, p[i])
		}
	}
	if got := Resolve(p, len(p)); got != len(p) {
		t.Errorf("Resolve(len) = %v, want literal %d", got, len(p))
	}
}

func TestDecodeScriptElement(t *testing.T) {
	html := `<html><head>
<script id="__NUXT_DATA__" type="application/json">["a", 1, {"title": 0}]</script>
</head><body></body></html>`

	p, err := Decode(html)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(p) != 3 {
		t.Fatalf("len = %d, want 3", len(p))
	}
	if p[0] != "a" {
		t.Errorf("p[0] = %v, want 'a'", p[0])
	}
}

func TestDecodeWindowAssignment(t *testing.T) {
	html := `<html><body><script>window.__NUXT__ = ["x", "y"];</script></body></html>`

	p, err := Decode(html)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(p) != 2 || p[1] != "y" {
		t.Fatalf("unexpected payload %v", p)
	}
}

func TestDecodeWindowDataAssignment(t *testing.T) {
	html := `<script>window.__NUXT_DATA__ = [42];</script>`

	p, err := Decode(html)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(p) != 1 {
		t.Fatalf("unexpected payload %v", p)
	}
}

func TestDecodeNoPayload(t *testing.T) {
	_, err := Decode("<html><body>nothing here</body></html>")
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("err = %v, want ErrMalformedPayload", err)
	}
}

func TestDecodeScript(t *testing.T) {
	p, err := DecodeScript(` ["a", 2, 3] `)
	if err != nil {
		t.Fatalf("DecodeScript: %v", err)
	}
	if len(p) != 3 {
		t.Fatalf("len = %d, want 3", len(p))
	}

	if _, err := DecodeScript("{not an array}"); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("err = %v, want ErrMalformedPayload", err)
	}
}
