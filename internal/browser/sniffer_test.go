package browser

import (
	"testing"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"

	"tapfeed/internal/media"
)

func TestSnifferClassifiesManifests(t *testing.T) {
	s := NewSniffer(zap.NewNop())
	s.AddURL("https://v.taptap.cn/hls/abc123.m3u8?sign=xyz")
	s.AddURL("https://v.taptap.cn/hls/abc123/2206.m3u8?sign=xyz")

	got := s.Candidates()
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].Kind != media.KindMaster || got[0].AssetID != "abc123" {
		t.Errorf("candidate[0] = %+v, want master", got[0])
	}
	if got[1].Kind != media.KindVariant || got[1].AssetID != "abc123" {
		t.Errorf("candidate[1] = %+v, want variant", got[1])
	}
}

func TestSnifferIgnoresUnsignedAndForeignManifests(t *testing.T) {
	s := NewSniffer(zap.NewNop())
	s.AddURL("https://v.taptap.cn/hls/abc.m3u8")                 // no signature
	s.AddURL("https://ads.example.com/clip.m3u8?sign=xyz")       // wrong host
	s.AddURL("https://v.taptap.cn/thumb/poster.jpg?sign=xyz")    // not a manifest
	if got := s.Candidates(); len(got) != 0 {
		t.Fatalf("candidates = %v, want none", got)
	}
}

func TestSnifferDirectFile(t *testing.T) {
	s := NewSniffer(zap.NewNop())
	s.AddURL("https://cdn.example.com/video/clip.mp4?token=1")

	got := s.Candidates()
	if len(got) != 1 || got[0].Kind != media.KindDirectFile {
		t.Fatalf("candidates = %v", got)
	}
}

func TestSnifferDeduplicates(t *testing.T) {
	s := NewSniffer(zap.NewNop())
	url := "https://v.taptap.cn/hls/abc/2206.m3u8?sign=xyz"
	s.AddURL(url)
	s.AddURL(url)
	if got := s.Candidates(); len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
}

func TestSnifferPlayInfoBody(t *testing.T) {
	s := NewSniffer(zap.NewNop())
	s.AddPlayInfoBody([]byte(`{"data": {"url": "https://v.taptap.cn/hls/xyz/2206.m3u8?sign=a"}}`))
	s.AddPlayInfoBody([]byte(`{"data": {}}`))
	s.AddPlayInfoBody([]byte(`not json`))

	got := s.Candidates()
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].Kind != media.KindAPIResolved || got[0].AssetID != "xyz" {
		t.Errorf("candidate = %+v", got[0])
	}
}

func TestSnifferPlayInfoTracking(t *testing.T) {
	s := NewSniffer(zap.NewNop())
	id := network.RequestID("req-1")

	if s.takePlayInfo(id) {
		t.Fatal("untracked request was taken")
	}
	s.trackPlayInfo(id)
	if !s.takePlayInfo(id) {
		t.Fatal("tracked request not taken on loading-finished")
	}
	if s.takePlayInfo(id) {
		t.Error("request taken twice")
	}
}

func TestSnifferCandidatesIsACopy(t *testing.T) {
	s := NewSniffer(zap.NewNop())
	s.AddURL("https://v.taptap.cn/hls/abc.m3u8?sign=xyz")

	first := s.Candidates()
	first[0].URL = "mutated"
	if got := s.Candidates(); got[0].URL == "mutated" {
		t.Error("Candidates returned internal slice")
	}
}
