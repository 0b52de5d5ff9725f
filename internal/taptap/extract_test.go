package taptap

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"tapfeed/internal/media"
	"tapfeed/internal/nuxt"
)

type fakeBrowser struct {
	capture *Capture
	err     error
	visits  int
}

func (f *fakeBrowser) Capture(ctx context.Context, pageURL string) (*Capture, error) {
	f.visits++
	return f.capture, f.err
}

func detailMux(withPlayInfo bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/webapiv2/moment/v3/detail", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(detailBody))
	})
	mux.HandleFunc("/webapiv2/moment-comment/v1/by-moment", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": {"list": []}}`))
	})
	mux.HandleFunc("/video/v1/play-info", func(w http.ResponseWriter, r *http.Request) {
		if !withPlayInfo {
			http.Error(w, "denied", http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"data": {"url": "https://v.example.cn/hls/abc.m3u8?sign=xyz"}}`))
	})
	return mux
}

func TestExtractAPIOnlyWhenVideoResolved(t *testing.T) {
	c := newTestClient(t, detailMux(true))
	browser := &fakeBrowser{}
	e := NewExtractor(c, browser, zap.NewNop())

	bundle, err := e.Extract(context.Background(), "612233445566778899")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if browser.visits != 0 {
		t.Errorf("browser visited %d times, want 0 when the API resolved the video", browser.visits)
	}
	if len(bundle.Videos) != 1 || bundle.Videos[0] != "https://v.example.cn/hls/abc.m3u8?sign=xyz" {
		t.Errorf("Videos = %v", bundle.Videos)
	}
}

func TestExtractFallsBackToBrowserForUnresolvedVideo(t *testing.T) {
	c := newTestClient(t, detailMux(false))
	browser := &fakeBrowser{capture: &Capture{
		Candidates: []media.Candidate{
			{URL: "https://v.example.cn/hls/77/2204.m3u8?sign=a", Kind: media.KindVariant, AssetID: "77"},
			{URL: "https://v.example.cn/hls/77/2206.m3u8?sign=b", Kind: media.KindVariant, AssetID: "77"},
			{URL: "https://v.example.cn/hls/77.m3u8?sign=c", Kind: media.KindMaster, AssetID: "77"},
		},
	}}
	e := NewExtractor(c, browser, zap.NewNop())

	bundle, err := e.Extract(context.Background(), "612233445566778899")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if browser.visits != 1 {
		t.Errorf("browser visited %d times, want 1", browser.visits)
	}
	if len(bundle.Videos) != 1 || bundle.Videos[0] != "https://v.example.cn/hls/77/2206.m3u8?sign=b" {
		t.Errorf("Videos = %v, want best variant only", bundle.Videos)
	}
	// API-derived fields survive the merge.
	if bundle.Title != "版本前瞻" {
		t.Errorf("Title = %q", bundle.Title)
	}
}

func TestExtractUnavailable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	e := NewExtractor(c, nil, zap.NewNop())

	if _, err := e.Extract(context.Background(), "612233445566778899"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestExtractBrowserOnly(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	browser := &fakeBrowser{capture: &Capture{
		Payload: nuxt.Payload{
			map[string]any{"title": 1, "summary": 2},
			"页面标题",
			"页面摘要",
			map[string]any{"original_url": 4},
			"https://img.example.cn/content/pic1.png",
			map[string]any{"original_url": 6},
			"https://img.example.cn/avatars/u.png",
		},
		Candidates: []media.Candidate{
			{URL: "https://v.example.cn/file/clip.mp4", Kind: media.KindDirectFile},
		},
	}}
	e := NewExtractor(c, browser, zap.NewNop())

	bundle, err := e.Extract(context.Background(), "612233445566778899")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if bundle.Title != "页面标题" || bundle.Text != "页面摘要" {
		t.Errorf("title/text = %q / %q", bundle.Title, bundle.Text)
	}
	// Avatar URLs are chrome assets, not content.
	if len(bundle.Images) != 1 || bundle.Images[0] != "https://img.example.cn/content/pic1.png" {
		t.Errorf("Images = %v", bundle.Images)
	}
	if len(bundle.Videos) != 1 || bundle.Videos[0] != "https://v.example.cn/file/clip.mp4" {
		t.Errorf("Videos = %v", bundle.Videos)
	}
}

func TestExtractBothPathsFail(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	browser := &fakeBrowser{err: errors.New("navigation timeout")}
	e := NewExtractor(c, browser, zap.NewNop())

	if _, err := e.Extract(context.Background(), "612233445566778899"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestMergeCapturePayloadMP4Candidates(t *testing.T) {
	bundle := &media.ContentBundle{ID: "1", Title: "kept"}
	MergeCapture(bundle, &Capture{
		Payload: nuxt.Payload{
			map[string]any{"video_url": 1},
			"https://v.example.cn/file/inline.mp4",
		},
	})
	if bundle.Title != "kept" {
		t.Errorf("Title overwritten: %q", bundle.Title)
	}
	if len(bundle.Videos) != 1 || bundle.Videos[0] != "https://v.example.cn/file/inline.mp4" {
		t.Errorf("Videos = %v", bundle.Videos)
	}
}

func TestLatestFallsBackToBrowser(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Page without an embedded payload, e.g. a WAF interstitial.
		w.Write([]byte("<html><body>checking your browser</body></html>"))
	}))
	browser := &fakeBrowser{capture: &Capture{Payload: listingPayload()}}
	e := NewExtractor(c, browser, zap.NewNop())

	got, err := e.Latest(context.Background(), "36924")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if browser.visits != 1 {
		t.Errorf("browser visits = %d, want 1", browser.visits)
	}
	if got.ID != "61223344556677889901" {
		t.Errorf("ID = %q", got.ID)
	}
}
