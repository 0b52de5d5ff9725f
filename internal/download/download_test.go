package download

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"tapfeed/internal/hls"
)

// newTestDownloader wires a Downloader against srv with ffmpeg disabled, so
// the raw transport stream is renamed into place.
func newTestDownloader(t *testing.T, srv *httptest.Server) (*Downloader, string) {
	t.Helper()
	dir := t.TempDir()
	resolver := hls.NewResolver(srv.Client(), "", zap.NewNop())
	d := New(srv.Client(), resolver, dir, "", nil, zap.NewNop())
	d.retryDelay = 0
	d.ffmpegPath = func() (string, error) { return "", errors.New("ffmpeg disabled in test") }
	return d, dir
}

func segmentServer(t *testing.T, hits *int) *httptest.Server {
	t.Helper()
	payload := bytes.Repeat([]byte{0x47}, 600)
	mux := http.NewServeMux()
	mux.HandleFunc("/hls/vid.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\nseg0.ts\nseg1.ts\n"))
	})
	mux.HandleFunc("/hls/seg0.ts", func(w http.ResponseWriter, r *http.Request) {
		*hits++
		w.Write(payload)
	})
	mux.HandleFunc("/hls/seg1.ts", func(w http.ResponseWriter, r *http.Request) {
		*hits++
		w.Write(payload)
	})
	return httptest.NewTLSServer(mux)
}

func TestFetchAssemblesSegmentsInOrder(t *testing.T) {
	var hits int
	srv := segmentServer(t, &hits)
	defer srv.Close()

	d, dir := newTestDownloader(t, srv)
	path, err := d.Fetch(context.Background(), "job1", srv.URL+"/hls/vid.m3u8")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if path != filepath.Join(dir, "job1.mp4") {
		t.Errorf("path = %q", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat result: %v", err)
	}
	if info.Size() != 1200 {
		t.Errorf("size = %d, want 1200 (both segments, in order)", info.Size())
	}
	if _, err := os.Stat(filepath.Join(dir, "job1_temp.ts")); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestFetchCacheHitSkipsNetwork(t *testing.T) {
	var hits int
	srv := segmentServer(t, &hits)
	defer srv.Close()

	d, _ := newTestDownloader(t, srv)
	first, err := d.Fetch(context.Background(), "job1", srv.URL+"/hls/vid.m3u8")
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	hitsAfterFirst := hits

	second, err := d.Fetch(context.Background(), "job1", srv.URL+"/hls/vid.m3u8")
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if second != first {
		t.Errorf("cache hit path = %q, want %q", second, first)
	}
	if hits != hitsAfterFirst {
		t.Errorf("second Fetch hit the network (%d -> %d segment requests)", hitsAfterFirst, hits)
	}
}

func TestFetchSkipsFailingSegment(t *testing.T) {
	payload := bytes.Repeat([]byte{0x47}, 1100)
	mux := http.NewServeMux()
	mux.HandleFunc("/hls/vid.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\nbad.ts\ngood.ts\n"))
	})
	mux.HandleFunc("/hls/bad.ts", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/hls/good.ts", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})
	srv := httptest.NewTLSServer(mux)
	defer srv.Close()

	d, _ := newTestDownloader(t, srv)
	path, err := d.Fetch(context.Background(), "job1", srv.URL+"/hls/vid.m3u8")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	info, _ := os.Stat(path)
	if info.Size() != int64(len(payload)) {
		t.Errorf("size = %d, want only the good segment (%d)", info.Size(), len(payload))
	}
}

func TestFetchTooSmall(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/hls/vid.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\ntiny.ts\n"))
	})
	mux.HandleFunc("/hls/tiny.ts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	})
	srv := httptest.NewTLSServer(mux)
	defer srv.Close()

	d, dir := newTestDownloader(t, srv)
	_, err := d.Fetch(context.Background(), "job1", srv.URL+"/hls/vid.m3u8")
	if !errors.Is(err, ErrTooSmall) {
		t.Fatalf("err = %v, want ErrTooSmall", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "job1_temp.ts")); !os.IsNotExist(err) {
		t.Error("partial file not cleaned up")
	}
}

func TestFetchEmptyPlaylist(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXT-X-ENDLIST\n"))
	}))
	defer srv.Close()

	d, _ := newTestDownloader(t, srv)
	_, err := d.Fetch(context.Background(), "job1", srv.URL+"/hls/vid.m3u8")
	if !errors.Is(err, ErrEmptyPlaylist) {
		t.Fatalf("err = %v, want ErrEmptyPlaylist", err)
	}
}

func TestFetchContainsTraversalJobID(t *testing.T) {
	var hits int
	srv := segmentServer(t, &hits)
	defer srv.Close()

	d, dir := newTestDownloader(t, srv)
	path, err := d.Fetch(context.Background(), "../escape", srv.URL+"/hls/vid.m3u8")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path %q escaped cache dir %q", path, dir)
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(dir), "escape.mp4")); !os.IsNotExist(statErr) {
		t.Error("file written outside cache dir")
	}
}
