package taptap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

const detailBody = `{
  "success": true,
  "data": {
    "moment": {
      "topic": {
        "title": "版本前瞻",
        "footer_images": [{"original_url": "https://img.example.cn/footer1.png"}],
        "pin_video": {
          "video_id": 9182736,
          "thumbnail": {"original_url": "https://img.example.cn/cover.png"}
        }
      },
      "author": {"user": {"name": "开发组", "avatar": "https://img.example.cn/a.png"}},
      "stat": {"ups": 120, "comments": 45, "shares": 6, "pv_total": 9000, "play_total": 3000},
      "created_time": 1719000000,
      "publish_time": 1719000100
    },
    "first_post": {
      "contents": {
        "json": [
          {"type": "paragraph", "children": [
            {"text": "大家好，"},
            {"type": "hashtag", "text": "#新版本"},
            {"type": "tap_emoji", "info": {"img": {"original_url": "https://img.example.cn/emojis/1.png"}}}
          ]},
          {"type": "image", "info": {"image": {"original_url": "https://img.example.cn/body1.png"}}}
        ]
      }
    }
  }
}`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.Client(), zap.NewNop())
	c.BaseURL = srv.URL
	return c
}

func TestMomentDetail(t *testing.T) {
	var gotXUA string
	mux := http.NewServeMux()
	mux.HandleFunc("/webapiv2/moment/v3/detail", func(w http.ResponseWriter, r *http.Request) {
		gotXUA = r.URL.Query().Get("X-UA")
		if r.URL.Query().Get("id") != "612233445566778899" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(detailBody))
	})

	c := newTestClient(t, mux)
	bundle, err := c.MomentDetail(context.Background(), "612233445566778899")
	if err != nil {
		t.Fatalf("MomentDetail: %v", err)
	}

	if gotXUA == "" {
		t.Error("request carried no X-UA parameter")
	}
	if bundle.Title != "版本前瞻" {
		t.Errorf("Title = %q", bundle.Title)
	}
	if bundle.Author == nil || bundle.Author.Name != "开发组" {
		t.Errorf("Author = %+v", bundle.Author)
	}
	if bundle.VideoID != "9182736" {
		t.Errorf("VideoID = %q", bundle.VideoID)
	}
	if bundle.VideoCover != "https://img.example.cn/cover.png" {
		t.Errorf("VideoCover = %q", bundle.VideoCover)
	}
	if bundle.Stats.Likes != 120 || bundle.Stats.Views != 9000 || bundle.Stats.Plays != 3000 {
		t.Errorf("Stats = %+v", bundle.Stats)
	}
	if bundle.Text != "大家好，#新版本\n" {
		t.Errorf("Text = %q", bundle.Text)
	}
	want := []string{"https://img.example.cn/footer1.png", "https://img.example.cn/body1.png"}
	if len(bundle.Images) != 2 || bundle.Images[0] != want[0] || bundle.Images[1] != want[1] {
		t.Errorf("Images = %v, want %v", bundle.Images, want)
	}
	if bundle.Timestamp == nil || bundle.Timestamp.Unix() != 1719000100 {
		t.Errorf("Timestamp = %v, want publish_time", bundle.Timestamp)
	}
	if len(bundle.Videos) != 0 {
		t.Errorf("Videos = %v, want empty (resolution is the extractor's job)", bundle.Videos)
	}
}

func TestMomentDetailOriginFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false}`))
	}))
	if _, err := c.MomentDetail(context.Background(), "612233445566778899"); err == nil {
		t.Fatal("expected error when origin reports failure")
	}
}

func TestMomentDetailRejectsNonNumericID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	if _, err := c.MomentDetail(context.Background(), "abc"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestPlayInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/video/v1/play-info", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("video_id") != "9182736" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"data": {"url": "https://v.example.cn/hls/abc.m3u8?sign=xyz"}}`))
	})

	c := newTestClient(t, mux)
	got, err := c.PlayInfo(context.Background(), "9182736")
	if err != nil {
		t.Fatalf("PlayInfo: %v", err)
	}
	if got != "https://v.example.cn/hls/abc.m3u8?sign=xyz" {
		t.Errorf("url = %q", got)
	}
}

func TestPlayInfoEmpty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {}}`))
	}))
	if _, err := c.PlayInfo(context.Background(), "9182736"); err == nil {
		t.Fatal("expected error for empty play info")
	}
}

func TestCommentsCapped(t *testing.T) {
	body := `{"success": true, "data": {"list": [`
	for i := 0; i < 12; i++ {
		if i > 0 {
			body += ","
		}
		body += `{"id": 100, "author": {"name": "n", "avatar": "a"}, "created_time": 1719000000,
			"ups": 3, "contents": {"json": [{"type": "paragraph", "children": [{"text": "好耶"}]}]}}`
	}
	body += `]}}`

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	got, err := c.Comments(context.Background(), "612233445566778899")
	if err != nil {
		t.Fatalf("Comments: %v", err)
	}
	if len(got) != maxComments {
		t.Fatalf("got %d comments, want %d", len(got), maxComments)
	}
	if got[0].Text != "好耶" || got[0].Likes != 3 {
		t.Errorf("comment = %+v", got[0])
	}
	if got[0].Author.Name != "n" {
		t.Errorf("comment author = %+v", got[0].Author)
	}
}
