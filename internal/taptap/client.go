// Package taptap talks to the origin's structured web API and decodes its
// embedded page payloads into content bundles.
package taptap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tapfeed/internal/httputil"
	"tapfeed/internal/media"
)

const defaultBaseURL = "https://www.taptap.cn"

// maxComments caps how many top-level comments a bundle carries.
const maxComments = 10

// Client is an origin API client. The X-UA client-identification parameter
// carries a per-process device id.
type Client struct {
	// BaseURL is the origin root, overridable in tests.
	BaseURL string

	http     *http.Client
	deviceID string
	log      *zap.Logger
}

// NewClient creates a Client using the given HTTP client.
func NewClient(httpClient *http.Client, log *zap.Logger) *Client {
	return &Client{
		BaseURL:  defaultBaseURL,
		http:     httpClient,
		deviceID: uuid.NewString(),
		log:      log,
	}
}

// xua builds the origin's client-identification query value.
func (c *Client) xua() string {
	return "V=1&PN=WebApp&LANG=zh_CN&VN_CODE=102&LOC=CN&PLT=PC&DS=Android&UID=" +
		c.deviceID + "&OS=Windows&OSV=10&DT=PC"
}

func (c *Client) apiURL(path string, params url.Values) string {
	params.Set("X-UA", c.xua())
	return c.BaseURL + path + "?" + params.Encode()
}

// getAPI fetches an API endpoint and unwraps the success envelope.
func (c *Client) getAPI(ctx context.Context, path string, params url.Values, out any) error {
	body, err := httputil.GetJSON(ctx, c.http, c.apiURL(path, params), c.BaseURL+"/")
	if err != nil {
		return err
	}
	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("origin reported failure for %s", path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}

// MomentDetail fetches the structured detail for a moment and maps it into a
// content bundle. The bundle's Videos stay empty here; video URL resolution
// is the extractor's job.
func (c *Client) MomentDetail(ctx context.Context, momentID string) (*media.ContentBundle, error) {
	if err := httputil.ValidateNumericID(momentID); err != nil {
		return nil, err
	}

	var data detailData
	params := url.Values{"id": {momentID}}
	if err := c.getAPI(ctx, "/webapiv2/moment/v3/detail", params, &data); err != nil {
		return nil, fmt.Errorf("fetching moment detail: %w", err)
	}

	m := data.Moment
	bundle := &media.ContentBundle{
		ID:    momentID,
		URL:   c.BaseURL + "/moment/" + momentID,
		Title: m.Topic.Title,
		Stats: media.Stats{
			Likes:    m.Stat.Ups,
			Comments: m.Stat.Comments,
			Shares:   m.Stat.Shares,
			Views:    m.Stat.PVTotal,
			Plays:    m.Stat.PlayTotal,
		},
	}
	if bundle.Title == "" {
		bundle.Title = "TapTap 动态分享"
	}
	if m.Author.User.Name != "" {
		bundle.Author = &media.Author{
			Name:      m.Author.User.Name,
			AvatarURL: m.Author.User.Avatar,
		}
	}
	if m.PublishTime > 0 {
		ts := time.Unix(m.PublishTime, 0)
		bundle.Timestamp = &ts
	} else if m.CreatedTime > 0 {
		ts := time.Unix(m.CreatedTime, 0)
		bundle.Timestamp = &ts
	}

	for _, img := range m.Topic.FooterImages {
		if img.OriginalURL != "" && !containsString(bundle.Images, img.OriginalURL) {
			bundle.Images = append(bundle.Images, img.OriginalURL)
		}
	}

	if vid := m.Topic.PinVideo.VideoID.String(); vid != "" && vid != "0" {
		bundle.VideoID = vid
		bundle.VideoCover = m.Topic.PinVideo.Thumbnail.OriginalURL
	}

	text, images := flattenContents(data.FirstPost.Contents.JSON)
	bundle.Text = text
	for _, img := range images {
		if !containsString(bundle.Images, img) {
			bundle.Images = append(bundle.Images, img)
		}
	}

	return bundle, nil
}

// PlayInfo resolves a video id into a signed playback URL.
func (c *Client) PlayInfo(ctx context.Context, videoID string) (string, error) {
	body, err := httputil.GetJSON(ctx, c.http,
		c.BaseURL+"/video/v1/play-info?video_id="+url.QueryEscape(videoID),
		c.BaseURL+"/")
	if err != nil {
		return "", fmt.Errorf("fetching play info: %w", err)
	}
	var resp struct {
		Data playInfoData `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding play info: %w", err)
	}
	if resp.Data.URL == "" {
		return "", fmt.Errorf("play info carried no URL for video %s", videoID)
	}
	return resp.Data.URL, nil
}

// Comments fetches a moment's top-ranked comments, best effort. At most
// maxComments are returned.
func (c *Client) Comments(ctx context.Context, momentID string) ([]media.Comment, error) {
	var data commentListData
	params := url.Values{
		"moment_id":    {momentID},
		"sort":         {"rank"},
		"order":        {"desc"},
		"regulate_all": {"false"},
	}
	if err := c.getAPI(ctx, "/webapiv2/moment-comment/v1/by-moment", params, &data); err != nil {
		return nil, fmt.Errorf("fetching comments: %w", err)
	}

	var out []media.Comment
	for _, item := range data.List {
		if len(out) == maxComments {
			break
		}
		cm := media.Comment{
			ID:     item.ID.String(),
			Likes:  item.Ups,
			Author: media.Author{Name: item.Author.Name, AvatarURL: item.Author.Avatar},
		}
		created := item.CreatedTime
		if created == 0 {
			created = item.UpdatedTime
		}
		if created > 0 {
			ts := time.Unix(created, 0)
			cm.CreatedAt = &ts
		}
		text, _ := flattenContents(item.Contents.JSON)
		cm.Text = strings.TrimSpace(text)
		out = append(out, cm)
	}
	return out, nil
}

// FetchPage fetches raw page HTML from the origin.
func (c *Client) FetchPage(ctx context.Context, path string) (string, error) {
	return httputil.GetText(ctx, c.http, c.BaseURL+path, c.BaseURL+"/")
}

// flattenContents reduces the origin's rich-content item list to plain text
// plus embedded image URLs. Paragraphs keep their text and hashtag children;
// emoji children are dropped.
func flattenContents(items []contentItem) (string, []string) {
	var text strings.Builder
	var images []string

	for _, item := range items {
		switch item.Type {
		case "paragraph":
			var para strings.Builder
			for _, child := range item.Children {
				switch child.Type {
				case "tap_emoji":
					// decorative, no plain-text form
				case "hashtag":
					if child.Text != "" {
						para.WriteString(child.Text)
					}
				default:
					if child.Text != "" {
						para.WriteString(child.Text)
					}
				}
			}
			if para.Len() > 0 {
				text.WriteString(para.String())
				text.WriteString("\n")
			}
		case "image":
			if u := item.Info.Image.OriginalURL; u != "" {
				images = append(images, u)
			}
		}
	}

	out := text.String()
	out = strings.ReplaceAll(out, "<br>", "\n")
	out = strings.ReplaceAll(out, "<br />", "\n")
	return out, images
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
