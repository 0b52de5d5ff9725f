// Package sink defines where extracted content updates get delivered.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"tapfeed/internal/media"
)

// Destination classes.
const (
	ClassGroup  = "group"
	ClassFriend = "friend"
)

// Destination identifies one delivery endpoint.
type Destination struct {
	Class string `json:"class"`
	ID    string `json:"id"`
}

// Delivery is one content update addressed to a destination. VideoPaths maps
// a video URL to its local downloaded file, when the downloader succeeded;
// URLs absent from the map are delivered as raw links.
type Delivery struct {
	Target     string               `json:"target"`
	Bundle     *media.ContentBundle `json:"bundle"`
	VideoPaths map[string]string    `json:"video_paths,omitempty"`
}

// Sink delivers content updates.
type Sink interface {
	Send(ctx context.Context, d Delivery, dest Destination) error
}

// Webhook POSTs deliveries as JSON to a fixed endpoint.
type Webhook struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

// NewWebhook creates a webhook sink.
func NewWebhook(url string, client *http.Client, log *zap.Logger) *Webhook {
	return &Webhook{url: url, client: client, log: log}
}

func (w *Webhook) Send(ctx context.Context, d Delivery, dest Destination) error {
	payload := struct {
		Destination Destination `json:"destination"`
		Delivery
	}{Destination: dest, Delivery: d}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding delivery: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting delivery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	w.log.Debug("delivery posted",
		zap.String("target", d.Target),
		zap.String("dest", dest.ID))
	return nil
}

// Log records deliveries to the logger, for dry runs and local testing.
type Log struct {
	log *zap.Logger
}

// NewLog creates a logging sink.
func NewLog(log *zap.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Send(ctx context.Context, d Delivery, dest Destination) error {
	l.log.Info("content update",
		zap.String("target", d.Target),
		zap.String("dest_class", dest.Class),
		zap.String("dest_id", dest.ID),
		zap.String("content", d.Bundle.ID),
		zap.String("title", d.Bundle.Title),
		zap.Int("images", len(d.Bundle.Images)),
		zap.Int("videos", len(d.Bundle.Videos)),
		zap.Int("downloaded", len(d.VideoPaths)))
	return nil
}
