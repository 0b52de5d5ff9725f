// Package poller periodically checks subscribed targets for new content and
// pushes updates through the configured sink.
package poller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"tapfeed/internal/media"
	"tapfeed/internal/sink"
	"tapfeed/internal/store"
	"tapfeed/internal/taptap"
)

// Guard is a non-blocking single-flight latch: a cycle that fires while the
// previous one is still running is skipped, not queued.
type Guard struct {
	mu      sync.Mutex
	running bool
}

// TryEnter reports whether the caller acquired the latch.
func (g *Guard) TryEnter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	return true
}

// Exit releases the latch.
func (g *Guard) Exit() {
	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
}

// Running reports whether the latch is held, without acquiring it.
func (g *Guard) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Source produces listings and full bundles for a target.
type Source interface {
	Latest(ctx context.Context, userID string) (*taptap.Listing, error)
	Extract(ctx context.Context, momentID string) (*media.ContentBundle, error)
}

// Downloader turns a manifest URL into a local file.
type Downloader interface {
	Fetch(ctx context.Context, jobID, manifestURL string) (string, error)
}

// Poller runs update check cycles over the subscription store.
type Poller struct {
	store      *store.Store
	source     Source
	sink       sink.Sink
	downloader Downloader
	log        *zap.Logger
	guard      Guard

	// DestinationDelay spaces deliveries to one target's destinations.
	DestinationDelay time.Duration

	// TargetDelay spaces checks across targets to stay under rate limits.
	TargetDelay time.Duration
}

// New creates a Poller. downloader may be nil; manifest videos are then
// delivered as raw links.
func New(st *store.Store, source Source, snk sink.Sink, downloader Downloader, log *zap.Logger) *Poller {
	return &Poller{
		store:            st,
		source:           source,
		sink:             snk,
		downloader:       downloader,
		log:              log,
		DestinationDelay: 2 * time.Second,
		TargetDelay:      5 * time.Second,
	}
}

// Running reports whether a cycle is in flight.
func (p *Poller) Running() bool {
	return p.guard.Running()
}

// RunCycle checks every subscribed target once. Overlapping invocations are
// skipped. A target that fails is logged and skipped; the cycle continues.
func (p *Poller) RunCycle(ctx context.Context) error {
	if !p.guard.TryEnter() {
		p.log.Info("check cycle already running, skipping")
		return nil
	}
	defer p.guard.Exit()

	targets := p.store.Targets()
	if len(targets) == 0 {
		p.log.Debug("no subscriptions to check")
		return nil
	}

	updated := 0
	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := sleep(ctx, p.TargetDelay); err != nil {
				return err
			}
		}
		pushed, err := p.checkTarget(ctx, target)
		if err != nil {
			p.log.Error("target check failed", zap.String("target", target), zap.Error(err))
			continue
		}
		if pushed {
			updated++
		}
	}
	p.log.Info("check cycle finished",
		zap.Int("targets", len(targets)), zap.Int("updated", updated))
	return nil
}

// checkTarget compares the target's newest listing against delivery history
// and pushes a full bundle when a newer one appeared. Last-seen is persisted
// only after every delivery was attempted, so a crash or cancellation
// mid-push retries next cycle.
func (p *Poller) checkTarget(ctx context.Context, target string) (pushed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic checking target %s: %v", target, r)
		}
	}()

	listing, err := p.source.Latest(ctx, target)
	if err != nil {
		return false, fmt.Errorf("fetching listing: %w", err)
	}
	if !media.NewerID(listing.ID, p.store.LastSeen(target)) {
		return false, nil
	}
	p.log.Info("new content detected",
		zap.String("target", target), zap.String("content", listing.ID))

	bundle, err := p.source.Extract(ctx, listing.ID)
	if err != nil {
		return false, fmt.Errorf("extracting %s: %w", listing.ID, err)
	}
	if bundle.Title == "" {
		bundle.Title = listing.Title
	}
	if bundle.Text == "" {
		bundle.Text = listing.Summary
	}

	delivery := sink.Delivery{
		Target:     target,
		Bundle:     bundle,
		VideoPaths: p.downloadVideos(ctx, bundle),
	}

	dests := p.store.DestinationsFor(target)
	if err := p.deliver(ctx, delivery, sink.ClassGroup, dests.Groups); err != nil {
		return true, fmt.Errorf("delivery interrupted: %w", err)
	}
	if err := p.deliver(ctx, delivery, sink.ClassFriend, dests.Friends); err != nil {
		return true, fmt.Errorf("delivery interrupted: %w", err)
	}

	if err := p.store.SetLastSeen(target, listing.ID); err != nil {
		return true, fmt.Errorf("persisting history: %w", err)
	}
	return true, nil
}

// downloadVideos fetches manifest-backed videos to local files, best effort.
// Direct file URLs and failed downloads stay link-only.
func (p *Poller) downloadVideos(ctx context.Context, bundle *media.ContentBundle) map[string]string {
	if p.downloader == nil {
		return nil
	}
	paths := make(map[string]string)
	for i, videoURL := range bundle.Videos {
		if !strings.Contains(videoURL, ".m3u8") {
			continue
		}
		jobID := fmt.Sprintf("%s_%d", bundle.ID, i)
		path, err := p.downloader.Fetch(ctx, jobID, videoURL)
		if err != nil {
			p.log.Warn("video download failed, delivering link only",
				zap.String("job", jobID), zap.Error(err))
			continue
		}
		paths[videoURL] = path
	}
	if len(paths) == 0 {
		return nil
	}
	return paths
}

// deliver pushes d to every destination in order. A canceled context stops
// before the next send and reports the cancellation so the caller skips the
// last-seen update; the cycle then retries every destination next time.
func (p *Poller) deliver(ctx context.Context, d sink.Delivery, class string, ids []string) error {
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		dest := sink.Destination{Class: class, ID: id}
		if err := p.sink.Send(ctx, d, dest); err != nil {
			p.log.Error("delivery failed",
				zap.String("target", d.Target),
				zap.String("dest", id),
				zap.Error(err))
		}
		if err := sleep(ctx, p.DestinationDelay); err != nil {
			return err
		}
	}
	return nil
}

// Schedule registers the poller on a cron runner.
func (p *Poller) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if err := p.RunCycle(context.Background()); err != nil {
			p.log.Error("scheduled cycle failed", zap.Error(err))
		}
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
