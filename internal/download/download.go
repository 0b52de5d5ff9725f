// Package download turns a resolved segment list into a single local video
// file, caching results per job id.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"tapfeed/internal/hls"
	"tapfeed/internal/httputil"
	"tapfeed/internal/jobs"
)

var (
	// ErrEmptyPlaylist is returned when the manifest resolves to no segments.
	ErrEmptyPlaylist = errors.New("playlist resolved to no segments")

	// ErrTooSmall is returned when the assembled file is under the minimum
	// plausible size for a real video.
	ErrTooSmall = errors.New("downloaded file too small")
)

const (
	segmentRetries = 3
	minFileSize    = 1024
)

// Downloader fetches HLS segments sequentially and remuxes them into MP4.
type Downloader struct {
	client   *http.Client
	resolver *hls.Resolver
	cacheDir string
	referer  string
	ledger   *jobs.Ledger
	log      *zap.Logger

	// retryDelay between segment attempts; overridable in tests.
	retryDelay time.Duration

	// ffmpegPath locates the remux binary; overridable in tests.
	ffmpegPath func() (string, error)
}

// New creates a Downloader writing into cacheDir. ledger may be nil, in which
// case job state is not persisted.
func New(client *http.Client, resolver *hls.Resolver, cacheDir, referer string, ledger *jobs.Ledger, log *zap.Logger) *Downloader {
	return &Downloader{
		client:     client,
		resolver:   resolver,
		cacheDir:   cacheDir,
		referer:    referer,
		ledger:     ledger,
		log:        log,
		retryDelay: time.Second,
		ffmpegPath: func() (string, error) { return exec.LookPath("ffmpeg") },
	}
}

// Fetch downloads the video behind manifestURL into the cache and returns the
// local file path. A previously completed job is returned without refetching.
func (d *Downloader) Fetch(ctx context.Context, jobID, manifestURL string) (string, error) {
	finalPath, err := httputil.SafeCachePath(d.cacheDir, jobID+".mp4")
	if err != nil {
		return "", fmt.Errorf("resolving cache path: %w", err)
	}
	if info, err := os.Stat(finalPath); err == nil && info.Size() >= minFileSize {
		d.log.Debug("cache hit", zap.String("job", jobID))
		return finalPath, nil
	}

	d.ledgerDo(func(l *jobs.Ledger) error { return l.Begin(jobID, manifestURL) })

	path, err := d.fetch(ctx, jobID, manifestURL, finalPath)
	if err != nil {
		d.ledgerDo(func(l *jobs.Ledger) error { return l.Fail(jobID, err) })
		return "", err
	}
	d.ledgerDo(func(l *jobs.Ledger) error { return l.Complete(jobID, path) })
	return path, nil
}

func (d *Downloader) fetch(ctx context.Context, jobID, manifestURL, finalPath string) (string, error) {
	segments, err := d.resolver.Resolve(ctx, manifestURL)
	if err != nil {
		return "", fmt.Errorf("resolving playlist: %w", err)
	}
	if len(segments) == 0 {
		return "", ErrEmptyPlaylist
	}

	tempPath, err := httputil.SafeCachePath(d.cacheDir, jobID+"_temp.ts")
	if err != nil {
		return "", fmt.Errorf("resolving temp path: %w", err)
	}
	if err := os.MkdirAll(d.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache dir: %w", err)
	}

	if err := d.assemble(ctx, segments, tempPath); err != nil {
		os.Remove(tempPath)
		return "", err
	}

	info, err := os.Stat(tempPath)
	if err != nil {
		return "", fmt.Errorf("checking assembled file: %w", err)
	}
	if info.Size() < minFileSize {
		os.Remove(tempPath)
		return "", fmt.Errorf("%w: %d bytes", ErrTooSmall, info.Size())
	}

	if err := d.remux(ctx, tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		os.Remove(finalPath)
		return "", err
	}
	os.Remove(tempPath)

	if info, err := os.Stat(finalPath); err != nil || info.Size() < minFileSize {
		os.Remove(finalPath)
		return "", fmt.Errorf("remuxed file missing or too small: %w", ErrTooSmall)
	}

	d.log.Info("download complete", zap.String("job", jobID), zap.Int("segments", len(segments)))
	return finalPath, nil
}

// assemble downloads segments in order, appending to tempPath. A segment that
// still fails after retries is skipped rather than aborting the whole job.
func (d *Downloader) assemble(ctx context.Context, segments []string, tempPath string) error {
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer f.Close()

	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.fetchSegment(ctx, seg, f); err != nil {
			d.log.Warn("skipping segment",
				zap.Int("index", i),
				zap.String("url", seg),
				zap.Error(err))
		}
	}
	return nil
}

func (d *Downloader) fetchSegment(ctx context.Context, segURL string, w io.Writer) error {
	var lastErr error
	for attempt := 0; attempt < segmentRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(d.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		resp, err := httputil.Get(ctx, d.client, segURL, d.referer)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("segment returned status %d", resp.StatusCode)
			continue
		}
		_, err = io.Copy(w, resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("writing segment: %w", err)
			continue
		}
		return nil
	}
	return lastErr
}

// remux converts the concatenated transport stream into MP4. Without ffmpeg
// on the host the raw stream is renamed into place, which most players still
// accept.
func (d *Downloader) remux(ctx context.Context, tempPath, finalPath string) error {
	bin, err := d.ffmpegPath()
	if err != nil {
		d.log.Warn("ffmpeg not found, keeping raw transport stream", zap.Error(err))
		return os.Rename(tempPath, finalPath)
	}

	cmd := exec.CommandContext(ctx, bin,
		"-y",
		"-i", tempPath,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		finalPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg remux: %w: %s", err, out)
	}
	return nil
}

func (d *Downloader) ledgerDo(fn func(*jobs.Ledger) error) {
	if d.ledger == nil {
		return
	}
	if err := fn(d.ledger); err != nil {
		d.log.Warn("job ledger update failed", zap.Error(err))
	}
}
