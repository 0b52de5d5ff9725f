package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tapfeed/internal/poller"
	"tapfeed/internal/sink"
)

func buildPoller(a *app) *poller.Poller {
	var snk sink.Sink
	if cfg.WebhookURL != "" {
		snk = sink.NewWebhook(cfg.WebhookURL, &http.Client{Timeout: 30 * time.Second}, logger)
	} else {
		snk = sink.NewLog(logger)
	}

	p := poller.New(a.store, a.extractor, snk, a.downloader, logger)
	p.TargetDelay = time.Duration(cfg.TargetDelaySeconds) * time.Second
	p.DestinationDelay = time.Duration(cfg.DestinationDelaySeconds) * time.Second
	return p
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Poll subscriptions on a schedule and push updates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, true, true, true)
		if err != nil {
			return err
		}
		defer a.Close()

		p := buildPoller(a)
		runner := cron.New()
		if _, err := p.Schedule(runner, cfg.Cron); err != nil {
			return fmt.Errorf("scheduling checks: %w", err)
		}
		runner.Start()
		defer runner.Stop()

		logger.Info("daemon started",
			zap.String("cron", cfg.Cron),
			zap.Int("targets", len(a.store.Targets())))

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		select {
		case sig := <-stop:
			logger.Info("shutting down", zap.String("signal", sig.String()))
		case <-ctx.Done():
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one update check cycle now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, true, true, true)
		if err != nil {
			return err
		}
		defer a.Close()

		return buildPoller(a).RunCycle(ctx)
	},
}
