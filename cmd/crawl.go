// Package cmd defines and implements the CLI commands for the
// judgment-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/opencourtdata/judgment-crawler/internal/api"
	"github.com/opencourtdata/judgment-crawler/internal/archive"
	"github.com/opencourtdata/judgment-crawler/internal/captcha"
	"github.com/opencourtdata/judgment-crawler/internal/clock/system"
	"github.com/opencourtdata/judgment-crawler/internal/courts"
	"github.com/opencourtdata/judgment-crawler/internal/crawler"
	"github.com/opencourtdata/judgment-crawler/internal/id/uuid"
	"github.com/opencourtdata/judgment-crawler/internal/portal"
	"github.com/opencourtdata/judgment-crawler/internal/storage/local"
	"github.com/opencourtdata/judgment-crawler/internal/tracker"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the judgments portal",
		Long: `Enumerates court and date-range tasks from the progress tracker (or an
explicit date span), then crawls them on a bounded worker pool. Each task
gets its own portal session; progress is checkpointed per completed range.`,

		RunE: runCrawlCommand,
	}

	cmd.Flags().StringSlice("courts", nil, "court codes to crawl (default: all known courts)")
	cmd.Flags().String("start-date", "", "crawl from this date (YYYY-MM-DD) instead of resuming")
	cmd.Flags().String("end-date", "", "crawl through this date (YYYY-MM-DD, default: today)")
	cmd.Flags().Int("day-step", 0, "days per task")
	cmd.Flags().Int("workers", 0, "concurrent court tasks")

	bind := func(key, flag string) {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	bind("crawler.courts", "courts")
	bind("crawler.from_date", "start-date")
	bind("crawler.end_date", "end-date")
	bind("crawler.day_step", "day-step")
	bind("crawler.workers", "workers")

	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	v := viper.GetViper()
	cfg, err := crawler.LoadConfig(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := courts.Load(cfg.CourtCodesFile)
	if err != nil {
		return err
	}
	progress, err := tracker.NewStore(cfg.TrackerFile)
	if err != nil {
		return err
	}
	store, err := local.NewStore(local.Config{BaseDir: cfg.OutputDir})
	if err != nil {
		return err
	}

	partCfg, err := partitionerConfig(v, cfg)
	if err != nil {
		return err
	}
	ids := uuid.NewUUIDGenerator()
	partitioner := crawler.NewPartitioner(registry, progress, system.Clock{}, ids, partCfg, logger)
	tasks, err := partitioner.Tasks()
	if err != nil {
		return fmt.Errorf("enumerate tasks: %w", err)
	}
	if len(tasks) == 0 {
		logger.Info("nothing to crawl, tracker is current")
		return nil
	}

	if cfg.StatusAddr != "" {
		status := api.NewServer(cfg.StatusAddr, progress, logger.Named("api"))
		status.Start()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := status.Shutdown(shutCtx); err != nil {
				logger.Warn("shut down status server", zap.Error(err))
			}
		}()
	}

	manifest := archive.NewManifest()
	factory := &pipelineFactory{
		cfg:        cfg,
		registry:   registry,
		tracker:    progress,
		store:      store,
		recognizer: captcha.NewHTTPRecognizer(cfg.OCRServiceURL, cfg.OCRTimeout),
		manifest:   manifest,
		ids:        ids,
		logger:     logger,
	}

	scheduler := crawler.NewScheduler(factory, cfg.Workers, logger)
	completed, failed := scheduler.Run(ctx, tasks)

	if cfg.ManifestFile != "" {
		if err := manifest.WriteFile(cfg.ManifestFile); err != nil {
			logger.Warn("write manifest", zap.Error(err))
		}
	}

	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		logger.Info("crawl interrupted", zap.Int("completed", completed))
		return nil
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(tasks))
	}
	return nil
}

// partitionerConfig translates the run's date selection flags into
// partitioner settings. An explicit start date overrides resumption.
func partitionerConfig(v *viper.Viper, cfg crawler.Config) (crawler.PartitionerConfig, error) {
	out := crawler.PartitionerConfig{
		Courts:  v.GetStringSlice("crawler.courts"),
		DayStep: cfg.DayStep,
	}

	defaultStart, err := time.Parse(crawler.DateLayout, cfg.StartDate)
	if err != nil {
		return out, fmt.Errorf("parse crawler.start_date: %w", err)
	}
	out.DefaultStart = defaultStart

	if from := v.GetString("crawler.from_date"); from != "" {
		out.StartDate, err = time.Parse(crawler.DateLayout, from)
		if err != nil {
			return out, fmt.Errorf("parse start-date: %w", err)
		}
	}
	if end := v.GetString("crawler.end_date"); end != "" {
		out.EndDate, err = time.Parse(crawler.DateLayout, end)
		if err != nil {
			return out, fmt.Errorf("parse end-date: %w", err)
		}
		if out.StartDate.IsZero() {
			return out, fmt.Errorf("end-date requires start-date")
		}
		if out.EndDate.Before(out.StartDate) {
			return out, fmt.Errorf("end-date is before start-date")
		}
	}

	return out, nil
}

// pipelineFactory builds one independent crawl pipeline per task: its own
// portal session and captcha solver over the shared tracker, store, and
// manifest.
type pipelineFactory struct {
	cfg        crawler.Config
	registry   *courts.Registry
	tracker    *tracker.Store
	store      *local.Store
	recognizer captcha.Recognizer
	manifest   *archive.Manifest
	ids        *uuid.Generator
	logger     *zap.Logger
}

func (f *pipelineFactory) NewRunner(task crawler.CourtTask) (crawler.TaskRunner, error) {
	taskLogger := f.logger.With(
		zap.String("task_id", task.ID),
		zap.String("court", task.CourtCode),
	)

	solver := captcha.NewSolver(captcha.Config{
		MathMode:     f.cfg.CaptchaMathMode,
		MaxAttempts:  f.cfg.CaptchaAttempts,
		AnswerLength: f.cfg.CaptchaLength,
		TmpDir:       f.cfg.CaptchaTmpDir,
		FailuresDir:  f.cfg.CaptchaFailuresDir,
		FetchTimeout: f.cfg.RequestTimeout,
	}, f.recognizer, f.ids.NewShortID, taskLogger.Named("captcha"))

	session := portal.NewSession(portal.Config{
		BaseURL:         f.cfg.PortalBaseURL,
		UserAgent:       f.cfg.UserAgent,
		SearchTimeout:   f.cfg.SearchTimeout,
		RequestTimeout:  f.cfg.RequestTimeout,
		DownloadTimeout: f.cfg.DownloadTimeout,
		AuthRetries:     f.cfg.AuthRetries,
	}, solver, taskLogger.Named("portal"))

	fetcher := crawler.NewFetcher(session, solver, f.store, f.manifest, f.cfg.PortalBaseURL, taskLogger)
	processor := crawler.NewProcessor(f.store, fetcher, f.registry, f.manifest, f.cfg.ParseFailureLog, taskLogger)
	pager := crawler.NewPager(session, processor, f.tracker, crawler.PagerConfig{
		PageSize:             f.cfg.PageSize,
		SessionDownloadLimit: f.cfg.SessionDownloadLimit,
	}, taskLogger)

	return pager, nil
}
