package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// PagerConfig controls the listing loop for one task.
type PagerConfig struct {
	PageSize             int
	SessionDownloadLimit int
}

// Pager drives the paginated result-listing protocol for one CourtTask:
// it issues search requests, hands rows to the processor in listing order,
// rotates the session at the download threshold, and checkpoints progress
// at date-range boundaries.
type Pager struct {
	portal    Portal
	processor RowProcessor
	tracker   ProgressTracker
	cfg       PagerConfig
	logger    *zap.Logger
}

// NewPager constructs a Pager.
func NewPager(
	portal Portal,
	processor RowProcessor,
	tracker ProgressTracker,
	cfg PagerConfig,
	logger *zap.Logger,
) *Pager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pager{
		portal:    portal,
		processor: processor,
		tracker:   tracker,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run processes the task's full date range. An error return means the
// range was recorded as failed in the tracker; a nil return means the
// range completed and the tracker's last date advanced.
func (p *Pager) Run(ctx context.Context, task CourtTask) error {
	if err := p.portal.Establish(ctx); err != nil {
		p.recordFailure(task)
		return fmt.Errorf("establish session: %w", err)
	}

	q := SearchQuery{
		CourtCode: task.CourtCode,
		FromDate:  task.FromDate,
		ToDate:    task.ToDate,
		Echo:      1,
		Start:     0,
		Length:    p.cfg.PageSize,
	}
	freshDownloads := 0

	for {
		if err := ctx.Err(); err != nil {
			p.recordFailure(task)
			return err
		}

		TotalSearchRequests.Inc()
		rows, err := p.portal.Search(ctx, q)
		if err != nil {
			p.recordFailure(task)
			return fmt.Errorf("search court %s: %w", task.CourtCode, err)
		}
		if len(rows) == 0 {
			return p.checkpointCompleted(task)
		}
		p.logger.Info("processing result page",
			zap.String("court", task.CourtCode),
			zap.Int("rows", len(rows)),
			zap.Int("offset", q.Start),
		)

		rotate := false
		for i, row := range rows {
			fresh, perr := p.processor.ProcessRow(ctx, task, row, i)
			if perr != nil {
				// Per-row errors never abort the batch.
				p.logger.Error("row processing failed",
					zap.String("court", task.CourtCode),
					zap.Int("row", i),
					zap.Error(perr),
				)
				continue
			}
			if fresh {
				freshDownloads++
			}
			if freshDownloads >= p.cfg.SessionDownloadLimit {
				rotate = true
				break
			}
		}

		if rotate {
			// Past the threshold every link request is captcha-gated;
			// a fresh session buys another captcha-free batch. Re-issue
			// the same cursor: dedup skips the rows already persisted.
			p.logger.Info("download threshold reached, rotating session",
				zap.String("court", task.CourtCode),
				zap.Int("downloads", freshDownloads),
			)
			freshDownloads = 0
			if err := p.portal.Rotate(ctx); err != nil {
				p.recordFailure(task)
				return fmt.Errorf("rotate session: %w", err)
			}
			continue
		}

		q.Echo++
		q.Start += q.Length
	}
}

func (p *Pager) checkpointCompleted(task CourtTask) error {
	progress, err := p.tracker.Get(task.CourtCode)
	if err != nil {
		return fmt.Errorf("read progress: %w", err)
	}
	progress.LastDate = task.ToDate.Format(DateLayout)
	if err := p.tracker.Checkpoint(task.CourtCode, progress); err != nil {
		return fmt.Errorf("checkpoint progress: %w", err)
	}
	p.logger.Info("date range completed",
		zap.String("court", task.CourtCode),
		zap.String("through", progress.LastDate),
	)
	return nil
}

// recordFailure marks the range's start date as failed so an external
// re-run can pick it up; the pager never retries the range itself.
func (p *Pager) recordFailure(task CourtTask) {
	progress, err := p.tracker.Get(task.CourtCode)
	if err != nil {
		p.logger.Error("read progress for failure record", zap.Error(err))
		return
	}
	failed := task.FromDate.Format(DateLayout)
	for _, d := range progress.FailedDates {
		if d == failed {
			return
		}
	}
	progress.FailedDates = append(progress.FailedDates, failed)
	if err := p.tracker.Checkpoint(task.CourtCode, progress); err != nil {
		p.logger.Error("checkpoint failed date", zap.Error(err))
	}
}
