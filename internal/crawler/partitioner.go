package crawler

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CourtSource lists the courts eligible for crawling.
type CourtSource interface {
	Codes() []string
	Name(code string) (string, bool)
}

// PartitionerConfig controls task generation. A zero StartDate means
// "resume from the progress tracker"; a zero EndDate with a set StartDate
// means "through today".
type PartitionerConfig struct {
	Courts       []string
	StartDate    time.Time
	EndDate      time.Time
	DefaultStart time.Time
	DayStep      int
}

// Partitioner expands courts and a date span into CourtTasks.
type Partitioner struct {
	source  CourtSource
	tracker ProgressTracker
	clock   Clock
	ids     IDGenerator
	cfg     PartitionerConfig
	logger  *zap.Logger
}

// NewPartitioner constructs a Partitioner.
func NewPartitioner(
	source CourtSource,
	tracker ProgressTracker,
	clock Clock,
	ids IDGenerator,
	cfg PartitionerConfig,
	logger *zap.Logger,
) *Partitioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Partitioner{
		source:  source,
		tracker: tracker,
		clock:   clock,
		ids:     ids,
		cfg:     cfg,
		logger:  logger,
	}
}

// Tasks enumerates the units of work for this run. Re-enumerating after an
// interruption yields the same or a narrower set, since completed ranges
// have advanced the tracker.
func (p *Partitioner) Tasks() ([]CourtTask, error) {
	courts := p.cfg.Courts
	if len(courts) == 0 {
		courts = p.source.Codes()
	} else {
		for _, code := range courts {
			if _, ok := p.source.Name(code); !ok {
				return nil, fmt.Errorf("unknown court code %q", code)
			}
		}
	}

	var tasks []CourtTask
	for _, code := range courts {
		ranges, err := p.rangesFor(code)
		if err != nil {
			return nil, err
		}
		for _, r := range ranges {
			id, err := p.ids.NewID()
			if err != nil {
				return nil, fmt.Errorf("generate task id: %w", err)
			}
			tasks = append(tasks, CourtTask{
				ID:        id,
				CourtCode: code,
				FromDate:  r[0],
				ToDate:    r[1],
			})
		}
	}
	return tasks, nil
}

func (p *Partitioner) rangesFor(court string) ([][2]time.Time, error) {
	today := truncateToDate(p.clock.Now())

	if !p.cfg.StartDate.IsZero() {
		end := p.cfg.EndDate
		if end.IsZero() {
			end = today
		}
		return chunkRanges(truncateToDate(p.cfg.StartDate), truncateToDate(end), p.cfg.DayStep), nil
	}

	progress, err := p.tracker.Get(court)
	if err != nil {
		return nil, fmt.Errorf("read progress for court %s: %w", court, err)
	}
	last := p.cfg.DefaultStart
	if progress.LastDate != "" {
		parsed, perr := time.Parse(DateLayout, progress.LastDate)
		if perr != nil {
			p.logger.Warn("unparseable last date in tracker, using default start",
				zap.String("court", court),
				zap.String("last_date", progress.LastDate),
				zap.Error(perr),
			)
		} else {
			last = parsed
		}
	}
	from := truncateToDate(last).AddDate(0, 0, 1)
	if from.After(today) {
		return nil, nil
	}
	return chunkRanges(from, today, p.cfg.DayStep), nil
}

// chunkRanges partitions [from, end] into contiguous step-day ranges, the
// last one truncated to end. The concatenation covers the span exactly.
func chunkRanges(from, end time.Time, step int) [][2]time.Time {
	if step <= 0 {
		step = 1
	}
	var out [][2]time.Time
	cur := from
	for !cur.After(end) {
		rangeEnd := cur.AddDate(0, 0, step-1)
		if rangeEnd.After(end) {
			rangeEnd = end
		}
		out = append(out, [2]time.Time{cur, rangeEnd})
		cur = rangeEnd.AddDate(0, 0, 1)
	}
	return out
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
