package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/fablereel/fablereel/internal/generation"
)

// Stats summarizes one polling round over a unit.
type Stats struct {
	Total      int
	Completed  int
	Failed     int
	Processing int
	Pending    int
}

// Done reports whether every task in the round ended terminal.
func (s Stats) Done() bool {
	return s.Processing == 0 && s.Pending == 0
}

// add folds another round's counts in, for multi-unit sweeps.
func (s *Stats) add(other Stats) {
	s.Total += other.Total
	s.Completed += other.Completed
	s.Failed += other.Failed
	s.Processing += other.Processing
	s.Pending += other.Pending
}

// Poller drives pending descriptors to resolution: it queries each task's
// service, materializes finished artifacts, records failures, and archives
// terminal records. One task's trouble never aborts the round; the error is
// logged and the remaining tasks still get their turn.
type Poller struct {
	store        Store
	services     Services
	materializer *Materializer
	pace         time.Duration
	logger       *slog.Logger

	sleep func(time.Duration)
}

// NewPoller creates a Poller. pace is the delay inserted between consecutive
// upstream queries so a large unit does not hammer the service.
func NewPoller(store Store, services Services, materializer *Materializer, pace time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		store:        store,
		services:     services,
		materializer: materializer,
		pace:         pace,
		logger:       logger,
		sleep:        time.Sleep,
	}
}

// PollUnit runs one polling round over every pending descriptor in the unit.
func (p *Poller) PollUnit(ctx context.Context, unit string) (Stats, error) {
	pending, err := p.store.ListPending(ctx, unit)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Total: len(pending)}
	queried := false
	for _, d := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if p.pollOne(ctx, d, &stats, queried) {
			queried = true
		}
	}
	return stats, nil
}

// pollOne advances a single descriptor by one step and reports whether it
// issued an upstream query. Pacing applies only between queries; records
// resolved locally, such as already-terminal ones, cost no delay. Errors are
// absorbed into the round's counts so one broken task cannot stall its
// siblings.
func (p *Poller) pollOne(ctx context.Context, d *Descriptor, stats *Stats, pace bool) bool {
	logger := p.logger.With("task_id", d.TaskID, "unit", d.Unit, "kind", d.Kind)

	// A record can arrive terminal when an earlier round finalized it but
	// crashed before archiving. Finish the move and count it.
	if d.Terminal() {
		if err := p.store.Archive(ctx, d); err != nil {
			logger.Error("failed to archive terminal record", "error", err)
			stats.Processing++
			return false
		}
		p.countTerminal(d, stats)
		return false
	}

	svc, err := p.services.For(d.Kind)
	if err != nil {
		logger.Error("no service for task", "error", err)
		stats.Pending++
		return false
	}

	if pace && p.pace > 0 {
		p.sleep(p.pace)
	}
	res, err := svc.QueryTask(ctx, d.TaskID)
	if err != nil {
		logger.Warn("status query failed, will retry next round", "error", err)
		stats.Pending++
		return true
	}

	switch res.State {
	case generation.StateDone:
		if err := p.materializer.Materialize(ctx, d, res); err != nil {
			// The descriptor is untouched; next round fetches again.
			logger.Error("failed to materialize artifact", "error", err)
			stats.Processing++
			return true
		}
		if err := p.store.Archive(ctx, d); err != nil {
			logger.Error("failed to archive completed task", "error", err)
			stats.Processing++
			return true
		}
		logger.Info("task completed", "path", d.OutputPath)
		stats.Completed++

	case generation.StateFailed:
		if err := d.MarkFailed(res.Reason, time.Now().UTC()); err != nil {
			logger.Error("failed to mark task failed", "error", err)
			stats.Processing++
			return true
		}
		if err := p.store.Archive(ctx, d); err != nil {
			logger.Error("failed to archive failed task", "error", err)
			stats.Processing++
			return true
		}
		logger.Info("task failed upstream", "reason", res.Reason)
		stats.Failed++

	case generation.StateQueued, generation.StateRunning:
		if d.Status != StatusProcessing {
			if err := d.MarkProcessing(); err != nil {
				logger.Error("failed to mark task processing", "error", err)
				stats.Pending++
				return true
			}
			if err := p.store.Update(ctx, d); err != nil {
				logger.Error("failed to persist processing status", "error", err)
			}
		}
		stats.Processing++

	default:
		logger.Warn("unrecognized task state, leaving record untouched", "state", res.State)
		stats.Pending++
	}
	return true
}

func (p *Poller) countTerminal(d *Descriptor, stats *Stats) {
	if d.Status == StatusCompleted {
		stats.Completed++
	} else {
		stats.Failed++
	}
}
