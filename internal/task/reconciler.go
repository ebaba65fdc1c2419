package task

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// mediaExtensions lists the artifact extensions a reconciliation pass will
// relocate into a unit's media directory. Anything else is left where it is.
var mediaExtensions = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".webp": true,
	".mp4":  true,
}

// ReconcilerConfig tunes reconciliation behaviour.
type ReconcilerConfig struct {
	// Interval is the pause between monitor rounds.
	Interval time.Duration

	// AbandonAfter fails pending tasks older than this window. Zero disables
	// abandonment; records then wait indefinitely for their service.
	AbandonAfter time.Duration
}

// Reconciler converges a unit's observable state: stray media files are
// relocated into the media directory, stale pending tasks are optionally
// abandoned, and a polling round advances whatever is still in flight. Every
// step is idempotent, so running a pass twice is the same as running it once.
type Reconciler struct {
	store  Store
	poller *Poller
	config ReconcilerConfig
	logger *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// NewReconciler creates a Reconciler.
func NewReconciler(store Store, poller *Poller, config ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	return &Reconciler{
		store:  store,
		poller: poller,
		config: config,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Reconcile runs one full pass over the unit and returns the round's stats.
func (r *Reconciler) Reconcile(ctx context.Context, unit WorkUnit) (Stats, error) {
	logger := r.logger.With("unit", unit.Key)

	if err := r.relocateStrayMedia(unit, logger); err != nil {
		// Relocation trouble should not block polling; log and continue.
		logger.Warn("stray media relocation incomplete", "error", err)
	}

	if r.config.AbandonAfter > 0 {
		if err := r.abandonStale(ctx, unit, logger); err != nil {
			logger.Warn("abandonment pass incomplete", "error", err)
		}
	}

	// The store is keyed by unit.Key so chapters nested below the content
	// root resolve to their real directory, not a basename sibling.
	return r.poller.PollUnit(ctx, unit.Key)
}

// Sweep runs one reconciliation pass over every unit and returns the
// combined stats. The pass carries a correlation ID so the log lines of one
// sweep can be tied together.
func (r *Reconciler) Sweep(ctx context.Context, units []WorkUnit) (Stats, error) {
	sweepID := uuid.New().String()
	logger := r.logger.With("sweep_id", sweepID)
	logger.Info("sweep started", "units", len(units))

	var total Stats
	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		stats, err := r.Reconcile(ctx, unit)
		if err != nil {
			return total, fmt.Errorf("failed to reconcile unit %s: %w", unit.Key, err)
		}
		total.add(stats)
	}

	logger.Info("sweep finished",
		"total", total.Total,
		"completed", total.Completed,
		"failed", total.Failed,
		"processing", total.Processing,
		"pending", total.Pending)
	return total, nil
}

// Monitor sweeps the units repeatedly until every task is terminal or the
// context is cancelled. It returns the final sweep's stats.
func (r *Reconciler) Monitor(ctx context.Context, units []WorkUnit) (Stats, error) {
	for round := 1; ; round++ {
		stats, err := r.Sweep(ctx, units)
		if err != nil {
			return stats, err
		}
		if stats.Done() {
			r.logger.Info("all tasks settled", "rounds", round)
			return stats, nil
		}
		r.logger.Info("waiting before next round",
			"round", round,
			"interval", r.config.Interval,
			"in_flight", stats.Processing+stats.Pending)
		if err := r.sleep(ctx, r.config.Interval); err != nil {
			return stats, err
		}
	}
}

// relocateStrayMedia moves artifact files sitting directly in the unit
// directory, or dropped among the pending task records, into the media
// directory. Files already in place, task records, and unknown extensions
// are left alone.
func (r *Reconciler) relocateStrayMedia(unit WorkUnit, logger *slog.Logger) error {
	for _, dir := range []string{unit.Dir, unit.PendingDir()} {
		if err := r.relocateFrom(dir, unit, logger); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) relocateFrom(dir string, unit WorkUnit, logger *slog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var moved int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !mediaExtensions[ext] {
			continue
		}
		if moved == 0 {
			if err := os.MkdirAll(unit.MediaDir(), 0o755); err != nil {
				return fmt.Errorf("failed to create media directory: %w", err)
			}
		}
		src := filepath.Join(dir, e.Name())
		dst := unit.ArtifactPath(e.Name())
		if _, err := os.Stat(dst); err == nil {
			logger.Warn("stray media clashes with existing artifact, skipping", "file", e.Name())
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("failed to relocate %s: %w", e.Name(), err)
		}
		logger.Info("relocated stray media", "file", e.Name())
		moved++
	}
	return nil
}

// abandonStale fails pending records whose submission is older than the
// configured window, then archives them.
func (r *Reconciler) abandonStale(ctx context.Context, unit WorkUnit, logger *slog.Logger) error {
	pending, err := r.store.ListPending(ctx, unit.Key)
	if err != nil {
		return err
	}
	cutoff := time.Now().UTC().Add(-r.config.AbandonAfter)
	for _, d := range pending {
		if d.Terminal() || !d.SubmitTime.Before(cutoff) {
			continue
		}
		reason := fmt.Sprintf("abandoned: no result within %s of submission", r.config.AbandonAfter)
		if err := d.MarkFailed(reason, time.Now().UTC()); err != nil {
			logger.Error("failed to abandon task", "task_id", d.TaskID, "error", err)
			continue
		}
		if err := r.store.Archive(ctx, d); err != nil {
			logger.Error("failed to archive abandoned task", "task_id", d.TaskID, "error", err)
			continue
		}
		logger.Warn("abandoned stale task",
			"task_id", d.TaskID,
			"submitted", d.SubmitTime)
	}
	return nil
}

// sleepCtx pauses for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
