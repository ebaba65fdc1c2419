package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fablereel/fablereel/internal/config"
	"github.com/fablereel/fablereel/internal/platform/fsstore"
	"github.com/fablereel/fablereel/internal/platform/imagegen"
	"github.com/fablereel/fablereel/internal/platform/logger"
	"github.com/fablereel/fablereel/internal/platform/postgres"
	"github.com/fablereel/fablereel/internal/platform/videogen"
	"github.com/fablereel/fablereel/internal/task"
)

// app bundles the wired components every subcommand needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  task.Store
	db     *sql.DB
}

// setup loads configuration, initializes logging, and opens the task store.
// root is the content directory that holds the chapter units.
func setup(root string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if debugLogging {
		cfg.Server.LogLevel = "debug"
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	a := &app{cfg: cfg, logger: log}

	// An empty database URL keeps records in per-unit directories.
	if cfg.Database.URL == "" {
		a.store = fsstore.New(root, log)
		return a, nil
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	a.db = db
	a.store = postgres.NewTaskStore(db)
	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close database connection", "error", err)
		}
	}
}

// services builds the generation client registry from configuration.
func (a *app) services() (task.Services, error) {
	img, err := imagegen.New(imagegen.Config{
		Endpoint:       a.cfg.Image.Endpoint,
		APIKey:         a.cfg.Image.APIKey,
		ReqKey:         a.cfg.Image.ReqKey,
		Width:          a.cfg.Image.Width,
		Height:         a.cfg.Image.Height,
		NegativePrompt: a.cfg.Image.NegativePrompt,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create image client: %w", err)
	}

	vid, err := videogen.New(videogen.Config{
		Endpoint: a.cfg.Video.Endpoint,
		APIKey:   a.cfg.Video.APIKey,
		Model:    a.cfg.Video.Model,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create video client: %w", err)
	}

	return task.Services{
		task.KindImage: img,
		task.KindVideo: vid,
	}, nil
}

// reconciler wires the polling stack from configuration.
func (a *app) reconciler() (*task.Reconciler, error) {
	services, err := a.services()
	if err != nil {
		return nil, err
	}
	materializer := task.NewMaterializer(nil, a.logger)
	poller := task.NewPoller(a.store, services, materializer, a.cfg.Poll.Pace, a.logger)
	return task.NewReconciler(a.store, poller, task.ReconcilerConfig{
		Interval:     a.cfg.Poll.Interval,
		AbandonAfter: a.cfg.Poll.AbandonAfter,
	}, a.logger), nil
}

// discoverUnits resolves the units to operate on. With recursive set, the
// whole tree under root is searched for chapter directories.
func discoverUnits(root string, recursive bool) ([]task.WorkUnit, error) {
	var (
		units []task.WorkUnit
		err   error
	)
	if recursive {
		units, err = task.DiscoverUnitsRecursive(root)
	} else {
		units, err = task.DiscoverUnits(root)
	}
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no chapter directories found under %s", root)
	}
	return units, nil
}

func printStats(stats task.Stats, elapsed time.Duration) {
	fmt.Printf("tasks: %d total, %d completed, %d failed, %d processing, %d pending (%.1fs)\n",
		stats.Total, stats.Completed, stats.Failed, stats.Processing, stats.Pending,
		elapsed.Seconds())
}
