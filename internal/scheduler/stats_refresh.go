package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/goalplanner/internal/database"
	"github.com/aristath/goalplanner/internal/modules/assets"
)

// healthCheckTimeout bounds the nightly integrity check.
const healthCheckTimeout = time.Minute

// StatsRefreshJob re-seeds missing asset statistics, verifies the stored
// grid, runs the full database integrity check and checkpoints the WAL
// so the database file stays compact.
type StatsRefreshJob struct {
	repo *assets.Repository
	db   *database.DB
	log  zerolog.Logger
}

// NewStatsRefreshJob creates the nightly statistics maintenance job.
func NewStatsRefreshJob(repo *assets.Repository, db *database.DB, log zerolog.Logger) *StatsRefreshJob {
	return &StatsRefreshJob{
		repo: repo,
		db:   db,
		log:  log.With().Str("job", "stats_refresh").Logger(),
	}
}

// Name implements Job.
func (j *StatsRefreshJob) Name() string { return "stats_refresh" }

// Run implements Job.
func (j *StatsRefreshJob) Run() error {
	if err := j.repo.SeedDefaults(); err != nil {
		return fmt.Errorf("failed to seed default statistics: %w", err)
	}

	grid, err := j.repo.LoadGrid()
	if err != nil {
		return fmt.Errorf("failed to load statistics grid: %w", err)
	}
	if err := grid.Validate(); err != nil {
		return fmt.Errorf("stored statistics grid is invalid: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	if err := j.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database integrity check failed: %w", err)
	}

	if err := j.db.WALCheckpoint(""); err != nil {
		return err
	}

	classes := 0
	for _, bucket := range grid {
		classes += len(bucket)
	}
	j.log.Debug().Int("class_stats", classes).Msg("Statistics grid verified")
	return nil
}
