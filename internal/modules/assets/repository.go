package assets

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/goalplanner/internal/database"
)

// Repository persists asset-class statistics in the stats database.
// The planning engines never touch the database; the server loads a
// StatsGrid snapshot through this repository and hands plain data to the
// planner.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new asset statistics repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "assets_repository").Logger(),
	}
}

// InitSchema creates the asset_class_stats table if it does not exist.
func (r *Repository) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS asset_class_stats (
		asset_class            TEXT NOT NULL,
		horizon_bucket         TEXT NOT NULL,
		avg_return_pct         REAL NOT NULL,
		prob_negative_year_pct REAL NOT NULL,
		expected_shortfall_pct REAL NOT NULL,
		max_drawdown_pct       REAL NOT NULL,
		volatility_pct         REAL,
		updated_at             TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (asset_class, horizon_bucket)
	)`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create asset_class_stats table: %w", err)
	}
	return nil
}

// LoadGrid reads the full statistics grid from the database.
func (r *Repository) LoadGrid() (StatsGrid, error) {
	rows, err := r.db.Query(`
		SELECT asset_class, horizon_bucket, avg_return_pct, prob_negative_year_pct,
		       expected_shortfall_pct, max_drawdown_pct, volatility_pct
		FROM asset_class_stats`)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset class stats: %w", err)
	}
	defer rows.Close()

	grid := StatsGrid{}
	count := 0
	for rows.Next() {
		var class, bucket string
		var stats ClassStats
		var volatility sql.NullFloat64
		if err := rows.Scan(&class, &bucket, &stats.AvgReturnPct, &stats.ProbNegativeYearPct,
			&stats.ExpectedShortfallPct, &stats.MaxDrawdownPct, &volatility); err != nil {
			return nil, fmt.Errorf("failed to scan asset class stats row: %w", err)
		}
		if volatility.Valid {
			v := volatility.Float64
			stats.VolatilityPct = &v
		}
		b := HorizonBucket(bucket)
		if grid[b] == nil {
			grid[b] = make(map[string]ClassStats)
		}
		grid[b][class] = stats
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset class stats: %w", err)
	}

	if err := grid.Validate(); err != nil {
		return nil, err
	}

	r.log.Debug().Int("rows", count).Msg("Loaded asset class statistics")
	return grid, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func upsertStats(ex execer, class string, bucket HorizonBucket, stats ClassStats) error {
	var volatility interface{}
	if stats.VolatilityPct != nil {
		volatility = *stats.VolatilityPct
	}

	_, err := ex.Exec(`
		INSERT INTO asset_class_stats
			(asset_class, horizon_bucket, avg_return_pct, prob_negative_year_pct,
			 expected_shortfall_pct, max_drawdown_pct, volatility_pct, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(asset_class, horizon_bucket) DO UPDATE SET
			avg_return_pct = excluded.avg_return_pct,
			prob_negative_year_pct = excluded.prob_negative_year_pct,
			expected_shortfall_pct = excluded.expected_shortfall_pct,
			max_drawdown_pct = excluded.max_drawdown_pct,
			volatility_pct = excluded.volatility_pct,
			updated_at = excluded.updated_at`,
		class, string(bucket), stats.AvgReturnPct, stats.ProbNegativeYearPct,
		stats.ExpectedShortfallPct, stats.MaxDrawdownPct, volatility)
	if err != nil {
		return fmt.Errorf("failed to upsert stats for %s/%s: %w", class, bucket, err)
	}
	return nil
}

// Upsert writes one statistics cell.
func (r *Repository) Upsert(class string, bucket HorizonBucket, stats ClassStats) error {
	if err := stats.Validate(); err != nil {
		return fmt.Errorf("invalid stats for %s/%s: %w", class, bucket, err)
	}
	return upsertStats(r.db, class, bucket, stats)
}

// SeedDefaults inserts a default grid when the table is empty, so a fresh
// install can serve plans before real statistics are loaded. The seed
// runs in one transaction so a failure cannot leave a partial grid.
func (r *Repository) SeedDefaults() error {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM asset_class_stats`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count asset class stats: %w", err)
	}
	if count > 0 {
		return nil
	}

	r.log.Info().Msg("Seeding default asset class statistics")
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for bucket, classes := range DefaultGrid() {
			for class, stats := range classes {
				if err := upsertStats(tx, class, bucket, stats); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func floatPtr(v float64) *float64 { return &v }

// DefaultGrid returns conservative long-run statistics for the standard
// asset classes. Values tighten as the horizon shortens.
func DefaultGrid() StatsGrid {
	return StatsGrid{
		BucketShortTerm: {
			"equity": {AvgReturnPct: 9, ProbNegativeYearPct: 30, ExpectedShortfallPct: -12, MaxDrawdownPct: -30, VolatilityPct: floatPtr(18)},
			"gold":   {AvgReturnPct: 7, ProbNegativeYearPct: 25, ExpectedShortfallPct: -8, MaxDrawdownPct: -20, VolatilityPct: floatPtr(14)},
			"bonds":  {AvgReturnPct: 6.5, ProbNegativeYearPct: 5, ExpectedShortfallPct: -2, MaxDrawdownPct: -6, VolatilityPct: floatPtr(4)},
			"cash":   {AvgReturnPct: 3.5, ProbNegativeYearPct: 0, ExpectedShortfallPct: 0, MaxDrawdownPct: 0, VolatilityPct: floatPtr(0)},
		},
		BucketMediumTerm: {
			"equity": {AvgReturnPct: 10.5, ProbNegativeYearPct: 28, ExpectedShortfallPct: -11, MaxDrawdownPct: -32, VolatilityPct: floatPtr(17)},
			"gold":   {AvgReturnPct: 7.5, ProbNegativeYearPct: 25, ExpectedShortfallPct: -8, MaxDrawdownPct: -22, VolatilityPct: floatPtr(14)},
			"bonds":  {AvgReturnPct: 7, ProbNegativeYearPct: 5, ExpectedShortfallPct: -2, MaxDrawdownPct: -7, VolatilityPct: floatPtr(4.5)},
			"cash":   {AvgReturnPct: 3.5, ProbNegativeYearPct: 0, ExpectedShortfallPct: 0, MaxDrawdownPct: 0, VolatilityPct: floatPtr(0)},
		},
		BucketLongTerm: {
			"equity": {AvgReturnPct: 12, ProbNegativeYearPct: 25, ExpectedShortfallPct: -10, MaxDrawdownPct: -35, VolatilityPct: floatPtr(16)},
			"gold":   {AvgReturnPct: 8, ProbNegativeYearPct: 24, ExpectedShortfallPct: -8, MaxDrawdownPct: -25, VolatilityPct: floatPtr(14)},
			"bonds":  {AvgReturnPct: 7.5, ProbNegativeYearPct: 4, ExpectedShortfallPct: -2, MaxDrawdownPct: -8, VolatilityPct: floatPtr(5)},
			"cash":   {AvgReturnPct: 3.5, ProbNegativeYearPct: 0, ExpectedShortfallPct: 0, MaxDrawdownPct: 0, VolatilityPct: floatPtr(0)},
		},
	}
}
