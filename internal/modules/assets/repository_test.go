package assets

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := sql.Open("sqlite", "file:assets_test?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db, zerolog.Nop())
	require.NoError(t, repo.InitSchema())

	// cache=shared keeps the in-memory database alive across connections,
	// but also across tests; start from a clean table.
	_, err = db.Exec(`DELETE FROM asset_class_stats`)
	require.NoError(t, err)
	return repo
}

func TestRepository_SeedAndLoad(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.SeedDefaults())

	grid, err := repo.LoadGrid()
	require.NoError(t, err)
	require.Len(t, grid, 3)

	equity, ok := grid.Lookup("equity", 10)
	require.True(t, ok)
	assert.Greater(t, equity.AvgReturnPct, 0.0)
	require.NotNil(t, equity.VolatilityPct)

	// Seeding twice must not duplicate or overwrite.
	require.NoError(t, repo.SeedDefaults())
	again, err := repo.LoadGrid()
	require.NoError(t, err)
	assert.Equal(t, grid, again)
}

func TestRepository_UpsertOverwrites(t *testing.T) {
	repo := newTestRepo(t)

	stats := ClassStats{AvgReturnPct: 11, ProbNegativeYearPct: 20, ExpectedShortfallPct: -9, MaxDrawdownPct: -28}
	require.NoError(t, repo.Upsert("equity", BucketLongTerm, stats))

	stats.AvgReturnPct = 12.5
	require.NoError(t, repo.Upsert("equity", BucketLongTerm, stats))

	grid, err := repo.LoadGrid()
	require.NoError(t, err)
	got, ok := grid.Lookup("equity", 8)
	require.True(t, ok)
	assert.Equal(t, 12.5, got.AvgReturnPct)
	assert.Nil(t, got.VolatilityPct)
}

func TestRepository_UpsertRejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.Upsert("equity", BucketLongTerm, ClassStats{ProbNegativeYearPct: 150})
	assert.Error(t, err)
}
