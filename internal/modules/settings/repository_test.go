package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebymuri/DeFiYield/internal/database"
	"github.com/codebymuri/DeFiYield/pkg/logger"
)

func setupRepo(t *testing.T) *Repository {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	db, err := database.New(database.Config{Path: ":memory:", Name: "engine"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	return NewRepository(db.Conn(), log)
}

func TestDefaultsResolveForUnwrittenKeys(t *testing.T) {
	repo := setupRepo(t)

	paused, err := repo.Paused()
	require.NoError(t, err)
	assert.False(t, paused)

	cooldown, err := repo.CooldownSeconds()
	require.NoError(t, err)
	assert.Equal(t, int64(3600), cooldown)

	threshold, err := repo.DriftThresholdBps()
	require.NoError(t, err)
	assert.Equal(t, int64(200), threshold)

	strategy, err := repo.Strategy()
	require.NoError(t, err)
	assert.Equal(t, "moderate", strategy)

	last, err := repo.LastRebalanceTime()
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

func TestSetOverridesDefault(t *testing.T) {
	repo := setupRepo(t)

	require.NoError(t, repo.Set(KeyPaused, "true", 100))
	paused, err := repo.Paused()
	require.NoError(t, err)
	assert.True(t, paused)

	require.NoError(t, repo.Set(KeyCooldownSeconds, "60", 100))
	cooldown, err := repo.CooldownSeconds()
	require.NoError(t, err)
	assert.Equal(t, int64(60), cooldown)

	// Set is an upsert
	require.NoError(t, repo.Set(KeyCooldownSeconds, "120", 200))
	cooldown, err = repo.CooldownSeconds()
	require.NoError(t, err)
	assert.Equal(t, int64(120), cooldown)
}

func TestGetUnknownKeyReturnsNil(t *testing.T) {
	repo := setupRepo(t)

	value, err := repo.Get("no_such_key")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestGetAllIncludesDefaults(t *testing.T) {
	repo := setupRepo(t)
	require.NoError(t, repo.Set(KeyStrategy, "aggressive", 100))

	all, err := repo.GetAll()
	require.NoError(t, err)

	assert.Equal(t, "aggressive", all[KeyStrategy])
	assert.Equal(t, "false", all[KeyPaused])
	assert.Equal(t, "3600", all[KeyCooldownSeconds])
}

func TestSetLastRebalanceTime(t *testing.T) {
	repo := setupRepo(t)

	require.NoError(t, repo.SetLastRebalanceTime(5000, 5000))
	last, err := repo.LastRebalanceTime()
	require.NoError(t, err)
	assert.Equal(t, int64(5000), last)

	// backward reset is allowed: the emergency path depends on it
	require.NoError(t, repo.SetLastRebalanceTime(1400, 5100))
	last, err = repo.LastRebalanceTime()
	require.NoError(t, err)
	assert.Equal(t, int64(1400), last)
}
