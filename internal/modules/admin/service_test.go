package admin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebymuri/DeFiYield/internal/database"
	"github.com/codebymuri/DeFiYield/internal/domain"
	"github.com/codebymuri/DeFiYield/internal/events"
	"github.com/codebymuri/DeFiYield/internal/modules/registry"
	"github.com/codebymuri/DeFiYield/internal/modules/settings"
	"github.com/codebymuri/DeFiYield/pkg/logger"
)

type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() int64 { return c.now }

type testEnv struct {
	svc      *Service
	settings *settings.Repository
	registry *registry.Repository
}

func setupAdmin(t *testing.T) *testEnv {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	engineDB, err := database.New(database.Config{Path: ":memory:", Name: "engine"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engineDB.Close() })
	require.NoError(t, engineDB.Migrate())

	ledgerDB, err := database.New(database.Config{Path: ":memory:", Name: "ledger", Profile: database.ProfileLedger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledgerDB.Close() })
	require.NoError(t, ledgerDB.Migrate())

	registryRepo := registry.NewRepository(engineDB.Conn(), log)
	require.NoError(t, registryRepo.Grant("owner", registry.RoleOwner, 0))

	settingsRepo := settings.NewRepository(engineDB.Conn(), log)
	svc := NewService(
		settingsRepo,
		registryRepo,
		registryRepo,
		&fakeClock{now: 1000},
		events.NewRecorder(ledgerDB.Conn(), log),
		log,
	)

	return &testEnv{svc: svc, settings: settingsRepo, registry: registryRepo}
}

func TestSetPaused(t *testing.T) {
	env := setupAdmin(t)

	require.NoError(t, env.svc.SetPaused("owner", true))
	paused, err := env.settings.Paused()
	require.NoError(t, err)
	assert.True(t, paused)

	require.NoError(t, env.svc.SetPaused("owner", false))
	paused, err = env.settings.Paused()
	require.NoError(t, err)
	assert.False(t, paused)

	err = env.svc.SetPaused("mallory", true)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestNumericSetters(t *testing.T) {
	env := setupAdmin(t)

	require.NoError(t, env.svc.SetCooldown("owner", 600))
	cooldown, err := env.settings.CooldownSeconds()
	require.NoError(t, err)
	assert.Equal(t, int64(600), cooldown)

	require.NoError(t, env.svc.SetDriftThreshold("owner", 350))
	threshold, err := env.settings.DriftThresholdBps()
	require.NoError(t, err)
	assert.Equal(t, int64(350), threshold)

	require.NoError(t, env.svc.SetMaxSlippage("owner", 75))
	slippage, err := env.settings.MaxSlippageBps()
	require.NoError(t, err)
	assert.Equal(t, int64(75), slippage)

	assert.ErrorIs(t, env.svc.SetCooldown("owner", -1), domain.ErrInvalidAmount)
	assert.ErrorIs(t, env.svc.SetDriftThreshold("owner", 10_001), domain.ErrInvalidAmount)
	assert.ErrorIs(t, env.svc.SetMaxSlippage("owner", -5), domain.ErrInvalidAmount)
}

func TestSetStrategy(t *testing.T) {
	env := setupAdmin(t)

	require.NoError(t, env.svc.SetStrategy("owner", "aggressive"))
	strategy, err := env.settings.Strategy()
	require.NoError(t, err)
	assert.Equal(t, "aggressive", strategy)

	err = env.svc.SetStrategy("owner", "turbo")
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)

	err = env.svc.SetStrategy("mallory", "moderate")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRoleManagement(t *testing.T) {
	env := setupAdmin(t)

	require.NoError(t, env.svc.GrantRole("owner", "bob", registry.RoleAgent))
	isAgent, err := env.registry.IsAuthorizedAgent("bob")
	require.NoError(t, err)
	assert.True(t, isAgent)

	require.NoError(t, env.svc.RevokeRole("owner", "bob", registry.RoleAgent))
	isAgent, err = env.registry.IsAuthorizedAgent("bob")
	require.NoError(t, err)
	assert.False(t, isAgent)

	err = env.svc.GrantRole("owner", "bob", "superuser")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	err = env.svc.GrantRole("mallory", "bob", registry.RoleAgent)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSettingsViewRequiresOwner(t *testing.T) {
	env := setupAdmin(t)

	all, err := env.svc.Settings("owner")
	require.NoError(t, err)
	assert.Equal(t, "moderate", all[settings.KeyStrategy])

	_, err = env.svc.Settings("mallory")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSettingChangesAreRecorded(t *testing.T) {
	env := setupAdmin(t)

	require.NoError(t, env.svc.SetCooldown("owner", 600))
	require.NoError(t, env.svc.SetStrategy("owner", "conservative"))

	list, err := env.svc.Events(10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, ev := range list {
		assert.Equal(t, events.SettingChanged, ev.Operation)
		assert.Equal(t, "owner", ev.Actor)
	}
}
