package rebalancing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebymuri/DeFiYield/internal/database"
	"github.com/codebymuri/DeFiYield/internal/domain"
	"github.com/codebymuri/DeFiYield/internal/events"
	"github.com/codebymuri/DeFiYield/internal/modules/registry"
	"github.com/codebymuri/DeFiYield/internal/modules/settings"
	"github.com/codebymuri/DeFiYield/internal/modules/vault"
	"github.com/codebymuri/DeFiYield/pkg/logger"
)

type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() int64 { return c.now }

type fakeTransfers struct {
	fail bool
}

func (f *fakeTransfers) Transfer(amount int64, from, to, memo string) error {
	if f.fail {
		return errors.New("custody unavailable")
	}
	return nil
}

type testEnv struct {
	ctrl     *Service
	vault    *vault.Service
	clock    *fakeClock
	settings *settings.Repository
	auth     *registry.Repository
}

func setupController(t *testing.T) *testEnv {
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

	auth := registry.NewRepository(engineDB.Conn(), log)
	require.NoError(t, auth.Grant("owner", registry.RoleOwner, 0))
	require.NoError(t, auth.Grant("agent", registry.RoleAgent, 0))
	require.NoError(t, auth.Grant("oracle", registry.RoleOracle, 0))

	clock := &fakeClock{now: 10_000}
	settingsRepo := settings.NewRepository(engineDB.Conn(), log)
	recorder := events.NewRecorder(ledgerDB.Conn(), log)

	vaultSvc := vault.NewService(
		engineDB,
		vault.NewPoolRepository(engineDB.Conn(), log),
		vault.NewPositionRepository(engineDB.Conn(), log),
		&fakeTransfers{},
		auth,
		clock,
		settingsRepo,
		recorder,
		log,
	)

	ctrl := NewService(
		NewRepository(engineDB.Conn(), log),
		NewHistoryRepository(ledgerDB.Conn(), log),
		vaultSvc,
		auth,
		clock,
		settingsRepo,
		recorder,
		log,
	)

	return &testEnv{ctrl: ctrl, vault: vaultSvc, clock: clock, settings: settingsRepo, auth: auth}
}

// seedTwoPools creates two pools holding 600k/400k against 50/50 targets, a
// 2000 bps aggregate drift
func seedTwoPools(t *testing.T, env *testEnv) (vault.Pool, vault.Pool) {
	t.Helper()

	poolA, err := env.vault.CreatePool("owner", vault.PoolConfig{AssetRef: "USDX"})
	require.NoError(t, err)
	poolB, err := env.vault.CreatePool("owner", vault.PoolConfig{AssetRef: "GOLD"})
	require.NoError(t, err)

	_, err = env.vault.Deposit("alice", poolA.ID, 600_000)
	require.NoError(t, err)
	_, err = env.vault.Deposit("alice", poolB.ID, 400_000)
	require.NoError(t, err)

	require.NoError(t, env.ctrl.SetTarget("owner", AllocationTarget{PoolID: poolA.ID, TargetBps: 5000, MinBps: 3000, MaxBps: 7000}))
	require.NoError(t, env.ctrl.SetTarget("owner", AllocationTarget{PoolID: poolB.ID, TargetBps: 5000, MinBps: 3000, MaxBps: 7000}))

	return poolA, poolB
}

func TestSetTarget(t *testing.T) {
	env := setupController(t)
	pool, err := env.vault.CreatePool("owner", vault.PoolConfig{AssetRef: "USDX"})
	require.NoError(t, err)

	require.NoError(t, env.ctrl.SetTarget("owner", AllocationTarget{PoolID: pool.ID, TargetBps: 6000, MinBps: 4000, MaxBps: 8000}))

	targets, err := env.ctrl.Targets()
	require.NoError(t, err)
	assert.Equal(t, int64(6000), targets[pool.ID].TargetBps)

	err = env.ctrl.SetTarget("mallory", AllocationTarget{PoolID: pool.ID, TargetBps: 5000, MinBps: 0, MaxBps: 10000})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// min > target
	err = env.ctrl.SetTarget("owner", AllocationTarget{PoolID: pool.ID, TargetBps: 3000, MinBps: 4000, MaxBps: 8000})
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)

	err = env.ctrl.SetTarget("owner", AllocationTarget{PoolID: 999, TargetBps: 5000, MinBps: 0, MaxBps: 10000})
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)
}

func TestIsRebalancingNeeded_DriftGating(t *testing.T) {
	env := setupController(t)
	seedTwoPools(t, env)

	// 2000 bps drift, cooldown elapsed (last rebalance defaults to 0)
	needed, err := env.ctrl.IsRebalancingNeeded()
	require.NoError(t, err)
	assert.True(t, needed)

	// cooldown wins regardless of drift magnitude
	require.NoError(t, env.settings.SetLastRebalanceTime(env.clock.now, env.clock.now))
	needed, err = env.ctrl.IsRebalancingNeeded()
	require.NoError(t, err)
	assert.False(t, needed)

	// cooldown elapses again
	env.clock.now += 3600
	needed, err = env.ctrl.IsRebalancingNeeded()
	require.NoError(t, err)
	assert.True(t, needed)

	// pause flag blocks
	require.NoError(t, env.settings.Set("engine_paused", "true", env.clock.now))
	needed, err = env.ctrl.IsRebalancingNeeded()
	require.NoError(t, err)
	assert.False(t, needed)
}

func TestIsRebalancingNeeded_BelowThreshold(t *testing.T) {
	env := setupController(t)
	poolA, err := env.vault.CreatePool("owner", vault.PoolConfig{AssetRef: "USDX"})
	require.NoError(t, err)
	poolB, err := env.vault.CreatePool("owner", vault.PoolConfig{AssetRef: "GOLD"})
	require.NoError(t, err)

	_, err = env.vault.Deposit("alice", poolA.ID, 500_000)
	require.NoError(t, err)
	_, err = env.vault.Deposit("alice", poolB.ID, 500_000)
	require.NoError(t, err)

	require.NoError(t, env.ctrl.SetTarget("owner", AllocationTarget{PoolID: poolA.ID, TargetBps: 5000, MinBps: 0, MaxBps: 10000}))
	require.NoError(t, env.ctrl.SetTarget("owner", AllocationTarget{PoolID: poolB.ID, TargetBps: 5000, MinBps: 0, MaxBps: 10000}))

	status, err := env.ctrl.Status()
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.AggregateDriftBps)
	assert.False(t, status.NeedsRebalance)
}

func TestExecuteRebalancing_MovesTowardTargets(t *testing.T) {
	env := setupController(t)
	poolA, poolB := seedTwoPools(t, env)

	record, err := env.ctrl.ExecuteRebalancing("owner")
	require.NoError(t, err)

	assert.Equal(t, StrategyModerate, record.Strategy)
	assert.Equal(t, int64(100_000), record.AmountMoved)
	assert.Equal(t, []int64{poolA.ID, poolB.ID}, record.PoolsTouched)
	assert.False(t, record.Emergency)
	assert.NotEmpty(t, record.UUID)

	a, err := env.vault.Pools().GetByID(poolA.ID)
	require.NoError(t, err)
	b, err := env.vault.Pools().GetByID(poolB.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), a.TotalDeposited)
	assert.Equal(t, int64(500_000), b.TotalDeposited)

	// value is conserved and shares never move during a rebalance
	assert.Equal(t, int64(1_000_000), a.TotalDeposited+b.TotalDeposited)
	assert.Equal(t, int64(600_000), a.TotalShares)
	assert.Equal(t, int64(400_000), b.TotalShares)

	last, err := env.settings.LastRebalanceTime()
	require.NoError(t, err)
	assert.Equal(t, env.clock.now, last)

	history, err := env.ctrl.History(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, record.UUID, history[0].UUID)
}

func TestExecuteRebalancing_Authorization(t *testing.T) {
	env := setupController(t)
	seedTwoPools(t, env)

	_, err := env.ctrl.ExecuteRebalancing("mallory")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// authorized agents may execute, not just the owner
	_, err = env.ctrl.ExecuteRebalancing("agent")
	require.NoError(t, err)
}

func TestExecuteRebalancing_CooldownActive(t *testing.T) {
	env := setupController(t)
	seedTwoPools(t, env)

	_, err := env.ctrl.ExecuteRebalancing("owner")
	require.NoError(t, err)

	env.clock.now += 60
	_, err = env.ctrl.ExecuteRebalancing("owner")
	assert.ErrorIs(t, err, domain.ErrCooldownActive)

	env.clock.now += 3600
	_, err = env.ctrl.ExecuteRebalancing("owner")
	require.NoError(t, err)
}

func TestExecuteRebalancing_PausedBlocks(t *testing.T) {
	env := setupController(t)
	seedTwoPools(t, env)

	require.NoError(t, env.settings.Set("engine_paused", "true", env.clock.now))
	_, err := env.ctrl.ExecuteRebalancing("owner")
	assert.ErrorIs(t, err, domain.ErrPaused)
}

func TestEmergency_InvalidSumLeavesCooldownUntouched(t *testing.T) {
	env := setupController(t)
	poolA, poolB := seedTwoPools(t, env)
	poolC, err := env.vault.CreatePool("owner", vault.PoolConfig{AssetRef: "OIL"})
	require.NoError(t, err)

	require.NoError(t, env.settings.SetLastRebalanceTime(7777, env.clock.now))

	// 6000+5000+1000 sums past 100%
	_, err = env.ctrl.TriggerEmergencyRebalancing("owner", map[int64]int64{
		poolA.ID: 6000,
		poolB.ID: 5000,
		poolC.ID: 1000,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)

	last, err := env.settings.LastRebalanceTime()
	require.NoError(t, err)
	assert.Equal(t, int64(7777), last)
}

func TestEmergency_BypassesCooldownAndAppliesExplicitAllocation(t *testing.T) {
	env := setupController(t)
	poolA, poolB := seedTwoPools(t, env)

	// regular execution just happened: cooldown is active
	_, err := env.ctrl.ExecuteRebalancing("owner")
	require.NoError(t, err)
	env.clock.now += 60
	_, err = env.ctrl.ExecuteRebalancing("owner")
	require.ErrorIs(t, err, domain.ErrCooldownActive)

	record, err := env.ctrl.TriggerEmergencyRebalancing("owner", map[int64]int64{
		poolA.ID: 8000,
		poolB.ID: 2000,
	})
	require.NoError(t, err)
	assert.True(t, record.Emergency)

	a, err := env.vault.Pools().GetByID(poolA.ID)
	require.NoError(t, err)
	b, err := env.vault.Pools().GetByID(poolB.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(800_000), a.TotalDeposited)
	assert.Equal(t, int64(200_000), b.TotalDeposited)
}

func TestEmergency_OwnerOnly(t *testing.T) {
	env := setupController(t)
	poolA, poolB := seedTwoPools(t, env)

	_, err := env.ctrl.TriggerEmergencyRebalancing("agent", map[int64]int64{
		poolA.ID: 5000,
		poolB.ID: 5000,
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestExecutePass_AbortsOnUnknownPoolWithNoPartialApplication(t *testing.T) {
	env := setupController(t)
	poolA, poolB := seedTwoPools(t, env)

	_, err := env.ctrl.TriggerEmergencyRebalancing("owner", map[int64]int64{
		poolA.ID: 5000,
		poolB.ID: 4000,
		999:      1000,
	})
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)

	// no partial application: balances are exactly as seeded
	a, err := env.vault.Pools().GetByID(poolA.ID)
	require.NoError(t, err)
	b, err := env.vault.Pools().GetByID(poolB.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600_000), a.TotalDeposited)
	assert.Equal(t, int64(400_000), b.TotalDeposited)

	history, err := env.ctrl.History(10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSubmitRecommendation(t *testing.T) {
	env := setupController(t)
	poolA, poolB := seedTwoPools(t, env)

	allocations := map[int64]int64{poolA.ID: 7000, poolB.ID: 3000}

	_, err := env.ctrl.SubmitRecommendation("mallory", allocations, 8000, "rotate into USDX")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.ctrl.SubmitRecommendation("oracle", allocations, 12_000, "overconfident")
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)

	_, err = env.ctrl.SubmitRecommendation("oracle", map[int64]int64{poolA.ID: 9000, poolB.ID: 3000}, 5000, "bad sum")
	assert.ErrorIs(t, err, domain.ErrInvalidAllocation)

	id, err := env.ctrl.SubmitRecommendation("oracle", allocations, 8000, "rotate into USDX")
	require.NoError(t, err)
	assert.Positive(t, id)

	latest, err := env.ctrl.repo.LatestRecommendation()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "oracle", latest.Oracle)
	assert.Equal(t, allocations, latest.Allocations)
	assert.Equal(t, int64(8000), latest.ConfidenceBps)
}

func TestExecuteRebalancing_AIDrivenConsumesAdvisory(t *testing.T) {
	env := setupController(t)
	poolA, poolB := seedTwoPools(t, env)

	require.NoError(t, env.settings.Set("rebalance_strategy", "ai_driven", env.clock.now))
	_, err := env.ctrl.SubmitRecommendation("oracle", map[int64]int64{poolA.ID: 7000, poolB.ID: 3000}, 10_000, "rotate")
	require.NoError(t, err)

	record, err := env.ctrl.ExecuteRebalancing("owner")
	require.NoError(t, err)
	assert.Equal(t, StrategyAIDriven, record.Strategy)

	a, err := env.vault.Pools().GetByID(poolA.ID)
	require.NoError(t, err)
	b, err := env.vault.Pools().GetByID(poolB.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700_000), a.TotalDeposited)
	assert.Equal(t, int64(300_000), b.TotalDeposited)
}
