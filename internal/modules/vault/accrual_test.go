package vault

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettle_AccruesRewardPerShare(t *testing.T) {
	// reward_rate=100, 1,000,000 shares, 10 ticks elapsed
	pool := Pool{
		ID:             1,
		TotalDeposited: 1_000_000,
		TotalShares:    1_000_000,
		RewardRate:     100,
		LastUpdateTime: 100,
	}
	pos := Position{Account: "alice", PoolID: 1, SharesOwned: 1_000_000}

	newPool, newPos, earned, err := Settle(pool, pos, 110)
	require.NoError(t, err)

	// increment = (100 * 10) * 1e6 / 1e6 = 1000
	assert.Equal(t, int64(1000), newPool.RewardAccumulator)
	// earned = 1e6 shares * 1000 / 1e6 = 1000 = rate * elapsed, i.e. the
	// sole holder collects the entire emission
	assert.Equal(t, int64(1000), earned)
	assert.Equal(t, int64(1000), newPos.PendingReward)
	assert.Equal(t, int64(1000), newPos.AccumulatorSettledAt)
	assert.Equal(t, int64(110), newPool.LastUpdateTime)
}

func TestSettle_ZeroSharesDoesNotAdvanceAccumulator(t *testing.T) {
	pool := Pool{ID: 1, RewardRate: 100, LastUpdateTime: 100}
	pos := Position{Account: "alice", PoolID: 1}

	newPool, newPos, earned, err := Settle(pool, pos, 200)
	require.NoError(t, err)

	assert.Equal(t, int64(0), newPool.RewardAccumulator)
	assert.Equal(t, int64(0), earned)
	assert.Equal(t, int64(0), newPos.PendingReward)
	// Time still advances: the empty interval's rewards are forfeited
	assert.Equal(t, int64(200), newPool.LastUpdateTime)
}

func TestSettle_IdempotentAtSameTime(t *testing.T) {
	pool := Pool{
		ID:             1,
		TotalDeposited: 500_000,
		TotalShares:    500_000,
		RewardRate:     50,
		LastUpdateTime: 10,
	}
	pos := Position{Account: "bob", PoolID: 1, SharesOwned: 500_000}

	pool, pos, first, err := Settle(pool, pos, 20)
	require.NoError(t, err)
	require.Greater(t, first, int64(0))

	_, _, second, err := Settle(pool, pos, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second, "settling twice at the same logical time must earn nothing")
}

func TestSettle_AccumulatorMonotonic(t *testing.T) {
	pool := Pool{
		ID:             1,
		TotalDeposited: 1_000_000,
		TotalShares:    1_000_000,
		RewardRate:     7,
		LastUpdateTime: 0,
	}
	pos := Position{Account: "carol", PoolID: 1, SharesOwned: 250_000}

	prev := pool.RewardAccumulator
	for _, now := range []int64{3, 10, 10, 50, 51} {
		var err error
		pool, pos, _, err = Settle(pool, pos, now)
		require.NoError(t, err)
		require.GreaterOrEqual(t, pool.RewardAccumulator, prev)
		prev = pool.RewardAccumulator
	}
}

func TestSettle_RejectsTimeGoingBackward(t *testing.T) {
	pool := Pool{ID: 1, TotalShares: 100, LastUpdateTime: 100}
	_, _, _, err := Settle(pool, Position{}, 99)
	assert.Error(t, err)
}

func TestSettle_EarnedOverflowClampsToZero(t *testing.T) {
	// Enormous accumulator delta against a huge share count overflows the
	// 128-bit quotient; the policy clamps earned to zero instead of failing,
	// leaving principal untouched.
	pool := Pool{
		ID:                1,
		TotalShares:       math.MaxInt64,
		RewardAccumulator: math.MaxInt64,
		LastUpdateTime:    100,
	}
	pos := Position{Account: "dave", PoolID: 1, SharesOwned: math.MaxInt64, AccumulatorSettledAt: 0}

	_, newPos, earned, err := Settle(pool, pos, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), earned)
	assert.Equal(t, int64(0), newPos.PendingReward)
	// Settlement point still advances so the overflow is not retried forever
	assert.Equal(t, int64(math.MaxInt64), newPos.AccumulatorSettledAt)
}

func TestSettle_PartialHolderEarnsProRata(t *testing.T) {
	pool := Pool{
		ID:             1,
		TotalDeposited: 1_000_000,
		TotalShares:    1_000_000,
		RewardRate:     100,
		LastUpdateTime: 0,
	}
	// Alice holds a quarter of the supply
	pos := Position{Account: "alice", PoolID: 1, SharesOwned: 250_000}

	_, _, earned, err := Settle(pool, pos, 10)
	require.NoError(t, err)
	// Full emission over 10 ticks is 1000; a quarter of the shares earns 250
	assert.Equal(t, int64(250), earned)
}
