package vault

import (
	"errors"
	"fmt"

	"github.com/codebymuri/DeFiYield/internal/domain"
	"github.com/codebymuri/DeFiYield/internal/safemath"
)

// Settle advances the pool's reward accumulator to the given logical time and
// credits the position's earned-but-unclaimed reward. It is a pure function:
// callers receive updated copies and are responsible for persisting them
// atomically with whatever share mutation follows.
//
// Settle must run before every share-mutating operation (deposit, withdraw)
// and before claim, using that operation's logical time.
//
// Accumulator rules:
//   - With zero total shares there is no denominator, so the accumulator does
//     not advance and the empty interval's rewards are forfeited.
//   - Otherwise the accumulator grows by rewardRate*elapsed*Precision/shares
//     and is monotonically non-decreasing.
//
// The earned computation clamps to zero on overflow instead of failing the
// transaction. The position's principal is untouched by this clamp; failing
// here would permanently lock the position behind an unsettleable reward.
func Settle(pool Pool, pos Position, now int64) (Pool, Position, int64, error) {
	if now < pool.LastUpdateTime {
		return pool, pos, 0, fmt.Errorf("settle time %d precedes pool update time %d: %w",
			now, pool.LastUpdateTime, domain.ErrInvalidAmount)
	}

	if pool.TotalShares > 0 {
		elapsed := now - pool.LastUpdateTime
		if elapsed > 0 && pool.RewardRate > 0 {
			accrued, err := safemath.Mul(pool.RewardRate, elapsed)
			if err != nil {
				return pool, pos, 0, fmt.Errorf("failed to compute accrued reward: %w", err)
			}
			increment, err := safemath.MulDiv(accrued, Precision, pool.TotalShares)
			if err != nil {
				return pool, pos, 0, fmt.Errorf("failed to compute accumulator increment: %w", err)
			}
			pool.RewardAccumulator, err = safemath.Add(pool.RewardAccumulator, increment)
			if err != nil {
				return pool, pos, 0, fmt.Errorf("failed to advance accumulator: %w", err)
			}
		}
	}

	earned := int64(0)
	delta := pool.RewardAccumulator - pos.AccumulatorSettledAt
	if delta > 0 && pos.SharesOwned > 0 {
		var err error
		earned, err = safemath.MulDiv(pos.SharesOwned, delta, Precision)
		if err != nil {
			if errors.Is(err, domain.ErrOverflow) {
				// Accepted clamp policy: tolerate reward overflow rather than
				// lock the position. Principal is unaffected.
				earned = 0
			} else {
				return pool, pos, 0, fmt.Errorf("failed to compute earned reward: %w", err)
			}
		}
	}

	if earned > 0 {
		var err error
		pos.PendingReward, err = safemath.Add(pos.PendingReward, earned)
		if err != nil {
			return pool, pos, 0, fmt.Errorf("failed to credit pending reward: %w", err)
		}
	}
	pos.AccumulatorSettledAt = pool.RewardAccumulator
	pool.LastUpdateTime = now

	return pool, pos, earned, nil
}
