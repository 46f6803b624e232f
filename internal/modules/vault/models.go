// Package vault implements the share-based vault accounting and
// reward-accrual engine: proportional share issuance and redemption over
// named pools, with a lazily-updated per-share reward accumulator settled
// before every share-changing operation.
package vault

import "github.com/codebymuri/DeFiYield/internal/safemath"

// Precision is the fixed scaling factor for reward-per-share values and the
// share price baseline: 1 deposited unit mints 1 share at a price of
// Precision micro-units.
const Precision int64 = 1_000_000

// Pool holds the per-pool accounting state
type Pool struct {
	ID                int64  `json:"id"`
	AssetRef          string `json:"asset_ref"`
	TotalDeposited    int64  `json:"total_deposited"`
	TotalShares       int64  `json:"total_shares"`
	RewardRate        int64  `json:"reward_rate"`
	RewardAccumulator int64  `json:"reward_accumulator"`
	LastUpdateTime    int64  `json:"last_update_time"`
	Active            bool   `json:"active"`
	CreatedAt         int64  `json:"created_at"`
}

// SharePrice returns the current price of one share in micro-units of the
// underlying asset. An empty pool trades at the 1:1 baseline.
func (p *Pool) SharePrice() (int64, error) {
	if p.TotalShares == 0 {
		return Precision, nil
	}
	return safemath.MulDiv(p.TotalDeposited, Precision, p.TotalShares)
}

// Position holds the per-account, per-pool claim state
type Position struct {
	Account              string `json:"account"`
	PoolID               int64  `json:"pool_id"`
	SharesOwned          int64  `json:"shares_owned"`
	AccumulatorSettledAt int64  `json:"accumulator_settled_at"`
	PendingReward        int64  `json:"pending_reward"`
	DepositTime          int64  `json:"deposit_time"`
	CumulativeClaimed    int64  `json:"cumulative_claimed"`
}

// PoolConfig holds the creation-time configuration of a pool
type PoolConfig struct {
	AssetRef   string `json:"asset_ref"`
	RewardRate int64  `json:"reward_rate"`
}
