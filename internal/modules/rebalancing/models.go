// Package rebalancing implements the allocation-drift rebalancing controller:
// it holds per-pool target weights, measures aggregate drift between target
// and current allocation, and executes cooldown-gated reallocation passes
// over the vault ledger's pool balances.
package rebalancing

import "fmt"

// TotalBps is the full allocation in basis points (100%)
const TotalBps int64 = 10_000

// Strategy selects the deterministic weight table used by an execution pass
type Strategy string

const (
	StrategyConservative Strategy = "conservative"
	StrategyModerate     Strategy = "moderate"
	StrategyAggressive   Strategy = "aggressive"
	StrategyAIDriven     Strategy = "ai_driven"
)

// ParseStrategy validates a strategy name
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyConservative, StrategyModerate, StrategyAggressive, StrategyAIDriven:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// AllocationTarget holds the controller-owned weight bounds for one pool
type AllocationTarget struct {
	PoolID            int64 `json:"pool_id"`
	TargetBps         int64 `json:"target_bps"`
	MinBps            int64 `json:"min_bps"`
	MaxBps            int64 `json:"max_bps"`
	LastRebalanceTime int64 `json:"last_rebalance_time"`
}

// RebalanceRecord is one immutable history entry, written once per successful
// execution and never mutated or deleted
type RebalanceRecord struct {
	UUID         string   `json:"uuid"`
	ExecutedAt   int64    `json:"executed_at"`
	Strategy     Strategy `json:"strategy"`
	AmountMoved  int64    `json:"amount_moved"`
	PoolsTouched []int64  `json:"pools_touched"`
	Emergency    bool     `json:"emergency"`
}

// OracleRecommendation is advisory allocation data submitted by an
// allow-listed oracle account. The AI-driven strategy may weight its blend by
// these values; they are never applied without re-validating the basis-point
// sum invariant.
type OracleRecommendation struct {
	ID            int64           `json:"id"`
	Oracle        string          `json:"oracle"`
	Allocations   map[int64]int64 `json:"allocations"` // pool id -> bps
	ConfidenceBps int64           `json:"confidence_bps"`
	Rationale     string          `json:"rationale"`
	SubmittedAt   int64           `json:"submitted_at"`
}

// DriftStatus reports the controller's current gating inputs
type DriftStatus struct {
	AggregateDriftBps int64           `json:"aggregate_drift_bps"`
	ThresholdBps      int64           `json:"threshold_bps"`
	CooldownRemaining int64           `json:"cooldown_remaining"`
	Paused            bool            `json:"paused"`
	NeedsRebalance    bool            `json:"needs_rebalance"`
	CurrentBps        map[int64]int64 `json:"current_bps"`
	TargetBps         map[int64]int64 `json:"target_bps"`
}

// MoveKind distinguishes funding a pool from draining it
type MoveKind string

const (
	MoveFund  MoveKind = "fund"
	MoveDrain MoveKind = "drain"
)

// Move is one per-pool reallocation step in an execution pass
type Move struct {
	PoolID int64    `json:"pool_id"`
	Kind   MoveKind `json:"kind"`
	Amount int64    `json:"amount"`
}
