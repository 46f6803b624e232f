package rebalancing

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codebymuri/DeFiYield/internal/database"
	"github.com/codebymuri/DeFiYield/internal/domain"
	"github.com/codebymuri/DeFiYield/internal/events"
	"github.com/codebymuri/DeFiYield/internal/modules/settings"
	"github.com/codebymuri/DeFiYield/internal/modules/vault"
	"github.com/codebymuri/DeFiYield/internal/safemath"
)

// Service is the rebalancing controller. It measures aggregate drift between
// target and current allocation across tracked pools, gates execution on the
// pause flag, a cooldown and a drift threshold, and moves balances toward the
// active strategy's weight vector in one atomic pass.
type Service struct {
	repo     *Repository
	history  *HistoryRepository
	vault    *vault.Service
	auth     domain.AuthRegistry
	clock    domain.Clock
	settings *settings.Repository
	recorder *events.Recorder

	log zerolog.Logger
}

// NewService creates a new rebalancing controller
func NewService(
	repo *Repository,
	history *HistoryRepository,
	vaultSvc *vault.Service,
	auth domain.AuthRegistry,
	clock domain.Clock,
	settingsRepo *settings.Repository,
	recorder *events.Recorder,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		history:  history,
		vault:    vaultSvc,
		auth:     auth,
		clock:    clock,
		settings: settingsRepo,
		recorder: recorder,
		log:      log.With().Str("service", "rebalancing").Logger(),
	}
}

// Targets returns the configured allocation targets keyed by pool id
func (s *Service) Targets() (map[int64]AllocationTarget, error) {
	return s.repo.GetTargets()
}

// History returns the most recent rebalance records, newest first
func (s *Service) History(limit int) ([]RebalanceRecord, error) {
	return s.history.Recent(limit)
}

// SetTarget configures one pool's allocation target. Owner-only. The target
// bounds must satisfy 0 <= min <= target <= max <= 10000 bps.
func (s *Service) SetTarget(caller string, t AllocationTarget) error {
	isOwner, err := s.auth.IsOwner(caller)
	if err != nil {
		return fmt.Errorf("failed to check ownership: %w", err)
	}
	if !isOwner {
		return domain.ErrUnauthorized
	}

	if t.MinBps < 0 || t.MinBps > t.TargetBps || t.TargetBps > t.MaxBps || t.MaxBps > TotalBps {
		return fmt.Errorf("target bounds %d/%d/%d out of order: %w",
			t.MinBps, t.TargetBps, t.MaxBps, domain.ErrInvalidAllocation)
	}

	if _, err := s.vault.Pools().GetByID(t.PoolID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPoolNotFound
		}
		return fmt.Errorf("failed to load pool: %w", err)
	}

	now := s.clock.Now()
	if err := s.repo.SetTarget(t, now); err != nil {
		return err
	}

	s.recorder.Record(events.Event{
		Operation:   events.SettingChanged,
		Actor:       caller,
		PoolID:      t.PoolID,
		LogicalTime: now,
		Details: map[string]interface{}{
			"setting":    "allocation_target",
			"target_bps": t.TargetBps,
			"min_bps":    t.MinBps,
			"max_bps":    t.MaxBps,
		},
	})
	s.log.Info().
		Int64("pool_id", t.PoolID).
		Int64("target_bps", t.TargetBps).
		Msg("Allocation target updated")

	return nil
}

// SubmitRecommendation stores an advisory allocation from an allow-listed
// oracle account. Advisories never move funds directly; the AI-driven
// strategy may blend them in, re-validated, at execution time.
func (s *Service) SubmitRecommendation(caller string, allocations map[int64]int64, confidenceBps int64, rationale string) (int64, error) {
	isOracle, err := s.auth.IsAuthorizedOracle(caller)
	if err != nil {
		return 0, fmt.Errorf("failed to check oracle authorization: %w", err)
	}
	if !isOracle {
		return 0, domain.ErrUnauthorized
	}

	if confidenceBps < 0 || confidenceBps > TotalBps {
		return 0, fmt.Errorf("confidence %d bps out of range: %w", confidenceBps, domain.ErrInvalidAllocation)
	}
	if err := ValidateWeights(allocations); err != nil {
		return 0, err
	}

	now := s.clock.Now()
	id, err := s.repo.AddRecommendation(OracleRecommendation{
		Oracle:        caller,
		Allocations:   allocations,
		ConfidenceBps: confidenceBps,
		Rationale:     rationale,
		SubmittedAt:   now,
	})
	if err != nil {
		return 0, err
	}

	s.recorder.Record(events.Event{
		Operation:   events.OracleAdvisoryAdded,
		Actor:       caller,
		LogicalTime: now,
		Details:     map[string]interface{}{"recommendation_id": id, "confidence_bps": confidenceBps},
	})
	return id, nil
}

// Status reports the controller's current gating inputs: aggregate drift,
// cooldown remaining, pause state, and whether a rebalance would run now
func (s *Service) Status() (DriftStatus, error) {
	paused, err := s.settings.Paused()
	if err != nil {
		return DriftStatus{}, fmt.Errorf("failed to read pause flag: %w", err)
	}
	threshold, err := s.settings.DriftThresholdBps()
	if err != nil {
		return DriftStatus{}, fmt.Errorf("failed to read drift threshold: %w", err)
	}
	cooldown, err := s.settings.CooldownSeconds()
	if err != nil {
		return DriftStatus{}, fmt.Errorf("failed to read cooldown: %w", err)
	}
	lastRebalance, err := s.settings.LastRebalanceTime()
	if err != nil {
		return DriftStatus{}, fmt.Errorf("failed to read last rebalance time: %w", err)
	}

	targets, err := s.repo.GetTargets()
	if err != nil {
		return DriftStatus{}, err
	}
	pools, err := s.vault.Pools().GetAll()
	if err != nil {
		return DriftStatus{}, err
	}

	current, drift, err := aggregateDrift(pools, targets)
	if err != nil {
		return DriftStatus{}, err
	}

	targetBps := make(map[int64]int64, len(targets))
	for poolID, t := range targets {
		targetBps[poolID] = t.TargetBps
	}

	now := s.clock.Now()
	remaining := lastRebalance + cooldown - now
	if remaining < 0 {
		remaining = 0
	}

	return DriftStatus{
		AggregateDriftBps: drift,
		ThresholdBps:      threshold,
		CooldownRemaining: remaining,
		Paused:            paused,
		NeedsRebalance:    !paused && remaining == 0 && drift > threshold,
		CurrentBps:        current,
		TargetBps:         targetBps,
	}, nil
}

// IsRebalancingNeeded is the scheduled check's entry point: true iff not
// paused, the cooldown has elapsed, and aggregate drift exceeds the threshold
func (s *Service) IsRebalancingNeeded() (bool, error) {
	status, err := s.Status()
	if err != nil {
		return false, err
	}
	return status.NeedsRebalance, nil
}

// aggregateDrift computes each tracked pool's current allocation in basis
// points and the summed absolute difference against its target. Pools with no
// configured target are excluded from the total.
func aggregateDrift(pools []vault.Pool, targets map[int64]AllocationTarget) (map[int64]int64, int64, error) {
	var totalValue int64
	tracked := make(map[int64]int64, len(targets))
	for _, p := range pools {
		if _, ok := targets[p.ID]; !ok {
			continue
		}
		var err error
		totalValue, err = safemath.Add(totalValue, p.TotalDeposited)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to sum pool balances: %w", err)
		}
		tracked[p.ID] = p.TotalDeposited
	}

	current := make(map[int64]int64, len(targets))
	var drift int64
	for poolID, t := range targets {
		var bps int64
		if totalValue > 0 {
			var err error
			bps, err = safemath.MulDiv(tracked[poolID], TotalBps, totalValue)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to compute allocation for pool %d: %w", poolID, err)
			}
		}
		current[poolID] = bps

		diff := t.TargetBps - bps
		if diff < 0 {
			diff = -diff
		}
		var err error
		drift, err = safemath.Add(drift, diff)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to sum drift: %w", err)
		}
	}

	return current, drift, nil
}

// ExecuteRebalancing runs one reallocation pass using the configured
// strategy. Callable by the owner or an authorized agent; re-checks the pause
// flag and cooldown at entry. Any per-pool move failure aborts the whole pass
// with nothing applied and nothing recorded in history.
func (s *Service) ExecuteRebalancing(caller string) (RebalanceRecord, error) {
	if err := s.checkOperator(caller); err != nil {
		return RebalanceRecord{}, err
	}

	if err := s.checkGates(); err != nil {
		return RebalanceRecord{}, err
	}

	strategyName, err := s.settings.Strategy()
	if err != nil {
		return RebalanceRecord{}, fmt.Errorf("failed to read strategy: %w", err)
	}
	strategy, err := ParseStrategy(strategyName)
	if err != nil {
		return RebalanceRecord{}, err
	}

	targets, err := s.repo.GetTargets()
	if err != nil {
		return RebalanceRecord{}, err
	}
	if len(targets) == 0 {
		return RebalanceRecord{}, fmt.Errorf("no allocation targets configured: %w", domain.ErrInvalidAllocation)
	}

	var advisory *OracleRecommendation
	if strategy == StrategyAIDriven {
		advisory, err = s.repo.LatestRecommendation()
		if err != nil {
			return RebalanceRecord{}, err
		}
	}

	weights, err := WeightVector(strategy, targets, advisory)
	if err != nil {
		return RebalanceRecord{}, err
	}

	return s.executePass(caller, strategy, weights, false)
}

// TriggerEmergencyRebalancing applies an explicit owner-supplied allocation,
// bypassing the cooldown by resetting the last rebalance time backward. The
// allocation is validated first; an invalid sum fails with ErrInvalidAllocation
// before any state, including the cooldown clock, is touched.
func (s *Service) TriggerEmergencyRebalancing(caller string, allocations map[int64]int64) (RebalanceRecord, error) {
	isOwner, err := s.auth.IsOwner(caller)
	if err != nil {
		return RebalanceRecord{}, fmt.Errorf("failed to check ownership: %w", err)
	}
	if !isOwner {
		return RebalanceRecord{}, domain.ErrUnauthorized
	}

	if err := ValidateWeights(allocations); err != nil {
		return RebalanceRecord{}, err
	}
	if len(allocations) == 0 {
		return RebalanceRecord{}, fmt.Errorf("empty allocation: %w", domain.ErrInvalidAllocation)
	}

	paused, err := s.settings.Paused()
	if err != nil {
		return RebalanceRecord{}, fmt.Errorf("failed to read pause flag: %w", err)
	}
	if paused {
		return RebalanceRecord{}, domain.ErrPaused
	}

	// Reset the cooldown clock backward so the standard gate check passes
	// for this call. The pause flag still applies.
	now := s.clock.Now()
	cooldown, err := s.settings.CooldownSeconds()
	if err != nil {
		return RebalanceRecord{}, fmt.Errorf("failed to read cooldown: %w", err)
	}
	if err := s.settings.SetLastRebalanceTime(now-cooldown, now); err != nil {
		return RebalanceRecord{}, err
	}
	if err := s.checkGates(); err != nil {
		return RebalanceRecord{}, err
	}

	strategyName, err := s.settings.Strategy()
	if err != nil {
		return RebalanceRecord{}, fmt.Errorf("failed to read strategy: %w", err)
	}
	strategy, err := ParseStrategy(strategyName)
	if err != nil {
		return RebalanceRecord{}, err
	}

	s.log.Warn().
		Str("caller", caller).
		Msg("Emergency rebalance triggered")

	return s.executePass(caller, strategy, allocations, true)
}

// checkOperator allows the owner or an authorized agent
func (s *Service) checkOperator(caller string) error {
	isOwner, err := s.auth.IsOwner(caller)
	if err != nil {
		return fmt.Errorf("failed to check ownership: %w", err)
	}
	if isOwner {
		return nil
	}
	isAgent, err := s.auth.IsAuthorizedAgent(caller)
	if err != nil {
		return fmt.Errorf("failed to check agent authorization: %w", err)
	}
	if !isAgent {
		return domain.ErrUnauthorized
	}
	return nil
}

// checkGates re-checks pause and cooldown at execution entry
func (s *Service) checkGates() error {
	paused, err := s.settings.Paused()
	if err != nil {
		return fmt.Errorf("failed to read pause flag: %w", err)
	}
	if paused {
		return domain.ErrPaused
	}

	cooldown, err := s.settings.CooldownSeconds()
	if err != nil {
		return fmt.Errorf("failed to read cooldown: %w", err)
	}
	lastRebalance, err := s.settings.LastRebalanceTime()
	if err != nil {
		return fmt.Errorf("failed to read last rebalance time: %w", err)
	}
	if s.clock.Now()-lastRebalance < cooldown {
		return domain.ErrCooldownActive
	}
	return nil
}

// executePass moves pool balances toward the weight vector in one database
// transaction. Desired amounts are normalized over the weight sum so the
// total value across tracked pools is conserved exactly; the rounding
// remainder lands on the last pool in id order. Drains run before funds so no
// pool is ever asked to cover value that has not been freed yet.
func (s *Service) executePass(caller string, strategy Strategy, weights map[int64]int64, emergency bool) (RebalanceRecord, error) {
	now := s.clock.Now()

	poolIDs := make([]int64, 0, len(weights))
	for poolID := range weights {
		poolIDs = append(poolIDs, poolID)
	}
	sort.Slice(poolIDs, func(i, j int) bool { return poolIDs[i] < poolIDs[j] })

	var sumWeights int64
	for _, poolID := range poolIDs {
		var err error
		sumWeights, err = safemath.Add(sumWeights, weights[poolID])
		if err != nil {
			return RebalanceRecord{}, fmt.Errorf("weight sum overflow: %w", domain.ErrInvalidAllocation)
		}
	}
	if sumWeights == 0 {
		return RebalanceRecord{}, fmt.Errorf("weights sum to zero: %w", domain.ErrInvalidAllocation)
	}

	var amountMoved int64
	var touched []int64
	err := database.WithTransaction(s.vault.DB().Conn(), func(tx *sql.Tx) error {
		pools, err := s.vault.Pools().GetAllTx(tx)
		if err != nil {
			return err
		}
		balances := make(map[int64]int64, len(pools))
		for _, p := range pools {
			balances[p.ID] = p.TotalDeposited
		}

		var totalValue int64
		for _, poolID := range poolIDs {
			balance, ok := balances[poolID]
			if !ok {
				return domain.ErrPoolNotFound
			}
			totalValue, err = safemath.Add(totalValue, balance)
			if err != nil {
				return fmt.Errorf("failed to sum pool balances: %w", err)
			}
		}

		desired := make(map[int64]int64, len(poolIDs))
		var allocated int64
		for i, poolID := range poolIDs {
			if i == len(poolIDs)-1 {
				desired[poolID], err = safemath.Sub(totalValue, allocated)
				if err != nil {
					return fmt.Errorf("failed to assign remainder: %w", err)
				}
				break
			}
			desired[poolID], err = safemath.MulDiv(totalValue, weights[poolID], sumWeights)
			if err != nil {
				return fmt.Errorf("failed to compute desired amount for pool %d: %w", poolID, err)
			}
			allocated, err = safemath.Add(allocated, desired[poolID])
			if err != nil {
				return fmt.Errorf("failed to sum desired amounts: %w", err)
			}
		}

		var moves []Move
		for _, poolID := range poolIDs {
			delta := desired[poolID] - balances[poolID]
			switch {
			case delta < 0:
				moves = append(moves, Move{PoolID: poolID, Kind: MoveDrain, Amount: -delta})
			case delta > 0:
				moves = append(moves, Move{PoolID: poolID, Kind: MoveFund, Amount: delta})
			}
		}

		// Drains first, then funds. The first failing step aborts the
		// transaction with no partial application.
		for _, m := range moves {
			if m.Kind != MoveDrain {
				continue
			}
			if err := s.vault.DrainTx(tx, m.PoolID, m.Amount); err != nil {
				return fmt.Errorf("failed to drain pool %d: %w", m.PoolID, err)
			}
			amountMoved, err = safemath.Add(amountMoved, m.Amount)
			if err != nil {
				return fmt.Errorf("failed to sum amount moved: %w", err)
			}
			touched = append(touched, m.PoolID)
		}
		for _, m := range moves {
			if m.Kind != MoveFund {
				continue
			}
			if err := s.vault.FundTx(tx, m.PoolID, m.Amount); err != nil {
				return fmt.Errorf("failed to fund pool %d: %w", m.PoolID, err)
			}
			touched = append(touched, m.PoolID)
		}
		sort.Slice(touched, func(i, j int) bool { return touched[i] < touched[j] })

		return s.repo.StampRebalanceTimes(tx, touched, now)
	})
	if err != nil {
		amountMoved = 0
		touched = nil
		return RebalanceRecord{}, err
	}

	if err := s.settings.SetLastRebalanceTime(now, now); err != nil {
		return RebalanceRecord{}, err
	}

	record := RebalanceRecord{
		UUID:         uuid.New().String(),
		ExecutedAt:   now,
		Strategy:     strategy,
		AmountMoved:  amountMoved,
		PoolsTouched: touched,
		Emergency:    emergency,
	}
	if err := s.history.Append(record); err != nil {
		return RebalanceRecord{}, err
	}

	op := events.RebalanceExecuted
	if emergency {
		op = events.EmergencyRebalance
	}
	s.recorder.Record(events.Event{
		Operation:   op,
		Actor:       caller,
		Amount:      amountMoved,
		LogicalTime: now,
		Details:     map[string]interface{}{"strategy": string(strategy), "pools_touched": touched},
	})
	s.log.Info().
		Str("strategy", string(strategy)).
		Int64("amount_moved", amountMoved).
		Ints64("pools_touched", touched).
		Bool("emergency", emergency).
		Msg("Rebalance executed")

	return record, nil
}
