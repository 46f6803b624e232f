package vault

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/codebymuri/DeFiYield/internal/database"
	"github.com/codebymuri/DeFiYield/internal/domain"
	"github.com/codebymuri/DeFiYield/internal/events"
	"github.com/codebymuri/DeFiYield/internal/modules/settings"
	"github.com/codebymuri/DeFiYield/internal/safemath"
)

// EscrowAccount is the custody account the engine deposits into and pays out
// of. The transfer capability owns the actual funds movement.
const EscrowAccount = "vault-escrow"

// Service is the vault share ledger: it owns pool and position state and
// exposes the deposit, withdraw and claim operations. Every operation runs in
// a single database transaction and either fully succeeds or leaves no trace.
type Service struct {
	db        *database.DB
	pools     *PoolRepository
	positions *PositionRepository
	transfers domain.TransferCapability
	auth      domain.AuthRegistry
	clock     domain.Clock
	settings  *settings.Repository
	recorder  *events.Recorder

	log zerolog.Logger
}

// NewService creates a new vault ledger service
func NewService(
	db *database.DB,
	pools *PoolRepository,
	positions *PositionRepository,
	transfers domain.TransferCapability,
	auth domain.AuthRegistry,
	clock domain.Clock,
	settingsRepo *settings.Repository,
	recorder *events.Recorder,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:        db,
		pools:     pools,
		positions: positions,
		transfers: transfers,
		auth:      auth,
		clock:     clock,
		settings:  settingsRepo,
		recorder:  recorder,
		log:       log.With().Str("service", "vault").Logger(),
	}
}

// Pools returns the pool repository (used by the rebalancing controller for
// registry enumeration)
func (s *Service) Pools() *PoolRepository {
	return s.pools
}

// Positions returns the position repository
func (s *Service) Positions() *PositionRepository {
	return s.positions
}

// CreatePool registers a new pool for an asset. Owner-only.
func (s *Service) CreatePool(caller string, cfg PoolConfig) (Pool, error) {
	isOwner, err := s.auth.IsOwner(caller)
	if err != nil {
		return Pool{}, fmt.Errorf("failed to check ownership: %w", err)
	}
	if !isOwner {
		return Pool{}, domain.ErrUnauthorized
	}
	if cfg.AssetRef == "" {
		return Pool{}, fmt.Errorf("asset reference is required: %w", domain.ErrInvalidAmount)
	}
	if cfg.RewardRate < 0 {
		return Pool{}, fmt.Errorf("reward rate must be non-negative: %w", domain.ErrInvalidAmount)
	}

	now := s.clock.Now()

	var pool Pool
	err = database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		exists, err := s.pools.ExistsByAsset(tx, cfg.AssetRef)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrPoolAlreadyExists
		}

		pool, err = s.pools.Create(tx, cfg, now)
		return err
	})
	if err != nil {
		return Pool{}, err
	}

	s.recorder.Record(events.Event{
		Operation:   events.PoolCreated,
		Actor:       caller,
		PoolID:      pool.ID,
		LogicalTime: now,
		Details:     map[string]interface{}{"asset_ref": cfg.AssetRef, "reward_rate": cfg.RewardRate},
	})
	s.log.Info().
		Int64("pool_id", pool.ID).
		Str("asset_ref", cfg.AssetRef).
		Msg("Created pool")

	return pool, nil
}

// Deposit adds amount to the pool and mints proportional shares for the
// account. The inbound transfer must succeed before any state is committed.
func (s *Service) Deposit(account string, poolID int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	paused, err := s.settings.Paused()
	if err != nil {
		return 0, fmt.Errorf("failed to read pause flag: %w", err)
	}
	if paused {
		return 0, domain.ErrPaused
	}

	now := s.clock.Now()

	var sharesToMint int64
	err = database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		pool, err := s.pools.GetByIDTx(tx, poolID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPoolNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load pool: %w", err)
		}
		if !pool.Active {
			return domain.ErrPaused
		}

		pos, err := s.positions.GetTx(tx, account, poolID)
		if errors.Is(err, sql.ErrNoRows) {
			pos = Position{Account: account, PoolID: poolID, DepositTime: now}
		} else if err != nil {
			return fmt.Errorf("failed to load position: %w", err)
		}

		pool, pos, _, err = Settle(pool, pos, now)
		if err != nil {
			return err
		}

		if pool.TotalShares == 0 {
			sharesToMint = amount
		} else {
			sharesToMint, err = safemath.MulDiv(amount, pool.TotalShares, pool.TotalDeposited)
			if err != nil {
				return fmt.Errorf("failed to compute shares to mint: %w", err)
			}
		}

		// Custody transfer runs inside the transaction scope: a failure
		// rolls the whole deposit back.
		if err := s.transfers.Transfer(amount, account, EscrowAccount, fmt.Sprintf("deposit pool %d", poolID)); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
		}

		pool.TotalDeposited, err = safemath.Add(pool.TotalDeposited, amount)
		if err != nil {
			return fmt.Errorf("failed to increase total deposited: %w", err)
		}
		pool.TotalShares, err = safemath.Add(pool.TotalShares, sharesToMint)
		if err != nil {
			return fmt.Errorf("failed to increase total shares: %w", err)
		}
		pos.SharesOwned, err = safemath.Add(pos.SharesOwned, sharesToMint)
		if err != nil {
			return fmt.Errorf("failed to increase shares owned: %w", err)
		}

		if err := s.pools.UpdateAccounting(tx, pool); err != nil {
			return err
		}
		return s.positions.Upsert(tx, pos)
	})
	if err != nil {
		return 0, err
	}

	s.recorder.Record(events.Event{
		Operation:   events.Deposited,
		Actor:       account,
		PoolID:      poolID,
		Amount:      amount,
		Shares:      sharesToMint,
		LogicalTime: now,
	})
	s.log.Info().
		Str("account", account).
		Int64("pool_id", poolID).
		Int64("amount", amount).
		Int64("shares_minted", sharesToMint).
		Msg("Deposit completed")

	return sharesToMint, nil
}

// Withdraw burns shares and pays out the proportional principal. On a full
// exit the settled pending reward is paid out too and the position row is
// deleted; zero-value positions are never left behind.
func (s *Service) Withdraw(account string, poolID int64, sharesToBurn int64) (int64, error) {
	if sharesToBurn <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	now := s.clock.Now()

	var payout int64
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		pool, err := s.pools.GetByIDTx(tx, poolID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPoolNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load pool: %w", err)
		}

		pos, err := s.positions.GetTx(tx, account, poolID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrInsufficientShares
		}
		if err != nil {
			return fmt.Errorf("failed to load position: %w", err)
		}
		if sharesToBurn > pos.SharesOwned {
			return domain.ErrInsufficientShares
		}

		pool, pos, _, err = Settle(pool, pos, now)
		if err != nil {
			return err
		}

		withdrawal, err := safemath.MulDiv(sharesToBurn, pool.TotalDeposited, pool.TotalShares)
		if err != nil {
			return fmt.Errorf("failed to compute withdrawal amount: %w", err)
		}

		pool.TotalDeposited, err = safemath.Sub(pool.TotalDeposited, withdrawal)
		if err != nil {
			return fmt.Errorf("failed to decrease total deposited: %w", err)
		}
		pool.TotalShares, err = safemath.Sub(pool.TotalShares, sharesToBurn)
		if err != nil {
			return fmt.Errorf("failed to decrease total shares: %w", err)
		}
		pos.SharesOwned, err = safemath.Sub(pos.SharesOwned, sharesToBurn)
		if err != nil {
			return fmt.Errorf("failed to decrease shares owned: %w", err)
		}

		payout = withdrawal
		fullExit := pos.SharesOwned == 0
		if fullExit && pos.PendingReward > 0 {
			// Pay out pending reward with the final withdrawal so deleting
			// the position never discards settled rewards.
			payout, err = safemath.Add(payout, pos.PendingReward)
			if err != nil {
				return fmt.Errorf("failed to add pending reward to payout: %w", err)
			}
			pos.CumulativeClaimed, err = safemath.Add(pos.CumulativeClaimed, pos.PendingReward)
			if err != nil {
				return fmt.Errorf("failed to update cumulative claimed: %w", err)
			}
			pos.PendingReward = 0
		}

		if payout > 0 {
			if err := s.transfers.Transfer(payout, EscrowAccount, account, fmt.Sprintf("withdraw pool %d", poolID)); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
			}
		}

		if err := s.pools.UpdateAccounting(tx, pool); err != nil {
			return err
		}
		if fullExit {
			return s.positions.Delete(tx, account, poolID)
		}
		return s.positions.Upsert(tx, pos)
	})
	if err != nil {
		return 0, err
	}

	s.recorder.Record(events.Event{
		Operation:   events.Withdrawn,
		Actor:       account,
		PoolID:      poolID,
		Amount:      payout,
		Shares:      sharesToBurn,
		LogicalTime: now,
	})
	s.log.Info().
		Str("account", account).
		Int64("pool_id", poolID).
		Int64("shares_burned", sharesToBurn).
		Int64("payout", payout).
		Msg("Withdrawal completed")

	return payout, nil
}

// Claim settles and pays out the account's pending reward for a pool
func (s *Service) Claim(account string, poolID int64) (int64, error) {
	now := s.clock.Now()

	var claimed int64
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		pool, err := s.pools.GetByIDTx(tx, poolID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPoolNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load pool: %w", err)
		}

		pos, err := s.positions.GetTx(tx, account, poolID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNoRewards
		}
		if err != nil {
			return fmt.Errorf("failed to load position: %w", err)
		}

		pool, pos, _, err = Settle(pool, pos, now)
		if err != nil {
			return err
		}

		if pos.PendingReward == 0 {
			return domain.ErrNoRewards
		}

		claimed = pos.PendingReward
		pos.CumulativeClaimed, err = safemath.Add(pos.CumulativeClaimed, claimed)
		if err != nil {
			return fmt.Errorf("failed to update cumulative claimed: %w", err)
		}
		pos.PendingReward = 0

		if err := s.transfers.Transfer(claimed, EscrowAccount, account, fmt.Sprintf("claim pool %d", poolID)); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
		}

		if err := s.pools.UpdateAccounting(tx, pool); err != nil {
			return err
		}
		return s.positions.Upsert(tx, pos)
	})
	if err != nil {
		return 0, err
	}

	s.recorder.Record(events.Event{
		Operation:   events.RewardsClaimed,
		Actor:       account,
		PoolID:      poolID,
		Amount:      claimed,
		LogicalTime: now,
	})
	s.log.Info().
		Str("account", account).
		Int64("pool_id", poolID).
		Int64("claimed", claimed).
		Msg("Rewards claimed")

	return claimed, nil
}

// SetPoolActive flips a pool's active flag. Owner-only. Pools are never
// deleted, only deactivated.
func (s *Service) SetPoolActive(caller string, poolID int64, active bool) error {
	isOwner, err := s.auth.IsOwner(caller)
	if err != nil {
		return fmt.Errorf("failed to check ownership: %w", err)
	}
	if !isOwner {
		return domain.ErrUnauthorized
	}

	if err := s.pools.SetActive(poolID, active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPoolNotFound
		}
		return err
	}

	op := events.PoolDeactivated
	if active {
		op = events.PoolActivated
	}
	s.recorder.Record(events.Event{
		Operation:   op,
		Actor:       caller,
		PoolID:      poolID,
		LogicalTime: s.clock.Now(),
	})
	return nil
}

// SetRewardRate changes a pool's reward rate. Owner-only. The pool's
// accumulator is settled at the old rate first so the change applies only
// from now on, never retroactively.
func (s *Service) SetRewardRate(caller string, poolID int64, rate int64) error {
	isOwner, err := s.auth.IsOwner(caller)
	if err != nil {
		return fmt.Errorf("failed to check ownership: %w", err)
	}
	if !isOwner {
		return domain.ErrUnauthorized
	}
	if rate < 0 {
		return domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	err = database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		pool, err := s.pools.GetByIDTx(tx, poolID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPoolNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load pool: %w", err)
		}

		pool, _, _, err = Settle(pool, Position{}, now)
		if err != nil {
			return err
		}
		if err := s.pools.UpdateAccounting(tx, pool); err != nil {
			return err
		}

		_, err = tx.Exec("UPDATE pools SET reward_rate = ? WHERE id = ?", rate, poolID)
		if err != nil {
			return fmt.Errorf("failed to set reward rate: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recorder.Record(events.Event{
		Operation:   events.SettingChanged,
		Actor:       caller,
		PoolID:      poolID,
		LogicalTime: now,
		Details:     map[string]interface{}{"setting": "reward_rate", "value": rate},
	})
	return nil
}

// FundTx increases a pool's principal inside an enclosing transaction.
// Used by the rebalancing controller to move aggregate holdings; shares are
// untouched, so existing holders' share price rises.
func (s *Service) FundTx(tx *sql.Tx, poolID int64, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}

	pool, err := s.pools.GetByIDTx(tx, poolID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrPoolNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load pool: %w", err)
	}

	pool.TotalDeposited, err = safemath.Add(pool.TotalDeposited, amount)
	if err != nil {
		return fmt.Errorf("failed to increase total deposited: %w", err)
	}
	return s.pools.UpdateAccounting(tx, pool)
}

// DrainTx decreases a pool's principal inside an enclosing transaction.
// Fails with ErrInsufficientBalance rather than driving the total negative.
func (s *Service) DrainTx(tx *sql.Tx, poolID int64, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}

	pool, err := s.pools.GetByIDTx(tx, poolID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrPoolNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load pool: %w", err)
	}

	if amount > pool.TotalDeposited {
		return domain.ErrInsufficientBalance
	}
	pool.TotalDeposited, err = safemath.Sub(pool.TotalDeposited, amount)
	if err != nil {
		return fmt.Errorf("failed to decrease total deposited: %w", err)
	}
	return s.pools.UpdateAccounting(tx, pool)
}

// DB exposes the engine database handle for callers that need to compose
// multi-pool mutations (the rebalancing controller's fold-abort pass)
func (s *Service) DB() *database.DB {
	return s.db
}
