package vault

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// PositionRepository handles account position database operations.
// Positions are keyed by account x pool; a position is created on first
// deposit and deleted when its shares reach zero.
// Database: engine.db (positions table).
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repository", "position").Logger(),
	}
}

const positionColumns = `account, pool_id, shares_owned, accumulator_settled_at,
	pending_reward, deposit_time, cumulative_claimed`

func scanPosition(row interface{ Scan(...interface{}) error }) (Position, error) {
	var p Position
	err := row.Scan(
		&p.Account,
		&p.PoolID,
		&p.SharesOwned,
		&p.AccumulatorSettledAt,
		&p.PendingReward,
		&p.DepositTime,
		&p.CumulativeClaimed,
	)
	return p, err
}

// Get returns the position for account x pool, or sql.ErrNoRows
func (r *PositionRepository) Get(account string, poolID int64) (Position, error) {
	row := r.db.QueryRow(
		"SELECT "+positionColumns+" FROM positions WHERE account = ? AND pool_id = ?",
		account, poolID,
	)
	return scanPosition(row)
}

// GetTx returns the position for account x pool inside a transaction
func (r *PositionRepository) GetTx(tx *sql.Tx, account string, poolID int64) (Position, error) {
	row := tx.QueryRow(
		"SELECT "+positionColumns+" FROM positions WHERE account = ? AND pool_id = ?",
		account, poolID,
	)
	return scanPosition(row)
}

// GetByAccount returns all of an account's positions in pool order
func (r *PositionRepository) GetByAccount(account string) ([]Position, error) {
	rows, err := r.db.Query(
		"SELECT "+positionColumns+" FROM positions WHERE account = ? ORDER BY pool_id",
		account,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// Upsert inserts or replaces the position row
func (r *PositionRepository) Upsert(tx *sql.Tx, p Position) error {
	_, err := tx.Exec(`
		INSERT INTO positions (account, pool_id, shares_owned, accumulator_settled_at,
			pending_reward, deposit_time, cumulative_claimed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account, pool_id) DO UPDATE SET
			shares_owned = excluded.shares_owned,
			accumulator_settled_at = excluded.accumulator_settled_at,
			pending_reward = excluded.pending_reward,
			deposit_time = excluded.deposit_time,
			cumulative_claimed = excluded.cumulative_claimed
	`, p.Account, p.PoolID, p.SharesOwned, p.AccumulatorSettledAt,
		p.PendingReward, p.DepositTime, p.CumulativeClaimed)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}

// Delete removes the position row entirely. Used when shares reach zero;
// zero-value rows are never left behind.
func (r *PositionRepository) Delete(tx *sql.Tx, account string, poolID int64) error {
	_, err := tx.Exec("DELETE FROM positions WHERE account = ? AND pool_id = ?", account, poolID)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// SumShares returns the sum of all accounts' shares for a pool. Used by
// consistency checks: the sum must equal the pool's total_shares at all times.
func (r *PositionRepository) SumShares(poolID int64) (int64, error) {
	var sum sql.NullInt64
	err := r.db.QueryRow(
		"SELECT SUM(shares_owned) FROM positions WHERE pool_id = ?", poolID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum shares: %w", err)
	}
	if !sum.Valid {
		return 0, nil
	}
	return sum.Int64, nil
}
