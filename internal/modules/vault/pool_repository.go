package vault

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// PoolRepository handles pool database operations. Pool creation also serves
// as the enumerable registry: GetAll returns pools in id order, which is the
// iteration order the rebalancing controller relies on.
// Database: engine.db (pools table).
type PoolRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPoolRepository creates a new pool repository
func NewPoolRepository(db *sql.DB, log zerolog.Logger) *PoolRepository {
	return &PoolRepository{
		db:  db,
		log: log.With().Str("repository", "pool").Logger(),
	}
}

const poolColumns = `id, asset_ref, total_deposited, total_shares, reward_rate,
	reward_accumulator, last_update_time, active, created_at`

func scanPool(row interface{ Scan(...interface{}) error }) (Pool, error) {
	var p Pool
	var active int
	err := row.Scan(
		&p.ID,
		&p.AssetRef,
		&p.TotalDeposited,
		&p.TotalShares,
		&p.RewardRate,
		&p.RewardAccumulator,
		&p.LastUpdateTime,
		&active,
		&p.CreatedAt,
	)
	if err != nil {
		return Pool{}, err
	}
	p.Active = active != 0
	return p, nil
}

// Create inserts a new pool and returns it with its assigned id
func (r *PoolRepository) Create(tx *sql.Tx, cfg PoolConfig, now int64) (Pool, error) {
	res, err := tx.Exec(`
		INSERT INTO pools (asset_ref, total_deposited, total_shares, reward_rate,
			reward_accumulator, last_update_time, active, created_at)
		VALUES (?, 0, 0, ?, 0, ?, 1, ?)`,
		cfg.AssetRef, cfg.RewardRate, now, now,
	)
	if err != nil {
		return Pool{}, fmt.Errorf("failed to insert pool: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Pool{}, fmt.Errorf("failed to get pool id: %w", err)
	}

	return Pool{
		ID:             id,
		AssetRef:       cfg.AssetRef,
		RewardRate:     cfg.RewardRate,
		LastUpdateTime: now,
		Active:         true,
		CreatedAt:      now,
	}, nil
}

// GetByID returns the pool with the given id, or sql.ErrNoRows
func (r *PoolRepository) GetByID(id int64) (Pool, error) {
	row := r.db.QueryRow("SELECT "+poolColumns+" FROM pools WHERE id = ?", id)
	return scanPool(row)
}

// GetByIDTx returns the pool with the given id inside a transaction
func (r *PoolRepository) GetByIDTx(tx *sql.Tx, id int64) (Pool, error) {
	row := tx.QueryRow("SELECT "+poolColumns+" FROM pools WHERE id = ?", id)
	return scanPool(row)
}

// ExistsByAsset reports whether a pool is already registered for the asset
func (r *PoolRepository) ExistsByAsset(tx *sql.Tx, assetRef string) (bool, error) {
	var count int
	err := tx.QueryRow("SELECT COUNT(*) FROM pools WHERE asset_ref = ?", assetRef).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check pool existence: %w", err)
	}
	return count > 0, nil
}

// GetAll returns all pools in registration (id) order
func (r *PoolRepository) GetAll() ([]Pool, error) {
	rows, err := r.db.Query("SELECT " + poolColumns + " FROM pools ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query pools: %w", err)
	}
	defer rows.Close()

	var pools []Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pool: %w", err)
		}
		pools = append(pools, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pools: %w", err)
	}

	return pools, nil
}

// GetAllTx returns all pools in registration order inside a transaction
func (r *PoolRepository) GetAllTx(tx *sql.Tx) ([]Pool, error) {
	rows, err := tx.Query("SELECT " + poolColumns + " FROM pools ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query pools: %w", err)
	}
	defer rows.Close()

	var pools []Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pool: %w", err)
		}
		pools = append(pools, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pools: %w", err)
	}

	return pools, nil
}

// UpdateAccounting persists the mutable accounting fields of a pool
func (r *PoolRepository) UpdateAccounting(tx *sql.Tx, p Pool) error {
	_, err := tx.Exec(`
		UPDATE pools SET total_deposited = ?, total_shares = ?,
			reward_accumulator = ?, last_update_time = ?
		WHERE id = ?`,
		p.TotalDeposited, p.TotalShares, p.RewardAccumulator, p.LastUpdateTime, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update pool accounting: %w", err)
	}
	return nil
}

// SetActive flips the pool's active flag. Pools are never deleted.
func (r *PoolRepository) SetActive(id int64, active bool) error {
	flag := 0
	if active {
		flag = 1
	}
	res, err := r.db.Exec("UPDATE pools SET active = ? WHERE id = ?", flag, id)
	if err != nil {
		return fmt.Errorf("failed to set pool active flag: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetRewardRate updates the pool's reward rate (administrative setter)
func (r *PoolRepository) SetRewardRate(id int64, rate int64) error {
	res, err := r.db.Exec("UPDATE pools SET reward_rate = ? WHERE id = ?", rate, id)
	if err != nil {
		return fmt.Errorf("failed to set reward rate: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
