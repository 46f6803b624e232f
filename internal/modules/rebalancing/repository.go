package rebalancing

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// Repository handles allocation target and oracle advisory persistence.
// Databases: engine.db (allocation_targets, oracle_recommendations).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new rebalancing repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "rebalancing").Logger(),
	}
}

// GetTargets returns all allocation targets keyed by pool id
func (r *Repository) GetTargets() (map[int64]AllocationTarget, error) {
	rows, err := r.db.Query(`
		SELECT pool_id, target_bps, min_bps, max_bps, last_rebalance_time
		FROM allocation_targets ORDER BY pool_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation targets: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]AllocationTarget)
	for rows.Next() {
		var t AllocationTarget
		if err := rows.Scan(&t.PoolID, &t.TargetBps, &t.MinBps, &t.MaxBps, &t.LastRebalanceTime); err != nil {
			return nil, fmt.Errorf("failed to scan allocation target: %w", err)
		}
		result[t.PoolID] = t
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocation targets: %w", err)
	}

	return result, nil
}

// SetTarget upserts one pool's allocation target
func (r *Repository) SetTarget(t AllocationTarget, now int64) error {
	_, err := r.db.Exec(`
		INSERT INTO allocation_targets (pool_id, target_bps, min_bps, max_bps, last_rebalance_time, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pool_id) DO UPDATE SET
			target_bps = excluded.target_bps,
			min_bps = excluded.min_bps,
			max_bps = excluded.max_bps,
			updated_at = excluded.updated_at
	`, t.PoolID, t.TargetBps, t.MinBps, t.MaxBps, t.LastRebalanceTime, now)
	if err != nil {
		return fmt.Errorf("failed to set allocation target: %w", err)
	}
	return nil
}

// StampRebalanceTimes records the execution time on every touched target
func (r *Repository) StampRebalanceTimes(tx *sql.Tx, poolIDs []int64, now int64) error {
	for _, id := range poolIDs {
		if _, err := tx.Exec(
			"UPDATE allocation_targets SET last_rebalance_time = ? WHERE pool_id = ?", now, id,
		); err != nil {
			return fmt.Errorf("failed to stamp rebalance time for pool %d: %w", id, err)
		}
	}
	return nil
}

// AddRecommendation stores one oracle advisory
func (r *Repository) AddRecommendation(rec OracleRecommendation) (int64, error) {
	// Allocations are stored as a JSON object keyed by pool id
	encoded := make(map[string]int64, len(rec.Allocations))
	for poolID, bps := range rec.Allocations {
		encoded[strconv.FormatInt(poolID, 10)] = bps
	}
	raw, err := json.Marshal(encoded)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal allocations: %w", err)
	}

	res, err := r.db.Exec(`
		INSERT INTO oracle_recommendations (oracle, allocations, confidence_bps, rationale, submitted_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.Oracle, string(raw), rec.ConfidenceBps, rec.Rationale, rec.SubmittedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert oracle recommendation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get recommendation id: %w", err)
	}
	return id, nil
}

// PruneRecommendations deletes advisories submitted before the cutoff. The
// most recent advisory always survives so the AI-driven strategy never loses
// its input, no matter how stale.
func (r *Repository) PruneRecommendations(before int64) (int64, error) {
	res, err := r.db.Exec(`
		DELETE FROM oracle_recommendations
		WHERE submitted_at < ?
		AND id NOT IN (
			SELECT id FROM oracle_recommendations
			ORDER BY submitted_at DESC, id DESC LIMIT 1
		)`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune oracle recommendations: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned recommendations: %w", err)
	}
	return deleted, nil
}

// LatestRecommendation returns the most recently submitted advisory, or nil
// when none exists
func (r *Repository) LatestRecommendation() (*OracleRecommendation, error) {
	row := r.db.QueryRow(`
		SELECT id, oracle, allocations, confidence_bps, rationale, submitted_at
		FROM oracle_recommendations ORDER BY submitted_at DESC, id DESC LIMIT 1`)

	var rec OracleRecommendation
	var raw string
	err := row.Scan(&rec.ID, &rec.Oracle, &raw, &rec.ConfidenceBps, &rec.Rationale, &rec.SubmittedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan oracle recommendation: %w", err)
	}

	encoded := make(map[string]int64)
	if err := json.Unmarshal([]byte(raw), &encoded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allocations: %w", err)
	}
	rec.Allocations = make(map[int64]int64, len(encoded))
	for key, bps := range encoded {
		poolID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid pool id %q in stored allocations: %w", key, err)
		}
		rec.Allocations[poolID] = bps
	}

	return &rec, nil
}

// HistoryRepository appends and reads immutable rebalance records.
// Database: ledger.db (rebalance_history table, append-only).
type HistoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryRepository creates a new rebalance history repository
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log.With().Str("repository", "rebalance_history").Logger(),
	}
}

// Append writes one record. Records are write-once: there is no update or
// delete path.
func (r *HistoryRepository) Append(rec RebalanceRecord) error {
	raw, err := json.Marshal(rec.PoolsTouched)
	if err != nil {
		return fmt.Errorf("failed to marshal pools touched: %w", err)
	}

	emergency := 0
	if rec.Emergency {
		emergency = 1
	}

	_, err = r.db.Exec(`
		INSERT INTO rebalance_history (uuid, executed_at, strategy, amount_moved, pools_touched, emergency)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.UUID, rec.ExecutedAt, string(rec.Strategy), rec.AmountMoved, string(raw), emergency,
	)
	if err != nil {
		return fmt.Errorf("failed to append rebalance record: %w", err)
	}
	return nil
}

// Recent returns the most recent records, newest first
func (r *HistoryRepository) Recent(limit int) ([]RebalanceRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT uuid, executed_at, strategy, amount_moved, pools_touched, emergency
		FROM rebalance_history ORDER BY executed_at DESC, uuid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalance history: %w", err)
	}
	defer rows.Close()

	var result []RebalanceRecord
	for rows.Next() {
		var rec RebalanceRecord
		var strategy, raw string
		var emergency int
		if err := rows.Scan(&rec.UUID, &rec.ExecutedAt, &strategy, &rec.AmountMoved, &raw, &emergency); err != nil {
			return nil, fmt.Errorf("failed to scan rebalance record: %w", err)
		}
		rec.Strategy = Strategy(strategy)
		rec.Emergency = emergency != 0
		if err := json.Unmarshal([]byte(raw), &rec.PoolsTouched); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pools touched: %w", err)
		}
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rebalance history: %w", err)
	}

	return result, nil
}
