// Package events provides the structured operation event log. Every
// state-changing engine operation emits one event record for external
// indexing; events are a side effect with no return-value coupling and are
// never read back by the engine itself.
package events

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType identifies the operation that produced an event
type EventType string

const (
	PoolCreated         EventType = "pool_created"
	PoolDeactivated     EventType = "pool_deactivated"
	PoolActivated       EventType = "pool_activated"
	Deposited           EventType = "deposited"
	Withdrawn           EventType = "withdrawn"
	RewardsClaimed      EventType = "rewards_claimed"
	RebalanceExecuted   EventType = "rebalance_executed"
	EmergencyRebalance  EventType = "emergency_rebalance"
	OracleAdvisoryAdded EventType = "oracle_advisory_added"
	SettingChanged      EventType = "setting_changed"
)

// Event is a single structured event record
type Event struct {
	UUID        string                 `json:"uuid"`
	Operation   EventType              `json:"operation"`
	Actor       string                 `json:"actor"`
	PoolID      int64                  `json:"pool_id,omitempty"`
	Amount      int64                  `json:"amount,omitempty"`
	Shares      int64                  `json:"shares,omitempty"`
	LogicalTime int64                  `json:"logical_time"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// Recorder appends event records to the ledger database.
// Database: ledger.db (events table).
type Recorder struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRecorder creates a new event recorder
func NewRecorder(db *sql.DB, log zerolog.Logger) *Recorder {
	return &Recorder{
		db:  db,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Record appends one event. A failed append is logged and swallowed: the
// event log is observability, not engine state, and must never fail an
// already-committed operation.
func (r *Recorder) Record(ev Event) {
	if ev.UUID == "" {
		ev.UUID = uuid.New().String()
	}

	details := ""
	if len(ev.Details) > 0 {
		raw, err := json.Marshal(ev.Details)
		if err != nil {
			r.log.Warn().Err(err).Str("operation", string(ev.Operation)).Msg("Failed to marshal event details")
		} else {
			details = string(raw)
		}
	}

	_, err := r.db.Exec(`
		INSERT INTO events (uuid, operation, actor, pool_id, amount, shares, logical_time, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.UUID, string(ev.Operation), ev.Actor, ev.PoolID, ev.Amount, ev.Shares, ev.LogicalTime, details,
	)
	if err != nil {
		r.log.Error().Err(err).Str("operation", string(ev.Operation)).Msg("Failed to record event")
		return
	}

	r.log.Debug().
		Str("operation", string(ev.Operation)).
		Str("actor", ev.Actor).
		Int64("pool_id", ev.PoolID).
		Int64("amount", ev.Amount).
		Msg("Recorded event")
}

// Recent returns the most recent events, newest first
func (r *Recorder) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT uuid, operation, actor, pool_id, amount, shares, logical_time, details
		FROM events ORDER BY logical_time DESC, uuid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var ev Event
		var op, details string
		if err := rows.Scan(&ev.UUID, &op, &ev.Actor, &ev.PoolID, &ev.Amount, &ev.Shares, &ev.LogicalTime, &details); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Operation = EventType(op)
		if details != "" {
			_ = json.Unmarshal([]byte(details), &ev.Details)
		}
		result = append(result, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return result, nil
}
