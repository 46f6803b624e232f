// Package settings provides the runtime configuration surface of the engine.
// Settings are key-value pairs stored in engine.db and changed only through
// owner-gated administrative operations (pause flag, rebalance cooldown,
// drift threshold, strategy selection, reward rates defaults, slippage).
// The core reads the resulting values; it never mutates them itself.
package settings

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// Well-known setting keys
const (
	KeyPaused            = "engine_paused"
	KeyCooldownSeconds   = "rebalance_cooldown_seconds"
	KeyDriftThresholdBps = "drift_threshold_bps"
	KeyStrategy          = "rebalance_strategy"
	KeyMaxSlippageBps    = "max_slippage_bps"
	KeyLastRebalanceTime = "last_rebalance_time"
)

// SettingDefaults holds the default value for every tunable setting.
// A key absent from the settings table resolves to its default.
var SettingDefaults = map[string]string{
	KeyPaused:            "false",
	KeyCooldownSeconds:   "3600",
	KeyDriftThresholdBps: "200",
	KeyStrategy:          "moderate",
	KeyMaxSlippageBps:    "50",
	KeyLastRebalanceTime: "0",
}

// Repository handles settings database operations.
// Settings are stored as strings and converted to appropriate types when
// retrieved. Database: engine.db (settings table).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new settings repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "settings").Logger(),
	}
}

// Get retrieves a setting value by key.
// Returns nil if the setting doesn't exist (not an error).
func (r *Repository) Get(key string) (*string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return &value, nil
}

// Set upserts a setting value, stamping it with the given logical time
func (r *Repository) Set(key, value string, now int64) error {
	_, err := r.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetAll retrieves the effective value of every setting: stored values
// overlaid on the defaults
func (r *Repository) GetAll() (map[string]string, error) {
	rows, err := r.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get all settings: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string, len(SettingDefaults))
	for key, value := range SettingDefaults {
		result[key] = value
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan setting row")
			continue
		}
		result[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return result, nil
}

// getWithDefault resolves key to its stored value, falling back to
// SettingDefaults when absent
func (r *Repository) getWithDefault(key string) (string, error) {
	value, err := r.Get(key)
	if err != nil {
		return "", err
	}
	if value == nil {
		return SettingDefaults[key], nil
	}
	return *value, nil
}

// GetInt64 retrieves a setting as int64, returning defaultValue when the
// setting is absent or unparseable (parse failures are logged, not returned)
func (r *Repository) GetInt64(key string, defaultValue int64) (int64, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}

	intVal, err := strconv.ParseInt(*value, 10, 64)
	if err != nil {
		r.log.Warn().
			Err(err).
			Str("key", key).
			Str("value", *value).
			Msg("Failed to parse integer setting")
		return defaultValue, nil
	}

	return intVal, nil
}

// GetBool retrieves a setting as bool, returning defaultValue when absent
func (r *Repository) GetBool(key string, defaultValue bool) (bool, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}

	switch *value {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		r.log.Warn().Str("key", key).Str("value", *value).Msg("Failed to parse boolean setting")
		return defaultValue, nil
	}
}

// Paused reports whether the engine-wide pause flag is set
func (r *Repository) Paused() (bool, error) {
	return r.GetBool(KeyPaused, false)
}

// CooldownSeconds returns the minimum logical-time interval between
// successive rebalance executions
func (r *Repository) CooldownSeconds() (int64, error) {
	return r.GetInt64(KeyCooldownSeconds, 3600)
}

// DriftThresholdBps returns the aggregate drift threshold in basis points
func (r *Repository) DriftThresholdBps() (int64, error) {
	return r.GetInt64(KeyDriftThresholdBps, 200)
}

// MaxSlippageBps returns the configured slippage ceiling in basis points
func (r *Repository) MaxSlippageBps() (int64, error) {
	return r.GetInt64(KeyMaxSlippageBps, 50)
}

// Strategy returns the active rebalancing strategy name
func (r *Repository) Strategy() (string, error) {
	return r.getWithDefault(KeyStrategy)
}

// LastRebalanceTime returns the logical time of the last successful rebalance
func (r *Repository) LastRebalanceTime() (int64, error) {
	return r.GetInt64(KeyLastRebalanceTime, 0)
}

// SetLastRebalanceTime stamps the last successful rebalance time
func (r *Repository) SetLastRebalanceTime(ts, now int64) error {
	return r.Set(KeyLastRebalanceTime, strconv.FormatInt(ts, 10), now)
}
