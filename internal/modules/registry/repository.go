// Package registry provides the authorization registry: which accounts are
// the engine owner, authorized rebalancing agents, or allow-listed oracles.
// Privileged operations consult these lookups at entry.
package registry

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Role names stored in the accounts table
const (
	RoleOwner  = "owner"
	RoleAgent  = "agent"
	RoleOracle = "oracle"
)

// Repository handles authorization account lookups.
// Database: engine.db (accounts table).
// Implements domain.AuthRegistry.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new authorization registry repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "registry").Logger(),
	}
}

func (r *Repository) hasRole(account, role string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM accounts WHERE account = ? AND role = ?",
		account, role,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up role %s for account: %w", role, err)
	}
	return count > 0, nil
}

// IsOwner reports whether the account is the designated engine owner
func (r *Repository) IsOwner(account string) (bool, error) {
	return r.hasRole(account, RoleOwner)
}

// IsAuthorizedAgent reports whether the account may trigger rebalancing
func (r *Repository) IsAuthorizedAgent(account string) (bool, error) {
	return r.hasRole(account, RoleAgent)
}

// IsAuthorizedOracle reports whether the account may submit allocation
// recommendations
func (r *Repository) IsAuthorizedOracle(account string) (bool, error) {
	return r.hasRole(account, RoleOracle)
}

// Grant adds a role to an account. Idempotent.
func (r *Repository) Grant(account, role string, now int64) error {
	_, err := r.db.Exec(`
		INSERT INTO accounts (account, role, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT(account, role) DO NOTHING
	`, account, role, now)
	if err != nil {
		return fmt.Errorf("failed to grant role %s: %w", role, err)
	}
	return nil
}

// Revoke removes a role from an account. Revoking a role the account does not
// hold is not an error.
func (r *Repository) Revoke(account, role string) error {
	_, err := r.db.Exec("DELETE FROM accounts WHERE account = ? AND role = ?", account, role)
	if err != nil {
		return fmt.Errorf("failed to revoke role %s: %w", role, err)
	}
	return nil
}
