package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebymuri/DeFiYield/internal/database"
	"github.com/codebymuri/DeFiYield/pkg/logger"
)

func setupRepo(t *testing.T) *Repository {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	db, err := database.New(database.Config{Path: ":memory:", Name: "engine"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	return NewRepository(db.Conn(), log)
}

func TestGrantAndCheckRoles(t *testing.T) {
	repo := setupRepo(t)

	require.NoError(t, repo.Grant("alice", RoleOwner, 100))
	require.NoError(t, repo.Grant("bob", RoleAgent, 100))
	require.NoError(t, repo.Grant("carol", RoleOracle, 100))

	isOwner, err := repo.IsOwner("alice")
	require.NoError(t, err)
	assert.True(t, isOwner)

	isOwner, err = repo.IsOwner("bob")
	require.NoError(t, err)
	assert.False(t, isOwner)

	isAgent, err := repo.IsAuthorizedAgent("bob")
	require.NoError(t, err)
	assert.True(t, isAgent)

	isOracle, err := repo.IsAuthorizedOracle("carol")
	require.NoError(t, err)
	assert.True(t, isOracle)

	// unknown account has no roles
	isOracle, err = repo.IsAuthorizedOracle("nobody")
	require.NoError(t, err)
	assert.False(t, isOracle)
}

func TestGrantIsIdempotent(t *testing.T) {
	repo := setupRepo(t)

	require.NoError(t, repo.Grant("alice", RoleAgent, 100))
	require.NoError(t, repo.Grant("alice", RoleAgent, 200))

	isAgent, err := repo.IsAuthorizedAgent("alice")
	require.NoError(t, err)
	assert.True(t, isAgent)
}

func TestRevoke(t *testing.T) {
	repo := setupRepo(t)

	require.NoError(t, repo.Grant("alice", RoleAgent, 100))
	require.NoError(t, repo.Revoke("alice", RoleAgent))

	isAgent, err := repo.IsAuthorizedAgent("alice")
	require.NoError(t, err)
	assert.False(t, isAgent)

	// revoking an absent grant is not an error
	require.NoError(t, repo.Revoke("alice", RoleAgent))
}

func TestRolesAreIndependent(t *testing.T) {
	repo := setupRepo(t)

	require.NoError(t, repo.Grant("alice", RoleOwner, 100))
	require.NoError(t, repo.Grant("alice", RoleOracle, 100))
	require.NoError(t, repo.Revoke("alice", RoleOracle))

	isOwner, err := repo.IsOwner("alice")
	require.NoError(t, err)
	assert.True(t, isOwner)

	isOracle, err := repo.IsAuthorizedOracle("alice")
	require.NoError(t, err)
	assert.False(t, isOracle)
}
