package database

// schemas maps database names to their on-disk schema. The engine uses a
// two-database architecture:
//   - engine.db: mutable accounting state (pools, positions, allocation
//     targets, oracle advisories, settings, authorization accounts)
//   - ledger.db: immutable audit trail (rebalance history, event log),
//     opened with the ledger profile (synchronous=FULL, append-only)
var schemas = map[string]string{
	"engine": engineSchema,
	"ledger": ledgerSchema,
}

const engineSchema = `
CREATE TABLE IF NOT EXISTS pools (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	asset_ref TEXT NOT NULL UNIQUE,
	total_deposited INTEGER NOT NULL DEFAULT 0 CHECK (total_deposited >= 0),
	total_shares INTEGER NOT NULL DEFAULT 0 CHECK (total_shares >= 0),
	reward_rate INTEGER NOT NULL DEFAULT 0 CHECK (reward_rate >= 0),
	reward_accumulator INTEGER NOT NULL DEFAULT 0 CHECK (reward_accumulator >= 0),
	last_update_time INTEGER NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
) STRICT;

CREATE TABLE IF NOT EXISTS positions (
	account TEXT NOT NULL,
	pool_id INTEGER NOT NULL REFERENCES pools(id),
	shares_owned INTEGER NOT NULL CHECK (shares_owned >= 0),
	accumulator_settled_at INTEGER NOT NULL DEFAULT 0,
	pending_reward INTEGER NOT NULL DEFAULT 0 CHECK (pending_reward >= 0),
	deposit_time INTEGER NOT NULL,
	cumulative_claimed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (account, pool_id)
) STRICT;

CREATE INDEX IF NOT EXISTS idx_positions_pool ON positions(pool_id);

CREATE TABLE IF NOT EXISTS allocation_targets (
	pool_id INTEGER PRIMARY KEY REFERENCES pools(id),
	target_bps INTEGER NOT NULL CHECK (target_bps >= 0 AND target_bps <= 10000),
	min_bps INTEGER NOT NULL DEFAULT 0 CHECK (min_bps >= 0),
	max_bps INTEGER NOT NULL DEFAULT 10000 CHECK (max_bps <= 10000),
	last_rebalance_time INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
) STRICT;

CREATE TABLE IF NOT EXISTS oracle_recommendations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	oracle TEXT NOT NULL,
	allocations TEXT NOT NULL,
	confidence_bps INTEGER NOT NULL CHECK (confidence_bps >= 0 AND confidence_bps <= 10000),
	rationale TEXT NOT NULL DEFAULT '',
	submitted_at INTEGER NOT NULL
) STRICT;

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
) STRICT;

CREATE TABLE IF NOT EXISTS accounts (
	account TEXT NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('owner', 'agent', 'oracle')),
	added_at INTEGER NOT NULL,
	PRIMARY KEY (account, role)
) STRICT;
`

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS rebalance_history (
	uuid TEXT PRIMARY KEY,
	executed_at INTEGER NOT NULL,
	strategy TEXT NOT NULL,
	amount_moved INTEGER NOT NULL CHECK (amount_moved >= 0),
	pools_touched TEXT NOT NULL,
	emergency INTEGER NOT NULL DEFAULT 0
) STRICT;

CREATE TABLE IF NOT EXISTS events (
	uuid TEXT PRIMARY KEY,
	operation TEXT NOT NULL,
	actor TEXT NOT NULL,
	pool_id INTEGER NOT NULL DEFAULT 0,
	amount INTEGER NOT NULL DEFAULT 0,
	shares INTEGER NOT NULL DEFAULT 0,
	logical_time INTEGER NOT NULL,
	details TEXT NOT NULL DEFAULT ''
) STRICT;

CREATE INDEX IF NOT EXISTS idx_events_operation ON events(operation);
CREATE INDEX IF NOT EXISTS idx_events_actor ON events(actor);
`
