package domain

// TransferCapability defines the external asset custody collaborator.
// The engine treats transfers as all-or-nothing: a returned error aborts the
// enclosing operation and no engine state is committed.
// This interface abstracts away custody-specific implementations (on-ledger
// escrow, external custodian API, test fakes).
type TransferCapability interface {
	// Transfer moves amount (integer base units) between the named accounts.
	// The memo is recorded by the custody layer for reconciliation.
	Transfer(amount int64, from, to, memo string) error
}

// AuthRegistry defines the authorization collaborator consulted at the start
// of privileged operations. Lookups are pure reads; errors indicate a lookup
// failure, not a denial.
type AuthRegistry interface {
	// IsOwner reports whether the account is the designated engine owner
	IsOwner(account string) (bool, error)

	// IsAuthorizedAgent reports whether the account may trigger rebalancing
	IsAuthorizedAgent(account string) (bool, error)

	// IsAuthorizedOracle reports whether the account may submit allocation
	// recommendations
	IsAuthorizedOracle(account string) (bool, error)
}

// Clock supplies the engine's logical time (unix seconds, monotonic
// non-decreasing). Every operation reads the clock exactly once at entry and
// uses that value throughout.
type Clock interface {
	Now() int64
}
