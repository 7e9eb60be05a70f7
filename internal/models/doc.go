// Package models defines the core domain models for the settle-up ledger.
//
// # Models
//
//   - User: read-only reference data (id, display name)
//   - Group: a set of member user IDs; the authoritative membership
//   - Expense: an amount with explicit payer and participant shares
//   - Settlement: one persisted transfer of a committed settlement plan
//
// Amounts are money.Money (integer minor units) throughout.
//
// # References
//
// Expense shares point at users through Reference[User]. A reference is
// either ByID (only the id is known, e.g. when loaded from a database row) or
// Resolved (the user entity is attached). The ledger resolves every reference
// before balance computation, so the calculator only sees known users.
package models
