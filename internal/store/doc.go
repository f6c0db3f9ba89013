// Package store provides persistent storage for the wallet output set using SQLite.
//
// # Architecture
//
// The store package splits its surface into two interfaces:
//
//   - OutputStore: credited outputs, their source transactions and the
//     derivations they were received under
//   - RequestStore: issued payment requests
//
// SQLiteStore implements both (the Store interface). MockStore is an
// in-memory implementation for tests that can inject failures.
//
// # Data Models
//
//   - Output: one credited output, keyed by (txid, vout) and scoped to the
//     owning identity key
//   - Transaction: raw funding transaction, kept for orphan recovery
//   - Derivation: (owner, sender, prefix, suffix) accepted for payments
//   - PaymentRequest: issued request with expiry and fulfilment link
//
// # Exactly-once crediting
//
// CreditOutput writes the transaction, derivation and output in one SQL
// transaction. The (txid, vout) primary key rejects a second credit with
// ErrAlreadyCredited, which callers treat as an idempotent success.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrAlreadyCredited: Outpoint already in the output set
//   - ErrDuplicateRequest: Derivation parts reused by a second request
package store
