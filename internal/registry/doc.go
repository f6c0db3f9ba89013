// Package registry maps human-readable tags to secp256k1 identity keys.
//
// A tag is unique under case-insensitive comparison and is owned by exactly
// one identity key. Service enforces that on Register, removes entries on
// Revoke, and serves substring Lookup and per-identity ListForIdentity.
//
// The registry is small and always loaded and saved as a whole through a
// Store. Three backends exist:
//
//   - FileStore: a JSON array on local disk, replaced via rename
//   - BoltStore: a walletdb/bbolt database, rewritten in one transaction
//   - S3Store: a JSON object in an S3 bucket
//
// Read paths treat an unreadable registry as empty. Mutations refuse to run
// against an unreadable registry so a bad document is never overwritten.
package registry
