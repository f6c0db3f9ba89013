// Package gateway wires fundgate's services to HTTP and runs the server.
//
// # Overview
//
// New opens the SQLite output database, builds the configured registry
// backend (file, bolt or s3), and creates the wallet session manager and the
// funding service on top of them. Run serves until its context is canceled
// and then shuts everything down in reverse order.
//
// # Routes
//
//	GET  /health                                  liveness
//	GET  /health/ready                            503 until the wallet is active
//	GET  /api/identity-registry?action=lookup     substring tag search
//	GET  /api/identity-registry?action=list       tags of one identity
//	POST /api/identity-registry?action=register   {tag, identityKey}
//	POST /api/identity-registry?action=revoke     {tag, identityKey}
//	GET  /api/server-wallet?action=status|create|reset|request|balance|outputs
//	POST /api/server-wallet?action=receive        funding submission
//
// The receive body's tx is a hex or base64 string, or a byte array. An
// optional txEncoding of "hex" or "base64" settles strings valid in both.
//
// Every JSON body carries "success". Client errors return their message
// unchanged; server errors are prefixed "<action> failed: ".
//
// # Authentication
//
// With auth.jwt_secret set, the create, reset, balance and outputs wallet
// actions need a bearer token (see package auth). Everything else stays
// open so payers can look up tags, fetch requests and submit payments.
package gateway
