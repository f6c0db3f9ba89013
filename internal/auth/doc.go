// Package auth guards the wallet endpoints of fundgate.
//
// # Tokens
//
// Operators authenticate with HS256 JWTs signed with auth.jwt_secret. Tokens
// carry the issuer "fundgate", a subject naming the operator, and an expiry.
// Mint one with:
//
//	fundgate token -subject ops -ttl 720h
//
// # Middleware
//
// RequireBearer wraps the wallet handlers that create requests, reset the
// wallet, or reveal balances. When no secret is configured the middleware
// is a pass-through and the server runs open, which suits a desktop wallet
// bound to localhost. Registry endpoints and funding submission are never
// guarded: payers must be able to reach them.
package auth
