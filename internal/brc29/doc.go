// Package brc29 implements the key derivation behind BRC-29 payments.
//
// A payer and a payee each hold a secp256k1 identity key. For every payment
// the payee issues two random derivation parts (prefix and suffix) which are
// joined into an invoice number:
//
//	2-3241645161d8-<prefix> <suffix>
//
// Both sides then compute the same one-time child key (BRC-42):
//
//	shared  = ECDH(own private, other public), compressed
//	t       = HMAC-SHA256(key=shared, msg=invoice) mod N
//	payee   = (root + t) mod N
//	payer   = rootPub + t*G
//
// The payment output must carry the P2PKH script of the child public key.
//
// Wallet keys are btcec values; derivation and script templates are
// delegated to github.com/bsv-blockchain/go-sdk.
package brc29
