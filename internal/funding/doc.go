// Package funding implements BRC-29 wallet funding for the active wallet.
//
// A payer asks for a PaymentRequest (CreateRequest), derives the one-time
// key from the request's derivation parts, builds and signs a transaction
// elsewhere, and submits it (Receive). Receive checks that the designated
// output pays exactly the derived P2PKH script and credits it to the
// output set once; repeats report AlreadyInternalized.
//
// After each new credit the service scans stored transactions for outputs
// that pay a known derivation but were never credited, and credits them
// with the "reinternalized" tag.
package funding
