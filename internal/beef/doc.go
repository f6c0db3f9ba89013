// Package beef decodes the transaction payloads a funding wallet submits.
//
// Three encodings are accepted and told apart by their first four bytes:
//
//   - Atomic BEEF (01010101 + 32-byte subject txid + BEEF body)
//   - BEEF V1 / V2 (little-endian version 0xEFBE0001 / 0xEFBE0002)
//   - a bare serialized transaction
//
// Envelope and transaction parsing is done by the go-sdk transaction
// package. A plain BEEF envelope's subject is the one full transaction no
// other bundled transaction spends. Merkle paths (BUMPs) are not verified;
// that is left to whoever broadcasts the transaction.
package beef
