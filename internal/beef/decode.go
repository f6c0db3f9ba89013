// ABOUTME: Decodes funding transaction payloads: raw tx, BEEF V1/V2 and Atomic BEEF
// ABOUTME: Parsing is delegated to go-sdk; this package picks the subject transaction

package beef

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/transaction"
)

var (
	ErrEmptyPayload     = errors.New("empty transaction payload")
	ErrNoTransactions   = errors.New("envelope holds no transactions")
	ErrSubjectMissing   = errors.New("subject transaction not found in envelope")
	ErrAmbiguousSubject = errors.New("envelope has more than one unspent transaction")
	ErrTrailingBytes    = errors.New("trailing bytes after transaction")
)

// Format names the encoding a payload arrived in.
type Format string

const (
	FormatRaw    Format = "raw"
	FormatBEEF   Format = "beef"
	FormatAtomic Format = "atomic-beef"
)

// Payload is a decoded funding payload.
type Payload struct {
	Format Format
	// Subject is the transaction being paid: the raw tx itself, the atomic
	// subject, or the one transaction of a plain BEEF envelope that no other
	// bundled transaction spends.
	Subject *transaction.Transaction
	// Beef is the parsed envelope; nil for raw payloads.
	Beef *transaction.Beef
}

// TxID returns the display-order hex txid of the subject transaction.
func (p *Payload) TxID() string {
	return p.Subject.TxID().String()
}

// Raw returns the subject's plain serialization, the form kept in storage.
func (p *Payload) Raw() []byte {
	return p.Subject.Bytes()
}

// Decode sniffs the payload format and decodes it.
func Decode(data []byte) (*Payload, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(data) >= 4 {
		switch binary.LittleEndian.Uint32(data[:4]) {
		case transaction.ATOMIC_BEEF:
			return decodeAtomic(data[4:])
		case transaction.BEEF_V1, transaction.BEEF_V2:
			return decodeEnvelope(data)
		}
	}

	tx, err := decodeRaw(data)
	if err != nil {
		return nil, err
	}
	return &Payload{Format: FormatRaw, Subject: tx}, nil
}

// decodeRaw parses exactly one transaction occupying all of data.
func decodeRaw(data []byte) (*transaction.Transaction, error) {
	r := bytes.NewReader(data)
	tx := &transaction.Transaction{}
	if _, err := tx.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("decoding transaction: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d", ErrTrailingBytes, r.Len())
	}
	return tx, nil
}

func decodeAtomic(data []byte) (*Payload, error) {
	if len(data) < chainhash.HashSize {
		return nil, fmt.Errorf("atomic envelope: %w", io.ErrUnexpectedEOF)
	}
	subject, err := chainhash.NewHash(data[:chainhash.HashSize])
	if err != nil {
		return nil, fmt.Errorf("atomic subject: %w", err)
	}
	b, err := parseBeef(data[chainhash.HashSize:])
	if err != nil {
		return nil, err
	}
	for _, tx := range fullTransactions(b) {
		if tx.TxID().IsEqual(subject) {
			return &Payload{Format: FormatAtomic, Subject: tx, Beef: b}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSubjectMissing, subject)
}

func decodeEnvelope(data []byte) (*Payload, error) {
	b, err := parseBeef(data)
	if err != nil {
		return nil, err
	}
	txs := fullTransactions(b)

	spent := make(map[chainhash.Hash]bool)
	for _, tx := range txs {
		for _, in := range tx.Inputs {
			if in.SourceTXID != nil {
				spent[*in.SourceTXID] = true
			}
		}
	}
	var tips []*transaction.Transaction
	for _, tx := range txs {
		if !spent[*tx.TxID()] {
			tips = append(tips, tx)
		}
	}
	if len(tips) != 1 {
		return nil, fmt.Errorf("%w: %d candidates", ErrAmbiguousSubject, len(tips))
	}
	return &Payload{Format: FormatBEEF, Subject: tips[0], Beef: b}, nil
}

// parseBeef decodes a BEEF V1 or V2 body. Merkle paths are read but not
// verified.
func parseBeef(data []byte) (*transaction.Beef, error) {
	b, err := transaction.NewBeefFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("decoding BEEF: %w", err)
	}
	if len(fullTransactions(b)) == 0 {
		return nil, ErrNoTransactions
	}
	return b, nil
}

// fullTransactions skips txid-only entries.
func fullTransactions(b *transaction.Beef) []*transaction.Transaction {
	txs := make([]*transaction.Transaction, 0, len(b.Transactions))
	for _, btx := range b.Transactions {
		if btx != nil && btx.Transaction != nil {
			txs = append(txs, btx.Transaction)
		}
	}
	return txs
}
