// ABOUTME: Store interface and data types for fundgate wallet persistence
// ABOUTME: Defines credited outputs, source transactions, derivations and payment requests

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrAlreadyCredited is returned when an outpoint is already in the output set
var ErrAlreadyCredited = errors.New("output already credited")

// ErrDuplicateRequest is returned when a request reuses derivation parts
var ErrDuplicateRequest = errors.New("payment request already exists")

// Transaction is a funding transaction kept for orphan recovery.
type Transaction struct {
	TxID      string
	RawTx     []byte
	CreatedAt time.Time
}

// Derivation is a (sender, prefix, suffix) triple the owner has accepted
// payments under.
type Derivation struct {
	OwnerIdentityKey  string
	SenderIdentityKey string
	Prefix            string
	Suffix            string
	CreatedAt         time.Time
}

// Output is one credited output in the owner's output set.
type Output struct {
	TxID              string
	Vout              uint32
	OwnerIdentityKey  string
	Satoshis          int64
	LockingScript     []byte
	Basket            string
	Spendable         bool
	Tags              []string
	Labels            []string
	SenderIdentityKey string
	DerivationPrefix  string
	DerivationSuffix  string
	RequestID         string
	CreatedAt         time.Time
}

// Outpoint renders the output reference as "txid.vout".
func (o *Output) Outpoint() string {
	return fmt.Sprintf("%s.%d", o.TxID, o.Vout)
}

// Credit bundles the rows written when an output is internalized.
type Credit struct {
	Transaction Transaction
	Derivation  Derivation
	Output      Output
}

// PaymentRequest is an issued funding request.
type PaymentRequest struct {
	ID               string
	OwnerIdentityKey string
	Satoshis         int64
	Memo             string
	DerivationPrefix string
	DerivationSuffix string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	FulfilledTxID    string
	FulfilledAt      *time.Time
}

// Expired reports whether the request lapsed unfulfilled before now.
func (r *PaymentRequest) Expired(now time.Time) bool {
	return r.FulfilledAt == nil && !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Balance summarises one basket of an owner's output set.
type Balance struct {
	Basket            string
	TotalOutputs      int
	TotalSatoshis     int64
	SpendableOutputs  int
	SpendableSatoshis int64
}

// OutputStore persists the wallet output set.
type OutputStore interface {
	// CreditOutput records the transaction, derivation and output atomically.
	// Returns ErrAlreadyCredited if the outpoint is already present.
	CreditOutput(ctx context.Context, c *Credit) error
	HasOutput(ctx context.Context, txid string, vout uint32) (bool, error)
	ListOutputs(ctx context.Context, owner, basket string) ([]*Output, error)
	Balance(ctx context.Context, owner, basket string) (*Balance, error)
	ListTransactions(ctx context.Context) ([]*Transaction, error)
	ListDerivations(ctx context.Context, owner string) ([]*Derivation, error)
}

// RequestStore persists issued payment requests.
type RequestStore interface {
	CreateRequest(ctx context.Context, req *PaymentRequest) error
	GetRequest(ctx context.Context, id string) (*PaymentRequest, error)
	FindRequest(ctx context.Context, owner, prefix, suffix string) (*PaymentRequest, error)
	MarkRequestFulfilled(ctx context.Context, id, txid string, at time.Time) error
}

// Store is the full persistence surface used by the funding service.
type Store interface {
	OutputStore
	RequestStore
	Ping(ctx context.Context) error
	Close() error
}
