// ABOUTME: Mock Store implementation for testing
// ABOUTME: Keeps the output set and requests in memory and can inject failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type outpointKey struct {
	txid string
	vout uint32
}

type derivationKey struct {
	owner, sender, prefix, suffix string
}

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	txs         map[string]*Transaction
	txOrder     []string
	derivations map[derivationKey]*Derivation
	derivOrder  []derivationKey
	outputs     map[outpointKey]*Output
	outOrder    []outpointKey
	requests    map[string]*PaymentRequest

	// CreditErr, when set, is returned by CreditOutput before any write.
	CreditErr error
	// ReadErr, when set, is returned by every read of the output set.
	ReadErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		txs:         make(map[string]*Transaction),
		derivations: make(map[derivationKey]*Derivation),
		outputs:     make(map[outpointKey]*Output),
		requests:    make(map[string]*PaymentRequest),
	}
}

// CreditOutput records c, matching SQLiteStore's duplicate semantics.
func (m *MockStore) CreditOutput(ctx context.Context, c *Credit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreditErr != nil {
		return m.CreditErr
	}
	key := outpointKey{c.Output.TxID, c.Output.Vout}
	if _, ok := m.outputs[key]; ok {
		return ErrAlreadyCredited
	}

	if _, ok := m.txs[c.Transaction.TxID]; !ok {
		tx := c.Transaction
		tx.RawTx = append([]byte(nil), c.Transaction.RawTx...)
		m.txs[tx.TxID] = &tx
		m.txOrder = append(m.txOrder, tx.TxID)
	}
	d := c.Derivation
	dk := derivationKey{d.OwnerIdentityKey, d.SenderIdentityKey, d.Prefix, d.Suffix}
	if _, ok := m.derivations[dk]; !ok {
		m.derivations[dk] = &d
		m.derivOrder = append(m.derivOrder, dk)
	}

	o := c.Output
	o.Tags = append([]string(nil), c.Output.Tags...)
	o.Labels = append([]string(nil), c.Output.Labels...)
	m.outputs[key] = &o
	m.outOrder = append(m.outOrder, key)
	return nil
}

// HasOutput reports whether the outpoint has been credited.
func (m *MockStore) HasOutput(ctx context.Context, txid string, vout uint32) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ReadErr != nil {
		return false, m.ReadErr
	}
	_, ok := m.outputs[outpointKey{txid, vout}]
	return ok, nil
}

// ListOutputs returns the owner's outputs in a basket in credit order.
func (m *MockStore) ListOutputs(ctx context.Context, owner, basket string) ([]*Output, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}

	outs := []*Output{}
	for _, k := range m.outOrder {
		o := m.outputs[k]
		if o.OwnerIdentityKey == owner && o.Basket == basket {
			cp := *o
			outs = append(outs, &cp)
		}
	}
	return outs, nil
}

// Balance sums the owner's outputs in a basket.
func (m *MockStore) Balance(ctx context.Context, owner, basket string) (*Balance, error) {
	outs, err := m.ListOutputs(ctx, owner, basket)
	if err != nil {
		return nil, err
	}
	b := &Balance{Basket: basket}
	for _, o := range outs {
		b.TotalOutputs++
		b.TotalSatoshis += o.Satoshis
		if o.Spendable {
			b.SpendableOutputs++
			b.SpendableSatoshis += o.Satoshis
		}
	}
	return b, nil
}

// ListTransactions returns every stored funding transaction.
func (m *MockStore) ListTransactions(ctx context.Context) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	txs := make([]*Transaction, 0, len(m.txOrder))
	for _, id := range m.txOrder {
		cp := *m.txs[id]
		txs = append(txs, &cp)
	}
	return txs, nil
}

// ListDerivations returns the owner's accepted derivations.
func (m *MockStore) ListDerivations(ctx context.Context, owner string) ([]*Derivation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	var ds []*Derivation
	for _, k := range m.derivOrder {
		if k.owner == owner {
			cp := *m.derivations[k]
			ds = append(ds, &cp)
		}
	}
	return ds, nil
}

// CreateRequest stores a new payment request.
func (m *MockStore) CreateRequest(ctx context.Context, req *PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[req.ID]; ok {
		return ErrDuplicateRequest
	}
	for _, r := range m.requests {
		if r.OwnerIdentityKey == req.OwnerIdentityKey &&
			r.DerivationPrefix == req.DerivationPrefix && r.DerivationSuffix == req.DerivationSuffix {
			return ErrDuplicateRequest
		}
	}
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

// GetRequest retrieves a request by ID.
func (m *MockStore) GetRequest(ctx context.Context, id string) (*PaymentRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// FindRequest retrieves the owner's request for the derivation parts.
func (m *MockStore) FindRequest(ctx context.Context, owner, prefix, suffix string) (*PaymentRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Deterministic pick if callers ever insert clashing rows directly.
	ids := make([]string, 0, len(m.requests))
	for id := range m.requests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := m.requests[id]
		if r.OwnerIdentityKey == owner && r.DerivationPrefix == prefix && r.DerivationSuffix == suffix {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// MarkRequestFulfilled links a request to the transaction that paid it.
func (m *MockStore) MarkRequestFulfilled(ctx context.Context, id, txid string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	if r.FulfilledAt == nil {
		t := at.UTC()
		r.FulfilledTxID = txid
		r.FulfilledAt = &t
	}
	return nil
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

var _ Store = (*MockStore)(nil)
