// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLiteStore
// ABOUTME: Focuses on duplicate detection, ownership scoping and request fulfilment

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ownedCredit(txid string, vout uint32, owner string, sats int64) *Credit {
	c := testCredit(txid, vout, sats)
	c.Derivation.OwnerIdentityKey = owner
	c.Output.OwnerIdentityKey = owner
	return c
}

func TestMockStore_CreditOutput_Duplicate(t *testing.T) {
	s := NewMockStore()
	ctx := context.Background()

	c := ownedCredit("aa", 0, "owner", 500)
	require.NoError(t, s.CreditOutput(ctx, c))
	assert.ErrorIs(t, s.CreditOutput(ctx, c), ErrAlreadyCredited)

	has, err := s.HasOutput(ctx, "aa", 0)
	require.NoError(t, err)
	assert.True(t, has)

	bal, err := s.Balance(ctx, "owner", "default")
	require.NoError(t, err)
	assert.Equal(t, 1, bal.TotalOutputs)
	assert.Equal(t, int64(500), bal.SpendableSatoshis)
}

func TestMockStore_ScopesByOwner(t *testing.T) {
	s := NewMockStore()
	ctx := context.Background()

	require.NoError(t, s.CreditOutput(ctx, ownedCredit("aa", 0, "alice", 1)))
	require.NoError(t, s.CreditOutput(ctx, ownedCredit("bb", 0, "bob", 2)))

	outs, err := s.ListOutputs(ctx, "alice", "default")
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, "aa.0", outs[0].Outpoint())

	ds, err := s.ListDerivations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, ds, 1)

	txs, err := s.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestMockStore_InjectedErrors(t *testing.T) {
	s := NewMockStore()
	ctx := context.Background()
	boom := errors.New("boom")

	s.CreditErr = boom
	assert.ErrorIs(t, s.CreditOutput(ctx, ownedCredit("aa", 0, "o", 1)), boom)

	s.ReadErr = boom
	_, err := s.HasOutput(ctx, "aa", 0)
	assert.ErrorIs(t, err, boom)
	_, err = s.Balance(ctx, "o", "default")
	assert.ErrorIs(t, err, boom)
}

func TestMockStore_Requests(t *testing.T) {
	s := NewMockStore()
	ctx := context.Background()
	now := time.Now().UTC()

	req := &PaymentRequest{ID: "r1", OwnerIdentityKey: "o", Satoshis: 10,
		DerivationPrefix: "p", DerivationSuffix: "s", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, s.CreateRequest(ctx, req))

	clash := *req
	clash.ID = "r2"
	assert.ErrorIs(t, s.CreateRequest(ctx, &clash), ErrDuplicateRequest)

	got, err := s.FindRequest(ctx, "o", "p", "s")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)

	_, err = s.FindRequest(ctx, "other", "p", "s")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.MarkRequestFulfilled(ctx, "r1", "tx1", now))
	require.NoError(t, s.MarkRequestFulfilled(ctx, "r1", "tx2", now.Add(time.Minute)))
	got, err = s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "tx1", got.FulfilledTxID)

	assert.ErrorIs(t, s.MarkRequestFulfilled(ctx, "missing", "tx", now), ErrNotFound)
}
