// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers output crediting, duplicate detection, balances and payment requests

package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a new SQLite store in a temporary directory for testing
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testCredit(txid string, vout uint32, sats int64) *Credit {
	return &Credit{
		Transaction: Transaction{TxID: txid, RawTx: []byte{0x01, 0x02}},
		Derivation: Derivation{
			OwnerIdentityKey:  "02owner",
			SenderIdentityKey: "03sender",
			Prefix:            "pre",
			Suffix:            "suf",
		},
		Output: Output{
			TxID:              txid,
			Vout:              vout,
			OwnerIdentityKey:  "02owner",
			Satoshis:          sats,
			LockingScript:     []byte{0x76, 0xa9},
			Basket:            "default",
			Spendable:         true,
			Tags:              []string{"funding"},
			Labels:            []string{"Desktop wallet funding"},
			SenderIdentityKey: "03sender",
			DerivationPrefix:  "pre",
			DerivationSuffix:  "suf",
		},
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestCreditOutput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreditOutput(ctx, testCredit("aa", 0, 1000)))

	has, err := store.HasOutput(ctx, "aa", 0)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.HasOutput(ctx, "aa", 1)
	require.NoError(t, err)
	assert.False(t, has)

	outputs, err := store.ListOutputs(ctx, "02owner", "default")
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	o := outputs[0]
	assert.Equal(t, "aa.0", o.Outpoint())
	assert.Equal(t, int64(1000), o.Satoshis)
	assert.True(t, o.Spendable)
	assert.Equal(t, []string{"funding"}, o.Tags)
	assert.Equal(t, []string{"Desktop wallet funding"}, o.Labels)
	assert.Equal(t, "03sender", o.SenderIdentityKey)
	assert.Empty(t, o.RequestID)
}

func TestCreditOutput_Duplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreditOutput(ctx, testCredit("aa", 0, 1000)))
	err := store.CreditOutput(ctx, testCredit("aa", 0, 1000))
	assert.ErrorIs(t, err, ErrAlreadyCredited)

	bal, err := store.Balance(ctx, "02owner", "default")
	require.NoError(t, err)
	assert.Equal(t, 1, bal.TotalOutputs)
	assert.Equal(t, int64(1000), bal.TotalSatoshis)
}

func TestCreditOutput_ConcurrentSameOutpoint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		credited int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.CreditOutput(ctx, testCredit("bb", 0, 500))
			if err == nil {
				mu.Lock()
				credited++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrAlreadyCredited)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, credited)
}

func TestBalanceAndScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreditOutput(ctx, testCredit("aa", 0, 1000)))
	require.NoError(t, store.CreditOutput(ctx, testCredit("aa", 1, 250)))

	other := testCredit("cc", 0, 99)
	other.Output.OwnerIdentityKey = "02other"
	require.NoError(t, store.CreditOutput(ctx, other))

	savings := testCredit("dd", 0, 7)
	savings.Output.Basket = "savings"
	require.NoError(t, store.CreditOutput(ctx, savings))

	bal, err := store.Balance(ctx, "02owner", "default")
	require.NoError(t, err)
	assert.Equal(t, &Balance{
		Basket:            "default",
		TotalOutputs:      2,
		TotalSatoshis:     1250,
		SpendableOutputs:  2,
		SpendableSatoshis: 1250,
	}, bal)

	empty, err := store.Balance(ctx, "02nobody", "default")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalOutputs)
	assert.Zero(t, empty.TotalSatoshis)

	outs, err := store.ListOutputs(ctx, "02owner", "savings")
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, "dd.0", outs[0].Outpoint())
}

func TestTransactionsAndDerivations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreditOutput(ctx, testCredit("aa", 0, 1)))
	require.NoError(t, store.CreditOutput(ctx, testCredit("aa", 1, 2)))

	txs, err := store.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "aa", txs[0].TxID)
	assert.Equal(t, []byte{0x01, 0x02}, txs[0].RawTx)

	ds, err := store.ListDerivations(ctx, "02owner")
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "pre", ds[0].Prefix)

	none, err := store.ListDerivations(ctx, "02other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPaymentRequests(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	req := &PaymentRequest{
		ID:               "req-1",
		OwnerIdentityKey: "02owner",
		Satoshis:         1000,
		Memo:             "funding",
		DerivationPrefix: "pre",
		DerivationSuffix: "suf",
		CreatedAt:        now,
		ExpiresAt:        now.Add(time.Hour),
	}
	require.NoError(t, store.CreateRequest(ctx, req))

	dup := *req
	dup.ID = "req-2"
	assert.ErrorIs(t, store.CreateRequest(ctx, &dup), ErrDuplicateRequest)

	got, err := store.FindRequest(ctx, "02owner", "pre", "suf")
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.ID)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))
	assert.Nil(t, got.FulfilledAt)
	assert.False(t, got.Expired(now))
	assert.True(t, got.Expired(now.Add(2*time.Hour)))

	_, err = store.FindRequest(ctx, "02owner", "pre", "other")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.MarkRequestFulfilled(ctx, "req-1", "aa", now))
	require.NoError(t, store.MarkRequestFulfilled(ctx, "req-1", "bb", now.Add(time.Minute)))

	got, err = store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "aa", got.FulfilledTxID)
	require.NotNil(t, got.FulfilledAt)
	assert.False(t, got.Expired(now.Add(2*time.Hour)))

	assert.ErrorIs(t, store.MarkRequestFulfilled(ctx, "missing", "aa", now), ErrNotFound)
}
