// ABOUTME: SQLite persistence for the credited output set
// ABOUTME: Crediting writes transaction, derivation and output in one SQL transaction

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const timeFormat = time.RFC3339Nano

// CreditOutput records c atomically. The (txid, vout) primary key makes a
// second credit of the same outpoint fail with ErrAlreadyCredited.
func (s *SQLiteStore) CreditOutput(ctx context.Context, c *Credit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	created := func(t time.Time) string {
		if t.IsZero() {
			t = now
		}
		return t.UTC().Format(timeFormat)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO transactions (txid, raw_tx, created_at)
		VALUES (?, ?, ?)
	`, c.Transaction.TxID, c.Transaction.RawTx, created(c.Transaction.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}

	d := c.Derivation
	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO derivations (owner_identity_key, sender_identity_key, prefix, suffix, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, d.OwnerIdentityKey, d.SenderIdentityKey, d.Prefix, d.Suffix, created(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting derivation: %w", err)
	}

	o := c.Output
	tags, err := marshalStrings(o.Tags)
	if err != nil {
		return err
	}
	labels, err := marshalStrings(o.Labels)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO outputs (
			txid, vout, owner_identity_key, satoshis, locking_script, basket, spendable,
			tags_json, labels_json, sender_identity_key, derivation_prefix, derivation_suffix,
			request_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.TxID, o.Vout, o.OwnerIdentityKey, o.Satoshis, o.LockingScript, o.Basket, boolToInt(o.Spendable),
		tags, labels, o.SenderIdentityKey, o.DerivationPrefix, o.DerivationSuffix,
		nullString(o.RequestID), created(o.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrAlreadyCredited
		}
		return fmt.Errorf("inserting output: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isConstraintViolation(err) {
			return ErrAlreadyCredited
		}
		return fmt.Errorf("committing credit: %w", err)
	}

	s.logger.Debug("credited output", "outpoint", o.Outpoint(), "satoshis", o.Satoshis, "basket", o.Basket)
	return nil
}

// HasOutput reports whether the outpoint has been credited.
func (s *SQLiteStore) HasOutput(ctx context.Context, txid string, vout uint32) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM outputs WHERE txid = ? AND vout = ?`, txid, vout,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying output: %w", err)
	}
	return n > 0, nil
}

// ListOutputs returns the owner's outputs in a basket, oldest first.
func (s *SQLiteStore) ListOutputs(ctx context.Context, owner, basket string) ([]*Output, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT txid, vout, owner_identity_key, satoshis, locking_script, basket, spendable,
			tags_json, labels_json, sender_identity_key, derivation_prefix, derivation_suffix,
			request_id, created_at
		FROM outputs
		WHERE owner_identity_key = ? AND basket = ?
		ORDER BY created_at ASC, rowid ASC
	`, owner, basket)
	if err != nil {
		return nil, fmt.Errorf("querying outputs: %w", err)
	}
	defer rows.Close()

	outputs := []*Output{}
	for rows.Next() {
		var (
			o                   Output
			spendable           int
			tagsJSON, labelsStr string
			requestID           sql.NullString
			createdAt           string
		)
		if err := rows.Scan(
			&o.TxID, &o.Vout, &o.OwnerIdentityKey, &o.Satoshis, &o.LockingScript, &o.Basket, &spendable,
			&tagsJSON, &labelsStr, &o.SenderIdentityKey, &o.DerivationPrefix, &o.DerivationSuffix,
			&requestID, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning output: %w", err)
		}
		o.Spendable = spendable != 0
		o.RequestID = requestID.String
		if err := json.Unmarshal([]byte(tagsJSON), &o.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags: %w", err)
		}
		if err := json.Unmarshal([]byte(labelsStr), &o.Labels); err != nil {
			return nil, fmt.Errorf("decoding labels: %w", err)
		}
		if o.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		outputs = append(outputs, &o)
	}
	return outputs, rows.Err()
}

// Balance sums the owner's outputs in a basket.
func (s *SQLiteStore) Balance(ctx context.Context, owner, basket string) (*Balance, error) {
	b := &Balance{Basket: basket}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(1),
			COALESCE(SUM(satoshis), 0),
			COALESCE(SUM(CASE WHEN spendable = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN spendable = 1 THEN satoshis ELSE 0 END), 0)
		FROM outputs
		WHERE owner_identity_key = ? AND basket = ?
	`, owner, basket).Scan(&b.TotalOutputs, &b.TotalSatoshis, &b.SpendableOutputs, &b.SpendableSatoshis)
	if err != nil {
		return nil, fmt.Errorf("querying balance: %w", err)
	}
	return b, nil
}

// ListTransactions returns every stored funding transaction.
func (s *SQLiteStore) ListTransactions(ctx context.Context) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT txid, raw_tx, created_at FROM transactions ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		var (
			t         Transaction
			createdAt string
		)
		if err := rows.Scan(&t.TxID, &t.RawTx, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		if t.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}

// ListDerivations returns the derivations the owner has accepted payments under.
func (s *SQLiteStore) ListDerivations(ctx context.Context, owner string) ([]*Derivation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_identity_key, sender_identity_key, prefix, suffix, created_at
		FROM derivations
		WHERE owner_identity_key = ?
		ORDER BY created_at ASC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("querying derivations: %w", err)
	}
	defer rows.Close()

	var ds []*Derivation
	for rows.Next() {
		var (
			d         Derivation
			createdAt string
		)
		if err := rows.Scan(&d.OwnerIdentityKey, &d.SenderIdentityKey, &d.Prefix, &d.Suffix, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning derivation: %w", err)
		}
		if d.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		ds = append(ds, &d)
	}
	return ds, rows.Err()
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding list: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
