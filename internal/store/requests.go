// ABOUTME: SQLite persistence for issued payment requests
// ABOUTME: Requests are looked up by their derivation parts when a payment arrives

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateRequest stores a new payment request.
func (s *SQLiteStore) CreateRequest(ctx context.Context, req *PaymentRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_requests (
			id, owner_identity_key, satoshis, memo, derivation_prefix, derivation_suffix,
			created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		req.ID, req.OwnerIdentityKey, req.Satoshis, req.Memo, req.DerivationPrefix, req.DerivationSuffix,
		req.CreatedAt.UTC().Format(timeFormat), req.ExpiresAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("inserting payment request: %w", err)
	}
	s.logger.Debug("created payment request", "id", req.ID, "satoshis", req.Satoshis)
	return nil
}

const requestColumns = `
	id, owner_identity_key, satoshis, memo, derivation_prefix, derivation_suffix,
	created_at, expires_at, fulfilled_txid, fulfilled_at
`

// GetRequest retrieves a request by ID.
// Returns ErrNotFound if the request doesn't exist.
func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*PaymentRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM payment_requests WHERE id = ?`, id)
	return scanRequest(row)
}

// FindRequest retrieves the owner's request issued with the given
// derivation parts. Returns ErrNotFound if there is none.
func (s *SQLiteStore) FindRequest(ctx context.Context, owner, prefix, suffix string) (*PaymentRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM payment_requests
		WHERE owner_identity_key = ? AND derivation_prefix = ? AND derivation_suffix = ?
	`, owner, prefix, suffix)
	return scanRequest(row)
}

// MarkRequestFulfilled links a request to the transaction that paid it.
// Already fulfilled requests keep their first fulfilment.
func (s *SQLiteStore) MarkRequestFulfilled(ctx context.Context, id, txid string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_requests
		SET fulfilled_txid = ?, fulfilled_at = ?
		WHERE id = ? AND fulfilled_at IS NULL
	`, txid, at.UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("updating payment request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetRequest(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func scanRequest(row *sql.Row) (*PaymentRequest, error) {
	var (
		req                  PaymentRequest
		createdAt, expiresAt string
		fulfilledTxID        sql.NullString
		fulfilledAt          sql.NullString
	)
	err := row.Scan(
		&req.ID, &req.OwnerIdentityKey, &req.Satoshis, &req.Memo, &req.DerivationPrefix, &req.DerivationSuffix,
		&createdAt, &expiresAt, &fulfilledTxID, &fulfilledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying payment request: %w", err)
	}

	if req.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if req.ExpiresAt, err = time.Parse(timeFormat, expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	req.FulfilledTxID = fulfilledTxID.String
	if fulfilledAt.Valid {
		t, err := time.Parse(timeFormat, fulfilledAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing fulfilled_at: %w", err)
		}
		req.FulfilledAt = &t
	}
	return &req, nil
}
