// ABOUTME: Funding service issuing BRC-29 payment requests and internalizing payments
// ABOUTME: Verifies the derived script, credits exactly once and recovers orphaned outputs

package funding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/fundgate/internal/apperr"
	"github.com/2389/fundgate/internal/beef"
	"github.com/2389/fundgate/internal/brc29"
	"github.com/2389/fundgate/internal/dedupe"
	"github.com/2389/fundgate/internal/session"
	"github.com/2389/fundgate/internal/store"
)

// Output tags applied on credit.
const (
	TagFunding        = "funding"
	TagReinternalized = "reinternalized"
)

// Sessions yields the active wallet.
type Sessions interface {
	Active() (*session.Wallet, error)
}

// Config tunes the funding service.
type Config struct {
	DefaultBasket       string
	DefaultMemo         string
	Description         string
	RequestTTL          time.Duration
	RequireKnownRequest bool
	// RecentTTL bounds how long credited outpoints stay in the fast
	// duplicate cache.
	RecentTTL  time.Duration
	RecentSize int
}

func (c *Config) setDefaults() {
	if c.DefaultBasket == "" {
		c.DefaultBasket = "default"
	}
	if c.DefaultMemo == "" {
		c.DefaultMemo = "Wallet funding"
	}
	if c.Description == "" {
		c.Description = "Desktop wallet funding"
	}
	if c.RequestTTL <= 0 {
		c.RequestTTL = 24 * time.Hour
	}
	if c.RecentTTL <= 0 {
		c.RecentTTL = 10 * time.Minute
	}
	if c.RecentSize <= 0 {
		c.RecentSize = 10_000
	}
}

type outpointKey struct {
	txid string
	vout uint32
}

// Service implements the payment request protocol and the internalization
// engine for the active wallet.
type Service struct {
	sessions Sessions
	store    store.Store
	cfg      Config
	logger   *slog.Logger
	recent   *dedupe.Cache[outpointKey]

	now     func() time.Time
	newPart func() (string, error)
}

// NewService creates a funding service.
func NewService(sessions Sessions, st store.Store, cfg Config, logger *slog.Logger) *Service {
	cfg.setDefaults()
	return &Service{
		sessions: sessions,
		store:    st,
		cfg:      cfg,
		logger:   logger,
		recent:   dedupe.New[outpointKey](cfg.RecentTTL, cfg.RecentSize),
		now:      time.Now,
		newPart:  brc29.NewDerivationPart,
	}
}

// Close stops background work.
func (s *Service) Close() {
	s.recent.Close()
}

// DefaultBasket is the basket used when callers name none.
func (s *Service) DefaultBasket() string { return s.cfg.DefaultBasket }

// PaymentRequest tells a payer how to fund the wallet.
type PaymentRequest struct {
	ID                   string    `json:"id"`
	Satoshis             int64     `json:"satoshis"`
	Memo                 string    `json:"memo"`
	DerivationPrefix     string    `json:"derivationPrefix"`
	DerivationSuffix     string    `json:"derivationSuffix"`
	RecipientIdentityKey string    `json:"recipientIdentityKey"`
	ServerIdentityKey    string    `json:"serverIdentityKey"`
	CreatedAt            time.Time `json:"createdAt"`
	ExpiresAt            time.Time `json:"expiresAt"`
}

// CreateRequest issues a request for satoshis with fresh derivation parts.
// An empty memo takes the configured default.
func (s *Service) CreateRequest(ctx context.Context, satoshis int64, memo string) (*PaymentRequest, error) {
	w, err := s.sessions.Active()
	if err != nil {
		return nil, err
	}
	if satoshis <= 0 {
		return nil, apperr.Validation("Amount must be a positive number of satoshis")
	}
	if memo == "" {
		memo = s.cfg.DefaultMemo
	}

	prefix, err := s.newPart()
	if err != nil {
		return nil, fmt.Errorf("generating derivation prefix: %w", err)
	}
	suffix, err := s.newPart()
	if err != nil {
		return nil, fmt.Errorf("generating derivation suffix: %w", err)
	}

	now := s.now().UTC()
	rec := &store.PaymentRequest{
		ID:               uuid.NewString(),
		OwnerIdentityKey: w.IdentityKey,
		Satoshis:         satoshis,
		Memo:             memo,
		DerivationPrefix: prefix,
		DerivationSuffix: suffix,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.cfg.RequestTTL),
	}
	if err := s.store.CreateRequest(ctx, rec); err != nil {
		return nil, apperr.Storage("Failed to record payment request", err)
	}

	s.logger.Info("payment request created", "id", rec.ID, "satoshis", satoshis)
	return &PaymentRequest{
		ID:                   rec.ID,
		Satoshis:             satoshis,
		Memo:                 memo,
		DerivationPrefix:     prefix,
		DerivationSuffix:     suffix,
		RecipientIdentityKey: w.IdentityKey,
		ServerIdentityKey:    w.IdentityKey,
		CreatedAt:            rec.CreatedAt,
		ExpiresAt:            rec.ExpiresAt,
	}, nil
}

// Incoming is a funding submission.
type Incoming struct {
	Tx                []byte
	SenderIdentityKey string
	DerivationPrefix  string
	DerivationSuffix  string
	// OutputIndex defaults to 0 when nil.
	OutputIndex *int
	// Description labels the credited output; defaults from config.
	Description string
}

// Receipt describes a successful (possibly idempotent) internalization.
type Receipt struct {
	TxID                string   `json:"txid"`
	OutputIndex         uint32   `json:"outputIndex"`
	Satoshis            int64    `json:"satoshis"`
	Basket              string   `json:"basket"`
	SenderIdentityKey   string   `json:"senderIdentityKey"`
	ServerIdentityKey   string   `json:"serverIdentityKey"`
	RequestID           string   `json:"requestId,omitempty"`
	AlreadyInternalized bool     `json:"alreadyInternalized"`
	Balance             int64    `json:"balance"`
	Reinternalized      []string `json:"reinternalized"`
}

// Receive validates a funding submission against the active wallet and
// credits the designated output. Submitting the same output again succeeds
// with AlreadyInternalized set and changes nothing.
func (s *Service) Receive(ctx context.Context, in Incoming) (*Receipt, error) {
	w, err := s.sessions.Active()
	if err != nil {
		return nil, err
	}
	if len(in.Tx) == 0 || in.SenderIdentityKey == "" || in.DerivationPrefix == "" || in.DerivationSuffix == "" {
		return nil, apperr.Validation("Missing required fields: tx, senderIdentityKey, derivationPrefix, derivationSuffix")
	}

	sender, err := brc29.ParsePublicKey(in.SenderIdentityKey)
	if err != nil {
		return nil, apperr.Validation("Invalid senderIdentityKey")
	}
	payload, err := beef.Decode(in.Tx)
	if err != nil {
		return nil, apperr.Validationf("Invalid transaction: %v", err)
	}

	idx := 0
	if in.OutputIndex != nil {
		idx = *in.OutputIndex
	}
	tx := payload.Subject
	if idx < 0 || idx >= len(tx.Outputs) {
		return nil, apperr.DerivationMismatch(fmt.Sprintf("Output index %d out of range (transaction has %d outputs)", idx, len(tx.Outputs)))
	}

	expected, err := brc29.ExpectedScript(w.PrivateKey, sender, in.DerivationPrefix, in.DerivationSuffix)
	if err != nil {
		return nil, fmt.Errorf("deriving expected script: %w", err)
	}
	out := tx.Outputs[idx]
	if out.LockingScript == nil || !bytes.Equal(*out.LockingScript, expected) {
		s.logger.Warn("payment output does not pay the derived key",
			"txid", payload.TxID(), "output_index", idx, "sender", in.SenderIdentityKey)
		return nil, apperr.DerivationMismatch("Output script does not match the key derived for this payment")
	}

	senderKey := brc29.IdentityKey(sender)
	receipt := &Receipt{
		TxID:              payload.TxID(),
		OutputIndex:       uint32(idx),
		Satoshis:          int64(out.Satoshis),
		Basket:            s.cfg.DefaultBasket,
		SenderIdentityKey: senderKey,
		ServerIdentityKey: w.IdentityKey,
		Reinternalized:    []string{},
	}
	key := outpointKey{txid: receipt.TxID, vout: receipt.OutputIndex}

	done, err := s.alreadyCredited(ctx, key)
	if err != nil {
		return nil, err
	}
	if done {
		return s.finishDuplicate(ctx, receipt, w), nil
	}

	req, err := s.matchRequest(ctx, w, in, receipt.Satoshis)
	if err != nil {
		return nil, err
	}
	if req != nil {
		receipt.RequestID = req.ID
	}

	raw := payload.Raw()
	description := in.Description
	if description == "" {
		description = s.cfg.Description
	}
	now := s.now().UTC()
	credit := &store.Credit{
		Transaction: store.Transaction{TxID: receipt.TxID, RawTx: raw, CreatedAt: now},
		Derivation: store.Derivation{
			OwnerIdentityKey:  w.IdentityKey,
			SenderIdentityKey: senderKey,
			Prefix:            in.DerivationPrefix,
			Suffix:            in.DerivationSuffix,
			CreatedAt:         now,
		},
		Output: store.Output{
			TxID:              receipt.TxID,
			Vout:              receipt.OutputIndex,
			OwnerIdentityKey:  w.IdentityKey,
			Satoshis:          receipt.Satoshis,
			LockingScript:     expected,
			Basket:            receipt.Basket,
			Spendable:         true,
			Tags:              []string{TagFunding},
			Labels:            []string{description},
			SenderIdentityKey: senderKey,
			DerivationPrefix:  in.DerivationPrefix,
			DerivationSuffix:  in.DerivationSuffix,
			RequestID:         receipt.RequestID,
			CreatedAt:         now,
		},
	}

	err = s.store.CreditOutput(ctx, credit)
	if errors.Is(err, store.ErrAlreadyCredited) {
		s.recent.Mark(key)
		return s.finishDuplicate(ctx, receipt, w), nil
	}
	if err != nil {
		return nil, apperr.Storage("Failed to record payment", err)
	}
	s.recent.Mark(key)

	s.logger.Info("payment internalized",
		"txid", receipt.TxID,
		"output_index", receipt.OutputIndex,
		"satoshis", receipt.Satoshis,
		"sender", senderKey,
		"format", payload.Format,
	)

	if req != nil {
		if err := s.store.MarkRequestFulfilled(ctx, req.ID, receipt.TxID, now); err != nil {
			s.logger.Warn("marking payment request fulfilled failed", "request_id", req.ID, "error", err)
		}
	}

	receipt.Reinternalized = s.reinternalize(ctx, w)
	receipt.Balance = s.spendableBalance(ctx, w)
	return receipt, nil
}

func (s *Service) alreadyCredited(ctx context.Context, key outpointKey) (bool, error) {
	if s.recent.Check(key) {
		return true, nil
	}
	has, err := s.store.HasOutput(ctx, key.txid, key.vout)
	if err != nil {
		return false, apperr.Storage("Failed to check output set", err)
	}
	if has {
		s.recent.Mark(key)
	}
	return has, nil
}

func (s *Service) finishDuplicate(ctx context.Context, receipt *Receipt, w *session.Wallet) *Receipt {
	s.logger.Info("payment already internalized", "txid", receipt.TxID, "output_index", receipt.OutputIndex)
	receipt.AlreadyInternalized = true
	receipt.Balance = s.spendableBalance(ctx, w)
	return receipt
}

// matchRequest links the submission to an issued request, if any.
func (s *Service) matchRequest(ctx context.Context, w *session.Wallet, in Incoming, satoshis int64) (*store.PaymentRequest, error) {
	req, err := s.store.FindRequest(ctx, w.IdentityKey, in.DerivationPrefix, in.DerivationSuffix)
	if errors.Is(err, store.ErrNotFound) {
		if s.cfg.RequireKnownRequest {
			return nil, apperr.Validation("Unknown payment request")
		}
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("Failed to look up payment request", err)
	}
	if req.Expired(s.now()) {
		return nil, apperr.State("Payment request expired")
	}
	if req.Satoshis != satoshis {
		s.logger.Warn("payment amount differs from request",
			"request_id", req.ID, "requested", req.Satoshis, "received", satoshis)
	}
	return req, nil
}

func (s *Service) spendableBalance(ctx context.Context, w *session.Wallet) int64 {
	bal, err := s.store.Balance(ctx, w.IdentityKey, s.cfg.DefaultBasket)
	if err != nil {
		s.logger.Warn("reading balance failed", "error", err)
		return 0
	}
	return bal.SpendableSatoshis
}

// Balance summarises a basket of the active wallet.
type Balance struct {
	Basket            string `json:"basket"`
	TotalOutputs      int    `json:"totalOutputs"`
	TotalSatoshis     int64  `json:"totalSatoshis"`
	SpendableOutputs  int    `json:"spendableOutputs"`
	SpendableSatoshis int64  `json:"spendableSatoshis"`
}

// Balance reports totals for basket (default basket when empty).
func (s *Service) Balance(ctx context.Context, basket string) (*Balance, error) {
	w, err := s.sessions.Active()
	if err != nil {
		return nil, err
	}
	if basket == "" {
		basket = s.cfg.DefaultBasket
	}
	b, err := s.store.Balance(ctx, w.IdentityKey, basket)
	if err != nil {
		return nil, apperr.Storage("Failed to read balance", err)
	}
	return &Balance{
		Basket:            b.Basket,
		TotalOutputs:      b.TotalOutputs,
		TotalSatoshis:     b.TotalSatoshis,
		SpendableOutputs:  b.SpendableOutputs,
		SpendableSatoshis: b.SpendableSatoshis,
	}, nil
}

// OutputView is one output as listed to callers.
type OutputView struct {
	Outpoint  string   `json:"outpoint"`
	Satoshis  int64    `json:"satoshis"`
	Spendable bool     `json:"spendable"`
	Tags      []string `json:"tags"`
	Labels    []string `json:"labels"`
}

// OutputList is the listing of one basket.
type OutputList struct {
	Basket       string       `json:"basket"`
	TotalOutputs int          `json:"totalOutputs"`
	Outputs      []OutputView `json:"outputs"`
}

// ListOutputs lists basket (default basket when empty) of the active wallet.
func (s *Service) ListOutputs(ctx context.Context, basket string) (*OutputList, error) {
	w, err := s.sessions.Active()
	if err != nil {
		return nil, err
	}
	if basket == "" {
		basket = s.cfg.DefaultBasket
	}
	outs, err := s.store.ListOutputs(ctx, w.IdentityKey, basket)
	if err != nil {
		return nil, apperr.Storage("Failed to list outputs", err)
	}

	views := make([]OutputView, 0, len(outs))
	for _, o := range outs {
		views = append(views, OutputView{
			Outpoint:  o.Outpoint(),
			Satoshis:  o.Satoshis,
			Spendable: o.Spendable,
			Tags:      o.Tags,
			Labels:    o.Labels,
		})
	}
	return &OutputList{Basket: basket, TotalOutputs: len(views), Outputs: views}, nil
}
