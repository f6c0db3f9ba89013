// ABOUTME: Orphaned-output recovery for the funding service
// ABOUTME: Credits stored outputs that pay a known derivation but were never credited

package funding

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/fundgate/internal/beef"
	"github.com/2389/fundgate/internal/brc29"
	"github.com/2389/fundgate/internal/session"
	"github.com/2389/fundgate/internal/store"
)

// reinternalize scans stored transactions for outputs paying any derivation
// the wallet has accepted and credits those missing from the output set.
// It never fails the caller; problems are logged and skipped.
func (s *Service) reinternalize(ctx context.Context, w *session.Wallet) []string {
	recovered := []string{}

	derivations, err := s.store.ListDerivations(ctx, w.IdentityKey)
	if err != nil {
		s.logger.Warn("orphan scan: listing derivations failed", "error", err)
		return recovered
	}
	if len(derivations) == 0 {
		return recovered
	}

	scripts := make(map[string]*store.Derivation, len(derivations))
	for _, d := range derivations {
		sender, err := brc29.ParsePublicKey(d.SenderIdentityKey)
		if err != nil {
			s.logger.Warn("orphan scan: bad sender key", "sender", d.SenderIdentityKey, "error", err)
			continue
		}
		script, err := brc29.ExpectedScript(w.PrivateKey, sender, d.Prefix, d.Suffix)
		if err != nil {
			s.logger.Warn("orphan scan: deriving script failed", "error", err)
			continue
		}
		scripts[string(script)] = d
	}

	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		s.logger.Warn("orphan scan: listing transactions failed", "error", err)
		return recovered
	}

	for _, stored := range txs {
		outpoints, err := s.recoverTx(ctx, w, stored, scripts)
		if err != nil {
			s.logger.Warn("orphan scan: transaction skipped", "txid", stored.TxID, "error", err)
		}
		recovered = append(recovered, outpoints...)
	}

	if len(recovered) > 0 {
		s.logger.Info("recovered orphaned outputs", "count", len(recovered), "outpoints", recovered)
	}
	return recovered
}

func (s *Service) recoverTx(ctx context.Context, w *session.Wallet, stored *store.Transaction, scripts map[string]*store.Derivation) ([]string, error) {
	payload, err := beef.Decode(stored.RawTx)
	if err != nil {
		return nil, fmt.Errorf("decoding stored transaction: %w", err)
	}

	var recovered []string
	now := s.now().UTC()
	for vout, out := range payload.Subject.Outputs {
		if out.LockingScript == nil {
			continue
		}
		d, ok := scripts[string(*out.LockingScript)]
		if !ok {
			continue
		}
		key := outpointKey{txid: stored.TxID, vout: uint32(vout)}
		done, err := s.alreadyCredited(ctx, key)
		if err != nil {
			return recovered, err
		}
		if done {
			continue
		}

		err = s.store.CreditOutput(ctx, &store.Credit{
			Transaction: *stored,
			Derivation:  *d,
			Output: store.Output{
				TxID:              stored.TxID,
				Vout:              uint32(vout),
				OwnerIdentityKey:  w.IdentityKey,
				Satoshis:          int64(out.Satoshis),
				LockingScript:     []byte(*out.LockingScript),
				Basket:            s.cfg.DefaultBasket,
				Spendable:         true,
				Tags:              []string{TagReinternalized},
				Labels:            []string{s.cfg.Description},
				SenderIdentityKey: d.SenderIdentityKey,
				DerivationPrefix:  d.Prefix,
				DerivationSuffix:  d.Suffix,
				CreatedAt:         now,
			},
		})
		if errors.Is(err, store.ErrAlreadyCredited) {
			s.recent.Mark(key)
			continue
		}
		if err != nil {
			return recovered, fmt.Errorf("crediting %s.%d: %w", stored.TxID, vout, err)
		}
		s.recent.Mark(key)
		recovered = append(recovered, fmt.Sprintf("%s.%d", stored.TxID, vout))
	}
	return recovered, nil
}
