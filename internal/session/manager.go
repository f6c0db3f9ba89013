// ABOUTME: Wallet session manager holding the single lazily-created wallet identity
// ABOUTME: Joins concurrent initialisation attempts and discards attempts that lose to a reset

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/2389/fundgate/internal/apperr"
	"github.com/2389/fundgate/internal/brc29"
)

// Source records where the active root key came from.
type Source string

const (
	SourceConfigured Source = "configured"
	SourceSaved      Source = "saved"
	SourceGenerated  Source = "generated"
)

// State is the lifecycle position of the session.
type State string

const (
	StateAbsent       State = "absent"
	StateInitializing State = "initializing"
	StateActive       State = "active"
)

// Wallet is an active wallet identity.
type Wallet struct {
	PrivateKey  *btcec.PrivateKey
	IdentityKey string
	Source      Source
	Network     string
}

// Status is the persisted view of the session.
type Status struct {
	Saved       bool   `json:"saved"`
	IdentityKey string `json:"identityKey,omitempty"`
}

// Config holds the manager's dependencies.
type Config struct {
	// PrivateKey is an externally supplied hex root key. When set it is
	// used as-is and never written to Keys.
	PrivateKey string
	Network    string
	Keys       KeyStore
	Logger     *slog.Logger
}

// initCall is one in-flight initialisation shared by every caller that
// arrives while it runs.
type initCall struct {
	done   chan struct{}
	wallet *Wallet
	err    error
}

// Manager owns the process-wide wallet session.
type Manager struct {
	mu     sync.Mutex
	wallet *Wallet
	call   *initCall
	gen    uint64

	privateKey string
	network    string
	keys       KeyStore
	logger     *slog.Logger

	newKey func() (*btcec.PrivateKey, error)
}

// NewManager creates a manager in the Absent state.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		privateKey: cfg.PrivateKey,
		network:    cfg.Network,
		keys:       cfg.Keys,
		logger:     logger,
		newKey:     btcec.NewPrivateKey,
	}
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.wallet != nil:
		return StateActive
	case m.call != nil:
		return StateInitializing
	default:
		return StateAbsent
	}
}

// Status reports whether a key is persisted. It never changes state and
// treats unreadable key files as absent.
func (m *Manager) Status() Status {
	id, err := m.keys.IdentityKey()
	if err != nil {
		if !errors.Is(err, ErrNoKey) {
			m.logger.Warn("key file unreadable", "error", err)
		}
		return Status{}
	}
	return Status{Saved: true, IdentityKey: id}
}

// Active returns the active wallet without initialising one.
func (m *Manager) Active() (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wallet == nil {
		return nil, apperr.State("Wallet not initialized")
	}
	return m.wallet, nil
}

// EnsureActive returns the active wallet, initialising it if needed.
// Concurrent callers share one attempt. A caller whose ctx ends stops
// waiting but does not cancel the attempt for others.
func (m *Manager) EnsureActive(ctx context.Context) (*Wallet, error) {
	m.mu.Lock()
	if m.wallet != nil {
		w := m.wallet
		m.mu.Unlock()
		return w, nil
	}
	call := m.call
	if call == nil {
		call = &initCall{done: make(chan struct{})}
		m.call = call
		go m.initialize(call, m.gen)
	}
	m.mu.Unlock()

	select {
	case <-call.done:
		return call.wallet, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// initialize resolves the root key outside the lock, then commits under it.
// A reset that happened meanwhile wins: the result is dropped and nothing
// is persisted.
func (m *Manager) initialize(call *initCall, gen uint64) {
	w, err := m.resolveKey()

	m.mu.Lock()
	defer func() {
		if m.call == call {
			m.call = nil
		}
		m.mu.Unlock()
		close(call.done)
	}()

	if m.gen != gen {
		call.err = apperr.State("Wallet was reset during initialization")
		m.logger.Info("discarding wallet initialization superseded by reset")
		return
	}
	if err != nil {
		call.err = err
		m.logger.Error("wallet initialization failed", "error", err)
		return
	}
	if w.Source == SourceGenerated {
		if err := m.keys.Save(w.PrivateKey); err != nil {
			call.err = apperr.Storage("Failed to save wallet key", err)
			m.logger.Error("saving generated key failed", "error", err)
			return
		}
	}

	m.wallet = w
	call.wallet = w
	m.logger.Info("wallet active", "identity_key", w.IdentityKey, "source", w.Source)
}

func (m *Manager) resolveKey() (*Wallet, error) {
	if m.privateKey != "" {
		priv, err := brc29.ParsePrivateKey(m.privateKey)
		if err != nil {
			return nil, apperr.State("Configured private key is invalid")
		}
		return m.walletFor(priv, SourceConfigured), nil
	}

	priv, err := m.keys.Load()
	switch {
	case err == nil:
		return m.walletFor(priv, SourceSaved), nil
	case errors.Is(err, ErrNoKey):
	default:
		return nil, apperr.Storage("Saved wallet key is unreadable", err)
	}

	priv, err = m.newKey()
	if err != nil {
		return nil, apperr.Storage("Failed to generate wallet key", err)
	}
	return m.walletFor(priv, SourceGenerated), nil
}

func (m *Manager) walletFor(priv *btcec.PrivateKey, src Source) *Wallet {
	return &Wallet{
		PrivateKey:  priv,
		IdentityKey: brc29.IdentityKey(priv.PubKey()),
		Source:      src,
		Network:     m.network,
	}
}

// Reset returns the session to Absent and deletes the persisted key. Any
// initialisation still running is abandoned.
func (m *Manager) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.wallet = nil
	m.call = nil
	m.gen++

	if err := m.keys.Delete(); err != nil {
		return apperr.Storage("Failed to delete wallet key", err)
	}
	m.logger.Info("wallet reset")
	return nil
}
