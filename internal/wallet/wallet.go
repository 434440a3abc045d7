package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/OKaluzny/voting-dapp/pkg/models"
)

// Identity is a signing identity: an account address plus the key that
// authorizes its transactions.
type Identity struct {
	Address common.Address
	// Path is the BIP-44 derivation path for mnemonic identities, empty
	// for raw keys.
	Path string
	key  *ecdsa.PrivateKey
}

// NewIdentity wraps a private key.
func NewIdentity(key *ecdsa.PrivateKey, address common.Address) *Identity {
	return &Identity{Address: address, key: key}
}

func (id *Identity) String() string {
	if id.Path != "" {
		return id.Address.Hex() + " (" + id.Path + ")"
	}
	return id.Address.Hex()
}

// TransactOpts returns EIP-155 transaction options bound to ctx.
func (id *Identity) TransactOpts(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(id.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Connector obtains a signing identity from an external wallet.
// Implementations return models.ErrConnectionRejected when the user or
// the wallet declines.
type Connector interface {
	Connect(ctx context.Context) (*Identity, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (*Identity, error)

func (f ConnectorFunc) Connect(ctx context.Context) (*Identity, error) {
	return f(ctx)
}

// Session holds at most one connected identity. Every change of identity
// bumps the generation so dependents can tell a rebuilt binding from a
// stale one.
type Session struct {
	connector Connector

	mu         sync.RWMutex
	identity   *Identity
	generation uint64

	logger *slog.Logger
}

// NewSession creates a disconnected session. A nil connector is allowed;
// Connect then fails with models.ErrNoProviderAvailable.
func NewSession(connector Connector) *Session {
	return &Session{
		connector: connector,
		logger:    slog.Default().With("component", "wallet_session"),
	}
}

// Connect asks the connector for an identity and replaces the current one.
// Calling it while connected re-runs the connector.
func (s *Session) Connect(ctx context.Context) (*Identity, error) {
	if s.connector == nil {
		return nil, models.ErrNoProviderAvailable
	}

	id, err := s.connector.Connect(ctx)
	if err != nil {
		s.logger.Warn("wallet connection failed", "error", err)
		return nil, fmt.Errorf("connect: %w", err)
	}
	if id == nil {
		return nil, fmt.Errorf("connect: %w", models.ErrConnectionRejected)
	}

	s.mu.Lock()
	s.identity = id
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.logger.Info("wallet connected", "address", id.Address.Hex(), "generation", gen)
	return id, nil
}

// Disconnect drops the current identity. It is a no-op when disconnected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.identity == nil {
		s.mu.Unlock()
		return
	}
	addr := s.identity.Address
	s.identity = nil
	s.generation++
	s.mu.Unlock()

	s.logger.Info("wallet disconnected", "address", addr.Hex())
}

// Identity returns the connected identity, if any.
func (s *Session) Identity() (*Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.identity != nil
}

// Generation increases on every connect and disconnect.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}
