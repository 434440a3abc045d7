package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/OKaluzny/voting-dapp/internal/confirm"
	"github.com/OKaluzny/voting-dapp/internal/wallet"
	"github.com/OKaluzny/voting-dapp/pkg/models"
)

// Backend is everything a binding needs from the node. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	confirm.Backend
}

// RawCandidate is a getAllCandidates entry as decoded from the ABI.
// Field names follow the ABI component names.
type RawCandidate struct {
	Id        *big.Int
	Name      string
	VoteCount *big.Int
}

// Handle is a submitted transaction.
type Handle interface {
	Hash() common.Hash
	// Wait blocks until the transaction is confirmed or fails.
	Wait(ctx context.Context) (*models.Receipt, error)
}

// Reader is the read-only side of the contract.
type Reader interface {
	GetAllCandidates(ctx context.Context) ([]RawCandidate, error)
}

// Proxy is a callable handle to the Voting contract bound to a signer.
type Proxy interface {
	Reader
	Vote(ctx context.Context, candidateID uint64) (Handle, error)
	AddCandidate(ctx context.Context, name string) (Handle, error)
	ResetVotes(ctx context.Context) (Handle, error)
	// From is the signing account.
	From() common.Address
}

// Binding is the go-ethereum backed Proxy.
type Binding struct {
	address  common.Address
	identity *wallet.Identity
	chainID  *big.Int
	contract *bind.BoundContract
	waiter   *confirm.Waiter
	logger   *slog.Logger
}

// Bind produces a proxy to the contract at address, signed by identity.
// A malformed address is models.ErrInvalidAddress and a missing interface
// is models.ErrInterfaceMismatch; both are configuration errors.
func Bind(backend Backend, identity *wallet.Identity, address string, iface *Interface, chainID *big.Int, waiter *confirm.Waiter) (*Binding, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidAddress, address)
	}
	if iface == nil {
		return nil, fmt.Errorf("%w: no interface", models.ErrInterfaceMismatch)
	}
	if identity == nil {
		return nil, models.ErrNoBinding
	}
	addr := common.HexToAddress(address)
	return &Binding{
		address:  addr,
		identity: identity,
		chainID:  new(big.Int).Set(chainID),
		contract: bind.NewBoundContract(addr, iface.abi, backend, backend, backend),
		waiter:   waiter,
		logger: slog.Default().With("component", "contract",
			"contract", addr.Hex(),
			"from", identity.Address.Hex(),
		),
	}, nil
}

func (b *Binding) Address() common.Address { return b.address }

func (b *Binding) From() common.Address { return b.identity.Address }

// GetAllCandidates performs the read-only getAllCandidates call.
func (b *Binding) GetAllCandidates(ctx context.Context) ([]RawCandidate, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: b.identity.Address}
	if err := b.contract.Call(opts, &out, "getAllCandidates"); err != nil {
		return nil, classify("getAllCandidates", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getAllCandidates: %w: %d return values", models.ErrMalformedCandidate, len(out))
	}
	return *abi.ConvertType(out[0], new([]RawCandidate)).(*[]RawCandidate), nil
}

func (b *Binding) Vote(ctx context.Context, candidateID uint64) (Handle, error) {
	return b.transact(ctx, "vote", new(big.Int).SetUint64(candidateID))
}

func (b *Binding) AddCandidate(ctx context.Context, name string) (Handle, error) {
	return b.transact(ctx, "addCandidate", name)
}

func (b *Binding) ResetVotes(ctx context.Context) (Handle, error) {
	return b.transact(ctx, "resetVotes")
}

func (b *Binding) transact(ctx context.Context, method string, args ...interface{}) (Handle, error) {
	opts, err := b.identity.TransactOpts(ctx, b.chainID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	tx, err := b.contract.Transact(opts, method, args...)
	if err != nil {
		return nil, classify(method, err)
	}
	b.logger.Info("transaction submitted",
		"method", method,
		"tx", tx.Hash().Hex(),
		"nonce", tx.Nonce(),
	)
	return &pendingTx{tx: tx, waiter: b.waiter}, nil
}

type pendingTx struct {
	tx     *types.Transaction
	waiter *confirm.Waiter
}

func (p *pendingTx) Hash() common.Hash { return p.tx.Hash() }

func (p *pendingTx) Wait(ctx context.Context) (*models.Receipt, error) {
	return p.waiter.Wait(ctx, p.tx.Hash())
}

// classify maps provider errors onto the error taxonomy: reverts (including
// gas estimation reverts) are models.ErrCallReverted, a missing contract is
// models.ErrInvalidAddress, everything else is models.ErrNetwork.
func classify(method string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", method, err)
	}
	if errors.Is(err, bind.ErrNoCode) {
		return fmt.Errorf("%s: %w: %w", method, models.ErrInvalidAddress, err)
	}
	var dataErr rpc.DataError
	if (errors.As(err, &dataErr) && dataErr.ErrorData() != nil) || strings.Contains(err.Error(), "execution reverted") {
		return fmt.Errorf("%s: %w: %w", method, models.ErrCallReverted, err)
	}
	return fmt.Errorf("%s: %w: %w", method, models.ErrNetwork, err)
}
