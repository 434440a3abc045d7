package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/OKaluzny/voting-dapp/pkg/models"
)

// Backend abstracts the chain RPC calls needed to follow a transaction.
// *ethclient.Client satisfies it.
type Backend interface {
	// TransactionReceipt returns ethereum.NotFound while the tx is pending.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	// BlockNumber returns the current chain head.
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config holds configuration for the waiter.
type Config struct {
	PollInterval time.Duration
	// Timeout bounds a single Wait. Zero means only ctx bounds it.
	Timeout time.Duration
	// Depth is the number of blocks, including the tx's own block,
	// required before the tx counts as confirmed.
	Depth uint64
}

// Waiter polls the chain until a transaction is confirmed.
type Waiter struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
}

func NewWaiter(backend Backend, cfg Config) *Waiter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Depth == 0 {
		cfg.Depth = 1
	}
	return &Waiter{
		backend: backend,
		cfg:     cfg,
		logger:  slog.Default().With("component", "confirm"),
	}
}

// Wait blocks until txHash is mined with enough depth, reverted, or the
// wait times out. Transient RPC errors are logged and polling continues.
// A reverted tx yields models.ErrCallReverted; a timeout yields
// models.ErrConfirmationTimeout.
func (w *Waiter) Wait(ctx context.Context, txHash common.Hash) (*models.Receipt, error) {
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	t := &tracker{hash: txHash}
	for {
		receipt, err := w.poll(ctx, t)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, t.waitErr(ctx.Err())
		case <-ticker.C:
		}
	}
}

// tracker remembers what earlier polls saw for one transaction.
type tracker struct {
	hash common.Hash
	// blockHash is the block the receipt was last seen in; a change means
	// the chain reorganized under the tx.
	blockHash common.Hash
	lastErr   error
}

func (t *tracker) waitErr(ctxErr error) error {
	if !errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("wait %s: %w", t.hash.Hex(), ctxErr)
	}
	if t.lastErr != nil {
		return fmt.Errorf("wait %s: %w (last error: %v)", t.hash.Hex(), models.ErrConfirmationTimeout, t.lastErr)
	}
	return fmt.Errorf("wait %s: %w", t.hash.Hex(), models.ErrConfirmationTimeout)
}

// poll returns a receipt once the tx is confirmed, (nil, nil) to keep
// waiting, or a terminal error.
func (w *Waiter) poll(ctx context.Context, t *tracker) (*models.Receipt, error) {
	r, err := w.backend.TransactionReceipt(ctx, t.hash)
	if errors.Is(err, ethereum.NotFound) {
		if t.blockHash != (common.Hash{}) {
			w.logger.Warn("receipt disappeared, chain reorganization", "tx", t.hash.Hex(), "old_block", t.blockHash.Hex())
			t.blockHash = common.Hash{}
		}
		w.logger.Debug("transaction not yet mined", "tx", t.hash.Hex())
		return nil, nil
	}
	if err != nil {
		if ctx.Err() == nil {
			t.lastErr = err
			w.logger.Error("receipt poll failed", "tx", t.hash.Hex(), "error", err)
		}
		return nil, nil
	}

	if t.blockHash != (common.Hash{}) && t.blockHash != r.BlockHash {
		w.logger.Warn("chain reorganization detected",
			"tx", t.hash.Hex(),
			"old_block", t.blockHash.Hex(),
			"new_block", r.BlockHash.Hex(),
		)
	}
	t.blockHash = r.BlockHash

	if r.Status == types.ReceiptStatusFailed {
		return nil, fmt.Errorf("tx %s in block %d: %w", t.hash.Hex(), r.BlockNumber.Uint64(), models.ErrCallReverted)
	}

	block := r.BlockNumber.Uint64()
	if w.cfg.Depth > 1 {
		head, err := w.backend.BlockNumber(ctx)
		if err != nil {
			if ctx.Err() == nil {
				t.lastErr = err
				w.logger.Error("head poll failed", "error", err)
			}
			return nil, nil
		}
		if head < block || head-block+1 < w.cfg.Depth {
			w.logger.Debug("awaiting confirmation depth",
				"tx", t.hash.Hex(),
				"block", block,
				"head", head,
				"depth", w.cfg.Depth,
			)
			return nil, nil
		}
	}

	w.logger.Info("transaction confirmed",
		"tx", t.hash.Hex(),
		"block", block,
		"gas_used", r.GasUsed,
	)
	return &models.Receipt{
		TxHash:      t.hash.Hex(),
		BlockNumber: block,
		BlockHash:   r.BlockHash.Hex(),
		GasUsed:     r.GasUsed,
	}, nil
}
