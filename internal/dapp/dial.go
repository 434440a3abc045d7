package dapp

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/OKaluzny/voting-dapp/internal/config"
	"github.com/OKaluzny/voting-dapp/internal/confirm"
	"github.com/OKaluzny/voting-dapp/internal/contract"
	"github.com/OKaluzny/voting-dapp/internal/storage"
	"github.com/OKaluzny/voting-dapp/internal/wallet"
	"github.com/OKaluzny/voting-dapp/pkg/models"
)

// Dial validates cfg, connects to the RPC endpoint and checks that it
// serves the configured chain and contract. Every error here is a startup
// error. The returned close function releases the RPC connection.
func Dial(ctx context.Context, cfg config.Config, connector wallet.Connector) (*Client, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	iface, err := contract.VotingInterface()
	if err != nil {
		return nil, nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()

	eth, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w: %w", cfg.ChainLabel, models.ErrNetwork, err)
	}
	if err := checkChain(dialCtx, eth, cfg); err != nil {
		eth.Close()
		return nil, nil, err
	}

	waiter := confirm.NewWaiter(eth, confirm.Config{
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.ConfirmTimeout,
		Depth:        cfg.ConfirmationDepth,
	})
	binder := func(id *wallet.Identity) (contract.Proxy, error) {
		b, err := contract.Bind(eth, id, cfg.ContractAddress, iface, cfg.ChainIDBig(), waiter)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	client := New(wallet.NewSession(connector), binder, storage.NewMemoryOperationStore(), cfg.CallTimeout)
	return client, eth.Close, nil
}

// chainReader is what Dial asks the node before handing out a client.
// *ethclient.Client satisfies it.
type chainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

func checkChain(ctx context.Context, eth chainReader, cfg config.Config) error {
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w: %w", models.ErrNetwork, err)
	}
	if chainID.Cmp(cfg.ChainIDBig()) != 0 {
		return fmt.Errorf("%w: endpoint reports chain %s, configured %d (%s)",
			models.ErrChainMismatch, chainID, cfg.ChainID, cfg.ChainLabel)
	}

	code, err := eth.CodeAt(ctx, common.HexToAddress(cfg.ContractAddress), nil)
	if err != nil {
		return fmt.Errorf("contract code: %w: %w", models.ErrNetwork, err)
	}
	if len(code) == 0 {
		return fmt.Errorf("%w: no contract deployed at %s on %s", models.ErrInvalidAddress, cfg.ContractAddress, cfg.ChainLabel)
	}
	return nil
}
