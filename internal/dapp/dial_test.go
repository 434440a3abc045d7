package dapp

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OKaluzny/voting-dapp/internal/config"
	"github.com/OKaluzny/voting-dapp/pkg/models"
)

const contractAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

type fakeChain struct {
	chainID *big.Int
	code    map[common.Address][]byte
	idErr   error
	codeErr error

	codeQueried bool
}

func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	if f.idErr != nil {
		return nil, f.idErr
	}
	return f.chainID, nil
}

func (f *fakeChain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	f.codeQueried = true
	if f.codeErr != nil {
		return nil, f.codeErr
	}
	return f.code[account], nil
}

func localConfig() config.Config {
	cfg := config.Default()
	cfg.Network = "localhost"
	cfg.ChainID = config.Presets["localhost"].ChainID
	cfg.ChainLabel = config.Presets["localhost"].ChainLabel
	cfg.RPCURL = config.Presets["localhost"].RPCTemplate
	cfg.ContractAddress = contractAddr
	return cfg
}

func deployed() map[common.Address][]byte {
	return map[common.Address][]byte{
		common.HexToAddress(contractAddr): {0x60, 0x80, 0x60, 0x40},
	}
}

func TestCheckChain(t *testing.T) {
	tests := []struct {
		name    string
		chain   *fakeChain
		wantErr error
	}{
		{
			name:  "matching chain with code",
			chain: &fakeChain{chainID: big.NewInt(1337), code: deployed()},
		},
		{
			name:    "chain mismatch",
			chain:   &fakeChain{chainID: big.NewInt(0xaa36a7), code: deployed()},
			wantErr: models.ErrChainMismatch,
		},
		{
			name:    "no code at address",
			chain:   &fakeChain{chainID: big.NewInt(1337), code: map[common.Address][]byte{}},
			wantErr: models.ErrInvalidAddress,
		},
		{
			name:    "chain id unavailable",
			chain:   &fakeChain{idErr: errors.New("connection refused")},
			wantErr: models.ErrNetwork,
		},
		{
			name:    "code unavailable",
			chain:   &fakeChain{chainID: big.NewInt(1337), codeErr: errors.New("timeout")},
			wantErr: models.ErrNetwork,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkChain(context.Background(), tt.chain, localConfig())
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCheckChain_MismatchSkipsCodeLookup(t *testing.T) {
	chain := &fakeChain{chainID: big.NewInt(1), code: deployed()}
	err := checkChain(context.Background(), chain, localConfig())
	require.ErrorIs(t, err, models.ErrChainMismatch)
	assert.Contains(t, err.Error(), "Localhost")
	assert.False(t, chain.codeQueried)
}

func TestDial_InvalidConfig(t *testing.T) {
	cfg := localConfig()
	cfg.ContractAddress = ""
	_, _, err := Dial(context.Background(), cfg, nil)
	assert.Error(t, err)
}
