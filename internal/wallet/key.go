package wallet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/howeyc/gopass"
	"github.com/tyler-smith/go-bip39"

	"github.com/OKaluzny/voting-dapp/pkg/models"
)

// KeyConnector connects with a raw hex-encoded secp256k1 private key.
type KeyConnector struct {
	HexKey string
}

func (c *KeyConnector) Connect(ctx context.Context) (*Identity, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(c.HexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConnectionRejected, err)
	}
	return NewIdentity(key, crypto.PubkeyToAddress(key.PublicKey)), nil
}

// PromptConnector asks the user for a mnemonic or private key every time
// Connect is called. An empty answer means the user declined.
type PromptConnector struct {
	// Index is the account index used when the answer is a mnemonic.
	Index uint32
	// Prompt reads one secret line. Defaults to a masked terminal prompt.
	Prompt func(prompt string) ([]byte, error)
}

// NewTerminalConnector prompts on in/out without echoing the secret.
func NewTerminalConnector(in gopass.FdReader, out io.Writer, index uint32) *PromptConnector {
	return &PromptConnector{
		Index: index,
		Prompt: func(prompt string) ([]byte, error) {
			return gopass.GetPasswdPrompt(prompt, true, in, out)
		},
	}
}

func (c *PromptConnector) Connect(ctx context.Context) (*Identity, error) {
	if c.Prompt == nil {
		return nil, models.ErrNoProviderAvailable
	}
	answer, err := c.Prompt("Mnemonic or private key (empty to cancel): ")
	if err != nil {
		if errors.Is(err, gopass.ErrInterrupted) {
			return nil, fmt.Errorf("%w: prompt interrupted", models.ErrConnectionRejected)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrNoProviderAvailable, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	secret := strings.TrimSpace(string(answer))
	switch {
	case secret == "":
		return nil, fmt.Errorf("%w: cancelled by user", models.ErrConnectionRejected)
	case len(strings.Fields(secret)) > 1 || bip39.IsMnemonicValid(secret):
		return (&MnemonicConnector{Mnemonic: secret, Index: c.Index}).Connect(ctx)
	default:
		return (&KeyConnector{HexKey: secret}).Connect(ctx)
	}
}
