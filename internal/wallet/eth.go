package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/sha3"

	"github.com/OKaluzny/voting-dapp/pkg/models"
)

// ethCoinType is the SLIP-44 coin type for Ethereum.
const ethCoinType = 60

// MnemonicConnector derives an Ethereum identity from a BIP-39 mnemonic.
// Derivation path: m/44'/60'/0'/0/{Index}
type MnemonicConnector struct {
	Mnemonic   string
	Passphrase string
	Index      uint32
}

// Connect validates the mnemonic and derives the account at Index.
func (c *MnemonicConnector) Connect(ctx context.Context) (*Identity, error) {
	mnemonic := normalizeMnemonic(c.Mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: invalid mnemonic", models.ErrConnectionRejected)
	}
	seed := bip39.NewSeed(mnemonic, c.Passphrase)
	return DeriveIdentity(seed, c.Index)
}

// DerivationPath returns the BIP-44 path used for index.
func DerivationPath(index uint32) string {
	return fmt.Sprintf("m/44'/%d'/0'/0/%d", ethCoinType, index)
}

// DeriveIdentity derives the Ethereum identity at index from a BIP-39 seed.
func DeriveIdentity(seed []byte, index uint32) (*Identity, error) {
	key, err := deriveKey(seed, ethCoinType, index)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	key = common.LeftPadBytes(key, 32)

	// Ethereum address = last 20 bytes of Keccak256(publicKey)
	_, pubKey := btcec.PrivKeyFromBytes(key)
	hash := keccak256(pubKey.SerializeUncompressed()[1:]) // skip 0x04 prefix
	address := common.BytesToAddress(hash[12:])

	ecdsaKey, err := crypto.ToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("ecdsa key: %w", err)
	}
	id := NewIdentity(ecdsaKey, address)
	id.Path = DerivationPath(index)
	return id, nil
}

// deriveKey derives a child private key from a BIP-39 seed using BIP-32/BIP-44.
// Path: m/44'/{coinType}'/0'/0/{index}
func deriveKey(seed []byte, coinType uint32, index uint32) ([]byte, error) {
	masterKey, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}

	path := []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + coinType,
		bip32.FirstHardenedChild + 0,
		0,
		index,
	}
	k := masterKey
	for depth, child := range path {
		k, err = k.NewChildKey(child)
		if err != nil {
			return nil, fmt.Errorf("derive level %d: %w", depth+1, err)
		}
	}
	return k.Key, nil
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

func normalizeMnemonic(m string) string {
	return strings.Join(strings.Fields(strings.ToLower(m)), " ")
}
