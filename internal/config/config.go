package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config holds all configurable parameters for the voting client.
type Config struct {
	// Network endpoint and chain
	Network    string
	RPCURL     string
	ChainID    int64
	ChainLabel string

	// Voting contract
	ContractAddress string

	// Confirmation waiting
	PollInterval      time.Duration
	ConfirmTimeout    time.Duration
	ConfirmationDepth uint64

	// Timeout for read calls and submissions
	CallTimeout time.Duration

	// BIP-44 account index used by the mnemonic connector
	DerivationIndex uint32
}

// Preset describes a known network.
type Preset struct {
	ChainID    int64
	ChainLabel string
	// RPCTemplate may contain a single %s filled with INFURA_KEY.
	RPCTemplate string
}

// Presets replaces the per-network app variants with configuration.
var Presets = map[string]Preset{
	"sepolia": {
		ChainID:     0xaa36a7,
		ChainLabel:  "Sepolia",
		RPCTemplate: "https://sepolia.infura.io/v3/%s",
	},
	"localhost": {
		ChainID:     1337,
		ChainLabel:  "Localhost",
		RPCTemplate: "http://127.0.0.1:8545",
	},
}

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		Network:    "sepolia",
		ChainID:    Presets["sepolia"].ChainID,
		ChainLabel: Presets["sepolia"].ChainLabel,

		PollInterval:      2 * time.Second,
		ConfirmTimeout:    5 * time.Minute,
		ConfirmationDepth: 1,

		CallTimeout: 30 * time.Second,
	}
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (Config, error) {
	return LoadNetwork("", envFiles...)
}

// LoadNetwork is Load with network taking precedence over VOTING_NETWORK
// when non-empty.
func LoadNetwork(network string, envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return fromEnv(network)
}

// FromEnv returns a Config populated from environment variables,
// falling back to defaults for unset values. Malformed values are errors.
func FromEnv() (Config, error) {
	return fromEnv("")
}

func fromEnv(network string) (Config, error) {
	cfg := Default()

	if v := os.Getenv("VOTING_NETWORK"); v != "" {
		cfg.Network = strings.ToLower(v)
	}
	if network != "" {
		cfg.Network = strings.ToLower(network)
	}
	explicitChain := os.Getenv("VOTING_CHAIN_ID") != ""
	if err := cfg.applyPreset(os.Getenv("INFURA_KEY"), explicitChain); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("VOTING_RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("VOTING_CONTRACT_ADDRESS"); v != "" {
		cfg.ContractAddress = v
	}
	if v := os.Getenv("VOTING_CHAIN_ID"); v != "" {
		id, err := ParseChainID(v)
		if err != nil {
			return Config{}, err
		}
		cfg.ChainID = id
	}
	if v := os.Getenv("VOTING_CHAIN_LABEL"); v != "" {
		cfg.ChainLabel = v
	}

	var err error
	if cfg.PollInterval, err = durationEnv("VOTING_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if cfg.ConfirmTimeout, err = durationEnv("VOTING_CONFIRM_TIMEOUT", cfg.ConfirmTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CallTimeout, err = durationEnv("VOTING_CALL_TIMEOUT", cfg.CallTimeout); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("VOTING_CONFIRM_DEPTH"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("VOTING_CONFIRM_DEPTH: %w", err)
		}
		cfg.ConfirmationDepth = n
	}
	if v := os.Getenv("VOTING_DERIVATION_INDEX"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("VOTING_DERIVATION_INDEX: %w", err)
		}
		cfg.DerivationIndex = uint32(n)
	}

	return cfg, nil
}

// applyPreset fills chain id, label and RPC URL from the named network.
// An unknown network is only accepted with an explicit chain id.
func (c *Config) applyPreset(infuraKey string, explicitChain bool) error {
	p, ok := Presets[c.Network]
	if !ok {
		if !explicitChain {
			return fmt.Errorf("unknown network %q: use %s or set VOTING_CHAIN_ID", c.Network, strings.Join(presetNames(), ", "))
		}
		c.ChainLabel = c.Network
		return nil
	}
	c.ChainID = p.ChainID
	c.ChainLabel = p.ChainLabel
	if !strings.Contains(p.RPCTemplate, "%s") {
		c.RPCURL = p.RPCTemplate
		return nil
	}
	if infuraKey != "" {
		c.RPCURL = fmt.Sprintf(p.RPCTemplate, infuraKey)
	}
	return nil
}

func presetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate reports the first malformed or missing setting.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("rpc url required (VOTING_RPC_URL or INFURA_KEY)")
	}
	if c.ContractAddress == "" {
		return errors.New("contract address required (VOTING_CONTRACT_ADDRESS)")
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("contract address %q is not a hex address", c.ContractAddress)
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("chain id must be positive, got %d", c.ChainID)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.ConfirmTimeout <= 0 {
		return errors.New("confirmation timeout must be positive")
	}
	if c.CallTimeout <= 0 {
		return errors.New("call timeout must be positive")
	}
	return nil
}

// ChainIDBig returns the chain id as used by transaction signers.
func (c Config) ChainIDBig() *big.Int {
	return big.NewInt(c.ChainID)
}

// ParseChainID accepts decimal ("11155111") or hex ("0xaa36a7") chain ids.
func ParseChainID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("chain id %q: %w", s, err)
	}
	return id, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
