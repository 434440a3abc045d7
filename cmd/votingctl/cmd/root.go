package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OKaluzny/voting-dapp/internal/config"
	"github.com/OKaluzny/voting-dapp/internal/dapp"
	"github.com/OKaluzny/voting-dapp/internal/wallet"
)

var (
	// envFile is an optional .env file read before the environment.
	envFile string

	// logLevel sets the slog level.
	logLevel string

	// network selects a preset, overriding VOTING_NETWORK.
	network string

	// rpcURL and contractAddress override the environment.
	rpcURL          string
	contractAddress string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "votingctl",
	Short: "Vote on the Voting contract from the terminal",
	Long: `votingctl reads the candidate list of a deployed Voting contract and
submits votes, new candidates and vote resets.

The wallet is taken from VOTING_MNEMONIC or VOTING_PRIVATE_KEY. When neither
is set, votingctl prompts for a mnemonic or private key without echoing it.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the root command until it finishes or the process receives
// an interrupt.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "env file loaded before reading the environment")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default $VOTING_LOG_LEVEL or warn)")
	flags.StringVar(&network, "network", "", "network preset: sepolia, localhost")
	flags.StringVar(&rpcURL, "rpc-url", "", "JSON-RPC endpoint")
	flags.StringVar(&contractAddress, "contract", "", "Voting contract address")

	rootCmd.AddCommand(candidatesCmd, voteCmd, addCmd, resetCmd, consoleCmd)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level := logLevel
	if level == "" {
		level = os.Getenv("VOTING_LOG_LEVEL")
	}
	if level == "" {
		level = "warn"
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// loadConfig reads the env file and environment, then applies flags.
func loadConfig() (config.Config, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.LoadNetwork(network, files...)
	if err != nil {
		return config.Config{}, err
	}
	if rpcURL != "" {
		cfg.RPCURL = rpcURL
	}
	if contractAddress != "" {
		cfg.ContractAddress = contractAddress
	}
	return cfg, nil
}

func newConnector(cfg config.Config) wallet.Connector {
	if m := strings.TrimSpace(os.Getenv("VOTING_MNEMONIC")); m != "" {
		return &wallet.MnemonicConnector{
			Mnemonic:   m,
			Passphrase: os.Getenv("VOTING_MNEMONIC_PASSPHRASE"),
			Index:      cfg.DerivationIndex,
		}
	}
	if k := strings.TrimSpace(os.Getenv("VOTING_PRIVATE_KEY")); k != "" {
		return &wallet.KeyConnector{HexKey: k}
	}
	return wallet.NewTerminalConnector(os.Stdin, os.Stderr, cfg.DerivationIndex)
}

// dial builds a client for the configured network. The caller must call
// the returned close function.
func dial(ctx context.Context) (*dapp.Client, config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	client, closeFn, err := dapp.Dial(ctx, cfg, newConnector(cfg))
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	return client, cfg, closeFn, nil
}

// connected dials and connects the wallet, which also loads the
// candidate list.
func connected(ctx context.Context) (*dapp.Client, config.Config, func(), error) {
	client, cfg, closeFn, err := dial(ctx)
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	if _, err := client.Connect(ctx); err != nil {
		closeFn()
		return nil, config.Config{}, nil, err
	}
	return client, cfg, closeFn, nil
}
