package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/node"
	pkgconfig "trinci-core/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{Use: "trinci"}
	rootCmd.AddCommand(nodeCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(txCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func nodeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "node"}
	cmd.AddCommand(nodeStartCmd())
	return cmd
}

func nodeStartCmd() *cobra.Command {
	var env, genesis string
	start := &cobra.Command{
		Use:   "start",
		Short: "start a core node",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := pkgconfig.Load(env)
			if err != nil {
				return fmt.Errorf("trinci: load config: %w", err)
			}
			cfg := *loaded

			log := logrus.NewEntry(logrus.StandardLogger())
			if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
				logrus.SetLevel(lvl)
			}

			validators := make([]chain.PublicKey, 0, len(cfg.Validator.Trusted))
			for _, hx := range cfg.Validator.Trusted {
				b, err := hex.DecodeString(hx)
				if err != nil {
					return fmt.Errorf("trinci: bad validator key %q: %w", hx, err)
				}
				validators = append(validators, chain.PublicKey(b))
			}

			var signer *ecdsa.PrivateKey
			if cfg.Validator.KeyFile != "" {
				key, err := loadSigner(cfg.Validator.KeyFile)
				if err != nil {
					return err
				}
				signer = key
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			n, err := node.New(ctx, node.Config{
				NetworkName:    cfg.Network.Name,
				ListenAddr:     cfg.Network.ListenAddr,
				DiscoveryTag:   cfg.Network.DiscoveryTag,
				BootstrapPeers: cfg.Network.BootstrapPeers,
				Validators:     validators,
				Signer:         signer,
				GenesisFile:    genesis,
				Log:            log,
			})
			if err != nil {
				return err
			}
			defer n.Close()

			log.Info("node starting")
			return n.Run(ctx)
		},
	}
	start.Flags().StringVar(&env, "env", "", "environment overlay (e.g. bootstrap)")
	start.Flags().StringVar(&genesis, "genesis", "", "YAML genesis fixture to apply on first start")
	return start
}

func txCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tx"}
	cmd.AddCommand(txSubmitCmd())
	return cmd
}

// txSubmitCmd decodes a canonically-encoded transaction file and prints
// its hash. Actually placing it onto a running node's pool needs an RPC
// client talking the dispatcher's unicast wire protocol (spec §6), which
// is out of the CLI shape's scope (spec §1 Non-goals) — this command
// only validates the encoding and reports what hash submission would
// produce.
func txSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <file>",
		Short: "validate a canonically-encoded transaction and print its hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("trinci: read transaction file: %w", err)
			}
			var tx chain.Transaction
			if err := codec.Decode(raw, &tx); err != nil {
				return fmt.Errorf("trinci: decode transaction: %w", err)
			}
			h, err := tx.Hash()
			if err != nil {
				return fmt.Errorf("trinci: hash transaction: %w", err)
			}
			fmt.Println(string(h))
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print the local node's configured network and validator count",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := pkgconfig.Load("")
			if err != nil {
				return fmt.Errorf("trinci: load config: %w", err)
			}
			cfg := *loaded
			fmt.Printf("network: %s\nlisten: %s\nvalidators: %d\n",
				cfg.Network.Name, cfg.Network.ListenAddr, len(cfg.Validator.Trusted))
			return nil
		},
	}
}

// loadSigner reads a PEM-encoded PKCS8 EC private key (spec §3: a
// validator signs blocks with its node keypair).
func loadSigner(path string) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trinci: read signing key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("trinci: %s is not PEM encoded", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("trinci: parse signing key: %w", err)
	}
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("trinci: %s is not an EC private key", path)
	}
	return priv, nil
}
