package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rangesecurity/reverse-idl-parser/client"
	"github.com/rangesecurity/reverse-idl-parser/config"
)

var (
	flagConfigDir string
	flagRPC       string
)

func main() {
	root := &cobra.Command{
		Use:   "revidl",
		Short: "Compile Anchor IDLs into binary layout schemas and decode on-chain data",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagConfigDir, "config-dir", defaultConfigDir(), "directory for config and cache files")
	root.PersistentFlags().StringVar(&flagRPC, "rpc", "", "RPC endpoint (overrides the config file)")

	root.AddCommand(newCompileCmd(), newDecodeCmd(), newFetchCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".revidl"
	}
	return filepath.Join(dir, "revidl")
}

// newClientFromConfig builds the RPC client from the config file plus
// any command line overrides.
func newClientFromConfig() (*client.Client, *config.AppConfig, error) {
	cfg, err := config.LoadOrInit(flagConfigDir)
	if err != nil {
		return nil, nil, err
	}
	endpoint := cfg.RpcEndpoint
	if flagRPC != "" {
		endpoint = flagRPC
	}
	c := client.New(endpoint,
		client.WithHeaders(cfg.RpcHeaders),
		client.WithCommitment(cfg.Commitment),
	)
	return c, cfg, nil
}
