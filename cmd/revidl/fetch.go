package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/rangesecurity/reverse-idl-parser/idl"
	"github.com/rangesecurity/reverse-idl-parser/logger"
	"github.com/rangesecurity/reverse-idl-parser/storage"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch and decode on-chain data",
	}
	cmd.AddCommand(newFetchAccountCmd(), newFetchProgramCmd(), newFetchIDLCmd(), newFetchTransactionsCmd())
	return cmd
}

func newFetchTransactionsCmd() *cobra.Command {
	var idlPath, program string
	var limit int
	var showHidden bool

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "Decode the most recent transactions of a program",
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := idl.CompileFile(idlPath)
			if err != nil {
				return err
			}
			programID, err := solana.PublicKeyFromBase58(program)
			if err != nil {
				return fmt.Errorf("bad program address: %w", err)
			}
			c, cfg, err := newClientFromConfig()
			if err != nil {
				return err
			}

			decoded, err := c.DecodeRecentTransactions(cmd.Context(), programID, prog, limit, idl.DecodeOptions{
				ShowHidden: showHidden || cfg.ShowHidden,
			})
			if err != nil {
				return err
			}
			logger.Success("RPC", "decoded %d transactions of %s", len(decoded), prog.Name)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(decoded)
		},
	}
	cmd.Flags().StringVar(&idlPath, "idl", "", "path to the IDL JSON file")
	cmd.Flags().StringVar(&program, "program", "", "program address")
	cmd.Flags().IntVar(&limit, "limit", 25, "how many transactions to walk")
	cmd.Flags().BoolVar(&showHidden, "show-hidden", false, "include hidden fields in the output")
	cmd.MarkFlagRequired("idl")
	cmd.MarkFlagRequired("program")
	return cmd
}

func newFetchAccountCmd() *cobra.Command {
	var idlPath, address string
	var showHidden bool

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Fetch one account and decode it",
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := idl.CompileFile(idlPath)
			if err != nil {
				return err
			}
			pubkey, err := solana.PublicKeyFromBase58(address)
			if err != nil {
				return fmt.Errorf("bad account address: %w", err)
			}
			c, cfg, err := newClientFromConfig()
			if err != nil {
				return err
			}

			data, err := c.FetchAccountData(cmd.Context(), pubkey)
			if err != nil {
				return err
			}
			logger.RPC("fetched %d bytes from %s", len(data), pubkey)

			parsed, err := prog.DecodeAccount(data, idl.DecodeOptions{
				ShowHidden: showHidden || cfg.ShowHidden,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(parsed)
		},
	}
	cmd.Flags().StringVar(&idlPath, "idl", "", "path to the IDL JSON file")
	cmd.Flags().StringVar(&address, "address", "", "account address to fetch")
	cmd.Flags().BoolVar(&showHidden, "show-hidden", false, "include hidden fields in the output")
	cmd.MarkFlagRequired("idl")
	cmd.MarkFlagRequired("address")
	return cmd
}

func newFetchProgramCmd() *cobra.Command {
	var idlPath, program string
	var showHidden bool

	cmd := &cobra.Command{
		Use:   "program",
		Short: "Fetch and decode every declared account type of a program",
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := idl.CompileFile(idlPath)
			if err != nil {
				return err
			}
			programID, err := solana.PublicKeyFromBase58(program)
			if err != nil {
				return fmt.Errorf("bad program address: %w", err)
			}
			c, cfg, err := newClientFromConfig()
			if err != nil {
				return err
			}

			decoded, err := c.DecodeProgramAccounts(cmd.Context(), programID, prog, idl.DecodeOptions{
				ShowHidden: showHidden || cfg.ShowHidden,
			})
			if err != nil {
				return err
			}
			logger.Success("RPC", "decoded %d accounts of %s", len(decoded), prog.Name)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(decoded)
		},
	}
	cmd.Flags().StringVar(&idlPath, "idl", "", "path to the IDL JSON file")
	cmd.Flags().StringVar(&program, "program", "", "program address")
	cmd.Flags().BoolVar(&showHidden, "show-hidden", false, "include hidden fields in the output")
	cmd.MarkFlagRequired("idl")
	cmd.MarkFlagRequired("program")
	return cmd
}

func newFetchIDLCmd() *cobra.Command {
	var program string
	var noCache bool

	cmd := &cobra.Command{
		Use:   "idl",
		Short: "Download the on-chain IDL of a program",
		RunE: func(cmd *cobra.Command, args []string) error {
			programID, err := solana.PublicKeyFromBase58(program)
			if err != nil {
				return fmt.Errorf("bad program address: %w", err)
			}
			store, err := storage.NewIDLStore(flagConfigDir)
			if err != nil {
				return err
			}

			var raw json.RawMessage
			if !noCache {
				if cached, err := store.GetIDL(program); err == nil {
					logger.Info("CACHE", "using cached IDL for %s", program)
					raw = cached
				}
			}

			if raw == nil {
				c, _, err := newClientFromConfig()
				if err != nil {
					return err
				}
				raw, err = c.FetchIDL(cmd.Context(), programID)
				if err != nil {
					return err
				}
				if err := store.SaveIDL(program, raw); err != nil {
					logger.Warn("CACHE", "failed to cache IDL: %v", err)
				}
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "", "  "); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&program, "program", "", "program address")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "always refetch, skip the local cache")
	cmd.MarkFlagRequired("program")
	return cmd
}
