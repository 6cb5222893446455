package main

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rangesecurity/reverse-idl-parser/idl"
)

func newDecodeCmd() *cobra.Command {
	var idlPath, dataArg, accountsArg, typeName string
	var hexInput, showHidden bool

	cmd := &cobra.Command{
		Use:   "decode (account|instruction|event)",
		Short: "Decode binary program data against a compiled IDL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := idl.CompileFile(idlPath)
			if err != nil {
				return err
			}
			data, err := readDataArg(dataArg, hexInput)
			if err != nil {
				return err
			}
			opts := idl.DecodeOptions{ShowHidden: showHidden}

			var result any
			switch {
			case typeName != "":
				result, err = prog.DecodeType(typeName, data, opts)
			case len(args) == 0:
				return fmt.Errorf("specify account, instruction or event (or --type)")
			case args[0] == "account":
				result, err = prog.DecodeAccount(data, opts)
			case args[0] == "instruction":
				var keys []string
				if accountsArg != "" {
					keys = strings.Split(accountsArg, ",")
				}
				result, err = prog.DecodeInstruction(data, keys, opts)
			case args[0] == "event":
				result, err = prog.DecodeEvent(data, opts)
			default:
				return fmt.Errorf("unknown decode target %q", args[0])
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&idlPath, "idl", "", "path to the IDL JSON file")
	cmd.Flags().StringVar(&dataArg, "data", "", "data to decode: base64, or @path for a raw binary file")
	cmd.Flags().BoolVar(&hexInput, "hex", false, "treat --data as hex instead of base64")
	cmd.Flags().StringVar(&accountsArg, "accounts", "", "comma separated account addresses of the instruction")
	cmd.Flags().BoolVar(&showHidden, "show-hidden", false, "include hidden fields in the output")
	cmd.Flags().StringVar(&typeName, "type", "", "decode against one named declaration, no discriminator dispatch")
	cmd.MarkFlagRequired("idl")
	cmd.MarkFlagRequired("data")
	return cmd
}

// readDataArg turns the --data argument into raw bytes. A leading @
// reads a raw binary file; otherwise the argument is base64, or hex
// when --hex is set.
func readDataArg(arg string, hexInput bool) ([]byte, error) {
	if strings.HasPrefix(arg, "@") {
		raw, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to read data file: %w", err)
		}
		return raw, nil
	}
	if hexInput {
		raw, err := hex.DecodeString(strings.TrimPrefix(arg, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to decode hex data: %w", err)
		}
		return raw, nil
	}
	raw, err := base64.StdEncoding.DecodeString(arg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 data: %w", err)
	}
	return raw, nil
}
