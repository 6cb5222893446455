package main

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/rangesecurity/reverse-idl-parser/idl"
	"github.com/rangesecurity/reverse-idl-parser/logger"
	"github.com/rangesecurity/reverse-idl-parser/schema"
)

type entryListing struct {
	Name          string       `json:"name"`
	Discriminator string       `json:"discriminator"`
	Schema        *schema.Type `json:"schema"`
}

type programListing struct {
	Name         string         `json:"name"`
	Accounts     []entryListing `json:"accounts"`
	Instructions []entryListing `json:"instructions"`
	Events       []entryListing `json:"events"`
}

func newCompileCmd() *cobra.Command {
	var idlPath, outPath string

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile an IDL file into its binary layout schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := idl.CompileFile(idlPath)
			if err != nil {
				return err
			}
			logger.IDL("compiled %s: %d accounts, %d instructions, %d events",
				prog.Name, len(prog.Accounts()), len(prog.Instructions()), len(prog.Events()))

			if outPath != "" {
				raw, err := prog.MarshalBinary()
				if err != nil {
					return err
				}
				if err := os.WriteFile(outPath, raw, 0644); err != nil {
					return err
				}
				logger.Success("IDL", "wrote %d bytes to %s", len(raw), outPath)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(listProgram(prog))
		},
	}
	cmd.Flags().StringVar(&idlPath, "idl", "", "path to the IDL JSON file")
	cmd.Flags().StringVar(&outPath, "out", "", "write the serialized program to this file")
	cmd.MarkFlagRequired("idl")
	return cmd
}

func listProgram(prog *idl.Program) programListing {
	out := programListing{
		Name:         prog.Name,
		Accounts:     make([]entryListing, 0, len(prog.Accounts())),
		Instructions: make([]entryListing, 0, len(prog.Instructions())),
		Events:       make([]entryListing, 0, len(prog.Events())),
	}
	for _, e := range prog.Accounts() {
		out.Accounts = append(out.Accounts, entryListing{
			Name:          e.Name,
			Discriminator: discHex(e.Key, prog.AccountDiscLen),
			Schema:        e.Node.Type,
		})
	}
	for _, e := range prog.Instructions() {
		out.Instructions = append(out.Instructions, entryListing{
			Name:          e.Name,
			Discriminator: discHex(e.Key, prog.InstructionDiscLen),
			Schema:        e.Node.Type,
		})
	}
	for _, e := range prog.Events() {
		out.Events = append(out.Events, entryListing{
			Name:          e.Name,
			Discriminator: discHex(e.Key, prog.EventDiscLen),
			Schema:        e.Node.Type,
		})
	}
	return out
}

// discHex renders the wire prefix of a discriminator key, at most
// eight bytes.
func discHex(key uint64, length uint8) string {
	n := int(length)
	if n > 8 {
		n = 8
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, key)
	return "0x" + hex.EncodeToString(buf[:n])
}
