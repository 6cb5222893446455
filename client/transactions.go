package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rangesecurity/reverse-idl-parser/idl"
	"github.com/rangesecurity/reverse-idl-parser/logger"
)

// DecodedTransaction carries everything of one transaction that the
// program's IDL could explain.
type DecodedTransaction struct {
	Signature    solana.Signature         `json:"signature"`
	Slot         uint64                   `json:"slot"`
	Instructions []*idl.ParsedInstruction `json:"instructions"`
	Events       []*idl.ParsedEvent       `json:"events"`
}

// DecodeTransaction fetches a confirmed transaction and decodes every
// instruction addressed to programID plus every event found in the
// log messages. Entries the IDL cannot explain are logged and skipped.
func (c *Client) DecodeTransaction(ctx context.Context, signature solana.Signature, programID solana.PublicKey, prog *idl.Program, opts idl.DecodeOptions) (*DecodedTransaction, error) {
	version := uint64(0)
	tx, err := c.RpcClient.GetTransaction(
		ctx,
		signature,
		&rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     c.commitment,
			MaxSupportedTransactionVersion: &version,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", signature, err)
	}
	if tx == nil || tx.Transaction == nil {
		return nil, fmt.Errorf("transaction %s not found", signature)
	}

	parsed, err := tx.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction %s: %w", signature, err)
	}

	result := &DecodedTransaction{
		Signature:    signature,
		Slot:         tx.Slot,
		Instructions: make([]*idl.ParsedInstruction, 0),
		Events:       make([]*idl.ParsedEvent, 0),
	}

	// Versioned transactions order their keys as static, then loaded
	// writable, then loaded readonly.
	keys := parsed.Message.AccountKeys
	if tx.Meta != nil {
		keys = append(keys, tx.Meta.LoadedAddresses.Writable...)
		keys = append(keys, tx.Meta.LoadedAddresses.ReadOnly...)
	}

	for _, instr := range parsed.Message.Instructions {
		programIdx := instr.ProgramIDIndex
		if int(programIdx) >= len(keys) || !keys[programIdx].Equals(programID) {
			continue
		}

		accountKeys := make([]string, 0, len(instr.Accounts))
		for _, idx := range instr.Accounts {
			if int(idx) < len(keys) {
				accountKeys = append(accountKeys, keys[idx].String())
			} else {
				accountKeys = append(accountKeys, fmt.Sprintf("unknown[%d]", idx))
			}
		}

		ix, err := prog.DecodeInstruction(instr.Data, accountKeys, opts)
		if err != nil {
			logger.Warn("DECODE", "skipping instruction in %s: %v", signature, err)
			continue
		}
		result.Instructions = append(result.Instructions, ix)
	}

	if tx.Meta != nil {
		for _, payload := range ExtractEventData(tx.Meta.LogMessages) {
			ev, err := prog.DecodeEvent(payload, opts)
			if err != nil {
				// other programs emit event logs in the same transaction
				continue
			}
			result.Events = append(result.Events, ev)
		}
	}

	return result, nil
}

// DecodeRecentTransactions walks the most recent transactions that
// touched programID, newest first, decoding each one. Transactions
// that cannot be fetched are skipped.
func (c *Client) DecodeRecentTransactions(ctx context.Context, programID solana.PublicKey, prog *idl.Program, limit int, opts idl.DecodeOptions) ([]*DecodedTransaction, error) {
	sigs, err := c.RpcClient.GetSignaturesForAddressWithOpts(
		ctx,
		programID,
		&rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: c.commitment,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signatures for %s: %w", programID, err)
	}

	results := make([]*DecodedTransaction, len(sigs))

	var wg sync.WaitGroup
	batchSize := 10
	for i := 0; i < len(sigs); i += batchSize {
		end := i + batchSize
		if end > len(sigs) {
			end = len(sigs)
		}

		for j := i; j < end; j++ {
			wg.Add(1)
			go func(slot int, sig solana.Signature) {
				defer wg.Done()

				decoded, err := c.DecodeTransaction(ctx, sig, programID, prog, opts)
				if err != nil {
					logger.Warn("RPC", "skipping transaction %s: %v", sig, err)
					return
				}
				results[slot] = decoded
			}(j, sigs[j].Signature)
		}

		wg.Wait()
	}

	decoded := make([]*DecodedTransaction, 0, len(results))
	for _, tx := range results {
		if tx != nil {
			decoded = append(decoded, tx)
		}
	}
	return decoded, nil
}

// ExtractEventData pulls the base64 payloads out of "Program data: "
// log lines. Lines that do not carry decodable event data are ignored.
func ExtractEventData(logs []string) [][]byte {
	var payloads [][]byte
	for _, logMsg := range logs {
		if !strings.Contains(logMsg, "Program data: ") {
			continue
		}

		parts := strings.Split(logMsg, "Program data: ")
		if len(parts) < 2 {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		payloads = append(payloads, data)
	}
	return payloads
}
