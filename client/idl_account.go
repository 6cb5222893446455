package client

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"

	"github.com/rangesecurity/reverse-idl-parser/logger"
)

// IDLAddress derives the canonical address Anchor stores a program's
// IDL under: the program's empty-seed PDA extended with the
// "anchor:idl" seed.
func IDLAddress(programID solana.PublicKey) (solana.PublicKey, error) {
	base, _, err := solana.FindProgramAddress([][]byte{}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive IDL base address: %w", err)
	}
	addr, err := solana.CreateWithSeed(base, "anchor:idl", programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive IDL address: %w", err)
	}
	return addr, nil
}

// FetchIDL downloads and inflates the on-chain IDL document of a
// program.
func (c *Client) FetchIDL(ctx context.Context, programID solana.PublicKey) (json.RawMessage, error) {
	addr, err := IDLAddress(programID)
	if err != nil {
		return nil, err
	}
	logger.RPC("fetching IDL account %s", addr)

	data, err := c.FetchAccountData(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("no IDL published for program %s: %w", programID, err)
	}
	return decodeIDLContainer(data)
}

// decodeIDLContainer unpacks the Anchor IDL account layout: an 8-byte
// discriminator, the 32-byte authority, a u32 length and that many
// bytes of zlib-deflated JSON.
func decodeIDLContainer(data []byte) (json.RawMessage, error) {
	const header = 8 + 32 + 4
	if len(data) < header {
		return nil, fmt.Errorf("IDL account data too short: %d bytes", len(data))
	}
	size := binary.LittleEndian.Uint32(data[8+32 : header])
	blob := data[header:]
	if uint32(len(blob)) < size {
		return nil, fmt.Errorf("IDL account data truncated: header says %d bytes, have %d", size, len(blob))
	}
	blob = blob[:size]

	zr, err := zlib.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to inflate IDL: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate IDL: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("inflated IDL is not valid JSON")
	}
	return raw, nil
}
