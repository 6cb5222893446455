package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rangesecurity/reverse-idl-parser/internal/testutil"
)

func instructionPrefix() []byte {
	sum := sha256.Sum256([]byte("global:increment"))
	return sum[:8]
}

const counterIDL = `{
	"name": "counter",
	"accounts": [{"name": "Counter", "discriminant": {"type": "u8", "value": 1}}],
	"instructions": [{
		"name": "increment",
		"accounts": [{"name": "counter"}],
		"args": [{"name": "by", "type": "u32"}]
	}],
	"types": [{
		"name": "Counter",
		"type": {"kind": "struct", "fields": [{"name": "count", "type": "u32"}]}
	}]
}`

func writeIDLFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "idl.json")
	if err := os.WriteFile(path, []byte(counterIDL), 0644); err != nil {
		t.Fatalf("Failed to write IDL file: %v", err)
	}
	return path
}

func TestReadDataArg(t *testing.T) {
	// 1. Base64 by default
	data, err := readDataArg(base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), false)
	testutil.AssertNoError(t, err)
	testutil.ExpectBytesEq(t, []byte{1, 2, 3}, data)

	// 2. Hex with an optional 0x prefix
	data, err = readDataArg("0x0102ff", true)
	testutil.AssertNoError(t, err)
	testutil.ExpectBytesEq(t, []byte{1, 2, 0xff}, data)

	// 3. Raw file via @path
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte{9, 9}, 0644); err != nil {
		t.Fatalf("Failed to write data file: %v", err)
	}
	data, err = readDataArg("@"+path, false)
	testutil.AssertNoError(t, err)
	testutil.ExpectBytesEq(t, []byte{9, 9}, data)

	// 4. Bad encodings error out
	_, err = readDataArg("not-base64!!!", false)
	testutil.AssertError(t, err)
	_, err = readDataArg("zz", true)
	testutil.AssertError(t, err)
}

func TestDiscHex(t *testing.T) {
	testutil.ExpectEq(t, "0x0102030405060708", discHex(0x0807060504030201, 8))
	testutil.ExpectEq(t, "0x01", discHex(0x01, 1))
	testutil.ExpectEq(t, "0x", discHex(42, 0))
}

func TestDecodeAccountCommand(t *testing.T) {
	idlPath := writeIDLFile(t)

	cmd := newDecodeCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs([]string{
		"account",
		"--idl", idlPath,
		"--data", base64.StdEncoding.EncodeToString([]byte{1, 7, 0, 0, 0}),
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Failed to run decode: %v", err)
	}
	if !strings.Contains(out.String(), `"count": 7`) {
		t.Errorf("Expected the decoded count in output, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), `"name": "Counter"`) {
		t.Errorf("Expected the account name in output, got:\n%s", out.String())
	}
}

func TestDecodeInstructionCommand(t *testing.T) {
	idlPath := writeIDLFile(t)

	// sha256("global:increment")[..8] followed by the u32 argument
	data := append(instructionPrefix(), 5, 0, 0, 0)

	cmd := newDecodeCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs([]string{
		"instruction",
		"--idl", idlPath,
		"--data", base64.StdEncoding.EncodeToString(data),
		"--accounts", "CounterAddr",
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Failed to run decode: %v", err)
	}
	if !strings.Contains(out.String(), `"by": 5`) {
		t.Errorf("Expected the decoded argument in output, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), `"address": "CounterAddr"`) {
		t.Errorf("Expected the named account in output, got:\n%s", out.String())
	}
}

func TestDecodeTypeCommand(t *testing.T) {
	idlPath := writeIDLFile(t)

	cmd := newDecodeCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs([]string{
		"--idl", idlPath,
		"--type", "Counter",
		"--data", base64.StdEncoding.EncodeToString([]byte{3, 0, 0, 0}),
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Failed to run decode: %v", err)
	}
	if !strings.Contains(out.String(), `"count": 3`) {
		t.Errorf("Expected the decoded type in output, got:\n%s", out.String())
	}
}

func TestCompileCommand(t *testing.T) {
	idlPath := writeIDLFile(t)
	outPath := filepath.Join(t.TempDir(), "program.bin")

	cmd := newCompileCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--idl", idlPath, "--out", outPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Failed to run compile: %v", err)
	}

	if !strings.Contains(out.String(), `"discriminator": "0x01"`) {
		t.Errorf("Expected the account discriminator in output, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), `"count": "u32"`) {
		t.Errorf("Expected the schema listing in output, got:\n%s", out.String())
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("Failed to read serialized program: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("Expected a nonempty serialized program")
	}
}
