package idl

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rangesecurity/reverse-idl-parser/internal/testutil"
	"github.com/rangesecurity/reverse-idl-parser/schema"
)

func compileErr(t *testing.T, src string) *CompileError {
	t.Helper()
	_, err := CompileJSON([]byte(src))
	if err == nil {
		t.Fatal("Expected a compile error, got nil")
	}
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected a CompileError, got %T: %v", err, err)
	}
	return ce
}

func mustCompile(t *testing.T, src string) *Program {
	t.Helper()
	p, err := CompileJSON([]byte(src))
	if err != nil {
		t.Fatalf("Failed to compile: %v", err)
	}
	return p
}

func TestCamelToSnake(t *testing.T) {
	cases := []struct{ in, want string }{
		{"transfer", "transfer"},
		{"mintV1", "mint_v1"},
		{"CreateTree", "create_tree"},
		{"CancelRedeem", "cancel_redeem"},
		{"NFTMetadataUpdate", "nft_metadata_update"},
		{"initializeV2", "initialize_v2"},
		{"setAuthority", "set_authority"},
	}
	for _, c := range cases {
		if got := camelToSnake(c.in); got != c.want {
			t.Errorf("Expected %q, got %q for input %q", c.want, got, c.in)
		}
	}
}

func TestImplicitDiscriminators(t *testing.T) {
	p := mustCompile(t, `{
		"name": "registry",
		"accounts": [{"name": "Config"}],
		"instructions": [{"name": "createTree"}],
		"events": [{"name": "TreeCreated"}],
		"types": [
			{"name": "Config", "type": {"kind": "struct", "fields": [{"name": "count", "type": "u64"}]}},
			{"name": "TreeCreated", "type": {"kind": "struct", "fields": [{"name": "depth", "type": "u8"}]}}
		]
	}`)

	// 1. Account prefix is sha256("account:Config")[..8]
	sum := sha256.Sum256([]byte("account:Config"))
	got, err := p.AccountDiscriminatorBytes("Config")
	if err != nil {
		t.Fatalf("Failed to build discriminator bytes: %v", err)
	}
	testutil.ExpectBytesEq(t, sum[:8], got)
	testutil.ExpectEq(t, uint8(8), p.AccountDiscLen)

	// 2. Instruction prefix hashes the snake_case name
	sum = sha256.Sum256([]byte("global:create_tree"))
	testutil.ExpectEq(t, binary.LittleEndian.Uint64(sum[:8]), p.Instructions()[0].Key)

	// 3. Event prefix keeps the declared casing
	sum = sha256.Sum256([]byte("event:TreeCreated"))
	testutil.ExpectEq(t, binary.LittleEndian.Uint64(sum[:8]), p.Events()[0].Key)
}

func TestExplicitDiscriminatorForms(t *testing.T) {
	// 1. Object form with a u8 tag
	p := mustCompile(t, `{
		"name": "tagged",
		"accounts": [
			{"name": "A", "discriminant": {"type": "u8", "value": 3}},
			{"name": "B", "discriminant": {"type": "u8", "value": 4}}
		],
		"types": [
			{"name": "A", "type": {"kind": "struct", "fields": []}},
			{"name": "B", "type": {"kind": "struct", "fields": []}}
		]
	}`)
	testutil.ExpectEq(t, uint8(1), p.AccountDiscLen)
	testutil.ExpectEq(t, uint64(3), p.Accounts()[0].Key)

	// 2. Object form with a u64 value above 2^53 keeps every bit
	p = mustCompile(t, `{
		"name": "wide",
		"accounts": [{"name": "A", "discriminator": {"type": "u64", "value": 9007199254740993}}],
		"types": [{"name": "A", "type": {"kind": "struct", "fields": []}}]
	}`)
	testutil.ExpectEq(t, uint64(9007199254740993), p.Accounts()[0].Key)
	testutil.ExpectEq(t, uint8(8), p.AccountDiscLen)

	// 3. Byte array form: length is the array length, key packs the
	// first eight bytes little-endian
	p = mustCompile(t, `{
		"name": "arr",
		"accounts": [{"name": "A", "discriminator": [1, 2, 3, 4]}],
		"types": [{"name": "A", "type": {"kind": "struct", "fields": []}}]
	}`)
	testutil.ExpectEq(t, uint8(4), p.AccountDiscLen)
	testutil.ExpectEq(t, uint64(0x04030201), p.Accounts()[0].Key)

	// 4. The "discriminant" spelling wins over "discriminator"
	p = mustCompile(t, `{
		"name": "both",
		"accounts": [{"name": "A", "discriminant": {"type": "u8", "value": 1}, "discriminator": {"type": "u8", "value": 9}}],
		"types": [{"name": "A", "type": {"kind": "struct", "fields": []}}]
	}`)
	testutil.ExpectEq(t, uint64(1), p.Accounts()[0].Key)
}

func TestDiscriminatorLengthAgreement(t *testing.T) {
	ce := compileErr(t, `{
		"name": "bad",
		"accounts": [
			{"name": "A", "discriminant": {"type": "u8", "value": 1}},
			{"name": "B", "discriminant": {"type": "u64", "value": 2}}
		],
		"types": [
			{"name": "A", "type": {"kind": "struct", "fields": []}},
			{"name": "B", "type": {"kind": "struct", "fields": []}}
		]
	}`)
	testutil.ExpectEq(t, ErrMalformedDeclaration, ce.Code)
}

func TestDiscriminatorCollision(t *testing.T) {
	ce := compileErr(t, `{
		"name": "bad",
		"accounts": [
			{"name": "A", "discriminant": {"type": "u8", "value": 7}},
			{"name": "B", "discriminant": {"type": "u8", "value": 7}}
		],
		"types": [
			{"name": "A", "type": {"kind": "struct", "fields": []}},
			{"name": "B", "type": {"kind": "struct", "fields": []}}
		]
	}`)
	testutil.ExpectEq(t, ErrMalformedDeclaration, ce.Code)
}

func TestLegacyInlineAccountType(t *testing.T) {
	p := mustCompile(t, `{
		"name": "legacy",
		"accounts": [{
			"name": "Vault",
			"type": {"kind": "struct", "fields": [{"name": "owner", "type": "publicKey"}]}
		}]
	}`)
	out, err := json.Marshal(p.Accounts()[0].Node)
	if err != nil {
		t.Fatalf("Failed to marshal node: %v", err)
	}
	testutil.ExpectNoDiff(t, `{"name":"Vault","type":{"owner":"pubkey"}}`, string(out))

	// a proper declaration with the same name wins over the inline one
	p = mustCompile(t, `{
		"name": "legacy",
		"accounts": [{
			"name": "Vault",
			"type": {"kind": "struct", "fields": [{"name": "owner", "type": "publicKey"}]}
		}],
		"types": [{
			"name": "Vault",
			"type": {"kind": "struct", "fields": [{"name": "balance", "type": "u64"}]}
		}]
	}`)
	out, err = json.Marshal(p.Accounts()[0].Node)
	if err != nil {
		t.Fatalf("Failed to marshal node: %v", err)
	}
	testutil.ExpectNoDiff(t, `{"name":"Vault","type":{"balance":"u64"}}`, string(out))
}

func TestCompileTypeGrammar(t *testing.T) {
	p := mustCompile(t, `{
		"name": "grammar",
		"types": [{
			"name": "Everything",
			"type": {"kind": "struct", "fields": [
				{"name": "key", "type": "pubkey"},
				{"name": "legacyKey", "type": "publicKey"},
				{"name": "label", "type": "string"},
				{"name": "blob", "type": "bytes"},
				{"name": "tail", "type": "bytes_remaining"},
				{"name": "flag", "type": "bool"},
				{"name": "big", "type": "u128"},
				{"name": "hash", "type": "[u8; 32]"},
				{"name": "grid", "type": "[[u8; 2]; 3]"},
				{"name": "prices", "type": {"vec": "u64"}},
				{"name": "memo", "type": {"option": "string"}},
				{"name": "pair", "type": {"array": ["u16", 2]}},
				{"name": "short", "type": {"defined": "SmallVec<u8, u64>"}},
				{"name": "other", "type": {"defined": "Other"}},
				{"name": "other2", "type": {"defined": {"name": "Other"}}}
			]}
		}, {
			"name": "Other",
			"type": {"kind": "struct", "fields": [{"name": "x", "type": "u8"}]}
		}]
	}`)

	node, err := p.ResolveType("Everything")
	if err != nil {
		t.Fatalf("Failed to resolve type: %v", err)
	}
	fields := node.Type.Fields
	testutil.ExpectEq(t, 15, len(fields))
	testutil.ExpectEq(t, schema.KindPubkey, fields[0].Type.Kind)
	testutil.ExpectEq(t, schema.KindPubkey, fields[1].Type.Kind)
	testutil.ExpectEq(t, schema.KindString, fields[2].Type.Kind)
	testutil.ExpectEq(t, schema.KindBytes, fields[3].Type.Kind)
	testutil.ExpectEq(t, schema.KindRemainingBytes, fields[4].Type.Kind)
	testutil.ExpectEq(t, schema.KindBool, fields[5].Type.Kind)
	testutil.ExpectEq(t, schema.KindU128, fields[6].Type.Kind)
	testutil.ExpectEq(t, schema.KindFixedArray, fields[7].Type.Kind)
	testutil.ExpectEq(t, uint64(32), fields[7].Type.Len)
	testutil.ExpectEq(t, schema.KindFixedArray, fields[8].Type.Elem.Kind)
	testutil.ExpectEq(t, uint64(2), fields[8].Type.Elem.Len)
	testutil.ExpectEq(t, schema.KindVector, fields[9].Type.Kind)
	testutil.ExpectEq(t, schema.KindOption, fields[10].Type.Kind)
	testutil.ExpectEq(t, schema.KindFixedArray, fields[11].Type.Kind)
	testutil.ExpectEq(t, schema.KindU16, fields[11].Type.Elem.Kind)
	testutil.ExpectEq(t, schema.KindSmallVec, fields[12].Type.Kind)
	testutil.ExpectEq(t, schema.SmallVecU8, fields[12].Type.Prefix)
	// direct references expand inline
	testutil.ExpectEq(t, schema.KindStruct, fields[13].Type.Kind)
	testutil.ExpectEq(t, schema.KindStruct, fields[14].Type.Kind)
}

func TestCompileEnumPayloads(t *testing.T) {
	p := mustCompile(t, `{
		"name": "enums",
		"types": [{
			"name": "Order",
			"type": {"kind": "enum", "variants": [
				{"name": "None"},
				{"name": "Limit", "fields": [{"name": "price", "type": "u64"}]},
				{"name": "Pair", "fields": ["u64", "bool"]}
			]}
		}]
	}`)
	node, err := p.ResolveType("Order")
	if err != nil {
		t.Fatalf("Failed to resolve type: %v", err)
	}
	variants := node.Type.Variants
	testutil.ExpectEq(t, 3, len(variants))
	testutil.ExpectEq(t, schema.KindEmpty, variants[0].Type.Kind)
	testutil.ExpectEq(t, schema.KindStruct, variants[1].Type.Kind)
	testutil.ExpectEq(t, schema.KindTuple, variants[2].Type.Kind)
	testutil.ExpectEq(t, 2, len(variants[2].Type.Elems))

	ce := compileErr(t, `{
		"name": "bad",
		"types": [{
			"name": "Mixed",
			"type": {"kind": "enum", "variants": [
				{"name": "X", "fields": [{"name": "a", "type": "u8"}, "u64"]}
			]}
		}]
	}`)
	testutil.ExpectEq(t, ErrMalformedDeclaration, ce.Code)
}

func TestCompileErrors(t *testing.T) {
	// 1. Duplicate declaration names
	ce := compileErr(t, `{
		"name": "dup",
		"types": [
			{"name": "A", "type": {"kind": "struct", "fields": []}},
			{"name": "A", "type": {"kind": "struct", "fields": []}}
		]
	}`)
	testutil.ExpectEq(t, ErrDuplicateTypeName, ce.Code)
	testutil.ExpectEq(t, "A", ce.Type)

	// 2. Reference to a missing declaration
	ce = compileErr(t, `{
		"name": "missing",
		"types": [{
			"name": "A",
			"type": {"kind": "struct", "fields": [{"name": "x", "type": {"defined": "Nope"}}]}
		}]
	}`)
	testutil.ExpectEq(t, ErrUnknownTypeName, ce.Code)

	// 3. Unknown bare keyword behaves like a missing declaration
	ce = compileErr(t, `{
		"name": "badword",
		"types": [{
			"name": "A",
			"type": {"kind": "struct", "fields": [{"name": "x", "type": "u7"}]}
		}]
	}`)
	testutil.ExpectEq(t, ErrUnknownTypeName, ce.Code)

	// 4. Unrecognized declaration kind
	ce = compileErr(t, `{
		"name": "badkind",
		"types": [{"name": "A", "type": {"kind": "union", "fields": []}}]
	}`)
	testutil.ExpectEq(t, ErrMalformedDeclaration, ce.Code)

	// 5. Unrecognized expression shape
	ce = compileErr(t, `{
		"name": "badexpr",
		"types": [{
			"name": "A",
			"type": {"kind": "struct", "fields": [{"name": "x", "type": {"map": "u8"}}]}
		}]
	}`)
	testutil.ExpectEq(t, ErrMalformedTypeExpression, ce.Code)

	// 6. Array shorthand with a bad length
	ce = compileErr(t, `{
		"name": "badlen",
		"types": [{
			"name": "A",
			"type": {"kind": "struct", "fields": [{"name": "x", "type": "[u8; many]"}]}
		}]
	}`)
	testutil.ExpectEq(t, ErrMalformedTypeExpression, ce.Code)

	// 7. SmallVec with an unsupported prefix width
	ce = compileErr(t, `{
		"name": "badsv",
		"types": [{
			"name": "A",
			"type": {"kind": "struct", "fields": [{"name": "x", "type": {"defined": "SmallVec<u32, u8>"}}]}
		}]
	}`)
	testutil.ExpectEq(t, ErrMalformedTypeExpression, ce.Code)

	// 8. Generic references are rejected rather than mislaid out
	ce = compileErr(t, `{
		"name": "generic",
		"types": [{
			"name": "A",
			"type": {"kind": "struct", "fields": [{"name": "x", "type": {"defined": {"name": "B", "generics": [{"kind": "type", "type": "u8"}]}}}]}
		}]
	}`)
	testutil.ExpectEq(t, ErrMalformedTypeExpression, ce.Code)
}

func TestCompileRecursion(t *testing.T) {
	// 1. A cycle through a vector is legal and leaves a reference
	p := mustCompile(t, `{
		"name": "tree",
		"types": [{
			"name": "TreeNode",
			"type": {"kind": "struct", "fields": [
				{"name": "value", "type": "u32"},
				{"name": "children", "type": {"vec": {"defined": "TreeNode"}}}
			]}
		}]
	}`)
	node, err := p.ResolveType("TreeNode")
	if err != nil {
		t.Fatalf("Failed to resolve type: %v", err)
	}
	children := node.Type.Fields[1].Type
	testutil.ExpectEq(t, schema.KindVector, children.Kind)
	testutil.ExpectEq(t, schema.KindDefined, children.Elem.Kind)
	testutil.ExpectEq(t, "TreeNode", children.Elem.Name)

	// 2. A cycle through an option is legal
	mustCompile(t, `{
		"name": "list",
		"types": [{
			"name": "ListNode",
			"type": {"kind": "struct", "fields": [
				{"name": "value", "type": "u8"},
				{"name": "next", "type": {"option": {"defined": "ListNode"}}}
			]}
		}]
	}`)

	// 3. Mutual recursion with no boundary anywhere is rejected
	ce := compileErr(t, `{
		"name": "cycle",
		"types": [
			{"name": "A", "type": {"kind": "struct", "fields": [{"name": "b", "type": {"defined": "B"}}]}},
			{"name": "B", "type": {"kind": "struct", "fields": [{"name": "a", "type": {"defined": "A"}}]}}
		]
	}`)
	testutil.ExpectEq(t, ErrUnresolvableRecursion, ce.Code)

	// 4. A fixed array is not a boundary
	ce = compileErr(t, `{
		"name": "cycle",
		"types": [{
			"name": "A",
			"type": {"kind": "struct", "fields": [{"name": "next", "type": {"array": [{"defined": "A"}, 2]}}]}
		}]
	}`)
	testutil.ExpectEq(t, ErrUnresolvableRecursion, ce.Code)

	// 5. A boundary before the definition does not legalize a cycle
	// after it
	ce = compileErr(t, `{
		"name": "cycle",
		"types": [{
			"name": "A",
			"type": {"kind": "struct", "fields": [
				{"name": "tags", "type": {"vec": "u8"}},
				{"name": "next", "type": {"defined": "A"}}
			]}
		}]
	}`)
	testutil.ExpectEq(t, ErrUnresolvableRecursion, ce.Code)
}

func TestCompileRecursiveDecode(t *testing.T) {
	// decode a two-level tree through the compiled resolver
	p := mustCompile(t, `{
		"name": "tree",
		"types": [{
			"name": "TreeNode",
			"type": {"kind": "struct", "fields": [
				{"name": "value", "type": "u8"},
				{"name": "children", "type": {"vec": {"defined": "TreeNode"}}}
			]}
		}]
	}`)

	data := []byte{
		1,          // root value
		2, 0, 0, 0, // two children
		10, 0, 0, 0, 0, // leaf 10
		11, 0, 0, 0, 0, // leaf 11
	}
	val, err := p.DecodeType("TreeNode", data, DecodeOptions{})
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	out, err := json.Marshal(val)
	if err != nil {
		t.Fatalf("Failed to marshal value: %v", err)
	}
	want := `{"name":"TreeNode","value":{"value":1,"children":[{"value":10,"children":[]},{"value":11,"children":[]}]}}`
	testutil.ExpectNoDiff(t, want, string(out))
}
