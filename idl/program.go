package idl

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/rangesecurity/reverse-idl-parser/schema"
)

// Entry binds one discriminator key to a named schema.
type Entry struct {
	Key  uint64
	Name string
	Node schema.Node
}

// InstructionEntry additionally carries the declared account order.
type InstructionEntry struct {
	Entry
	Accounts []string
}

// Program is a compiled IDL: every account, instruction and event
// schema plus the resolved type table. Programs are immutable after
// Compile and safe for concurrent decodes.
type Program struct {
	Name               string
	AccountDiscLen     uint8
	InstructionDiscLen uint8
	EventDiscLen       uint8

	accounts     []Entry
	instructions []InstructionEntry
	events       []Entry
	types        map[string]*schema.Type
}

// DecodeOptions control the program decode entry points.
type DecodeOptions struct {
	// ShowHidden includes hidden schema nodes in the output.
	ShowHidden bool
}

// ParsedAccount is a decoded account: its schema and value side by
// side.
type ParsedAccount struct {
	Name   string            `json:"name"`
	Schema *schema.Type      `json:"schema"`
	Value  schema.TypedValue `json:"value"`
}

// ParsedInstruction is a decoded instruction invocation.
type ParsedInstruction struct {
	Name     string            `json:"name"`
	Accounts []NamedAccount    `json:"accounts"`
	Schema   *schema.Type      `json:"schema"`
	Value    schema.TypedValue `json:"value"`
}

// NamedAccount pairs a declared account role with the address it was
// invoked with.
type NamedAccount struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// ParsedEvent is a decoded event payload.
type ParsedEvent struct {
	Name   string            `json:"name"`
	Schema *schema.Type      `json:"schema"`
	Value  schema.TypedValue `json:"value"`
}

// Accounts returns the compiled account entries in declaration order.
func (p *Program) Accounts() []Entry { return p.accounts }

// Instructions returns the compiled instruction entries in declaration
// order.
func (p *Program) Instructions() []InstructionEntry { return p.instructions }

// Events returns the compiled event entries in declaration order.
func (p *Program) Events() []Entry { return p.events }

// ResolveType returns the declaration compiled under name, satisfying
// schema.Resolver for Defined leaves.
func (p *Program) ResolveType(name string) (*schema.Node, error) {
	t, ok := p.types[name]
	if !ok {
		return nil, &schema.DecodeError{Code: schema.ErrUnresolvedType, Name: name}
	}
	n := schema.NewNode(name, t)
	return &n, nil
}

// DecodeAccount matches data's discriminator against the compiled
// account schemas and decodes the remainder.
func (p *Program) DecodeAccount(data []byte, opts DecodeOptions) (*ParsedAccount, error) {
	entry, err := findEntry(p.accounts, data, int(p.AccountDiscLen))
	if err != nil {
		return nil, err
	}
	val, err := p.decodeEntry(entry.Node, data, int(p.AccountDiscLen), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", entry.Name, err)
	}
	return &ParsedAccount{Name: entry.Name, Schema: entry.Node.Type, Value: val.V}, nil
}

// DecodeInstruction matches data's discriminator against the compiled
// instruction schemas and decodes the arguments. The given account
// addresses are positionally matched to the declared account names;
// positions past the declaration list fall back to "Account N".
func (p *Program) DecodeInstruction(data []byte, accountKeys []string, opts DecodeOptions) (*ParsedInstruction, error) {
	entry, err := p.findInstruction(data)
	if err != nil {
		return nil, err
	}
	val, err := p.decodeEntry(entry.Node, data, int(p.InstructionDiscLen), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to decode instruction %s: %w", entry.Name, err)
	}
	accounts := make([]NamedAccount, 0, len(accountKeys))
	for i, key := range accountKeys {
		name := fmt.Sprintf("Account %d", i+1)
		if i < len(entry.Accounts) {
			name = entry.Accounts[i]
		}
		accounts = append(accounts, NamedAccount{Name: name, Address: key})
	}
	return &ParsedInstruction{
		Name:     entry.Name,
		Accounts: accounts,
		Schema:   entry.Node.Type,
		Value:    val.V,
	}, nil
}

// DecodeEvent matches data's discriminator against the compiled event
// schemas and decodes the payload.
func (p *Program) DecodeEvent(data []byte, opts DecodeOptions) (*ParsedEvent, error) {
	entry, err := findEntry(p.events, data, int(p.EventDiscLen))
	if err != nil {
		return nil, err
	}
	val, err := p.decodeEntry(entry.Node, data, int(p.EventDiscLen), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to decode event %s: %w", entry.Name, err)
	}
	return &ParsedEvent{Name: entry.Name, Schema: entry.Node.Type, Value: val.V}, nil
}

// DecodeType decodes data against the named declaration, with no
// discriminator prefix.
func (p *Program) DecodeType(name string, data []byte, opts DecodeOptions) (*schema.Value, error) {
	node, err := p.ResolveType(name)
	if err != nil {
		return nil, err
	}
	val, _, err := schema.Decode(*node, data, schema.DecodeOptions{
		ShowHidden: opts.ShowHidden,
		Resolver:   p,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode type %s: %w", name, err)
	}
	return val, nil
}

// AccountDiscriminatorBytes returns the wire prefix of the named
// account type, usable as an offset-zero memcmp filter. At most the
// first eight bytes of wider discriminators are reproduced.
func (p *Program) AccountDiscriminatorBytes(name string) ([]byte, error) {
	for i := range p.accounts {
		if p.accounts[i].Name == name {
			n := int(p.AccountDiscLen)
			if n > 8 {
				n = 8
			}
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, p.accounts[i].Key)
			return buf[:n], nil
		}
	}
	return nil, fmt.Errorf("no account type named %q", name)
}

func (p *Program) decodeEntry(node schema.Node, data []byte, discLen int, opts DecodeOptions) (*schema.Value, error) {
	val, _, err := schema.Decode(node, data, schema.DecodeOptions{
		DiscriminatorLen: discLen,
		ShowHidden:       opts.ShowHidden,
		Resolver:         p,
	})
	return val, err
}

func findEntry(entries []Entry, data []byte, discLen int) (*Entry, error) {
	key, err := discKey(data, discLen)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Key == key {
			return &entries[i], nil
		}
	}
	return nil, unknownDiscriminator(data, discLen)
}

func (p *Program) findInstruction(data []byte) (*InstructionEntry, error) {
	key, err := discKey(data, int(p.InstructionDiscLen))
	if err != nil {
		return nil, err
	}
	for i := range p.instructions {
		if p.instructions[i].Key == key {
			return &p.instructions[i], nil
		}
	}
	return nil, unknownDiscriminator(data, int(p.InstructionDiscLen))
}

// discKey packs the first discLen bytes of data into the lookup key,
// little-endian, comparing at most eight bytes.
func discKey(data []byte, discLen int) (uint64, error) {
	if len(data) < discLen {
		return 0, &schema.DecodeError{
			Code:   schema.ErrTruncatedBuffer,
			Needed: discLen,
			Have:   len(data),
		}
	}
	return packKey(data[:discLen]), nil
}

func unknownDiscriminator(data []byte, discLen int) error {
	if discLen > 8 {
		discLen = 8
	}
	return &schema.DecodeError{
		Code: schema.ErrUnknownDiscriminator,
		Name: "0x" + hex.EncodeToString(data[:discLen]),
	}
}
