package idl

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	bin "github.com/gagliardetto/binary"

	"github.com/rangesecurity/reverse-idl-parser/schema"
)

// Wire form of a compiled program: name, the three discriminator
// lengths, then the account, instruction, event and type tables. Each
// table is u64-count-prefixed and sorted (entries by key, types by
// name) so the encoding is deterministic.

// MarshalBinary renders the program in its storable wire form.
func (p *Program) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := writeWireString(enc, p.Name); err != nil {
		return nil, err
	}
	for _, l := range []uint8{p.AccountDiscLen, p.InstructionDiscLen, p.EventDiscLen} {
		if err := enc.WriteUint8(l); err != nil {
			return nil, err
		}
	}

	if err := writeEntries(enc, sortedEntries(p.accounts)); err != nil {
		return nil, err
	}

	instructions := append([]InstructionEntry(nil), p.instructions...)
	sort.Slice(instructions, func(i, j int) bool { return instructions[i].Key < instructions[j].Key })
	if err := enc.WriteUint64(uint64(len(instructions)), binary.LittleEndian); err != nil {
		return nil, err
	}
	for _, e := range instructions {
		if err := writeEntry(enc, e.Entry); err != nil {
			return nil, err
		}
		if err := enc.WriteUint64(uint64(len(e.Accounts)), binary.LittleEndian); err != nil {
			return nil, err
		}
		for _, name := range e.Accounts {
			if err := writeWireString(enc, name); err != nil {
				return nil, err
			}
		}
	}

	if err := writeEntries(enc, sortedEntries(p.events)); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(p.types))
	for name := range p.types {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := enc.WriteUint64(uint64(len(names)), binary.LittleEndian); err != nil {
		return nil, err
	}
	for _, name := range names {
		if err := writeWireString(enc, name); err != nil {
			return nil, err
		}
		if err := schema.EncodeType(enc, p.types[name]); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary parses a program from its wire form.
func (p *Program) UnmarshalBinary(data []byte) error {
	dec := bin.NewBorshDecoder(data)

	name, err := readWireString(dec)
	if err != nil {
		return err
	}
	p.Name = name
	if p.AccountDiscLen, err = dec.ReadUint8(); err != nil {
		return err
	}
	if p.InstructionDiscLen, err = dec.ReadUint8(); err != nil {
		return err
	}
	if p.EventDiscLen, err = dec.ReadUint8(); err != nil {
		return err
	}

	if p.accounts, err = readEntries(dec); err != nil {
		return err
	}

	n, err := readWireCount(dec)
	if err != nil {
		return err
	}
	p.instructions = nil
	for i := 0; i < n; i++ {
		entry, err := readEntry(dec)
		if err != nil {
			return err
		}
		count, err := readWireCount(dec)
		if err != nil {
			return err
		}
		var accounts []string
		for j := 0; j < count; j++ {
			name, err := readWireString(dec)
			if err != nil {
				return err
			}
			accounts = append(accounts, name)
		}
		p.instructions = append(p.instructions, InstructionEntry{Entry: entry, Accounts: accounts})
	}

	if p.events, err = readEntries(dec); err != nil {
		return err
	}

	n, err = readWireCount(dec)
	if err != nil {
		return err
	}
	p.types = make(map[string]*schema.Type, n)
	for i := 0; i < n; i++ {
		name, err := readWireString(dec)
		if err != nil {
			return err
		}
		typ, err := schema.DecodeType(dec)
		if err != nil {
			return err
		}
		p.types[name] = typ
	}

	if dec.Remaining() != 0 {
		return fmt.Errorf("%d trailing bytes after program", dec.Remaining())
	}
	return nil
}

// validate round-trips the program through its wire form and requires
// a structurally identical result.
func (p *Program) validate() error {
	wire, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to serialize program: %w", err)
	}
	back := new(Program)
	if err := back.UnmarshalBinary(wire); err != nil {
		return fmt.Errorf("failed to reparse program: %w", err)
	}
	if !p.equal(back) {
		return fmt.Errorf("program changed across a wire round trip")
	}
	return nil
}

func (p *Program) equal(o *Program) bool {
	if p.Name != o.Name ||
		p.AccountDiscLen != o.AccountDiscLen ||
		p.InstructionDiscLen != o.InstructionDiscLen ||
		p.EventDiscLen != o.EventDiscLen {
		return false
	}
	if !entriesEqual(sortedEntries(p.accounts), sortedEntries(o.accounts)) {
		return false
	}
	if !entriesEqual(sortedEntries(p.events), sortedEntries(o.events)) {
		return false
	}
	pi := append([]InstructionEntry(nil), p.instructions...)
	oi := append([]InstructionEntry(nil), o.instructions...)
	sort.Slice(pi, func(i, j int) bool { return pi[i].Key < pi[j].Key })
	sort.Slice(oi, func(i, j int) bool { return oi[i].Key < oi[j].Key })
	if len(pi) != len(oi) {
		return false
	}
	for i := range pi {
		if pi[i].Key != oi[i].Key || pi[i].Name != oi[i].Name ||
			!schema.NodeEqual(pi[i].Node, oi[i].Node) {
			return false
		}
		if len(pi[i].Accounts) != len(oi[i].Accounts) {
			return false
		}
		for j := range pi[i].Accounts {
			if pi[i].Accounts[j] != oi[i].Accounts[j] {
				return false
			}
		}
	}
	if len(p.types) != len(o.types) {
		return false
	}
	for name, t := range p.types {
		ot, ok := o.types[name]
		if !ok || !schema.Equal(t, ot) {
			return false
		}
	}
	return true
}

func sortedEntries(entries []Entry) []Entry {
	out := append([]Entry(nil), entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func entriesEqual(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || a[i].Name != b[i].Name || !schema.NodeEqual(a[i].Node, b[i].Node) {
			return false
		}
	}
	return true
}

func writeEntries(enc *bin.Encoder, entries []Entry) error {
	if err := enc.WriteUint64(uint64(len(entries)), binary.LittleEndian); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeEntry(enc, e); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(enc *bin.Encoder, e Entry) error {
	if err := enc.WriteUint64(e.Key, binary.LittleEndian); err != nil {
		return err
	}
	return schema.EncodeNode(enc, e.Node)
}

func readEntries(dec *bin.Decoder) ([]Entry, error) {
	n, err := readWireCount(dec)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for i := 0; i < n; i++ {
		e, err := readEntry(dec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func readEntry(dec *bin.Decoder) (Entry, error) {
	key, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return Entry{}, err
	}
	node, err := schema.DecodeNode(dec)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: key, Name: node.Name, Node: node}, nil
}

func writeWireString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

func readWireString(dec *bin.Decoder) (string, error) {
	n, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return "", err
	}
	if int(n) > dec.Remaining() {
		return "", fmt.Errorf("corrupt string length %d with %d bytes left", n, dec.Remaining())
	}
	raw, err := dec.ReadNBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func readWireCount(dec *bin.Decoder) (int, error) {
	n, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return 0, err
	}
	if n > uint64(dec.Remaining()) {
		return 0, fmt.Errorf("corrupt element count %d with %d bytes left", n, dec.Remaining())
	}
	return int(n), nil
}
