package idl

import (
	"encoding/json"
	"fmt"
)

// Document is an Anchor-style IDL as unmarshalled from JSON. Type
// expressions stay raw until compiled.
type Document struct {
	Address      string           `json:"address,omitempty"`
	Version      string           `json:"version,omitempty"`
	Name         string           `json:"name,omitempty"`
	Metadata     *Metadata        `json:"metadata,omitempty"`
	Instructions []InstructionDef `json:"instructions,omitempty"`
	Accounts     []AccountDef     `json:"accounts,omitempty"`
	Events       []EventDef       `json:"events,omitempty"`
	Types        []TypeDef        `json:"types,omitempty"`
	Errors       []ErrorDef       `json:"errors,omitempty"`
}

// Metadata is the IDL metadata block carried by newer documents.
type Metadata struct {
	Name        string `json:"name,omitempty"`
	Version     string `json:"version,omitempty"`
	Spec        string `json:"spec,omitempty"`
	Description string `json:"description,omitempty"`
}

// TypeDef is a named declaration under "types".
type TypeDef struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type,omitempty"`
}

// AccountDef declares a decodable account. Older documents carry the
// declaration inline under "type" instead of referencing "types".
type AccountDef struct {
	Name          string          `json:"name"`
	Discriminant  json.RawMessage `json:"discriminant,omitempty"`
	Discriminator json.RawMessage `json:"discriminator,omitempty"`
	Type          json.RawMessage `json:"type,omitempty"`
}

// InstructionDef declares an instruction: its discriminator, the
// account positions it touches and its argument layout.
type InstructionDef struct {
	Name          string          `json:"name"`
	Discriminant  json.RawMessage `json:"discriminant,omitempty"`
	Discriminator json.RawMessage `json:"discriminator,omitempty"`
	Accounts      []AccountMeta   `json:"accounts,omitempty"`
	Args          []FieldDef      `json:"args,omitempty"`
}

// AccountMeta names one account position of an instruction. Writable
// and Signer are the current spellings; IsMut and IsSigner appear in
// older documents.
type AccountMeta struct {
	Name     string `json:"name"`
	Writable bool   `json:"writable,omitempty"`
	Signer   bool   `json:"signer,omitempty"`
	IsMut    bool   `json:"isMut,omitempty"`
	IsSigner bool   `json:"isSigner,omitempty"`
}

// FieldDef is a named field or argument with a raw type expression.
type FieldDef struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

// EventDef declares an event whose payload layout is the same-named
// entry under "types".
type EventDef struct {
	Name          string          `json:"name"`
	Discriminant  json.RawMessage `json:"discriminant,omitempty"`
	Discriminator json.RawMessage `json:"discriminator,omitempty"`
}

// ErrorDef is one entry of the program error table.
type ErrorDef struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg,omitempty"`
}

// Parse unmarshals an IDL document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse IDL: %w", err)
	}
	return &doc, nil
}

// ProgramName returns the document's name, preferring the legacy root
// field over metadata.
func (d *Document) ProgramName() string {
	if d.Name != "" {
		return d.Name
	}
	if d.Metadata != nil {
		return d.Metadata.Name
	}
	return ""
}
