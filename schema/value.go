package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Value is a decoded node: the name it was decoded under plus its
// typed payload.
type Value struct {
	Name string
	V    TypedValue
}

// TypedValue is the payload of a decoded value, tagged by the schema
// Kind that produced it. Integers narrower than 64 bits are widened
// into U64/I64; the Kind keeps the original width for rendering.
type TypedValue struct {
	Kind Kind

	Bool   bool
	U64    uint64
	I64    int64
	U128   bin.Uint128
	I128   bin.Int128
	F64    float64
	Str    string
	Bytes  []byte
	Pubkey solana.PublicKey

	// Elems holds sequence elements and struct fields (named).
	Elems []Value
	// Inner is the present Option payload or the Enum variant payload;
	// nil means an absent Option.
	Inner *TypedValue
	// Variant is the selected Enum variant name.
	Variant string
}

// MarshalJSON renders the value as {"name": ..., "value": ...}.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name  string     `json:"name"`
		Value TypedValue `json:"value"`
	}{v.Name, v.V})
}

// MarshalJSON renders the payload. Numbers that survive a float64
// round-trip stay native JSON numbers; 64-bit and wider integers and
// all floats are emitted as decimal strings.
func (tv TypedValue) MarshalJSON() ([]byte, error) {
	switch tv.Kind {
	case KindEmpty:
		return json.Marshal("")
	case KindBool:
		return json.Marshal(tv.Bool)
	case KindU8, KindU16, KindU32:
		return json.Marshal(tv.U64)
	case KindI8, KindI16, KindI32:
		return json.Marshal(tv.I64)
	case KindU64:
		return json.Marshal(strconv.FormatUint(tv.U64, 10))
	case KindI64:
		return json.Marshal(strconv.FormatInt(tv.I64, 10))
	case KindU128:
		return json.Marshal(tv.U128.BigInt().String())
	case KindI128:
		return json.Marshal(tv.I128.BigInt().String())
	case KindF32:
		return json.Marshal(strconv.FormatFloat(tv.F64, 'f', -1, 32))
	case KindF64:
		return json.Marshal(strconv.FormatFloat(tv.F64, 'f', -1, 64))
	case KindString:
		return json.Marshal(tv.Str)
	case KindPubkey:
		return json.Marshal(tv.Pubkey.String())
	case KindBytes, KindRemainingBytes:
		nums := make([]uint16, len(tv.Bytes))
		for i, b := range tv.Bytes {
			nums[i] = uint16(b)
		}
		return json.Marshal(nums)
	case KindVector, KindFixedArray, KindTuple, KindSmallVec:
		parts := make([]json.RawMessage, 0, len(tv.Elems))
		for _, el := range tv.Elems {
			b, err := json.Marshal(el.V)
			if err != nil {
				return nil, err
			}
			parts = append(parts, b)
		}
		return json.Marshal(parts)
	case KindStruct:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, f := range tv.Elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(f.Name)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			fv, err := json.Marshal(f.V)
			if err != nil {
				return nil, err
			}
			buf.Write(fv)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case KindOption:
		if tv.Inner == nil {
			return []byte("null"), nil
		}
		return json.Marshal(*tv.Inner)
	case KindEnum:
		if tv.Inner == nil || tv.Inner.Kind == KindEmpty {
			return json.Marshal(tv.Variant)
		}
		return json.Marshal(struct {
			Name  string     `json:"name"`
			Value TypedValue `json:"value"`
		}{tv.Variant, *tv.Inner})
	}
	return nil, fmt.Errorf("cannot render value of kind %s", tv.Kind)
}
