package schema

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Resolver supplies the declaration behind a Defined reference at
// decode time.
type Resolver interface {
	ResolveType(name string) (*Node, error)
}

// DecodeOptions control a single decode call.
type DecodeOptions struct {
	// DiscriminatorLen bytes are skipped before the walk starts.
	DiscriminatorLen int
	// ShowHidden includes hidden nodes in the returned value tree.
	ShowHidden bool
	// Resolver resolves Defined references; decoding a Defined leaf
	// with a nil Resolver fails with unresolved_type.
	Resolver Resolver
}

// Decode walks node against data and returns the decoded value plus
// the end offset of the walk within data. The buffer is never mutated
// and the cursor only advances; error offsets are relative to the
// first byte after the skipped discriminator.
func Decode(node Node, data []byte, opts DecodeOptions) (*Value, int, error) {
	if opts.DiscriminatorLen > 0 {
		if len(data) < opts.DiscriminatorLen {
			return nil, 0, errTruncated(0, opts.DiscriminatorLen, len(data))
		}
		data = data[opts.DiscriminatorLen:]
	}
	if node.Hidden && !opts.ShowHidden {
		return nil, 0, &DecodeError{Code: ErrHiddenValue, Name: node.Name}
	}
	d := &decoder{dec: bin.NewBorshDecoder(data), opts: opts}
	tv, err := d.decodeType(node.Type)
	if err != nil {
		return nil, 0, err
	}
	end := int(d.dec.Position()) + opts.DiscriminatorLen
	return &Value{Name: node.Name, V: *tv}, end, nil
}

type decoder struct {
	dec  *bin.Decoder
	opts DecodeOptions
}

func (d *decoder) need(n int) error {
	if d.dec.Remaining() < n {
		return errTruncated(int(d.dec.Position()), n, d.dec.Remaining())
	}
	return nil
}

func (d *decoder) readByte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	return d.dec.ReadByte()
}

func (d *decoder) readBytes(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	return d.dec.ReadNBytes(n)
}

func (d *decoder) readLen32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	return d.dec.ReadUint32(binary.LittleEndian)
}

func (d *decoder) decodeType(t *Type) (*TypedValue, error) {
	switch t.Kind {
	case KindEmpty:
		return &TypedValue{Kind: KindEmpty}, nil

	case KindBool:
		off := int(d.dec.Position())
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		if b > 1 {
			return nil, &DecodeError{Code: ErrInvalidBool, Offset: off, Byte: b}
		}
		return &TypedValue{Kind: KindBool, Bool: b == 1}, nil

	case KindU8:
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return &TypedValue{Kind: KindU8, U64: uint64(b)}, nil

	case KindI8:
		if err := d.need(1); err != nil {
			return nil, err
		}
		v, err := d.dec.ReadInt8()
		if err != nil {
			return nil, err
		}
		return &TypedValue{Kind: KindI8, I64: int64(v)}, nil

	case KindU16:
		if err := d.need(2); err != nil {
			return nil, err
		}
		v, err := d.dec.ReadUint16(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		return &TypedValue{Kind: KindU16, U64: uint64(v)}, nil

	case KindI16:
		if err := d.need(2); err != nil {
			return nil, err
		}
		v, err := d.dec.ReadInt16(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		return &TypedValue{Kind: KindI16, I64: int64(v)}, nil

	case KindU32:
		if err := d.need(4); err != nil {
			return nil, err
		}
		v, err := d.dec.ReadUint32(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		return &TypedValue{Kind: KindU32, U64: uint64(v)}, nil

	case KindI32:
		if err := d.need(4); err != nil {
			return nil, err
		}
		v, err := d.dec.ReadInt32(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		return &TypedValue{Kind: KindI32, I64: int64(v)}, nil

	case KindU64:
		if err := d.need(8); err != nil {
			return nil, err
		}
		v, err := d.dec.ReadUint64(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		return &TypedValue{Kind: KindU64, U64: v}, nil

	case KindI64:
		if err := d.need(8); err != nil {
			return nil, err
		}
		v, err := d.dec.ReadInt64(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		return &TypedValue{Kind: KindI64, I64: v}, nil

	case KindU128:
		if err := d.need(16); err != nil {
			return nil, err
		}
		v, err := d.dec.ReadUint128(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		return &TypedValue{Kind: KindU128, U128: v}, nil

	case KindI128:
		if err := d.need(16); err != nil {
			return nil, err
		}
		v, err := d.dec.ReadInt128(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		return &TypedValue{Kind: KindI128, I128: v}, nil

	case KindF32:
		// raw bits, so NaN payloads survive
		raw, err := d.readBytes(4)
		if err != nil {
			return nil, err
		}
		f := math.Float32frombits(binary.LittleEndian.Uint32(raw))
		return &TypedValue{Kind: KindF32, F64: float64(f)}, nil

	case KindF64:
		raw, err := d.readBytes(8)
		if err != nil {
			return nil, err
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(raw))
		return &TypedValue{Kind: KindF64, F64: f}, nil

	case KindPubkey:
		raw, err := d.readBytes(32)
		if err != nil {
			return nil, err
		}
		return &TypedValue{Kind: KindPubkey, Pubkey: solana.PublicKeyFromBytes(raw)}, nil

	case KindString:
		n, err := d.readLen32()
		if err != nil {
			return nil, err
		}
		start := int(d.dec.Position())
		raw, err := d.readBytes(int(n))
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(raw) {
			return nil, &DecodeError{Code: ErrInvalidUTF8, Offset: start}
		}
		return &TypedValue{Kind: KindString, Str: string(raw)}, nil

	case KindBytes:
		n, err := d.readLen32()
		if err != nil {
			return nil, err
		}
		raw, err := d.readBytes(int(n))
		if err != nil {
			return nil, err
		}
		return &TypedValue{Kind: KindBytes, Bytes: raw}, nil

	case KindRemainingBytes:
		raw, err := d.dec.ReadNBytes(d.dec.Remaining())
		if err != nil {
			return nil, err
		}
		return &TypedValue{Kind: KindRemainingBytes, Bytes: raw}, nil

	case KindOption:
		off := int(d.dec.Position())
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		switch b {
		case 0:
			return &TypedValue{Kind: KindOption}, nil
		case 1:
			inner, err := d.decodeType(t.Elem)
			if err != nil {
				return nil, err
			}
			return &TypedValue{Kind: KindOption, Inner: inner}, nil
		default:
			return nil, &DecodeError{Code: ErrInvalidOptionTag, Offset: off, Byte: b}
		}

	case KindVector:
		n, err := d.readLen32()
		if err != nil {
			return nil, err
		}
		if t.Elem.Kind == KindU8 {
			// byte vectors surface as a Bytes value
			raw, err := d.readBytes(int(n))
			if err != nil {
				return nil, err
			}
			return &TypedValue{Kind: KindBytes, Bytes: raw}, nil
		}
		return d.decodeSeq(KindVector, t.Elem, int(n))

	case KindSmallVec:
		var n int
		if t.Prefix == SmallVecU16 {
			if err := d.need(2); err != nil {
				return nil, err
			}
			v, err := d.dec.ReadUint16(binary.LittleEndian)
			if err != nil {
				return nil, err
			}
			n = int(v)
		} else {
			b, err := d.readByte()
			if err != nil {
				return nil, err
			}
			n = int(b)
		}
		if t.Elem.Kind == KindU8 {
			raw, err := d.readBytes(n)
			if err != nil {
				return nil, err
			}
			return &TypedValue{Kind: KindBytes, Bytes: raw}, nil
		}
		return d.decodeSeq(KindSmallVec, t.Elem, n)

	case KindFixedArray:
		return d.decodeSeq(KindFixedArray, t.Elem, int(t.Len))

	case KindTuple:
		elems := make([]Value, 0, len(t.Elems))
		for _, et := range t.Elems {
			tv, err := d.decodeType(et)
			if err != nil {
				return nil, err
			}
			elems = append(elems, Value{V: *tv})
		}
		return &TypedValue{Kind: KindTuple, Elems: elems}, nil

	case KindStruct:
		fields := make([]Value, 0, len(t.Fields))
		for _, f := range t.Fields {
			tv, err := d.decodeType(f.Type)
			if err != nil {
				return nil, err
			}
			if f.Hidden && !d.opts.ShowHidden {
				continue
			}
			fields = append(fields, Value{Name: f.Name, V: *tv})
		}
		return &TypedValue{Kind: KindStruct, Elems: fields}, nil

	case KindEnum:
		off := int(d.dec.Position())
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		if int(b) >= len(t.Variants) {
			return nil, &DecodeError{Code: ErrInvalidDiscriminant, Offset: off, Byte: b, VariantCount: len(t.Variants)}
		}
		variant := t.Variants[b]
		if variant.Hidden {
			return nil, &DecodeError{Code: ErrHiddenValue, Offset: off, Name: variant.Name}
		}
		payload, err := d.decodeType(variant.Type)
		if err != nil {
			return nil, err
		}
		return &TypedValue{Kind: KindEnum, Variant: variant.Name, Inner: payload}, nil

	case KindDefined:
		if d.opts.Resolver == nil {
			return nil, &DecodeError{Code: ErrUnresolvedType, Offset: int(d.dec.Position()), Name: t.Name}
		}
		node, err := d.opts.Resolver.ResolveType(t.Name)
		if err != nil {
			return nil, err
		}
		if node == nil {
			return nil, &DecodeError{Code: ErrUnresolvedType, Offset: int(d.dec.Position()), Name: t.Name}
		}
		return d.decodeType(node.Type)
	}
	return nil, fmt.Errorf("cannot decode type of kind %s", t.Kind)
}

// decodeSeq decodes n elements of elem. The element slice grows as
// elements arrive rather than preallocating from a wire-supplied
// count, so hostile lengths fail at the truncation check instead of
// exhausting memory.
func (d *decoder) decodeSeq(kind Kind, elem *Type, n int) (*TypedValue, error) {
	var elems []Value
	for i := 0; i < n; i++ {
		tv, err := d.decodeType(elem)
		if err != nil {
			return nil, err
		}
		elems = append(elems, Value{V: *tv})
	}
	return &TypedValue{Kind: kind, Elems: elems}, nil
}
