package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// Wire form of a schema: a u16 kind tag followed by the kind's
// payload. Counts and array lengths are u64, names are u32-prefixed
// strings, the hidden flag is one byte.

// EncodeType writes t to enc.
func EncodeType(enc *bin.Encoder, t *Type) error {
	if err := enc.WriteUint16(uint16(t.Kind), binary.LittleEndian); err != nil {
		return err
	}
	switch t.Kind {
	case KindOption, KindVector:
		return EncodeType(enc, t.Elem)
	case KindFixedArray:
		if err := EncodeType(enc, t.Elem); err != nil {
			return err
		}
		return enc.WriteUint64(t.Len, binary.LittleEndian)
	case KindSmallVec:
		if err := enc.WriteUint8(uint8(t.Prefix)); err != nil {
			return err
		}
		return EncodeType(enc, t.Elem)
	case KindTuple:
		if err := enc.WriteUint64(uint64(len(t.Elems)), binary.LittleEndian); err != nil {
			return err
		}
		for _, el := range t.Elems {
			if err := EncodeType(enc, el); err != nil {
				return err
			}
		}
		return nil
	case KindStruct:
		return encodeNodes(enc, t.Fields)
	case KindEnum:
		return encodeNodes(enc, t.Variants)
	case KindDefined:
		return encodeWireString(enc, t.Name)
	default:
		// leaf kinds carry no payload
		return nil
	}
}

// EncodeNode writes n to enc.
func EncodeNode(enc *bin.Encoder, n Node) error {
	if err := encodeWireString(enc, n.Name); err != nil {
		return err
	}
	if err := EncodeType(enc, n.Type); err != nil {
		return err
	}
	var hidden uint8
	if n.Hidden {
		hidden = 1
	}
	return enc.WriteUint8(hidden)
}

// DecodeType reads one type from dec.
func DecodeType(dec *bin.Decoder) (*Type, error) {
	tag, err := dec.ReadUint16(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	kind := Kind(tag)
	switch kind {
	case KindEmpty, KindPubkey, KindString, KindBytes, KindRemainingBytes, KindBool,
		KindU8, KindU16, KindU32, KindU64, KindU128,
		KindI8, KindI16, KindI32, KindI64, KindI128,
		KindF32, KindF64:
		return New(kind), nil
	case KindOption, KindVector:
		elem, err := DecodeType(dec)
		if err != nil {
			return nil, err
		}
		return &Type{Kind: kind, Elem: elem}, nil
	case KindFixedArray:
		elem, err := DecodeType(dec)
		if err != nil {
			return nil, err
		}
		n, err := dec.ReadUint64(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		return FixedArray(elem, n), nil
	case KindSmallVec:
		prefix, err := dec.ReadUint8()
		if err != nil {
			return nil, err
		}
		if prefix > 1 {
			return nil, fmt.Errorf("invalid smallvec prefix tag %d", prefix)
		}
		elem, err := DecodeType(dec)
		if err != nil {
			return nil, err
		}
		return SmallVec(SmallVecPrefix(prefix), elem), nil
	case KindTuple:
		n, err := readWireCount(dec)
		if err != nil {
			return nil, err
		}
		var elems []*Type
		for i := 0; i < n; i++ {
			el, err := DecodeType(dec)
			if err != nil {
				return nil, err
			}
			elems = append(elems, el)
		}
		return Tuple(elems...), nil
	case KindStruct:
		fields, err := decodeNodes(dec)
		if err != nil {
			return nil, err
		}
		return Struct(fields...), nil
	case KindEnum:
		variants, err := decodeNodes(dec)
		if err != nil {
			return nil, err
		}
		return Enum(variants...), nil
	case KindDefined:
		name, err := decodeWireString(dec)
		if err != nil {
			return nil, err
		}
		return Defined(name), nil
	default:
		return nil, fmt.Errorf("unknown schema type tag %d", tag)
	}
}

// DecodeNode reads one node from dec.
func DecodeNode(dec *bin.Decoder) (Node, error) {
	name, err := decodeWireString(dec)
	if err != nil {
		return Node{}, err
	}
	typ, err := DecodeType(dec)
	if err != nil {
		return Node{}, err
	}
	hidden, err := dec.ReadUint8()
	if err != nil {
		return Node{}, err
	}
	if hidden > 1 {
		return Node{}, fmt.Errorf("invalid hidden flag %d", hidden)
	}
	return Node{Name: name, Type: typ, Hidden: hidden == 1}, nil
}

// MarshalNode renders n in its wire form.
func MarshalNode(n Node) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := EncodeNode(bin.NewBorshEncoder(buf), n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalNode parses a wire-form node and requires the buffer to be
// fully consumed.
func UnmarshalNode(data []byte) (Node, error) {
	dec := bin.NewBorshDecoder(data)
	n, err := DecodeNode(dec)
	if err != nil {
		return Node{}, err
	}
	if dec.Remaining() != 0 {
		return Node{}, fmt.Errorf("%d trailing bytes after schema node", dec.Remaining())
	}
	return n, nil
}

func encodeNodes(enc *bin.Encoder, nodes []Node) error {
	if err := enc.WriteUint64(uint64(len(nodes)), binary.LittleEndian); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := EncodeNode(enc, n); err != nil {
			return err
		}
	}
	return nil
}

func decodeNodes(dec *bin.Decoder) ([]Node, error) {
	n, err := readWireCount(dec)
	if err != nil {
		return nil, err
	}
	var nodes []Node
	for i := 0; i < n; i++ {
		node, err := DecodeNode(dec)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func encodeWireString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

func decodeWireString(dec *bin.Decoder) (string, error) {
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

// readWireCount guards collection counts against corrupt buffers:
// every encoded element needs at least one byte.
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
