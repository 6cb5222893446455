package schema

import "fmt"

// Kind tags a Type node. The numeric values double as the wire tags of
// the schema codec.
type Kind uint16

const (
	KindEmpty Kind = iota
	KindPubkey
	KindString
	KindI8
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindI128
	KindU128
	KindF32
	KindF64
	KindBool
	KindOption
	KindFixedArray
	KindTuple
	KindVector
	KindStruct
	KindEnum
	KindSmallVec
	KindBytes
	KindRemainingBytes
	KindDefined
)

var kindNames = [...]string{
	KindEmpty:          "empty",
	KindPubkey:         "pubkey",
	KindString:         "string",
	KindI8:             "i8",
	KindU8:             "u8",
	KindI16:            "i16",
	KindU16:            "u16",
	KindI32:            "i32",
	KindU32:            "u32",
	KindI64:            "i64",
	KindU64:            "u64",
	KindI128:           "i128",
	KindU128:           "u128",
	KindF32:            "f32",
	KindF64:            "f64",
	KindBool:           "bool",
	KindOption:         "option",
	KindFixedArray:     "array",
	KindTuple:          "tuple",
	KindVector:         "vec",
	KindStruct:         "struct",
	KindEnum:           "enum",
	KindSmallVec:       "smallvec",
	KindBytes:          "bytes",
	KindRemainingBytes: "bytes_remaining",
	KindDefined:        "defined",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint16(k))
}

// SmallVecPrefix selects the width of a SmallVec length prefix.
type SmallVecPrefix uint8

const (
	SmallVecU8 SmallVecPrefix = iota
	SmallVecU16
)

func (p SmallVecPrefix) String() string {
	if p == SmallVecU16 {
		return "u16"
	}
	return "u8"
}

// Type is one node of a compiled binary layout. Only the fields
// relevant to Kind are set, and compiled types are never mutated, so a
// Type is safe to share across goroutines.
type Type struct {
	Kind Kind

	// Elem is the element type of Option, Vector, FixedArray and
	// SmallVec.
	Elem *Type
	// Len is the element count of FixedArray.
	Len uint64
	// Prefix is the length-prefix width of SmallVec.
	Prefix SmallVecPrefix
	// Fields are the ordered members of Struct.
	Fields []Node
	// Elems are the positional members of Tuple.
	Elems []*Type
	// Variants are the ordered variants of Enum; the wire discriminant
	// is the zero-based index.
	Variants []Node
	// Name is the referenced declaration of Defined.
	Name string
}

// Node pairs a name with a type: a struct field, an enum variant, or a
// top-level declaration. Hidden nodes consume bytes when decoding but
// are dropped from rendered values unless DecodeOptions.ShowHidden is
// set.
type Node struct {
	Name   string
	Type   *Type
	Hidden bool
}

// New returns a leaf type of the given kind.
func New(k Kind) *Type { return &Type{Kind: k} }

// Option wraps elem behind a one-byte presence tag.
func Option(elem *Type) *Type { return &Type{Kind: KindOption, Elem: elem} }

// Vector is a u32-length-prefixed sequence of elem.
func Vector(elem *Type) *Type { return &Type{Kind: KindVector, Elem: elem} }

// FixedArray is a sequence of n elems with no wire prefix.
func FixedArray(elem *Type, n uint64) *Type {
	return &Type{Kind: KindFixedArray, Elem: elem, Len: n}
}

// SmallVec is a sequence of elem with a u8 or u16 length prefix.
func SmallVec(prefix SmallVecPrefix, elem *Type) *Type {
	return &Type{Kind: KindSmallVec, Elem: elem, Prefix: prefix}
}

// Struct is an ordered set of named fields.
func Struct(fields ...Node) *Type { return &Type{Kind: KindStruct, Fields: fields} }

// Tuple is a positional sequence of heterogeneous elements.
func Tuple(elems ...*Type) *Type { return &Type{Kind: KindTuple, Elems: elems} }

// Enum is a set of variants selected by a one-byte zero-based
// discriminant.
func Enum(variants ...Node) *Type { return &Type{Kind: KindEnum, Variants: variants} }

// Defined is a deferred reference to a named declaration, resolved at
// decode time through a Resolver.
func Defined(name string) *Type { return &Type{Kind: KindDefined, Name: name} }

// NewNode returns a visible node.
func NewNode(name string, typ *Type) Node { return Node{Name: name, Type: typ} }

// HiddenNode returns a node that decodes but is omitted from output.
func HiddenNode(name string, typ *Type) Node {
	return Node{Name: name, Type: typ, Hidden: true}
}

// Equal reports whether two types are structurally identical.
func Equal(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindOption, KindVector:
		return Equal(a.Elem, b.Elem)
	case KindFixedArray:
		return a.Len == b.Len && Equal(a.Elem, b.Elem)
	case KindSmallVec:
		return a.Prefix == b.Prefix && Equal(a.Elem, b.Elem)
	case KindStruct:
		return nodesEqual(a.Fields, b.Fields)
	case KindEnum:
		return nodesEqual(a.Variants, b.Variants)
	case KindTuple:
		if len(a.Elems) != len(b.Elems) {
			return false
		}
		for i := range a.Elems {
			if !Equal(a.Elems[i], b.Elems[i]) {
				return false
			}
		}
		return true
	case KindDefined:
		return a.Name == b.Name
	default:
		return true
	}
}

// NodeEqual reports whether two nodes are structurally identical.
func NodeEqual(a, b Node) bool {
	return a.Name == b.Name && a.Hidden == b.Hidden && Equal(a.Type, b.Type)
}

func nodesEqual(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !NodeEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
