package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON renders the node as {"name": ..., "type": ...}.
func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name string `json:"name"`
		Type *Type  `json:"type"`
	}{n.Name, n.Type})
}

// MarshalJSON renders the layout: primitives as their type names,
// composites as single-key wrapper objects, structs as ordered
// field-to-type objects.
func (t *Type) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case KindEmpty:
		return []byte("null"), nil
	case KindPubkey, KindString, KindBytes, KindRemainingBytes, KindBool,
		KindU8, KindU16, KindU32, KindU64, KindU128,
		KindI8, KindI16, KindI32, KindI64, KindI128,
		KindF32, KindF64:
		return json.Marshal(t.Kind.String())
	case KindOption:
		return wrapJSON("type:option", t.Elem)
	case KindVector:
		return wrapJSON("type:vec", t.Elem)
	case KindFixedArray:
		return json.Marshal(struct {
			Size uint64 `json:"size"`
			Type *Type  `json:"type"`
		}{t.Len, t.Elem})
	case KindTuple:
		return wrapJSON("type:tuple", t.Elems)
	case KindStruct:
		obj, err := orderedTypeObject(t.Fields)
		if err != nil {
			return nil, err
		}
		return obj, nil
	case KindEnum:
		obj, err := orderedTypeObject(t.Variants)
		if err != nil {
			return nil, err
		}
		return wrapJSON("type:enum", json.RawMessage(obj))
	case KindSmallVec:
		return wrapJSON("type:smallvec", struct {
			Len  string `json:"len"`
			Elem *Type  `json:"elem"`
		}{t.Prefix.String(), t.Elem})
	case KindDefined:
		return wrapJSON("type:defined", t.Name)
	}
	return nil, fmt.Errorf("cannot render type of kind %s", t.Kind)
}

func wrapJSON(key string, payload any) ([]byte, error) {
	inner, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	k, err := json.Marshal(key)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(inner)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func orderedTypeObject(nodes []Node) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range nodes {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(n.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		tv, err := json.Marshal(n.Type)
		if err != nil {
			return nil, err
		}
		buf.Write(tv)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
