package idl

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// discriminator is a parsed account/instruction/event tag: the wire
// prefix length and the lookup key packed from the first eight prefix
// bytes, little-endian.
type discriminator struct {
	key    uint64
	length uint8
}

// packKey packs up to the first eight bytes of bs into a u64,
// little-endian, zero-padding short prefixes.
func packKey(bs []byte) uint64 {
	var buf [8]byte
	copy(buf[:], bs)
	return binary.LittleEndian.Uint64(buf[:])
}

// parseAnyDiscriminator accepts the two explicit discriminator forms:
// an object {type: "u8"|"u64", value: N} or an array of byte values.
func parseAnyDiscriminator(raw json.RawMessage, typeName string) (*discriminator, error) {
	switch firstJSONByte(raw) {
	case '{':
		var obj struct {
			Type  string      `json:"type"`
			Value json.Number `json:"value"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, errCompile(ErrMalformedDeclaration, typeName, "", "bad discriminator object: %v", err)
		}
		v, err := strconv.ParseUint(obj.Value.String(), 10, 64)
		if err != nil {
			return nil, errCompile(ErrMalformedDeclaration, typeName, "", "discriminator value %q is not an unsigned integer", obj.Value.String())
		}
		switch obj.Type {
		case "u8":
			if v > 0xff {
				return nil, errCompile(ErrMalformedDeclaration, typeName, "", "u8 discriminator value %d out of range", v)
			}
			return &discriminator{key: v, length: 1}, nil
		case "u64":
			return &discriminator{key: v, length: 8}, nil
		default:
			return nil, errCompile(ErrMalformedDeclaration, typeName, "", "discriminator type must be u8 or u64, got %q", obj.Type)
		}
	case '[':
		var arr []uint16
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, errCompile(ErrMalformedDeclaration, typeName, "", "bad discriminator array: %v", err)
		}
		if len(arr) > 0xff {
			return nil, errCompile(ErrMalformedDeclaration, typeName, "", "discriminator of %d bytes is too long", len(arr))
		}
		bs := make([]byte, len(arr))
		for i, v := range arr {
			if v > 0xff {
				return nil, errCompile(ErrMalformedDeclaration, typeName, "", "discriminator byte %d out of range", v)
			}
			bs[i] = byte(v)
		}
		return &discriminator{key: packKey(bs), length: uint8(len(bs))}, nil
	}
	return nil, errCompile(ErrMalformedDeclaration, typeName, "", "unrecognized discriminator form")
}

// resolveDiscriminator prefers the "discriminant" spelling over
// "discriminator", falling back to the implicit hash when neither is
// present.
func resolveDiscriminator(discriminant, disc json.RawMessage, typeName string, implicit func() *discriminator) (*discriminator, error) {
	if len(discriminant) > 0 {
		return parseAnyDiscriminator(discriminant, typeName)
	}
	if len(disc) > 0 {
		return parseAnyDiscriminator(disc, typeName)
	}
	return implicit(), nil
}

// anchorHash returns the first eight bytes of sha256(prefix + ":" +
// name), the implicit discriminator scheme.
func anchorHash(prefix, name string) []byte {
	sum := sha256.Sum256([]byte(prefix + ":" + name))
	return sum[:8]
}

func accountDiscriminator(name string) *discriminator {
	return &discriminator{key: packKey(anchorHash("account", name)), length: 8}
}

func instructionDiscriminator(name string) *discriminator {
	return &discriminator{key: packKey(anchorHash("global", camelToSnake(name))), length: 8}
}

func eventDiscriminator(name string) *discriminator {
	return &discriminator{key: packKey(anchorHash("event", name)), length: 8}
}

// camelToSnake converts an instruction name to the snake_case form the
// implicit hash preimage uses. An underscore goes before an uppercase
// rune only when output already exists and the next rune is a
// lowercase letter or an ASCII digit, so runs of capitals stay
// together: mintV1 -> mint_v1, NFTUpdate -> nft_update.
func camelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if b.Len() > 0 && i+1 < len(runes) {
				next := runes[i+1]
				if unicode.IsLower(next) || (next >= '0' && next <= '9') {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// firstJSONByte returns the first non-whitespace byte of raw, or 0.
func firstJSONByte(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
