package schema

import "fmt"

// ErrorCode identifies a decode failure class.
type ErrorCode string

const (
	ErrTruncatedBuffer      ErrorCode = "truncated_buffer"
	ErrInvalidUTF8          ErrorCode = "invalid_utf8"
	ErrInvalidOptionTag     ErrorCode = "invalid_option_tag"
	ErrInvalidDiscriminant  ErrorCode = "invalid_discriminant"
	ErrInvalidBool          ErrorCode = "invalid_bool"
	ErrUnknownDiscriminator ErrorCode = "unknown_discriminator"
	ErrUnresolvedType       ErrorCode = "unresolved_type"
	ErrHiddenValue          ErrorCode = "hidden_value"
)

// DecodeError reports a malformed or truncated buffer. Offset is the
// cursor position of the failing read, relative to the first byte
// after any skipped discriminator.
type DecodeError struct {
	Code   ErrorCode
	Offset int
	// Needed and Have are set for truncated_buffer.
	Needed int
	Have   int
	// Byte is the offending byte for invalid_option_tag,
	// invalid_discriminant and invalid_bool.
	Byte byte
	// VariantCount is set for invalid_discriminant.
	VariantCount int
	// Name carries the unresolved reference, the hidden node name, or
	// the hex prefix of an unknown discriminator.
	Name string
}

func (e *DecodeError) Error() string {
	switch e.Code {
	case ErrTruncatedBuffer:
		return fmt.Sprintf("truncated buffer at offset %d: need %d bytes, have %d", e.Offset, e.Needed, e.Have)
	case ErrInvalidUTF8:
		return fmt.Sprintf("invalid utf-8 string at offset %d", e.Offset)
	case ErrInvalidOptionTag:
		return fmt.Sprintf("invalid option tag 0x%02x at offset %d", e.Byte, e.Offset)
	case ErrInvalidDiscriminant:
		return fmt.Sprintf("enum discriminant %d at offset %d out of range for %d variants", e.Byte, e.Offset, e.VariantCount)
	case ErrInvalidBool:
		return fmt.Sprintf("invalid bool byte 0x%02x at offset %d", e.Byte, e.Offset)
	case ErrUnknownDiscriminator:
		return fmt.Sprintf("no schema matches discriminator %s", e.Name)
	case ErrUnresolvedType:
		return fmt.Sprintf("reference to undeclared type %q", e.Name)
	case ErrHiddenValue:
		return fmt.Sprintf("hidden node %q where a value is required", e.Name)
	default:
		return string(e.Code)
	}
}

func errTruncated(offset, needed, have int) *DecodeError {
	return &DecodeError{Code: ErrTruncatedBuffer, Offset: offset, Needed: needed, Have: have}
}
