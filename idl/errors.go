package idl

import (
	"fmt"
	"strings"
)

// ErrorCode identifies a compile failure class.
type ErrorCode string

const (
	ErrDuplicateTypeName       ErrorCode = "duplicate_type_name"
	ErrMalformedDeclaration    ErrorCode = "malformed_declaration"
	ErrUnknownTypeName         ErrorCode = "unknown_type_name"
	ErrUnresolvableRecursion   ErrorCode = "unresolvable_recursion"
	ErrMalformedTypeExpression ErrorCode = "malformed_type_expression"
)

// CompileError reports a rejected IDL document. Type names the
// declaration under compilation and Field the member within it, when
// known.
type CompileError struct {
	Code    ErrorCode
	Type    string
	Field   string
	Message string
}

func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Type != "" {
		fmt.Fprintf(&b, " (type %q", e.Type)
		if e.Field != "" {
			fmt.Fprintf(&b, ", field %q", e.Field)
		}
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func errCompile(code ErrorCode, typeName, field, format string, args ...any) *CompileError {
	return &CompileError{
		Code:    code,
		Type:    typeName,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}
