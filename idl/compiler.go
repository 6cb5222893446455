package idl

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rangesecurity/reverse-idl-parser/schema"
)

// compiler carries one Compile call: the symbol table, the memoized
// declaration schemas and the recursion bookkeeping.
type compiler struct {
	table map[string]json.RawMessage
	memo  map[string]*schema.Type
	// inProgress maps declarations on the descent stack to the
	// boundary depth observed at entry.
	inProgress map[string]int
	// boundaries is the number of variable-length wrappers (vec,
	// option, small vec) on the current descent path.
	boundaries int
}

// Compile resolves every declaration, discriminator and entry point of
// doc into an immutable Program.
func Compile(doc *Document) (*Program, error) {
	table, err := buildSymbolTable(doc)
	if err != nil {
		return nil, err
	}
	c := &compiler{
		table:      table,
		memo:       make(map[string]*schema.Type),
		inProgress: make(map[string]int),
	}

	// every declaration compiles strictly, in declaration order
	for _, td := range doc.Types {
		if _, err := c.compileDeclaration(td.Name); err != nil {
			return nil, err
		}
	}
	for _, acc := range doc.Accounts {
		if _, ok := c.table[acc.Name]; ok {
			if _, err := c.compileDeclaration(acc.Name); err != nil {
				return nil, err
			}
		}
	}

	p := &Program{
		Name:  doc.ProgramName(),
		types: c.memo,
	}

	accLen, insLen, evLen := -1, -1, -1

	for _, acc := range doc.Accounts {
		disc, err := resolveDiscriminator(acc.Discriminant, acc.Discriminator, acc.Name, func() *discriminator {
			return accountDiscriminator(acc.Name)
		})
		if err != nil {
			return nil, err
		}
		if err := agreeLength(&accLen, disc.length, "account"); err != nil {
			return nil, err
		}
		typ, err := c.compileDeclaration(acc.Name)
		if err != nil {
			return nil, err
		}
		if err := rejectCollision(entryKeys(p.accounts), disc.key, acc.Name, "account"); err != nil {
			return nil, err
		}
		p.accounts = append(p.accounts, Entry{
			Key:  disc.key,
			Name: acc.Name,
			Node: schema.NewNode(acc.Name, typ),
		})
	}

	for _, ins := range doc.Instructions {
		disc, err := resolveDiscriminator(ins.Discriminant, ins.Discriminator, ins.Name, func() *discriminator {
			return instructionDiscriminator(ins.Name)
		})
		if err != nil {
			return nil, err
		}
		if err := agreeLength(&insLen, disc.length, "instruction"); err != nil {
			return nil, err
		}
		args, err := c.compileArgs(ins.Name, ins.Args)
		if err != nil {
			return nil, err
		}
		var keys []uint64
		for _, e := range p.instructions {
			keys = append(keys, e.Key)
		}
		if err := rejectCollision(keys, disc.key, ins.Name, "instruction"); err != nil {
			return nil, err
		}
		accounts := make([]string, 0, len(ins.Accounts))
		for _, am := range ins.Accounts {
			accounts = append(accounts, am.Name)
		}
		p.instructions = append(p.instructions, InstructionEntry{
			Entry: Entry{
				Key:  disc.key,
				Name: ins.Name,
				Node: schema.NewNode(ins.Name, args),
			},
			Accounts: accounts,
		})
	}

	for _, ev := range doc.Events {
		disc, err := resolveDiscriminator(ev.Discriminant, ev.Discriminator, ev.Name, func() *discriminator {
			return eventDiscriminator(ev.Name)
		})
		if err != nil {
			return nil, err
		}
		if err := agreeLength(&evLen, disc.length, "event"); err != nil {
			return nil, err
		}
		typ, err := c.compileDeclaration(ev.Name)
		if err != nil {
			return nil, err
		}
		if err := rejectCollision(entryKeys(p.events), disc.key, ev.Name, "event"); err != nil {
			return nil, err
		}
		p.events = append(p.events, Entry{
			Key:  disc.key,
			Name: ev.Name,
			Node: schema.NewNode(ev.Name, typ),
		})
	}

	p.AccountDiscLen = defaultLength(accLen)
	p.InstructionDiscLen = defaultLength(insLen)
	p.EventDiscLen = defaultLength(evLen)

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// CompileJSON parses and compiles an IDL document in one step.
func CompileJSON(data []byte) (*Program, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Compile(doc)
}

// CompileFile reads, parses and compiles an IDL file.
func CompileFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read IDL file: %w", err)
	}
	return CompileJSON(data)
}

// buildSymbolTable indexes the declarations by name. Legacy accounts
// that carry an inline type join the table when the name is not
// already declared.
func buildSymbolTable(doc *Document) (map[string]json.RawMessage, error) {
	table := make(map[string]json.RawMessage, len(doc.Types))
	for _, td := range doc.Types {
		if td.Name == "" {
			return nil, errCompile(ErrMalformedDeclaration, "", "", "type declaration without a name")
		}
		if _, ok := table[td.Name]; ok {
			return nil, errCompile(ErrDuplicateTypeName, td.Name, "", "declared more than once")
		}
		if len(td.Type) == 0 {
			return nil, errCompile(ErrMalformedDeclaration, td.Name, "", "missing declaration body")
		}
		table[td.Name] = td.Type
	}
	for _, acc := range doc.Accounts {
		if len(acc.Type) == 0 {
			continue
		}
		if _, ok := table[acc.Name]; !ok {
			table[acc.Name] = acc.Type
		}
	}
	return table, nil
}

// compileDeclaration compiles the named declaration, memoizing the
// result. A reference back into a declaration still on the descent
// stack is legal only past a variable-length boundary, where it
// becomes a Defined leaf.
func (c *compiler) compileDeclaration(name string) (*schema.Type, error) {
	if t, ok := c.memo[name]; ok {
		return t, nil
	}
	if entry, ok := c.inProgress[name]; ok {
		if c.boundaries > entry {
			return schema.Defined(name), nil
		}
		return nil, errCompile(ErrUnresolvableRecursion, name, "", "cycle with no vec or option between the definition and the reference")
	}
	raw, ok := c.table[name]
	if !ok {
		return nil, errCompile(ErrUnknownTypeName, name, "", "no declaration with this name")
	}
	c.inProgress[name] = c.boundaries
	t, err := c.compileBody(name, raw)
	delete(c.inProgress, name)
	if err != nil {
		return nil, err
	}
	c.memo[name] = t
	return t, nil
}

func (c *compiler) compileBody(name string, raw json.RawMessage) (*schema.Type, error) {
	var body struct {
		Kind     string            `json:"kind"`
		Fields   []json.RawMessage `json:"fields"`
		Variants []json.RawMessage `json:"variants"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errCompile(ErrMalformedDeclaration, name, "", "bad declaration body: %v", err)
	}
	switch body.Kind {
	case "struct":
		return c.compileStructFields(name, body.Fields)
	case "enum":
		return c.compileEnumVariants(name, body.Variants)
	default:
		return nil, errCompile(ErrMalformedDeclaration, name, "", "declaration kind must be struct or enum, got %q", body.Kind)
	}
}

func (c *compiler) compileStructFields(name string, fields []json.RawMessage) (*schema.Type, error) {
	nodes := make([]schema.Node, 0, len(fields))
	for i, rf := range fields {
		var f FieldDef
		if err := json.Unmarshal(rf, &f); err != nil {
			return nil, errCompile(ErrMalformedDeclaration, name, fieldLabel("", i), "bad struct field: %v", err)
		}
		if f.Name == "" || len(f.Type) == 0 {
			return nil, errCompile(ErrMalformedDeclaration, name, fieldLabel(f.Name, i), "struct field needs a name and a type")
		}
		t, err := c.compileExpr(name, f.Name, f.Type)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, schema.NewNode(f.Name, t))
	}
	return schema.Struct(nodes...), nil
}

func (c *compiler) compileEnumVariants(name string, variants []json.RawMessage) (*schema.Type, error) {
	nodes := make([]schema.Node, 0, len(variants))
	for i, rv := range variants {
		var v struct {
			Name   string            `json:"name"`
			Fields []json.RawMessage `json:"fields"`
		}
		if err := json.Unmarshal(rv, &v); err != nil {
			return nil, errCompile(ErrMalformedDeclaration, name, fieldLabel("", i), "bad enum variant: %v", err)
		}
		if v.Name == "" {
			return nil, errCompile(ErrMalformedDeclaration, name, fieldLabel("", i), "enum variant needs a name")
		}
		payload, err := c.compileVariantPayload(name, v.Name, v.Fields)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, schema.NewNode(v.Name, payload))
	}
	return schema.Enum(nodes...), nil
}

// compileVariantPayload compiles a variant's fields: absent fields are
// an Empty payload, named fields a Struct, bare type expressions a
// Tuple.
func (c *compiler) compileVariantPayload(typeName, variant string, fields []json.RawMessage) (*schema.Type, error) {
	if fields == nil {
		return schema.New(schema.KindEmpty), nil
	}
	named := 0
	bare := 0
	for _, rf := range fields {
		if isNamedField(rf) {
			named++
		} else {
			bare++
		}
	}
	switch {
	case named > 0 && bare > 0:
		return nil, errCompile(ErrMalformedDeclaration, typeName, variant, "variant mixes named and positional fields")
	case bare > 0:
		elems := make([]*schema.Type, 0, len(fields))
		for _, rf := range fields {
			t, err := c.compileExpr(typeName, variant, rf)
			if err != nil {
				return nil, err
			}
			elems = append(elems, t)
		}
		return schema.Tuple(elems...), nil
	default:
		// all named, including the empty field list
		nodes := make([]schema.Node, 0, len(fields))
		for i, rf := range fields {
			var f FieldDef
			if err := json.Unmarshal(rf, &f); err != nil || f.Name == "" || len(f.Type) == 0 {
				return nil, errCompile(ErrMalformedDeclaration, typeName, variant, "bad variant field %s", fieldLabel("", i))
			}
			t, err := c.compileExpr(typeName, f.Name, f.Type)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, schema.NewNode(f.Name, t))
		}
		return schema.Struct(nodes...), nil
	}
}

// isNamedField reports whether a variant field element is a named
// {name, type} object rather than a bare type expression. Bare
// expression objects never carry a "type" key.
func isNamedField(raw json.RawMessage) bool {
	if firstJSONByte(raw) != '{' {
		return false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	_, ok := obj["type"]
	return ok
}

// compileExpr compiles one type expression: a keyword or declaration
// name, a bracket array shorthand, or a wrapper object.
func (c *compiler) compileExpr(typeName, fieldName string, raw json.RawMessage) (*schema.Type, error) {
	switch firstJSONByte(raw) {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errCompile(ErrMalformedTypeExpression, typeName, fieldName, "bad type string: %v", err)
		}
		return c.compileNameExpr(typeName, fieldName, s)
	case '{':
		return c.compileObjectExpr(typeName, fieldName, raw)
	}
	return nil, errCompile(ErrMalformedTypeExpression, typeName, fieldName, "unrecognized type expression %s", compactJSON(raw))
}

func (c *compiler) compileNameExpr(typeName, fieldName, s string) (*schema.Type, error) {
	switch s {
	case "pubkey", "publicKey":
		return schema.New(schema.KindPubkey), nil
	case "string":
		return schema.New(schema.KindString), nil
	case "bytes":
		return schema.New(schema.KindBytes), nil
	case "bytes_remaining", "rest":
		return schema.New(schema.KindRemainingBytes), nil
	case "bool":
		return schema.New(schema.KindBool), nil
	case "u8":
		return schema.New(schema.KindU8), nil
	case "u16":
		return schema.New(schema.KindU16), nil
	case "u32":
		return schema.New(schema.KindU32), nil
	case "u64":
		return schema.New(schema.KindU64), nil
	case "u128":
		return schema.New(schema.KindU128), nil
	case "i8":
		return schema.New(schema.KindI8), nil
	case "i16":
		return schema.New(schema.KindI16), nil
	case "i32":
		return schema.New(schema.KindI32), nil
	case "i64":
		return schema.New(schema.KindI64), nil
	case "i128":
		return schema.New(schema.KindI128), nil
	case "f32":
		return schema.New(schema.KindF32), nil
	case "f64":
		return schema.New(schema.KindF64), nil
	}
	if strings.HasPrefix(s, "[") {
		return c.compileBracketArray(typeName, fieldName, s)
	}
	if prefix, elem, ok := smallVecArgs(s); ok {
		return c.compileSmallVec(typeName, fieldName, prefix, elem)
	}
	return c.compileDeclaration(s)
}

// compileBracketArray handles the "[elem; N]" shorthand.
func (c *compiler) compileBracketArray(typeName, fieldName, s string) (*schema.Type, error) {
	if !strings.HasSuffix(s, "]") {
		return nil, errCompile(ErrMalformedTypeExpression, typeName, fieldName, "unterminated array shorthand %q", s)
	}
	inner := s[1 : len(s)-1]
	sep := strings.LastIndex(inner, ";")
	if sep < 0 {
		return nil, errCompile(ErrMalformedTypeExpression, typeName, fieldName, "array shorthand %q needs \"[elem; N]\"", s)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(inner[sep+1:]), 10, 64)
	if err != nil {
		return nil, errCompile(ErrMalformedTypeExpression, typeName, fieldName, "bad array length in %q", s)
	}
	elemExpr := strings.TrimSpace(inner[:sep])
	elem, err := c.compileNameExpr(typeName, fieldName, elemExpr)
	if err != nil {
		return nil, err
	}
	return schema.FixedArray(elem, n), nil
}

func (c *compiler) compileSmallVec(typeName, fieldName, prefix, elemExpr string) (*schema.Type, error) {
	var p schema.SmallVecPrefix
	switch prefix {
	case "u8":
		p = schema.SmallVecU8
	case "u16":
		p = schema.SmallVecU16
	default:
		return nil, errCompile(ErrMalformedTypeExpression, typeName, fieldName, "SmallVec length must be u8 or u16, got %q", prefix)
	}
	c.boundaries++
	elem, err := c.compileNameExpr(typeName, fieldName, elemExpr)
	c.boundaries--
	if err != nil {
		return nil, err
	}
	return schema.SmallVec(p, elem), nil
}

func (c *compiler) compileObjectExpr(typeName, fieldName string, raw json.RawMessage) (*schema.Type, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errCompile(ErrMalformedTypeExpression, typeName, fieldName, "bad type expression: %v", err)
	}
	switch {
	case obj["vec"] != nil:
		c.boundaries++
		elem, err := c.compileExpr(typeName, fieldName, obj["vec"])
		c.boundaries--
		if err != nil {
			return nil, err
		}
		return schema.Vector(elem), nil
	case obj["option"] != nil:
		c.boundaries++
		elem, err := c.compileExpr(typeName, fieldName, obj["option"])
		c.boundaries--
		if err != nil {
			return nil, err
		}
		return schema.Option(elem), nil
	case obj["array"] != nil:
		var pair []json.RawMessage
		if err := json.Unmarshal(obj["array"], &pair); err != nil || len(pair) != 2 {
			return nil, errCompile(ErrMalformedTypeExpression, typeName, fieldName, "array takes [type, length]")
		}
		elem, err := c.compileExpr(typeName, fieldName, pair[0])
		if err != nil {
			return nil, err
		}
		var n uint64
		if err := json.Unmarshal(pair[1], &n); err != nil {
			return nil, errCompile(ErrMalformedTypeExpression, typeName, fieldName, "bad array length %s", compactJSON(pair[1]))
		}
		return schema.FixedArray(elem, n), nil
	case obj["defined"] != nil:
		return c.compileDefined(typeName, fieldName, obj["defined"])
	default:
		return nil, errCompile(ErrMalformedTypeExpression, typeName, fieldName, "unrecognized type expression %s", compactJSON(raw))
	}
}

// compileDefined handles both spellings of a reference: the bare
// string and the object with a "name" key.
func (c *compiler) compileDefined(typeName, fieldName string, raw json.RawMessage) (*schema.Type, error) {
	switch firstJSONByte(raw) {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errCompile(ErrMalformedTypeExpression, typeName, fieldName, "bad defined reference: %v", err)
		}
		return c.compileNameExpr(typeName, fieldName, s)
	case '{':
		var obj struct {
			Name     string            `json:"name"`
			Generics []json.RawMessage `json:"generics"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil || obj.Name == "" {
			return nil, errCompile(ErrMalformedTypeExpression, typeName, fieldName, "defined reference needs a name")
		}
		if len(obj.Generics) > 0 {
			return nil, errCompile(ErrMalformedTypeExpression, typeName, fieldName, "generic type %q is not supported", obj.Name)
		}
		return c.compileNameExpr(typeName, fieldName, obj.Name)
	}
	return nil, errCompile(ErrMalformedTypeExpression, typeName, fieldName, "bad defined reference %s", compactJSON(raw))
}

// smallVecArgs splits "SmallVec<len, elem>" into its two arguments.
func smallVecArgs(s string) (prefix, elem string, ok bool) {
	if !strings.HasPrefix(s, "SmallVec<") || !strings.HasSuffix(s, ">") {
		return "", "", false
	}
	inner := s[len("SmallVec<") : len(s)-1]
	lenPart, elemPart, found := strings.Cut(inner, ",")
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(lenPart), strings.TrimSpace(elemPart), true
}

func (c *compiler) compileArgs(insName string, args []FieldDef) (*schema.Type, error) {
	if len(args) == 0 {
		return schema.New(schema.KindEmpty), nil
	}
	nodes := make([]schema.Node, 0, len(args))
	for i, arg := range args {
		if arg.Name == "" || len(arg.Type) == 0 {
			return nil, errCompile(ErrMalformedDeclaration, insName, fieldLabel(arg.Name, i), "instruction argument needs a name and a type")
		}
		t, err := c.compileExpr(insName, arg.Name, arg.Type)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, schema.NewNode(arg.Name, t))
	}
	return schema.Struct(nodes...), nil
}

func agreeLength(cur *int, l uint8, section string) error {
	if *cur == -1 {
		*cur = int(l)
		return nil
	}
	if *cur != int(l) {
		return errCompile(ErrMalformedDeclaration, "", "", "%s discriminators disagree on length (%d and %d)", section, *cur, l)
	}
	return nil
}

func defaultLength(l int) uint8 {
	if l == -1 {
		return 8
	}
	return uint8(l)
}

func rejectCollision(keys []uint64, key uint64, name, section string) error {
	for _, k := range keys {
		if k == key {
			return errCompile(ErrMalformedDeclaration, name, "", "%s discriminator collides with an earlier entry", section)
		}
	}
	return nil
}

func entryKeys(entries []Entry) []uint64 {
	keys := make([]uint64, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys
}

func fieldLabel(name string, i int) string {
	if name != "" {
		return name
	}
	return "#" + strconv.Itoa(i)
}

func compactJSON(raw json.RawMessage) string {
	s := string(raw)
	if len(s) > 64 {
		s = s[:64] + "..."
	}
	return s
}
