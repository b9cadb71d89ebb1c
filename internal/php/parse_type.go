package php

import (
	"fmt"
	"strings"
	"unicode"
)

// TypeParser turns type declarations and docblock type expressions into
// type trees.
type TypeParser struct {
	// Templates in scope. A name matching one of them yields that exact node.
	Templates []*TemplateType
	// ResolveClass maps a class name as written to its fully qualified form.
	ResolveClass func(name string) string
	// Parent is the parent class name used for the parent keyword.
	Parent string
}

// ParseType parses s with the given templates in scope.
func ParseType(s string, templates ...*TemplateType) Type {
	p := &TypeParser{Templates: templates}
	return p.Parse(s)
}

// Parse parses a type expression such as "?int", "array<string, Foo>",
// "Collection<int, T>|null" or "array{id: int, name?: string}". Unparsable
// input yields an unknown type.
func (p *TypeParser) Parse(s string) Type {
	s = strings.TrimSpace(s)
	if s == "" {
		return NewMixedType()
	}

	c := &typeCursor{parser: p, input: s}
	t := c.union()
	c.skipSpace()
	if t == nil || !c.done() {
		return NewUnknownType("cannot parse type [" + s + "]")
	}
	return t
}

type typeCursor struct {
	parser *TypeParser
	input  string
	pos    int
}

func (c *typeCursor) done() bool {
	return c.pos >= len(c.input)
}

func (c *typeCursor) skipSpace() {
	for !c.done() && unicode.IsSpace(rune(c.input[c.pos])) {
		c.pos++
	}
}

func (c *typeCursor) peek() byte {
	c.skipSpace()
	if c.done() {
		return 0
	}
	return c.input[c.pos]
}

func (c *typeCursor) consume(b byte) bool {
	if c.peek() == b {
		c.pos++
		return true
	}
	return false
}

func (c *typeCursor) union() Type {
	first := c.intersection()
	if first == nil {
		return nil
	}

	types := []Type{first}
	for c.consume('|') {
		next := c.intersection()
		if next == nil {
			return nil
		}
		types = append(types, next)
	}

	if len(types) == 1 {
		return first
	}
	return NewUnion(types...)
}

// intersection types are not modelled; the first member stands for the whole.
func (c *typeCursor) intersection() Type {
	first := c.postfix()
	for first != nil && c.peek() == '&' {
		c.pos++
		if c.postfix() == nil {
			return nil
		}
	}
	return first
}

func (c *typeCursor) postfix() Type {
	t := c.atom()
	for t != nil && c.peek() == '[' && strings.HasPrefix(c.input[c.pos:], "[]") {
		c.pos += 2
		t = NewArrayType(t, nil)
	}
	return t
}

func (c *typeCursor) atom() Type {
	switch c.peek() {
	case '?':
		c.pos++
		inner := c.postfix()
		if inner == nil {
			return nil
		}
		return NewUnion(inner, NewNullType())
	case '(':
		c.pos++
		inner := c.union()
		if !c.consume(')') {
			return nil
		}
		return inner
	case '\'', '"':
		return c.stringLiteral()
	}

	name := c.name()
	if name == "" {
		return nil
	}

	switch c.peek() {
	case '(':
		if isCallableName(name) {
			c.pos++
			return c.callable()
		}
	case '<':
		c.pos++
		args := c.typeList('>')
		if args == nil {
			return nil
		}
		return c.parser.generic(name, args)
	case '{':
		c.pos++
		return c.shape(name)
	}

	return c.parser.named(name)
}

func (c *typeCursor) name() string {
	c.skipSpace()
	start := c.pos
	for !c.done() {
		r := rune(c.input[c.pos])
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '\\' || r == '-' || (r == '$' && c.pos == start) {
			c.pos++
			continue
		}
		break
	}
	return c.input[start:c.pos]
}

// callable reads the rest of callable(int, T): R after the opening parenthesis.
func (c *typeCursor) callable() Type {
	var params []Parameter
	for !c.consume(')') {
		t := c.union()
		if t == nil {
			return nil
		}
		c.skipSpace()
		variadic := strings.HasPrefix(c.input[c.pos:], "...")
		if variadic {
			c.pos += 3
			t = NewArrayType(t, nil)
		}
		name := ""
		if c.peek() == '$' {
			name = strings.TrimPrefix(c.name(), "$")
		}
		if name == "" {
			name = fmt.Sprintf("arg%d", len(params))
		}
		params = append(params, Parameter{Name: name, Type: t})
		if !c.consume(',') && c.peek() != ')' {
			return nil
		}
	}

	var returnType Type
	if c.consume(':') {
		if returnType = c.postfix(); returnType == nil {
			return nil
		}
	}
	return NewFunctionType(returnType, params...)
}

func isCallableName(name string) bool {
	switch strings.ToLower(NormalizeClassName(name)) {
	case "callable", "closure":
		return true
	}
	return false
}

func (c *typeCursor) stringLiteral() Type {
	quote := c.input[c.pos]
	end := strings.IndexByte(c.input[c.pos+1:], quote)
	if end < 0 {
		return nil
	}
	c.pos += end + 2
	return NewStringType()
}

func (c *typeCursor) typeList(closing byte) []Type {
	var types []Type
	for {
		t := c.union()
		if t == nil {
			return nil
		}
		types = append(types, t)
		if c.consume(',') {
			continue
		}
		if c.consume(closing) {
			return types
		}
		return nil
	}
}

func (c *typeCursor) shape(name string) Type {
	var items []ArrayItem
	for !c.consume('}') {
		item, ok := c.shapeItem()
		if !ok {
			return nil
		}
		items = append(items, item)
		if !c.consume(',') && c.peek() != '}' {
			return nil
		}
	}

	if strings.EqualFold(name, "object") {
		return NewObjectType("stdClass")
	}
	return NewKeyedArrayType(items...)
}

func (c *typeCursor) shapeItem() (ArrayItem, bool) {
	start := c.pos
	key := c.name()
	optional := false
	if key != "" {
		if c.consume('?') {
			optional = true
		}
		if !c.consume(':') {
			// positional item, the name was the start of a type
			c.pos = start
			key = ""
			optional = false
		}
	}

	value := c.union()
	if value == nil {
		return ArrayItem{}, false
	}
	if isIndexKey(key) {
		key = ""
	}
	return ArrayItem{Key: key, Value: value, Optional: optional}, true
}

func isIndexKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func (p *TypeParser) template(name string) *TemplateType {
	for _, t := range p.Templates {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (p *TypeParser) className(name string) string {
	if p.ResolveClass != nil {
		return NormalizeClassName(p.ResolveClass(name))
	}
	return NormalizeClassName(name)
}

func (p *TypeParser) generic(name string, args []Type) Type {
	switch strings.ToLower(name) {
	case "array", "iterable", "non-empty-array":
		if len(args) == 1 {
			return NewArrayType(args[0], nil)
		}
		return NewArrayType(args[1], args[0])
	case "list", "non-empty-list":
		return NewArrayType(args[0], nil)
	case "class-string":
		return NewStringType()
	case KeywordSelf, KeywordStatic, "$this":
		return NewSelfType()
	}
	return NewGeneric(p.className(name), args...)
}

func (p *TypeParser) named(name string) Type {
	if t := p.template(name); t != nil {
		return t
	}

	switch strings.ToLower(strings.TrimPrefix(name, "\\")) {
	case "string", "non-empty-string", "class-string", "numeric-string", "callable-string", "lowercase-string":
		return NewStringType()
	case "int", "integer", "positive-int", "negative-int", "non-negative-int":
		return NewIntType()
	case "float", "double":
		return NewFloatType()
	case "bool", "boolean", "true", "false":
		return NewBoolType()
	case "array", "iterable", "non-empty-array", "list", "non-empty-list":
		return NewArrayType(NewMixedType(), nil)
	case "null":
		return NewNullType()
	case "mixed", "resource":
		return NewMixedType()
	case "void":
		return NewVoidType()
	case "never", "never-return", "no-return":
		return NewNeverType()
	case "callable", "closure":
		return NewFunctionType(NewMixedType())
	case "array-key":
		return NewUnion(NewIntType(), NewStringType())
	case "scalar":
		return NewUnion(NewIntType(), NewFloatType(), NewStringType(), NewBoolType())
	case "object":
		return NewObjectType("object")
	case KeywordSelf, KeywordStatic, "$this":
		return NewSelfType()
	case KeywordParent:
		if p.Parent != "" {
			return NewObjectType(p.Parent)
		}
		return NewUnknownType("parent outside of a child class")
	}

	if isIndexKey(name) {
		return NewIntType()
	}

	return NewObjectType(p.className(name))
}
