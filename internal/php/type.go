package php

import (
	"fmt"
	"maps"
	"strings"
)

// Attributes carries side-channel metadata of a type node (formatting hints,
// source positions). It never takes part in type identity or equality.
type Attributes map[string]any

// Type is a node of a type tree.
//
// Nodes are immutable once built and are compared by pointer identity:
// two structurally equal nodes are still different nodes.
type Type interface {
	// String returns the PHP-like notation of the type.
	String() string

	// Nodes returns the direct child nodes in traversal order.
	Nodes() []Type

	// Attributes returns the metadata attached to the node.
	Attributes() Attributes

	// withNodes returns a shallow copy of the node with its children
	// replaced. The slice must have the length returned by Nodes.
	withNodes(nodes []Type) Type

	holder() *attributed
}

type attributed struct {
	attrs Attributes
}

func (a *attributed) Attributes() Attributes {
	return a.attrs
}

// SetAttribute stores a metadata value on the node.
func (a *attributed) SetAttribute(key string, value any) {
	if a.attrs == nil {
		a.attrs = Attributes{}
	}
	a.attrs[key] = value
}

func (a *attributed) holder() *attributed {
	return a
}

// MergeAttributes returns t carrying the given attributes in addition to its own.
// The node itself is never modified; a copy is returned when there is
// something to merge.
func MergeAttributes(t Type, attrs Attributes) Type {
	if t == nil || len(attrs) == 0 {
		return t
	}

	c := Clone(t)
	merged := make(Attributes, len(attrs)+len(c.Attributes()))
	maps.Copy(merged, c.Attributes())
	maps.Copy(merged, attrs)
	c.holder().attrs = merged
	return c
}

// Clone returns a shallow copy of t. Children are shared.
func Clone(t Type) Type {
	return t.withNodes(t.Nodes())
}

// MixedType represents the PHP mixed type
type MixedType struct{ attributed }

func NewMixedType() *MixedType { return &MixedType{} }

func (t *MixedType) String() string { return "mixed" }

func (t *MixedType) Nodes() []Type { return nil }

func (t *MixedType) withNodes([]Type) Type { c := *t; return &c }

// StringType represents the PHP string type
type StringType struct{ attributed }

func NewStringType() *StringType { return &StringType{} }

func (t *StringType) String() string { return "string" }

func (t *StringType) Nodes() []Type { return nil }

func (t *StringType) withNodes([]Type) Type { c := *t; return &c }

// IntType represents the PHP int type
type IntType struct{ attributed }

func NewIntType() *IntType { return &IntType{} }

func (t *IntType) String() string { return "int" }

func (t *IntType) Nodes() []Type { return nil }

func (t *IntType) withNodes([]Type) Type { c := *t; return &c }

// FloatType represents the PHP float type
type FloatType struct{ attributed }

func NewFloatType() *FloatType { return &FloatType{} }

func (t *FloatType) String() string { return "float" }

func (t *FloatType) Nodes() []Type { return nil }

func (t *FloatType) withNodes([]Type) Type { c := *t; return &c }

// BoolType represents the PHP bool type
type BoolType struct{ attributed }

func NewBoolType() *BoolType { return &BoolType{} }

func (t *BoolType) String() string { return "bool" }

func (t *BoolType) Nodes() []Type { return nil }

func (t *BoolType) withNodes([]Type) Type { c := *t; return &c }

// NullType represents the PHP null type
type NullType struct{ attributed }

func NewNullType() *NullType { return &NullType{} }

func (t *NullType) String() string { return "null" }

func (t *NullType) Nodes() []Type { return nil }

func (t *NullType) withNodes([]Type) Type { c := *t; return &c }

// VoidType represents the PHP void type
type VoidType struct{ attributed }

func NewVoidType() *VoidType { return &VoidType{} }

func (t *VoidType) String() string { return "void" }

func (t *VoidType) Nodes() []Type { return nil }

func (t *VoidType) withNodes([]Type) Type { c := *t; return &c }

// NeverType represents the PHP never type
type NeverType struct{ attributed }

func NewNeverType() *NeverType { return &NeverType{} }

func (t *NeverType) String() string { return "never" }

func (t *NeverType) Nodes() []Type { return nil }

func (t *NeverType) withNodes([]Type) Type { c := *t; return &c }

// UnknownType is the result of an inference that could not be completed.
// Comment optionally explains why.
type UnknownType struct {
	attributed
	Comment string
}

func NewUnknownType(comment string) *UnknownType {
	return &UnknownType{Comment: comment}
}

func (t *UnknownType) String() string { return "unknown" }

func (t *UnknownType) Nodes() []Type { return nil }

func (t *UnknownType) withNodes([]Type) Type { c := *t; return &c }

// ArrayType is a list-like or map-like array with a value type and an
// optional key type.
type ArrayType struct {
	attributed
	Value Type
	Key   Type
}

func NewArrayType(value, key Type) *ArrayType {
	if value == nil {
		value = NewMixedType()
	}
	return &ArrayType{Value: value, Key: key}
}

func (t *ArrayType) String() string {
	if t.Key == nil {
		return fmt.Sprintf("array<%s>", t.Value.String())
	}
	return fmt.Sprintf("array<%s, %s>", t.Key.String(), t.Value.String())
}

func (t *ArrayType) Nodes() []Type {
	if t.Key == nil {
		return []Type{t.Value}
	}
	return []Type{t.Value, t.Key}
}

func (t *ArrayType) withNodes(nodes []Type) Type {
	c := *t
	c.Value = nodes[0]
	if len(nodes) > 1 {
		c.Key = nodes[1]
	}
	return &c
}

// ArrayItem is one entry of a shaped array.
type ArrayItem struct {
	// Key is empty for positional items.
	Key      string
	Value    Type
	Optional bool
}

// KeyedArrayType is an array with a known shape, e.g. array{id: int, name?: string}.
type KeyedArrayType struct {
	attributed
	Items []ArrayItem
}

func NewKeyedArrayType(items ...ArrayItem) *KeyedArrayType {
	return &KeyedArrayType{Items: items}
}

func (t *KeyedArrayType) String() string {
	parts := make([]string, 0, len(t.Items))
	position := 0
	for _, item := range t.Items {
		key := item.Key
		if key == "" {
			key = fmt.Sprint(position)
			position++
		}
		if item.Optional {
			key += "?"
		}
		parts = append(parts, key+": "+item.Value.String())
	}
	return "array{" + strings.Join(parts, ", ") + "}"
}

func (t *KeyedArrayType) Nodes() []Type {
	nodes := make([]Type, len(t.Items))
	for i, item := range t.Items {
		nodes[i] = item.Value
	}
	return nodes
}

func (t *KeyedArrayType) withNodes(nodes []Type) Type {
	c := *t
	c.Items = make([]ArrayItem, len(t.Items))
	for i, item := range t.Items {
		item.Value = nodes[i]
		c.Items[i] = item
	}
	return &c
}

// ObjectLike is implemented by types naming a class instance.
type ObjectLike interface {
	Type
	ClassName() string
}

// ObjectType is an instance of a class
type ObjectType struct {
	attributed
	Name string
}

func NewObjectType(name string) *ObjectType {
	return &ObjectType{Name: NormalizeClassName(name)}
}

func (t *ObjectType) String() string { return t.Name }

func (t *ObjectType) ClassName() string { return t.Name }

func (t *ObjectType) Nodes() []Type { return nil }

func (t *ObjectType) withNodes([]Type) Type { c := *t; return &c }

// Generic is an instance of a templated class with its template arguments,
// in the order the class declares its templates.
type Generic struct {
	attributed
	Name          string
	TemplateTypes []Type
}

func NewGeneric(name string, templateTypes ...Type) *Generic {
	return &Generic{Name: NormalizeClassName(name), TemplateTypes: templateTypes}
}

func (t *Generic) String() string {
	args := make([]string, len(t.TemplateTypes))
	for i, arg := range t.TemplateTypes {
		args[i] = arg.String()
	}
	return t.Name + "<" + strings.Join(args, ", ") + ">"
}

func (t *Generic) ClassName() string { return t.Name }

func (t *Generic) Nodes() []Type { return t.TemplateTypes }

func (t *Generic) withNodes(nodes []Type) Type {
	c := *t
	c.TemplateTypes = append([]Type(nil), nodes...)
	return &c
}

// TemplateType is a type variable declared by a class or a function.
// Is holds the upper bound from "@template T of Bound", if any.
//
// Template nodes are leaves: substitution matches them either by name or by
// pointer identity, so they are never rebuilt by a rewrite.
type TemplateType struct {
	attributed
	Name string
	Is   Type
}

func NewTemplateType(name string, is Type) *TemplateType {
	return &TemplateType{Name: name, Is: is}
}

func (t *TemplateType) String() string { return t.Name }

func (t *TemplateType) Nodes() []Type { return nil }

func (t *TemplateType) withNodes([]Type) Type { c := *t; return &c }

// SelfType stands for the class the surrounding code is resolved in.
type SelfType struct{ attributed }

func NewSelfType() *SelfType { return &SelfType{} }

func (t *SelfType) String() string { return "self" }

func (t *SelfType) Nodes() []Type { return nil }

func (t *SelfType) withNodes([]Type) Type { c := *t; return &c }

// Union is a set of alternative types. Members keep the order they were added in.
type Union struct {
	attributed
	Types []Type
}

func NewUnion(types ...Type) *Union {
	return &Union{Types: types}
}

func (t *Union) String() string {
	parts := make([]string, len(t.Types))
	for i, member := range t.Types {
		parts[i] = member.String()
	}
	return strings.Join(parts, "|")
}

func (t *Union) Nodes() []Type { return t.Types }

func (t *Union) withNodes(nodes []Type) Type {
	c := *t
	c.Types = append([]Type(nil), nodes...)
	return &c
}

// Parameter is a declared parameter of a function type.
type Parameter struct {
	Name       string
	Type       Type
	HasDefault bool
}

// FunctionType describes a callable: its parameters, return type and the
// templates it declares.
type FunctionType struct {
	attributed
	Parameters []Parameter
	ReturnType Type
	Templates  []*TemplateType
}

func NewFunctionType(returnType Type, parameters ...Parameter) *FunctionType {
	if returnType == nil {
		returnType = NewMixedType()
	}
	return &FunctionType{Parameters: parameters, ReturnType: returnType}
}

func (t *FunctionType) String() string {
	params := make([]string, len(t.Parameters))
	for i, p := range t.Parameters {
		params[i] = p.Type.String() + " $" + p.Name
		if p.HasDefault {
			params[i] += " = ..."
		}
	}
	return "(" + strings.Join(params, ", ") + "): " + t.ReturnType.String()
}

func (t *FunctionType) Nodes() []Type {
	nodes := make([]Type, 0, len(t.Parameters)+1)
	for _, p := range t.Parameters {
		nodes = append(nodes, p.Type)
	}
	return append(nodes, t.ReturnType)
}

func (t *FunctionType) withNodes(nodes []Type) Type {
	c := *t
	c.Parameters = make([]Parameter, len(t.Parameters))
	for i, p := range t.Parameters {
		p.Type = nodes[i]
		c.Parameters[i] = p
	}
	c.ReturnType = nodes[len(nodes)-1]
	return &c
}

// Parameter returns the declared parameter with the given name.
func (t *FunctionType) Parameter(name string) (Parameter, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// CallableStringType is a string literal known to name a function, e.g. 'strlen'.
type CallableStringType struct {
	attributed
	Name string
}

func NewCallableStringType(name string) *CallableStringType {
	return &CallableStringType{Name: strings.TrimPrefix(name, "\\")}
}

func (t *CallableStringType) String() string { return fmt.Sprintf("callable-string(%s)", t.Name) }

func (t *CallableStringType) Nodes() []Type { return nil }

func (t *CallableStringType) withNodes([]Type) Type { c := *t; return &c }

// NormalizeClassName strips the leading namespace separator of a fully
// qualified class name.
func NormalizeClassName(name string) string {
	return strings.TrimPrefix(name, "\\")
}
