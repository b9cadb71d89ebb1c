package php

import (
	"fmt"
	"strings"
)

// Class name keywords understood by static calls and new expressions.
const (
	KeywordSelf   = "self"
	KeywordStatic = "static"
	KeywordParent = "parent"
)

// IsClassKeyword reports whether name is self, static or parent.
func IsClassKeyword(name string) bool {
	switch strings.ToLower(name) {
	case KeywordSelf, KeywordStatic, KeywordParent:
		return true
	}
	return false
}

// Argument is an argument of a call. Name is empty for positional arguments.
type Argument struct {
	Name string
	Type Type
}

// Reference is a deferred type: the type of a call or property access that
// could not be known when the surrounding code was analyzed.
type Reference interface {
	Type
	Dependencies() []Dependency
}

// IsReference reports whether t is a deferred reference node.
func IsReference(t Type) bool {
	_, ok := t.(Reference)
	return ok
}

func formatArguments(args []Argument) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		if arg.Name != "" {
			parts[i] = arg.Name + ": " + arg.Type.String()
			continue
		}
		parts[i] = arg.Type.String()
	}
	return strings.Join(parts, ", ")
}

func argumentNodes(prefix []Type, args []Argument) []Type {
	nodes := make([]Type, 0, len(prefix)+len(args))
	nodes = append(nodes, prefix...)
	for _, arg := range args {
		nodes = append(nodes, arg.Type)
	}
	return nodes
}

func argumentsWithNodes(args []Argument, nodes []Type) []Argument {
	out := make([]Argument, len(args))
	for i, arg := range args {
		out[i] = Argument{Name: arg.Name, Type: nodes[i]}
	}
	return out
}

// MethodCallReference is the type of $callee->method(...arguments).
type MethodCallReference struct {
	attributed
	Callee    Type
	Method    string
	Arguments []Argument
	Deps      []Dependency
}

func NewMethodCallReference(callee Type, method string, arguments ...Argument) *MethodCallReference {
	return &MethodCallReference{Callee: callee, Method: method, Arguments: arguments}
}

func (t *MethodCallReference) String() string {
	return fmt.Sprintf("(#%s).%s(%s)", t.Callee.String(), t.Method, formatArguments(t.Arguments))
}

func (t *MethodCallReference) Nodes() []Type {
	return argumentNodes([]Type{t.Callee}, t.Arguments)
}

func (t *MethodCallReference) withNodes(nodes []Type) Type {
	c := *t
	c.Callee = nodes[0]
	c.Arguments = argumentsWithNodes(t.Arguments, nodes[1:])
	return &c
}

func (t *MethodCallReference) Dependencies() []Dependency { return t.Deps }

// StaticMethodCallReference is the type of Callee::method(...arguments) where
// Callee is a class name or one of self, static and parent.
type StaticMethodCallReference struct {
	attributed
	Callee    string
	Method    string
	Arguments []Argument
	Deps      []Dependency
}

func NewStaticMethodCallReference(callee, method string, arguments ...Argument) *StaticMethodCallReference {
	return &StaticMethodCallReference{Callee: NormalizeClassName(callee), Method: method, Arguments: arguments}
}

func (t *StaticMethodCallReference) String() string {
	return fmt.Sprintf("(#%s)::%s(%s)", t.Callee, t.Method, formatArguments(t.Arguments))
}

func (t *StaticMethodCallReference) Nodes() []Type {
	return argumentNodes(nil, t.Arguments)
}

func (t *StaticMethodCallReference) withNodes(nodes []Type) Type {
	c := *t
	c.Arguments = argumentsWithNodes(t.Arguments, nodes)
	return &c
}

func (t *StaticMethodCallReference) Dependencies() []Dependency { return t.Deps }

// CallableCallReference is the type of invoking a callable value.
type CallableCallReference struct {
	attributed
	Callee    Type
	Arguments []Argument
	Deps      []Dependency
}

func NewCallableCallReference(callee Type, arguments ...Argument) *CallableCallReference {
	return &CallableCallReference{Callee: callee, Arguments: arguments}
}

func (t *CallableCallReference) String() string {
	return fmt.Sprintf("(#%s)(%s)", t.Callee.String(), formatArguments(t.Arguments))
}

func (t *CallableCallReference) Nodes() []Type {
	return argumentNodes([]Type{t.Callee}, t.Arguments)
}

func (t *CallableCallReference) withNodes(nodes []Type) Type {
	c := *t
	c.Callee = nodes[0]
	c.Arguments = argumentsWithNodes(t.Arguments, nodes[1:])
	return &c
}

func (t *CallableCallReference) Dependencies() []Dependency { return t.Deps }

// NewCallReference is the type of new Name(...arguments).
type NewCallReference struct {
	attributed
	Name      string
	Arguments []Argument
	Deps      []Dependency
}

func NewNewCallReference(name string, arguments ...Argument) *NewCallReference {
	return &NewCallReference{Name: NormalizeClassName(name), Arguments: arguments}
}

func (t *NewCallReference) String() string {
	return fmt.Sprintf("(#new %s)(%s)", t.Name, formatArguments(t.Arguments))
}

func (t *NewCallReference) Nodes() []Type {
	return argumentNodes(nil, t.Arguments)
}

func (t *NewCallReference) withNodes(nodes []Type) Type {
	c := *t
	c.Arguments = argumentsWithNodes(t.Arguments, nodes)
	return &c
}

func (t *NewCallReference) Dependencies() []Dependency { return t.Deps }

// PropertyFetchReference is the type of $object->property.
type PropertyFetchReference struct {
	attributed
	Object   Type
	Property string
	Deps     []Dependency
}

func NewPropertyFetchReference(object Type, property string) *PropertyFetchReference {
	return &PropertyFetchReference{Object: object, Property: property}
}

func (t *PropertyFetchReference) String() string {
	return fmt.Sprintf("(#%s).%s", t.Object.String(), t.Property)
}

func (t *PropertyFetchReference) Nodes() []Type { return []Type{t.Object} }

func (t *PropertyFetchReference) withNodes(nodes []Type) Type {
	c := *t
	c.Object = nodes[0]
	return &c
}

func (t *PropertyFetchReference) Dependencies() []Dependency { return t.Deps }

// Dependency names a declaration that must be indexed before a reference
// can be resolved.
type Dependency interface {
	fmt.Stringer
	dependency()
}

type FunctionDependency struct {
	Name string
}

func (d FunctionDependency) String() string { return "function " + d.Name }

func (FunctionDependency) dependency() {}

type ClassDependency struct {
	Class string
}

func (d ClassDependency) String() string { return "class " + d.Class }

func (ClassDependency) dependency() {}

type MethodDependency struct {
	Class string
	Name  string
}

func (d MethodDependency) String() string { return "method " + d.Class + "::" + d.Name }

func (MethodDependency) dependency() {}

type PropertyDependency struct {
	Class string
	Name  string
}

func (d PropertyDependency) String() string { return "property " + d.Class + "::$" + d.Name }

func (PropertyDependency) dependency() {}
