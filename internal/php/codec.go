package php

import (
	"fmt"
	"maps"
	"slices"
)

// TypeNode is the serializable form of a type tree. Template nodes are
// stored by name and bound again to the declaring class or function when
// decoded, so template identity survives a round trip.
type TypeNode struct {
	Kind     string             `msgpack:"k"`
	Name     string             `msgpack:"n,omitempty"`
	Text     string             `msgpack:"t,omitempty"`
	Children []*TypeNode        `msgpack:"c,omitempty"`
	Keys     []string           `msgpack:"ks,omitempty"`
	Flags    []bool             `msgpack:"f,omitempty"`
	Deps     []DependencyRecord `msgpack:"d,omitempty"`
	Attrs    map[string]string  `msgpack:"a,omitempty"`
	// Templates declared by a function type.
	Templates []TemplateRecord `msgpack:"tp,omitempty"`
}

type DependencyRecord struct {
	Kind  string `msgpack:"k"`
	Class string `msgpack:"c,omitempty"`
	Name  string `msgpack:"n,omitempty"`
}

type TemplateRecord struct {
	Name string    `msgpack:"n"`
	Is   *TypeNode `msgpack:"is,omitempty"`
}

type PropertyRecord struct {
	Name    string
	Type    *TypeNode
	Default *TypeNode
}

type ParameterRecord struct {
	Name    string
	Type    *TypeNode
	Default *TypeNode
}

type SideEffectRecord struct {
	Kind          string
	Template      string
	Type          *TypeNode
	ArgumentNames []string
	Arguments     []*TypeNode
}

type FunctionRecord struct {
	Name          string
	DefiningClass string
	Templates     []TemplateRecord
	Parameters    []ParameterRecord
	Return        *TypeNode
	SideEffects   []SideEffectRecord
}

// ClassRecord is the stored form of a ClassDefinition.
type ClassRecord struct {
	Name       string
	Parent     string
	Path       string
	Line       int
	Templates  []TemplateRecord
	Methods    []FunctionRecord
	Properties []PropertyRecord
}

const (
	kindMixed          = "mixed"
	kindString         = "string"
	kindInt            = "int"
	kindFloat          = "float"
	kindBool           = "bool"
	kindNull           = "null"
	kindVoid           = "void"
	kindNever          = "never"
	kindUnknown        = "unknown"
	kindArray          = "array"
	kindKeyedArray     = "keyed-array"
	kindObject         = "object"
	kindGeneric        = "generic"
	kindTemplate       = "template"
	kindSelf           = "self"
	kindUnion          = "union"
	kindFunction       = "function"
	kindCallableString = "callable-string"
	kindMethodCall     = "method-call"
	kindStaticCall     = "static-call"
	kindCallableCall   = "callable-call"
	kindNewCall        = "new"
	kindPropertyFetch  = "property-fetch"

	sideEffectParentConstruct = "parent-construct"
	sideEffectSelfTemplate    = "self-template"
)

// EncodeType converts a type tree into its serializable form.
func EncodeType(t Type) *TypeNode {
	if t == nil {
		return nil
	}

	n := &TypeNode{}
	for key, value := range t.Attributes() {
		if s, ok := value.(string); ok {
			if n.Attrs == nil {
				n.Attrs = map[string]string{}
			}
			n.Attrs[key] = s
		}
	}

	switch v := t.(type) {
	case *MixedType:
		n.Kind = kindMixed
	case *StringType:
		n.Kind = kindString
	case *IntType:
		n.Kind = kindInt
	case *FloatType:
		n.Kind = kindFloat
	case *BoolType:
		n.Kind = kindBool
	case *NullType:
		n.Kind = kindNull
	case *VoidType:
		n.Kind = kindVoid
	case *NeverType:
		n.Kind = kindNever
	case *UnknownType:
		n.Kind, n.Text = kindUnknown, v.Comment
	case *ArrayType:
		n.Kind = kindArray
		n.Children = encodeTypes(v.Nodes())
	case *KeyedArrayType:
		n.Kind = kindKeyedArray
		for _, item := range v.Items {
			n.Keys = append(n.Keys, item.Key)
			n.Flags = append(n.Flags, item.Optional)
			n.Children = append(n.Children, EncodeType(item.Value))
		}
	case *ObjectType:
		n.Kind, n.Name = kindObject, v.Name
	case *Generic:
		n.Kind, n.Name = kindGeneric, v.Name
		n.Children = encodeTypes(v.TemplateTypes)
	case *TemplateType:
		n.Kind, n.Name = kindTemplate, v.Name
		if v.Is != nil {
			n.Children = []*TypeNode{EncodeType(v.Is)}
		}
	case *SelfType:
		n.Kind = kindSelf
	case *Union:
		n.Kind = kindUnion
		n.Children = encodeTypes(v.Types)
	case *FunctionType:
		n.Kind = kindFunction
		for _, p := range v.Parameters {
			n.Keys = append(n.Keys, p.Name)
			n.Flags = append(n.Flags, p.HasDefault)
		}
		n.Children = encodeTypes(v.Nodes())
		n.Templates = encodeTemplates(v.Templates)
	case *CallableStringType:
		n.Kind, n.Name = kindCallableString, v.Name
	case *MethodCallReference:
		n.Kind, n.Name = kindMethodCall, v.Method
		n.Children, n.Keys = encodeArguments([]Type{v.Callee}, v.Arguments)
		n.Deps = encodeDependencies(v.Deps)
	case *StaticMethodCallReference:
		n.Kind, n.Name, n.Text = kindStaticCall, v.Method, v.Callee
		n.Children, n.Keys = encodeArguments(nil, v.Arguments)
		n.Deps = encodeDependencies(v.Deps)
	case *CallableCallReference:
		n.Kind = kindCallableCall
		n.Children, n.Keys = encodeArguments([]Type{v.Callee}, v.Arguments)
		n.Deps = encodeDependencies(v.Deps)
	case *NewCallReference:
		n.Kind, n.Name = kindNewCall, v.Name
		n.Children, n.Keys = encodeArguments(nil, v.Arguments)
		n.Deps = encodeDependencies(v.Deps)
	case *PropertyFetchReference:
		n.Kind, n.Name = kindPropertyFetch, v.Property
		n.Children = []*TypeNode{EncodeType(v.Object)}
		n.Deps = encodeDependencies(v.Deps)
	default:
		n.Kind, n.Text = kindUnknown, fmt.Sprintf("unsupported type %T", t)
	}

	return n
}

func encodeTypes(types []Type) []*TypeNode {
	nodes := make([]*TypeNode, len(types))
	for i, t := range types {
		nodes[i] = EncodeType(t)
	}
	return nodes
}

func encodeArguments(prefix []Type, args []Argument) ([]*TypeNode, []string) {
	nodes := encodeTypes(prefix)
	names := make([]string, len(args))
	for i, arg := range args {
		nodes = append(nodes, EncodeType(arg.Type))
		names[i] = arg.Name
	}
	return nodes, names
}

func encodeTemplates(templates []*TemplateType) []TemplateRecord {
	records := make([]TemplateRecord, len(templates))
	for i, t := range templates {
		records[i] = TemplateRecord{Name: t.Name, Is: EncodeType(t.Is)}
	}
	return records
}

func encodeDependencies(deps []Dependency) []DependencyRecord {
	var records []DependencyRecord
	for _, dep := range deps {
		switch d := dep.(type) {
		case FunctionDependency:
			records = append(records, DependencyRecord{Kind: "function", Name: d.Name})
		case ClassDependency:
			records = append(records, DependencyRecord{Kind: "class", Class: d.Class})
		case MethodDependency:
			records = append(records, DependencyRecord{Kind: "method", Class: d.Class, Name: d.Name})
		case PropertyDependency:
			records = append(records, DependencyRecord{Kind: "property", Class: d.Class, Name: d.Name})
		}
	}
	return records
}

// templateScope binds template names to nodes while decoding.
type templateScope map[string]*TemplateType

func (s templateScope) with(templates []*TemplateType) templateScope {
	scope := make(templateScope, len(s)+len(templates))
	for name, t := range s {
		scope[name] = t
	}
	for _, t := range templates {
		scope[t.Name] = t
	}
	return scope
}

func (s templateScope) declare(records []TemplateRecord) []*TemplateType {
	templates := make([]*TemplateType, 0, len(records))
	for _, r := range records {
		t := NewTemplateType(r.Name, nil)
		s[r.Name] = t
		templates = append(templates, t)
	}
	// bounds may refer to templates declared in the same list
	for i, r := range records {
		templates[i].Is = s.decode(r.Is)
	}
	return templates
}

// DecodeType rebuilds a type tree. Template nodes are bound to the given
// templates by name; names not among them become fresh template nodes.
func DecodeType(n *TypeNode, templates ...*TemplateType) Type {
	return templateScope{}.with(templates).decode(n)
}

func (s templateScope) decode(n *TypeNode) Type {
	if n == nil {
		return nil
	}

	t := s.decodeNode(n)
	if _, isTemplate := t.(*TemplateType); isTemplate {
		return t
	}
	for key, value := range n.Attrs {
		t.holder().SetAttribute(key, value)
	}
	return t
}

func (s templateScope) decodeNode(n *TypeNode) Type {
	switch n.Kind {
	case kindMixed:
		return NewMixedType()
	case kindString:
		return NewStringType()
	case kindInt:
		return NewIntType()
	case kindFloat:
		return NewFloatType()
	case kindBool:
		return NewBoolType()
	case kindNull:
		return NewNullType()
	case kindVoid:
		return NewVoidType()
	case kindNever:
		return NewNeverType()
	case kindArray:
		children := s.decodeAll(n.Children)
		if len(children) == 0 {
			return NewArrayType(nil, nil)
		}
		if len(children) == 1 {
			return NewArrayType(children[0], nil)
		}
		return NewArrayType(children[0], children[1])
	case kindKeyedArray:
		items := make([]ArrayItem, len(n.Children))
		for i, child := range n.Children {
			items[i] = ArrayItem{Key: at(n.Keys, i), Value: s.decode(child), Optional: i < len(n.Flags) && n.Flags[i]}
		}
		return NewKeyedArrayType(items...)
	case kindObject:
		return NewObjectType(n.Name)
	case kindGeneric:
		return NewGeneric(n.Name, s.decodeAll(n.Children)...)
	case kindTemplate:
		if t, ok := s[n.Name]; ok {
			return t
		}
		var is Type
		if len(n.Children) > 0 {
			is = s.decode(n.Children[0])
		}
		t := NewTemplateType(n.Name, is)
		s[n.Name] = t
		return t
	case kindSelf:
		return NewSelfType()
	case kindUnion:
		return NewUnion(s.decodeAll(n.Children)...)
	case kindFunction:
		inner := s.with(nil)
		templates := inner.declare(n.Templates)
		children := inner.decodeAll(n.Children)
		if len(children) == 0 {
			return NewFunctionType(nil)
		}
		params := make([]Parameter, len(children)-1)
		for i := range params {
			params[i] = Parameter{Name: at(n.Keys, i), Type: children[i], HasDefault: i < len(n.Flags) && n.Flags[i]}
		}
		fn := NewFunctionType(children[len(children)-1], params...)
		fn.Templates = templates
		return fn
	case kindCallableString:
		return NewCallableStringType(n.Name)
	case kindMethodCall:
		children := s.decodeAll(n.Children)
		if len(children) == 0 {
			return NewUnknownType("malformed method call reference")
		}
		ref := NewMethodCallReference(children[0], n.Name, decodeArguments(children[1:], n.Keys)...)
		ref.Deps = decodeDependencies(n.Deps)
		return ref
	case kindStaticCall:
		ref := NewStaticMethodCallReference(n.Text, n.Name, decodeArguments(s.decodeAll(n.Children), n.Keys)...)
		ref.Deps = decodeDependencies(n.Deps)
		return ref
	case kindCallableCall:
		children := s.decodeAll(n.Children)
		if len(children) == 0 {
			return NewUnknownType("malformed callable call reference")
		}
		ref := NewCallableCallReference(children[0], decodeArguments(children[1:], n.Keys)...)
		ref.Deps = decodeDependencies(n.Deps)
		return ref
	case kindNewCall:
		ref := NewNewCallReference(n.Name, decodeArguments(s.decodeAll(n.Children), n.Keys)...)
		ref.Deps = decodeDependencies(n.Deps)
		return ref
	case kindPropertyFetch:
		if len(n.Children) == 0 {
			return NewUnknownType("malformed property fetch reference")
		}
		ref := NewPropertyFetchReference(s.decode(n.Children[0]), n.Name)
		ref.Deps = decodeDependencies(n.Deps)
		return ref
	}

	return NewUnknownType(n.Text)
}

func (s templateScope) decodeAll(nodes []*TypeNode) []Type {
	types := make([]Type, len(nodes))
	for i, n := range nodes {
		types[i] = s.decode(n)
	}
	return types
}

func decodeArguments(types []Type, names []string) []Argument {
	args := make([]Argument, len(types))
	for i, t := range types {
		args[i] = Argument{Name: at(names, i), Type: t}
	}
	return args
}

func decodeDependencies(records []DependencyRecord) []Dependency {
	var deps []Dependency
	for _, r := range records {
		switch r.Kind {
		case "function":
			deps = append(deps, FunctionDependency{Name: r.Name})
		case "class":
			deps = append(deps, ClassDependency{Class: r.Class})
		case "method":
			deps = append(deps, MethodDependency{Class: r.Class, Name: r.Name})
		case "property":
			deps = append(deps, PropertyDependency{Class: r.Class, Name: r.Name})
		}
	}
	return deps
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

// EncodeClass converts a class definition into its stored form.
func EncodeClass(c *ClassDefinition) ClassRecord {
	r := ClassRecord{
		Name:      c.Name,
		Parent:    c.Parent,
		Path:      c.Path,
		Line:      c.Line,
		Templates: encodeTemplates(c.Templates),
	}

	for _, name := range sortedKeys(c.Methods) {
		r.Methods = append(r.Methods, EncodeFunction(c.Methods[name]))
	}
	for _, name := range sortedKeys(c.Properties) {
		p := c.Properties[name]
		r.Properties = append(r.Properties, PropertyRecord{Name: name, Type: EncodeType(p.Type), Default: EncodeType(p.Default)})
	}

	return r
}

// DecodeClass rebuilds a class definition from its stored form.
func DecodeClass(r ClassRecord) *ClassDefinition {
	c := NewClassDefinition(r.Name, r.Parent)
	c.Path, c.Line = r.Path, r.Line

	scope := templateScope{}
	c.Templates = scope.declare(r.Templates)

	for _, p := range r.Properties {
		c.Properties[p.Name] = &PropertyDefinition{Type: scope.decode(p.Type), Default: scope.decode(p.Default)}
	}
	for _, m := range r.Methods {
		c.Methods[m.Name] = decodeFunction(m, scope)
	}

	return c
}

// EncodeFunction converts a function or method definition into its stored form.
func EncodeFunction(f *FunctionLikeDefinition) FunctionRecord {
	r := FunctionRecord{
		Name:          f.Name,
		DefiningClass: f.DefiningClass,
	}
	if f.Type != nil {
		r.Templates = encodeTemplates(f.Type.Templates)
		r.Return = EncodeType(f.Type.ReturnType)
		for _, p := range f.Type.Parameters {
			param := ParameterRecord{Name: p.Name, Type: EncodeType(p.Type)}
			if def, ok := f.ArgumentDefaults[p.Name]; ok {
				param.Default = EncodeType(def)
			}
			r.Parameters = append(r.Parameters, param)
		}
	}

	for _, effect := range f.SideEffects {
		switch e := effect.(type) {
		case *ParentConstructCall:
			record := SideEffectRecord{Kind: sideEffectParentConstruct}
			for _, arg := range e.Arguments {
				record.ArgumentNames = append(record.ArgumentNames, arg.Name)
				record.Arguments = append(record.Arguments, EncodeType(arg.Type))
			}
			r.SideEffects = append(r.SideEffects, record)
		case *SelfTemplateDefinition:
			r.SideEffects = append(r.SideEffects, SideEffectRecord{Kind: sideEffectSelfTemplate, Template: e.Template, Type: EncodeType(e.Type)})
		}
	}

	return r
}

// DecodeFunction rebuilds a function definition. classTemplates are the
// templates of the declaring class, if any.
func DecodeFunction(r FunctionRecord, classTemplates ...*TemplateType) *FunctionLikeDefinition {
	return decodeFunction(r, templateScope{}.with(classTemplates))
}

func decodeFunction(r FunctionRecord, classScope templateScope) *FunctionLikeDefinition {
	scope := classScope.with(nil)
	templates := scope.declare(r.Templates)

	params := make([]Parameter, len(r.Parameters))
	defaults := map[string]Type{}
	for i, p := range r.Parameters {
		params[i] = Parameter{Name: p.Name, Type: scope.decode(p.Type), HasDefault: p.Default != nil}
		if p.Default != nil {
			defaults[p.Name] = scope.decode(p.Default)
		}
	}

	fn := NewFunctionType(scope.decode(r.Return), params...)
	fn.Templates = templates

	def := NewFunctionLikeDefinition(r.Name, fn)
	def.ArgumentDefaults = defaults
	def.DefiningClass = r.DefiningClass

	for _, e := range r.SideEffects {
		switch e.Kind {
		case sideEffectParentConstruct:
			def.SideEffects = append(def.SideEffects, &ParentConstructCall{Arguments: decodeArguments(scope.decodeAll(e.Arguments), e.ArgumentNames)})
		case sideEffectSelfTemplate:
			def.SideEffects = append(def.SideEffects, &SelfTemplateDefinition{Template: e.Template, Type: scope.decode(e.Type)})
		}
	}

	return def
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
