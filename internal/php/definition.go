package php

// ClassDefinition is what the analysis of a class declaration produced.
type ClassDefinition struct {
	Name       string
	Parent     string
	Templates  []*TemplateType
	Methods    map[string]*FunctionLikeDefinition
	Properties map[string]*PropertyDefinition
	Path       string
	Line       int
}

func NewClassDefinition(name, parent string) *ClassDefinition {
	return &ClassDefinition{
		Name:       NormalizeClassName(name),
		Parent:     NormalizeClassName(parent),
		Methods:    map[string]*FunctionLikeDefinition{},
		Properties: map[string]*PropertyDefinition{},
	}
}

// Template returns the template the class declares under the given name.
func (c *ClassDefinition) Template(name string) *TemplateType {
	for _, t := range c.Templates {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// TemplateIndex maps the class template names to their declaration position.
func (c *ClassDefinition) TemplateIndex() map[string]int {
	index := make(map[string]int, len(c.Templates))
	for i, t := range c.Templates {
		index[t.Name] = i
	}
	return index
}

// PropertyDefinition is a declared property. Default is the type of the
// default value, nil when the property has none.
type PropertyDefinition struct {
	Type    Type
	Default Type
}

// FunctionLikeDefinition describes a function or a method.
type FunctionLikeDefinition struct {
	Name string
	Type *FunctionType
	// ArgumentDefaults holds the types of parameter default values by parameter name.
	ArgumentDefaults map[string]Type
	SideEffects      []SideEffect
	// DefiningClass is the class that declares the method, empty for functions.
	DefiningClass string
}

// NewFunctionLikeDefinition wraps a function type into a definition without
// defaults or side effects.
func NewFunctionLikeDefinition(name string, fn *FunctionType) *FunctionLikeDefinition {
	return &FunctionLikeDefinition{Name: name, Type: fn, ArgumentDefaults: map[string]Type{}}
}

// ParentConstructCall returns the first recorded parent::__construct call.
func (f *FunctionLikeDefinition) ParentConstructCall() *ParentConstructCall {
	for _, effect := range f.SideEffects {
		if call, ok := effect.(*ParentConstructCall); ok {
			return call
		}
	}
	return nil
}

// SideEffect is a fact about a call beyond its return value.
type SideEffect interface {
	sideEffect()
}

// ParentConstructCall records that a constructor calls its parent
// constructor with the given arguments.
type ParentConstructCall struct {
	Arguments []Argument
}

func (*ParentConstructCall) sideEffect() {}

// SelfTemplateDefinition records that a method returning the object it was
// called on sets the class template Template to Type.
type SelfTemplateDefinition struct {
	Template string
	Type     Type
}

func (*SelfTemplateDefinition) sideEffect() {}
