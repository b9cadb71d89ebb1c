package infer

import (
	"strings"
	"testing"
	"time"

	"github.com/shopware/php-infer/internal/php"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolve(t *testing.T, r *Resolver, scope *Scope, typ php.Type) php.Type {
	t.Helper()
	resolved, err := r.Resolve(scope, typ)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	return resolved
}

func requireUnknown(t *testing.T, typ php.Type, contains ...string) *php.UnknownType {
	t.Helper()
	unknown, ok := typ.(*php.UnknownType)
	require.True(t, ok, "expected unknown, got %s", typ.String())
	for _, s := range contains {
		assert.Contains(t, unknown.Comment, s)
	}
	return unknown
}

func TestResolve_MethodCall(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	tests := []struct {
		name     string
		typ      php.Type
		expected string
	}{
		{
			name:     "class template bound by generic",
			typ:      php.NewMethodCallReference(php.NewGeneric("App\\Box", php.NewIntType()), "get"),
			expected: "int",
		},
		{
			name:     "self return is the called-on type",
			typ:      php.NewMethodCallReference(php.NewGeneric("App\\Box", php.NewStringType()), "self"),
			expected: "App\\Box<string>",
		},
		{
			name:     "plain object leaves class templates unknown",
			typ:      php.NewMethodCallReference(php.NewObjectType("App\\Box"), "get"),
			expected: "unknown",
		},
		{
			name: "chained call",
			typ: php.NewMethodCallReference(
				php.NewMethodCallReference(php.NewGeneric("App\\Box", php.NewFloatType()), "self"),
				"get",
			),
			expected: "float",
		},
		{
			name:     "template callee with bound",
			typ:      php.NewMethodCallReference(php.NewTemplateType("TBox", php.NewGeneric("App\\Box", php.NewBoolType())), "get"),
			expected: "bool",
		},
		{
			name:     "nested inside a type",
			typ:      php.NewArrayType(php.NewMethodCallReference(php.NewGeneric("App\\Box", php.NewIntType()), "get"), nil),
			expected: "array<int>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved := resolve(t, r, NewScope(nil, nil), tt.typ)
			assert.Equal(t, tt.expected, resolved.String())
			assert.False(t, HasResolvableReferences(resolved))
		})
	}
}

func TestResolve_MethodCallOnSelf(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	// $this->make() stays bound to the runtime class
	resolved := resolve(t, r, NewScope(f.foo, nil), php.NewMethodCallReference(php.NewSelfType(), "make"))
	assert.IsType(t, &php.SelfType{}, resolved)

	items := resolve(t, r, NewScope(f.foo, nil), php.NewPropertyFetchReference(php.NewSelfType(), "items"))
	assert.Equal(t, "array<int>", items.String())

	outside := resolve(t, r, NewScope(nil, nil), php.NewMethodCallReference(php.NewSelfType(), "make"))
	requireUnknown(t, outside, "make")
}

func TestResolve_MissingMember(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	resolved := resolve(t, r, NewScope(nil, nil), php.NewMethodCallReference(php.NewObjectType("App\\Foo"), "missing"))
	requireUnknown(t, resolved, "missing", "App\\Foo")

	unknownClass := resolve(t, r, NewScope(nil, nil), php.NewMethodCallReference(php.NewObjectType("App\\Nowhere"), "get"))
	requireUnknown(t, unknownClass, "App\\Nowhere")

	noObject := resolve(t, r, NewScope(nil, nil), php.NewMethodCallReference(php.NewIntType(), "get"))
	requireUnknown(t, noObject, "get", "int")
}

func TestResolve_DefersUnboundTemplates(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	template := php.NewTemplateType("TModel", nil)

	call := php.NewMethodCallReference(template, "save")
	resolved := resolve(t, r, NewScope(nil, nil), call)
	assert.Same(t, call, resolved)
	assert.True(t, HasResolvableReferences(resolved))

	fetch := php.NewPropertyFetchReference(template, "id")
	resolved = resolve(t, r, NewScope(nil, nil), fetch)
	assert.Same(t, fetch, resolved)

	// a call on a deferred callee is deferred too
	chained := php.NewMethodCallReference(call, "get")
	resolved = resolve(t, r, NewScope(nil, nil), chained)
	assert.True(t, HasResolvableReferences(resolved))
}

// countingIndex counts class lookups per lowercased name.
type countingIndex struct {
	DefinitionIndex
	lookups map[string]int
}

func (c *countingIndex) GetClass(name string) *php.ClassDefinition {
	c.lookups[strings.ToLower(php.NormalizeClassName(name))]++
	return c.DefinitionIndex.GetClass(name)
}

func TestResolve_DeferredChains(t *testing.T) {
	const depth = 30

	f := newFixture()
	index := &countingIndex{DefinitionIndex: f.index, lookups: map[string]int{}}
	r := NewResolver(index)

	methodChain := func(root php.Type, argument func() php.Type) php.Type {
		var chain php.Type = root
		for i := 0; i < depth; i++ {
			var args []php.Argument
			if argument != nil {
				args = append(args, arg(argument()))
			}
			chain = php.NewMethodCallReference(chain, "next", args...)
		}
		return chain
	}

	tests := []struct {
		name     string
		chain    php.Type
		expected php.Type
	}{
		{
			name:     "method calls on a template",
			chain:    methodChain(php.NewTemplateType("TModel", nil), nil),
			expected: methodChain(php.NewTemplateType("TModel", nil), nil),
		},
		{
			name: "method calls with resolvable arguments",
			chain: methodChain(php.NewTemplateType("TModel", nil), func() php.Type {
				return php.NewNewCallReference("App\\Box", arg(php.NewIntType()))
			}),
			expected: methodChain(php.NewTemplateType("TModel", nil), func() php.Type {
				return php.NewGeneric("App\\Box", php.NewIntType())
			}),
		},
		{
			name: "property fetches on an unknown class",
			chain: func() php.Type {
				var chain php.Type = php.NewObjectType("App\\Later")
				for i := 0; i < depth; i++ {
					chain = php.NewPropertyFetchReference(chain, "next")
				}
				return chain
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clear(index.lookups)

			start := time.Now()
			resolved := resolve(t, r, NewScope(nil, nil), tt.chain)
			assert.Less(t, time.Since(start), time.Second)

			assert.True(t, HasResolvableReferences(resolved))
			expected := tt.chain.String()
			if tt.expected != nil {
				expected = tt.expected.String()
			}
			assert.Equal(t, expected, resolved.String())
			for name, count := range index.lookups {
				assert.LessOrEqual(t, count, 4*depth, "lookups of %s", name)
			}
		})
	}

	t.Run("unknown class is looked up once", func(t *testing.T) {
		clear(index.lookups)

		var chain php.Type = php.NewObjectType("App\\Later")
		for i := 0; i < depth; i++ {
			chain = php.NewPropertyFetchReference(chain, "next")
		}
		_ = resolve(t, r, NewScope(nil, nil), chain)

		assert.Equal(t, 1, index.lookups["app\\later"])
	})
}

func TestResolve_SelfTemplateSideEffect(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	callee := php.NewGeneric("App\\Collection", php.NewIntType())
	call := php.NewMethodCallReference(callee, "withType", arg(php.NewStringType()))

	resolved := resolve(t, r, NewScope(nil, nil), call)
	assert.Equal(t, "App\\Collection<string>", resolved.String())

	// the callee node is not modified
	assert.Equal(t, "App\\Collection<int>", callee.String())

	first := resolve(t, r, NewScope(nil, nil), php.NewMethodCallReference(call, "first"))
	assert.Equal(t, "string", first.String())
}

func TestResolve_SelfTemplateSideEffectPadsMissingArguments(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	call := php.NewMethodCallReference(php.NewGeneric("App\\Collection"), "withType", namedArg("type", php.NewIntType()))
	resolved := resolve(t, r, NewScope(nil, nil), call)
	assert.Equal(t, "App\\Collection<int>", resolved.String())
}

func TestResolve_LogicErrors(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	t.Run("self template that the class does not declare", func(t *testing.T) {
		call := php.NewMethodCallReference(php.NewGeneric("App\\Collection", php.NewIntType()), "broken")

		resolved, err := r.Resolve(NewScope(nil, nil), call)
		assert.Nil(t, resolved)

		var logicErr *LogicError
		require.ErrorAs(t, err, &logicErr)
		assert.Contains(t, logicErr.Message, "TMissing")
	})

	t.Run("error does not leak into the next resolution", func(t *testing.T) {
		resolved, err := r.Resolve(NewScope(nil, nil), php.NewMethodCallReference(php.NewGeneric("App\\Box", php.NewIntType()), "get"))
		require.NoError(t, err)
		assert.Equal(t, "int", resolved.String())
	})
}

func TestResolve_CycleSafety(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	t.Run("method returning a call to itself", func(t *testing.T) {
		resolved := resolve(t, r, NewScope(nil, nil), php.NewMethodCallReference(php.NewObjectType("App\\Foo"), "loop"))
		requireUnknown(t, resolved)
	})

	t.Run("methods calling each other", func(t *testing.T) {
		resolved := resolve(t, r, NewScope(nil, nil), php.NewStaticMethodCallReference("App\\Ping", "ping"))
		requireUnknown(t, resolved)
	})
}

func TestResolve_TemplateSubstitutionTotality(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	tests := []struct {
		name     string
		args     []php.Argument
		expected string
	}{
		{"positional", []php.Argument{arg(php.NewIntType())}, "int"},
		{"named", []php.Argument{namedArg("value", php.NewStringType())}, "string"},
		{"missing", nil, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := php.NewCallableCallReference(php.NewCallableStringType("identity"), tt.args...)
			resolved := resolve(t, r, NewScope(nil, nil), call)
			assert.Equal(t, tt.expected, resolved.String())

			leftover := php.First(resolved, func(node php.Type) bool {
				template, ok := node.(*php.TemplateType)
				return ok && template == f.identity.Type.Templates[0]
			})
			assert.Nil(t, leftover)
		})
	}
}

func TestResolve_StaticMethodCall(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	t.Run("self return names the class", func(t *testing.T) {
		resolved := resolve(t, r, NewScope(nil, nil), php.NewStaticMethodCallReference("App\\Foo", "make"))
		assert.Equal(t, "App\\Foo", resolved.String())
	})

	t.Run("keywords resolve against the scope", func(t *testing.T) {
		scope := NewScope(f.foo, f.foo.Methods["loop"])
		for _, keyword := range []string{"self", "static"} {
			resolved := resolve(t, r, scope, php.NewStaticMethodCallReference(keyword, "make"))
			assert.Equal(t, "App\\Foo", resolved.String(), keyword)
		}
	})

	t.Run("parent", func(t *testing.T) {
		resolved := resolve(t, r, NewScope(f.child, nil), php.NewStaticMethodCallReference("parent", "__construct", arg(php.NewIntType())))
		assert.Equal(t, "void", resolved.String())
	})

	t.Run("parent in an inherited method", func(t *testing.T) {
		scope := NewScope(f.grandchild, f.child.Methods["__construct"])

		resolved := resolve(t, r, scope, php.NewNewCallReference("parent", arg(php.NewIntType())))
		assert.Equal(t, "App\\Base<int>", resolved.String())
	})

	t.Run("keyword outside of a class", func(t *testing.T) {
		resolved := resolve(t, r, NewScope(nil, nil), php.NewStaticMethodCallReference("self", "make"))
		requireUnknown(t, resolved, "outside of a class")
	})

	t.Run("parent without a parent class", func(t *testing.T) {
		resolved := resolve(t, r, NewScope(f.foo, nil), php.NewStaticMethodCallReference("parent", "make"))
		requireUnknown(t, resolved, "parent")
	})

	t.Run("unknown class", func(t *testing.T) {
		resolved := resolve(t, r, NewScope(nil, nil), php.NewStaticMethodCallReference("App\\Nowhere", "make"))
		requireUnknown(t, resolved, "App\\Nowhere")
	})
}

func TestResolve_NewCall(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	tests := []struct {
		name     string
		typ      php.Type
		scope    *Scope
		expected string
	}{
		{"template from constructor argument", php.NewNewCallReference("App\\Box", arg(php.NewIntType())), nil, "App\\Box<int>"},
		{"named constructor argument", php.NewNewCallReference("App\\Box", namedArg("value", php.NewStringType())), nil, "App\\Box<string>"},
		{"missing argument", php.NewNewCallReference("App\\Box"), nil, "App\\Box<unknown>"},
		{"class without templates", php.NewNewCallReference("App\\Foo"), nil, "App\\Foo"},
		{"unanalyzable class", php.NewNewCallReference("Vendor\\Unanalyzable"), nil, "Vendor\\Unanalyzable"},
		{"parent constructor call", php.NewNewCallReference("App\\Child"), nil, "App\\Child<string>"},
		{"inherited constructor", php.NewNewCallReference("App\\Grandchild"), nil, "App\\Grandchild<string>"},
		{"static keyword", php.NewNewCallReference("static", arg(php.NewIntType())), NewScope(nil, nil), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := tt.scope
			if scope == nil {
				scope = NewScope(nil, nil)
			}
			resolved := resolve(t, r, scope, tt.typ)
			assert.Equal(t, tt.expected, resolved.String())
		})
	}

	t.Run("argument references are resolved first", func(t *testing.T) {
		inner := php.NewMethodCallReference(php.NewGeneric("App\\Box", php.NewFloatType()), "get")
		resolved := resolve(t, r, NewScope(nil, nil), php.NewNewCallReference("App\\Box", arg(inner)))
		assert.Equal(t, "App\\Box<float>", resolved.String())
	})

	t.Run("self in scope", func(t *testing.T) {
		resolved := resolve(t, r, NewScope(f.box, nil), php.NewNewCallReference("self", arg(php.NewBoolType())))
		assert.Equal(t, "App\\Box<bool>", resolved.String())
	})
}

func TestResolve_NewCallPropertyDefaults(t *testing.T) {
	index := php.NewIndex()

	tmpl := php.NewTemplateType("T", nil)
	class := php.NewClassDefinition("App\\Defaults", "")
	class.Templates = []*php.TemplateType{tmpl}
	class.Properties["items"] = &php.PropertyDefinition{Type: tmpl, Default: php.NewArrayType(php.NewMixedType(), nil)}
	ctor := method(class, "__construct", php.NewVoidType(), param("items", tmpl))
	ctor.Type.Parameters[0].HasDefault = true
	index.AddClass(class)

	r := NewResolver(index)

	resolved := resolve(t, r, NewScope(nil, nil), php.NewNewCallReference("App\\Defaults"))
	assert.Equal(t, "App\\Defaults<array<mixed>>", resolved.String())

	// constructor arguments win over property defaults
	resolved = resolve(t, r, NewScope(nil, nil), php.NewNewCallReference("App\\Defaults", arg(php.NewIntType())))
	assert.Equal(t, "App\\Defaults<int>", resolved.String())
}

func TestResolve_CallableCall(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	resolved := resolve(t, r, NewScope(nil, nil), php.NewCallableCallReference(php.NewCallableStringType("strlen"), arg(php.NewStringType())))
	assert.Equal(t, "int", resolved.String())

	closure := php.NewFunctionType(php.NewBoolType())
	resolved = resolve(t, r, NewScope(nil, nil), php.NewCallableCallReference(closure))
	assert.Equal(t, "bool", resolved.String())

	resolved = resolve(t, r, NewScope(nil, nil), php.NewCallableCallReference(php.NewCallableStringType("nope")))
	requireUnknown(t, resolved, "nope")

	resolved = resolve(t, r, NewScope(nil, nil), php.NewCallableCallReference(php.NewIntType()))
	requireUnknown(t, resolved, "int")
}

func TestResolve_PropertyFetch(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	tests := []struct {
		name     string
		typ      php.Type
		scope    *Scope
		expected string
	}{
		{"template bound by generic", php.NewPropertyFetchReference(php.NewGeneric("App\\Box", php.NewIntType()), "value"), nil, "int"},
		{"plain object", php.NewPropertyFetchReference(php.NewObjectType("App\\Foo"), "items"), nil, "array<int>"},
		{"untyped property", php.NewPropertyFetchReference(php.NewObjectType("App\\Box"), "untyped"), nil, "mixed"},
		{"self in scope", php.NewPropertyFetchReference(php.NewSelfType(), "items"), NewScope(f.foo, nil), "array<int>"},
		{"self outside of a class", php.NewPropertyFetchReference(php.NewSelfType(), "items"), nil, "unknown"},
		{"missing property", php.NewPropertyFetchReference(php.NewObjectType("App\\Foo"), "missing"), nil, "unknown"},
		{"not an object", php.NewPropertyFetchReference(php.NewStringType(), "length"), nil, "unknown"},
		{
			name:     "object from a call",
			typ:      php.NewPropertyFetchReference(php.NewMethodCallReference(php.NewGeneric("App\\Box", php.NewObjectType("App\\Foo")), "get"), "items"),
			expected: "array<int>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := tt.scope
			if scope == nil {
				scope = NewScope(nil, nil)
			}
			resolved := resolve(t, r, scope, tt.typ)
			assert.Equal(t, tt.expected, resolved.String())
		})
	}

	t.Run("unknown class defers", func(t *testing.T) {
		fetch := php.NewPropertyFetchReference(php.NewObjectType("App\\Later"), "id")
		resolved := resolve(t, r, NewScope(nil, nil), fetch)
		assert.Same(t, fetch, resolved)
	})
}

func TestResolve_UnionNormalization(t *testing.T) {
	index := php.NewIndex()
	class := php.NewClassDefinition("App\\Maybe", "")
	a, b := php.NewObjectType("A"), php.NewObjectType("B")
	method(class, "value", php.NewUnion(php.NewUnion(a, b), php.NewObjectType("A")))
	index.AddClass(class)

	resolved := resolve(t, NewResolver(index), NewScope(nil, nil), php.NewMethodCallReference(php.NewObjectType("App\\Maybe"), "value"))

	union, ok := resolved.(*php.Union)
	require.True(t, ok)
	assert.Len(t, union.Types, 2)
	assert.Equal(t, "A|B", resolved.String())
}

func TestResolve_Idempotence(t *testing.T) {
	f := newFixture()
	r := f.resolver()
	scope := NewScope(nil, nil)

	inputs := []php.Type{
		php.NewUnion(php.NewIntType(), php.NewNullType()),
		php.NewMethodCallReference(php.NewGeneric("App\\Box", php.NewIntType()), "get"),
		php.NewNewCallReference("App\\Child"),
		php.NewArrayType(php.NewStaticMethodCallReference("App\\Foo", "make"), php.NewStringType()),
	}

	for _, input := range inputs {
		t.Run(input.String(), func(t *testing.T) {
			once := resolve(t, r, scope, input)
			twice := resolve(t, r, scope, once)
			assert.Equal(t, once.String(), twice.String())
			assert.False(t, HasResolvableReferences(twice))
		})
	}

	t.Run("resolved input is returned as is", func(t *testing.T) {
		input := php.NewGeneric("App\\Box", php.NewIntType())
		assert.Same(t, input, resolve(t, r, scope, input))
	})

	t.Run("nil", func(t *testing.T) {
		resolved, err := r.Resolve(scope, nil)
		assert.NoError(t, err)
		assert.Nil(t, resolved)
	})
}

func TestResolve_KeepsAttributes(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	call := php.NewMethodCallReference(php.NewObjectType("App\\Foo"), "missing")
	call.SetAttribute("description", "the factory")

	resolved := resolve(t, r, NewScope(nil, nil), call)
	assert.Equal(t, "the factory", resolved.Attributes()["description"])

	// definitions are never written to
	static := php.NewStaticMethodCallReference("App\\Foo", "make")
	static.SetAttribute("line", "12")
	resolve(t, r, NewScope(nil, nil), static)
	assert.Empty(t, f.foo.Methods["make"].Type.ReturnType.Attributes())
}

func TestResolve_Dependencies(t *testing.T) {
	f := newFixture()
	r := f.resolver()

	call := php.NewMethodCallReference(php.NewObjectType("App\\Nowhere"), "get")
	call.Deps = []php.Dependency{php.ClassDependency{Class: "App\\Nowhere"}}

	// unmet dependencies do not stop resolution
	resolved := resolve(t, r, NewScope(nil, nil), call)
	requireUnknown(t, resolved, "App\\Nowhere")

	res := &resolution{Resolver: r, guard: NewRecursionGuard(), unionGuard: NewRecursionGuard()}
	assert.False(t, res.checkDependencies(call))

	met := php.NewMethodCallReference(php.NewObjectType("App\\Foo"), "make")
	met.Deps = []php.Dependency{
		php.ClassDependency{Class: "App\\Foo"},
		php.MethodDependency{Class: "App\\Foo", Name: "make"},
		php.PropertyDependency{Class: "App\\Foo", Name: "items"},
		php.FunctionDependency{Name: "strlen"},
	}
	assert.True(t, res.checkDependencies(met))

	met.Deps = append(met.Deps, php.PropertyDependency{Class: "App\\Foo", Name: "nope"})
	assert.False(t, res.checkDependencies(met))
}

func TestHasResolvableReferences(t *testing.T) {
	assert.False(t, HasResolvableReferences(php.NewIntType()))
	assert.False(t, HasResolvableReferences(php.NewGeneric("App\\Box", php.NewTemplateType("T", nil))))
	assert.True(t, HasResolvableReferences(php.NewNewCallReference("App\\Box")))
	assert.True(t, HasResolvableReferences(php.NewUnion(
		php.NewNullType(),
		php.NewArrayType(php.NewPropertyFetchReference(php.NewSelfType(), "items"), nil),
	)))
}
