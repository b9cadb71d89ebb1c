package infer

import (
	"github.com/shopware/php-infer/internal/php"
)

// method builds a method definition declared by class.
func method(class *php.ClassDefinition, name string, returnType php.Type, params ...php.Parameter) *php.FunctionLikeDefinition {
	fn := php.NewFunctionLikeDefinition(name, php.NewFunctionType(returnType, params...))
	fn.DefiningClass = class.Name
	class.Methods[name] = fn
	return fn
}

func param(name string, t php.Type) php.Parameter {
	return php.Parameter{Name: name, Type: t}
}

func arg(t php.Type) php.Argument {
	return php.Argument{Type: t}
}

func namedArg(name string, t php.Type) php.Argument {
	return php.Argument{Name: name, Type: t}
}

// fixture is a small class hierarchy:
//
//	App\Box<T>            __construct(T $value), get(): T, self(): self, $value: T
//	App\Collection<T>     withType<U>(U $type): self redefining T as U, first(): T, broken(): self
//	App\Base<T>           __construct(T $value)
//	App\Child<T> : Base   __construct() calling parent::__construct(string)
//	App\Grandchild<T> : Child
//	App\Foo               make(): self (static), loop(): (#Foo).loop(), items: int[]
//	App\Ping / App\Pong   ping() and pong() calling each other
//	identity<T>(T $value): T, strlen(string $string): int
type fixture struct {
	index *php.Index

	box, collection, base, child, grandchild, foo *php.ClassDefinition
	boxT, collectionT                             *php.TemplateType
	identity                                      *php.FunctionLikeDefinition
}

func newFixture() *fixture {
	f := &fixture{index: php.NewIndex()}

	f.boxT = php.NewTemplateType("T", nil)
	f.box = php.NewClassDefinition("App\\Box", "")
	f.box.Templates = []*php.TemplateType{f.boxT}
	method(f.box, "__construct", php.NewVoidType(), param("value", f.boxT))
	method(f.box, "get", f.boxT)
	method(f.box, "self", php.NewSelfType())
	f.box.Properties["value"] = &php.PropertyDefinition{Type: f.boxT}
	f.box.Properties["untyped"] = &php.PropertyDefinition{}

	f.collectionT = php.NewTemplateType("T", nil)
	f.collection = php.NewClassDefinition("App\\Collection", "")
	f.collection.Templates = []*php.TemplateType{f.collectionT}
	u := php.NewTemplateType("U", nil)
	withType := method(f.collection, "withType", php.NewSelfType(), param("type", u))
	withType.Type.Templates = []*php.TemplateType{u}
	withType.SideEffects = []php.SideEffect{&php.SelfTemplateDefinition{Template: "T", Type: u}}
	method(f.collection, "first", f.collectionT)
	broken := method(f.collection, "broken", php.NewSelfType())
	broken.SideEffects = []php.SideEffect{&php.SelfTemplateDefinition{Template: "TMissing", Type: php.NewIntType()}}

	baseT := php.NewTemplateType("T", nil)
	f.base = php.NewClassDefinition("App\\Base", "")
	f.base.Templates = []*php.TemplateType{baseT}
	method(f.base, "__construct", php.NewVoidType(), param("value", baseT))

	childT := php.NewTemplateType("T", nil)
	f.child = php.NewClassDefinition("App\\Child", "App\\Base")
	f.child.Templates = []*php.TemplateType{childT}
	childCtor := method(f.child, "__construct", php.NewVoidType())
	childCtor.SideEffects = []php.SideEffect{&php.ParentConstructCall{Arguments: []php.Argument{arg(php.NewStringType())}}}

	grandchildT := php.NewTemplateType("T", nil)
	f.grandchild = php.NewClassDefinition("App\\Grandchild", "App\\Child")
	f.grandchild.Templates = []*php.TemplateType{grandchildT}

	f.foo = php.NewClassDefinition("App\\Foo", "")
	method(f.foo, "make", php.NewSelfType())
	loop := method(f.foo, "loop", php.NewMixedType())
	loop.Type.ReturnType = php.NewMethodCallReference(php.NewObjectType("App\\Foo"), "loop")
	f.foo.Properties["items"] = &php.PropertyDefinition{Type: php.NewArrayType(php.NewIntType(), nil)}

	ping := php.NewClassDefinition("App\\Ping", "")
	pong := php.NewClassDefinition("App\\Pong", "")
	method(ping, "ping", php.NewStaticMethodCallReference("App\\Pong", "pong"))
	method(pong, "pong", php.NewStaticMethodCallReference("App\\Ping", "ping"))

	identityT := php.NewTemplateType("T", nil)
	f.identity = php.NewFunctionLikeDefinition("identity", php.NewFunctionType(identityT, param("value", identityT)))
	f.identity.Type.Templates = []*php.TemplateType{identityT}

	for _, class := range []*php.ClassDefinition{f.box, f.collection, f.base, f.child, f.grandchild, f.foo, ping, pong} {
		f.index.AddClass(class)
	}
	f.index.AddFunction(f.identity)
	f.index.AddFunction(php.NewFunctionLikeDefinition("strlen", php.NewFunctionType(php.NewIntType(), param("string", php.NewStringType()))))

	return f
}

func (f *fixture) resolver(opts ...ResolverOption) *Resolver {
	return NewResolver(f.index, opts...)
}
