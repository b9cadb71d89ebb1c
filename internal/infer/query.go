package infer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopware/php-infer/internal/php"
)

// Query kinds.
const (
	QueryMethod   = "method"
	QueryStatic   = "static"
	QueryNew      = "new"
	QueryProperty = "property"
	QueryCall     = "call"
	QueryType     = "type"
)

// Query describes an expression whose type is wanted, written with type
// strings instead of PHP code:
//
//	{Kind: "method", Callee: "App\\Box<int>", Name: "get"}
//	{Kind: "new", Callee: "App\\Box", Arguments: ["int"]}
//	{Kind: "static", Callee: "self", Name: "make", Arguments: ["value: string"]}
type Query struct {
	Kind      string   `json:"kind" yaml:"kind"`
	Callee    string   `json:"callee" yaml:"callee"`
	Name      string   `json:"name,omitempty" yaml:"name,omitempty"`
	Arguments []string `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// Type builds the reference the query stands for. Type strings may use the
// templates of the scope class.
func (q Query) Type(scope *Scope) (php.Type, error) {
	parser := &php.TypeParser{}
	if scope.InClass() {
		parser.Templates = scope.Class.Templates
	}
	// without a lookup an inherited method gets no parent
	if parent, ok := scope.ResolveClassName(php.KeywordParent, nil); ok {
		parser.Parent = parent
	}

	args := make([]php.Argument, len(q.Arguments))
	for i, arg := range q.Arguments {
		name, typ := splitNamedArgument(arg)
		args[i] = php.Argument{Name: name, Type: parser.Parse(typ)}
	}

	requireName := func() error {
		if q.Name == "" {
			return fmt.Errorf("%s query needs a name", q.Kind)
		}
		return nil
	}

	switch q.Kind {
	case QueryMethod:
		if err := requireName(); err != nil {
			return nil, err
		}
		callee := parser.Parse(q.Callee)
		ref := php.NewMethodCallReference(callee, q.Name, args...)
		if object, ok := callee.(php.ObjectLike); ok {
			ref.Deps = []php.Dependency{php.MethodDependency{Class: object.ClassName(), Name: q.Name}}
		}
		return ref, nil
	case QueryStatic:
		if err := requireName(); err != nil {
			return nil, err
		}
		ref := php.NewStaticMethodCallReference(q.Callee, q.Name, args...)
		if !php.IsClassKeyword(q.Callee) {
			ref.Deps = []php.Dependency{php.MethodDependency{Class: ref.Callee, Name: q.Name}}
		}
		return ref, nil
	case QueryNew:
		ref := php.NewNewCallReference(q.Callee, args...)
		if !php.IsClassKeyword(q.Callee) {
			ref.Deps = []php.Dependency{php.ClassDependency{Class: ref.Name}}
		}
		return ref, nil
	case QueryProperty:
		if err := requireName(); err != nil {
			return nil, err
		}
		object := parser.Parse(q.Callee)
		ref := php.NewPropertyFetchReference(object, strings.TrimPrefix(q.Name, "$"))
		if o, ok := object.(php.ObjectLike); ok {
			ref.Deps = []php.Dependency{php.PropertyDependency{Class: o.ClassName(), Name: ref.Property}}
		}
		return ref, nil
	case QueryCall:
		callee := php.NewCallableStringType(q.Callee)
		ref := php.NewCallableCallReference(callee, args...)
		ref.Deps = []php.Dependency{php.FunctionDependency{Name: callee.Name}}
		return ref, nil
	case QueryType, "":
		return parser.Parse(q.Callee), nil
	}

	return nil, fmt.Errorf("unknown query kind %q", q.Kind)
}

// splitNamedArgument splits "name: type" into its parts. Anything else is a
// positional argument.
func splitNamedArgument(arg string) (string, string) {
	head, tail, ok := strings.Cut(arg, ":")
	if !ok || strings.HasPrefix(tail, ":") {
		return "", arg
	}

	name := strings.TrimPrefix(strings.TrimSpace(head), "$")
	if name == "" {
		return "", arg
	}
	for i, r := range name {
		if r != '_' && !unicode.IsLetter(r) && (i == 0 || !unicode.IsDigit(r)) {
			return "", arg
		}
	}
	return name, strings.TrimSpace(tail)
}
