package infer

import (
	"fmt"

	"github.com/shopware/php-infer/internal/php"
	"github.com/tliron/commonlog"
)

// DefinitionIndex is the read side of the definition index.
type DefinitionIndex interface {
	GetClass(name string) *php.ClassDefinition
	GetFunction(name string) *php.FunctionLikeDefinition
}

// ClassAnalyzer analyzes a class that is not indexed yet. It returns nil
// for classes it does not want to analyze, e.g. library code.
type ClassAnalyzer interface {
	Analyze(className string) *php.ClassDefinition
}

// Resolver replaces deferred references in type trees with the types they
// stand for. It never writes to the index and is safe for concurrent use as
// long as the index is.
type Resolver struct {
	index    DefinitionIndex
	broker   ExtensionBroker
	analyzer ClassAnalyzer
	log      commonlog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithBroker sets the extension broker consulted before the index.
func WithBroker(broker ExtensionBroker) ResolverOption {
	return func(r *Resolver) { r.broker = broker }
}

// WithAnalyzer sets the analyzer used for classes missing from the index.
func WithAnalyzer(analyzer ClassAnalyzer) ResolverOption {
	return func(r *Resolver) { r.analyzer = analyzer }
}

func NewResolver(index DefinitionIndex, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		index:  index,
		broker: NewBroker(),
		log:    commonlog.GetLogger("phpinfer.resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HasResolvableReferences reports whether t contains any deferred reference,
// that is whether Resolve can change it at all.
func HasResolvableReferences(t php.Type) bool {
	return php.HasReferences(t)
}

// Resolve replaces every reference in t. Information that is missing
// degrades to unknown types; an error is returned only for a *LogicError,
// which means the definitions or the resolver broke an invariant.
func (r *Resolver) Resolve(scope *Scope, t php.Type) (resolved php.Type, err error) {
	if t == nil {
		return nil, nil
	}

	res := &resolution{
		Resolver:   r,
		guard:      NewRecursionGuard(),
		unionGuard: NewRecursionGuard(),
		deferred:   map[php.Type]php.Type{},
	}

	defer func() {
		if rec := recover(); rec != nil {
			logicErr, ok := rec.(*LogicError)
			if !ok {
				panic(rec)
			}
			r.log.Errorf("resolving %s: %s", t.String(), logicErr.Message)
			resolved, err = nil, logicErr
		}
	}()

	return res.resolve(scope, t), nil
}

// resolution is the state of one top-level Resolve call.
type resolution struct {
	*Resolver
	guard      *RecursionGuard
	unionGuard *RecursionGuard
	// deferred maps references that cannot be resolved yet to the form they
	// are kept in. Such nodes are neither resolved nor walked again.
	deferred map[php.Type]php.Type
}

func (r *resolution) resolve(scope *Scope, t php.Type) php.Type {
	if ref, ok := t.(php.Reference); ok && !r.checkDependencies(ref) {
		// advisory only, resolution is attempted anyway
		r.log.Debugf("unmet dependencies for %s", ref.String())
	}

	resolved := r.guard.Run(t, func() php.Type {
		return php.Replace(t, func(node php.Type) php.Type {
			return r.doResolve(scope, node, t)
		})
	}, guardStop)

	return r.unionGuard.Run(resolved, func() php.Type {
		return php.NormalizeUnions(resolved)
	}, guardStop)
}

func guardStop(limited bool) php.Type {
	if limited {
		return php.NewUnknownType(fmt.Sprintf("recursion depth limit of %d reached", maxGuardDepth))
	}
	return php.NewUnknownType("really bad self reference")
}

// doResolve resolves one reference node. A nil result descends into the
// children of the node.
func (r *resolution) doResolve(scope *Scope, node, top php.Type) php.Type {
	if kept, ok := r.deferred[node]; ok {
		return kept
	}

	var candidate php.Type

	switch ref := node.(type) {
	case *php.MethodCallReference:
		candidate = r.resolveMethodCall(scope, ref)
	case *php.StaticMethodCallReference:
		candidate = r.resolveStaticMethodCall(scope, ref)
	case *php.CallableCallReference:
		candidate = r.resolveCallableCall(scope, ref)
	case *php.NewCallReference:
		candidate = r.resolveNewCall(scope, ref)
	case *php.PropertyFetchReference:
		candidate = r.resolvePropertyFetch(scope, ref)
	case php.Reference:
		raise("unhandled reference %T", ref)
	default:
		return nil
	}

	if candidate == nil {
		return nil
	}
	if kept, ok := r.deferred[node]; ok && kept == candidate {
		return candidate
	}

	if candidate == top {
		return php.NewUnknownType("self reference")
	}

	return r.resolve(scope, candidate)
}

// checkDependencies reports whether everything the reference depends on is indexed.
func (r *resolution) checkDependencies(ref php.Reference) bool {
	for _, dep := range ref.Dependencies() {
		switch d := dep.(type) {
		case php.FunctionDependency:
			if r.index.GetFunction(d.Name) == nil {
				return false
			}
		case php.ClassDependency:
			if r.index.GetClass(d.Class) == nil {
				return false
			}
		case php.MethodDependency:
			class := r.index.GetClass(d.Class)
			if class == nil {
				return false
			}
			if _, ok := class.Methods[d.Name]; !ok {
				return false
			}
		case php.PropertyDependency:
			class := r.index.GetClass(d.Class)
			if class == nil {
				return false
			}
			if _, ok := class.Properties[d.Name]; !ok {
				return false
			}
		default:
			raise("unhandled dependency %T of %s", dep, ref.String())
		}
	}
	return true
}

// lookupClass finds a class in the index, asking the analyzer on a miss.
func (r *resolution) lookupClass(name string) *php.ClassDefinition {
	if class := r.index.GetClass(name); class != nil {
		return class
	}
	if r.analyzer == nil {
		return nil
	}

	class := r.analyzer.Analyze(php.NormalizeClassName(name))
	if class != nil {
		r.log.Debugf("analyzed %s on demand", class.Name)
	}
	return class
}

// deferral keeps ref in the tree as kept, the reference rebuilt around its
// resolved parts, or ref itself when none of them changed.
func (r *resolution) deferral(ref, kept php.Type) php.Type {
	r.deferred[ref] = kept
	r.deferred[kept] = kept
	return kept
}

func sameArguments(a, b []php.Argument) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Type != b[i].Type {
			return false
		}
	}
	return true
}

func (r *resolution) resolveArguments(scope *Scope, args []php.Argument) []php.Argument {
	resolved := make([]php.Argument, len(args))
	for i, arg := range args {
		resolved[i] = arg
		if php.IsReference(arg.Type) {
			resolved[i].Type = r.resolve(scope, arg.Type)
		}
	}
	return resolved
}
