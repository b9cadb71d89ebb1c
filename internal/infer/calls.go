package infer

import (
	"fmt"
	"maps"
	"slices"

	"github.com/shopware/php-infer/internal/php"
)

// (#Foo).bar(), (#self).bar(), (#TModel).save()
func (r *resolution) resolveMethodCall(scope *Scope, ref *php.MethodCallReference) php.Type {
	args := r.resolveArguments(scope, ref.Arguments)

	callee := ref.Callee
	if php.IsReference(callee) {
		callee = r.resolve(scope, callee)
	}
	if php.IsReference(callee) {
		// the callee itself was deferred, so is the call
		return r.deferMethodCall(ref, callee, args)
	}

	unwrapped := callee
	if template, ok := callee.(*php.TemplateType); ok && template.Is != nil {
		unwrapped = template.Is
	}

	if instance, ok := unwrapped.(php.ObjectLike); ok {
		returnType := r.broker.MethodReturnType(MethodCallEvent{
			Instance:  instance,
			Name:      ref.Method,
			Scope:     scope,
			Arguments: args,
		})
		if returnType != nil {
			return returnType
		}
	}

	var class *php.ClassDefinition
	switch c := unwrapped.(type) {
	case *php.TemplateType:
		return r.deferMethodCall(ref, callee, args)
	case php.ObjectLike:
		class = r.lookupClass(c.ClassName())
		if class == nil {
			return php.NewUnknownType(fmt.Sprintf("Cannot find class [%s]", c.ClassName()))
		}
	case *php.SelfType:
		if scope.InClass() {
			class = scope.Class
		}
	}

	var method *php.FunctionLikeDefinition
	if class != nil {
		method = class.GetMethod(ref.Method, r.lookupClass)
	}
	if method == nil {
		return php.NewUnknownType(fmt.Sprintf("Cannot get a method type [%s] on type [%s]", ref.Method, unwrapped.String()))
	}

	return r.functionCallResult(method, args, unwrapped)
}

func (r *resolution) deferMethodCall(ref *php.MethodCallReference, callee php.Type, args []php.Argument) php.Type {
	if callee == ref.Callee && sameArguments(args, ref.Arguments) {
		return r.deferral(ref, ref)
	}
	kept := php.Clone(ref).(*php.MethodCallReference)
	kept.Callee = callee
	kept.Arguments = args
	return r.deferral(ref, kept)
}

// (#Foo)::create(), (#static)::create()
func (r *resolution) resolveStaticMethodCall(scope *Scope, ref *php.StaticMethodCallReference) php.Type {
	args := r.resolveArguments(scope, ref.Arguments)

	className, ok := scope.ResolveClassName(ref.Callee, r.lookupClass)
	if !ok {
		return php.NewUnknownType(fmt.Sprintf("Cannot resolve [%s] outside of a class", ref.Callee))
	}

	returnType := r.broker.StaticMethodReturnType(StaticMethodCallEvent{
		Callee:    className,
		Name:      ref.Method,
		Scope:     scope,
		Arguments: args,
	})
	if returnType != nil {
		return returnType
	}

	class := r.lookupClass(className)
	if class == nil {
		return php.NewUnknownType(fmt.Sprintf("Cannot find class [%s]", className))
	}

	method := class.GetMethod(ref.Method, r.lookupClass)
	if method == nil {
		return php.NewUnknownType(fmt.Sprintf("Cannot get a method type [%s] on type [%s]", ref.Method, className))
	}

	result := r.functionCallResult(method, args, nil)

	// self and static returned from a static call name the class it was made on
	return php.Replace(result, func(t php.Type) php.Type {
		if _, ok := t.(*php.SelfType); ok {
			return php.NewObjectType(class.Name)
		}
		return nil
	})
}

// (#'strlen')(), (#$closure)()
func (r *resolution) resolveCallableCall(scope *Scope, ref *php.CallableCallReference) php.Type {
	var callee *php.FunctionLikeDefinition

	resolved := ref.Callee
	if _, ok := resolved.(*php.CallableStringType); !ok {
		resolved = r.resolve(scope, resolved)
	}

	switch c := resolved.(type) {
	case *php.CallableStringType:
		callee = r.index.GetFunction(c.Name)
	case *php.FunctionType:
		callee = php.NewFunctionLikeDefinition("{closure}", c)
	}

	if callee == nil {
		return php.NewUnknownType(fmt.Sprintf("Cannot call [%s]", resolved.String()))
	}

	return r.functionCallResult(callee, r.resolveArguments(scope, ref.Arguments), nil)
}

// (#new Foo)()
func (r *resolution) resolveNewCall(scope *Scope, ref *php.NewCallReference) php.Type {
	args := r.resolveArguments(scope, ref.Arguments)

	className, ok := scope.ResolveClassName(ref.Name, r.lookupClass)
	if !ok {
		return php.NewUnknownType(fmt.Sprintf("Cannot resolve [%s] outside of a class", ref.Name))
	}

	class := r.lookupClass(className)
	if class == nil {
		// whatever happens, new produces an instance of the class
		return php.NewObjectType(className)
	}
	if len(class.Templates) == 0 {
		return php.NewObjectType(class.Name)
	}

	bindings := map[string]php.Type{}

	for _, name := range slices.Sorted(maps.Keys(class.Properties)) {
		property := class.Properties[name]
		if template, ok := property.Type.(*php.TemplateType); ok && property.Default != nil {
			bindings[template.Name] = property.Default
		}
	}

	constructor := class.GetMethod("__construct", r.lookupClass)
	maps.Copy(bindings, r.parentConstructorTemplates(class, constructor))

	if constructor != nil && constructor.Type != nil {
		inferred := r.inferTemplates(class.Templates, constructor.Type.Parameters, prepareArguments(constructor, args))
		for name, t := range inferred {
			// an argument that was not passed keeps what the parents or defaults bound
			if _, missing := t.(*php.UnknownType); missing && bindings[name] != nil {
				continue
			}
			bindings[name] = t
		}
	}

	templateTypes := make([]php.Type, len(class.Templates))
	for i, template := range class.Templates {
		if bound, ok := bindings[template.Name]; ok {
			templateTypes[i] = bound
			continue
		}
		templateTypes[i] = php.NewUnknownType(fmt.Sprintf("Cannot infer template [%s] of [%s]", template.Name, class.Name))
	}

	return php.NewGeneric(class.Name, templateTypes...)
}

// parentConstructorTemplates follows parent::__construct calls up the
// ancestor chain and collects the templates they bind. Nearer ancestors win.
func (r *resolution) parentConstructorTemplates(class *php.ClassDefinition, constructor *php.FunctionLikeDefinition) map[string]php.Type {
	var levels []map[string]php.Type
	visited := map[string]bool{class.Name: true}

	for constructor != nil {
		if constructor.DefiningClass != "" && constructor.DefiningClass != class.Name {
			// inherited constructor, its parent call belongs to the declaring class
			owner := r.lookupClass(constructor.DefiningClass)
			if owner == nil {
				break
			}
			class = owner
			visited[class.Name] = true
		}

		call := constructor.ParentConstructCall()
		if call == nil || class.Parent == "" {
			break
		}

		parent := r.lookupClass(class.Parent)
		if parent == nil || visited[parent.Name] {
			break
		}
		visited[parent.Name] = true

		parentConstructor := parent.GetMethod("__construct", r.lookupClass)
		var params []php.Parameter
		if parentConstructor != nil && parentConstructor.Type != nil {
			params = parentConstructor.Type.Parameters
		}
		levels = append(levels, r.inferTemplates(parent.Templates, params, prepareArguments(parentConstructor, call.Arguments)))

		class, constructor = parent, parentConstructor
	}

	merged := map[string]php.Type{}
	for i := len(levels) - 1; i >= 0; i-- {
		maps.Copy(merged, levels[i])
	}
	return merged
}

// (#$this).items, (#Foo).bar
func (r *resolution) resolvePropertyFetch(scope *Scope, ref *php.PropertyFetchReference) php.Type {
	object := ref.Object
	if php.IsReference(object) {
		object = r.resolve(scope, object)
	}

	switch o := object.(type) {
	case php.Reference, *php.TemplateType:
		return r.deferPropertyFetch(ref, object)
	case php.ObjectLike:
		class := r.lookupClass(o.ClassName())
		if class == nil {
			// may become known once the class is indexed
			return r.deferPropertyFetch(ref, object)
		}
		property := class.GetProperty(ref.Property, r.lookupClass)
		if property == nil {
			return php.NewUnknownType(fmt.Sprintf("Cannot get property [%s] type on [%s]", ref.Property, o.ClassName()))
		}
		return bindClassTemplates(class, o, propertyType(property))
	case *php.SelfType:
		var class *php.ClassDefinition
		if name, ok := scope.ResolveClassName(php.KeywordSelf, r.lookupClass); ok {
			class = r.lookupClass(name)
		}
		if class == nil && scope.InClass() {
			class = scope.Class
		}
		var property *php.PropertyDefinition
		if class != nil {
			property = class.GetProperty(ref.Property, r.lookupClass)
		}
		if property == nil {
			return php.NewUnknownType(fmt.Sprintf("Cannot get property [%s] type on [self]", ref.Property))
		}
		return propertyType(property)
	}

	return php.NewUnknownType(fmt.Sprintf("Cannot get property [%s] type on [%s]", ref.Property, object.String()))
}

func (r *resolution) deferPropertyFetch(ref *php.PropertyFetchReference, object php.Type) php.Type {
	if object == ref.Object {
		return r.deferral(ref, ref)
	}
	kept := php.Clone(ref).(*php.PropertyFetchReference)
	kept.Object = object
	return r.deferral(ref, kept)
}

func propertyType(property *php.PropertyDefinition) php.Type {
	if property.Type == nil {
		return php.NewMixedType()
	}
	return property.Type
}

// bindClassTemplates substitutes the class templates in t with the template
// arguments of the instance. An instance without arguments binds them all to
// unknown.
func bindClassTemplates(class *php.ClassDefinition, instance php.ObjectLike, t php.Type) php.Type {
	if len(class.Templates) == 0 {
		return t
	}

	var args []php.Type
	if generic, ok := instance.(*php.Generic); ok {
		args = generic.TemplateTypes
	}

	index := class.TemplateIndex()
	return php.Replace(t, func(node php.Type) php.Type {
		template, ok := node.(*php.TemplateType)
		if !ok {
			return nil
		}
		i, ok := index[template.Name]
		if !ok {
			return nil
		}
		if i < len(args) && args[i] != nil {
			return args[i]
		}
		return php.NewUnknownType(fmt.Sprintf("Cannot infer template [%s] of [%s]", template.Name, class.Name))
	})
}
