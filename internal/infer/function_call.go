package infer

import (
	"fmt"
	"maps"
	"slices"

	"github.com/shopware/php-infer/internal/php"
)

// functionCallResult computes the type a call to fn returns. calledOn is the
// instance a method was called on, nil for functions and static calls.
func (r *resolution) functionCallResult(fn *php.FunctionLikeDefinition, args []php.Argument, calledOn php.Type) php.Type {
	if fn.Type == nil {
		return php.NewUnknownType(fmt.Sprintf("Cannot get a type of [%s]", fn.Name))
	}

	returnType := fn.Type.ReturnType
	if returnType == nil {
		returnType = php.NewUnknownType(fmt.Sprintf("Cannot get a return type of [%s]", fn.Name))
	}

	isSelf := false
	if _, ok := returnType.(*php.SelfType); ok && calledOn != nil {
		isSelf = true
		returnType = calledOn
	}

	var templateIndex map[string]int
	bindings := map[string]php.Type{}
	if instance, ok := calledOn.(php.ObjectLike); ok {
		if class := r.lookupClass(instance.ClassName()); class != nil && len(class.Templates) > 0 {
			var args []php.Type
			if generic, ok := instance.(*php.Generic); ok {
				args = generic.TemplateTypes
			}
			templateIndex = class.TemplateIndex()
			for name, i := range templateIndex {
				if i < len(args) && args[i] != nil {
					bindings[name] = args[i]
					continue
				}
				bindings[name] = php.NewUnknownType(fmt.Sprintf("Cannot infer template [%s] of [%s]", name, class.Name))
			}
		}
	}

	own := make(map[string]bool, len(fn.Type.Templates))
	for _, template := range fn.Type.Templates {
		own[template.Name] = true
	}

	isForResolution := func(t php.Type) bool {
		template, ok := t.(*php.TemplateType)
		if !ok {
			return false
		}
		if own[template.Name] {
			return true
		}
		_, bound := bindings[template.Name]
		return bound
	}

	if (len(bindings) > 0 || len(own) > 0) && needsTemplateResolution(fn, returnType, isForResolution) {
		maps.Copy(bindings, r.inferTemplates(fn.Type.Templates, fn.Type.Parameters, prepareArguments(fn, args)))
		for _, template := range fn.Type.Templates {
			if _, ok := bindings[template.Name]; !ok {
				bindings[template.Name] = php.NewUnknownType(fmt.Sprintf("Cannot infer template [%s] of [%s]", template.Name, fn.Name))
			}
		}

		returnType = php.Replace(returnType, func(t php.Type) php.Type {
			template, ok := t.(*php.TemplateType)
			if !ok {
				return nil
			}
			return bindings[template.Name]
		})

		leftover := php.First(returnType, func(t php.Type) bool {
			template, ok := t.(*php.TemplateType)
			return ok && slices.Contains(fn.Type.Templates, template)
		})
		if leftover != nil {
			raise("template [%s] of [%s] was not substituted", leftover.String(), fn.Name)
		}
	}

	if !isSelf {
		return returnType
	}
	generic, ok := returnType.(*php.Generic)
	if !ok {
		return returnType
	}

	var redefined *php.Generic
	for _, effect := range fn.SideEffects {
		definition, ok := effect.(*php.SelfTemplateDefinition)
		if !ok {
			continue
		}

		i, ok := templateIndex[definition.Template]
		if !ok {
			raise("[%s] redefines template [%s] which [%s] does not declare", fn.Name, definition.Template, generic.Name)
		}

		value := definition.Type
		if template, ok := value.(*php.TemplateType); ok {
			value = bindings[template.Name]
			if value == nil {
				value = php.NewUnknownType(fmt.Sprintf("Cannot infer template [%s] of [%s]", template.Name, fn.Name))
			}
		}

		// the generic may be the callee node of the tree being resolved
		if redefined == nil {
			redefined = php.Clone(generic).(*php.Generic)
		}
		for len(redefined.TemplateTypes) <= i {
			redefined.TemplateTypes = append(redefined.TemplateTypes, php.NewUnknownType(""))
		}
		redefined.TemplateTypes[i] = value
	}

	if redefined != nil {
		return redefined
	}
	return returnType
}

func needsTemplateResolution(fn *php.FunctionLikeDefinition, returnType php.Type, isForResolution func(php.Type) bool) bool {
	if php.First(returnType, isForResolution) != nil {
		return true
	}
	for _, effect := range fn.SideEffects {
		if definition, ok := effect.(*php.SelfTemplateDefinition); ok && php.First(definition.Type, isForResolution) != nil {
			return true
		}
	}
	return false
}

// prepareArguments lines the call arguments up with the declared parameters:
// by name, else by position, else the type of the parameter default. The
// result is indexed like the parameters; a nil slot was not passed and has
// no default. Trailing nil slots are dropped.
func prepareArguments(fn *php.FunctionLikeDefinition, args []php.Argument) []php.Type {
	named := map[string]php.Type{}
	var positional []php.Type
	for _, arg := range args {
		if arg.Name != "" {
			named[arg.Name] = arg.Type
			continue
		}
		positional = append(positional, arg.Type)
	}

	if fn == nil || fn.Type == nil {
		return positional
	}

	prepared := make([]php.Type, len(fn.Type.Parameters))
	for i, param := range fn.Type.Parameters {
		switch {
		case named[param.Name] != nil:
			prepared[i] = named[param.Name]
		case i < len(positional):
			prepared[i] = positional[i]
		default:
			prepared[i] = fn.ArgumentDefaults[param.Name]
		}
	}

	last := len(prepared)
	for last > 0 && prepared[last-1] == nil {
		last--
	}
	return prepared[:last]
}

// inferTemplates binds each template to the argument passed for the first
// parameter declared with exactly that template. Templates no parameter is
// declared with are left out.
func (r *resolution) inferTemplates(templates []*php.TemplateType, params []php.Parameter, prepared []php.Type) map[string]php.Type {
	inferred := make(map[string]php.Type, len(templates))

	for _, template := range templates {
		slot := slices.IndexFunc(params, func(p php.Parameter) bool {
			return p.Type == php.Type(template)
		})
		if slot < 0 {
			continue
		}

		if slot < len(prepared) && prepared[slot] != nil {
			inferred[template.Name] = prepared[slot]
			continue
		}
		r.log.Debugf("no argument for template %s at $%s", template.Name, params[slot].Name)
		inferred[template.Name] = php.NewUnknownType(fmt.Sprintf("Cannot infer template [%s] from arguments", template.Name))
	}

	return inferred
}
