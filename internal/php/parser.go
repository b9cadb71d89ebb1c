package php

import (
	"bytes"
	"fmt"
	"strings"

	treesitterhelper "github.com/shopware/php-infer/internal/tree_sitter_helper"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// FileDefinitions holds the definitions declared in one PHP file.
type FileDefinitions struct {
	Path      string
	Classes   []*ClassDefinition
	Functions []*FunctionLikeDefinition
}

// ParseDefinitions parses PHP source and extracts its definitions.
func ParseDefinitions(path string, content []byte) (FileDefinitions, error) {
	parser, err := NewParser()
	if err != nil {
		return FileDefinitions{Path: path}, err
	}
	defer parser.Close()

	tree := parser.Parse(content, nil)
	if tree == nil {
		return FileDefinitions{Path: path}, fmt.Errorf("failed to parse %s", path)
	}
	defer tree.Close()

	return ExtractDefinitions(path, tree.RootNode(), content), nil
}

// ExtractDefinitions walks a parsed PHP file and builds the definitions of
// its classes, interfaces, traits, enums and functions. Method bodies
// without a declared return type contribute deferred references built from
// their return statements.
func ExtractDefinitions(path string, root *tree_sitter.Node, content []byte) FileDefinitions {
	e := &extractor{
		path:          path,
		content:       content,
		useStatements: map[string]string{},
		aliases:       map[string]string{},
		functionUses:  map[string]string{},
		localFuncs:    map[string]bool{},
	}
	e.defs.Path = path

	if root == nil || !bytes.Contains(content, []byte("<?")) {
		return e.defs
	}

	e.collectLocalFunctions(root)
	e.walk(root)
	return e.defs
}

type extractor struct {
	path      string
	content   []byte
	namespace string
	// Map to store use statements (imports) - maps short class name to FQCN
	useStatements map[string]string
	// Map to store aliases - maps alias name to FQCN
	aliases      map[string]string
	functionUses map[string]string
	localFuncs   map[string]bool
	defs         FileDefinitions
}

func (e *extractor) text(node *tree_sitter.Node) string {
	if node == nil {
		return ""
	}
	return node.Utf8Text(e.content)
}

func (e *extractor) resolver() *AliasResolver {
	return NewAliasResolver(e.namespace, e.useStatements, e.aliases)
}

func (e *extractor) qualify(name string) string {
	if e.namespace == "" {
		return name
	}
	return e.namespace + "\\" + name
}

func (e *extractor) collectLocalFunctions(root *tree_sitter.Node) {
	for _, fn := range treesitterhelper.FindAllWithin(root, treesitterhelper.NodeKind("function_definition"), treesitterhelper.PHPClassLikePattern, e.content) {
		e.localFuncs[treesitterhelper.FieldText(fn, "name", e.content)] = true
	}
}

func (e *extractor) walk(node *tree_sitter.Node) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}

		switch child.Kind() {
		case "namespace_definition":
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				nameNode = treesitterhelper.GetFirstNodeOfKind(child, "namespace_name")
			}
			e.namespace = NormalizeClassName(e.text(nameNode))
			if body := child.ChildByFieldName("body"); body != nil {
				e.walk(body)
			}
		case "namespace_use_declaration":
			e.collectUses(child)
		case "class_declaration", "interface_declaration", "trait_declaration", "enum_declaration":
			if class := e.extractClass(child); class != nil {
				e.defs.Classes = append(e.defs.Classes, class)
			}
		case "function_definition":
			fn := e.extractFunction(child, nil)
			fn.Name = e.qualify(fn.Name)
			e.defs.Functions = append(e.defs.Functions, fn)
		case "compound_statement":
			e.walk(child)
		}
	}
}

func (e *extractor) collectUses(node *tree_sitter.Node) {
	isFunction := treesitterhelper.GetFirstNodeOfKind(node, "function") != nil
	if treesitterhelper.GetFirstNodeOfKind(node, "const") != nil {
		return
	}

	prefix := ""
	clauses := node
	if group := treesitterhelper.GetFirstNodeOfKind(node, "namespace_use_group"); group != nil {
		// use Symfony\Component\{HttpFoundation\Request, Console\Command as Cmd}
		prefix = e.text(treesitterhelper.GetFirstNodeOfKind(node, "namespace_name")) + "\\"
		clauses = group
	}

	for i := uint(0); i < clauses.NamedChildCount(); i++ {
		clause := clauses.NamedChild(i)
		if clause == nil || clause.Kind() != "namespace_use_clause" || clause.NamedChildCount() == 0 {
			continue
		}

		fullPath := NormalizeClassName(prefix + e.text(clause.NamedChild(0)))
		alias := treesitterhelper.FieldText(clause, "alias", e.content)
		if alias == "" && clause.NamedChildCount() > 1 {
			alias = e.text(clause.NamedChild(clause.NamedChildCount() - 1))
		}

		short := fullPath[strings.LastIndex(fullPath, "\\")+1:]
		switch {
		case isFunction && alias != "":
			e.functionUses[alias] = fullPath
		case isFunction:
			e.functionUses[short] = fullPath
		case alias != "":
			e.aliases[alias] = fullPath
		default:
			e.useStatements[short] = fullPath
		}
	}
}

func (e *extractor) extractClass(node *tree_sitter.Node) *ClassDefinition {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	resolver := e.resolver()
	class := NewClassDefinition(e.qualify(e.text(nameNode)), "")
	class.Path = e.path
	class.Line = int(nameNode.Range().StartPoint.Row) + 1

	if base := treesitterhelper.GetFirstNodeOfKind(node, "base_clause"); base != nil && node.Kind() == "class_declaration" && base.NamedChildCount() > 0 {
		class.Parent = NormalizeClassName(resolver.ResolveType(e.text(base.NamedChild(0))))
	}

	doc := parseDocBlock(treesitterhelper.DocComment(node, e.content))
	class.Templates = declareTemplates(doc.Templates, &TypeParser{ResolveClass: resolver.ResolveType, Parent: class.Parent})

	body := node.ChildByFieldName("body")
	if body == nil {
		body = treesitterhelper.GetFirstNodeOfKind(node, "declaration_list")
	}
	if body == nil {
		return class
	}

	// properties first: method side effects look at property types
	for i := uint(0); i < body.NamedChildCount(); i++ {
		if member := body.NamedChild(i); member != nil && member.Kind() == "property_declaration" {
			e.extractProperties(member, class)
		}
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		if member := body.NamedChild(i); member != nil && member.Kind() == "method_declaration" {
			method := e.extractFunction(member, class)
			class.Methods[method.Name] = method
		}
	}

	return class
}

func declareTemplates(tags []docTemplate, parser *TypeParser) []*TemplateType {
	templates := make([]*TemplateType, 0, len(tags))
	for _, tag := range tags {
		templates = append(templates, NewTemplateType(tag.Name, nil))
	}

	scoped := *parser
	scoped.Templates = append(append([]*TemplateType(nil), parser.Templates...), templates...)
	for i, tag := range tags {
		if tag.Bound != "" {
			templates[i].Is = scoped.Parse(tag.Bound)
		}
	}
	return templates
}

func (e *extractor) typeParser(class *ClassDefinition, templates ...*TemplateType) *TypeParser {
	p := &TypeParser{ResolveClass: e.resolver().ResolveType}
	if class != nil {
		p.Parent = class.Parent
		p.Templates = append(p.Templates, class.Templates...)
	}
	p.Templates = append(p.Templates, templates...)
	return p
}

func (e *extractor) extractProperties(node *tree_sitter.Node, class *ClassDefinition) {
	parser := e.typeParser(class)
	doc := parseDocBlock(treesitterhelper.DocComment(node, e.content))

	var declared Type
	switch {
	case doc.Var != "":
		declared = parser.Parse(doc.Var)
	case node.ChildByFieldName("type") != nil:
		declared = parser.Parse(treesitterhelper.FieldText(node, "type", e.content))
	}

	scope := &functionScope{extractor: e, class: class, parser: parser, params: map[string]Type{}}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		element := node.NamedChild(i)
		if element == nil || element.Kind() != "property_element" {
			continue
		}

		nameNode := element.ChildByFieldName("name")
		if nameNode == nil {
			nameNode = treesitterhelper.GetFirstNodeOfKind(element, "variable_name")
		}
		name := strings.TrimPrefix(e.text(nameNode), "$")
		if name == "" {
			continue
		}

		property := &PropertyDefinition{Type: declared}
		defaultNode := element.ChildByFieldName("default_value")
		if initializer := treesitterhelper.GetFirstNodeOfKind(element, "property_initializer"); defaultNode == nil && initializer != nil && initializer.NamedChildCount() > 0 {
			defaultNode = initializer.NamedChild(0)
		}
		if defaultNode != nil {
			property.Default = scope.exprType(defaultNode)
		}
		if property.Type == nil {
			property.Type = NewMixedType()
		}
		class.Properties[name] = property
	}
}

func (e *extractor) extractFunction(node *tree_sitter.Node, class *ClassDefinition) *FunctionLikeDefinition {
	doc := parseDocBlock(treesitterhelper.DocComment(node, e.content))
	parser := e.typeParser(class)
	templates := declareTemplates(doc.Templates, parser)
	parser.Templates = append(parser.Templates, templates...)

	scope := &functionScope{extractor: e, class: class, parser: parser, params: map[string]Type{}}
	fn := NewFunctionLikeDefinition(treesitterhelper.FieldText(node, "name", e.content), nil)
	if class != nil {
		fn.DefiningClass = class.Name
	}

	params := scope.parameters(node.ChildByFieldName("parameters"), doc, fn.ArgumentDefaults)
	if class != nil && fn.Name == "__construct" {
		e.promoteProperties(node.ChildByFieldName("parameters"), class, params, fn.ArgumentDefaults)
	}

	body := node.ChildByFieldName("body")
	var returnType Type
	switch {
	case doc.Return != "":
		returnType = parser.Parse(doc.Return)
	case node.ChildByFieldName("return_type") != nil:
		returnType = parser.Parse(treesitterhelper.FieldText(node, "return_type", e.content))
	case body != nil:
		returnType = scope.inferReturnType(body)
	default:
		returnType = NewMixedType()
	}

	fn.Type = NewFunctionType(returnType, params...)
	fn.Type.Templates = templates

	if body != nil && class != nil {
		fn.SideEffects = scope.sideEffects(body, fn)
	}

	return fn
}

func (e *extractor) promoteProperties(paramsNode *tree_sitter.Node, class *ClassDefinition, params []Parameter, defaults map[string]Type) {
	if paramsNode == nil {
		return
	}

	index := 0
	for i := uint(0); i < paramsNode.NamedChildCount(); i++ {
		param := paramsNode.NamedChild(i)
		if param == nil || !isParameterNode(param) {
			continue
		}
		if param.Kind() == "property_promotion_parameter" && index < len(params) {
			p := params[index]
			class.Properties[p.Name] = &PropertyDefinition{Type: p.Type, Default: defaults[p.Name]}
		}
		index++
	}
}

func isParameterNode(node *tree_sitter.Node) bool {
	switch node.Kind() {
	case "simple_parameter", "variadic_parameter", "property_promotion_parameter":
		return true
	}
	return false
}

// functionScope types expressions inside one function body.
type functionScope struct {
	extractor *extractor
	class     *ClassDefinition
	parser    *TypeParser
	params    map[string]Type
}

func (s *functionScope) text(node *tree_sitter.Node) string {
	return s.extractor.text(node)
}

func (s *functionScope) parameters(node *tree_sitter.Node, doc docBlock, defaults map[string]Type) []Parameter {
	var params []Parameter
	if node == nil {
		return params
	}

	for i := uint(0); i < node.NamedChildCount(); i++ {
		param := node.NamedChild(i)
		if param == nil || !isParameterNode(param) {
			continue
		}

		name := strings.TrimPrefix(treesitterhelper.FieldText(param, "name", s.extractor.content), "$")
		if name == "" {
			name = strings.TrimPrefix(s.text(treesitterhelper.GetFirstNodeOfKind(param, "variable_name")), "$")
		}

		var declared Type
		switch {
		case doc.Params[name] != "":
			declared = s.parser.Parse(doc.Params[name])
		case param.ChildByFieldName("type") != nil:
			declared = s.parser.Parse(treesitterhelper.FieldText(param, "type", s.extractor.content))
		default:
			declared = NewMixedType()
		}
		if param.Kind() == "variadic_parameter" {
			declared = NewArrayType(declared, nil)
		}

		p := Parameter{Name: name, Type: declared}
		if def := param.ChildByFieldName("default_value"); def != nil {
			p.HasDefault = true
			defaults[name] = s.exprType(def)
		}

		s.params[name] = declared
		params = append(params, p)
	}

	return params
}

func (s *functionScope) inferReturnType(body *tree_sitter.Node) Type {
	returns := treesitterhelper.FindAllWithin(body, treesitterhelper.PHPReturnStatementPattern, treesitterhelper.PHPFunctionBoundaryPattern, s.extractor.content)
	if len(returns) == 0 {
		return NewVoidType()
	}

	types := make([]Type, 0, len(returns))
	for _, ret := range returns {
		if ret.NamedChildCount() == 0 {
			types = append(types, NewVoidType())
			continue
		}
		types = append(types, s.exprType(ret.NamedChild(0)))
	}

	return MergeTypes(types...)
}

func (s *functionScope) sideEffects(body *tree_sitter.Node, fn *FunctionLikeDefinition) []SideEffect {
	var effects []SideEffect
	content := s.extractor.content

	if fn.Name == "__construct" {
		if call := treesitterhelper.FindFirstWithin(body, treesitterhelper.PHPParentConstructCallPattern, treesitterhelper.PHPFunctionBoundaryPattern, content); call != nil {
			effects = append(effects, &ParentConstructCall{Arguments: s.arguments(call.ChildByFieldName("arguments"))})
		}
	}

	if _, returnsSelf := fn.Type.ReturnType.(*SelfType); !returnsSelf {
		return effects
	}

	for _, assignment := range treesitterhelper.FindAllWithin(body, treesitterhelper.PHPThisPropertyAssignmentPattern, treesitterhelper.PHPFunctionBoundaryPattern, content) {
		property := treesitterhelper.FieldText(assignment.ChildByFieldName("left"), "name", content)
		definition := s.class.GetProperty(property, nil)
		if definition == nil {
			continue
		}
		template, ok := definition.Type.(*TemplateType)
		if !ok || s.class.Template(template.Name) != template {
			continue
		}
		effects = append(effects, &SelfTemplateDefinition{
			Template: template.Name,
			Type:     s.exprType(assignment.ChildByFieldName("right")),
		})
	}

	return effects
}

func (s *functionScope) arguments(node *tree_sitter.Node) []Argument {
	var args []Argument
	if node == nil {
		return args
	}

	for i := uint(0); i < node.NamedChildCount(); i++ {
		arg := node.NamedChild(i)
		if arg == nil || arg.Kind() != "argument" || arg.NamedChildCount() == 0 {
			continue
		}
		name := treesitterhelper.FieldText(arg, "name", s.extractor.content)
		value := arg.NamedChild(arg.NamedChildCount() - 1)
		args = append(args, Argument{Name: name, Type: s.exprType(value)})
	}
	return args
}

// className resolves a class reference in an expression; keywords are kept.
func (s *functionScope) className(node *tree_sitter.Node) string {
	name := s.text(node)
	if IsClassKeyword(name) {
		return strings.ToLower(name)
	}
	return NormalizeClassName(s.extractor.resolver().ResolveType(name))
}

func (s *functionScope) functionName(name string) string {
	if strings.HasPrefix(name, "\\") {
		return NormalizeClassName(name)
	}
	if fqn, ok := s.extractor.functionUses[name]; ok {
		return fqn
	}
	if strings.Contains(name, "\\") {
		return s.extractor.resolver().ResolveType(name)
	}
	if s.extractor.localFuncs[name] {
		return s.extractor.qualify(name)
	}
	return name
}

func (s *functionScope) exprType(node *tree_sitter.Node) Type {
	if node == nil {
		return NewUnknownType("")
	}
	content := s.extractor.content

	switch node.Kind() {
	case "parenthesized_expression":
		if node.NamedChildCount() > 0 {
			return s.exprType(node.NamedChild(0))
		}
	case "integer":
		return NewIntType()
	case "float":
		return NewFloatType()
	case "boolean":
		return NewBoolType()
	case "null":
		return NewNullType()
	case "string", "encapsed_string", "heredoc", "nowdoc":
		return NewStringType()
	case "variable_name":
		name := strings.TrimPrefix(s.text(node), "$")
		if name == "this" {
			return NewSelfType()
		}
		if t, ok := s.params[name]; ok {
			return t
		}
		return NewUnknownType("unknown variable $" + name)
	case "array_creation_expression":
		return s.arrayLiteral(node)
	case "object_creation_expression":
		return s.newCall(node)
	case "member_call_expression", "nullsafe_member_call_expression":
		callee := s.exprType(node.ChildByFieldName("object"))
		method := treesitterhelper.FieldText(node, "name", content)
		ref := NewMethodCallReference(callee, method, s.arguments(node.ChildByFieldName("arguments"))...)
		if obj, ok := callee.(*ObjectType); ok {
			ref.Deps = []Dependency{MethodDependency{Class: obj.Name, Name: method}}
		}
		return ref
	case "scoped_call_expression":
		callee := s.className(node.ChildByFieldName("scope"))
		method := treesitterhelper.FieldText(node, "name", content)
		ref := NewStaticMethodCallReference(callee, method, s.arguments(node.ChildByFieldName("arguments"))...)
		if !IsClassKeyword(callee) {
			ref.Deps = []Dependency{MethodDependency{Class: callee, Name: method}}
		}
		return ref
	case "member_access_expression", "nullsafe_member_access_expression":
		object := s.exprType(node.ChildByFieldName("object"))
		property := treesitterhelper.FieldText(node, "name", content)
		ref := NewPropertyFetchReference(object, property)
		if obj, ok := object.(*ObjectType); ok {
			ref.Deps = []Dependency{PropertyDependency{Class: obj.Name, Name: property}}
		}
		return ref
	case "function_call_expression":
		return s.functionCall(node)
	case "class_constant_access_expression":
		if strings.HasSuffix(s.text(node), "::class") {
			return NewStringType()
		}
	case "anonymous_function", "anonymous_function_creation_expression", "arrow_function":
		return s.closure(node)
	case "binary_expression":
		return s.binary(node)
	case "unary_op_expression":
		if strings.HasPrefix(s.text(node), "!") {
			return NewBoolType()
		}
	case "cast_expression":
		return s.parser.Parse(strings.Trim(treesitterhelper.FieldText(node, "type", content), "() "))
	case "conditional_expression":
		return MergeTypes(s.exprType(node.ChildByFieldName("body")), s.exprType(node.ChildByFieldName("alternative")))
	}

	return NewUnknownType("unsupported expression " + node.Kind())
}

func (s *functionScope) newCall(node *tree_sitter.Node) Type {
	var classNode, argsNode *tree_sitter.Node
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "arguments":
			argsNode = child
		case "anonymous_class":
			return NewObjectType("class@anonymous")
		case "name", "qualified_name", "relative_scope":
			if classNode == nil {
				classNode = child
			}
		}
	}
	if classNode == nil {
		return NewUnknownType("dynamic class instantiation")
	}

	name := s.className(classNode)
	ref := NewNewCallReference(name, s.arguments(argsNode)...)
	if !IsClassKeyword(name) {
		ref.Deps = []Dependency{ClassDependency{Class: name}}
	}
	return ref
}

func (s *functionScope) functionCall(node *tree_sitter.Node) Type {
	function := node.ChildByFieldName("function")
	args := s.arguments(node.ChildByFieldName("arguments"))
	if function == nil {
		return NewUnknownType("")
	}

	switch function.Kind() {
	case "name", "qualified_name":
		name := s.functionName(s.text(function))
		ref := NewCallableCallReference(NewCallableStringType(name), args...)
		ref.Deps = []Dependency{FunctionDependency{Name: name}}
		return ref
	}

	return NewCallableCallReference(s.exprType(function), args...)
}

func (s *functionScope) closure(node *tree_sitter.Node) Type {
	inner := &functionScope{extractor: s.extractor, class: s.class, parser: s.parser, params: map[string]Type{}}
	for name, t := range s.params {
		inner.params[name] = t
	}

	params := inner.parameters(node.ChildByFieldName("parameters"), docBlock{}, map[string]Type{})

	var returnType Type
	body := node.ChildByFieldName("body")
	switch {
	case node.ChildByFieldName("return_type") != nil:
		returnType = s.parser.Parse(treesitterhelper.FieldText(node, "return_type", s.extractor.content))
	case node.Kind() == "arrow_function":
		returnType = inner.exprType(body)
	case body != nil:
		returnType = inner.inferReturnType(body)
	}

	return NewFunctionType(returnType, params...)
}

func (s *functionScope) binary(node *tree_sitter.Node) Type {
	switch operator := strings.ToLower(treesitterhelper.FieldText(node, "operator", s.extractor.content)); operator {
	case ".":
		return NewStringType()
	case "==", "===", "!=", "!==", "<>", "<", ">", "<=", ">=", "&&", "||", "and", "or", "xor", "instanceof":
		return NewBoolType()
	case "??":
		return MergeTypes(s.exprType(node.ChildByFieldName("left")), s.exprType(node.ChildByFieldName("right")))
	case "<=>", "%", "<<", ">>", "&", "|", "^":
		return NewIntType()
	case "+", "-", "*", "**":
		return arithmetic(s.exprType(node.ChildByFieldName("left")), s.exprType(node.ChildByFieldName("right")))
	case "/":
		return NewUnion(NewIntType(), NewFloatType())
	}
	return NewUnknownType("")
}

// arithmetic types int and float operands; anything else may be either.
func arithmetic(left, right Type) Type {
	_, leftInt := left.(*IntType)
	_, rightInt := right.(*IntType)
	_, leftFloat := left.(*FloatType)
	_, rightFloat := right.(*FloatType)

	switch {
	case leftInt && rightInt:
		return NewIntType()
	case (leftInt || leftFloat) && (rightInt || rightFloat):
		return NewFloatType()
	}
	return NewUnion(NewIntType(), NewFloatType())
}

func (s *functionScope) arrayLiteral(node *tree_sitter.Node) Type {
	var items []ArrayItem
	for i := uint(0); i < node.NamedChildCount(); i++ {
		element := node.NamedChild(i)
		if element == nil || element.Kind() != "array_element_initializer" {
			continue
		}

		switch element.NamedChildCount() {
		case 1:
			value := element.NamedChild(0)
			if value.Kind() == "variadic_unpacking" {
				return NewArrayType(NewMixedType(), nil)
			}
			items = append(items, ArrayItem{Value: s.exprType(value)})
		case 2:
			key := strings.Trim(s.text(element.NamedChild(0)), `'"`)
			items = append(items, ArrayItem{Key: key, Value: s.exprType(element.NamedChild(1))})
		}
	}

	if len(items) == 0 {
		return NewArrayType(NewMixedType(), nil)
	}
	for i := range items {
		if isIndexKey(items[i].Key) {
			items[i].Key = ""
		}
	}
	return NewKeyedArrayType(items...)
}
