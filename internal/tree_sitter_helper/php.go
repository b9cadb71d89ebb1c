package treesitterhelper

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// PHP patterns used by the definition extractor
var (
	PHPClassLikePattern = AnyNodeKind("class_declaration", "interface_declaration", "trait_declaration", "enum_declaration")

	// Nested scopes whose return statements and $this do not belong to the
	// enclosing function.
	PHPFunctionBoundaryPattern = AnyNodeKind(
		"anonymous_function",
		"anonymous_function_creation_expression",
		"arrow_function",
		"function_definition",
		"class_declaration",
		"anonymous_class",
	)

	PHPReturnStatementPattern = NodeKind("return_statement")

	PHPThisVariablePattern = And(NodeKind("variable_name"), NodeText("$this"))

	PHPParentConstructCallPattern = And(
		NodeKind("scoped_call_expression"),
		Field("scope", NodeText("parent")),
		Field("name", NodeText("__construct")),
	)

	PHPThisPropertyAssignmentPattern = And(
		NodeKind("assignment_expression"),
		Field("left", And(
			NodeKind("member_access_expression"),
			Field("object", PHPThisVariablePattern),
		)),
	)
)

// GetFirstNodeOfKind returns the first direct child of the given kind.
func GetFirstNodeOfKind(node *tree_sitter.Node, kind string) *tree_sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == kind {
			return child
		}
	}
	return nil
}

// FieldText returns the source text of the child stored under field, or "".
func FieldText(node *tree_sitter.Node, field string, content []byte) string {
	if node == nil {
		return ""
	}
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return child.Utf8Text(content)
}

// DocComment returns the /** */ comment directly preceding a declaration.
func DocComment(node *tree_sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	prev := node.PrevNamedSibling()
	for prev != nil && prev.Kind() == "attribute_list" {
		prev = prev.PrevNamedSibling()
	}
	if prev == nil || prev.Kind() != "comment" {
		return ""
	}
	text := prev.Utf8Text(content)
	if !strings.HasPrefix(text, "/**") {
		return ""
	}
	return text
}
