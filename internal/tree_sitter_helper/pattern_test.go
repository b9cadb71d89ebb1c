package treesitterhelper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
)

func parsePHP(t *testing.T, code []byte) *tree_sitter.Tree {
	t.Helper()
	parser := tree_sitter.NewParser()
	t.Cleanup(parser.Close)
	require.NoError(t, parser.SetLanguage(tree_sitter.NewLanguage(tree_sitter_php.LanguagePHP())))

	tree := parser.Parse(code, nil)
	require.NotNil(t, tree)
	t.Cleanup(tree.Close)
	return tree
}

func TestPHPPatterns(t *testing.T) {
	phpCode := []byte(`<?php
	$repository->search("product.repository", ["foo" => "bar"]);

	$repository->find("category.repository");
	`)
	tree := parsePHP(t, phpCode)

	searchPattern := And(
		NodeKind("string_content"),
		FuncPattern(func(node *tree_sitter.Node, content []byte) bool {
			return node.Utf8Text(content) == "product.repository"
		}),
		Ancestor(
			And(
				NodeKind("member_call_expression"),
				HasChild(And(
					NodeKind("name"),
					NodeText("search"),
				)),
			),
			4,
		),
	)

	matches := FindAll(tree.RootNode(), searchPattern, phpCode)
	require.Len(t, matches, 1, "Should find exactly one search call")
	assert.Equal(t, "product.repository", matches[0].Utf8Text(phpCode))

	otherPattern := And(
		NodeKind("string_content"),
		Not(
			Ancestor(
				And(
					NodeKind("member_call_expression"),
					Field("name", NodeText("search")),
				),
				4,
			),
		),
	)

	others := FindAll(tree.RootNode(), otherPattern, phpCode)
	require.Len(t, others, 1)
	assert.Equal(t, "category.repository", others[0].Utf8Text(phpCode))
}

func TestFindWithinStopsAtBoundaries(t *testing.T) {
	phpCode := []byte(`<?php
	function outer() {
		$f = function () { return 1; };
		$g = fn () => 2;
		return 3;
	}
	`)
	tree := parsePHP(t, phpCode)

	outer := FindFirst(tree.RootNode(), NodeKind("function_definition"), phpCode)
	require.NotNil(t, outer)
	body := outer.ChildByFieldName("body")
	require.NotNil(t, body)

	returns := FindAllWithin(body, PHPReturnStatementPattern, PHPFunctionBoundaryPattern, phpCode)
	require.Len(t, returns, 1)
	assert.Equal(t, "return 3;", returns[0].Utf8Text(phpCode))

	assert.Len(t, FindAll(body, PHPReturnStatementPattern, phpCode), 2)

	first := FindFirstWithin(body, NodeKind("integer"), PHPFunctionBoundaryPattern, phpCode)
	require.NotNil(t, first)
	assert.Equal(t, "3", first.Utf8Text(phpCode))
}

func TestConstructorPatterns(t *testing.T) {
	phpCode := []byte(`<?php
	class Child extends Base {
		/** @var int */
		private $value;

		/**
		 * @param int $value
		 */
		public function __construct($value) {
			parent::__construct($value);
			$this->value = $value;
			$other->value = 1;
		}
	}
	`)
	tree := parsePHP(t, phpCode)
	root := tree.RootNode()

	call := FindFirst(root, PHPParentConstructCallPattern, phpCode)
	require.NotNil(t, call)
	assert.Equal(t, "parent::__construct($value)", call.Utf8Text(phpCode))

	assignments := FindAll(root, PHPThisPropertyAssignmentPattern, phpCode)
	require.Len(t, assignments, 1)
	assert.Equal(t, "value", FieldText(assignments[0].ChildByFieldName("left"), "name", phpCode))

	class := FindFirst(root, PHPClassLikePattern, phpCode)
	require.NotNil(t, class)
	assert.Equal(t, "Child", FieldText(class, "name", phpCode))
	assert.Empty(t, FieldText(class, "missing", phpCode))
	assert.NotNil(t, GetFirstNodeOfKind(class, "base_clause"))

	constructor := FindFirst(root, NodeKind("method_declaration"), phpCode)
	require.NotNil(t, constructor)
	assert.Contains(t, DocComment(constructor, phpCode), "@param int $value")

	property := FindFirst(root, NodeKind("property_declaration"), phpCode)
	require.NotNil(t, property)
	assert.Equal(t, "/** @var int */", DocComment(property, phpCode))

	// no comment precedes the class
	assert.Empty(t, DocComment(class, phpCode))
}

func TestPatternComposition(t *testing.T) {
	phpCode := []byte(`<?php foo(); bar(); baz();`)
	tree := parsePHP(t, phpCode)

	calls := NodeKind("function_call_expression")
	named := func(names ...string) Pattern {
		patterns := make([]Pattern, len(names))
		for i, name := range names {
			patterns[i] = Field("function", NodeText(name))
		}
		return Or(patterns...)
	}

	assert.Len(t, FindAll(tree.RootNode(), And(calls, named("foo", "baz")), phpCode), 2)
	assert.Len(t, FindAll(tree.RootNode(), And(calls, Not(named("foo"))), phpCode), 2)
	assert.Len(t, FindAll(tree.RootNode(), AnyNodeKind("function_call_expression", "name"), phpCode), 6)
	assert.Len(t, FindAll(tree.RootNode(), And(calls, NodeTextContains("ba")), phpCode), 2)
	assert.Len(t, FindAll(tree.RootNode(), And(calls, HasChildOfKind("arguments")), phpCode), 3)

	capture := Capture(And(calls, named("bar")))
	assert.NotNil(t, FindFirst(tree.RootNode(), capture, phpCode))
	assert.Equal(t, "bar()", capture.GetCapturedNode().Utf8Text(phpCode))
}
