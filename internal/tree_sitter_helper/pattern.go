package treesitterhelper

import (
	"slices"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Pattern matches a node of a syntax tree
type Pattern interface {
	Matches(node *tree_sitter.Node, content []byte) bool
}

type funcPattern struct {
	matchFunc func(node *tree_sitter.Node, content []byte) bool
}

func FuncPattern(matchFunc func(node *tree_sitter.Node, content []byte) bool) Pattern {
	return &funcPattern{matchFunc: matchFunc}
}

func (p *funcPattern) Matches(node *tree_sitter.Node, content []byte) bool {
	return node != nil && p.matchFunc(node, content)
}

// Logical combinators
func And(patterns ...Pattern) Pattern {
	return &andPattern{patterns: patterns}
}

type andPattern struct {
	patterns []Pattern
}

func (p *andPattern) Matches(node *tree_sitter.Node, content []byte) bool {
	for _, pattern := range p.patterns {
		if !pattern.Matches(node, content) {
			return false
		}
	}
	return true
}

func Or(patterns ...Pattern) Pattern {
	return &orPattern{patterns: patterns}
}

type orPattern struct {
	patterns []Pattern
}

func (p *orPattern) Matches(node *tree_sitter.Node, content []byte) bool {
	for _, pattern := range p.patterns {
		if pattern.Matches(node, content) {
			return true
		}
	}
	return false
}

func Not(pattern Pattern) Pattern {
	return &notPattern{pattern: pattern}
}

type notPattern struct {
	pattern Pattern
}

func (p *notPattern) Matches(node *tree_sitter.Node, content []byte) bool {
	return !p.pattern.Matches(node, content)
}

// Node property patterns
func NodeKind(kind string) Pattern {
	return &nodeKindPattern{kind: kind}
}

type nodeKindPattern struct {
	kind string
}

func (p *nodeKindPattern) Matches(node *tree_sitter.Node, content []byte) bool {
	return node != nil && node.Kind() == p.kind
}

func AnyNodeKind(kinds ...string) Pattern {
	return &anyNodeKindPattern{kinds: kinds}
}

type anyNodeKindPattern struct {
	kinds []string
}

func (p *anyNodeKindPattern) Matches(node *tree_sitter.Node, content []byte) bool {
	return node != nil && slices.Contains(p.kinds, node.Kind())
}

func NodeText(text string) Pattern {
	return &nodeTextPattern{text: text}
}

type nodeTextPattern struct {
	text string
}

func (p *nodeTextPattern) Matches(node *tree_sitter.Node, content []byte) bool {
	return node != nil && node.Utf8Text(content) == p.text
}

func NodeTextContains(substring string) Pattern {
	return &nodeTextContainsPattern{substring: substring}
}

type nodeTextContainsPattern struct {
	substring string
}

func (p *nodeTextContainsPattern) Matches(node *tree_sitter.Node, content []byte) bool {
	return node != nil && strings.Contains(node.Utf8Text(content), p.substring)
}

// Structural patterns
func HasChildOfKind(kind string) Pattern {
	return HasChild(NodeKind(kind))
}

func HasChild(pattern Pattern) Pattern {
	return &hasChildPattern{pattern: pattern}
}

type hasChildPattern struct {
	pattern Pattern
}

func (p *hasChildPattern) Matches(node *tree_sitter.Node, content []byte) bool {
	if node == nil {
		return false
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if p.pattern.Matches(node.NamedChild(i), content) {
			return true
		}
	}
	return false
}

// Field matches when the child stored under the given grammar field matches.
func Field(name string, pattern Pattern) Pattern {
	return &fieldPattern{name: name, pattern: pattern}
}

type fieldPattern struct {
	name    string
	pattern Pattern
}

func (p *fieldPattern) Matches(node *tree_sitter.Node, content []byte) bool {
	if node == nil {
		return false
	}
	child := node.ChildByFieldName(p.name)
	return child != nil && p.pattern.Matches(child, content)
}

func Ancestor(pattern Pattern, maxDepth int) Pattern {
	return &ancestorPattern{pattern: pattern, maxDepth: maxDepth}
}

type ancestorPattern struct {
	pattern  Pattern
	maxDepth int
}

func (p *ancestorPattern) Matches(node *tree_sitter.Node, content []byte) bool {
	current := node.Parent()
	depth := 0

	for current != nil && depth < p.maxDepth {
		if p.pattern.Matches(current, content) {
			return true
		}
		current = current.Parent()
		depth++
	}
	return false
}

// Capture patterns allow retrieving nodes that matched
type CapturePattern interface {
	Pattern
	GetCapturedNode() *tree_sitter.Node
}

func Capture(pattern Pattern) CapturePattern {
	return &capturePattern{pattern: pattern}
}

type capturePattern struct {
	pattern Pattern
	result  *tree_sitter.Node
}

func (p *capturePattern) Matches(node *tree_sitter.Node, content []byte) bool {
	if p.pattern.Matches(node, content) {
		p.result = node
		return true
	}
	return false
}

func (p *capturePattern) GetCapturedNode() *tree_sitter.Node {
	return p.result
}

// FindFirst returns the first node in pre-order matching the pattern.
func FindFirst(root *tree_sitter.Node, pattern Pattern, content []byte) *tree_sitter.Node {
	return FindFirstWithin(root, pattern, nil, content)
}

// FindFirstWithin is FindFirst that does not descend into nodes matching
// boundary (the root itself is always searched).
func FindFirstWithin(root *tree_sitter.Node, pattern, boundary Pattern, content []byte) *tree_sitter.Node {
	if root == nil {
		return nil
	}
	if pattern.Matches(root, content) {
		return root
	}

	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child == nil || (boundary != nil && boundary.Matches(child, content)) {
			continue
		}
		if result := FindFirstWithin(child, pattern, boundary, content); result != nil {
			return result
		}
	}

	return nil
}

// FindAll returns all nodes matching the pattern in pre-order.
func FindAll(root *tree_sitter.Node, pattern Pattern, content []byte) []*tree_sitter.Node {
	return FindAllWithin(root, pattern, nil, content)
}

// FindAllWithin is FindAll that does not descend into nodes matching boundary.
func FindAllWithin(root *tree_sitter.Node, pattern, boundary Pattern, content []byte) []*tree_sitter.Node {
	var results []*tree_sitter.Node

	var visit func(node *tree_sitter.Node)
	visit = func(node *tree_sitter.Node) {
		if pattern.Matches(node, content) {
			results = append(results, node)
		}

		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if child == nil || (boundary != nil && boundary.Matches(child, content)) {
				continue
			}
			visit(child)
		}
	}

	if root != nil {
		visit(root)
	}
	return results
}
