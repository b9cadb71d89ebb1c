package php

import (
	"fmt"
	"io"
	"os"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// DebugAST parses a PHP file, prints its syntax tree and then the
// definitions extracted from it.
func DebugAST(w io.Writer, filePath string) error {
	fileContent, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	parser, err := NewParser()
	if err != nil {
		return err
	}
	defer parser.Close()

	tree := parser.Parse(fileContent, nil)
	defer tree.Close()

	rootNode := tree.RootNode()
	printNodeStructure(w, rootNode, "", fileContent, 0)

	fmt.Fprintln(w)
	DescribeDefinitions(w, ExtractDefinitions(filePath, rootNode, fileContent))
	return nil
}

func printNodeStructure(w io.Writer, node *tree_sitter.Node, field string, fileContent []byte, depth int) {
	if node == nil {
		return
	}

	indent := strings.Repeat("  ", depth)

	nodeText := ""
	if node.NamedChildCount() == 0 {
		nodeText = node.Utf8Text(fileContent)
	}

	label := node.Kind()
	if field != "" {
		label = field + ": " + label
	}
	fmt.Fprintf(w, "%s%s [%d] %s\n", indent, label, node.Range().StartPoint.Row+1, nodeText)

	cursor := node.Walk()
	defer cursor.Close()

	if !cursor.GotoFirstChild() {
		return
	}
	for {
		child := cursor.Node()
		if child.IsNamed() {
			printNodeStructure(w, child, cursor.FieldName(), fileContent, depth+1)
		}
		if !cursor.GotoNextSibling() {
			break
		}
	}
}

// DescribeDefinitions prints the extracted definitions in a readable form.
func DescribeDefinitions(w io.Writer, defs FileDefinitions) {
	for _, class := range defs.Classes {
		header := "class " + class.Name
		if len(class.Templates) > 0 {
			names := make([]string, len(class.Templates))
			for i, t := range class.Templates {
				names[i] = t.Name
			}
			header += "<" + strings.Join(names, ", ") + ">"
		}
		if class.Parent != "" {
			header += " extends " + class.Parent
		}
		fmt.Fprintf(w, "%s (line %d)\n", header, class.Line)

		for _, name := range sortedKeys(class.Properties) {
			p := class.Properties[name]
			line := fmt.Sprintf("  $%s: %s", name, p.Type.String())
			if p.Default != nil {
				line += " = " + p.Default.String()
			}
			fmt.Fprintln(w, line)
		}
		for _, name := range sortedKeys(class.Methods) {
			describeFunction(w, "  ", class.Methods[name])
		}
	}

	for _, fn := range defs.Functions {
		describeFunction(w, "", fn)
	}
}

func describeFunction(w io.Writer, indent string, fn *FunctionLikeDefinition) {
	fmt.Fprintf(w, "%s%s%s\n", indent, fn.Name, fn.Type.String())
	for _, effect := range fn.SideEffects {
		switch e := effect.(type) {
		case *ParentConstructCall:
			fmt.Fprintf(w, "%s  side effect: parent::__construct(%s)\n", indent, formatArguments(e.Arguments))
		case *SelfTemplateDefinition:
			fmt.Fprintf(w, "%s  side effect: %s := %s\n", indent, e.Template, e.Type.String())
		}
	}
}
