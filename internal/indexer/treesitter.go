package indexer

import (
	"github.com/shopware/php-infer/internal/php"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

var scannedFileTypes = []string{
	".php",
}

// createTreesitterParsers returns one parser per scanned file extension.
// Parsers are not safe for concurrent use, so every worker creates its own.
func createTreesitterParsers() (map[string]*tree_sitter.Parser, error) {
	parser, err := php.NewParser()
	if err != nil {
		return nil, err
	}

	return map[string]*tree_sitter.Parser{
		".php": parser,
	}, nil
}

func closeTreesitterParsers(parsers map[string]*tree_sitter.Parser) {
	for _, parser := range parsers {
		parser.Close()
	}
}
