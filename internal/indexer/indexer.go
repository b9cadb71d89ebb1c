package indexer

import tree_sitter "github.com/tree-sitter/go-tree-sitter"

// Indexer consumes parsed files handed out by the FileScanner. Index may be
// called from several workers at once.
type Indexer interface {
	ID() string
	Index(path string, node *tree_sitter.Node, fileContent []byte) error
	RemovedFiles(paths []string) error
	Close() error
	Clear() error
}
