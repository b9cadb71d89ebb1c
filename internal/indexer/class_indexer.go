package indexer

import (
	"fmt"

	"github.com/shopware/php-infer/internal/php"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// ClassIndexer extracts the definitions of scanned PHP files, persists them
// in the DefinitionStore and keeps the in-memory index in sync.
type ClassIndexer struct {
	store *DefinitionStore
	index *php.Index
}

func NewClassIndexer(store *DefinitionStore, index *php.Index) *ClassIndexer {
	return &ClassIndexer{store: store, index: index}
}

func (c *ClassIndexer) ID() string {
	return "php.definitions"
}

func (c *ClassIndexer) Index(path string, node *tree_sitter.Node, fileContent []byte) error {
	defs := php.ExtractDefinitions(path, node, fileContent)

	if err := c.store.SaveFile(defs); err != nil {
		return fmt.Errorf("failed to store definitions of %s: %w", path, err)
	}

	for _, class := range defs.Classes {
		c.index.AddClass(class)
	}
	for _, fn := range defs.Functions {
		c.index.AddFunction(fn)
	}

	if len(defs.Classes)+len(defs.Functions) > 0 {
		log.Debugf("indexed %d classes and %d functions of %s", len(defs.Classes), len(defs.Functions), path)
	}
	return nil
}

func (c *ClassIndexer) RemovedFiles(paths []string) error {
	for _, path := range paths {
		classes, functions, err := c.store.NamesByPath(path)
		if err != nil {
			return err
		}
		for _, name := range classes {
			c.index.RemoveClass(name)
		}
		for _, name := range functions {
			c.index.RemoveFunction(name)
		}
	}

	return c.store.BatchDeleteByFilePaths(paths)
}

func (c *ClassIndexer) Close() error {
	return c.store.Close()
}

func (c *ClassIndexer) Clear() error {
	for _, name := range c.index.ClassNames() {
		c.index.RemoveClass(name)
	}
	for _, name := range c.index.FunctionNames() {
		c.index.RemoveFunction(name)
	}
	return c.store.Clear()
}
