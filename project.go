package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shopware/php-infer/internal/autoload"
	"github.com/shopware/php-infer/internal/config"
	"github.com/shopware/php-infer/internal/indexer"
	"github.com/shopware/php-infer/internal/infer"
	"github.com/shopware/php-infer/internal/php"
)

// project wires the index, its persistence and the resolver for one
// project root.
type project struct {
	root     string
	config   *config.Config
	index    *php.Index
	scanner  *indexer.FileScanner
	analyzer *infer.SourceAnalyzer
	resolver *infer.Resolver
}

func openProject(root string, cfg *config.Config) (*project, error) {
	cacheDir, err := cfg.ProjectCacheDir(root)
	if err != nil {
		return nil, err
	}

	cleared, err := indexer.CheckAndMigrateCache(cacheDir)
	if err != nil {
		return nil, err
	}
	if cleared {
		log.Infof("cache in %s was reset, the project is indexed from scratch", cacheDir)
	}

	store, err := indexer.NewDefinitionStore(filepath.Join(cacheDir, "definitions.db"))
	if err != nil {
		return nil, err
	}

	index := php.NewIndex()
	loaded, err := store.LoadInto(index)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load stored definitions: %w", err)
	}
	log.Debugf("loaded %d stored definitions", loaded)

	scanner, err := indexer.NewFileScanner(root, filepath.Join(cacheDir, "files.db"))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	scanner.AddIndexer(indexer.NewClassIndexer(store, index))
	scanner.AddSkipDirs(cfg.SkipDirs...)
	if !cfg.AnalyzeVendor {
		scanner.AddSkipDirs("vendor")
	}

	loader, err := autoload.Load(root, cfg.AnalyzeVendor)
	if err != nil {
		log.Warningf("autoloading disabled: %s", err)
		loader = autoload.New()
	}

	analyzer := infer.NewSourceAnalyzer(index, loader,
		infer.WithDefinitionSource(store),
		infer.WithVendor(cfg.AnalyzeVendor),
	)
	resolver := infer.NewResolver(index,
		infer.WithBroker(infer.NewBroker(infer.NewStubExtension(cfg.Stubs))),
		infer.WithAnalyzer(analyzer),
	)

	return &project{
		root:     root,
		config:   cfg,
		index:    index,
		scanner:  scanner,
		analyzer: analyzer,
		resolver: resolver,
	}, nil
}

// scope returns the scope for a class name, optionally followed by
// ::method. An empty name is the global scope.
func (p *project) scope(name string) (*infer.Scope, error) {
	if name == "" {
		return infer.NewScope(nil, nil), nil
	}

	className, method, _ := strings.Cut(name, "::")
	class := p.analyzer.Analyze(className)
	if class == nil {
		return nil, fmt.Errorf("unknown scope class %s", className)
	}

	var function *php.FunctionLikeDefinition
	if method != "" {
		function = class.GetMethod(method, p.index.GetClass)
		if function == nil {
			return nil, fmt.Errorf("unknown scope method %s::%s", class.Name, method)
		}
	}
	return infer.NewScope(class, function), nil
}

func (p *project) Close() error {
	return p.scanner.Close()
}
