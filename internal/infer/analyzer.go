package infer

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shopware/php-infer/internal/php"
	"github.com/tliron/commonlog"
)

// ClassLocator finds the file declaring a class.
type ClassLocator interface {
	Locate(className string) (string, bool)
}

// DefinitionSource is persistent storage of analyzed definitions.
type DefinitionSource interface {
	Class(name string) (*php.ClassDefinition, error)
	SaveFile(defs php.FileDefinitions) error
}

// SourceAnalyzer analyzes classes on demand: from the definition source if
// it has them, otherwise by locating and parsing the declaring file. Library
// code under vendor/ is refused unless enabled.
type SourceAnalyzer struct {
	index         *php.Index
	locator       ClassLocator
	source        DefinitionSource
	analyzeVendor bool

	mu     sync.Mutex
	missed map[string]bool
	log    commonlog.Logger
}

type AnalyzerOption func(*SourceAnalyzer)

// WithDefinitionSource makes the analyzer read stored definitions first and
// store what it parses.
func WithDefinitionSource(source DefinitionSource) AnalyzerOption {
	return func(a *SourceAnalyzer) { a.source = source }
}

// WithVendor allows analyzing classes declared under vendor/.
func WithVendor(enabled bool) AnalyzerOption {
	return func(a *SourceAnalyzer) { a.analyzeVendor = enabled }
}

// NewSourceAnalyzer creates an analyzer adding what it finds to index.
func NewSourceAnalyzer(index *php.Index, locator ClassLocator, opts ...AnalyzerOption) *SourceAnalyzer {
	a := &SourceAnalyzer{
		index:   index,
		locator: locator,
		missed:  map[string]bool{},
		log:     commonlog.GetLogger("phpinfer.analyzer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *SourceAnalyzer) Analyze(className string) *php.ClassDefinition {
	className = php.NormalizeClassName(className)
	if class := a.index.GetClass(className); class != nil {
		return class
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// analyzed by another caller while waiting
	if class := a.index.GetClass(className); class != nil {
		return class
	}

	key := strings.ToLower(className)
	if a.missed[key] {
		return nil
	}

	class := a.analyze(className)
	if class == nil {
		a.missed[key] = true
	}
	return class
}

func (a *SourceAnalyzer) analyze(className string) *php.ClassDefinition {
	if a.source != nil {
		class, err := a.source.Class(className)
		if err != nil {
			a.log.Warningf("cannot read stored definition of %s: %s", className, err)
		}
		if class != nil {
			a.index.AddClass(class)
			return class
		}
	}

	if a.locator == nil {
		return nil
	}
	path, ok := a.locator.Locate(className)
	if !ok {
		a.log.Debugf("no file found for %s", className)
		return nil
	}

	if !a.analyzeVendor && isVendorPath(path) {
		a.log.Debugf("not analyzing %s from %s", className, path)
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		a.log.Warningf("cannot read %s: %s", path, err)
		return nil
	}

	defs, err := php.ParseDefinitions(path, content)
	if err != nil {
		a.log.Warningf("cannot parse %s: %s", path, err)
		return nil
	}

	if a.source != nil {
		if err := a.source.SaveFile(defs); err != nil {
			a.log.Warningf("cannot store definitions of %s: %s", path, err)
		}
	}

	var found *php.ClassDefinition
	for _, class := range defs.Classes {
		a.index.AddClass(class)
		if strings.EqualFold(class.Name, className) {
			found = class
		}
	}
	for _, fn := range defs.Functions {
		a.index.AddFunction(fn)
	}

	if found != nil {
		a.log.Infof("analyzed %s from %s", found.Name, path)
	}
	return found
}

func isVendorPath(path string) bool {
	sep := string(filepath.Separator)
	return strings.Contains(filepath.Clean(path), sep+"vendor"+sep)
}
