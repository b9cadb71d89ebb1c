package php

import (
	"strings"

	"github.com/tliron/commonlog"
)

// AliasResolver resolves class names as written in a file to fully qualified
// class names, using the file namespace and its use statements.
type AliasResolver struct {
	// Map of alias name to fully qualified class name
	aliases map[string]string
	// Map of imported short name to fully qualified class name
	useStatements map[string]string
	// Current namespace
	currentNamespace string
	log              commonlog.Logger
}

// NewAliasResolver creates a resolver for a file in the given namespace.
// useStatements maps the last segment of each import to its FQCN, aliases
// maps "use X as Y" names to their FQCN.
func NewAliasResolver(namespace string, useStatements, aliases map[string]string) *AliasResolver {
	if useStatements == nil {
		useStatements = map[string]string{}
	}
	if aliases == nil {
		aliases = map[string]string{}
	}

	return &AliasResolver{
		aliases:          aliases,
		useStatements:    useStatements,
		currentNamespace: NormalizeClassName(namespace),
		log:              commonlog.GetLogger("phpinfer.alias"),
	}
}

// Namespace returns the namespace the resolver was created for.
func (r *AliasResolver) Namespace() string {
	return r.currentNamespace
}

// ResolveType resolves a class name to its fully qualified form without the
// leading separator. Primitive and special type names are returned unchanged.
func (r *AliasResolver) ResolveType(typeName string) string {
	// Skip resolution for primitive types and special types
	if isPrimitiveType(typeName) || isSpecialType(typeName) {
		return typeName
	}

	// Already fully qualified
	if strings.HasPrefix(typeName, "\\") {
		return NormalizeClassName(typeName)
	}

	first, rest, qualified := strings.Cut(typeName, "\\")

	if fqcn, ok := r.aliases[first]; ok {
		r.log.Debugf("resolved alias: %s -> %s", typeName, fqcn)
		return joinName(fqcn, rest, qualified)
	}

	if fqcn, ok := r.useStatements[first]; ok {
		r.log.Debugf("resolved use statement: %s -> %s", typeName, fqcn)
		return joinName(fqcn, rest, qualified)
	}

	// If not found in aliases or use statements, assume it's in the current namespace
	if r.currentNamespace != "" {
		return r.currentNamespace + "\\" + typeName
	}

	return typeName
}

func joinName(fqcn, rest string, qualified bool) string {
	fqcn = NormalizeClassName(fqcn)
	if !qualified {
		return fqcn
	}
	return fqcn + "\\" + rest
}

func isPrimitiveType(typeName string) bool {
	switch strings.ToLower(typeName) {
	case "string", "int", "integer", "float", "double", "bool", "boolean",
		"array", "object", "callable", "iterable", "void", "null",
		"mixed", "never", "resource", "false", "true", "number", "list", "scalar":
		return true
	default:
		return false
	}
}

func isSpecialType(typeName string) bool {
	switch strings.ToLower(typeName) {
	case "self", "static", "parent", "$this", "class-string", "array-key":
		return true
	default:
		return false
	}
}
