package infer

import (
	"strings"

	"github.com/shopware/php-infer/internal/php"
)

// Scope is the lexical context a type is resolved in.
type Scope struct {
	// Class is the class the code runs in. For inherited methods this is
	// the runtime class, not the declaring one.
	Class *php.ClassDefinition
	// Function is the function or method the code belongs to.
	Function *php.FunctionLikeDefinition
}

// NewScope returns a scope inside the given class and function; both may be nil.
func NewScope(class *php.ClassDefinition, function *php.FunctionLikeDefinition) *Scope {
	return &Scope{Class: class, Function: function}
}

// InClass reports whether the scope is inside a class.
func (s *Scope) InClass() bool {
	return s != nil && s.Class != nil
}

// ResolveClassName maps self, static and parent to class names. Other names
// are returned unchanged. The second result is false when a keyword has no
// meaning in this scope. lookup finds the declaring class of an inherited
// method, which parent refers to; it may be nil.
func (s *Scope) ResolveClassName(name string, lookup php.ClassLookup) (string, bool) {
	if !php.IsClassKeyword(name) {
		return php.NormalizeClassName(name), true
	}
	if s == nil {
		return "", false
	}

	var resolved string
	switch strings.ToLower(name) {
	case php.KeywordSelf:
		if s.Function != nil {
			resolved = s.Function.DefiningClass
		}
		if resolved == "" && s.Class != nil {
			resolved = s.Class.Name
		}
	case php.KeywordStatic:
		if s.Class != nil {
			resolved = s.Class.Name
		}
	case php.KeywordParent:
		if declaring := s.declaringClass(lookup); declaring != nil {
			resolved = declaring.Parent
		}
	}

	return resolved, resolved != ""
}

// declaringClass is the class the scope function is written in, nil when it
// cannot be found.
func (s *Scope) declaringClass(lookup php.ClassLookup) *php.ClassDefinition {
	if s.Function == nil || s.Function.DefiningClass == "" {
		return s.Class
	}
	if s.Class != nil && strings.EqualFold(s.Class.Name, s.Function.DefiningClass) {
		return s.Class
	}
	if lookup == nil {
		return nil
	}
	return lookup(s.Function.DefiningClass)
}
