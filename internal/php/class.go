package php

import (
	"sort"
	"strings"
	"sync"
)

// ClassLookup finds a class definition by name, nil when unknown.
type ClassLookup func(name string) *ClassDefinition

// GetMethod finds a method on the class or, failing that, on its ancestors.
func (c *ClassDefinition) GetMethod(name string, lookup ClassLookup) *FunctionLikeDefinition {
	visited := map[string]bool{}
	for class := c; class != nil && !visited[class.Name]; {
		visited[class.Name] = true

		if method, ok := class.Methods[name]; ok {
			return method
		}

		// Method not found in this class, check parent
		if class.Parent == "" || lookup == nil {
			return nil
		}
		class = lookup(class.Parent)
	}

	return nil
}

// GetProperty finds a property on the class or, failing that, on its ancestors.
func (c *ClassDefinition) GetProperty(name string, lookup ClassLookup) *PropertyDefinition {
	visited := map[string]bool{}
	for class := c; class != nil && !visited[class.Name]; {
		visited[class.Name] = true

		if property, ok := class.Properties[name]; ok {
			return property
		}

		if class.Parent == "" || lookup == nil {
			return nil
		}
		class = lookup(class.Parent)
	}

	return nil
}

// Index holds analyzed class and function definitions. It is safe for
// concurrent use; definitions handed out must be treated as read-only.
// Names are matched case-insensitively, as PHP does.
type Index struct {
	mu        sync.RWMutex
	classes   map[string]*ClassDefinition
	functions map[string]*FunctionLikeDefinition
}

func NewIndex() *Index {
	return &Index{
		classes:   map[string]*ClassDefinition{},
		functions: map[string]*FunctionLikeDefinition{},
	}
}

func (i *Index) AddClass(class *ClassDefinition) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.classes[indexKey(class.Name)] = class
}

func (i *Index) AddFunction(fn *FunctionLikeDefinition) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.functions[indexKey(fn.Name)] = fn
}

// RemoveClass drops a class, e.g. after its file was deleted.
func (i *Index) RemoveClass(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.classes, indexKey(name))
}

func (i *Index) RemoveFunction(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.functions, indexKey(name))
}

func (i *Index) GetClass(name string) *ClassDefinition {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.classes[indexKey(name)]
}

func (i *Index) GetFunction(name string) *FunctionLikeDefinition {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.functions[indexKey(name)]
}

func (i *Index) GetMethod(className, name string) *FunctionLikeDefinition {
	class := i.GetClass(className)
	if class == nil {
		return nil
	}
	return class.GetMethod(name, i.GetClass)
}

func (i *Index) GetProperty(className, name string) *PropertyDefinition {
	class := i.GetClass(className)
	if class == nil {
		return nil
	}
	return class.GetProperty(name, i.GetClass)
}

// ClassNames returns the indexed class names in sorted order.
func (i *Index) ClassNames() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	names := make([]string, 0, len(i.classes))
	for _, class := range i.classes {
		names = append(names, class.Name)
	}
	sort.Strings(names)
	return names
}

// FunctionNames returns the indexed function names in sorted order.
func (i *Index) FunctionNames() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	names := make([]string, 0, len(i.functions))
	for _, fn := range i.functions {
		names = append(names, NormalizeClassName(fn.Name))
	}
	sort.Strings(names)
	return names
}

func indexKey(name string) string {
	return strings.ToLower(NormalizeClassName(name))
}
