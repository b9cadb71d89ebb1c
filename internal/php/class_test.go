package php

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex(t *testing.T) {
	index := NewIndex()

	base := NewClassDefinition("App\\Base", "")
	base.Methods["id"] = NewFunctionLikeDefinition("id", NewFunctionType(NewIntType()))
	base.Properties["name"] = &PropertyDefinition{Type: NewStringType()}

	child := NewClassDefinition("App\\Child", "App\\Base")
	child.Methods["id"] = NewFunctionLikeDefinition("id", NewFunctionType(NewStringType()))

	index.AddClass(child)
	index.AddClass(base)
	index.AddFunction(NewFunctionLikeDefinition("\\App\\helper", NewFunctionType(NewVoidType())))

	assert.Same(t, child, index.GetClass("\\App\\Child"))
	assert.Nil(t, index.GetClass("App\\Missing"))
	assert.NotNil(t, index.GetFunction("App\\helper"))
	assert.Equal(t, []string{"App\\Base", "App\\Child"}, index.ClassNames())
	assert.Equal(t, []string{"App\\helper"}, index.FunctionNames())

	t.Run("names ignore case", func(t *testing.T) {
		assert.Same(t, child, index.GetClass("app\\CHILD"))
		assert.NotNil(t, index.GetFunction("APP\\Helper"))
		assert.NotNil(t, index.GetMethod("app\\child", "id"))
	})

	t.Run("members are inherited", func(t *testing.T) {
		assert.Equal(t, "string", index.GetMethod("App\\Child", "id").Type.ReturnType.String())
		assert.Equal(t, "string", index.GetProperty("App\\Child", "name").Type.String())
		assert.Nil(t, index.GetMethod("App\\Child", "missing"))
		assert.Nil(t, index.GetMethod("App\\Missing", "id"))
		assert.Nil(t, index.GetProperty("App\\Missing", "name"))
	})

	t.Run("without lookup only own members", func(t *testing.T) {
		assert.Nil(t, child.GetProperty("name", nil))
		assert.NotNil(t, child.GetMethod("id", nil))
	})

	t.Run("removal", func(t *testing.T) {
		index.RemoveClass("\\app\\base")
		index.RemoveFunction("App\\helper")

		assert.Nil(t, index.GetClass("App\\Base"))
		assert.Nil(t, index.GetFunction("App\\helper"))
		assert.Nil(t, index.GetProperty("App\\Child", "name"))
	})
}

func TestClassDefinition_InheritanceCycle(t *testing.T) {
	a := NewClassDefinition("A", "B")
	b := NewClassDefinition("B", "A")
	lookup := func(name string) *ClassDefinition {
		return map[string]*ClassDefinition{"A": a, "B": b}[name]
	}

	assert.Nil(t, a.GetMethod("missing", lookup))
	assert.Nil(t, a.GetProperty("missing", lookup))
}

func TestIndex_Concurrency(t *testing.T) {
	index := NewIndex()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			class := NewClassDefinition("App\\Shared", "")
			index.AddClass(class)
			_ = index.GetClass("App\\Shared")
			_ = index.ClassNames()
		}()
	}
	wg.Wait()

	require.NotNil(t, index.GetClass("App\\Shared"))
	assert.Len(t, index.ClassNames(), 1)
}
