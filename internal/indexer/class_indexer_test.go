package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopware/php-infer/internal/php"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productSource = `<?php

namespace App\Entity;

class Product
{
    private int $id = 0;

    public function getId(): int
    {
        return $this->id;
    }
}

function product_id(Product $product): int
{
    return $product->getId();
}
`

func TestClassIndexer(t *testing.T) {
	projectRoot := t.TempDir()
	file := filepath.Join(projectRoot, "src", "Product.php")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0755))
	require.NoError(t, os.WriteFile(file, []byte(productSource), 0644))

	store := newTestStore(t)
	index := php.NewIndex()
	classIndexer := NewClassIndexer(store, index)
	assert.Equal(t, "php.definitions", classIndexer.ID())

	fs, err := NewFileScanner(projectRoot, filepath.Join(t.TempDir(), "files.db"))
	require.NoError(t, err)
	defer fs.Close()
	fs.AddIndexer(classIndexer)

	require.NoError(t, fs.IndexAll(context.Background()))

	t.Run("index and store are filled", func(t *testing.T) {
		method := index.GetMethod("App\\Entity\\Product", "getId")
		require.NotNil(t, method)
		assert.Equal(t, "int", method.Type.ReturnType.String())
		assert.NotNil(t, index.GetFunction("App\\Entity\\product_id"))

		stored, err := store.Class("App\\Entity\\Product")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, file, stored.Path)
	})

	t.Run("removed files leave index and store", func(t *testing.T) {
		require.NoError(t, fs.RemoveFiles(context.Background(), []string{file}))

		assert.Nil(t, index.GetClass("App\\Entity\\Product"))
		assert.Nil(t, index.GetFunction("App\\Entity\\product_id"))

		stored, err := store.Class("App\\Entity\\Product")
		require.NoError(t, err)
		assert.Nil(t, stored)
	})

	t.Run("clear empties the index", func(t *testing.T) {
		require.NoError(t, fs.IndexFiles(context.Background(), []string{file}))
		require.NotNil(t, index.GetClass("App\\Entity\\Product"))

		require.NoError(t, classIndexer.Clear())
		assert.Empty(t, index.ClassNames())
		assert.Empty(t, index.FunctionNames())
	})
}
