package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

func TestFileScanner_IndexFiles_SkipDirs(t *testing.T) {
	// Create a temporary directory for testing
	tempDir := t.TempDir()

	// Create test directory structure with files
	createTestFiles(t, tempDir)

	// Create a mock indexer that tracks which files are indexed
	mockIndexer := newMockIndexer()

	// Create a file scanner with the mock indexer
	fs, err := NewFileScanner(tempDir, filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	defer fs.Close()

	// Add the mock indexer
	fs.AddIndexer(mockIndexer)

	// Create a list of files to index
	var files []string
	err = filepath.Walk(tempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".php" {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)

	// Index the files
	err = fs.IndexFiles(context.Background(), files)
	require.NoError(t, err)

	// Verify that files in excluded directories were not indexed
	for path := range mockIndexer.indexedFiles {
		relPath, err := filepath.Rel(tempDir, path)
		require.NoError(t, err)

		// Check that the file is not in any excluded directory
		pathParts := strings.Split(relPath, string(os.PathSeparator))
		for _, part := range pathParts {
			assert.False(t, defaultSkipDirs[part], "File in excluded directory was indexed: %s", path)
		}
	}

	// Verify that files in regular directories were indexed
	regularFile := filepath.Join(tempDir, "regular", "file.php")
	assert.True(t, mockIndexer.indexed(regularFile), "Regular file was not indexed")

	// Verify that files in excluded directories were not indexed
	excludedFiles := []string{
		filepath.Join(tempDir, "node_modules", "file.php"),
		filepath.Join(tempDir, "vendor-bin", "file.php"),
		filepath.Join(tempDir, "tests", "file.php"),
		filepath.Join(tempDir, "nested", "node_modules", "file.php"),
	}

	for _, file := range excludedFiles {
		assert.False(t, mockIndexer.indexed(file), "Excluded file was indexed: %s", file)
	}
}

func TestFileScanner_IndexAll(t *testing.T) {
	tempDir := t.TempDir()
	createTestFiles(t, tempDir)
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "regular", "readme.md"), []byte("# docs"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "regular", "box.phar.php"), []byte("<?php"), 0644))

	mockIndexer := newMockIndexer()
	fs, err := NewFileScanner(tempDir, filepath.Join(tempDir, "state", "files.db"))
	require.NoError(t, err)
	defer fs.Close()
	fs.AddIndexer(mockIndexer)
	fs.AddSkipDirs("/nested/")

	updates := 0
	fs.SetOnUpdate(func() { updates++ })

	require.NoError(t, fs.IndexAll(context.Background()))

	assert.Equal(t, []string{filepath.Join(tempDir, "regular", "file.php")}, mockIndexer.paths())
	assert.Equal(t, 1, updates)
}

func TestFileScanner_Unchanged(t *testing.T) {
	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "src", "Product.php")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0755))
	require.NoError(t, os.WriteFile(file, []byte("<?php class Product {}"), 0644))

	mockIndexer := newMockIndexer()
	fs, err := NewFileScanner(tempDir, filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	defer fs.Close()
	fs.AddIndexer(mockIndexer)

	ctx := context.Background()
	require.NoError(t, fs.IndexFiles(ctx, []string{file}))
	assert.Equal(t, 1, mockIndexer.count(file))

	t.Run("same state is skipped", func(t *testing.T) {
		require.NoError(t, fs.IndexFiles(ctx, []string{file}))
		assert.Equal(t, 1, mockIndexer.count(file))
	})

	t.Run("touched with same content is skipped", func(t *testing.T) {
		later := time.Now().Add(time.Hour)
		require.NoError(t, os.Chtimes(file, later, later))

		require.NoError(t, fs.IndexFiles(ctx, []string{file}))
		assert.Equal(t, 1, mockIndexer.count(file))
	})

	t.Run("changed content is indexed again", func(t *testing.T) {
		require.NoError(t, os.WriteFile(file, []byte("<?php class Product { public int $id; }"), 0644))

		require.NoError(t, fs.IndexFiles(ctx, []string{file}))
		assert.Equal(t, 2, mockIndexer.count(file))
	})

	t.Run("removed files are forgotten", func(t *testing.T) {
		require.NoError(t, fs.RemoveFiles(ctx, []string{file}))
		assert.False(t, mockIndexer.indexed(file))

		require.NoError(t, fs.IndexFiles(ctx, []string{file}))
		assert.Equal(t, 3, mockIndexer.count(file))
	})

	t.Run("clearing forces a full reindex", func(t *testing.T) {
		require.NoError(t, fs.ClearHashes())
		assert.Equal(t, 1, mockIndexer.clears)

		require.NoError(t, fs.IndexFiles(ctx, []string{file}))
		assert.Equal(t, 4, mockIndexer.count(file))
	})
}

func TestFileScanner_CanceledContext(t *testing.T) {
	tempDir := t.TempDir()
	createTestFiles(t, tempDir)

	mockIndexer := newMockIndexer()
	fs, err := NewFileScanner(tempDir, filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	defer fs.Close()
	fs.AddIndexer(mockIndexer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = fs.IndexFiles(ctx, []string{filepath.Join(tempDir, "regular", "file.php")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, mockIndexer.paths())
}

func TestIsScannedFile(t *testing.T) {
	assert.True(t, isScannedFile("src/Product.php"))
	assert.True(t, isScannedFile("src/Legacy.PHP"))
	assert.False(t, isScannedFile("tools/box.phar.php"))
	assert.False(t, isScannedFile("config/services.xml"))
}

// Helper function to create test files
func createTestFiles(t *testing.T, baseDir string) {
	// Create directories and files for testing
	dirs := []string{
		"regular",
		"node_modules",
		"vendor-bin",
		"tests",
		filepath.Join("nested", "node_modules"),
	}

	for _, dir := range dirs {
		err := os.MkdirAll(filepath.Join(baseDir, dir), 0755)
		require.NoError(t, err)

		// Create a PHP file in each directory
		filePath := filepath.Join(baseDir, dir, "file.php")
		err = os.WriteFile(filePath, []byte("<?php\n// Test file\n"), 0644)
		require.NoError(t, err)
	}
}

// Mock indexer for testing
type mockIndexer struct {
	mu           sync.Mutex
	indexedFiles map[string]int
	clears       int
	total        map[string]int
}

func newMockIndexer() *mockIndexer {
	return &mockIndexer{
		indexedFiles: make(map[string]int),
		total:        make(map[string]int),
	}
}

func (m *mockIndexer) Index(path string, node *tree_sitter.Node, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexedFiles[path]++
	m.total[path]++
	return nil
}

func (m *mockIndexer) RemovedFiles(paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, path := range paths {
		delete(m.indexedFiles, path)
	}
	return nil
}

func (m *mockIndexer) ID() string {
	return "mock"
}

func (m *mockIndexer) Close() error {
	return nil
}

func (m *mockIndexer) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.indexedFiles)
	m.clears++
	return nil
}

func (m *mockIndexer) indexed(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexedFiles[path] > 0
}

// count is how often the file was handed to Index, removals included.
func (m *mockIndexer) count(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total[path]
}

func (m *mockIndexer) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var paths []string
	for path := range m.indexedFiles {
		paths = append(paths, path)
	}
	return paths
}
