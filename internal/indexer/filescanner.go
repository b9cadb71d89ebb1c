package indexer

import (
	"context"
	"encoding/binary"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"
	"go.etcd.io/bbolt"
)

var log = commonlog.GetLogger("phpinfer.indexer")

var defaultSkipDirs = map[string]bool{
	"node_modules": true,
	"var":          true,
	"vendor-bin":   true,
	"bin":          true,
	"cache":        true,
	".git":         true,
	".github":      true,
	".gitlab":      true,
	".idea":        true,
	".vscode":      true,
	"tests":        true,
	"public":       true,
}

var fileStatesBucket = []byte("file_states")

const debounceDelay = 200 * time.Millisecond

// FileScanner finds the PHP files of a project, hands changed files to its
// indexers and optionally watches the project for changes.
//
// A file state is its size, modification time and content hash. A file
// whose size or modification time changed but whose content hashes the same
// is not indexed again.
type FileScanner struct {
	projectRoot string
	db          *bbolt.DB
	indexer     []Indexer
	skipDirs    map[string]bool
	watcher     *fsnotify.Watcher
	watcherCtx  context.Context
	cancel      context.CancelFunc
	watcherWg   sync.WaitGroup
	onUpdate    func()
}

// NewFileScanner creates a scanner for projectRoot keeping file states in dbPath.
func NewFileScanner(projectRoot string, dbPath string) (*FileScanner, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{
		Timeout:      time.Second,
		NoSync:       true,
		FreelistType: bbolt.FreelistMapType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(fileStatesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FileScanner{
		projectRoot: projectRoot,
		db:          db,
		skipDirs:    maps.Clone(defaultSkipDirs),
		watcherCtx:  ctx,
		cancel:      cancel,
	}, nil
}

func (fs *FileScanner) SetOnUpdate(onUpdate func()) {
	fs.onUpdate = onUpdate
}

func (fs *FileScanner) AddIndexer(indexer Indexer) {
	fs.indexer = append(fs.indexer, indexer)
}

// AddSkipDirs excludes directories with the given names at any depth.
func (fs *FileScanner) AddSkipDirs(dirs ...string) {
	for _, dir := range dirs {
		fs.skipDirs[strings.Trim(dir, "/")] = true
	}
}

func (fs *FileScanner) isSkipped(path string) bool {
	relPath, err := filepath.Rel(fs.projectRoot, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(relPath, string(os.PathSeparator)) {
		if fs.skipDirs[part] {
			return true
		}
	}
	return false
}

func isScannedFile(path string) bool {
	if strings.HasSuffix(path, ".phar.php") {
		return false
	}
	return slices.Contains(scannedFileTypes, strings.ToLower(filepath.Ext(path)))
}

// StartWatcher starts watching the project directory. Changes are collected
// and indexed together once no event arrived for a short while.
func (fs *FileScanner) StartWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	fs.watcher = watcher
	fs.watcherWg.Add(1)

	go func() {
		defer fs.watcherWg.Done()
		defer func() { _ = watcher.Close() }()

		pendingAdds := make(map[string]bool)
		pendingRemoves := make(map[string]bool)
		debounceTimer := time.NewTimer(time.Hour)
		debounceTimer.Stop()

		debounce := func() {
			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(debounceDelay)
		}

		processChanges := func() {
			if len(pendingAdds) > 0 {
				files := slices.Collect(maps.Keys(pendingAdds))
				clear(pendingAdds)

				log.Infof("processing %d changed files", len(files))
				if err := fs.IndexFiles(fs.watcherCtx, files); err != nil {
					log.Errorf("error indexing files: %s", err)
				}
			}

			if len(pendingRemoves) > 0 {
				files := slices.Collect(maps.Keys(pendingRemoves))
				clear(pendingRemoves)

				log.Infof("processing %d deleted files", len(files))
				if err := fs.RemoveFiles(fs.watcherCtx, files); err != nil {
					log.Errorf("error removing files: %s", err)
				}
			}
		}

		for {
			select {
			case <-fs.watcherCtx.Done():
				processChanges()
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if fs.isSkipped(event.Name) {
					continue
				}

				fileInfo, err := os.Stat(event.Name)
				if err != nil {
					// gone already
					if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
						if isScannedFile(event.Name) {
							pendingRemoves[event.Name] = true
							delete(pendingAdds, event.Name)
							debounce()
						}
					}
					continue
				}

				if fileInfo.IsDir() {
					if event.Op.Has(fsnotify.Create) {
						if err := fs.addDirectoryToWatcher(event.Name); err != nil {
							log.Errorf("error adding directory to watcher: %s", err)
						}
					}
					continue
				}

				if !isScannedFile(event.Name) {
					continue
				}

				switch {
				case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
					log.Debugf("file changed: %s", event.Name)
					pendingAdds[event.Name] = true
					delete(pendingRemoves, event.Name)
				case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
					log.Debugf("file removed: %s", event.Name)
					pendingRemoves[event.Name] = true
					delete(pendingAdds, event.Name)
				default:
					continue
				}
				debounce()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("file watcher error: %s", err)

			case <-debounceTimer.C:
				processChanges()
			}
		}
	}()

	return fs.addDirectoryToWatcher(fs.projectRoot)
}

// StopWatcher stops the file watcher after pending changes were processed.
func (fs *FileScanner) StopWatcher() {
	if fs.watcher == nil {
		return
	}

	fs.cancel()
	fs.watcherWg.Wait()
	fs.watcher = nil
}

// addDirectoryToWatcher recursively adds a directory and its subdirectories to the watcher
func (fs *FileScanner) addDirectoryToWatcher(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		if fs.isSkipped(path) {
			return filepath.SkipDir
		}

		if err := fs.watcher.Add(path); err != nil {
			log.Warningf("cannot watch directory %s: %s", path, err)
		}
		return nil
	})
}

// Close stops the watcher, closes the indexers and the state database.
func (fs *FileScanner) Close() error {
	fs.StopWatcher()

	var firstErr error
	for _, indexer := range fs.indexer {
		if err := indexer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := fs.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// IndexAll indexes every scanned file of the project that changed since it
// was last indexed.
func (fs *FileScanner) IndexAll(ctx context.Context) error {
	var files []string

	err := filepath.Walk(fs.projectRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if path != fs.projectRoot && fs.isSkipped(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if isScannedFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk project directory: %w", err)
	}

	log.Infof("found %d files to index", len(files))
	startTime := time.Now()

	if err := fs.IndexFiles(ctx, files); err != nil {
		return fmt.Errorf("failed to index files: %w", err)
	}

	log.Infof("indexing took %s", time.Since(startTime))
	return nil
}

type fileState struct {
	path string
	info os.FileInfo
	hash uint64
}

func encodeFileState(state fileState) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[:8], uint64(state.info.Size()))
	binary.LittleEndian.PutUint64(b[8:16], uint64(state.info.ModTime().UnixNano()))
	binary.LittleEndian.PutUint64(b[16:], state.hash)
	return b
}

type fileWork struct {
	fileState
	content []byte
}

// fileNeedsIndexing reads a file whose state changed. The returned state is
// to be stored even when the content turned out to be unchanged.
func (fs *FileScanner) fileNeedsIndexing(path string) (bool, fileWork, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fileWork{}, err
	}

	var stored []byte
	_ = fs.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(fileStatesBucket); b != nil {
			stored = slices.Clone(b.Get([]byte(path)))
		}
		return nil
	})

	if len(stored) == 24 &&
		binary.LittleEndian.Uint64(stored[:8]) == uint64(info.Size()) &&
		binary.LittleEndian.Uint64(stored[8:16]) == uint64(info.ModTime().UnixNano()) {
		return false, fileWork{}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return false, fileWork{}, err
	}

	work := fileWork{
		fileState: fileState{path: path, info: info, hash: xxhash.Sum64(content)},
		content:   content,
	}
	changed := len(stored) != 24 || binary.LittleEndian.Uint64(stored[16:]) != work.hash
	return changed, work, nil
}

func (fs *FileScanner) updateFileStates(states []fileState) error {
	if len(states) == 0 {
		return nil
	}
	return fs.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(fileStatesBucket)
		for _, state := range states {
			if err := bucket.Put([]byte(state.path), encodeFileState(state)); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveFiles removes files from all indexers and forgets their state.
func (fs *FileScanner) RemoveFiles(ctx context.Context, paths []string) error {
	if err := fs.removeFilesFromIndexers(paths); err != nil {
		return err
	}

	err := fs.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(fileStatesBucket)
		for _, path := range paths {
			if err := bucket.Delete([]byte(path)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if fs.onUpdate != nil {
		fs.onUpdate()
	}
	return nil
}

func (fs *FileScanner) removeFilesFromIndexers(paths []string) error {
	for _, indexer := range fs.indexer {
		if err := indexer.RemovedFiles(paths); err != nil {
			return err
		}
	}
	return nil
}

// IndexFiles indexes the given files in parallel. Files in skipped
// directories and unchanged files are ignored.
func (fs *FileScanner) IndexFiles(ctx context.Context, files []string) error {
	files = slices.DeleteFunc(slices.Clone(files), fs.isSkipped)
	if len(files) == 0 {
		return nil
	}

	workerCount := min(runtime.NumCPU()+2, 16)

	fileChan := make(chan string, 100)

	var errMu sync.Mutex
	var errs []error
	report := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		errs = append(errs, err)
	}

	var wg sync.WaitGroup
	for range workerCount {
		wg.Add(1)
		go func() {
			defer wg.Done()

			parsers, err := createTreesitterParsers()
			if err != nil {
				report(err)
				for range fileChan {
				}
				return
			}
			defer closeTreesitterParsers(parsers)

			const batchSize = 50
			batch := make([]fileWork, 0, batchSize)
			var unchanged []fileState

			processBatch := func(items []fileWork) {
				if len(items) == 0 {
					return
				}

				paths := make([]string, 0, len(items))
				for _, item := range items {
					paths = append(paths, item.path)
				}
				if err := fs.removeFilesFromIndexers(paths); err != nil {
					report(err)
					return
				}

				states := make([]fileState, 0, len(items))
				for _, item := range items {
					parser := parsers[strings.ToLower(filepath.Ext(item.path))]
					if parser == nil {
						report(fmt.Errorf("no parser found for %s", item.path))
						continue
					}

					tree := parser.Parse(item.content, nil)
					for _, indexer := range fs.indexer {
						if err := indexer.Index(item.path, tree.RootNode(), item.content); err != nil {
							report(fmt.Errorf("%s: %w", indexer.ID(), err))
						}
					}
					tree.Close()

					states = append(states, item.fileState)
				}

				if err := fs.updateFileStates(states); err != nil {
					report(err)
				}
			}

			for path := range fileChan {
				if ctx.Err() != nil {
					continue
				}

				needsIndexing, work, err := fs.fileNeedsIndexing(path)
				if err != nil {
					continue
				}
				if !needsIndexing {
					if work.info != nil {
						unchanged = append(unchanged, work.fileState)
					}
					continue
				}

				batch = append(batch, work)
				if len(batch) >= batchSize {
					processBatch(batch)
					batch = batch[:0]
				}
			}

			processBatch(batch)

			if err := fs.updateFileStates(unchanged); err != nil {
				report(err)
			}
		}()
	}

	for _, path := range files {
		fileChan <- path
	}
	close(fileChan)

	wg.Wait()

	for _, err := range errs {
		log.Errorf("error processing file: %s", err)
	}

	if fs.onUpdate != nil {
		fs.onUpdate()
	}

	return ctx.Err()
}

// ClearHashes clears all indexers and file states, forcing a full reindex.
func (fs *FileScanner) ClearHashes() error {
	for _, indexer := range fs.indexer {
		if err := indexer.Clear(); err != nil {
			return err
		}
	}

	return fs.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(fileStatesBucket); err != nil {
			return fmt.Errorf("failed to delete file states bucket: %w", err)
		}
		if _, err := tx.CreateBucket(fileStatesBucket); err != nil {
			return fmt.Errorf("failed to create file states bucket: %w", err)
		}
		return nil
	})
}
