package indexer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IndexVersion is the version of the stored definition format.
// Bump it whenever the records written by the DefinitionStore change shape;
// existing caches are then dropped and rebuilt.
const IndexVersion = 2

const versionFileName = "index_version"

// CheckAndMigrateCache checks the cache version and clears the cache
// directory if it is missing, unreadable or outdated.
// Returns true if the cache was cleared and needs to be rebuilt.
func CheckAndMigrateCache(cacheDir string) (bool, error) {
	versionFile := filepath.Join(cacheDir, versionFileName)

	data, err := os.ReadFile(versionFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Infof("no cache version found in %s", cacheDir)
	case err != nil:
		return false, fmt.Errorf("failed to read version file: %w", err)
	default:
		stored, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if parseErr == nil && stored == IndexVersion {
			return false, nil
		}
		log.Infof("cache version %q is outdated, expected %d", strings.TrimSpace(string(data)), IndexVersion)
	}

	if err := clearCacheDir(cacheDir); err != nil {
		return false, fmt.Errorf("failed to clear cache: %w", err)
	}
	if err := writeVersion(versionFile); err != nil {
		return false, fmt.Errorf("failed to write version: %w", err)
	}
	return true, nil
}

// clearCacheDir removes everything inside the cache directory, creating it if needed.
func clearCacheDir(cacheDir string) error {
	entries, err := os.ReadDir(cacheDir)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(cacheDir, 0o755)
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		path := filepath.Join(cacheDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

func writeVersion(versionFile string) error {
	return os.WriteFile(versionFile, []byte(strconv.Itoa(IndexVersion)), 0o644)
}
