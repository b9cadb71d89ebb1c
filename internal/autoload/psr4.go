// Package autoload maps PHP class names to files following the PSR-4
// autoload rules of composer.json.
package autoload

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tliron/commonlog"
)

// mapping is one PSR-4 namespace prefix with the directories it maps to.
type mapping struct {
	prefix string
	dirs   []string
}

// Autoloader locates class files through PSR-4 prefixes. The longest
// matching prefix is tried first.
type Autoloader struct {
	mappings []mapping
	log      commonlog.Logger
}

func New() *Autoloader {
	return &Autoloader{log: commonlog.GetLogger("phpinfer.autoload")}
}

// Load reads autoload and autoload-dev of the composer.json in projectRoot.
// With vendor set, the packages listed in vendor/composer/installed.json are
// added too.
func Load(projectRoot string, vendor bool) (*Autoloader, error) {
	a := New()

	data, err := os.ReadFile(filepath.Join(projectRoot, "composer.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read composer.json: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid composer.json in %s", projectRoot)
	}

	root := gjson.ParseBytes(data)
	a.addPSR4(projectRoot, root.Get("autoload.psr-4"))
	a.addPSR4(projectRoot, root.Get("autoload-dev.psr-4"))

	if vendor {
		a.loadInstalled(projectRoot)
	}

	a.sort()
	return a, nil
}

func (a *Autoloader) loadInstalled(projectRoot string) {
	composerDir := filepath.Join(projectRoot, "vendor", "composer")
	data, err := os.ReadFile(filepath.Join(composerDir, "installed.json"))
	if err != nil {
		a.log.Debugf("no installed packages: %s", err)
		return
	}

	packages := gjson.GetBytes(data, "packages")
	if !packages.Exists() {
		// composer 1 stores a plain list
		packages = gjson.ParseBytes(data)
	}

	packages.ForEach(func(_, pkg gjson.Result) bool {
		installPath := pkg.Get("install-path").String()
		if installPath == "" {
			installPath = filepath.Join("..", pkg.Get("name").String())
		}
		a.addPSR4(filepath.Join(composerDir, installPath), pkg.Get("autoload.psr-4"))
		return true
	})
}

func (a *Autoloader) addPSR4(baseDir string, psr4 gjson.Result) {
	psr4.ForEach(func(prefix, dirs gjson.Result) bool {
		var paths []string
		if dirs.IsArray() {
			for _, dir := range dirs.Array() {
				paths = append(paths, filepath.Join(baseDir, dir.String()))
			}
		} else {
			paths = append(paths, filepath.Join(baseDir, dirs.String()))
		}
		a.Add(prefix.String(), paths...)
		return true
	})
}

// Add maps a namespace prefix such as "App\\" to directories.
func (a *Autoloader) Add(prefix string, dirs ...string) {
	prefix = strings.Trim(prefix, "\\")
	if prefix != "" {
		prefix += "\\"
	}

	for i := range a.mappings {
		if a.mappings[i].prefix == prefix {
			a.mappings[i].dirs = append(a.mappings[i].dirs, dirs...)
			return
		}
	}
	a.mappings = append(a.mappings, mapping{prefix: prefix, dirs: dirs})
	a.sort()
}

func (a *Autoloader) sort() {
	sort.SliceStable(a.mappings, func(i, j int) bool {
		return len(a.mappings[i].prefix) > len(a.mappings[j].prefix)
	})
}

// Locate returns the existing file that declares the class.
func (a *Autoloader) Locate(className string) (string, bool) {
	className = strings.TrimPrefix(className, "\\")

	for _, m := range a.mappings {
		if !strings.HasPrefix(className, m.prefix) {
			continue
		}

		relative := strings.ReplaceAll(strings.TrimPrefix(className, m.prefix), "\\", string(filepath.Separator)) + ".php"
		for _, dir := range m.dirs {
			path := filepath.Join(dir, relative)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, true
			}
		}
	}

	return "", false
}

// Prefixes returns the configured namespace prefixes, longest first.
func (a *Autoloader) Prefixes() []string {
	prefixes := make([]string, len(a.mappings))
	for i, m := range a.mappings {
		prefixes[i] = m.prefix
	}
	return prefixes
}
