package fs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPythonExcludes skips virtualenvs, caches and VCS metadata.
var DefaultPythonExcludes = []string{
	"**/.git/",
	"**/__pycache__/",
	"**/.venv/",
	"**/venv/",
	"**/env/",
	"**/node_modules/",
	"**/.tox/",
	"**/.mypy_cache/",
	"**/site-packages/",
}

// TestFilePatterns match files holding tests for both supported runners.
var TestFilePatterns = []string{
	"**/test_*.py",
	"**/*_test.py",
	"**/tests.py",
	"**/tests/**/*.py",
	"test_*.py",
	"*_test.py",
	"tests.py",
}

type Walker struct {
	includes []string
	excludes []string
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*.py"}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

// NewPythonWalker returns a walker over .py files with the default excludes.
func NewPythonWalker() *Walker {
	return NewWalker([]string{"**/*.py", "*.py"}, DefaultPythonExcludes)
}

type FileInfo struct {
	Path    string
	RelPath string // slash-separated, relative to the walk root
	ModTime int64
	Size    int64
}

func (w *Walker) Walk(root string) ([]FileInfo, error) {
	var files []FileInfo

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if info.IsDir() {
			if relPath != "." && w.shouldExclude(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if w.shouldInclude(relPath) && !w.shouldExclude(relPath) {
			files = append(files, FileInfo{
				Path:    path,
				RelPath: relPath,
				ModTime: info.ModTime().Unix(),
				Size:    info.Size(),
			})
		}

		return nil
	})

	return files, err
}

func (w *Walker) shouldInclude(path string) bool {
	return matchAny(w.includes, path)
}

func (w *Walker) shouldExclude(path string) bool {
	return matchAny(w.excludes, path)
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// IsTestFile reports whether a slash-separated path looks like a test module.
func IsTestFile(path string) bool {
	path = filepath.ToSlash(strings.TrimPrefix(path, filepath.VolumeName(path)))
	return matchAny(TestFilePatterns, strings.TrimLeft(path, "/"))
}
