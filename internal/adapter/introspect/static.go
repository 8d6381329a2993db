package introspect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"pyrock/internal/adapter/analyzer"
	"pyrock/internal/port"
)

// Static introspects modules by parsing source files under the search paths.
// It never executes Python code. Compiled extension modules are invisible to
// it.
type Static struct {
	roots    []string
	analyzer *analyzer.PythonAnalyzer
	log      zerolog.Logger
	owner    map[string]string // top-level name -> root holding it
}

func NewStatic(roots []string, log zerolog.Logger) *Static {
	return &Static{
		roots:    roots,
		analyzer: analyzer.NewPythonAnalyzer(),
		log:      log,
		owner:    make(map[string]string),
	}
}

// TopLevel lists packages and modules directly under each root. A name found
// in an earlier root shadows later ones.
func (s *Static) TopLevel(ctx context.Context) ([]string, error) {
	var names []string
	for _, root := range s.roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		children, err := listChildren(root)
		if err != nil {
			s.log.Debug().Err(err).Str("root", root).Msg("skip search path")
			continue
		}
		for _, name := range children {
			if _, seen := s.owner[name]; seen {
				continue
			}
			s.owner[name] = root
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Open loads the module or package at the dotted path.
func (s *Static) Open(ctx context.Context, path string) (port.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parts := strings.Split(path, ".")
	root, ok := s.owner[parts[0]]
	if !ok {
		return nil, fmt.Errorf("module %s not found on search path", parts[0])
	}

	dir := root
	for i, part := range parts {
		pkg := filepath.Join(dir, part)
		if isPackage(pkg) {
			if i == len(parts)-1 {
				return s.load(path, filepath.Join(pkg, "__init__.py"), pkg)
			}
			dir = pkg
			continue
		}
		if i == len(parts)-1 {
			file := pkg + ".py"
			if info, err := os.Stat(file); err == nil && !info.IsDir() {
				return s.load(path, file, "")
			}
		}
		break
	}
	return nil, fmt.Errorf("module %s not found", path)
}

func (s *Static) load(path, file, pkgDir string) (port.Module, error) {
	source, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	defs, err := s.analyzer.TopLevel(source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}

	m := &module{name: path}
	for _, d := range defs {
		member := port.Member{Name: d.Name, Path: path + "." + d.Name}
		if d.Kind == analyzer.KindClass {
			m.classes = append(m.classes, member)
		} else {
			m.functions = append(m.functions, member)
		}
	}
	if pkgDir != "" {
		children, err := listChildren(pkgDir)
		if err != nil {
			return nil, err
		}
		for _, name := range children {
			sub := path + "." + name
			m.submodules = append(m.submodules, port.Member{Name: name, Path: sub, Origin: sub})
		}
	}
	return m, nil
}

func (s *Static) Close() error {
	return nil
}

// listChildren returns the importable modules and packages in dir, sorted.
func listChildren(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			if isIdentifier(name) && isPackage(filepath.Join(dir, name)) {
				names = append(names, name)
			}
			continue
		}
		stem, ok := strings.CutSuffix(name, ".py")
		if !ok || stem == "__init__" || !isIdentifier(stem) {
			continue
		}
		names = append(names, stem)
	}
	sort.Strings(names)
	return names, nil
}

func isPackage(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "__init__.py"))
	return err == nil && !info.IsDir()
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
