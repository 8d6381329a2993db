package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"pyrock/internal/domain"
	"pyrock/internal/port"
)

// fakeModule describes one module of a fakeIntrospector. Submodules map a
// member name to its canonical module name.
type fakeModule struct {
	classes    []string
	functions  []string
	submodules []string
	origins    map[string]string
}

type fakeIntrospector struct {
	mu       sync.Mutex
	toplevel []string
	modules  map[string]fakeModule
	// aliases maps an attribute path to the canonical module it resolves to.
	aliases map[string]string
	opens   map[string]int
	// crashOn names a module whose import takes the introspector down.
	crashOn string
	down    bool
}

func newFakeIntrospector(toplevel []string, modules map[string]fakeModule) *fakeIntrospector {
	return &fakeIntrospector{
		toplevel: toplevel,
		modules:  modules,
		aliases:  map[string]string{},
		opens:    map[string]int{},
	}
}

func (f *fakeIntrospector) TopLevel(context.Context) ([]string, error) {
	return f.toplevel, nil
}

func (f *fakeIntrospector) Open(_ context.Context, path string) (port.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := path
	if canonical, ok := f.aliases[path]; ok {
		name = canonical
	}
	if f.down {
		return nil, fmt.Errorf("open %s: %w", path, port.ErrIntrospectorDown)
	}
	if name == f.crashOn {
		f.down = true
		return nil, fmt.Errorf("read open %s: %w: EOF", path, port.ErrIntrospectorDown)
	}
	f.opens[name]++
	def, ok := f.modules[name]
	if !ok {
		return nil, errors.New("ModuleNotFoundError: " + path)
	}

	m := &fakeModuleView{name: name}
	for _, c := range def.classes {
		m.classes = append(m.classes, port.Member{Name: c, Path: path + "." + c})
	}
	for _, fn := range def.functions {
		m.functions = append(m.functions, port.Member{Name: fn, Path: path + "." + fn})
	}
	for _, s := range def.submodules {
		origin := name + "." + s
		if o, ok := def.origins[s]; ok {
			origin = o
		}
		m.submodules = append(m.submodules, port.Member{Name: s, Path: path + "." + s, Origin: origin})
	}
	return m, nil
}

func (f *fakeIntrospector) Close() error { return nil }

func (f *fakeIntrospector) openCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[name]
}

func (f *fakeIntrospector) opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for name := range f.opens {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type fakeModuleView struct {
	name       string
	classes    []port.Member
	functions  []port.Member
	submodules []port.Member
}

func (m *fakeModuleView) Name() string              { return m.name }
func (m *fakeModuleView) Classes() []port.Member    { return m.classes }
func (m *fakeModuleView) Functions() []port.Member  { return m.functions }
func (m *fakeModuleView) Submodules() []port.Member { return m.submodules }

// entries flattens an index into a sorted list.
func entries(idx domain.SymbolIndex) []string {
	var out []string
	idx.Each(func(p domain.ImportEntry) { out = append(out, p) })
	sort.Strings(out)
	return out
}

type staticIndex struct {
	idx         domain.SymbolIndex
	invalidated int
}

func (s *staticIndex) Get() (domain.SymbolIndex, error) {
	if s.idx == nil {
		return nil, domain.ErrNoIndex
	}
	return s.idx, nil
}

func (s *staticIndex) Invalidate() { s.invalidated++ }

type memClipboard struct {
	text string
}

func (c *memClipboard) WriteText(text string) error {
	c.text = text
	return nil
}

type scriptedChooser struct {
	pick   int
	titles []string
	items  [][]string
}

func (c *scriptedChooser) Choose(title string, items []string) (int, error) {
	c.titles = append(c.titles, title)
	c.items = append(c.items, items)
	return c.pick, nil
}
