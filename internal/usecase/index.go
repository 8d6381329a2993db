package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"pyrock/internal/domain"
	"pyrock/internal/port"
)

// Walker enumerates modules through an introspector and records every class,
// function and submodule path it finds.
type Walker struct {
	depth    int
	denylist []glob.Glob
	log      zerolog.Logger
}

// NewWalker compiles the denylist. Patterns match whole dotted module names
// with '.' as the separator, so "*sublime*" matches "sublime_plugin" but not
// "a.sublime".
func NewWalker(depth int, denylist []string, log zerolog.Logger) (*Walker, error) {
	w := &Walker{depth: depth, log: log}
	for _, pattern := range denylist {
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, fmt.Errorf("invalid denylist pattern %q: %w", pattern, err)
		}
		w.denylist = append(w.denylist, g)
	}
	return w, nil
}

// Denied reports whether a top-level module is skipped.
func (w *Walker) Denied(name string) bool {
	for _, g := range w.denylist {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// opened caches the member lists of a module by canonical name so a module
// reachable through several parents is imported once.
type opened struct {
	classes    []string
	functions  []string
	submodules []port.Member
	failed     bool
}

type walkState struct {
	in       port.Introspector
	idx      domain.SymbolIndex
	stats    domain.WalkStats
	cache    map[string]*opened
	expanded map[string]bool
	toplevel map[string]bool
}

func (s *walkState) record(path string) {
	if s.idx.Record(path) {
		s.stats.EntriesRecorded++
	}
}

func (s *walkState) open(ctx context.Context, path, origin string) (*opened, error) {
	if origin == "" {
		origin = path
	}
	if o, ok := s.cache[origin]; ok {
		return o, nil
	}

	mod, err := s.in.Open(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, port.ErrIntrospectorDown) {
			return nil, fmt.Errorf("import %s: %w", path, err)
		}
		s.stats.ImportFailures++
		o := &opened{failed: true}
		s.cache[origin] = o
		return o, err
	}
	s.stats.ModulesOpened++

	o := &opened{submodules: mod.Submodules()}
	for _, m := range mod.Classes() {
		o.classes = append(o.classes, m.Name)
	}
	for _, m := range mod.Functions() {
		o.functions = append(o.functions, m.Name)
	}
	s.cache[origin] = o
	if name := mod.Name(); name != "" && name != origin {
		s.cache[name] = o
	}
	return o, nil
}

func (s *walkState) recordMembers(path string, o *opened) {
	for _, name := range o.classes {
		s.record(path + "." + name)
	}
	for _, name := range o.functions {
		s.record(path + "." + name)
	}
}

// Walk visits every top-level module breadth-first down to the depth bound.
// progress receives int(i*100/total) after top-level module i.
func (w *Walker) Walk(ctx context.Context, in port.Introspector, progress func(int)) (domain.SymbolIndex, domain.WalkStats, error) {
	names, err := in.TopLevel(ctx)
	if err != nil {
		return nil, domain.WalkStats{}, fmt.Errorf("list top-level modules: %w", err)
	}

	s := &walkState{
		in:       in,
		idx:      domain.NewSymbolIndex(),
		cache:    make(map[string]*opened),
		expanded: make(map[string]bool),
		toplevel: make(map[string]bool, len(names)),
	}
	for _, name := range names {
		s.toplevel[name] = true
	}
	s.stats.TopLevelModules = len(names)

	total := len(names)
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, s.stats, err
		}

		if w.Denied(name) {
			s.stats.Denylisted++
			w.log.Debug().Str("module", name).Msg("denylisted")
		} else if err := w.walkModule(ctx, s, name); err != nil {
			return nil, s.stats, err
		}

		if progress != nil {
			progress(i * 100 / total)
		}
	}

	w.log.Debug().
		Int("entries", s.stats.EntriesRecorded).
		Int("opened", s.stats.ModulesOpened).
		Int("failures", s.stats.ImportFailures).
		Msg("walk finished")
	return s.idx, s.stats, nil
}

type queued struct {
	path string
	mod  *opened
}

func (w *Walker) walkModule(ctx context.Context, s *walkState, name string) error {
	s.record(name)

	root, err := s.open(ctx, name, "")
	if err != nil {
		if isFatal(ctx, err) {
			return err
		}
		w.log.Debug().Err(err).Str("module", name).Msg("import failed")
		return nil
	}
	if root.failed {
		return nil
	}
	s.recordMembers(name, root)
	s.expanded[name] = true

	queue := []queued{{path: name, mod: root}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if segments(cur.path) >= w.depth {
			continue
		}
		for _, sub := range cur.mod.submodules {
			// Cached members carry the path of whichever parent opened them
			// first, so the path is rebuilt from the current parent.
			path := cur.path + "." + sub.Name
			origin := sub.Origin
			if origin == "" {
				origin = path
			}

			o, err := s.open(ctx, path, origin)
			if err != nil && isFatal(ctx, err) {
				return err
			}
			if err != nil || o.failed {
				w.log.Debug().Err(err).Str("module", path).Msg("import failed")
				s.record(path)
				continue
			}
			s.recordMembers(path, o)
			s.record(path)

			// A shared module is expanded once. Aliases of other top-level
			// modules are left to that module's own walk.
			if s.expanded[origin] || (origin != path && s.toplevel[origin]) {
				continue
			}
			s.expanded[origin] = true
			queue = append(queue, queued{path: path, mod: o})
		}
	}
	return nil
}

// isFatal reports whether err ends the walk instead of skipping one module.
func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, port.ErrIntrospectorDown)
}

func segments(path string) int {
	return strings.Count(path, ".") + 1
}
