package port

import (
	"context"
	"errors"
)

// ErrIntrospectorDown marks errors from an introspector that can no longer
// answer, as opposed to a single module that failed to import.
var ErrIntrospectorDown = errors.New("introspector is not running")

// Member is a named member of a module together with its fully-qualified
// path. For submodules Origin is the canonical module name, which differs
// from Path when a module is re-exported under another parent.
type Member struct {
	Name   string
	Path   string
	Origin string
}

// Module exposes the members of one opened module in a stable order.
type Module interface {
	// Name returns the canonical module name.
	Name() string

	Classes() []Member

	Functions() []Member

	Submodules() []Member
}

// Introspector enumerates and opens modules reachable from the module search
// path.
type Introspector interface {
	// TopLevel lists importable top-level module names.
	TopLevel(ctx context.Context) ([]string, error)

	// Open imports or loads the module at the dotted path. An error means the
	// module is skipped unless it wraps ErrIntrospectorDown.
	Open(ctx context.Context, path string) (Module, error)

	Close() error
}
