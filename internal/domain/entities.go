package domain

import "errors"

// ErrNoIndex is returned when no usable symbol index is present. Callers
// treat it as an empty index.
var ErrNoIndex = errors.New("no import index present")

// ImportEntry is a fully-qualified dotted path such as "os.path.join".
type ImportEntry = string

// Action is a host command action.
type Action string

const (
	ActionImportSymbol     Action = "import_symbol"
	ActionCopyImportSymbol Action = "copy_import_symbol"
	ActionReIndexImports   Action = "re_index_imports"
	ActionCopyTestPath     Action = "copy_test_path"
	ActionRunTest          Action = "run_test"
	ActionListTests        Action = "list_tests"
	ActionLookup           Action = "lookup"
)

// Candidate is an import statement proposed to the user, not yet applied.
type Candidate struct {
	DisplayKey string `json:"display_key"` // full statement text
	FromPart   string `json:"from_part"`   // "from a.b import" or "import a"
	Symbol     string `json:"symbol"`
}

// IsBare reports whether the candidate is an "import X" statement.
func (c Candidate) IsBare() bool {
	return len(c.DisplayKey) >= 7 && c.DisplayKey[:7] == "import "
}

// Region is a half-open byte range in a buffer.
type Region struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

// Edit replaces Region of a buffer with Text.
type Edit struct {
	Region Region `json:"region"`
	Text   string `json:"text"`
}

// Apply returns buffer with the edit applied.
func (e Edit) Apply(buffer string) string {
	return buffer[:e.Region.Begin] + e.Text + buffer[e.Region.End:]
}

// SymbolLocation is a definition site reported by a symbol source. DisplayName
// is the path relative to the project root, e.g. "pkg/mod.py".
type SymbolLocation struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	Name        string `json:"name,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Line        int    `json:"line,omitempty"`
}

// TestTarget is a class or test function declaration that can be run.
type TestTarget struct {
	Kind   string `json:"kind"` // "class" or "method"
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Line   int    `json:"line"`
}

// WalkStats summarizes a module walk.
type WalkStats struct {
	TopLevelModules int
	ModulesOpened   int
	ImportFailures  int
	Denylisted      int
	EntriesRecorded int
}
