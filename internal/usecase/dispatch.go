package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"pyrock/config"
	"pyrock/internal/adapter/fs"
	"pyrock/internal/adapter/resolver"
	"pyrock/internal/domain"
	"pyrock/internal/port"
)

var (
	ErrNotPython     = errors.New("not a python file")
	ErrUnknownAction = errors.New("unknown action")
)

// Request is one host command invocation.
type Request struct {
	Action          domain.Action           `json:"action"`
	// Test picks the first candidate without asking.
	Test            bool                    `json:"test,omitempty"`
	// Choice is a candidate index the host already picked from an earlier
	// response's Candidates.
	Choice          *int                    `json:"choice,omitempty"`
	Buffer          string                  `json:"buffer,omitempty"`
	Selection       domain.Region           `json:"selection"`
	FileName        string                  `json:"file_name,omitempty"`
	Symbol          string                  `json:"symbol,omitempty"`
	SymbolLocations []domain.SymbolLocation `json:"symbol_locations,omitempty"`
}

// Response carries everything the host has to apply or show.
type Response struct {
	Edits      []domain.Edit       `json:"edits,omitempty"`
	Clipboard  string              `json:"clipboard,omitempty"`
	Status     string              `json:"status,omitempty"`
	Error      string              `json:"error,omitempty"`
	Candidates []domain.Candidate  `json:"candidates,omitempty"`
	Targets    []domain.TestTarget `json:"targets,omitempty"`
	TestPath   string              `json:"test_path,omitempty"`
	TestRun    *TestRunResult      `json:"test_run,omitempty"`
}

// Dispatcher routes host actions to the import, indexing and test use cases.
type Dispatcher struct {
	Settings  *config.Settings
	Index     port.IndexReader
	Symbols   port.SymbolSource
	Chooser   port.Chooser
	Clipboard port.Clipboard
	Notifier  port.Notifier
	Indexer   *IndexRunner
	Tests     *TestRunner
	Log       zerolog.Logger
}

func needsPythonBuffer(a domain.Action) bool {
	switch a {
	case domain.ActionReIndexImports, domain.ActionLookup:
		return false
	}
	return true
}

// Dispatch runs one action. Non-fatal outcomes such as a short selection are
// reported through Response.Status with a nil error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Response, error) {
	d.Log.Debug().Str("action", string(req.Action)).Str("file", req.FileName).Msg("command action called")

	if needsPythonBuffer(req.Action) && !strings.HasSuffix(req.FileName, ".py") {
		return Response{}, fmt.Errorf("%w: %q", ErrNotPython, req.FileName)
	}

	switch req.Action {
	case domain.ActionImportSymbol:
		return d.importSymbol(ctx, req, false)
	case domain.ActionCopyImportSymbol:
		return d.importSymbol(ctx, req, true)
	case domain.ActionLookup:
		return d.lookup(ctx, req)
	case domain.ActionReIndexImports:
		return d.reindex(ctx)
	case domain.ActionCopyTestPath:
		return d.copyTestPath(req)
	case domain.ActionRunTest:
		return d.runTest(ctx, req)
	case domain.ActionListTests:
		return d.listTests(req)
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
}

func (d *Dispatcher) selectedText(req Request) (string, error) {
	r := req.Selection
	if r.Begin < 0 || r.End > len(req.Buffer) || r.Begin > r.End {
		return "", fmt.Errorf("selection %d:%d outside of buffer", r.Begin, r.End)
	}
	return req.Buffer[r.Begin:r.End], nil
}

func (d *Dispatcher) loadIndex() domain.SymbolIndex {
	if d.Index == nil {
		return nil
	}
	idx, err := d.Index.Get()
	if err != nil {
		if !errors.Is(err, domain.ErrNoIndex) {
			d.Log.Warn().Err(err).Msg("load import index")
		}
		return nil
	}
	return idx
}

// resolverSource is an index reader that keeps a resolver for the index it
// loaded.
type resolverSource interface {
	Resolver() (*resolver.Resolver, error)
}

func (d *Dispatcher) resolver(idx domain.SymbolIndex) *resolver.Resolver {
	if rs, ok := d.Index.(resolverSource); ok {
		if r, err := rs.Resolver(); err == nil {
			return r
		}
	}
	return resolver.New(idx)
}

func (d *Dispatcher) candidates(ctx context.Context, selected string, locs []domain.SymbolLocation) []domain.Candidate {
	if locs == nil && d.Symbols != nil {
		var err error
		locs, err = d.Symbols.Locations(ctx, selected)
		if err != nil {
			d.Log.Warn().Err(err).Msg("project symbol lookup")
		}
	}

	idx := d.loadIndex()
	groups := [][]domain.Candidate{CandidatesFromLocations(selected, locs)}
	if idx != nil {
		groups = append(groups, CandidatesFromIndex(selected, idx))
		if strings.Contains(selected, ".") {
			groups = append(groups, CandidatesFromDotted(selected, d.resolver(idx)))
		}
	}
	return MergeCandidates(groups...)
}

func (d *Dispatcher) importSymbol(ctx context.Context, req Request, copyOnly bool) (Response, error) {
	if err := d.Settings.ValidateFor(config.ScopeImport); err != nil {
		return Response{Error: err.Error()}, err
	}
	raw, err := d.selectedText(req)
	if err != nil {
		return Response{}, err
	}
	selected, err := CheckSelection(raw)
	if err != nil {
		return Response{Status: "Select at least 2 characters"}, nil
	}

	cands := d.candidates(ctx, selected, req.SymbolLocations)
	resp := Response{Candidates: cands, Status: fmt.Sprintf("Found %d imports", len(cands))}
	if len(cands) == 0 {
		return resp, nil
	}

	choice := 0
	switch {
	case req.Choice != nil:
		choice = *req.Choice
		if choice < 0 || choice >= len(cands) {
			return resp, fmt.Errorf("choice %d out of range of %d candidates", choice, len(cands))
		}
	case !req.Test:
		keys := make([]string, len(cands))
		for i, c := range cands {
			keys[i] = c.DisplayKey
		}
		choice, err = d.Chooser.Choose("Import "+selected, keys)
		if err != nil {
			return resp, fmt.Errorf("choose import: %w", err)
		}
		if choice < 0 || choice >= len(cands) {
			return resp, nil
		}
	}
	picked := cands[choice]
	d.Log.Debug().Str("statement", picked.DisplayKey).Msg("selected import")

	if copyOnly {
		if err := d.Clipboard.WriteText(picked.DisplayKey); err != nil {
			return resp, fmt.Errorf("write clipboard: %w", err)
		}
		resp.Clipboard = picked.DisplayKey
		return resp, nil
	}

	if edit, ok := ApplyCandidate(req.Buffer, picked); ok {
		resp.Edits = []domain.Edit{edit}
	}
	return resp, nil
}

func (d *Dispatcher) lookup(ctx context.Context, req Request) (Response, error) {
	symbol := req.Symbol
	if symbol == "" && req.Buffer != "" {
		raw, err := d.selectedText(req)
		if err != nil {
			return Response{}, err
		}
		symbol = raw
	}
	selected, err := CheckSelection(symbol)
	if err != nil {
		return Response{Status: "Select at least 2 characters"}, nil
	}
	cands := d.candidates(ctx, selected, req.SymbolLocations)
	return Response{Candidates: cands, Status: fmt.Sprintf("Found %d imports", len(cands))}, nil
}

func (d *Dispatcher) reindex(ctx context.Context) (Response, error) {
	res, err := d.Indexer.Run(ctx, true)
	if errors.Is(err, ErrIndexRunning) {
		return Response{Status: "Indexing already in progress"}, nil
	}
	if err != nil {
		return Response{Error: err.Error()}, err
	}
	if d.Index != nil {
		d.Index.Invalidate()
	}
	if !res.Completed {
		return Response{Error: "Indexing Failed\n\n" + res.Message()}, nil
	}
	return Response{Status: "Finished imports..."}, nil
}

// relativeTestPath returns the file path relative to the test working
// directory, preferring a display name the host already resolved.
func (d *Dispatcher) relativeTestPath(req Request) string {
	for _, loc := range req.SymbolLocations {
		if loc.Path == req.FileName && loc.DisplayName != "" {
			return filepath.ToSlash(loc.DisplayName)
		}
	}
	for _, base := range []string{d.Settings.TestConfig.WorkingDirectory, d.Settings.ProjectDir()} {
		if base == "" {
			continue
		}
		if rel, err := filepath.Rel(base, req.FileName); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(filepath.Base(req.FileName))
}

func (d *Dispatcher) testPath(req Request) (string, *Response, error) {
	if !fs.IsTestFile(req.FileName) {
		d.Log.Info().Msg("not a test file, returning")
		return "", &Response{Status: "Not a test file"}, nil
	}
	if err := d.Settings.ValidateFor(config.ScopeTests); err != nil {
		return "", &Response{Error: err.Error()}, err
	}
	if !d.Settings.TestConfig.Enabled {
		d.Log.Info().Msg("test config not enabled")
		return "", &Response{Status: "Test config not enabled"}, nil
	}

	path, err := GenerateTestPath(req.Buffer, d.relativeTestPath(req), req.Selection.Begin, d.Settings.TestConfig.TestFramework)
	if err != nil {
		d.Log.Debug().Err(err).Msg("generate test path")
		return "", &Response{Status: "Could not generate test path"}, nil
	}
	d.Log.Debug().Str("test_path", path).Msg("generated test path")
	return path, nil, nil
}

func (d *Dispatcher) copyTestPath(req Request) (Response, error) {
	path, early, err := d.testPath(req)
	if early != nil {
		return *early, err
	}
	if err := d.Clipboard.WriteText(path); err != nil {
		return Response{TestPath: path}, fmt.Errorf("write clipboard: %w", err)
	}
	return Response{TestPath: path, Clipboard: path}, nil
}

func (d *Dispatcher) runTest(ctx context.Context, req Request) (Response, error) {
	path, early, err := d.testPath(req)
	if early != nil {
		return *early, err
	}
	res, err := d.Tests.Run(ctx, path)
	if err != nil {
		return Response{TestPath: path, Error: err.Error()}, err
	}
	status := "Test passed"
	if !res.Passed() {
		status = fmt.Sprintf("Test failed with exit code %d", res.ExitCode)
	}
	return Response{TestPath: path, TestRun: res, Status: status}, nil
}

func (d *Dispatcher) listTests(req Request) (Response, error) {
	if !fs.IsTestFile(req.FileName) {
		return Response{Status: "Not a test file"}, nil
	}
	targets := TestTargets(req.Buffer)
	if len(targets) == 0 {
		return Response{Status: "No tests found"}, nil
	}
	return Response{Targets: targets}, nil
}
