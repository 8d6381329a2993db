package usecase

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pyrock/config"
	"pyrock/internal/adapter/memstore"
	"pyrock/internal/adapter/resolver"
	"pyrock/internal/adapter/ui"
	"pyrock/internal/domain"
)

type stubSymbols struct {
	locs    []domain.SymbolLocation
	queries []string
}

func (s *stubSymbols) Locations(_ context.Context, symbol string) ([]domain.SymbolLocation, error) {
	s.queries = append(s.queries, symbol)
	return s.locs, nil
}

type dispatchFixture struct {
	d         *Dispatcher
	index     *staticIndex
	clipboard *memClipboard
	chooser   *scriptedChooser
	notifier  *ui.RecordingNotifier
	symbols   *stubSymbols
}

func newDispatchFixture(t *testing.T, idx domain.SymbolIndex) *dispatchFixture {
	t.Helper()
	f := &dispatchFixture{
		index:     &staticIndex{idx: idx},
		clipboard: &memClipboard{},
		chooser:   &scriptedChooser{},
		notifier:  &ui.RecordingNotifier{},
		symbols:   &stubSymbols{},
	}
	s := runnerSettings(t)
	f.d = &Dispatcher{
		Settings:  s,
		Index:     f.index,
		Symbols:   f.symbols,
		Chooser:   f.chooser,
		Clipboard: f.clipboard,
		Notifier:  f.notifier,
		Indexer:   NewIndexRunner(s, memstore.NewIndexStore(), f.notifier, scripted("complete"), zerolog.Nop()),
		Tests:     NewTestRunner(s, f.notifier, zerolog.Nop()),
		Log:       zerolog.Nop(),
	}
	return f
}

func selectAll(buffer string) domain.Region {
	return domain.Region{Begin: 0, End: len(buffer)}
}

func selectLast(buffer, s string) domain.Region {
	i := strings.LastIndex(buffer, s)
	return domain.Region{Begin: i, End: i + len(s)}
}

func applyEdits(buffer string, edits []domain.Edit) string {
	for i := len(edits) - 1; i >= 0; i-- {
		buffer = edits[i].Apply(buffer)
	}
	return buffer
}

func TestDispatch_ScenarioA(t *testing.T) {
	f := newDispatchFixture(t, domain.SymbolIndex{"c": {"h": {"cmath"}}})
	req := Request{Action: domain.ActionImportSymbol, Test: true, Buffer: "cmath", Selection: selectAll("cmath"), FileName: "main.py"}

	resp, err := f.d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Edits, 1)
	assert.Equal(t, domain.Region{}, resp.Edits[0].Region)
	assert.True(t, strings.HasPrefix(applyEdits(req.Buffer, resp.Edits), "import cmath"))
	assert.Equal(t, "Found 1 imports", resp.Status)
	assert.Empty(t, f.chooser.titles)
}

func TestDispatch_ScenarioB(t *testing.T) {
	idx := domain.NewSymbolIndex()
	idx.Record("cmath.log10")
	f := newDispatchFixture(t, idx)

	buffer := "from cmath import sin\nlog10"
	resp, err := f.d.Dispatch(context.Background(), Request{
		Action: domain.ActionImportSymbol, Test: true, Buffer: buffer, Selection: selectLast(buffer, "log10"), FileName: "main.py",
	})
	require.NoError(t, err)
	assert.Equal(t, "from cmath import sin, log10\nlog10", applyEdits(buffer, resp.Edits))
}

func TestDispatch_ScenarioC(t *testing.T) {
	f := newDispatchFixture(t, domain.SymbolIndex{"c": {"h": {"cmath"}}})

	buffer := "import cmath\ncmath"
	resp, err := f.d.Dispatch(context.Background(), Request{
		Action: domain.ActionImportSymbol, Test: true, Buffer: buffer, Selection: selectLast(buffer, "cmath"), FileName: "main.py",
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Edits)
	assert.Equal(t, 1, strings.Count(applyEdits(buffer, resp.Edits), "import cmath"))
}

func TestDispatch_ScenarioD(t *testing.T) {
	f := newDispatchFixture(t, domain.SymbolIndex{"c": {"h": {"cmath"}}})

	resp, err := f.d.Dispatch(context.Background(), Request{
		Action: domain.ActionCopyImportSymbol, Test: true, Buffer: "cmath", Selection: selectAll("cmath"), FileName: "main.py",
	})
	require.NoError(t, err)
	assert.Equal(t, "import cmath", f.clipboard.text)
	assert.Equal(t, "import cmath", resp.Clipboard)
	assert.Empty(t, resp.Edits)
}

func TestDispatch_ChooserPicksCandidate(t *testing.T) {
	idx := domain.NewSymbolIndex()
	idx.Record("cmath.sin")
	idx.Record("numpy.sin")
	f := newDispatchFixture(t, idx)
	f.chooser.pick = 1

	resp, err := f.d.Dispatch(context.Background(), Request{
		Action: domain.ActionImportSymbol, Buffer: "sin", Selection: selectAll("sin"), FileName: "main.py",
	})
	require.NoError(t, err)
	require.Len(t, f.chooser.items, 1)
	assert.Equal(t, []string{"from cmath import sin", "from numpy import sin"}, f.chooser.items[0])
	assert.Equal(t, "from numpy import sin\nsin", applyEdits("sin", resp.Edits))
}

func TestDispatch_ChooserCancelled(t *testing.T) {
	f := newDispatchFixture(t, domain.SymbolIndex{"c": {"h": {"cmath"}}})
	f.chooser.pick = -1

	resp, err := f.d.Dispatch(context.Background(), Request{
		Action: domain.ActionImportSymbol, Buffer: "cmath", Selection: selectAll("cmath"), FileName: "main.py",
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Edits)
}

func TestDispatch_ShortSelection(t *testing.T) {
	f := newDispatchFixture(t, nil)
	resp, err := f.d.Dispatch(context.Background(), Request{
		Action: domain.ActionImportSymbol, Test: true, Buffer: "x = 1", Selection: domain.Region{Begin: 0, End: 1}, FileName: "main.py",
	})
	require.NoError(t, err)
	assert.Equal(t, "Select at least 2 characters", resp.Status)
	assert.Empty(t, f.symbols.queries)
}

func TestDispatch_NotPython(t *testing.T) {
	f := newDispatchFixture(t, nil)
	_, err := f.d.Dispatch(context.Background(), Request{Action: domain.ActionImportSymbol, FileName: "README.md"})
	assert.ErrorIs(t, err, ErrNotPython)
}

func TestDispatch_UnknownAction(t *testing.T) {
	f := newDispatchFixture(t, nil)
	_, err := f.d.Dispatch(context.Background(), Request{Action: "explode", FileName: "main.py"})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestDispatch_ProjectSymbols(t *testing.T) {
	f := newDispatchFixture(t, nil)
	f.symbols.locs = []domain.SymbolLocation{{Path: "/p/app/models.py", DisplayName: "app/models.py"}}

	resp, err := f.d.Dispatch(context.Background(), Request{
		Action: domain.ActionImportSymbol, Test: true, Buffer: "User", Selection: selectAll("User"), FileName: "main.py",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"User"}, f.symbols.queries)
	assert.Equal(t, "from app.models import User\nUser", applyEdits("User", resp.Edits))
}

func TestDispatch_RequestLocationsSkipProjectScan(t *testing.T) {
	f := newDispatchFixture(t, nil)
	resp, err := f.d.Dispatch(context.Background(), Request{
		Action: domain.ActionLookup, Symbol: "User",
		SymbolLocations: []domain.SymbolLocation{{Path: "/p/app/views.py", DisplayName: "app/views.py"}},
	})
	require.NoError(t, err)
	assert.Empty(t, f.symbols.queries)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "from app.views import User", resp.Candidates[0].DisplayKey)
}

func TestDispatch_LookupDotted(t *testing.T) {
	idx := domain.NewSymbolIndex()
	for _, p := range []string{"os", "os.path", "os.path.join"} {
		idx.Record(p)
	}
	f := newDispatchFixture(t, idx)

	resp, err := f.d.Dispatch(context.Background(), Request{Action: domain.ActionLookup, Symbol: "os.path.join"})
	require.NoError(t, err)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "from os.path import join", resp.Candidates[0].DisplayKey)
}

type resolvingIndex struct {
	*staticIndex
	res   *resolver.Resolver
	calls int
}

func (r *resolvingIndex) Resolver() (*resolver.Resolver, error) {
	r.calls++
	if r.res == nil {
		r.res = resolver.New(r.idx)
	}
	return r.res, nil
}

func TestDispatch_LookupDottedUsesIndexResolver(t *testing.T) {
	idx := domain.NewSymbolIndex()
	for _, p := range []string{"os", "os.path", "os.path.join"} {
		idx.Record(p)
	}
	f := newDispatchFixture(t, idx)
	ri := &resolvingIndex{staticIndex: f.index}
	f.d.Index = ri

	for range 2 {
		resp, err := f.d.Dispatch(context.Background(), Request{Action: domain.ActionLookup, Symbol: "os.path.join"})
		require.NoError(t, err)
		require.Len(t, resp.Candidates, 1)
		assert.Equal(t, "from os.path import join", resp.Candidates[0].DisplayKey)
	}
	assert.Equal(t, 2, ri.calls)
}

func TestDispatch_ReIndex(t *testing.T) {
	f := newDispatchFixture(t, nil)
	resp, err := f.d.Dispatch(context.Background(), Request{Action: domain.ActionReIndexImports})
	require.NoError(t, err)
	assert.Equal(t, "Finished imports...", resp.Status)
	assert.Equal(t, 1, f.index.invalidated)
}

func testDispatchFixture(t *testing.T) (*dispatchFixture, string) {
	f := newDispatchFixture(t, nil)
	wd := t.TempDir()
	f.d.Settings.TestConfig = config.TestConfig{
		Enabled:           true,
		TestFramework:     config.FrameworkPytest,
		WorkingDirectory:  wd,
		TestRunnerCommand: []string{"pytest"},
	}
	return f, filepath.Join(wd, "tests", "fixtures", "test_fixture.py")
}

func TestDispatch_CopyTestPath(t *testing.T) {
	f, file := testDispatchFixture(t)

	resp, err := f.d.Dispatch(context.Background(), Request{
		Action: domain.ActionCopyTestPath, Buffer: testFixture, FileName: file,
		Selection: domain.Region{Begin: at(t, "test_iam_alone"), End: at(t, "test_iam_alone")},
	})
	require.NoError(t, err)
	assert.Equal(t, "tests/fixtures/test_fixture.py::test_iam_alone", f.clipboard.text)
	assert.Equal(t, f.clipboard.text, resp.TestPath)
}

func TestDispatch_CopyTestPathUsesHostDisplayName(t *testing.T) {
	f, file := testDispatchFixture(t)
	f.d.Settings.TestConfig.TestFramework = config.FrameworkDjango

	_, err := f.d.Dispatch(context.Background(), Request{
		Action: domain.ActionCopyTestPath, Buffer: testFixture, FileName: file,
		Selection:       domain.Region{Begin: at(t, "MyTestCase"), End: at(t, "MyTestCase")},
		SymbolLocations: []domain.SymbolLocation{{Path: file, DisplayName: "suite/test_fixture.py"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "suite.test_fixture.MyTestCase", f.clipboard.text)
}

func TestDispatch_CopyTestPathOutsideTests(t *testing.T) {
	f, _ := testDispatchFixture(t)

	resp, err := f.d.Dispatch(context.Background(), Request{
		Action: domain.ActionCopyTestPath, Buffer: testFixture, FileName: "/p/app/views.py",
	})
	require.NoError(t, err)
	assert.Equal(t, "Not a test file", resp.Status)
	assert.Empty(t, f.clipboard.text)

	resp, err = f.d.Dispatch(context.Background(), Request{
		Action: domain.ActionCopyTestPath, Buffer: testFixture, FileName: "/p/test_x.py",
		Selection: domain.Region{Begin: at(t, "assert True"), End: at(t, "assert True")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Could not generate test path", resp.Status)
}

func TestDispatch_ListTests(t *testing.T) {
	f, file := testDispatchFixture(t)

	resp, err := f.d.Dispatch(context.Background(), Request{Action: domain.ActionListTests, Buffer: testFixture, FileName: file})
	require.NoError(t, err)
	assert.Len(t, resp.Targets, 5)
}

func TestDispatch_HostChoice(t *testing.T) {
	idx := domain.NewSymbolIndex()
	idx.Record("cmath.sin")
	idx.Record("numpy.sin")
	f := newDispatchFixture(t, idx)

	choice := 1
	resp, err := f.d.Dispatch(context.Background(), Request{
		Action: domain.ActionImportSymbol, Buffer: "sin", Selection: selectAll("sin"), FileName: "main.py", Choice: &choice,
	})
	require.NoError(t, err)
	assert.Empty(t, f.chooser.titles)
	assert.Equal(t, "from numpy import sin\nsin", applyEdits("sin", resp.Edits))

	choice = 5
	_, err = f.d.Dispatch(context.Background(), Request{
		Action: domain.ActionImportSymbol, Buffer: "sin", Selection: selectAll("sin"), FileName: "main.py", Choice: &choice,
	})
	assert.Error(t, err)
}
