package cli

import (
	"context"
	"os"
	"os/exec"

	"pyrock/internal/adapter/analyzer"
	"pyrock/internal/adapter/cache"
	"pyrock/internal/adapter/store"
	"pyrock/internal/port"
	"pyrock/internal/usecase"
)

// workerCommand re-executes this binary as the index worker.
func workerCommand(_ context.Context, settingsPath string) *exec.Cmd {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	cmd := exec.Command(exe, "index-worker", "--settings", settingsPath)
	cmd.Env = os.Environ()
	return cmd
}

func newIndexStore() *store.JSONIndexStore {
	return store.NewJSONIndexStore(settings.IndexPath(), log)
}

func newIndexRunner(notifier port.Notifier) *usecase.IndexRunner {
	return usecase.NewIndexRunner(settings, newIndexStore(), notifier, workerCommand, log)
}

// newDispatcher wires the host actions for one process. Index reads go
// through a cache that reloads when the index file changes.
func newDispatcher(notifier port.Notifier, chooser port.Chooser, clipboard port.Clipboard) *usecase.Dispatcher {
	indexStore := newIndexStore()
	return &usecase.Dispatcher{
		Settings:  settings,
		Index:     cache.NewIndexCache(indexStore, indexStore.Path()),
		Symbols:   analyzer.NewProjectSource(settings.ProjectDir(), log),
		Chooser:   chooser,
		Clipboard: clipboard,
		Notifier:  notifier,
		Indexer:   usecase.NewIndexRunner(settings, indexStore, notifier, workerCommand, log),
		Tests:     usecase.NewTestRunner(settings, notifier, log),
		Log:       log,
	}
}
