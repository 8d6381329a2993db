package usecase

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync/atomic"

	"github.com/rs/zerolog"
	"pyrock/config"
	"pyrock/internal/adapter/store"
	"pyrock/internal/port"
)

// ErrIndexRunning is returned when an indexing run is already active in this
// process.
var ErrIndexRunning = errors.New("indexing already in progress")

// WorkerCommand builds the command that runs the index worker with the given
// serialized settings file.
type WorkerCommand func(ctx context.Context, settingsPath string) *exec.Cmd

// IndexResult describes an IndexRunner run.
type IndexResult struct {
	Skipped    bool
	SkipReason string
	SupervisorResult
}

// IndexRunner decides whether indexing is needed, hands the settings to a
// worker process and reports the outcome.
type IndexRunner struct {
	settings *config.Settings
	store    port.IndexStore
	notifier port.Notifier
	command  WorkerCommand
	log      zerolog.Logger
	running  atomic.Bool
}

func NewIndexRunner(settings *config.Settings, indexStore port.IndexStore, notifier port.Notifier, command WorkerCommand, log zerolog.Logger) *IndexRunner {
	return &IndexRunner{
		settings: settings,
		store:    indexStore,
		notifier: notifier,
		command:  command,
		log:      log,
	}
}

// tryAcquire returns false when a run is already active.
func (r *IndexRunner) tryAcquire() bool {
	return r.running.CompareAndSwap(false, true)
}

func (r *IndexRunner) release() {
	r.running.Store(false)
}

// Running reports whether a run is active.
func (r *IndexRunner) Running() bool {
	return r.running.Load()
}

// Run indexes unless the index exists and was built with the current
// settings. force always rebuilds.
func (r *IndexRunner) Run(ctx context.Context, force bool) (*IndexResult, error) {
	if err := r.settings.ValidateFor(config.ScopeIndexing); err != nil {
		r.notifier.Error(err.Error())
		return nil, err
	}
	if !r.tryAcquire() {
		return nil, ErrIndexRunning
	}
	defer r.release()

	handoff := r.settings.Serialize()
	handoff.SettingsHash = store.ComputeSettingsHash(handoff)

	if !force {
		if skip, reason := r.upToDate(handoff.SettingsHash); skip {
			r.log.Debug().Msg("indexing not needed")
			r.notifier.Status("Indexing not needed")
			return &IndexResult{Skipped: true, SkipReason: reason}, nil
		}
	}

	if err := config.WriteSerialized(r.settings.SerializedPath(), handoff); err != nil {
		r.notifier.Error(fmt.Sprintf("Indexing Failed\n\n%v", err))
		return nil, fmt.Errorf("write serialized settings: %w", err)
	}

	r.notifier.Status("Indexing imports...")
	sup := NewSupervisor(r.settings.IndexingTimeout.Duration, r.notifier.Progress, r.log)
	res := sup.Run(ctx, r.command(ctx, r.settings.SerializedPath()))
	r.log.Debug().Bool("success", res.Completed).Int("progress", res.LastProgress).Msg("indexing result")

	if res.Completed {
		r.notifier.Status("Finished imports...")
	} else {
		r.log.Error().Msg(res.Message())
		r.notifier.Error("Indexing Failed\n\n" + res.Message())
	}
	return &IndexResult{SupervisorResult: res}, nil
}

func (r *IndexRunner) upToDate(hash string) (bool, string) {
	if !r.store.Exists() {
		return false, ""
	}
	reg, err := store.OpenRegistry(r.settings.RegistryPath(), store.DefaultOpenTimeout)
	if err != nil {
		// Without the registry only the index file's presence is known.
		r.log.Debug().Err(err).Msg("open registry")
		return true, "index present"
	}
	defer reg.Close()

	check, err := reg.CheckRebuild(hash, true)
	if err != nil {
		r.log.Debug().Err(err).Msg("check rebuild")
		return true, "index present"
	}
	if check.NeedsRebuild {
		r.log.Info().Str("reason", check.Reason).Msg("rebuilding index")
		return false, ""
	}
	return true, "index up to date"
}
