package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"pyrock/config"
	"pyrock/internal/adapter/store"
	"pyrock/internal/metrics"
	"pyrock/internal/port"
)

// FailedIndexingMarker starts the error section of the worker's stdout.
const FailedIndexingMarker = "FAILED_INDEXING"

// ErrWorkerBusy is returned when another index worker holds the index lock.
var ErrWorkerBusy = errors.New("another index worker is running")

// Worker is the child side of an indexing run. Its output writer is the
// progress channel: one integer per line, then "100" once the index is
// saved.
type Worker struct {
	settings     config.Serialized
	introspector port.Introspector
	store        port.IndexStore
	metrics      *metrics.Walk
	out          io.Writer
	log          zerolog.Logger
	lockTimeout  time.Duration
}

func NewWorker(
	settings config.Serialized,
	introspector port.Introspector,
	indexStore port.IndexStore,
	m *metrics.Walk,
	out io.Writer,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		settings:     settings,
		introspector: introspector,
		store:        indexStore,
		metrics:      m,
		out:          out,
		log:          log,
		lockTimeout:  defaultLockTimeout,
	}
}

const defaultLockTimeout = 500 * time.Millisecond

// Run walks, saves the index and records the run.
func (w *Worker) Run(ctx context.Context) error {
	var lock *store.IndexLock
	if w.settings.RegistryPath != "" {
		l, err := store.AcquireIndexLock(store.LockPath(w.settings.RegistryPath), w.lockTimeout)
		if errors.Is(err, store.ErrRegistryBusy) {
			return ErrWorkerBusy
		}
		if err != nil {
			return fmt.Errorf("acquire index lock: %w", err)
		}
		lock = l
		w.log.Debug().Str("run", l.Run.ID).Msg("index lock acquired")
	}

	entries, err := w.run(ctx)
	if lock != nil {
		if rerr := lock.Release(entries, err != nil); rerr != nil {
			w.log.Warn().Err(rerr).Msg("release index lock")
		}
	}
	return err
}

func (w *Worker) run(ctx context.Context) (int, error) {
	walker, err := NewWalker(w.settings.ImportScanDepth, w.settings.ModuleDenylist, w.log)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	idx, stats, err := walker.Walk(ctx, w.introspector, func(p int) {
		fmt.Fprintln(w.out, p)
	})
	if err != nil {
		return 0, err
	}
	took := time.Since(start)
	w.log.Info().
		Int("modules", stats.TopLevelModules).
		Int("entries", stats.EntriesRecorded).
		Dur("took", took).
		Msg("walk complete")

	if err := w.store.Save(idx); err != nil {
		return 0, fmt.Errorf("save index: %w", err)
	}

	if w.metrics != nil {
		w.metrics.Observe(stats, took)
		w.metrics.MarkSuccess()
		if w.settings.MetricsFile != "" {
			if err := w.metrics.WriteTextfile(w.settings.MetricsFile); err != nil {
				w.log.Warn().Err(err).Str("path", w.settings.MetricsFile).Msg("write metrics")
			}
		}
	}

	if w.settings.RegistryPath != "" {
		if err := w.markBuilt(); err != nil {
			w.log.Warn().Err(err).Msg("record settings hash")
		}
	}

	fmt.Fprintln(w.out, 100)
	return stats.EntriesRecorded, nil
}

func (w *Worker) markBuilt() error {
	reg, err := store.OpenRegistry(w.settings.RegistryPath, store.DefaultOpenTimeout)
	if err != nil {
		return err
	}
	defer reg.Close()
	hash := w.settings.SettingsHash
	if hash == "" {
		hash = store.ComputeSettingsHash(w.settings)
	}
	return reg.MarkBuilt(hash)
}

// WriteFailure writes the failure marker followed by the error text, one
// line per line of the message.
func WriteFailure(out io.Writer, err error) {
	fmt.Fprintln(out, FailedIndexingMarker)
	for _, line := range strings.Split(strings.TrimRight(err.Error(), "\n"), "\n") {
		fmt.Fprintln(out, line)
	}
}
