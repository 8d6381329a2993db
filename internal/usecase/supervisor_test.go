package usecase

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pyrock/config"
	"pyrock/internal/adapter/memstore"
	"pyrock/internal/adapter/store"
	"pyrock/internal/adapter/ui"
	"pyrock/internal/domain"
)

// helperCommand re-executes the test binary as a fake index worker running
// the given script.
func helperCommand(script string) *exec.Cmd {
	cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--", script)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	return cmd
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	script := os.Args[len(os.Args)-1]
	switch script {
	case "complete":
		for _, p := range []int{0, 25, 50, 75, 100} {
			fmt.Println(p)
		}
	case "noisy":
		fmt.Println("importing things")
		fmt.Println("10")
		fmt.Println("050")
		fmt.Println("DeprecationWarning: 101 reasons")
		fmt.Println("96")
	case "hang":
		fmt.Println("10")
		fmt.Println("50")
		time.Sleep(time.Minute)
	case "fail":
		fmt.Println("10")
		fmt.Println(FailedIndexingMarker)
		fmt.Println("Traceback (most recent call last):")
		fmt.Println("ImportError: boom")
		os.Exit(1)
	case "crash":
		fmt.Println("20")
		fmt.Fprintln(os.Stderr, "panic: worker crashed")
		os.Exit(2)
	case "complete-nonzero":
		fmt.Println("100")
		os.Exit(3)
	case "crash-before-save":
		fmt.Println("96")
		fmt.Fprintln(os.Stderr, "panic: save index: disk full")
		os.Exit(2)
	case "long-stderr":
		fmt.Fprintln(os.Stderr, strings.Repeat("x", 2<<20))
		fmt.Fprintln(os.Stderr, "after the long line")
		fmt.Println("100")
	case "tests-pass":
		fmt.Println("Ran 1 test in 0.001s")
		fmt.Println("")
		fmt.Fprintln(os.Stderr, "OK")
	case "tests-fail":
		fmt.Println("FAILED (failures=1)")
		os.Exit(1)
	}
	os.Exit(0)
}

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (p *progressLog) add(v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func (p *progressLog) get() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.values...)
}

func TestParseProgress(t *testing.T) {
	for line, want := range map[string]int{"0": 0, "7": 7, "95": 95, "100": 100} {
		got, ok := parseProgress(line)
		assert.True(t, ok, line)
		assert.Equal(t, want, got, line)
	}
	for _, line := range []string{"", "-1", "101", "050", "1e2", "abc", "10%", "1000"} {
		_, ok := parseProgress(line)
		assert.False(t, ok, line)
	}
}

func TestSupervisor_Completes(t *testing.T) {
	var progress progressLog
	sup := NewSupervisor(10*time.Second, progress.add, zerolog.Nop())

	res := sup.Run(context.Background(), helperCommand("complete"))
	assert.True(t, res.Completed)
	assert.False(t, res.TimedOut)
	assert.Equal(t, 100, res.LastProgress)
	assert.Equal(t, []int{0, 25, 50, 75, 100}, progress.get())
	assert.NoError(t, res.ExitErr)
}

func TestSupervisor_IgnoresNoise(t *testing.T) {
	var progress progressLog
	res := NewSupervisor(10*time.Second, progress.add, zerolog.Nop()).Run(context.Background(), helperCommand("noisy"))
	assert.True(t, res.Completed)
	assert.Equal(t, []int{10, 96}, progress.get())
}

func TestSupervisor_TimeoutReportsLastProgress(t *testing.T) {
	sup := NewSupervisor(time.Second, nil, zerolog.Nop())

	start := time.Now()
	res := sup.Run(context.Background(), helperCommand("hang"))
	assert.Less(t, time.Since(start), 30*time.Second)

	assert.False(t, res.Completed)
	assert.True(t, res.TimedOut)
	assert.Equal(t, 50, res.LastProgress)
	require.NotEmpty(t, res.Evidence)
	assert.Equal(t, "Indexing stopped due to timeout at 50%", res.Evidence[0])
	assert.Contains(t, res.Message(), "50")
}

func TestSupervisor_DefaultTimeout(t *testing.T) {
	assert.Equal(t, 20*time.Second, NewSupervisor(0, nil, zerolog.Nop()).Timeout)
}

func TestSupervisor_FailureEvidence(t *testing.T) {
	res := NewSupervisor(10*time.Second, nil, zerolog.Nop()).Run(context.Background(), helperCommand("fail"))
	assert.False(t, res.Completed)
	assert.Equal(t, 10, res.LastProgress)
	assert.Equal(t, []string{"Traceback (most recent call last):", "ImportError: boom"}, res.Evidence)
}

func TestSupervisor_ExitWithoutCompletion(t *testing.T) {
	res := NewSupervisor(10*time.Second, nil, zerolog.Nop()).Run(context.Background(), helperCommand("crash"))
	assert.False(t, res.Completed)
	assert.Error(t, res.ExitErr)
	assert.Contains(t, res.Evidence, "panic: worker crashed")
}

func TestSupervisor_CompletedDespiteExitCode(t *testing.T) {
	res := NewSupervisor(10*time.Second, nil, zerolog.Nop()).Run(context.Background(), helperCommand("complete-nonzero"))
	assert.True(t, res.Completed)
	assert.Error(t, res.ExitErr)
}

func TestSupervisor_FailedExitBeforeSaveIsFailure(t *testing.T) {
	res := NewSupervisor(10*time.Second, nil, zerolog.Nop()).Run(context.Background(), helperCommand("crash-before-save"))
	assert.False(t, res.Completed)
	assert.Equal(t, 96, res.LastProgress)
	assert.Error(t, res.ExitErr)
	assert.Contains(t, res.Message(), "panic: save index: disk full")
}

func TestSupervisor_LongStderrLineDoesNotBlockWorker(t *testing.T) {
	res := NewSupervisor(10*time.Second, nil, zerolog.Nop()).Run(context.Background(), helperCommand("long-stderr"))
	assert.False(t, res.TimedOut)
	assert.True(t, res.Completed)
	assert.NoError(t, res.ExitErr)
}

func TestSupervisor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	res := NewSupervisor(time.Minute, nil, zerolog.Nop()).Run(ctx, helperCommand("hang"))
	assert.False(t, res.Completed)
	assert.False(t, res.TimedOut)
	require.NotEmpty(t, res.Evidence)
	assert.Contains(t, res.Evidence[0], "Indexing cancelled")
}

func TestSupervisor_StartFailure(t *testing.T) {
	res := NewSupervisor(time.Second, nil, zerolog.Nop()).Run(context.Background(), exec.Command(filepath.Join(t.TempDir(), "missing")))
	assert.False(t, res.Completed)
	require.Len(t, res.Evidence, 1)
	assert.Contains(t, res.Evidence[0], "start index worker")
}

func runnerSettings(t *testing.T) *config.Settings {
	t.Helper()
	dir := t.TempDir()
	s := config.DefaultSettings()
	s.IndexCacheDirectory = filepath.Join(dir, "cache")
	s.PackageDirectory = filepath.Join(dir, "pkg")
	s.IndexingTimeout = config.Duration{Duration: 10 * time.Second}
	return s
}

func scripted(script string) WorkerCommand {
	return func(context.Context, string) *exec.Cmd { return helperCommand(script) }
}

func TestIndexRunner_Success(t *testing.T) {
	s := runnerSettings(t)
	notifier := &ui.RecordingNotifier{}
	r := NewIndexRunner(s, memstore.NewIndexStore(), notifier, scripted("complete"), zerolog.Nop())

	res, err := r.Run(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.True(t, res.Completed)
	assert.Equal(t, "Finished imports...", notifier.Last("status"))
	assert.Equal(t, "100", notifier.Last("progress"))

	h, err := config.ReadSerialized(s.SerializedPath())
	require.NoError(t, err)
	assert.Equal(t, s.ImportScanDepth, h.ImportScanDepth)
	assert.Equal(t, store.ComputeSettingsHash(s.Serialize()), h.SettingsHash)
}

func TestIndexRunner_Failure(t *testing.T) {
	notifier := &ui.RecordingNotifier{}
	r := NewIndexRunner(runnerSettings(t), memstore.NewIndexStore(), notifier, scripted("fail"), zerolog.Nop())

	res, err := r.Run(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, "Indexing Failed\n\nTraceback (most recent call last):\nImportError: boom", notifier.Last("error"))
}

func TestIndexRunner_SkipsWhenUpToDate(t *testing.T) {
	s := runnerSettings(t)
	idx := memstore.NewIndexStore()
	require.NoError(t, idx.Save(domain.SymbolIndex{"c": {"h": {"cmath"}}}))

	reg, err := store.OpenRegistry(s.RegistryPath(), store.DefaultOpenTimeout)
	require.NoError(t, err)
	require.NoError(t, reg.MarkBuilt(store.ComputeSettingsHash(s.Serialize())))
	require.NoError(t, reg.Close())

	notifier := &ui.RecordingNotifier{}
	r := NewIndexRunner(s, idx, notifier, scripted("fail"), zerolog.Nop())

	res, err := r.Run(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, "Indexing not needed", notifier.Last("status"))

	// Forcing ignores the recorded hash.
	res, err = r.Run(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.False(t, res.Completed)
}

func TestIndexRunner_RebuildsWhenSettingsChange(t *testing.T) {
	s := runnerSettings(t)
	idx := memstore.NewIndexStore()
	require.NoError(t, idx.Save(domain.NewSymbolIndex()))

	reg, err := store.OpenRegistry(s.RegistryPath(), store.DefaultOpenTimeout)
	require.NoError(t, err)
	require.NoError(t, reg.MarkBuilt(store.ComputeSettingsHash(s.Serialize())))
	require.NoError(t, reg.Close())

	s.ImportScanDepth = 2
	r := NewIndexRunner(s, idx, &ui.RecordingNotifier{}, scripted("complete"), zerolog.Nop())
	res, err := r.Run(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.True(t, res.Completed)
}

func TestIndexRunner_InvalidDepthFailsBeforeSpawning(t *testing.T) {
	for _, depth := range []int{0, 7} {
		s := runnerSettings(t)
		s.ImportScanDepth = depth
		spawned := false
		cmd := func(context.Context, string) *exec.Cmd {
			spawned = true
			return helperCommand("complete")
		}
		notifier := &ui.RecordingNotifier{}
		_, err := NewIndexRunner(s, memstore.NewIndexStore(), notifier, cmd, zerolog.Nop()).Run(context.Background(), true)
		assert.ErrorIs(t, err, config.ErrInvalidScanDepth)
		assert.False(t, spawned)
		assert.NotEmpty(t, notifier.Last("error"))
	}
}

func TestIndexRunner_RejectsConcurrentRun(t *testing.T) {
	r := NewIndexRunner(runnerSettings(t), memstore.NewIndexStore(), &ui.RecordingNotifier{}, scripted("complete"), zerolog.Nop())
	require.True(t, r.tryAcquire())
	defer r.release()

	_, err := r.Run(context.Background(), true)
	assert.ErrorIs(t, err, ErrIndexRunning)
	assert.True(t, r.Running())
}
