package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"pyrock/config"
	"pyrock/internal/adapter/proc"
	"pyrock/internal/adapter/store"
	"pyrock/internal/port"
)

// ErrTestsDisabled is returned when the test runner is not enabled in the
// settings.
var ErrTestsDisabled = errors.New("test config not enabled")

// TestRunResult describes a finished test run.
type TestRunResult struct {
	TestPath string   `json:"test_path"`
	Command  []string `json:"command"`
	ExitCode int      `json:"exit_code"`
}

// Passed reports whether the test command exited cleanly.
func (r TestRunResult) Passed() bool {
	return r.ExitCode == 0
}

// TestRunner runs a single test node in its own process group. Groups left
// over from earlier runs are terminated first.
type TestRunner struct {
	settings *config.Settings
	notifier port.Notifier
	log      zerolog.Logger
}

func NewTestRunner(settings *config.Settings, notifier port.Notifier, log zerolog.Logger) *TestRunner {
	return &TestRunner{settings: settings, notifier: notifier, log: log}
}

// Command builds the test command for testPath. The virtual environment is
// activated through the environment rather than a shell.
func (r *TestRunner) Command(testPath string) *exec.Cmd {
	tc := r.settings.TestConfig
	argv := append(append([]string{}, tc.TestRunnerCommand...), testPath)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = tc.WorkingDirectory
	cmd.Env = r.environ()
	return cmd
}

func (r *TestRunner) environ() []string {
	env := os.Environ()
	root := r.settings.VirtualEnvRoot()
	if root == "" {
		return env
	}
	bin := r.settings.VirtualEnvBin()
	out := make([]string, 0, len(env)+2)
	path := bin
	for _, kv := range env {
		switch {
		case strings.HasPrefix(kv, "PATH="):
			path = bin + string(filepath.ListSeparator) + strings.TrimPrefix(kv, "PATH=")
		case strings.HasPrefix(kv, "VIRTUAL_ENV="), strings.HasPrefix(kv, "PYTHONHOME="):
		default:
			out = append(out, kv)
		}
	}
	return append(out, "VIRTUAL_ENV="+root, "PATH="+path)
}

// Run terminates previously registered test runs, then runs testPath and
// streams its merged output to the notifier's output writer.
func (r *TestRunner) Run(ctx context.Context, testPath string) (*TestRunResult, error) {
	if err := r.settings.ValidateFor(config.ScopeTests); err != nil {
		return nil, err
	}
	if !r.settings.TestConfig.Enabled {
		return nil, ErrTestsDisabled
	}

	r.killPrevious()

	cmd := r.Command(testPath)
	res := &TestRunResult{TestPath: testPath, Command: cmd.Args, ExitCode: -1}
	r.log.Debug().Strs("command", cmd.Args).Str("dir", cmd.Dir).Msg("running test")

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	proc.Isolate(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start test command: %w", err)
	}
	pgid, _ := proc.GroupID(cmd)
	groupID := r.register(pgid, cmd.Args, testPath)

	stop := context.AfterFunc(ctx, func() {
		if err := proc.KillGroup(pgid); err != nil {
			r.log.Warn().Err(err).Int("pgid", pgid).Msg("kill test run")
		}
	})
	defer stop()

	out := r.notifier.Output()
	var g errgroup.Group
	g.Go(func() error {
		err := readLines(pr, func(line string) {
			if line != "" {
				fmt.Fprintln(out, line)
			}
		})
		_, _ = io.Copy(io.Discard, pr)
		return err
	})

	waitErr := cmd.Wait()
	pw.Close()
	if err := g.Wait(); err != nil {
		r.log.Debug().Err(err).Msg("read test output")
	}
	r.unregister(groupID)

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		res.ExitCode = 0
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("wait for test command: %w", waitErr)
	}
	r.log.Debug().Int("exit_code", res.ExitCode).Str("test", testPath).Msg("finished test")
	return res, nil
}

// killPrevious terminates and forgets every registered group. Failures are
// logged; a stale registry never blocks a new run.
func (r *TestRunner) killPrevious() {
	reg, err := store.OpenRegistry(r.settings.RegistryPath(), store.DefaultOpenTimeout)
	if err != nil {
		r.log.Warn().Err(err).Msg("open registry")
		return
	}
	defer reg.Close()

	groups, err := reg.Groups()
	if err != nil {
		r.log.Warn().Err(err).Msg("list test runs")
	}
	for _, g := range groups {
		if proc.Alive(g.PGID) {
			if err := proc.KillGroup(g.PGID); err != nil {
				r.log.Debug().Err(err).Int("pgid", g.PGID).Msg("unable to kill test run")
				continue
			}
			r.log.Debug().Int("pgid", g.PGID).Str("test", g.TestPath).Msg("killed previous test run")
		}
		if err := reg.DeleteGroup(g.ID); err != nil {
			r.log.Debug().Err(err).Msg("delete test run")
		}
	}
}

func (r *TestRunner) register(pgid int, command []string, testPath string) string {
	reg, err := store.OpenRegistry(r.settings.RegistryPath(), store.DefaultOpenTimeout)
	if err != nil {
		r.log.Warn().Err(err).Msg("open registry")
		return ""
	}
	defer reg.Close()

	g := store.NewGroup(pgid, command, testPath)
	if err := reg.PutGroup(g); err != nil {
		r.log.Warn().Err(err).Msg("register test run")
		return ""
	}
	return g.ID
}

func (r *TestRunner) unregister(id string) {
	if id == "" {
		return
	}
	reg, err := store.OpenRegistry(r.settings.RegistryPath(), store.DefaultOpenTimeout)
	if err != nil {
		r.log.Warn().Err(err).Msg("open registry")
		return
	}
	defer reg.Close()
	if err := reg.DeleteGroup(id); err != nil {
		r.log.Debug().Err(err).Msg("delete test run")
	}
}
