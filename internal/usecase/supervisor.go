package usecase

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"pyrock/config"
	"pyrock/internal/adapter/proc"
)

// CompletionThreshold is the lowest progress value that counts as success.
const CompletionThreshold = 95

// SupervisorResult is the outcome of one supervised worker run.
type SupervisorResult struct {
	Completed    bool
	TimedOut     bool
	LastProgress int // -1 when no progress was reported
	Evidence     []string
	ExitErr      error
}

// Message returns the collected failure evidence.
func (r SupervisorResult) Message() string {
	return strings.Join(r.Evidence, "\n")
}

// Supervisor runs the index worker and interprets its progress channel.
type Supervisor struct {
	Timeout    time.Duration
	OnProgress func(int)
	Log        zerolog.Logger
}

func NewSupervisor(timeout time.Duration, onProgress func(int), log zerolog.Logger) *Supervisor {
	if timeout <= 0 {
		timeout = config.DefaultIndexingTimeout
	}
	return &Supervisor{Timeout: timeout, OnProgress: onProgress, Log: log}
}

type progressState struct {
	mu        sync.Mutex
	last      int
	completed bool
	final     bool
	failing   bool
	evidence  []string
}

// parseProgress returns the percentage carried by line, if any.
func parseProgress(line string) (int, bool) {
	if line == "" || len(line) > 3 {
		return 0, false
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 0 || n > 100 || strconv.Itoa(n) != line {
		return 0, false
	}
	return n, true
}

func (s *Supervisor) handleLine(st *progressState, line string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.failing {
		st.evidence = append(st.evidence, line)
		return
	}
	if n, ok := parseProgress(line); ok {
		st.last = n
		if n >= CompletionThreshold {
			st.completed = true
		}
		if n == 100 {
			st.final = true
		}
		if s.OnProgress != nil {
			s.OnProgress(n)
		}
		return
	}
	if strings.Contains(line, FailedIndexingMarker) {
		st.failing = true
		st.completed = false
		return
	}
	if line != "" {
		s.Log.Debug().Str("line", line).Msg("worker output")
	}
}

// readLines calls fn for each line of r. After a read error the rest of r is
// discarded so the writer never blocks on a full pipe.
func readLines(r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		fn(strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

// Run starts cmd in its own process group and blocks until it exits or the
// timeout, measured from process start, kills it.
func (s *Supervisor) Run(ctx context.Context, cmd *exec.Cmd) SupervisorResult {
	res := SupervisorResult{LastProgress: -1}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		res.Evidence = []string{err.Error()}
		return res
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		res.Evidence = []string{err.Error()}
		return res
	}
	proc.Isolate(cmd)
	if err := cmd.Start(); err != nil {
		res.Evidence = []string{fmt.Sprintf("start index worker: %v", err)}
		return res
	}
	pgid, _ := proc.GroupID(cmd)

	var timedOut atomic.Bool
	kill := func() {
		if err := proc.KillGroup(pgid); err != nil {
			s.Log.Warn().Err(err).Int("pgid", pgid).Msg("kill index worker")
			_ = cmd.Process.Kill()
		}
	}
	timer := time.AfterFunc(s.Timeout, func() {
		timedOut.Store(true)
		kill()
	})
	defer timer.Stop()

	stopCtx := context.AfterFunc(ctx, kill)
	defer stopCtx()

	st := &progressState{last: -1}
	var stderrLines []string
	var g errgroup.Group
	g.Go(func() error {
		return readLines(stdout, func(line string) { s.handleLine(st, line) })
	})
	g.Go(func() error {
		return readLines(stderr, func(line string) {
			if line != "" {
				stderrLines = append(stderrLines, line)
			}
		})
	})
	if err := g.Wait(); err != nil {
		s.Log.Debug().Err(err).Msg("read worker output")
	}
	res.ExitErr = cmd.Wait()

	st.mu.Lock()
	defer st.mu.Unlock()
	res.LastProgress = st.last
	// A failed exit only counts once the worker reported the saved index.
	res.Completed = st.completed && !st.failing && (res.ExitErr == nil || st.final)
	res.Evidence = append(res.Evidence, st.evidence...)

	switch {
	case timedOut.Load():
		res.TimedOut = true
		res.Completed = false
		last := st.last
		if last < 0 {
			last = 0
		}
		reason := fmt.Sprintf("Indexing stopped due to timeout at %d%%", last)
		s.Log.Warn().Msg(reason)
		res.Evidence = append([]string{reason}, res.Evidence...)
	case ctx.Err() != nil && !res.Completed:
		res.Evidence = append([]string{fmt.Sprintf("Indexing cancelled: %v", ctx.Err())}, res.Evidence...)
	}

	if res.Completed {
		if res.ExitErr != nil {
			s.Log.Warn().Err(res.ExitErr).Msg("index worker exited with error after completion")
		}
		return res
	}

	res.Evidence = append(res.Evidence, stderrLines...)
	if len(res.Evidence) == 0 {
		if res.ExitErr != nil {
			res.Evidence = append(res.Evidence, fmt.Sprintf("index worker failed: %v", res.ExitErr))
		} else {
			res.Evidence = append(res.Evidence, "index worker exited before completion")
		}
	}
	return res
}
