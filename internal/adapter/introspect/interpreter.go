// Package introspect enumerates Python modules and their members for the
// module walker.
package introspect

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"pyrock/internal/port"
)

//go:embed helper.py
var helperScript []byte

// ErrClosed is returned by calls made after the co-process exited.
var ErrClosed = fmt.Errorf("introspection process exited: %w", port.ErrIntrospectorDown)

// Interpreter introspects modules by importing them in a Python co-process.
type Interpreter struct {
	python      string
	searchPaths []string
	log         zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	dir    string
	done   chan struct{}
}

// NewInterpreter starts the helper under the given interpreter. When
// searchPaths is non-empty it replaces sys.path for module discovery and is
// prepended to sys.path for imports.
func NewInterpreter(python string, searchPaths []string, log zerolog.Logger) (*Interpreter, error) {
	dir, err := os.MkdirTemp("", "pyrock-introspect-")
	if err != nil {
		return nil, fmt.Errorf("create helper dir: %w", err)
	}
	script := filepath.Join(dir, "pyrock_introspect.py")
	if err := os.WriteFile(script, helperScript, 0644); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("write helper: %w", err)
	}

	cmd := exec.Command(python, "-u", script)
	cmd.Env = os.Environ()
	if len(searchPaths) > 0 {
		data, _ := json.Marshal(searchPaths)
		cmd.Env = append(cmd.Env, "PYROCK_SEARCH_PATHS="+string(data))
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("start %s: %w", python, err)
	}

	in := &Interpreter{
		python:      python,
		searchPaths: searchPaths,
		log:         log,
		cmd:         cmd,
		stdin:       stdin,
		stdout:      bufio.NewReaderSize(stdout, 1<<20),
		dir:         dir,
		done:        make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		log.Debug().Err(err).Msg("introspection process exited")
		close(in.done)
	}()
	return in, nil
}

type request struct {
	Op          string   `json:"op"`
	Path        string   `json:"path,omitempty"`
	SearchPaths []string `json:"search_paths,omitempty"`
}

type response struct {
	OK         bool     `json:"ok"`
	Error      string   `json:"error"`
	Modules    []string `json:"modules"`
	Name       string   `json:"name"`
	Classes    []string `json:"classes"`
	Functions  []string `json:"functions"`
	Submodules []struct {
		Name   string `json:"name"`
		Origin string `json:"origin"`
	} `json:"submodules"`
}

func (in *Interpreter) call(ctx context.Context, req request) (*response, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	select {
	case <-in.done:
		return nil, ErrClosed
	default:
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if _, err := in.stdin.Write(append(data, '\n')); err != nil {
		in.kill()
		return nil, fmt.Errorf("send %s %s: %w: %w", req.Op, req.Path, port.ErrIntrospectorDown, err)
	}

	type result struct {
		line []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := in.stdout.ReadBytes('\n')
		ch <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		// The pending read cannot be abandoned; the process goes with it.
		in.kill()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			in.kill()
			return nil, fmt.Errorf("read %s %s: %w: %w", req.Op, req.Path, port.ErrIntrospectorDown, r.err)
		}
		var resp response
		if err := json.Unmarshal(r.line, &resp); err != nil {
			// The stream is out of step with the requests from here on.
			in.kill()
			return nil, fmt.Errorf("decode %s %s: %w: %w", req.Op, req.Path, port.ErrIntrospectorDown, err)
		}
		if !resp.OK {
			return nil, fmt.Errorf("%s %s: %s", req.Op, req.Path, resp.Error)
		}
		return &resp, nil
	}
}

func (in *Interpreter) TopLevel(ctx context.Context) ([]string, error) {
	resp, err := in.call(ctx, request{Op: "toplevel", SearchPaths: in.searchPaths})
	if err != nil {
		return nil, err
	}
	return resp.Modules, nil
}

// SearchPaths returns the directories the interpreter imports from.
func (in *Interpreter) SearchPaths(ctx context.Context) ([]string, error) {
	resp, err := in.call(ctx, request{Op: "paths", SearchPaths: in.searchPaths})
	if err != nil {
		return nil, err
	}
	return resp.Modules, nil
}

func (in *Interpreter) Open(ctx context.Context, path string) (port.Module, error) {
	resp, err := in.call(ctx, request{Op: "open", Path: path})
	if err != nil {
		return nil, err
	}

	m := &module{name: resp.Name}
	if m.name == "" {
		m.name = path
	}
	for _, n := range resp.Classes {
		m.classes = append(m.classes, port.Member{Name: n, Path: path + "." + n})
	}
	for _, n := range resp.Functions {
		m.functions = append(m.functions, port.Member{Name: n, Path: path + "." + n})
	}
	for _, s := range resp.Submodules {
		m.submodules = append(m.submodules, port.Member{Name: s.Name, Path: path + "." + s.Name, Origin: s.Origin})
	}
	return m, nil
}

func (in *Interpreter) kill() {
	if in.cmd.Process != nil {
		_ = in.cmd.Process.Kill()
	}
}

// Close ends the co-process and removes the helper script.
func (in *Interpreter) Close() error {
	in.stdin.Close()
	select {
	case <-in.done:
	case <-time.After(2 * time.Second):
		in.kill()
		<-in.done
	}
	return os.RemoveAll(in.dir)
}

type module struct {
	name       string
	classes    []port.Member
	functions  []port.Member
	submodules []port.Member
}

func (m *module) Name() string              { return m.name }
func (m *module) Classes() []port.Member    { return m.classes }
func (m *module) Functions() []port.Member  { return m.functions }
func (m *module) Submodules() []port.Member { return m.submodules }
