package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	if s.ImportScanDepth != 4 {
		t.Errorf("expected ImportScanDepth=4, got %d", s.ImportScanDepth)
	}
	if s.ImportIndexFileName != "py_rock_imports.json" {
		t.Errorf("expected py_rock_imports.json, got %s", s.ImportIndexFileName)
	}
	if s.IndexingTimeout.Duration != 20*time.Second {
		t.Errorf("expected 20s timeout, got %v", s.IndexingTimeout.Duration)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	s, err := Load("/nonexistent/path/pyrock.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if s == nil {
		t.Fatal("expected default settings, got nil")
	}
	if s.LogLevel != "INFO" {
		t.Errorf("expected INFO, got %s", s.LogLevel)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "pyrock.yaml")

	content := `
import_scan_depth: 2
log_level: debug
indexing_timeout: 5s
test_config:
  enabled: true
  test_framework: Pytest
  working_directory: ` + tmpDir + `
  test_runner_command: ["pytest", "-x"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.ImportScanDepth != 2 {
		t.Errorf("expected ImportScanDepth=2, got %d", s.ImportScanDepth)
	}
	if s.LogLevel != "DEBUG" {
		t.Errorf("expected log level to be upper-cased, got %s", s.LogLevel)
	}
	if s.IndexingTimeout.Duration != 5*time.Second {
		t.Errorf("expected 5s, got %v", s.IndexingTimeout.Duration)
	}
	if s.TestConfig.TestFramework != FrameworkPytest {
		t.Errorf("expected pytest, got %s", s.TestConfig.TestFramework)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "pyrock.toml")

	content := `
import_scan_depth = 6
introspection_mode = "static"
search_paths = ["/opt/lib"]
indexing_timeout = "45s"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ImportScanDepth != 6 {
		t.Errorf("expected 6, got %d", s.ImportScanDepth)
	}
	if s.IntrospectionMode != ModeStatic {
		t.Errorf("expected static, got %s", s.IntrospectionMode)
	}
	if len(s.SearchPaths) != 1 || s.SearchPaths[0] != "/opt/lib" {
		t.Errorf("unexpected search paths %v", s.SearchPaths)
	}
	if s.IndexingTimeout.Duration != 45*time.Second {
		t.Errorf("expected 45s, got %v", s.IndexingTimeout.Duration)
	}
	if s.ProjectRoot != tmpDir {
		t.Errorf("expected project root %s, got %s", tmpDir, s.ProjectRoot)
	}
}

func TestValidate_ScanDepthRange(t *testing.T) {
	for depth := MinImportScanDepth; depth <= MaxImportScanDepth; depth++ {
		s := DefaultSettings()
		s.ImportScanDepth = depth
		if err := s.ValidateFor(ScopeIndexing); err != nil {
			t.Errorf("depth %d should be valid, got %v", depth, err)
		}
	}

	for _, depth := range []int{0, 7, -1} {
		s := DefaultSettings()
		s.ImportScanDepth = depth
		err := s.ValidateFor(ScopeIndexing)
		if !errors.Is(err, ErrInvalidScanDepth) {
			t.Errorf("depth %d: expected ErrInvalidScanDepth, got %v", depth, err)
		}
		if !IsCode(err, CodeInvalidScanDepth) {
			t.Errorf("depth %d: expected code %s", depth, CodeInvalidScanDepth)
		}
	}
}

func TestValidate_ExplicitZeroDepthFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "pyrock.yaml")
	if err := os.WriteFile(path, []byte("import_scan_depth: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(s.Validate(), ErrInvalidScanDepth) {
		t.Error("explicit zero depth must fail validation")
	}
}

func TestValidateFor_BlocksOnlyAffectedScope(t *testing.T) {
	s := DefaultSettings()
	s.TestConfig = TestConfig{Enabled: true, TestFramework: "nose"}

	if err := s.ValidateFor(ScopeImport); err != nil {
		t.Errorf("import scope should not see test config errors, got %v", err)
	}
	if err := s.ValidateFor(ScopeIndexing); err != nil {
		t.Errorf("indexing scope should not see test config errors, got %v", err)
	}
	if !errors.Is(s.ValidateFor(ScopeTests), ErrInvalidTestConfig) {
		t.Error("tests scope should report invalid test config")
	}
}

func TestValidate_PythonPaths(t *testing.T) {
	s := DefaultSettings()
	s.PythonVirtualEnvPath = "/nonexistent/venv/bin/activate"
	if !errors.Is(s.ValidateFor(ScopeIndexing), ErrInvalidPythonPath) {
		t.Error("missing venv path should fail")
	}

	s = DefaultSettings()
	s.PythonInterpreterPath = "/nonexistent/python"
	if !errors.Is(s.ValidateFor(ScopeIndexing), ErrInvalidPythonPath) {
		t.Error("missing interpreter path should fail")
	}
}

func TestValidate_LogLevel(t *testing.T) {
	s := DefaultSettings()
	s.LogLevel = "VERBOSE"
	if !errors.Is(s.ValidateFor(ScopeImport), ErrInvalidLogLevel) {
		t.Error("unknown log level should fail")
	}
}

func TestValidate_TestConfig(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name string
		tc   TestConfig
		ok   bool
	}{
		{"disabled", TestConfig{}, true},
		{"valid", TestConfig{Enabled: true, TestFramework: "django", WorkingDirectory: dir, TestRunnerCommand: []string{"python", "manage.py", "test"}}, true},
		{"bad framework", TestConfig{Enabled: true, TestFramework: "nose", WorkingDirectory: dir, TestRunnerCommand: []string{"nose"}}, false},
		{"missing dir", TestConfig{Enabled: true, TestFramework: "pytest", WorkingDirectory: filepath.Join(dir, "nope"), TestRunnerCommand: []string{"pytest"}}, false},
		{"empty command", TestConfig{Enabled: true, TestFramework: "pytest", WorkingDirectory: dir}, false},
	}

	for _, tc := range cases {
		s := DefaultSettings()
		s.TestConfig = tc.tc
		err := s.ValidateFor(ScopeTests)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidTestConfig) {
			t.Errorf("%s: expected ErrInvalidTestConfig, got %v", tc.name, err)
		}
	}
}

func TestVirtualEnvRoot(t *testing.T) {
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	if err := os.MkdirAll(bin, 0755); err != nil {
		t.Fatal(err)
	}
	activate := filepath.Join(bin, "activate")
	if err := os.WriteFile(activate, nil, 0644); err != nil {
		t.Fatal(err)
	}

	s := DefaultSettings()
	s.PythonVirtualEnvPath = activate
	if got := s.VirtualEnvRoot(); got != root {
		t.Errorf("expected %s, got %s", root, got)
	}

	s.PythonVirtualEnvPath = root
	if got := s.VirtualEnvRoot(); got != root {
		t.Errorf("expected %s, got %s", root, got)
	}
}

func TestSerializedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := DefaultSettings()
	s.IndexCacheDirectory = filepath.Join(dir, "cache")
	s.PackageDirectory = dir
	s.ImportScanDepth = 3

	if err := WriteSerialized(s.SerializedPath(), s.Serialize()); err != nil {
		t.Fatal(err)
	}

	h, err := ReadSerialized(s.SerializedPath())
	if err != nil {
		t.Fatal(err)
	}
	if h.ImportScanDepth != 3 {
		t.Errorf("expected depth 3, got %d", h.ImportScanDepth)
	}
	if h.IndexPath() != s.IndexPath() {
		t.Errorf("expected %s, got %s", s.IndexPath(), h.IndexPath())
	}
}

func TestReadSerialized_RejectsBadDepth(t *testing.T) {
	path := filepath.Join(t.TempDir(), SerializedFileName)
	content := `{"IMPORT_SCAN_DEPTH": 7, "INDEX_CACHE_DIRECTORY": "/tmp", "IMPORT_INDEX_FILE_NAME": "x.json"}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSerialized(path); !errors.Is(err, ErrInvalidScanDepth) {
		t.Errorf("expected ErrInvalidScanDepth, got %v", err)
	}
}
