package config

import (
	"errors"
	"fmt"
	"os"
)

// Scope selects which settings an action depends on. A bad field only blocks
// the actions that use it.
type Scope int

const (
	ScopeIndexing Scope = iota
	ScopeImport
	ScopeTests
)

var logLevels = map[string]bool{
	"CRITICAL": true,
	"ERROR":    true,
	"WARNING":  true,
	"INFO":     true,
	"DEBUG":    true,
	"NOTSET":   true,
}

// Validate checks every field and joins all failures.
func (s *Settings) Validate() error {
	return errors.Join(
		s.validateLogLevel(),
		s.validateScanDepth(),
		s.validateIntrospection(),
		s.validatePythonPaths(),
		s.validateTestConfig(),
	)
}

// ValidateFor checks only the fields the given scope depends on.
func (s *Settings) ValidateFor(scope Scope) error {
	switch scope {
	case ScopeIndexing:
		return errors.Join(s.validateLogLevel(), s.validateScanDepth(), s.validateIntrospection(), s.validatePythonPaths())
	case ScopeTests:
		return errors.Join(s.validateLogLevel(), s.validatePythonPaths(), s.validateTestConfig())
	default:
		return s.validateLogLevel()
	}
}

func (s *Settings) validateScanDepth() error {
	if s.ImportScanDepth < MinImportScanDepth || s.ImportScanDepth > MaxImportScanDepth {
		return &SettingsError{
			Code:    CodeInvalidScanDepth,
			Field:   "import_scan_depth",
			Message: fmt.Sprintf("import scan depth should be in range of %d to %d, got %d", MinImportScanDepth, MaxImportScanDepth, s.ImportScanDepth),
		}
	}
	return nil
}

func (s *Settings) validatePythonPaths() error {
	if s.PythonVirtualEnvPath != "" {
		if _, err := os.Stat(s.PythonVirtualEnvPath); err != nil {
			return &SettingsError{
				Code:    CodeInvalidPythonPath,
				Field:   "python_venv_path",
				Message: fmt.Sprintf("python virtual env path %q doesn't exist", s.PythonVirtualEnvPath),
			}
		}
	}
	if s.PythonInterpreterPath != "" {
		if _, err := os.Stat(s.PythonInterpreterPath); err != nil {
			return &SettingsError{
				Code:    CodeInvalidPythonPath,
				Field:   "python_interpreter_path",
				Message: fmt.Sprintf("python interpreter path %q doesn't exist", s.PythonInterpreterPath),
			}
		}
	}
	return nil
}

func (s *Settings) validateLogLevel() error {
	if !logLevels[s.LogLevel] {
		return &SettingsError{
			Code:    CodeInvalidLogLevel,
			Field:   "log_level",
			Message: fmt.Sprintf("invalid log level %q", s.LogLevel),
		}
	}
	return nil
}

func (s *Settings) validateIntrospection() error {
	if s.IntrospectionMode != ModeInterpreter && s.IntrospectionMode != ModeStatic {
		return &SettingsError{
			Code:    CodeInvalidIntrospection,
			Field:   "introspection_mode",
			Message: fmt.Sprintf("unknown mode %q, expected %q or %q", s.IntrospectionMode, ModeInterpreter, ModeStatic),
		}
	}
	return nil
}

func (s *Settings) validateTestConfig() error {
	tc := s.TestConfig
	if !tc.Enabled {
		return nil
	}
	if tc.TestFramework != FrameworkDjango && tc.TestFramework != FrameworkPytest {
		return &SettingsError{
			Code:    CodeInvalidTestConfig,
			Field:   "test_config.test_framework",
			Message: fmt.Sprintf("invalid test framework %q", tc.TestFramework),
		}
	}
	if tc.WorkingDirectory == "" {
		return &SettingsError{Code: CodeInvalidTestConfig, Field: "test_config.working_directory", Message: "working directory is required"}
	}
	if info, err := os.Stat(tc.WorkingDirectory); err != nil || !info.IsDir() {
		return &SettingsError{
			Code:    CodeInvalidTestConfig,
			Field:   "test_config.working_directory",
			Message: fmt.Sprintf("invalid or not existing working directory %q", tc.WorkingDirectory),
		}
	}
	if len(tc.TestRunnerCommand) == 0 {
		return &SettingsError{Code: CodeInvalidTestConfig, Field: "test_config.test_runner_command", Message: "invalid runner command format"}
	}
	return nil
}
