package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	PackageName          = "PyRock"
	DefaultIndexFileName = "py_rock_imports.json"
	SerializedFileName   = "serialized_settings.json"
	RegistryFileName     = "pyrock.db"

	DefaultImportScanDepth = 4
	MinImportScanDepth     = 1
	MaxImportScanDepth     = 6

	DefaultIndexingTimeout = 20 * time.Second

	FrameworkDjango = "django"
	FrameworkPytest = "pytest"

	ModeInterpreter = "interpreter"
	ModeStatic      = "static"
)

// Settings holds all configuration for pyrock. It is loaded once per process
// and passed to every component that needs it.
type Settings struct {
	ImportScanDepth       int        `yaml:"import_scan_depth" toml:"import_scan_depth"`
	PythonVirtualEnvPath  string     `yaml:"python_venv_path" toml:"python_venv_path"`
	PythonInterpreterPath string     `yaml:"python_interpreter_path" toml:"python_interpreter_path"`
	LogLevel              string     `yaml:"log_level" toml:"log_level"`
	TestConfig            TestConfig `yaml:"test_config" toml:"test_config"`

	IndexCacheDirectory string `yaml:"index_cache_directory" toml:"index_cache_directory"`
	ImportIndexFileName string `yaml:"import_index_file_name" toml:"import_index_file_name"`
	PackageDirectory    string `yaml:"package_directory" toml:"package_directory"`

	IntrospectionMode string   `yaml:"introspection_mode" toml:"introspection_mode"` // "interpreter" or "static"
	SearchPaths       []string `yaml:"search_paths" toml:"search_paths"`             // overrides the interpreter's sys.path
	ModuleDenylist    []string `yaml:"module_denylist" toml:"module_denylist"`
	IndexingTimeout   Duration `yaml:"indexing_timeout" toml:"indexing_timeout"`
	MetricsFile       string   `yaml:"metrics_file" toml:"metrics_file"`
	ProjectRoot       string   `yaml:"project_root" toml:"project_root"`
}

// TestConfig holds the test runner configuration.
type TestConfig struct {
	Enabled           bool     `yaml:"enabled" toml:"enabled"`
	TestFramework     string   `yaml:"test_framework" toml:"test_framework"` // "django" or "pytest"
	WorkingDirectory  string   `yaml:"working_directory" toml:"working_directory"`
	TestRunnerCommand []string `yaml:"test_runner_command" toml:"test_runner_command"`
}

// Duration is a time.Duration that decodes from strings like "20s" in both
// YAML and TOML files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultSettings returns the default configuration.
func DefaultSettings() *Settings {
	return &Settings{
		ImportScanDepth:     DefaultImportScanDepth,
		LogLevel:            "INFO",
		IndexCacheDirectory: filepath.Join(userDir(os.UserCacheDir), PackageName),
		ImportIndexFileName: DefaultIndexFileName,
		PackageDirectory:    filepath.Join(userDir(os.UserConfigDir), PackageName),
		IntrospectionMode:   ModeInterpreter,
		ModuleDenylist:      []string{"*sublime*", "xkcd", "antigravity", "this"},
		IndexingTimeout:     Duration{DefaultIndexingTimeout},
	}
}

func userDir(lookup func() (string, error)) string {
	dir, err := lookup()
	if err != nil || dir == "" {
		return os.TempDir()
	}
	return dir
}

// Load loads settings from a YAML or TOML file. The format is chosen by the
// file extension; anything other than ".toml" is read as YAML.
func Load(path string) (*Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.normalize()
			return s, nil // Return defaults if no settings file
		}
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	s.normalize()
	return s, nil
}

// LoadFromDir loads settings from a directory, looking for pyrock.yaml,
// pyrock.toml and the same names under .pyrock/.
func LoadFromDir(dir string) (*Settings, error) {
	candidates := []string{
		filepath.Join(dir, "pyrock.yaml"),
		filepath.Join(dir, "pyrock.yml"),
		filepath.Join(dir, "pyrock.toml"),
		filepath.Join(dir, ".pyrock", "config.yaml"),
		filepath.Join(dir, ".pyrock", "config.toml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			s, err := Load(path)
			if err != nil {
				return nil, err
			}
			if s.ProjectRoot == "" {
				s.ProjectRoot = dir
			}
			return s, nil
		}
	}

	s := DefaultSettings()
	s.ProjectRoot = dir
	s.normalize()
	return s, nil
}

// Save saves settings to a YAML or TOML file, chosen by extension.
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return toml.NewEncoder(f).Encode(s)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (s *Settings) normalize() {
	s.LogLevel = strings.ToUpper(strings.TrimSpace(s.LogLevel))
	if s.LogLevel == "" {
		s.LogLevel = "INFO"
	}
	s.IntrospectionMode = strings.ToLower(strings.TrimSpace(s.IntrospectionMode))
	if s.IntrospectionMode == "" {
		s.IntrospectionMode = ModeInterpreter
	}
	if s.ImportIndexFileName == "" {
		s.ImportIndexFileName = DefaultIndexFileName
	}
	if s.IndexingTimeout.Duration <= 0 {
		s.IndexingTimeout = Duration{DefaultIndexingTimeout}
	}
	s.TestConfig.TestFramework = strings.ToLower(strings.TrimSpace(s.TestConfig.TestFramework))
}

// IndexPath returns the path of the persisted symbol index.
func (s *Settings) IndexPath() string {
	return filepath.Join(s.IndexCacheDirectory, s.ImportIndexFileName)
}

// SerializedPath returns the path of the worker settings handoff file.
func (s *Settings) SerializedPath() string {
	return filepath.Join(s.PackageDirectory, SerializedFileName)
}

// RegistryPath returns the path of the run registry database.
func (s *Settings) RegistryPath() string {
	return filepath.Join(s.PackageDirectory, RegistryFileName)
}

// EnsureDirs creates the cache and package directories.
func (s *Settings) EnsureDirs() error {
	for _, dir := range []string{s.IndexCacheDirectory, s.PackageDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// VirtualEnvRoot returns the virtual environment root. The configured path
// may point at the environment directory itself or at its activate script.
func (s *Settings) VirtualEnvRoot() string {
	if s.PythonVirtualEnvPath == "" {
		return ""
	}
	info, err := os.Stat(s.PythonVirtualEnvPath)
	if err == nil && info.IsDir() {
		return s.PythonVirtualEnvPath
	}
	// <root>/bin/activate or <root>\Scripts\activate.bat
	return filepath.Dir(filepath.Dir(s.PythonVirtualEnvPath))
}

// VirtualEnvBin returns the executables directory of the virtual environment.
func (s *Settings) VirtualEnvBin() string {
	root := s.VirtualEnvRoot()
	if root == "" {
		return ""
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(root, "Scripts")
	}
	return filepath.Join(root, "bin")
}

// Interpreter returns the python executable used for indexing.
func (s *Settings) Interpreter() string {
	if s.PythonInterpreterPath != "" {
		return s.PythonInterpreterPath
	}
	if bin := s.VirtualEnvBin(); bin != "" {
		if runtime.GOOS == "windows" {
			return filepath.Join(bin, "python.exe")
		}
		return filepath.Join(bin, "python")
	}
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// ProjectDir returns the project root used for relative test paths and the
// native symbol scan.
func (s *Settings) ProjectDir() string {
	if s.ProjectRoot != "" {
		return s.ProjectRoot
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
