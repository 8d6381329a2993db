package config

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of settings error.
type ErrorCode string

const (
	CodeInvalidScanDepth     ErrorCode = "PR0001"
	CodeInvalidPythonPath    ErrorCode = "PR0002"
	CodeInvalidLogLevel      ErrorCode = "PR0003"
	CodeInvalidTestConfig    ErrorCode = "PR0009"
	CodeInvalidIntrospection ErrorCode = "PR0010"
)

// SettingsError is returned when a settings field fails validation.
type SettingsError struct {
	Code    ErrorCode
	Field   string
	Message string
}

func (e *SettingsError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Is matches any SettingsError carrying the same code.
func (e *SettingsError) Is(target error) bool {
	t, ok := target.(*SettingsError)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidScanDepth     = &SettingsError{Code: CodeInvalidScanDepth, Message: "import scan depth is not in valid range"}
	ErrInvalidPythonPath    = &SettingsError{Code: CodeInvalidPythonPath, Message: "python path is invalid or doesn't exist"}
	ErrInvalidLogLevel      = &SettingsError{Code: CodeInvalidLogLevel, Message: "log level is invalid"}
	ErrInvalidTestConfig    = &SettingsError{Code: CodeInvalidTestConfig, Message: "test config is invalid"}
	ErrInvalidIntrospection = &SettingsError{Code: CodeInvalidIntrospection, Message: "introspection mode is invalid"}
)

// IsCode reports whether err is a SettingsError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *SettingsError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
