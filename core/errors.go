package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
	Err     error  // Underlying cause, if any
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Error codes for configuration errors
const (
	ErrCodeMissingConfig = "MISSING_CONFIG"
	ErrCodeInvalidValue  = "INVALID_VALUE"
	ErrCodeConfigFile    = "CONFIG_FILE"
)

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your environment, .env or %s", varName, DefaultConfigFile),
	}
}

// ErrInvalidValue returns an error for a configuration value outside its
// allowed range.
func ErrInvalidValue(varName, value, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s '%s': %s", varName, value, reason),
		Action:  fmt.Sprintf("Fix %s and run again", varName),
	}
}

// ErrConfigFile returns an error for an unreadable or malformed YAML file.
func ErrConfigFile(path string, err error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeConfigFile,
		Message: fmt.Sprintf("Cannot load configuration file %s: %v", path, err),
		Action:  "Check the file exists and is valid YAML, or unset EDGEDETECT_CONFIG",
		Err:     err,
	}
}

// IsConfigError checks if an error is a ConfigError and returns it if so
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// Per-image error codes.
const (
	ErrCodeUsage       = "USAGE"
	ErrCodeFileOpen    = "FILE_OPEN"
	ErrCodeDecode      = "DECODE"
	ErrCodeEncode      = "ENCODE"
	ErrCodeWorkerSpawn = "WORKER_SPAWN"
	ErrCodeFilter      = "FILTER"
	ErrCodeCancelled   = "CANCELLED"
)

// ErrUsage is returned when no input images are given.
var ErrUsage = errors.New("usage: edgedetect <image.ppm> [image.ppm ...]")

// UnitError is the failure of one input image. It never stops other images.
type UnitError struct {
	Code  string // One of the ErrCode* per-image codes
	Index int    // 1-based position of the input on the command line
	Input string // Input path
	Err   error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s: image %d (%s): %v", e.Code, e.Index, e.Input, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UnitError) Unwrap() error {
	return e.Err
}

// NewUnitError wraps err for the input at 1-based index.
func NewUnitError(code string, index int, input string, err error) *UnitError {
	return &UnitError{Code: code, Index: index, Input: input, Err: err}
}

// GetErrorCode extracts the code from a ConfigError or UnitError, or
// returns "" for anything else. ErrUsage maps to ErrCodeUsage.
func GetErrorCode(err error) string {
	if errors.Is(err, ErrUsage) {
		return ErrCodeUsage
	}
	var unitErr *UnitError
	if errors.As(err, &unitErr) {
		return unitErr.Code
	}
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
