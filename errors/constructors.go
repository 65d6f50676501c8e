package errors

import (
	"fmt"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *Error {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *Error {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// ConfigValidation wraps a schema validation failure
func ConfigValidation(err error) *Error {
	return Wrap(err, ErrCodeConfigValidation, "configuration failed schema validation")
}

// InvalidAction creates an error for an action envelope that cannot be decoded
func InvalidAction(actionType string, err error) *Error {
	return Wrap(err, ErrCodeInvalidAction, fmt.Sprintf("invalid action %q", actionType)).
		WithDetail("type", actionType)
}

// DispatchFailed creates an error for an action that could not be queued
func DispatchFailed(actionType string, err error) *Error {
	return Wrap(err, ErrCodeDispatchFailed, fmt.Sprintf("failed to dispatch %s", actionType)).
		WithDetail("type", actionType)
}

// DaemonRunning creates an error for a second daemon instance
func DaemonRunning(pid int) *Error {
	return New(ErrCodeDaemonRunning, fmt.Sprintf("daemon already running with PID %d", pid)).
		WithDetail("pid", pid)
}

// DaemonNotRunning creates an error for a missing daemon
func DaemonNotRunning(endpoint string) *Error {
	return New(ErrCodeDaemonNotRunning, fmt.Sprintf("daemon is not reachable at %s", endpoint)).
		WithDetail("endpoint", endpoint)
}

// RepoOpenFailed creates an error for a local repository that cannot be read
func RepoOpenFailed(path string, err error) *Error {
	return Wrap(err, ErrCodeRepoOpenFailed, fmt.Sprintf("failed to open repository: %s", path)).
		WithDetail("path", path)
}
