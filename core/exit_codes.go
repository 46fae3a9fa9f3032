package core

import (
	"errors"
	"os"
	"syscall"
)

// Exit codes for the application.
// These follow Unix conventions where signal-based exits are 128 + signal number.
const (
	// ExitCodeSuccess: every image succeeded, or no images were given.
	ExitCodeSuccess = 0

	// ExitCodeError: at least one image failed, or startup failed.
	ExitCodeError = 1

	// ExitCodeSIGINT is used when a second SIGINT forces exit.
	// Convention: 128 + 2 (SIGINT) = 130
	ExitCodeSIGINT = 130

	// ExitCodeSIGTERM is used when a second SIGTERM forces exit.
	// Convention: 128 + 15 (SIGTERM) = 143
	ExitCodeSIGTERM = 143
)

// ExitCodeName returns a human-readable name for an exit code.
func ExitCodeName(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "success"
	case ExitCodeError:
		return "error"
	case ExitCodeSIGINT:
		return "interrupted (SIGINT)"
	case ExitCodeSIGTERM:
		return "terminated (SIGTERM)"
	default:
		return "unknown"
	}
}

// ExitCodeFor maps the result of a run to the process exit code. A missing
// input list is not an error.
func ExitCodeFor(err error) int {
	if err == nil || errors.Is(err, ErrUsage) {
		return ExitCodeSuccess
	}
	return ExitCodeError
}

// ExitCodeForSignal returns the forced-exit code for sig.
func ExitCodeForSignal(sig os.Signal) int {
	switch sig {
	case syscall.SIGTERM:
		return ExitCodeSIGTERM
	case os.Interrupt:
		return ExitCodeSIGINT
	default:
		return ExitCodeError
	}
}
