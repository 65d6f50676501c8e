package cli

import (
	"fmt"
	"io"

	"github.com/grovetools/repostore/errors"
)

// ErrorHandler prints user-facing messages for structured errors.
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to out.
func NewErrorHandler(verbose bool, out io.Writer) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     out,
	}
}

// Handle prints a message for err and returns err unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}

	var e *errors.Error
	structured := errors.As(err, &e)

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintln(h.Out, "Error: configuration not found. Create repostore.yml or pass --config.")

	case errors.ErrCodeConfigValidation, errors.ErrCodeConfigInvalid:
		fmt.Fprintf(h.Out, "Error: invalid configuration")
		if structured && e.Details["path"] != nil {
			fmt.Fprintf(h.Out, " in %v", e.Details["path"])
		}
		fmt.Fprintf(h.Out, "\n%v\n", causeOrMessage(e, err))

	case errors.ErrCodeDaemonNotRunning:
		fmt.Fprintln(h.Out, "Error: the repostore daemon is not running. Start it with 'repostored start'.")

	case errors.ErrCodeDaemonRunning:
		if structured {
			fmt.Fprintf(h.Out, "Error: the repostore daemon is already running (PID %v).\n", e.Details["pid"])
		} else {
			fmt.Fprintln(h.Out, "Error: the repostore daemon is already running.")
		}

	case errors.ErrCodeInvalidAction:
		fmt.Fprintf(h.Out, "Error: %v\n", causeOrMessage(e, err))
		fmt.Fprintln(h.Out, "Run 'repostored dispatch --help' to list action types.")

	default:
		fmt.Fprintf(h.Out, "Error: %v\n", err)
	}

	if h.Verbose && structured {
		fmt.Fprintf(h.Out, "\nError details:\n%s\n", e.ToJSON())
	}
	return err
}

func causeOrMessage(e *errors.Error, err error) string {
	if e == nil {
		return err.Error()
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}
