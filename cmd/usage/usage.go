// Package usage marks command line errors that should print usage and exit with status 2.
package usage

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Error is a malformed command line
type Error struct {
	Cmd *cobra.Command
	Err error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// ExactArgs accepts exactly n non-empty positional arguments
func ExactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &Error{Cmd: cmd, Err: err}
		}
		for i, arg := range args {
			if arg == "" {
				return &Error{Cmd: cmd, Err: fmt.Errorf("argument %d is empty", i+1)}
			}
		}
		return nil
	}
}

// FlagError wraps flag parsing failures
func FlagError(cmd *cobra.Command, err error) error {
	return &Error{Cmd: cmd, Err: err}
}
