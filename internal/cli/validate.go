package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rill/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Program  string                     `json:"program,omitempty"`
	Files    int                        `json:"files,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <program-dir>",
		Short: "Validate a program without running it",
		Long: `Validate a CUE program: load and compile it, check every unit
reference, and report feedback loops between units.

Cycles are reported as warnings; a program with cycles is still valid
but a dispatch may run into the step quota.

Exit codes:
  0 - Program is valid
  1 - Program is invalid
  2 - Command error (directory not found, no CUE files)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loaded, err := compiler.LoadDir(dir)
	if err != nil {
		var le *compiler.LoadError
		if !errors.As(err, &le) {
			return outputValidateError(formatter, compiler.ErrCodeGeneric, err.Error())
		}
		if isCommandLoadError(le.Code) {
			return outputValidateError(formatter, le.Code, le.Message)
		}
		ve := compiler.ValidationError{Field: "load", Message: le.Message, Code: le.Code}
		if le.Pos.IsValid() {
			ve.Line = le.Pos.Line()
		}
		return outputValidationErrors(formatter, ValidationResult{Errors: []compiler.ValidationError{ve}})
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)

	result := ValidationResult{
		Program:  loaded.Spec.Name,
		Files:    loaded.FileCount,
		Errors:   compiler.Validate(loaded.Spec),
		Warnings: compiler.AnalyzeCycles(loaded.Spec),
	}
	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}

	result.Valid = true
	return outputValidateSuccess(formatter, result)
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Program %s is valid\n", result.Program)
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "  ⚠ %s\n", warn.Message)
	}
	return nil
}

// outputValidateError reports an error that stopped validation before
// the program was read.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors reports an invalid program.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		if err := formatter.JSON(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}); err != nil {
			return err
		}
		return exitErr
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(w, "line %d\n", err.Line)
		}
		fmt.Fprintf(w, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return exitErr
}
