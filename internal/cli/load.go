package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/rill/internal/compiler"
	"github.com/roach88/rill/internal/program"
	"github.com/roach88/rill/internal/store"
)

// loadProgram loads, validates and builds the program in dir.
//
// Missing or unreadable directories are command errors; programs that do
// not compile or validate are failures.
func loadProgram(dir string, logger *slog.Logger) (*program.Program, error) {
	loaded, err := compiler.LoadDir(dir)
	if err != nil {
		return nil, loadExitError(err)
	}

	prog, err := program.Build(loaded.Spec, logger)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "invalid program", err)
	}
	return prog, nil
}

// loadExitError maps a compiler.LoadError to an exit code.
func loadExitError(err error) *ExitError {
	var le *compiler.LoadError
	if errors.As(err, &le) && isCommandLoadError(le.Code) {
		return WrapExitError(ExitCommandError, "failed to load program", err)
	}
	return WrapExitError(ExitFailure, "failed to load program", err)
}

// isCommandLoadError reports whether a load error code means the command
// was pointed at the wrong place rather than at a broken program.
func isCommandLoadError(code string) bool {
	switch code {
	case compiler.ErrCodeNotFound, compiler.ErrCodeNoFiles, compiler.ErrCodeScanError:
		return true
	}
	return false
}

// openExistingStore opens a database that must already exist. Read-only
// commands use it so a mistyped path is reported instead of creating an
// empty database.
func openExistingStore(path string) (*store.Store, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "--db is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
