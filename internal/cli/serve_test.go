package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeRequiresDatabase(t *testing.T) {
	dir := writeProgram(t, counterProgram)

	_, err := execute(t, NewServeCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestServeInvalidProgram(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "rill.db")

	_, err := execute(t, NewServeCommand(&RootOptions{Format: "text"}), "/nonexistent/program", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load program")
}

func TestServeBadAddress(t *testing.T) {
	dir := writeProgram(t, counterProgram)
	dbPath := filepath.Join(t.TempDir(), "rill.db")

	_, err := execute(t, NewServeCommand(&RootOptions{Format: "text"}), dir, "--db", dbPath, "--addr", "256.0.0.1:bad")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "server error")
}
