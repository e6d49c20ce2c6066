package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rill/internal/compiler"
)

func TestValidateValidProgram(t *testing.T) {
	dir := writeProgram(t, counterProgram)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Program counter is valid")
	assert.NotContains(t, out, "⚠")
}

func TestValidateValidProgramJSON(t *testing.T) {
	dir := writeProgram(t, counterProgram)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), dir)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "counter", resp.Data.Program)
	assert.Equal(t, 1, resp.Data.Files)
}

func TestValidateReportsCycles(t *testing.T) {
	dir := writeProgram(t, `
program: "loop"
store: count: {init: 0}
effect: bump: {handler: "echo"}
sample: [{clock: "bump.done", source: "count", target: "bump"}]
`)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err, "cycles are warnings")
	assert.Contains(t, out, "✓ Program loop is valid")
	assert.Contains(t, out, "⚠ Self-triggering unit detected: bump → bump")
}

func TestValidateInvalidProgram(t *testing.T) {
	dir := writeProgram(t, `
program: "broken"
store: count: {init: 0}
reducer: [{store: "count", on: "missing", op: "add", value: 1}]
`)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUnknownRef)
	assert.Contains(t, out, `unknown unit "missing"`)
}

func TestValidateInvalidProgramJSON(t *testing.T) {
	dir := writeProgram(t, `
program: "broken"
store: count: {init: 0}
reducer: [{store: "count", on: "missing", op: "add", value: 1}]
`)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	assert.Equal(t, compiler.ErrUnknownRef, resp.Error.Code)
}

func TestValidateCUEConflict(t *testing.T) {
	dir := writeProgram(t, "program: \"a\"\nprogram: \"b\"\n")

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err), "a broken program is a failure, not a command error")
	assert.Contains(t, out, compiler.ErrCodeBuildFailed)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "/nonexistent/program")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestValidateEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, compiler.ErrCodeNoFiles, resp.Error.Code)
}
