package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCUE(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "counter.cue", counterProgram)
	writeCUE(t, dir, "README.md", "not cue")

	res, err := LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, 1, res.FileCount)
	assert.Equal(t, dir, res.Dir)
	assert.Equal(t, "counter", res.Spec.Name)
	assert.Empty(t, Validate(res.Spec))
}

func TestLoadDir_SplitAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "a.cue", "program: \"split\"\nevent: inc: {}\n")
	writeCUE(t, dir, "b.cue", "store: count: {init: 0}\nreducer: [{store: \"count\", on: \"inc\", op: \"add\", value: 1}]\n")

	res, err := LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, 2, res.FileCount)
	require.Len(t, res.Spec.Events, 1)
	require.Len(t, res.Spec.Reducers, 1)
}

func TestLoadDir_Errors(t *testing.T) {
	notDir := filepath.Join(t.TempDir(), "file.cue")
	require.NoError(t, os.WriteFile(notDir, []byte(counterProgram), 0o644))

	badCUE := t.TempDir()
	writeCUE(t, badCUE, "bad.cue", "program: \"x\"\nprogram: \"y\"\n")

	noName := t.TempDir()
	writeCUE(t, noName, "anon.cue", "event: inc: {}\n")

	tests := []struct {
		name string
		dir  string
		code string
	}{
		{"missing", filepath.Join(t.TempDir(), "nope"), ErrCodeNotFound},
		{"not a directory", notDir, ErrCodeNotFound},
		{"empty", t.TempDir(), ErrCodeNoFiles},
		{"conflict", badCUE, ErrCodeBuildFailed},
		{"no program name", noName, ErrCodeCompile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDir(tt.dir)
			require.Error(t, err)
			var le *LoadError
			require.True(t, errors.As(err, &le), "got %T", err)
			assert.Equal(t, tt.code, le.Code)
		})
	}
}
