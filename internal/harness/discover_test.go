package harness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.yaml"))
	touch(t, filepath.Join(dir, "a.yml"))
	touch(t, filepath.Join(dir, "nested", "c.yaml"))
	touch(t, filepath.Join(dir, "golden", "a.golden"))
	touch(t, filepath.Join(dir, "golden", "stray.yaml"))
	touch(t, filepath.Join(dir, "notes.txt"))

	files, err := FindScenarios([]string{dir, filepath.Join(dir, "b.yaml")}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, files)
}

func TestFindScenarios_Filter(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "cart-add.yaml"))
	touch(t, filepath.Join(dir, "cart-remove.yaml"))
	touch(t, filepath.Join(dir, "login.yaml"))

	files, err := FindScenarios([]string{dir}, "cart-*")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = FindScenarios([]string{dir}, "[")
	assert.Error(t, err)
}

func TestFindScenarios_NotFound(t *testing.T) {
	_, err := FindScenarios([]string{"testdata/nowhere"}, "")
	var nf *ScenarioNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "testdata/nowhere", nf.Path)
}

func TestFindScenarios_Testdata(t *testing.T) {
	files, err := FindScenarios([]string{"testdata/scenarios"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "counter_logs_increments.yaml"),
		filepath.Join("testdata", "scenarios", "restore_from_values.yaml"),
	}, files)
}
