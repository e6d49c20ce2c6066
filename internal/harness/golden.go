package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rill/internal/ir"
)

// TraceSnapshot captures what a golden file pins for a scenario run.
// Serialized as canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	ScopeID      string       `json:"scope_id"`
	Steps        []StepResult `json:"steps"`
	Trace        []TraceEvent `json:"trace"`
}

// TraceJSON renders the golden form of result as canonical JSON.
func TraceJSON(scenarioName string, result *Result) ([]byte, error) {
	return ir.MarshalCanonical(TraceSnapshot{
		ScenarioName: scenarioName,
		ScopeID:      result.ScopeID,
		Steps:        result.Steps,
		Trace:        result.Trace,
	})
}

// AssertGolden compares the golden form of result against
// testdata/golden/{scenarioName}.golden, or the fixture directory given
// in opts.
//
// To regenerate golden files, run the test with -update.
func AssertGolden(t *testing.T, scenarioName string, result *Result, opts ...goldie.Option) error {
	t.Helper()

	data, err := TraceJSON(scenarioName, result)
	if err != nil {
		return err
	}

	base := []goldie.Option{
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	}
	g := goldie.New(t, append(base, opts...)...)
	g.Assert(t, scenarioName, data)
	return nil
}

// GoldenPath returns the golden file of a scenario file:
// <dir>/golden/<base>.golden
func GoldenPath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// WriteGolden writes the golden form of result to path.
func WriteGolden(path, scenarioName string, result *Result) error {
	data, err := TraceJSON(scenarioName, result)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// MatchGolden reports whether result matches the golden file at path.
func MatchGolden(path, scenarioName string, result *Result) (bool, error) {
	want, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read golden file: %w", err)
	}
	got, err := TraceJSON(scenarioName, result)
	if err != nil {
		return false, fmt.Errorf("failed to marshal trace: %w", err)
	}
	return bytes.Equal(bytes.TrimSpace(want), got), nil
}
