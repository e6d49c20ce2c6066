package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rill"
)

// Scenario defines a program run and what it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the CUE program directory. A relative path is resolved
	// against the scenario file's directory.
	Program string `yaml:"program"`

	// ScopeID fixes the scope id. Defaults to testutil.DefaultScopeID.
	ScopeID string `yaml:"scope_id,omitempty"`

	// Values seeds stores by sid before the first step.
	Values map[string]any `yaml:"values,omitempty"`

	// Steps are dispatched in order; each waits until settled.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step dispatches one unit.
type Step struct {
	// Dispatch is the unit name.
	Dispatch string `yaml:"dispatch"`

	// Payload is the call's payload. Omitted means null.
	Payload any `yaml:"payload,omitempty"`

	// Expect validates the settled outcome. If nil, only a dispatch
	// diagnostic fails the step.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Status is "done" or "fail".
	Status string `yaml:"status"`

	// Value is compared as canonical JSON. Omitted means unchecked.
	Value any `yaml:"value,omitempty"`

	// Error must be contained in the failure or diagnostic text.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Unit is the node name counted by trace_count.
	Unit string `yaml:"unit,omitempty"`

	// Units is the expected order for trace_order.
	Units []string `yaml:"units,omitempty"`

	// Count is the expected number for trace_count and ticks.
	Count int `yaml:"count,omitempty"`

	// Expect holds expected values for state (by store name) and
	// snapshot (by sid). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertState      = "state"
	AssertSnapshot   = "snapshot"
	AssertTraceCount = "trace_count"
	AssertTraceOrder = "trace_order"
	AssertTicks      = "ticks"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) {
		scenario.Program = filepath.Join(filepath.Dir(path), scenario.Program)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Program == "" {
		return fmt.Errorf("program is required")
	}
	if info, err := os.Stat(s.Program); err != nil || !info.IsDir() {
		return fmt.Errorf("program directory not found: %s", s.Program)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Dispatch == "" {
			return fmt.Errorf("steps[%d]: dispatch is required", i)
		}
		if step.Expect == nil {
			continue
		}
		switch rill.Status(step.Expect.Status) {
		case rill.StatusDone, rill.StatusFail:
		default:
			return fmt.Errorf("steps[%d].expect: status must be %q or %q, got %q",
				i, rill.StatusDone, rill.StatusFail, step.Expect.Status)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertState, AssertSnapshot:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
	case AssertTraceCount:
		if a.Unit == "" {
			return fmt.Errorf("assertions[%d]: unit is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Units) == 0 {
			return fmt.Errorf("assertions[%d]: units list is required for trace_order", index)
		}
	case AssertTicks:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for ticks", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
