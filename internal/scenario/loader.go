package scenario

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// scenarioFile is the top-level YAML structure for scenario files.
type scenarioFile struct {
	Scenario Scenario `yaml:"scenario"`
}

// LoadFromFile reads and validates a scenario YAML file.
//
// Precondition: path must point to a valid YAML scenario file.
// Postcondition: Returns a validated Scenario or a non-nil error.
func LoadFromFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file %s: %w", path, err)
	}
	s, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading scenario from %s: %w", path, err)
	}
	return s, nil
}

// LoadFromBytes parses and validates a scenario from YAML bytes. Unknown
// keys are rejected.
//
// Precondition: data must be valid YAML conforming to the scenario schema.
// Postcondition: Returns a validated Scenario or a non-nil error.
func LoadFromBytes(data []byte) (*Scenario, error) {
	var file scenarioFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing scenario YAML: %w", err)
	}
	s := &file.Scenario
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validating scenario: %w", err)
	}
	return s, nil
}
