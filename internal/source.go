package internal

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"shotseries-spec/specs"
)

// SliceSource wraps already materialized record specs as a data source.
func SliceSource(entries []specs.RecordSpec) specs.DataSource {
	return func() ([]specs.RecordSpec, error) {
		return entries, nil
	}
}

// YAMLSource reads a list of record mappings from a YAML file on each
// load, so repeated Load calls pick up entries appended to a running
// logbook file.
func YAMLSource(path string) specs.DataSource {
	return func() ([]specs.RecordSpec, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading source %q: %w", path, err)
		}
		var entries []specs.RecordSpec
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parsing source %q: %w", path, err)
		}
		return entries, nil
	}
}
