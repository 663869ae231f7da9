package category

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// file is the on-disk taxonomy shape. YAML is a superset of JSON, so the
// same decoder reads categories.json and categories.yaml.
type file struct {
	Canonical []string          `yaml:"canonical"`
	Aliases   map[string]string `yaml:"aliases"`
}

// Load reads the taxonomy at path. A missing file is not an error: it
// returns a nil Spec, which callers treat as "no taxonomy loaded".
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes taxonomy bytes.
func Parse(data []byte, path string) (*Spec, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse categories file %s: %w", path, err)
	}
	spec := NewSpec(f.Canonical, f.Aliases)
	spec.path = path
	return spec, nil
}
