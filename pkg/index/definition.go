package index

import (
	"fmt"
	"io"
	"os"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Definition is the raw declarative model as loaded from YAML, before
// validation and catalog construction.
type Definition struct {
	Sets     []*Set         `yaml:"sets"`
	Tables   []*DataTable   `yaml:"tables"`
	Problems []*ProblemDecl `yaml:"problems"`
}

// LoadDefinition decodes a model definition from a reader.
func LoadDefinition(r io.Reader) (*Definition, error) {
	def := &Definition{}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(def); err != nil {
		return nil, fmt.Errorf("decoding model definition: %w", err)
	}

	if err := defaults.Set(def); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	return def, nil
}

// LoadDefinitionFile decodes a model definition from a YAML file on disk.
func LoadDefinitionFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model definition: %w", err)
	}
	defer f.Close()

	def, err := LoadDefinition(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	return def, nil
}
