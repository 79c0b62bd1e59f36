// Package taskfile loads htask.yaml definition files: YAML parsed, schema
// validated, variable substituted and registered as runnable tasks.
package taskfile

import (
	"embed"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/hpipe/hpipe/internal/errors"
)

//go:embed schemas/htask.schema.json
var schemaFS embed.FS

const schemaPath = "schemas/htask.schema.json"

// DefaultFile is the definition file looked up in the working directory
const DefaultFile = "htask.yaml"

// File is a parsed htask.yaml
type File struct {
	// Vars are substituted into every string field as ${NAME}
	Vars map[string]string `yaml:"vars"`

	// Tasks are the task declarations in file order
	Tasks []TaskDecl `yaml:"tasks"`
}

// TaskDecl is one task entry as written in the file
type TaskDecl struct {
	Name     string            `yaml:"name"`
	Desc     string            `yaml:"desc"`
	Run      string            `yaml:"run"`
	Deps     []string          `yaml:"deps"`
	Inputs   []InputDecl       `yaml:"inputs"`
	Outputs  []string          `yaml:"outputs"`
	Dir      string            `yaml:"dir"`
	Env      map[string]string `yaml:"env"`
	EnvFile  string            `yaml:"env_file"`
	Programs []string          `yaml:"programs"`
}

// InputDecl is either a plain path or a pinned remote resource
type InputDecl struct {
	// Path is the local path; empty for remote inputs
	Path string

	// URL is the remote location (s3:// or http(s)://)
	URL string

	// SHA256 optionally pins the remote content
	SHA256 string
}

// UnmarshalYAML accepts a bare string or a {url, sha256} mapping
func (in *InputDecl) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&in.Path)
	}
	var remote struct {
		URL    string `yaml:"url"`
		SHA256 string `yaml:"sha256"`
	}
	if err := value.Decode(&remote); err != nil {
		return err
	}
	in.URL = remote.URL
	in.SHA256 = remote.SHA256
	return nil
}

// Load reads, schema-validates and parses a definition file. Any failure is
// a configuration error carrying the file path.
func Load(path string) (*File, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewInvalidTaskFileError(path, err)
	}
	return Parse(path, source)
}

// Parse validates and decodes definition file content
func Parse(path string, source []byte) (*File, error) {
	if err := validate(source); err != nil {
		return nil, errors.NewInvalidTaskFileError(path, err)
	}

	var f File
	if err := yaml.Unmarshal(source, &f); err != nil {
		return nil, errors.NewInvalidTaskFileError(path, err)
	}
	return &f, nil
}

// validate checks the raw document against the embedded JSON schema. The
// YAML is decoded into generic values first because the validator works on
// JSON-shaped data.
func validate(source []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return err
	}

	schemaSource, err := schemaFS.ReadFile(schemaPath)
	if err != nil {
		return err
	}
	validator, err := jsonschema.CompileString(schemaPath, string(schemaSource))
	if err != nil {
		return err
	}
	return validator.Validate(doc)
}
