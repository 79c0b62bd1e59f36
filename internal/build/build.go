// Package build loads hbuild.yaml files and turns each build target into a
// task: sources in, artifact out, a compile-and-link action in between.
// Staleness tracking on the task inputs gives make-like incremental builds
// for free.
package build

import (
	"embed"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/hpipe/hpipe/internal/errors"
)

//go:embed schemas/hbuild.schema.json
var schemaFS embed.FS

const schemaPath = "schemas/hbuild.schema.json"

// DefaultFile is the definition file looked up in the working directory
const DefaultFile = "hbuild.yaml"

// Target kinds
const (
	KindExecutable    = "executable"
	KindStaticLibrary = "static_library"
	KindSharedLibrary = "shared_library"
)

// Build configurations
const (
	ConfigDebug   = "debug"
	ConfigRelease = "release"
)

// File is a parsed hbuild.yaml
type File struct {
	// Vars are substituted into every string field as ${NAME}
	Vars map[string]string `yaml:"vars"`

	// Toolchain selects the compiler and archiver
	Toolchain Toolchain `yaml:"toolchain"`

	// Targets are the build targets in file order
	Targets []TargetDecl `yaml:"targets"`
}

// Toolchain names the build tools, defaulting to cc and ar from PATH
type Toolchain struct {
	CC string `yaml:"cc"`
	AR string `yaml:"ar"`
}

// TargetDecl is one build target as written in the file
type TargetDecl struct {
	Name     string            `yaml:"name"`
	Kind     string            `yaml:"kind"`
	Sources  []string          `yaml:"sources"`
	Includes []string          `yaml:"includes"`
	Defines  map[string]string `yaml:"defines"`
	Deps     []string          `yaml:"deps"`
}

// Load reads, schema-validates and parses a build file
func Load(path string) (*File, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewInvalidTaskFileError(path, err)
	}
	return Parse(path, source)
}

// Parse validates and decodes build file content. Duplicate target names
// are a configuration error.
func Parse(path string, source []byte) (*File, error) {
	var doc interface{}
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return nil, errors.NewInvalidTaskFileError(path, err)
	}

	schemaSource, err := schemaFS.ReadFile(schemaPath)
	if err != nil {
		return nil, err
	}
	validator, err := jsonschema.CompileString(schemaPath, string(schemaSource))
	if err != nil {
		return nil, err
	}
	if err := validator.Validate(doc); err != nil {
		return nil, errors.NewInvalidTaskFileError(path, err)
	}

	var f File
	if err := yaml.Unmarshal(source, &f); err != nil {
		return nil, errors.NewInvalidTaskFileError(path, err)
	}

	if f.Toolchain.CC == "" {
		f.Toolchain.CC = "cc"
	}
	if f.Toolchain.AR == "" {
		f.Toolchain.AR = "ar"
	}

	seen := make(map[string]bool, len(f.Targets))
	for i := range f.Targets {
		if seen[f.Targets[i].Name] {
			return nil, errors.NewDuplicateTargetError(f.Targets[i].Name)
		}
		seen[f.Targets[i].Name] = true
	}
	return &f, nil
}

// TargetNames returns every target name in file order
func (f *File) TargetNames() []string {
	names := make([]string, 0, len(f.Targets))
	for i := range f.Targets {
		names = append(names, f.Targets[i].Name)
	}
	return names
}
