// Package pipeline loads hpipe.yaml files: an ordered list of stages and
// the jobs assigned to them. Every job of a stage implicitly depends on
// every job of the nearest earlier stage that has jobs, so stages execute
// as barriers while jobs within a stage run concurrently.
package pipeline

import (
	"embed"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/hpipe/hpipe/internal/errors"
	"github.com/hpipe/hpipe/internal/fetch"
	"github.com/hpipe/hpipe/internal/registry"
	"github.com/hpipe/hpipe/internal/taskfile"
)

//go:embed schemas/hpipe.schema.json
var schemaFS embed.FS

const schemaPath = "schemas/hpipe.schema.json"

// DefaultFile is the definition file looked up in the working directory
const DefaultFile = "hpipe.yaml"

// File is a parsed hpipe.yaml
type File struct {
	// Vars are substituted into every string field as ${NAME}
	Vars map[string]string `yaml:"vars"`

	// Stages is the ordered stage list
	Stages []string `yaml:"stages"`

	// Jobs are the job declarations in file order
	Jobs []JobDecl `yaml:"jobs"`
}

// JobDecl is a task declaration bound to a stage
type JobDecl struct {
	taskfile.TaskDecl `yaml:",inline"`

	// Stage names the stage this job belongs to
	Stage string `yaml:"stage"`
}

// Load reads, schema-validates and parses a pipeline file
func Load(path string) (*File, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewInvalidTaskFileError(path, err)
	}
	return Parse(path, source)
}

// Parse validates and decodes pipeline file content. Duplicate stage names
// and jobs referencing undeclared stages are configuration errors.
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

	seen := make(map[string]bool, len(f.Stages))
	for _, stage := range f.Stages {
		if seen[stage] {
			return nil, errors.NewDuplicateStageError(stage)
		}
		seen[stage] = true
	}
	for i := range f.Jobs {
		if !seen[f.Jobs[i].Stage] {
			return nil, errors.NewUnknownStageError(f.Jobs[i].Name, f.Jobs[i].Stage, f.Stages)
		}
	}
	return &f, nil
}

// Register compiles every job into the registry. Each job gains a
// dependency on every job of the nearest earlier stage that has jobs, which
// is what makes stages barriers: one failed job blocks all later stages
// while its siblings still finish. Stages without jobs are transparent.
func Register(f *File, reg *registry.Registry, fetcher *fetch.Fetcher) error {
	if fetcher == nil {
		fetcher = fetch.New("")
	}

	stageIndex := make(map[string]int, len(f.Stages))
	for i, stage := range f.Stages {
		stageIndex[stage] = i
	}

	jobsByStage := make([][]string, len(f.Stages))
	for i := range f.Jobs {
		idx := stageIndex[f.Jobs[i].Stage]
		name := taskfile.Substitute(f.Jobs[i].Name, f.Vars)
		jobsByStage[idx] = append(jobsByStage[idx], name)
	}

	// barrier[i] holds the jobs of the nearest earlier non-empty stage, so
	// an empty stage does not dissolve the barrier between its neighbors.
	barrier := make([][]string, len(f.Stages))
	var prev []string
	for i := range jobsByStage {
		barrier[i] = prev
		if len(jobsByStage[i]) > 0 {
			prev = jobsByStage[i]
		}
	}

	for i := range f.Jobs {
		decl := &f.Jobs[i]
		t, err := taskfile.CompileTask(&decl.TaskDecl, f.Vars, fetcher)
		if err != nil {
			return err
		}
		t.DependsOn = append(t.DependsOn, barrier[stageIndex[decl.Stage]]...)
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Roots resolves the requested stage names to job names. With no stages
// requested, every job is a root. An unknown stage is a configuration
// error.
func (f *File) Roots(stages []string) ([]string, error) {
	declared := make(map[string]bool, len(f.Stages))
	for _, stage := range f.Stages {
		declared[stage] = true
	}

	if len(stages) == 0 {
		names := make([]string, 0, len(f.Jobs))
		for i := range f.Jobs {
			names = append(names, taskfile.Substitute(f.Jobs[i].Name, f.Vars))
		}
		return names, nil
	}

	requested := make(map[string]bool, len(stages))
	for _, stage := range stages {
		if !declared[stage] {
			return nil, errors.NewUnknownStageError("", stage, f.Stages)
		}
		requested[stage] = true
	}

	var names []string
	for i := range f.Jobs {
		if requested[f.Jobs[i].Stage] {
			names = append(names, taskfile.Substitute(f.Jobs[i].Name, f.Vars))
		}
	}
	return names, nil
}
