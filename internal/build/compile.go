package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hpipe/hpipe/internal/action"
	"github.com/hpipe/hpipe/internal/registry"
	"github.com/hpipe/hpipe/internal/taskfile"
)

// Config selects the build flavor and output location
type Config struct {
	// BuildType is ConfigDebug or ConfigRelease
	BuildType string

	// Prefix is the output root directory
	Prefix string
}

// DefaultConfig builds debug artifacts under ./build
func DefaultConfig() Config {
	return Config{BuildType: ConfigDebug, Prefix: "build"}
}

// OutputDir returns the artifact directory for this configuration
func (c Config) OutputDir() string {
	return filepath.Join(c.Prefix, c.BuildType)
}

// ArtifactPath returns where a target's artifact lands
func (c Config) ArtifactPath(t *TargetDecl) string {
	switch t.Kind {
	case KindStaticLibrary:
		return filepath.Join(c.OutputDir(), "lib"+t.Name+".a")
	case KindSharedLibrary:
		return filepath.Join(c.OutputDir(), "lib"+t.Name+".so")
	default:
		return filepath.Join(c.OutputDir(), t.Name)
	}
}

// Register compiles every target into a task. Target dependencies become
// task dependencies, so libraries build before the executables that link
// them and unrelated targets build concurrently.
func Register(f *File, reg *registry.Registry, cfg Config) error {
	if cfg.BuildType == "" {
		cfg.BuildType = ConfigDebug
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "build"
	}

	byName := make(map[string]*TargetDecl, len(f.Targets))
	for i := range f.Targets {
		byName[f.Targets[i].Name] = &f.Targets[i]
	}

	for i := range f.Targets {
		t := &f.Targets[i]

		sources := make([]string, 0, len(t.Sources))
		for _, src := range t.Sources {
			sources = append(sources, taskfile.Substitute(src, f.Vars))
		}

		var depArtifacts []string
		for _, dep := range t.Deps {
			if d, ok := byName[dep]; ok {
				depArtifacts = append(depArtifacts, cfg.ArtifactPath(d))
			}
		}

		artifact := cfg.ArtifactPath(t)
		step := &compileStep{
			toolchain:    f.Toolchain,
			cfg:          cfg,
			target:       t,
			sources:      sources,
			artifact:     artifact,
			depArtifacts: depArtifacts,
		}

		task := &registry.Task{
			Name:        t.Name,
			Description: fmt.Sprintf("build %s %s", t.Kind, t.Name),
			Action:      &action.FuncAction{Fn: step.run},
			DependsOn:   append([]string(nil), t.Deps...),
			Inputs:      append(append([]string(nil), sources...), depArtifacts...),
			Outputs:     []string{artifact},
		}
		if err := reg.Register(task); err != nil {
			return err
		}
	}
	return nil
}

// compileStep drives the compile-then-link pipeline for one target
type compileStep struct {
	toolchain    Toolchain
	cfg          Config
	target       *TargetDecl
	sources      []string
	artifact     string
	depArtifacts []string
}

func (s *compileStep) run(ctx context.Context, ec *registry.ExecContext) error {
	objDir := filepath.Join(s.cfg.OutputDir(), s.target.Name+".obj")
	if !ec.DryRun {
		if err := os.MkdirAll(objDir, 0755); err != nil {
			return err
		}
	}

	var objects []string
	for _, src := range s.sources {
		obj := filepath.Join(objDir, objectName(src))
		argv := append([]string{s.toolchain.CC}, s.compileFlags()...)
		argv = append(argv, "-c", src, "-o", obj)
		if err := action.RunCommand(ctx, ec, s.target.Name, argv); err != nil {
			return err
		}
		objects = append(objects, obj)
	}

	return s.link(ctx, ec, objects)
}

// compileFlags builds the per-source compiler arguments
func (s *compileStep) compileFlags() []string {
	var flags []string
	if s.cfg.BuildType == ConfigRelease {
		flags = append(flags, "-O2", "-DNDEBUG")
	} else {
		flags = append(flags, "-g", "-O0")
	}
	if s.target.Kind == KindSharedLibrary {
		flags = append(flags, "-fPIC")
	}
	for _, inc := range s.target.Includes {
		flags = append(flags, "-I"+inc)
	}
	defines := make([]string, 0, len(s.target.Defines))
	for k, v := range s.target.Defines {
		if v == "" {
			defines = append(defines, "-D"+k)
		} else {
			defines = append(defines, "-D"+k+"="+v)
		}
	}
	sort.Strings(defines)
	return append(flags, defines...)
}

// link produces the target artifact from the object files
func (s *compileStep) link(ctx context.Context, ec *registry.ExecContext, objects []string) error {
	var argv []string
	switch s.target.Kind {
	case KindStaticLibrary:
		argv = append([]string{s.toolchain.AR, "rcs", s.artifact}, objects...)
	case KindSharedLibrary:
		argv = append([]string{s.toolchain.CC, "-shared", "-o", s.artifact}, objects...)
		argv = append(argv, s.depArtifacts...)
	case KindExecutable:
		argv = append([]string{s.toolchain.CC, "-o", s.artifact}, objects...)
		argv = append(argv, s.depArtifacts...)
		if s.cfg.BuildType == ConfigDebug {
			argv = append(argv, "-g")
		}
	default:
		return fmt.Errorf("target %s: unsupported kind %q", s.target.Name, s.target.Kind)
	}
	return action.RunCommand(ctx, ec, s.target.Name, argv)
}

// objectName maps a source path to its object file name. The path is
// flattened so sources from different directories cannot collide silently.
func objectName(src string) string {
	flat := strings.ReplaceAll(filepath.ToSlash(src), "/", "_")
	return strings.TrimSuffix(flat, filepath.Ext(flat)) + ".o"
}
