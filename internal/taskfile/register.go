package taskfile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hpipe/hpipe/internal/action"
	"github.com/hpipe/hpipe/internal/fetch"
	"github.com/hpipe/hpipe/internal/registry"
)

// Substitute expands ${NAME} references against the file's vars, falling
// back to the process environment for unknown names.
func Substitute(s string, vars map[string]string) string {
	return os.Expand(s, func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		return os.Getenv(name)
	})
}

// RenderCommand expands ${in}, ${in[i]}, ${out} and ${out[i]} against the
// task's resolved paths, then vars and environment like Substitute.
func RenderCommand(run string, inputs, outputs []string, vars map[string]string) string {
	local := map[string]string{
		"in":  strings.Join(inputs, " "),
		"out": strings.Join(outputs, " "),
	}
	for i, in := range inputs {
		local[fmt.Sprintf("in[%d]", i)] = in
	}
	for i, out := range outputs {
		local[fmt.Sprintf("out[%d]", i)] = out
	}

	return os.Expand(run, func(name string) string {
		if v, ok := local[name]; ok {
			return v
		}
		if v, ok := vars[name]; ok {
			return v
		}
		return os.Getenv(name)
	})
}

// Register materializes every declaration into the registry. Remote inputs
// are rewritten to their cache paths; the actual download is deferred to the
// task's action so only tasks that run touch the network.
func Register(f *File, reg *registry.Registry, fetcher *fetch.Fetcher) error {
	if fetcher == nil {
		fetcher = fetch.New("")
	}

	for i := range f.Tasks {
		decl := &f.Tasks[i]
		t, err := CompileTask(decl, f.Vars, fetcher)
		if err != nil {
			return err
		}
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// remoteInput pairs a URL with its optional content pin
type remoteInput struct {
	url    string
	sha256 string
}

// CompileTask turns one declaration into a registered task
func CompileTask(decl *TaskDecl, vars map[string]string, fetcher *fetch.Fetcher) (*registry.Task, error) {
	name := Substitute(decl.Name, vars)

	var inputs []string
	var remotes []remoteInput
	for _, in := range decl.Inputs {
		switch {
		case in.URL != "":
			url := Substitute(in.URL, vars)
			remotes = append(remotes, remoteInput{url: url, sha256: in.SHA256})
			inputs = append(inputs, fetcher.CachePath(url))
		case fetch.IsRemote(in.Path):
			url := Substitute(in.Path, vars)
			remotes = append(remotes, remoteInput{url: url})
			inputs = append(inputs, fetcher.CachePath(url))
		default:
			inputs = append(inputs, Substitute(in.Path, vars))
		}
	}

	outputs := make([]string, 0, len(decl.Outputs))
	for _, out := range decl.Outputs {
		outputs = append(outputs, Substitute(out, vars))
	}

	deps := make([]string, 0, len(decl.Deps))
	for _, dep := range decl.Deps {
		deps = append(deps, Substitute(dep, vars))
	}

	env, err := resolveEnv(decl, vars)
	if err != nil {
		return nil, err
	}

	var act registry.Action = &action.FuncAction{}
	if decl.Run != "" {
		act = &action.ShellAction{
			TaskName: name,
			Command:  RenderCommand(Substitute(decl.Run, vars), inputs, outputs, vars),
			Programs: decl.Programs,
		}
	}
	if len(remotes) > 0 {
		act = &fetchingAction{fetcher: fetcher, remotes: remotes, next: act}
	}

	return &registry.Task{
		Name:        name,
		Description: decl.Desc,
		Action:      act,
		DependsOn:   deps,
		Inputs:      inputs,
		Outputs:     outputs,
		Dir:         Substitute(decl.Dir, vars),
		Env:         env,
		Programs:    decl.Programs,
	}, nil
}

// resolveEnv layers inline env entries over the env_file content
func resolveEnv(decl *TaskDecl, vars map[string]string) (map[string]string, error) {
	if decl.EnvFile == "" && len(decl.Env) == 0 {
		return nil, nil
	}

	env := make(map[string]string)
	if decl.EnvFile != "" {
		fromFile, err := action.LoadEnvFile(Substitute(decl.EnvFile, vars))
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			env[k] = v
		}
	}
	for k, v := range decl.Env {
		env[k] = Substitute(v, vars)
	}
	return env, nil
}

// fetchingAction downloads the task's remote inputs before delegating
type fetchingAction struct {
	fetcher *fetch.Fetcher
	remotes []remoteInput
	next    registry.Action
}

func (a *fetchingAction) Run(ctx context.Context, ec *registry.ExecContext) error {
	if !ec.DryRun {
		for _, r := range a.remotes {
			if _, err := a.fetcher.Fetch(ctx, r.url, r.sha256); err != nil {
				return err
			}
		}
	}
	return a.next.Run(ctx, ec)
}
