// Package cli carries the run surface shared by the hpipe, htask and
// hbuild binaries: common flags, the execute-and-report driver and exit
// code mapping.
package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hpipe/hpipe/internal/errors"
	"github.com/hpipe/hpipe/internal/graph"
	"github.com/hpipe/hpipe/internal/logger"
	"github.com/hpipe/hpipe/internal/registry"
	"github.com/hpipe/hpipe/internal/report"
	"github.com/hpipe/hpipe/internal/scheduler"
	"github.com/hpipe/hpipe/internal/staleness"
)

// LogFlags are the persistent logging flags every binary carries
type LogFlags struct {
	Verbose bool
	Debug   bool
	JSON    bool
	Quiet   bool
}

// Register binds the logging flags to the root command
func (lf *LogFlags) Register(root *cobra.Command) {
	root.PersistentFlags().BoolVarP(&lf.Verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().BoolVar(&lf.Debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&lf.JSON, "json", false, "Output logs in JSON format")
	root.PersistentFlags().BoolVarP(&lf.Quiet, "quiet", "q", false, "Suppress non-error output")
}

// Setup configures the global loggers from the parsed flags
func (lf *LogFlags) Setup() {
	logger.Setup(lf.Verbose || lf.Debug, lf.JSON, lf.Quiet)
}

// RunFlags are the execution flags shared by every run-style command
type RunFlags struct {
	Jobs      int
	FailFast  bool
	DryRun    bool
	List      bool
	Directory string
	File      string

	// ContentHash switches staleness from modification times to sha256
	ContentHash bool
}

// Register binds the run flags to a command. defaultFile is the definition
// file the binary looks for when -f is not given.
func (rf *RunFlags) Register(cmd *cobra.Command, defaultFile string) {
	cmd.Flags().IntVarP(&rf.Jobs, "jobs", "j", runtime.NumCPU(), "Maximum number of tasks running concurrently")
	cmd.Flags().BoolVar(&rf.FailFast, "fail-fast", false, "Stop scheduling new tasks after the first failure")
	cmd.Flags().BoolVarP(&rf.DryRun, "dry-run", "n", false, "Print what would run without executing anything")
	cmd.Flags().BoolVar(&rf.List, "list", false, "List the tasks that would run, in execution order")
	cmd.Flags().StringVarP(&rf.Directory, "directory", "C", "", "Change to this directory before doing anything")
	cmd.Flags().StringVarP(&rf.File, "file", "f", defaultFile, "Definition file to load")
	cmd.Flags().BoolVar(&rf.ContentHash, "content-hash", false, "Track staleness by content hash instead of modification time")
}

// Chdir applies the -C flag. Called before the definition file is read so
// relative paths in it resolve against the new directory.
func (rf *RunFlags) Chdir() error {
	if rf.Directory == "" {
		return nil
	}
	return os.Chdir(rf.Directory)
}

// Policy returns the staleness policy the flags select
func (rf *RunFlags) Policy() staleness.Policy {
	if rf.ContentHash {
		return staleness.ContentHashPolicy{Dir: ".hpipe/hashes"}
	}
	return staleness.ModTimePolicy{}
}

// ConfigExit prints a configuration error and returns the config exit code
func ConfigExit(err error) int {
	fmt.Fprint(os.Stderr, errors.FormatForCLI(err))
	return report.ExitConfig
}

// Drive builds the graph from the requested roots and runs it, printing
// progress and the final summary. The returned value is the process exit
// code.
func Drive(ctx context.Context, reg *registry.Registry, roots []string, rf *RunFlags, lf *LogFlags) int {
	g, err := graph.Build(reg, roots)
	if err != nil {
		return ConfigExit(err)
	}

	if rf.List {
		for _, id := range g.Order() {
			t := g.Task(id)
			if t.Description != "" {
				fmt.Printf("%s\t%s\n", t.Name, t.Description)
			} else {
				fmt.Println(t.Name)
			}
		}
		return report.ExitOK
	}

	ec := registry.NewExecContext()
	ec.DryRun = rf.DryRun

	jobs := rf.Jobs
	if rf.DryRun {
		// One worker keeps the preview in dependency order.
		jobs = 1
	}

	printer := &report.Printer{Quiet: lf.Quiet || rf.DryRun}
	exec := scheduler.New(g, staleness.NewEvaluator(rf.Policy()), scheduler.Config{
		Jobs:     jobs,
		FailFast: rf.FailFast,
		OnEvent:  printer.HandleEvent,
		Exec:     ec,
	})

	res := exec.Execute(ctx)
	summary := report.Summarize(res)

	if ctx.Err() != nil {
		aborted := errors.NewRunAbortedError("cancelled before all tasks finished", ctx.Err())
		logger.Op.WithFields(map[string]interface{}{"run_id": res.RunID}).Error(errors.DisplayErrorSummary(aborted))
		fmt.Fprint(os.Stderr, errors.FormatForCLI(aborted))
	}

	if rf.DryRun {
		logger.User.Infof("dry run: %d task(s) previewed in dependency order", summary.Total())
		return summary.ExitCode
	}

	if !lf.Quiet || summary.ExitCode != report.ExitOK {
		report.Print(summary)
	}
	for _, rec := range summary.Failed {
		if rec.Err != nil {
			logger.Op.WithFields(map[string]interface{}{"task": rec.Task}).Error(errors.DisplayErrorSummary(rec.Err))
			fmt.Fprint(os.Stderr, errors.FormatForCLI(rec.Err))
		}
	}
	return summary.ExitCode
}
