// Command hpipe runs staged pipelines from an hpipe.yaml definition file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hpipe/hpipe/internal/cli"
	"github.com/hpipe/hpipe/internal/fetch"
	"github.com/hpipe/hpipe/internal/pipeline"
	"github.com/hpipe/hpipe/internal/registry"
	"github.com/hpipe/hpipe/internal/report"
)

var version = "v0.1.0"

var (
	logFlags cli.LogFlags
	runFlags cli.RunFlags
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "hpipe",
	Short: "Run staged job pipelines",
	Long: `hpipe loads a pipeline definition from hpipe.yaml: an ordered list of
stages and the jobs assigned to them. Jobs within a stage run concurrently;
a stage starts only after every job of the previous stage finished.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logFlags.Setup()
	},
}

var runCmd = &cobra.Command{
	Use:   "run [flags] [STAGE...]",
	Short: "Run the pipeline, or only the named stages",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		exitCode = run(cmd.Context(), args)
		return nil
	},
}

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the pipeline's stages and their jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		exitCode = listStages()
		return nil
	},
}

func run(ctx context.Context, stages []string) int {
	if err := runFlags.Chdir(); err != nil {
		return cli.ConfigExit(err)
	}

	f, err := pipeline.Load(runFlags.File)
	if err != nil {
		return cli.ConfigExit(err)
	}

	reg := registry.New()
	if err := pipeline.Register(f, reg, fetch.New("")); err != nil {
		return cli.ConfigExit(err)
	}

	roots, err := f.Roots(stages)
	if err != nil {
		return cli.ConfigExit(err)
	}
	if len(roots) == 0 {
		fmt.Println("Nothing to run")
		return report.ExitOK
	}

	return cli.Drive(ctx, reg, roots, &runFlags, &logFlags)
}

func listStages() int {
	if err := runFlags.Chdir(); err != nil {
		return cli.ConfigExit(err)
	}

	f, err := pipeline.Load(runFlags.File)
	if err != nil {
		return cli.ConfigExit(err)
	}

	for _, stage := range f.Stages {
		fmt.Println(stage + ":")
		for i := range f.Jobs {
			if f.Jobs[i].Stage == stage {
				fmt.Printf("  %s\n", f.Jobs[i].Name)
			}
		}
	}
	return report.ExitOK
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.Version = version
	logFlags.Register(rootCmd)
	runFlags.Register(runCmd, pipeline.DefaultFile)
	stagesCmd.Flags().StringVarP(&runFlags.Directory, "directory", "C", "", "Change to this directory before doing anything")
	stagesCmd.Flags().StringVarP(&runFlags.File, "file", "f", pipeline.DefaultFile, "Definition file to load")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stagesCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(report.ExitConfig)
	}
	os.Exit(exitCode)
}
