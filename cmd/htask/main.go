// Command htask runs tasks from an htask.yaml definition file.
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
	"github.com/hpipe/hpipe/internal/registry"
	"github.com/hpipe/hpipe/internal/report"
	"github.com/hpipe/hpipe/internal/taskfile"
)

var version = "v0.1.0"

var (
	logFlags cli.LogFlags
	runFlags cli.RunFlags
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "htask [flags] TASK...",
	Short: "Run tasks from an htask.yaml file",
	Long: `htask loads task definitions from htask.yaml, resolves their dependency
graph and runs the requested tasks concurrently, skipping tasks whose
outputs are already up to date. With no arguments it lists the available
tasks.`,
	Args: cobra.ArbitraryArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logFlags.Setup()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		exitCode = run(cmd.Context(), args)
		return nil
	},
}

func run(ctx context.Context, args []string) int {
	if err := runFlags.Chdir(); err != nil {
		return cli.ConfigExit(err)
	}

	f, err := taskfile.Load(runFlags.File)
	if err != nil {
		return cli.ConfigExit(err)
	}

	reg := registry.New()
	if err := taskfile.Register(f, reg, fetch.New("")); err != nil {
		return cli.ConfigExit(err)
	}

	// No arguments means list, not run everything.
	if len(args) == 0 && !runFlags.List {
		names := reg.Names()
		if len(names) == 0 {
			fmt.Println("Nothing to run")
			return report.ExitOK
		}
		fmt.Println("Available tasks:")
		for _, name := range names {
			t, err := reg.Get(name)
			if err != nil {
				continue
			}
			if t.Description != "" {
				fmt.Printf("  %s\t%s\n", t.Name, t.Description)
			} else {
				fmt.Printf("  %s\n", t.Name)
			}
		}
		return report.ExitOK
	}

	return cli.Drive(ctx, reg, args, &runFlags, &logFlags)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.Version = version
	logFlags.Register(rootCmd)
	runFlags.Register(rootCmd, taskfile.DefaultFile)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(report.ExitConfig)
	}
	os.Exit(exitCode)
}
