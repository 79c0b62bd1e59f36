// Command hbuild compiles C targets from an hbuild.yaml definition file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hpipe/hpipe/internal/build"
	"github.com/hpipe/hpipe/internal/cli"
	"github.com/hpipe/hpipe/internal/registry"
	"github.com/hpipe/hpipe/internal/report"
)

var version = "v0.1.0"

var (
	logFlags  cli.LogFlags
	runFlags  cli.RunFlags
	buildType string
	prefix    string
	exitCode  int
)

var rootCmd = &cobra.Command{
	Use:   "hbuild [flags] [TARGET...]",
	Short: "Build C targets with incremental rebuilds",
	Long: `hbuild loads build targets from hbuild.yaml and compiles them with the
configured toolchain. Targets build concurrently where their dependencies
allow, and targets whose sources have not changed are skipped.`,
	Args: cobra.ArbitraryArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logFlags.Setup()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		exitCode = run(cmd.Context(), args)
		return nil
	},
}

func run(ctx context.Context, targets []string) int {
	if err := runFlags.Chdir(); err != nil {
		return cli.ConfigExit(err)
	}

	f, err := build.Load(runFlags.File)
	if err != nil {
		return cli.ConfigExit(err)
	}

	if buildType != build.ConfigDebug && buildType != build.ConfigRelease {
		fmt.Fprintf(os.Stderr, "invalid --config %q: want %s or %s\n",
			buildType, build.ConfigDebug, build.ConfigRelease)
		return report.ExitConfig
	}

	reg := registry.New()
	cfg := build.Config{BuildType: buildType, Prefix: prefix}
	if err := build.Register(f, reg, cfg); err != nil {
		return cli.ConfigExit(err)
	}

	// Unlike htask, no arguments means build everything.
	roots := targets
	if len(roots) == 0 {
		roots = f.TargetNames()
	}
	if len(roots) == 0 {
		fmt.Println("Nothing to build")
		return report.ExitOK
	}

	return cli.Drive(ctx, reg, roots, &runFlags, &logFlags)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.Version = version
	logFlags.Register(rootCmd)
	runFlags.Register(rootCmd, build.DefaultFile)
	rootCmd.Flags().StringVar(&buildType, "config", build.ConfigDebug, "Build configuration (debug or release)")
	rootCmd.Flags().StringVar(&prefix, "prefix", "build", "Output directory root")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(report.ExitConfig)
	}
	os.Exit(exitCode)
}
