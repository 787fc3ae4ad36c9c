// Command orbitd is OrbitX's background process: it owns the SQLite store,
// the pane multiplexer, the checkpoint engine, the vector index, and the
// ReAct executor, and exposes all of it over a unix-socket control surface
// for orbitctl (and, eventually, a terminal front-end) to drive. Grounded on
// the teacher's cmd/wtd/main.go — load config, build the long-lived
// subsystem, run until signalled.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/orbitx-dev/orbitx/internal/config"
	"github.com/orbitx-dev/orbitx/internal/logger"
	"github.com/orbitx-dev/orbitx/internal/orbitd"
)

func main() {
	var logFile string

	root := &cobra.Command{
		Use:   "orbitd",
		Short: "OrbitX background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(logFile)
		},
	}
	root.Flags().StringVar(&logFile, "log-file", "", "path to write daemon logs to (defaults to <state-dir>/orbitd.log)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(logFile string) error {
	userConfigDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home dir: %w", err)
	}
	userConfigDir = filepath.Join(userConfigDir, ".orbitx")

	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}

	mgr := config.NewManager()
	if err := mgr.Load(userConfigDir, workspace); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := mgr.Get()
	if cfg.Dir == "" {
		cfg.Dir = userConfigDir
	}

	if logFile == "" {
		logFile = filepath.Join(cfg.Dir, "orbitd.log")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := logger.Init("info", logFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	d, err := orbitd.New(cfg, mgr.Settings(), workspace)
	if err != nil {
		return fmt.Errorf("build daemon: %w", err)
	}

	return d.Run(context.Background())
}
