package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/ringkv/pkg/config"
	"github.com/cuemby/ringkv/pkg/log"
	"github.com/cuemby/ringkv/pkg/runtime"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ringkvd",
	Short:   "ringkvd - replicated in-memory key/value store",
	Long:    "ringkvd runs one node of a self-discovering, Raft-replicated in-memory key/value store.",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"ringkvd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run this node",
	Long: `Run starts this node's full subsystem set: UDP multicast discovery,
the TCP command server, the Raft consensus integrator, and the in-memory
database. It blocks until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen-addr")
		listenPort, _ := cmd.Flags().GetInt("listen-port")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg := config.Load()
		if listenAddr != "" {
			cfg.ListenAddr = listenAddr
		}
		if listenPort != 0 {
			cfg.ListenPort = listenPort
		}
		if metricsAddr != "" {
			cfg.MetricsAddr = metricsAddr
		}

		nodeID := runtime.NewNodeID()
		rt, err := runtime.New(cfg, nodeID)
		if err != nil {
			return fmt.Errorf("build runtime: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		return rt.Run(ctx)
	},
}

func init() {
	runCmd.Flags().String("listen-addr", "", "Bind address for the command server (defaults to config's listen address)")
	runCmd.Flags().Int("listen-port", 0, "Bind port for the command server (defaults to config's listen port)")
	runCmd.Flags().String("metrics-addr", "", "Bind address for /metrics and /healthz (defaults to config's metrics address)")
}
