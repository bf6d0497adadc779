// Package agentpool wires the pool package into a cobra CLI: a headless
// server, a live terminal dashboard, and commands for day-to-day operation.
package agentpool

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/agentpool/internal/config"
	"github.com/zjrosen/agentpool/internal/demoworker"
	"github.com/zjrosen/agentpool/internal/log"
	"github.com/zjrosen/agentpool/internal/metrics"
	"github.com/zjrosen/agentpool/internal/tracing"
	"github.com/zjrosen/agentpool/pool"
)

var (
	version   = "dev"
	cfgFile   string
	cfg       config.Config
	debugFlag bool

	v = viper.New()
)

var rootCmd = &cobra.Command{
	Use:     "agentpool",
	Short:   "Run and inspect a generic worker pool",
	Long:    `agentpool runs a demo worker pool behind a small CLI: a headless server, a live terminal dashboard, and a one-shot status query.`,
	Version: version,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .agentpool/config.yaml or ~/.config/agentpool/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"enable debug logging (also: AGENTPOOL_DEBUG=1)")
}

func initConfig() {
	loaded, loadedViper, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentpool: %v\n", err)
		return
	}
	cfg = loaded
	v = loadedViper
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string, called from main with ldflags values.
func SetVersion(ver string) {
	version = ver
	rootCmd.Version = ver
}

func initDebugLogging(prefix string) (func(), error) {
	debug := os.Getenv("AGENTPOOL_DEBUG") != "" || debugFlag
	if !debug {
		return func() {}, nil
	}

	logPath := os.Getenv("AGENTPOOL_LOG")
	if logPath == "" {
		logPath = "debug.log"
	}
	cleanup, err := log.InitWithTeaLog(logPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	log.Info(log.CatCLI, "agentpool starting", "version", version, "debug", true, "logPath", logPath)
	return cleanup, nil
}

// buildPool constructs a demo-backed pool.Pool from the loaded config, along
// with the metrics and tracing providers wired around it. Every subcommand
// that actually runs a pool (serve, dashboard) shares this.
func buildPool() (*pool.Pool, *metrics.Provider, *tracing.Provider, error) {
	tp, err := tracing.NewProvider(tracing.Config{
		Enabled:      cfg.Metrics.Enabled,
		Exporter:     cfg.Metrics.Exporter,
		OTLPEndpoint: cfg.Metrics.Endpoint,
		ServiceName:  cfg.Name,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("configuring tracing: %w", err)
	}

	dw := demoworker.New(nil)
	pc := cfg.ToPoolConfig()
	pc.Supervisor = dw
	pc.Dispatcher = dw

	p, err := pool.New(pc)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, nil, nil, fmt.Errorf("starting pool: %w", err)
	}

	mp, err := metrics.NewProvider(metrics.Config{
		Enabled:         cfg.Metrics.Enabled,
		ServiceName:     cfg.Name,
		CollectInterval: metrics.DefaultConfig().CollectInterval,
	}, p)
	if err != nil {
		p.Stop()
		return nil, nil, nil, fmt.Errorf("starting metrics: %w", err)
	}

	return p, mp, tp, nil
}

// newProgram is a small seam so tests could substitute a non-TTY program if
// ever needed; production code always goes through this.
func newProgram(model tea.Model) *tea.Program {
	return tea.NewProgram(model, tea.WithAltScreen())
}
