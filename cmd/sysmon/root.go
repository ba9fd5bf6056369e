package main

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/sysmon/internal/config"
	"github.com/Dicklesworthstone/sysmon/internal/logger"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	envFile    string
	flags      *config.Flags

	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	a := &app{closeLog: func() error { return nil }}
	var view viewFlags

	root := &cobra.Command{
		Use:          "sysmon",
		Short:        "Live host metrics: cpu, memory, storage and top processes",
		Long:         "sysmon samples the local machine and shows the results as a terminal dashboard, an NDJSON stream, or an HTTP/gRPC feed.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.closeLog()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, a, view)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (.toml, .yaml or .yml)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file read before SYSMON_* variables")
	a.flags = config.BindFlags(pf)
	view.bind(root)

	root.AddCommand(
		newTUICmd(a),
		newServeCmd(a),
		newWatchCmd(a),
		newInfoCmd(a),
	)
	return root
}

// load resolves configuration: flags over environment over .env over the
// config file over defaults.
func (a *app) load() error {
	config.LoadEnvFile(nil, a.envFile)
	cfg, err := config.LoadFile(a.configPath)
	if err != nil {
		return err
	}
	config.ApplyEnv(&cfg)
	a.flags.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	l, closeLog, err := logger.New(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger, a.closeLog = l, closeLog
	a.logger.Debug("configuration loaded",
		"config", a.configPath,
		"fast_interval", cfg.Poll.FastInterval.Duration,
		"slow_interval", cfg.Poll.SlowInterval.Duration,
		"top_n", cfg.Poll.TopN)
	return nil
}

// logsToTerminal reports whether log lines would land on the screen a
// full-screen dashboard is drawing on.
func (a *app) logsToTerminal() bool {
	switch strings.ToLower(a.cfg.Log.Output) {
	case "", "stderr", "stdout":
		return true
	}
	return false
}

// dashboardLogger is the logger for code running under the dashboard.
func (a *app) dashboardLogger() *slog.Logger {
	if a.logsToTerminal() {
		return logger.Discard()
	}
	return a.logger
}
