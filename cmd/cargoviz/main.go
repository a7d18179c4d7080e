package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dgnsrekt/cargoviz-realtime/internal/config"
)

var (
	cfgFile  string
	verbose  bool
	logger   *zap.Logger
	logLevel zap.AtomicLevel
	cfg      *config.Config
)

func setupLogger(verbose bool, logCfg *config.LoggingConfig) (*zap.Logger, zap.AtomicLevel, error) {
	var zapConfig zap.Config
	if verbose {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.DisableStacktrace = true
	}

	// Set log level from config
	if logCfg != nil && logCfg.Level != "" && !verbose {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logCfg.Level)); err == nil {
			zapConfig.Level = zap.NewAtomicLevelAt(level)
		}
	}

	// Add file output if enabled
	if logCfg != nil && logCfg.Enabled {
		if err := os.MkdirAll(logCfg.Directory, 0755); err != nil {
			return nil, zapConfig.Level, fmt.Errorf("creating logs directory: %w", err)
		}
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		logFile := filepath.Join(logCfg.Directory, fmt.Sprintf("cargoviz_%s.log", timestamp))
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, logFile)
	}

	l, err := zapConfig.Build()
	return l, zapConfig.Level, err
}

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := &cobra.Command{
		Use:           "cargoviz",
		Short:         "Cargo yard dashboard client with realtime push updates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip config loading for help commands
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				var err error
				logger, logLevel, err = setupLogger(verbose, nil)
				return err
			}

			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}

			logger, logLevel, err = setupLogger(verbose, &cfg.Logging)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("CARGOVIZ_CONFIG"), "config file path (or set CARGOVIZ_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(projectsCmd())
	rootCmd.AddCommand(areasCmd())
	rootCmd.AddCommand(cargoCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(serveCmd())

	// Setup signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
