// Package cmd wires the sonoscan command line.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sonoscan/sonoscan/cmd/evaluate"
	"github.com/sonoscan/sonoscan/cmd/predict"
	"github.com/sonoscan/sonoscan/cmd/preprocess"
	"github.com/sonoscan/sonoscan/cmd/serve"
	"github.com/sonoscan/sonoscan/cmd/train"
	"github.com/sonoscan/sonoscan/cmd/user"
	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/logger"
)

// telemetryFlushTimeout bounds how long exit waits for queued Sentry events.
const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(ctx *conf.Context) *cobra.Command {
	var central *logger.CentralLogger

	rootCmd := &cobra.Command{
		Use:           "sonoscan",
		Short:         "Ultrasound image classification with Grad-CAM explanations",
		Version:       ctx.Build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		serve.Command(ctx),
		preprocess.Command(ctx),
		train.Command(ctx),
		evaluate.Command(ctx),
		predict.Command(ctx),
		user.Command(ctx),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		settings, err := conf.Load()
		if err != nil {
			return err
		}
		ctx.Settings = settings

		if settings.Debug {
			settings.Logging.DefaultLevel = "debug"
		}
		if central, err = logger.NewCentralLogger(&settings.Logging); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logger.SetGlobal(central)

		if settings.Sentry.Enabled {
			if err := errors.InitSentry(settings.Sentry.DSN, settings.Sentry.Environment, ctx.Build.GetVersion()); err != nil {
				logger.Global().Module("main").Warn("error telemetry disabled", logger.Error(err))
			}
		}
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if ctx.Settings != nil && ctx.Settings.Sentry.Enabled {
			errors.FlushTelemetry(telemetryFlushTimeout)
		}
		if central != nil {
			_ = central.Close()
		}
	}

	return rootCmd
}

// setupFlags defines the global flags and binds them to their viper keys.
func setupFlags(rootCmd *cobra.Command) error {
	rootCmd.PersistentFlags().StringVarP(&conf.ConfigFile, "config", "c", "", "Path to the config file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
