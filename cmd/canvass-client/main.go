package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/veranda-labs/canvass/internal/client"
	"github.com/veranda-labs/canvass/internal/config"
	"github.com/veranda-labs/canvass/internal/logging"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "canvass-client",
		Short: "Canvass rep-side shift tracking daemon",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("rep-id", "", "Rep identifier")
	cmd.PersistentFlags().String("territory-id", "", "Territory identifier")
	cmd.PersistentFlags().String("database-path", defaults.GetString("client.database_path"), "Local SQLite database path")
	cmd.PersistentFlags().String("control-address", defaults.GetString("client.control_address"), "Loopback address for the control API")
	cmd.PersistentFlags().String("sync-base-url", "", "Base URL of the canvass API")
	cmd.PersistentFlags().String("sync-token", "", "API token (overrides env)")
	cmd.PersistentFlags().Int("sync-interval-seconds", defaults.GetInt("sync.interval_seconds"), "Background sync interval in seconds")
	cmd.PersistentFlags().Int("sample-interval-seconds", defaults.GetInt("geo.sample_interval_seconds"), "Position sample interval in seconds")
	cmd.PersistentFlags().Int("auto-pause-threshold-ms", defaults.GetInt("shift.auto_pause_threshold_ms"), "Inactivity threshold before unpaid time accrues, in milliseconds")
	cmd.PersistentFlags().Float64("pay-rate", defaults.GetFloat64("shift.pay_rate_per_hour"), "Pay rate per hour")
	cmd.PersistentFlags().Float64("mileage-rate", defaults.GetFloat64("shift.mileage_rate_per_mile"), "Mileage reimbursement rate per mile")
	cmd.PersistentFlags().Bool("training", defaults.GetBool("shift.training"), "Mark shifts as training (no inactivity deduction)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "rep.id", "rep-id")
	bindFlag(cmd, "rep.territory_id", "territory-id")
	bindFlag(cmd, "client.database_path", "database-path")
	bindFlag(cmd, "client.control_address", "control-address")
	bindFlag(cmd, "sync.base_url", "sync-base-url")
	bindFlag(cmd, "sync.token", "sync-token")
	bindFlag(cmd, "sync.interval_seconds", "sync-interval-seconds")
	bindFlag(cmd, "geo.sample_interval_seconds", "sample-interval-seconds")
	bindFlag(cmd, "shift.auto_pause_threshold_ms", "auto-pause-threshold-ms")
	bindFlag(cmd, "shift.pay_rate_per_hour", "pay-rate")
	bindFlag(cmd, "shift.mileage_rate_per_mile", "mileage-rate")
	bindFlag(cmd, "shift.training", "training")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runClient(ctx context.Context) error {
	appConfig, err := config.LoadClient(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	session, err := client.NewSession(client.SessionConfig{
		Config: appConfig,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	controlServer := &http.Server{
		Addr:    appConfig.ControlAddress,
		Handler: client.NewControlHandler(session, logger),
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("control API listening", zap.String("address", appConfig.ControlAddress))
		err := controlServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	runDone := make(chan struct{})
	go func() {
		session.Run(signalCtx)
		close(runDone)
	}()

	select {
	case <-signalCtx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := controlServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("control API shutdown", zap.Error(err))
	}

	// Last chance to flush the queue before the process exits; anything
	// undelivered stays durable for the next run.
	if drained, err := session.Sync(shutdownCtx); err != nil {
		logger.Warn("final sync failed", zap.Error(err))
	} else if drained > 0 {
		logger.Info("flushed pending records on shutdown", zap.Int("drained", drained))
	}

	<-runDone
	return nil
}
