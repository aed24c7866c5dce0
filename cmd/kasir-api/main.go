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

	"github.com/masetio/KasirPOP/internal/auth"
	"github.com/masetio/KasirPOP/internal/catalog"
	"github.com/masetio/KasirPOP/internal/config"
	"github.com/masetio/KasirPOP/internal/database"
	"github.com/masetio/KasirPOP/internal/logging"
	"github.com/masetio/KasirPOP/internal/sales"
	"github.com/masetio/KasirPOP/internal/server"
	"github.com/masetio/KasirPOP/internal/settings"
	"github.com/masetio/KasirPOP/internal/sync"
	"github.com/masetio/KasirPOP/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kasir-api",
		Short: "KasirPOP point-of-sale backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
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
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")
	cmd.PersistentFlags().String("remote-url", defaults.GetString("remote.url"), "Remote sync backend base URL")
	cmd.PersistentFlags().String("remote-api-key", "", "Remote sync backend API key (overrides env)")
	cmd.PersistentFlags().Int("remote-timeout-seconds", defaults.GetInt("remote.timeout_seconds"), "Remote sync request timeout in seconds")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "remote.url", "remote-url")
	bindFlag(cmd, "remote.api_key", "remote-api-key")
	bindFlag(cmd, "remote.timeout_seconds", "remote-timeout-seconds")
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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.TokenTTL,
	})

	userStore, err := users.NewStore(users.StoreConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}
	catalogStore, err := catalog.NewStore(catalog.StoreConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}
	salesStore, err := sales.NewStore(sales.StoreConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}
	settingsStore, err := settings.NewStore(settings.StoreConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}

	remoteClient, err := sync.NewRESTClient(sync.RESTClientConfig{
		BaseURL: appConfig.RemoteURL,
		APIKey:  appConfig.RemoteAPIKey,
		Timeout: appConfig.RemoteTimeout,
	})
	if err != nil {
		return err
	}

	cursors, err := sync.NewDatabaseCursors(db)
	if err != nil {
		return err
	}

	engine, err := sync.NewEngine(sync.EngineConfig{
		Remote:   remoteClient,
		Cursors:  cursors,
		Users:    userStore,
		Catalog:  catalogStore,
		Sales:    salesStore,
		Settings: settingsStore,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		Users:        userStore,
		Catalog:      catalogStore,
		Sales:        salesStore,
		Settings:     settingsStore,
		Sync:         engine,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
