/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

// The sentriage-server command runs the security-incident triage HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	golog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acronis/go-appkit/config"
	"github.com/acronis/go-appkit/httpserver/middleware"
	"github.com/acronis/go-appkit/log"

	"github.com/secopshub/sentriage"
	"github.com/secopshub/sentriage/httpapi"
	"github.com/secopshub/sentriage/sentinel"
	"github.com/secopshub/sentriage/tenantstore"
)

const serviceEnvVarPrefix = "SENTRIAGE"

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yml", "path to the YAML configuration file")
	configDir := flag.String("config-dir", "config", "directory for tenant and app settings files")
	flag.Parse()

	if err := runApp(*configPath, *configDir); err != nil {
		golog.Fatal(err)
	}
}

func runApp(configPath, configDir string) error {
	cfg := NewAppConfig()
	if err := config.NewDefaultLoader(serviceEnvVarPrefix).LoadFromFile(configPath, config.DataTypeYAML, cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()
	sentriage.SetDefaultLogger(logger)

	tenantStore, err := tenantstore.NewStore(configDir, tenantstore.StoreOpts{})
	if err != nil {
		return fmt.Errorf("open tenant store: %w", err)
	}
	settings, err := tenantStore.AppSettings()
	if err != nil {
		return fmt.Errorf("load app settings: %w", err)
	}

	// Vault-stored values (home tenant id, client id, scopes, multi-tenant
	// flags) override the file configuration before the auth core starts.
	secretStore := sentriage.NewSecretStore(cfg.Auth)
	if err = cfg.Auth.ResolveSecrets(context.Background(), secretStore); err != nil {
		return fmt.Errorf("resolve configuration secrets: %w", err)
	}

	// Misconfiguration of the auth core (missing home tenant or client id)
	// is fatal: the process must not come up serving requests it cannot verify.
	authenticator, err := sentriage.New(cfg.Auth, sentriage.WithSecretStore(secretStore))
	if err != nil {
		return fmt.Errorf("create authenticator: %w", err)
	}

	incidents := sentinel.NewClientWithOpts(sentinel.ClientOpts{
		LoggerProvider: middleware.GetLoggerFromContext,
	})
	apiHandler := httpapi.NewHandler(authenticator, incidents, tenantStore, httpapi.HandlerOpts{})

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: middleware.Logging(logger)(apiHandler.Routes()),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server is starting", log.String("addr", addr))
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case err = <-errCh:
		return fmt.Errorf("listen and serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("server is shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// AppConfig is the whole configuration of the server process.
type AppConfig struct {
	Auth *sentriage.Config `config:"auth"`
	Log  *log.Config       `config:"log"`
}

// NewAppConfig creates AppConfig with initialized sections.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Auth: sentriage.NewDefaultConfig(),
		Log:  log.NewConfig(),
	}
}

// SetProviderDefaults implements the config.Config interface.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set implements the config.Config interface.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}
