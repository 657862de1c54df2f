/*
Copyright © 2025 SecOps Hub.

Released under MIT license.
*/

// Package tenantstore persists workspace configuration of served tenants in
// YAML files: which tenants exist, which one is the default, and the
// application settings of the triage service.
package tenantstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/acronis/go-appkit/log"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/secopshub/sentriage/internal/authutil"
)

const (
	tenantsFileName     = "tenants.yml"
	appSettingsFileName = "app_config.yml"
)

// TenantConfig describes the workspace a tenant's incident data lives in.
type TenantConfig struct {
	TenantID       string `yaml:"tenant_id" json:"tenant_id" mapstructure:"tenant_id"`
	TenantName     string `yaml:"tenant_name" json:"tenant_name" mapstructure:"tenant_name"`
	SubscriptionID string `yaml:"subscription_id" json:"subscription_id" mapstructure:"subscription_id"`
	ResourceGroup  string `yaml:"resource_group" json:"resource_group" mapstructure:"resource_group"`
	WorkspaceName  string `yaml:"workspace_name" json:"workspace_name" mapstructure:"workspace_name"`
	Enabled        bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Description    string `yaml:"description" json:"description" mapstructure:"description"`
}

// Validate checks that all required fields are present.
func (tc *TenantConfig) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"tenant_id", tc.TenantID},
		{"tenant_name", tc.TenantName},
		{"subscription_id", tc.SubscriptionID},
		{"resource_group", tc.ResourceGroup},
		{"workspace_name", tc.WorkspaceName},
	}
	for _, field := range required {
		if field.value == "" {
			return &ValidationError{Field: field.name}
		}
	}
	return nil
}

// AppSettings are the service-level settings kept next to the tenant list.
type AppSettings struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	Sentinel struct {
		APIVersion            string `yaml:"api_version"`
		DefaultIncidentLimit  int    `yaml:"default_incident_limit"`
		RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	} `yaml:"sentinel"`
	Features struct {
		EnableChatInterface      bool `yaml:"enable_chat_interface"`
		EnableIncidentDetails    bool `yaml:"enable_incident_details"`
		EnableMultiTenantQueries bool `yaml:"enable_multi_tenant_queries"`
	} `yaml:"features"`
}

type tenantsFile struct {
	Tenants       []TenantConfig `yaml:"tenants"`
	DefaultTenant string         `yaml:"default_tenant"`
}

// ValidationError is returned when a tenant configuration misses a required field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or empty required field %q", e.Field)
}

// TenantNotFoundError is returned when the requested tenant is not configured.
type TenantNotFoundError struct {
	TenantID string
}

func (e *TenantNotFoundError) Error() string {
	return fmt.Sprintf("tenant %q is not configured", e.TenantID)
}

// TenantAlreadyExistsError is returned when adding a tenant that is already configured.
type TenantAlreadyExistsError struct {
	TenantID string
}

func (e *TenantAlreadyExistsError) Error() string {
	return fmt.Sprintf("tenant %q is already configured", e.TenantID)
}

// StoreOpts are additional options for Store.
type StoreOpts struct {
	// LoggerProvider is a function that provides a logger for the Store.
	LoggerProvider func(ctx context.Context) log.FieldLogger
}

// Store is a YAML-file-backed tenant configuration store.
// All reads and writes go through the files, guarded by a single lock,
// so external edits are picked up on the next call.
type Store struct {
	mu              sync.RWMutex
	tenantsPath     string
	appSettingsPath string
	loggerProvider  func(ctx context.Context) log.FieldLogger
}

// NewStore opens (and if needed initializes) a tenant store in the directory.
// Default configuration files are created when absent.
func NewStore(dir string, opts StoreOpts) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}
	s := &Store{
		tenantsPath:     filepath.Join(dir, tenantsFileName),
		appSettingsPath: filepath.Join(dir, appSettingsFileName),
		loggerProvider:  opts.LoggerProvider,
	}
	if err := s.initDefaults(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initDefaults() error {
	if _, err := os.Stat(s.tenantsPath); os.IsNotExist(err) {
		defaults := tenantsFile{
			Tenants: []TenantConfig{
				{
					TenantID:       "example-tenant-1",
					TenantName:     "Example Tenant 1",
					SubscriptionID: "sub-id-1",
					ResourceGroup:  "rg-sentinel-1",
					WorkspaceName:  "law-sentinel-1",
					Enabled:        true,
					Description:    "Example tenant configuration",
				},
			},
			DefaultTenant: "example-tenant-1",
		}
		if writeErr := s.writeTenantsFile(&defaults); writeErr != nil {
			return writeErr
		}
		authutil.GetLoggerFromProvider(context.Background(), s.loggerProvider).Info(
			"created default tenant configuration", log.String("path", s.tenantsPath))
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", s.tenantsPath, err)
	}

	if _, err := os.Stat(s.appSettingsPath); os.IsNotExist(err) {
		var settings AppSettings
		settings.Server.Host = "0.0.0.0"
		settings.Server.Port = 5000
		settings.Sentinel.APIVersion = "2023-02-01"
		settings.Sentinel.DefaultIncidentLimit = 50
		settings.Sentinel.RequestTimeoutSeconds = 30
		settings.Features.EnableChatInterface = true
		settings.Features.EnableIncidentDetails = true
		settings.Features.EnableMultiTenantQueries = true

		data, marshalErr := yaml.Marshal(&settings)
		if marshalErr != nil {
			return fmt.Errorf("marshal default app settings: %w", marshalErr)
		}
		if writeErr := os.WriteFile(s.appSettingsPath, data, 0o600); writeErr != nil {
			return fmt.Errorf("write %s: %w", s.appSettingsPath, writeErr)
		}
		authutil.GetLoggerFromProvider(context.Background(), s.loggerProvider).Info(
			"created default app settings", log.String("path", s.appSettingsPath))
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", s.appSettingsPath, err)
	}

	return nil
}

// Tenants returns all configured tenants.
func (s *Store) Tenants() ([]TenantConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, err := s.readTenantsFile()
	if err != nil {
		return nil, err
	}
	return file.Tenants, nil
}

// EnabledTenants returns only the tenants that are enabled.
func (s *Store) EnabledTenants() ([]TenantConfig, error) {
	tenants, err := s.Tenants()
	if err != nil {
		return nil, err
	}
	enabled := make([]TenantConfig, 0, len(tenants))
	for _, tenant := range tenants {
		if tenant.Enabled {
			enabled = append(enabled, tenant)
		}
	}
	return enabled, nil
}

// GetTenant returns the configuration of a single tenant.
func (s *Store) GetTenant(tenantID string) (TenantConfig, error) {
	tenants, err := s.Tenants()
	if err != nil {
		return TenantConfig{}, err
	}
	for _, tenant := range tenants {
		if tenant.TenantID == tenantID {
			return tenant, nil
		}
	}
	return TenantConfig{}, &TenantNotFoundError{TenantID: tenantID}
}

// DefaultTenantID returns the configured default tenant id.
func (s *Store) DefaultTenantID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, err := s.readTenantsFile()
	if err != nil {
		return "", err
	}
	return file.DefaultTenant, nil
}

// AddTenant adds a new tenant configuration.
func (s *Store) AddTenant(tenant TenantConfig) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.readTenantsFile()
	if err != nil {
		return err
	}
	for _, existing := range file.Tenants {
		if existing.TenantID == tenant.TenantID {
			return &TenantAlreadyExistsError{TenantID: tenant.TenantID}
		}
	}
	file.Tenants = append(file.Tenants, tenant)
	if err = s.writeTenantsFile(file); err != nil {
		return err
	}
	authutil.GetLoggerFromProvider(context.Background(), s.loggerProvider).Info(
		"tenant added", log.String("tenant_id", tenant.TenantID))
	return nil
}

// UpdateTenant applies a partial update to an existing tenant configuration.
// Only the keys present in updates are changed; the result must still validate.
func (s *Store) UpdateTenant(tenantID string, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.readTenantsFile()
	if err != nil {
		return err
	}
	for i := range file.Tenants {
		if file.Tenants[i].TenantID != tenantID {
			continue
		}
		updated := file.Tenants[i]
		if err = mapstructure.Decode(updates, &updated); err != nil {
			return fmt.Errorf("apply tenant updates: %w", err)
		}
		if err = updated.Validate(); err != nil {
			return err
		}
		file.Tenants[i] = updated
		if err = s.writeTenantsFile(file); err != nil {
			return err
		}
		authutil.GetLoggerFromProvider(context.Background(), s.loggerProvider).Info(
			"tenant updated", log.String("tenant_id", tenantID))
		return nil
	}
	return &TenantNotFoundError{TenantID: tenantID}
}

// RemoveTenant removes a tenant configuration.
func (s *Store) RemoveTenant(tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.readTenantsFile()
	if err != nil {
		return err
	}
	kept := file.Tenants[:0]
	for _, tenant := range file.Tenants {
		if tenant.TenantID != tenantID {
			kept = append(kept, tenant)
		}
	}
	if len(kept) == len(file.Tenants) {
		return &TenantNotFoundError{TenantID: tenantID}
	}
	file.Tenants = kept
	if err = s.writeTenantsFile(file); err != nil {
		return err
	}
	authutil.GetLoggerFromProvider(context.Background(), s.loggerProvider).Info(
		"tenant removed", log.String("tenant_id", tenantID))
	return nil
}

// AppSettings returns the application settings.
func (s *Store) AppSettings() (AppSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.appSettingsPath)
	if err != nil {
		return AppSettings{}, fmt.Errorf("read %s: %w", s.appSettingsPath, err)
	}
	var settings AppSettings
	if err = yaml.Unmarshal(data, &settings); err != nil {
		return AppSettings{}, fmt.Errorf("unmarshal app settings: %w", err)
	}
	return settings, nil
}

func (s *Store) readTenantsFile() (*tenantsFile, error) {
	data, err := os.ReadFile(s.tenantsPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.tenantsPath, err)
	}
	var file tenantsFile
	if err = yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal tenants file: %w", err)
	}
	return &file, nil
}

func (s *Store) writeTenantsFile(file *tenantsFile) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal tenants file: %w", err)
	}
	if err = os.WriteFile(s.tenantsPath, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", s.tenantsPath, err)
	}
	return nil
}
