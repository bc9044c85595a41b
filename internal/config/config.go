// Package config loads arca-auth settings from defaults, an optional YAML
// file and ARCA_AUTH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/rezonia/arca-auth/internal/model"
)

// EnvPrefix of environment overrides, e.g. ARCA_AUTH_WSAA_TIMEOUT
const EnvPrefix = "ARCA_AUTH"

// Credential source kinds
const (
	SourceFile  = "file"
	SourceVault = "vault"
)

// Config is the full application configuration
type Config struct {
	Environment string            `mapstructure:"environment" validate:"required,oneof=testing production"`
	TenantID    int64             `mapstructure:"tenant_id" validate:"gte=0"`
	Log         LogConfig         `mapstructure:"log"`
	WSAA        WSAAConfig        `mapstructure:"wsaa"`
	WSFE        WSFEConfig        `mapstructure:"wsfe"`
	Health      HealthConfig      `mapstructure:"health"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Server      ServerConfig      `mapstructure:"server"`
}

// LogConfig selects level and encoder
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// WSAAConfig tunes the ticket exchange and cache
type WSAAConfig struct {
	Endpoint      string        `mapstructure:"endpoint" validate:"omitempty,url"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RenewalMargin time.Duration `mapstructure:"renewal_margin" validate:"gte=0"`
	Coalesce      bool          `mapstructure:"coalesce"`
}

// WSFEConfig tunes authenticated WSFEv1 calls
type WSFEConfig struct {
	Endpoint  string        `mapstructure:"endpoint" validate:"omitempty,url"`
	Operation string        `mapstructure:"operation" validate:"required"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// HealthConfig tunes the service probes
type HealthConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// CredentialsConfig selects where certificate and key come from
type CredentialsConfig struct {
	Source   string      `mapstructure:"source" validate:"oneof=file vault"`
	CertFile string      `mapstructure:"cert_file"`
	KeyFile  string      `mapstructure:"key_file"`
	Vault    VaultConfig `mapstructure:"vault"`
}

// VaultConfig locates the credentials secret
type VaultConfig struct {
	Address string `mapstructure:"address" validate:"omitempty,url"`
	Token   string `mapstructure:"token"`
	Path    string `mapstructure:"path"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port  int  `mapstructure:"port" validate:"min=1,max=65535"`
	Debug bool `mapstructure:"debug"`
}

// Env returns the typed environment
func (c *Config) Env() model.Environment {
	return model.Environment(c.Environment)
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ValidateCredentials checks that the selected credential source is fully
// configured. Only commands that request tickets need it.
func (c *Config) ValidateCredentials() error {
	switch c.Credentials.Source {
	case SourceFile:
		if c.Credentials.CertFile == "" || c.Credentials.KeyFile == "" {
			return errors.New("invalid configuration: credentials.cert_file and credentials.key_file are required for the file source")
		}
	case SourceVault:
		if c.Credentials.Vault.Path == "" {
			return errors.New("invalid configuration: credentials.vault.path is required for the vault source")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", string(model.EnvTesting))
	v.SetDefault("tenant_id", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("wsaa.endpoint", "")
	v.SetDefault("wsaa.timeout", "60s")
	v.SetDefault("wsaa.renewal_margin", "15m")
	v.SetDefault("wsaa.coalesce", false)
	v.SetDefault("wsfe.endpoint", "")
	v.SetDefault("wsfe.operation", "FECAESolicitar")
	v.SetDefault("wsfe.timeout", "60s")
	v.SetDefault("health.timeout", "30s")
	v.SetDefault("credentials.source", SourceFile)
	v.SetDefault("credentials.cert_file", "")
	v.SetDefault("credentials.key_file", "")
	v.SetDefault("credentials.vault.address", "")
	v.SetDefault("credentials.vault.token", "")
	v.SetDefault("credentials.vault.path", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
}

// Load reads the configuration. With an empty path, arca-auth.yaml is looked
// up in the working directory and /etc/arca-auth and may be absent.
// Validation is left to the caller so flags can be applied first.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("arca-auth")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/arca-auth/")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
