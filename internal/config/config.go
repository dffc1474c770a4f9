// Package config loads process configuration from environment
// variables only (no configuration file is read), the same shape and
// library used by the
// kamaljohnson-zero-trust-control-plane example's internal/config
// package: a mapstructure-tagged struct populated by spf13/viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every externally-tunable setting. Fields are named to
// match the environment variables operators set directly.
type Config struct {
	Addr              string        `mapstructure:"ADDR"`
	Env               string        `mapstructure:"APP_ENV"` // "development" or "production"
	MainDBPath        string        `mapstructure:"MAIN_DB_PATH"`
	SampleDBPath      string        `mapstructure:"SAMPLE_DB_PATH"`
	BackupDir         string        `mapstructure:"BACKUP_DIR"`
	TrustRootPath     string        `mapstructure:"TRUST_ROOT_PATH"`
	CanonicalOrigin   string        `mapstructure:"CANONICAL_ORIGIN"`
	MaxBodySize       int64         `mapstructure:"MAX_BODY_SIZE"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	SMTPAddr          string        `mapstructure:"SMTP_ADDR"`
	SMTPFrom          string        `mapstructure:"SMTP_FROM"`
	SMTPUsername      string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword      string        `mapstructure:"SMTP_PASSWORD"`
	SMTPHost          string        `mapstructure:"SMTP_HOST"`
}

// Load populates a Config from the environment, applying defaults for
// anything unset. envPrefix namespaces variables (e.g. "ATTEST") so this
// process doesn't collide with unrelated environment variables when
// deployed alongside other services.
func Load(envPrefix string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("ADDR", "127.0.0.1:8443")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("MAIN_DB_PATH", "attestation.db")
	v.SetDefault("SAMPLE_DB_PATH", "samples.db")
	v.SetDefault("BACKUP_DIR", "")
	v.SetDefault("TRUST_ROOT_PATH", "")
	v.SetDefault("CANONICAL_ORIGIN", "")
	v.SetDefault("MAX_BODY_SIZE", int64(64*1024))
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("SMTP_ADDR", "localhost:25")
	v.SetDefault("SMTP_FROM", "attestation@localhost")

	for _, key := range []string{
		"ADDR", "APP_ENV", "MAIN_DB_PATH", "SAMPLE_DB_PATH", "BACKUP_DIR", "TRUST_ROOT_PATH",
		"CANONICAL_ORIGIN", "MAX_BODY_SIZE", "REQUEST_TIMEOUT", "SMTP_ADDR", "SMTP_FROM",
		"SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_HOST",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}
	return &c, nil
}
