// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package appconfig loads process configuration: a mapstructure-tagged
// struct populated by viper with AutomaticEnv overrides.
package appconfig

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/viper"

	pkgerrors "rag-platform/pkg/errors"
	"rag-platform/pkg/log"
	"rag-platform/pkg/secrets"
)

// Config is the complete process configuration for both the API and
// worker binaries.
type Config struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`

	AppDomain       string `mapstructure:"app_domain"`
	AppAPISubdomain string `mapstructure:"app_api_subdomain"`
	AppSecretKey    string `mapstructure:"app_secret_key"`

	IloveapiBaseURL   string `mapstructure:"iloveapi_base_url"`
	IloveapiPublicKey string `mapstructure:"iloveapi_public_key"`
	IloveapiSecretKey string `mapstructure:"iloveapi_secret_key"`

	RedisURL  string `mapstructure:"redis_url"`
	RedisHost string `mapstructure:"redis_host"`
	RedisPort string `mapstructure:"redis_port"`

	SBURL        string `mapstructure:"sb_url"`
	SBRestURL    string `mapstructure:"sb_rest_url"`
	SBAnonKey    string `mapstructure:"sb_anon_key"`
	SBServiceKey string `mapstructure:"sb_service_key"`

	SecretsProvider string `mapstructure:"secrets_provider"` // vault | env | memory

	Log log.Config `mapstructure:"log"`

	WorkerConcurrency int           `mapstructure:"worker_concurrency"`
	LockDuration      time.Duration `mapstructure:"lock_duration"`
	LockRenewTime     time.Duration `mapstructure:"lock_renew_time"`
	StalledInterval   time.Duration `mapstructure:"stalled_interval"`

	RateLimitTTL          time.Duration `mapstructure:"rate_limit_ttl"`
	RateLimitMax          int           `mapstructure:"rate_limit_max"`
	RateLimitMaxAttempt   int           `mapstructure:"rate_limit_max_attempt"`
	RateLimitGlobalPerSec float64       `mapstructure:"rate_limit_global_per_sec"`
	RateLimitGlobalBurst  int           `mapstructure:"rate_limit_global_burst"`

	DailySharedCreditLimit int `mapstructure:"daily_shared_credit_limit"`

	LedgerDSN  string `mapstructure:"ledger_dsn"`
	JobLogDSN  string `mapstructure:"joblog_dsn"`
	QueueDSN   string `mapstructure:"queue_dsn"`

	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`

	TracingEnable         bool   `mapstructure:"tracing_enable"`
	TracingServiceName    string `mapstructure:"tracing_service_name"`
	TracingExportEndpoint string `mapstructure:"tracing_export_endpoint"`
	TracingInsecure       bool   `mapstructure:"tracing_insecure"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 4000)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("secrets_provider", "env")
	v.SetDefault("worker_concurrency", 2)
	v.SetDefault("lock_duration", 40*time.Second)
	v.SetDefault("lock_renew_time", 20*time.Second)
	v.SetDefault("stalled_interval", 60*time.Second)
	v.SetDefault("rate_limit_ttl", 60*time.Second)
	v.SetDefault("rate_limit_max", 250)
	v.SetDefault("rate_limit_max_attempt", 3)
	v.SetDefault("rate_limit_global_per_sec", 50)
	v.SetDefault("rate_limit_global_burst", 100)
	v.SetDefault("daily_shared_credit_limit", 70)
	v.SetDefault("reconcile_interval", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("tracing_service_name", "filebuds-pipeline")
}

// Load builds a Config from environment variables
// (PORT, HOST, APP_DOMAIN, APP_API_SUBDOMAIN, APP_SECRET_KEY,
// ILOVEAPI_PUBLIC_KEY, ILOVEAPI_SECRET_KEY, REDIS_URL, REDIS_HOST,
// REDIS_PORT, SB_URL, SB_REST_URL, SB_ANON_KEY, SB_SERVICE_KEY), using a
// viper.AutomaticEnv() + SetEnvKeyReplacer pattern.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bind := func(key, env string) { _ = v.BindEnv(key, env) }
	bind("port", "PORT")
	bind("host", "HOST")
	bind("app_domain", "APP_DOMAIN")
	bind("app_api_subdomain", "APP_API_SUBDOMAIN")
	bind("app_secret_key", "APP_SECRET_KEY")
	bind("iloveapi_base_url", "ILOVEAPI_BASE_URL")
	bind("iloveapi_public_key", "ILOVEAPI_PUBLIC_KEY")
	bind("iloveapi_secret_key", "ILOVEAPI_SECRET_KEY")
	bind("redis_url", "REDIS_URL")
	bind("redis_host", "REDIS_HOST")
	bind("redis_port", "REDIS_PORT")
	bind("sb_url", "SB_URL")
	bind("sb_rest_url", "SB_REST_URL")
	bind("sb_anon_key", "SB_ANON_KEY")
	bind("sb_service_key", "SB_SERVICE_KEY")
	bind("secrets_provider", "SECRETS_PROVIDER")
	bind("tracing_enable", "TRACING_ENABLE")
	bind("tracing_service_name", "TRACING_SERVICE_NAME")
	bind("tracing_export_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	bind("tracing_insecure", "TRACING_INSECURE")
	bind("ledger_dsn", "LEDGER_DSN")
	bind("joblog_dsn", "JOBLOG_DSN")
	bind("queue_dsn", "QUEUE_DSN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pkgerrors.Wrap(err, "appconfig: unmarshal")
	}
	return &cfg, nil
}

// ResolveSecrets replaces AppSecretKey/IloveapiSecretKey with values
// from the configured secrets.Store when they were not already set
// directly by environment variables.
func (c *Config) ResolveSecrets(ctx context.Context, store secrets.Store) error {
	if c.AppSecretKey == "" {
		if v, err := store.Get(ctx, "APP_SECRET_KEY"); err == nil {
			c.AppSecretKey = v
		}
	}
	if c.IloveapiSecretKey == "" {
		if v, err := store.Get(ctx, "ILOVEAPI_SECRET_KEY"); err == nil {
			c.IloveapiSecretKey = v
		}
	}
	return nil
}
