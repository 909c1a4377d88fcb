package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// applyEnvOverrides applies selected runtime environment variables into config.
// It returns true when any value changed so callers can persist updated config.
func applyEnvOverrides(cfg *Config) bool {
	if cfg == nil {
		return false
	}

	changed := false

	setString := func(dst *string, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		if *dst != value {
			*dst = value
			changed = true
		}
	}
	setInt := func(dst *int, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		if *dst != parsed {
			*dst = parsed
			changed = true
		}
	}
	setBool := func(dst *bool, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return
		}
		if *dst != parsed {
			*dst = parsed
			changed = true
		}
	}

	env := func(keys ...string) string {
		for _, key := range keys {
			if value := strings.TrimSpace(os.Getenv(key)); value != "" {
				return value
			}
		}
		return ""
	}

	setString(&cfg.Storage.Type, env("WAGATEWAY_STORAGE_TYPE"))
	setString(&cfg.Storage.DatabaseURL, env("WAGATEWAY_STORAGE_DATABASE_URL", "DATABASE_URL"))
	setString(&cfg.Storage.FilePath, env("WAGATEWAY_STORAGE_FILE_PATH"))
	setBool(&cfg.Storage.SSLEnabled, env("WAGATEWAY_STORAGE_SSL_ENABLED"))

	// If storage type is postgres but no database URL was resolved yet,
	// build one from individual POSTGRES_* env vars.
	if strings.EqualFold(cfg.Storage.Type, "postgres") && strings.TrimSpace(cfg.Storage.DatabaseURL) == "" {
		pgUser := strings.TrimSpace(os.Getenv("POSTGRES_USER"))
		pgPass := strings.TrimSpace(os.Getenv("POSTGRES_PASSWORD"))
		pgDB := strings.TrimSpace(os.Getenv("POSTGRES_DB"))
		pgHost := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
		if pgHost == "" {
			pgHost = "postgres"
		}
		if pgUser != "" && pgPass != "" && pgDB != "" {
			built := fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable", pgUser, pgPass, pgHost, pgDB)
			setString(&cfg.Storage.DatabaseURL, built)
		}
	}

	setString(&cfg.Device.Type, env("WAGATEWAY_DEVICE_TYPE"))
	setString(&cfg.Device.Path, env("WAGATEWAY_DEVICE_PATH"))
	setString(&cfg.Device.DatabaseURL, env("WAGATEWAY_DEVICE_DATABASE_URL"))

	setString(&cfg.Webhook.DefaultURL, env("WAGATEWAY_WEBHOOK_URL"))
	setString(&cfg.Webhook.Secret, env("WAGATEWAY_WEBHOOK_SECRET"))

	setBool(&cfg.Broker.Enabled, env("WAGATEWAY_BROKER_ENABLED"))
	setString(&cfg.Broker.URL, env("WAGATEWAY_BROKER_URL", "AMQP_URL"))
	setString(&cfg.Broker.Exchange, env("WAGATEWAY_BROKER_EXCHANGE"))

	setString(&cfg.Blob.Type, env("WAGATEWAY_BLOB_TYPE"))
	setString(&cfg.Blob.BasePath, env("WAGATEWAY_BLOB_BASE_PATH"))
	setString(&cfg.Blob.BaseURL, env("WAGATEWAY_BLOB_BASE_URL"))
	setString(&cfg.Blob.Endpoint, env("WAGATEWAY_BLOB_ENDPOINT", "S3_ENDPOINT"))
	setString(&cfg.Blob.AccessKey, env("WAGATEWAY_BLOB_ACCESS_KEY", "S3_ACCESS_KEY"))
	setString(&cfg.Blob.SecretKey, env("WAGATEWAY_BLOB_SECRET_KEY", "S3_SECRET_KEY"))
	setString(&cfg.Blob.Bucket, env("WAGATEWAY_BLOB_BUCKET", "S3_BUCKET"))
	setBool(&cfg.Blob.UseSSL, env("WAGATEWAY_BLOB_USE_SSL"))

	setInt(&cfg.Gateway.RetryDelaySeconds, env("WAGATEWAY_RETRY_DELAY_SECONDS"))
	setInt(&cfg.Gateway.CloseTimeoutSeconds, env("WAGATEWAY_CLOSE_TIMEOUT_SECONDS"))
	setBool(&cfg.Gateway.RestoreOnBoot, env("WAGATEWAY_RESTORE_ON_BOOT"))
	setBool(&cfg.Gateway.PrintQR, env("WAGATEWAY_PRINT_QR"))

	setString(&cfg.Logging.Level, env("WAGATEWAY_LOG_LEVEL", "LOG_LEVEL"))

	return changed
}
