package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/datchat/internal/errs"
)

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(string) (string, bool)

// EnvPrefix starts every environment override.
const EnvPrefix = "DATCHAT_"

func applyEnv(cfg *Config, lookup LookupFunc) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"MODE", &cfg.Mode},
		{"DB_ENGINE", &cfg.Connection.Engine},
		{"DB_FILENAME", &cfg.Connection.Filename},
		{"DB_SQLITE_DIR", &cfg.Connection.SQLiteDir},
		{"DB_USER", &cfg.Connection.Username},
		{"DB_PASSWORD", &cfg.Connection.Password},
		{"DB_HOST", &cfg.Connection.Host},
		{"DB_NAME", &cfg.Connection.Database},
		{"DB_SSLMODE", &cfg.Connection.SSLMode},
		{"SCHEMA_FILE", &cfg.Schema.File},
		{"OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint},
		{"OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKey},
		{"OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretKey},
		{"OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket},
		{"SQL_MODEL", &cfg.Models.SQL.Model},
		{"SQL_API_KEY", &cfg.Models.SQL.APIKey},
		{"SQL_BASE_URL", &cfg.Models.SQL.BaseURL},
		{"RESPONSE_MODEL", &cfg.Models.Response.Model},
		{"RESPONSE_API_KEY", &cfg.Models.Response.APIKey},
		{"RESPONSE_BASE_URL", &cfg.Models.Response.BaseURL},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
		{"LOG_DIR", &cfg.Log.Dir},
		{"HTTP_ADDR", &cfg.Server.Address},
	}
	for _, s := range strs {
		applyString(lookup, s.key, s.dst)
	}

	if err := applyInt(lookup, "DB_PORT", &cfg.Connection.Port); err != nil {
		return err
	}
	if err := applyInt(lookup, "MAX_REGENERATIONS", &cfg.Pipeline.MaxRegenerations); err != nil {
		return err
	}
	if err := applyInt(lookup, "MAX_RESULT_ROWS", &cfg.Pipeline.MaxResultRows); err != nil {
		return err
	}
	if err := applyDuration(lookup, "QUERY_TIMEOUT", &cfg.Pipeline.QueryTimeout); err != nil {
		return err
	}
	if err := applyBool(lookup, "OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return err
	}
	if err := applyBool(lookup, "VERIFY_ENDPOINTS", &cfg.VerifyEndpoints); err != nil {
		return err
	}
	if err := applyFloat(lookup, "HTTP_RATE", &cfg.Server.RequestsPerSecond); err != nil {
		return err
	}
	return nil
}

func applyString(lookup LookupFunc, key string, dst *string) {
	if raw, ok := lookup(EnvPrefix + key); ok {
		*dst = strings.TrimSpace(raw)
	}
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(EnvPrefix + key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return envError(key, raw, err)
	}
	*dst = v
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(EnvPrefix + key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return envError(key, raw, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(EnvPrefix + key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return envError(key, raw, err)
	}
	*dst = v
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(EnvPrefix + key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return envError(key, raw, err)
	}
	*dst = v
	return nil
}

func envError(key, raw string, err error) error {
	return errs.Wrap(errs.ErrKindConfiguration, "invalid "+EnvPrefix+key+" value "+strconv.Quote(raw), err)
}
