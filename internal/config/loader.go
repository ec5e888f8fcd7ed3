package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentrouter.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("AGENTROUTER_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	if err := loadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator-supplied
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// envVar binds one environment variable to a config field.
type envVar struct {
	key string
	set func(string) error
}

func str(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

// parsed wraps a parser so that the field is written only on success.
func parsed[T any](dst *T, parse func(string) (T, error)) func(string) error {
	return func(v string) error {
		x, err := parse(v)
		if err != nil {
			return err
		}
		*dst = x
		return nil
	}
}

func atoi(v string) (int, error) { return strconv.Atoi(v) }

func atoi32(v string) (int32, error) {
	n, err := strconv.ParseInt(v, 10, 32)
	return int32(n), err
}

func atoi64(v string) (int64, error) { return strconv.ParseInt(v, 10, 64) }

func atof(v string) (float64, error) { return strconv.ParseFloat(v, 64) }

func envVars(cfg *Config) []envVar {
	return []envVar{
		{"AGENTROUTER_PORT", str(&cfg.Server.Port)},
		{"AGENTROUTER_CORS_ORIGIN", str(&cfg.Server.CORSOrigin)},
		{"AGENTROUTER_DISPATCH_RATE", parsed(&cfg.Server.DispatchRate, atof)},
		{"AGENTROUTER_DISPATCH_BURST", parsed(&cfg.Server.DispatchBurst, atoi)},

		{"DATABASE_URL", str(&cfg.Postgres.DSN)},
		{"AGENTROUTER_PG_MAX_CONNS", parsed(&cfg.Postgres.MaxConns, atoi32)},
		{"AGENTROUTER_PG_MIN_CONNS", parsed(&cfg.Postgres.MinConns, atoi32)},
		{"AGENTROUTER_PG_MAX_CONN_LIFETIME", parsed(&cfg.Postgres.MaxConnLifetime, time.ParseDuration)},
		{"AGENTROUTER_PG_MAX_CONN_IDLE_TIME", parsed(&cfg.Postgres.MaxConnIdleTime, time.ParseDuration)},
		{"AGENTROUTER_PG_HEALTH_CHECK", parsed(&cfg.Postgres.HealthCheck, time.ParseDuration)},

		{"NATS_URL", str(&cfg.NATS.URL)},
		{"AGENTROUTER_NATS_STREAM", str(&cfg.NATS.Stream)},

		{"AGENTROUTER_LOG_LEVEL", str(&cfg.Logging.Level)},
		{"AGENTROUTER_LOG_SERVICE", str(&cfg.Logging.Service)},
		{"AGENTROUTER_LOG_ASYNC", parsed(&cfg.Logging.Async, strconv.ParseBool)},

		{"AGENTROUTER_BREAKER_MAX_FAILURES", parsed(&cfg.Breaker.MaxFailures, atoi)},
		{"AGENTROUTER_BREAKER_TIMEOUT", parsed(&cfg.Breaker.Timeout, time.ParseDuration)},

		{"AGENTROUTER_CACHE_L1_SIZE_MB", parsed(&cfg.Cache.L1MaxSizeMB, atoi64)},
		{"AGENTROUTER_CACHE_L1_TTL", parsed(&cfg.Cache.L1TTL, time.ParseDuration)},
		{"AGENTROUTER_CACHE_L2_BUCKET", str(&cfg.Cache.L2Bucket)},
		{"AGENTROUTER_CACHE_L2_TTL", parsed(&cfg.Cache.L2TTL, time.ParseDuration)},

		{"OTEL_EXPORTER_OTLP_ENDPOINT", str(&cfg.OTEL.Endpoint)},
		{"OTEL_EXPORTER_OTLP_INSECURE", parsed(&cfg.OTEL.Insecure, strconv.ParseBool)},
		{"OTEL_SERVICE_NAME", str(&cfg.OTEL.ServiceName)},

		{"AGENTROUTER_STRATEGY", str(&cfg.Router.Strategy)},
		{"AGENTROUTER_MAX_ATTEMPTS", parsed(&cfg.Router.MaxAttempts, atoi)},
		{"AGENTROUTER_ATTEMPT_TIMEOUT", parsed(&cfg.Router.AttemptTimeout, time.ParseDuration)},
		{"AGENTROUTER_HEALTH_CONCURRENCY", parsed(&cfg.Router.HealthConcurrency, atoi)},

		{"AGENTROUTER_ESCALATION_THRESHOLD", parsed(&cfg.Escalation.Threshold, atof)},
		{"AGENTROUTER_AUTO_ESCALATE", parsed(&cfg.Escalation.AutoEscalate, strconv.ParseBool)},

		{"AGENTROUTER_MCP_ENABLED", parsed(&cfg.MCP.Enabled, strconv.ParseBool)},
		{"AGENTROUTER_MCP_API_KEY", str(&cfg.MCP.APIKey)},
		{"AGENTROUTER_MCP_API_KEY_FILE", str(&cfg.MCP.APIKeyFile)},
	}
}

// loadEnv overlays non-empty environment variables onto cfg. Every value
// that fails to parse is reported; the field keeps its previous value.
func loadEnv(cfg *Config) error {
	var errs []error
	for _, ev := range envVars(cfg) {
		v := os.Getenv(ev.key)
		if v == "" {
			continue
		}
		if err := ev.set(v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", ev.key, v, err))
		}
	}
	return errors.Join(errs...)
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Server.DispatchRate < 0 {
		return errors.New("server.dispatch_rate must be >= 0")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if err := validateRouter(&cfg.Router); err != nil {
		return err
	}
	if cfg.Escalation.Threshold < 0 || cfg.Escalation.Threshold > 1 {
		return errors.New("escalation.threshold must be within [0,1]")
	}
	seen := make(map[string]bool, len(cfg.Agents))
	for i := range cfg.Agents {
		def := &cfg.Agents[i]
		if err := def.Validate(); err != nil {
			return fmt.Errorf("agents[%d]: %w", i, err)
		}
		if seen[def.ID] {
			return fmt.Errorf("agents[%d]: duplicate id %q", i, def.ID)
		}
		seen[def.ID] = true
	}
	return nil
}

func validateRouter(r *Router) error {
	if r.MaxAttempts < 1 {
		return errors.New("router.max_attempts must be >= 1")
	}
	if r.AttemptTimeout <= 0 {
		return errors.New("router.attempt_timeout must be positive")
	}
	if err := r.Weights.Validate(); err != nil {
		return fmt.Errorf("router.weights: %w", err)
	}
	for name, tt := range r.TaskTypes {
		if err := tt.Weights.Validate(); err != nil {
			return fmt.Errorf("router.task_types.%s.weights: %w", name, err)
		}
		if tt.Timeout < 0 {
			return fmt.Errorf("router.task_types.%s.timeout must not be negative", name)
		}
	}
	return nil
}
