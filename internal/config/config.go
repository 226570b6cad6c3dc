package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fingerspell/fingerspell-core/internal/engine"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// EngineConfig carries the adjustable commit-engine parameters. Out-of-range
// values are clamped on load, matching the runtime setters.
type EngineConfig struct {
	Threshold float64 `yaml:"threshold"`
	HoldMS    int     `yaml:"hold_ms"`
}

type ClassifierConfig struct {
	Mode      string   `yaml:"mode"` // mock, exec
	Command   string   `yaml:"command"`
	Labels    []string `yaml:"labels"`
	TimeoutMS int      `yaml:"timeout_ms"`
	Retries   int      `yaml:"retries"`
}

type TranscriptConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Engine      EngineConfig     `yaml:"engine"`
	Classifier  ClassifierConfig `yaml:"classifier"`
	Transcript  TranscriptConfig `yaml:"transcript"`
}

func Default() Config {
	return Config{
		RuntimeName: "fingerspell-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Engine: EngineConfig{
			Threshold: 0.95,
			HoldMS:    600,
		},
		Classifier: ClassifierConfig{
			Mode:      "mock",
			TimeoutMS: 10000,
			Retries:   2,
		},
		Transcript: TranscriptConfig{
			Path:          "./data/fingerspell-transcripts.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.Engine.Threshold = engine.ClampThreshold(cfg.Engine.Threshold)
	cfg.Engine.HoldMS = engine.ClampHoldMS(cfg.Engine.HoldMS)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "FSPELL_RUNTIME_NAME")
	overrideString(&cfg.Environment, "FSPELL_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "FSPELL_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "FSPELL_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "FSPELL_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "FSPELL_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "FSPELL_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "FSPELL_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "FSPELL_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "FSPELL_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "FSPELL_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "FSPELL_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "FSPELL_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "FSPELL_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "FSPELL_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "FSPELL_BUS_CONNECT_TIMEOUT_MS")
	overrideFloat(&cfg.Engine.Threshold, "FSPELL_ENGINE_THRESHOLD")
	overrideInt(&cfg.Engine.HoldMS, "FSPELL_ENGINE_HOLD_MS")
	overrideString(&cfg.Classifier.Mode, "FSPELL_CLASSIFIER_MODE")
	overrideString(&cfg.Classifier.Command, "FSPELL_CLASSIFIER_COMMAND")
	overrideStringSlice(&cfg.Classifier.Labels, "FSPELL_CLASSIFIER_LABELS")
	overrideInt(&cfg.Classifier.TimeoutMS, "FSPELL_CLASSIFIER_TIMEOUT_MS")
	overrideInt(&cfg.Classifier.Retries, "FSPELL_CLASSIFIER_RETRIES")
	overrideString(&cfg.Transcript.Path, "FSPELL_TRANSCRIPT_PATH")
	overrideString(&cfg.Transcript.RetentionMode, "FSPELL_TRANSCRIPT_RETENTION_MODE")
	overrideInt(&cfg.Transcript.RetentionDays, "FSPELL_TRANSCRIPT_RETENTION_DAYS")
	overrideInt(&cfg.Transcript.MaxSessions, "FSPELL_TRANSCRIPT_MAX_SESSIONS")
	overrideBool(&cfg.Transcript.VacuumOnStart, "FSPELL_TRANSCRIPT_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Classifier.Mode {
	case "mock", "exec":
	default:
		return errors.New("classifier.mode must be one of mock|exec")
	}
	if cfg.Classifier.Mode == "exec" && cfg.Classifier.Command == "" {
		return errors.New("classifier.command must be set when mode=exec")
	}
	if cfg.Classifier.TimeoutMS <= 0 {
		return errors.New("classifier.timeout_ms must be positive")
	}
	if cfg.Classifier.Retries < 0 {
		return errors.New("classifier.retries must be >= 0")
	}
	if cfg.Transcript.Path == "" {
		return errors.New("transcript.path must not be empty")
	}
	switch cfg.Transcript.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("transcript.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Transcript.RetentionDays < 0 {
		return errors.New("transcript.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	return nil
}
