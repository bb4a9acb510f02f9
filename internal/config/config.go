package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRequests   int    `yaml:"max_requests"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type EngineConfig struct {
	Mode         string `yaml:"mode"` // mock, exec
	Command      string `yaml:"command"`
	DefaultVoice string `yaml:"default_voice"`
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
}

type TranscriberConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Mode      string `yaml:"mode"` // mock, exec
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
}

type SynthesisConfig struct {
	MaxChars    int      `yaml:"max_chars"`
	MaxWords    int      `yaml:"max_words"`
	MinChars    int      `yaml:"min_chars"`
	MaxTextLen  int      `yaml:"max_text_len"`
	CrossfadeMS int      `yaml:"crossfade_ms"`
	SilenceMS   int      `yaml:"silence_ms"`
	TargetPeak  float64  `yaml:"target_peak"`
	Languages   []string `yaml:"languages"`
}

type CloneConfig struct {
	MaxSizeMB           float64 `yaml:"max_size_mb"`
	MinDurationSec      float64 `yaml:"min_duration_sec"`
	MaxDurationSec      float64 `yaml:"max_duration_sec"`
	OptimalMinSec       float64 `yaml:"optimal_min_sec"`
	OptimalMaxSec       float64 `yaml:"optimal_max_sec"`
	MinSampleRate       int     `yaml:"min_sample_rate"`
	PreferredSampleRate int     `yaml:"preferred_sample_rate"`
}

type VoiceCacheConfig struct {
	TTLDays   int `yaml:"ttl_days"`
	QueueSize int `yaml:"queue_size"`
}

type Config struct {
	ServiceName string            `yaml:"service_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Store       StoreConfig       `yaml:"store"`
	Engine      EngineConfig      `yaml:"engine"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Synthesis   SynthesisConfig   `yaml:"synthesis"`
	Clone       CloneConfig       `yaml:"clone"`
	VoiceCache  VoiceCacheConfig  `yaml:"voice_cache"`
}

func Default() Config {
	return Config{
		ServiceName: "parlance",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path:          "./data/parlance.db",
			RetentionDays: 30,
			MaxRequests:   10000,
		},
		Engine: EngineConfig{
			Mode:         "mock",
			DefaultVoice: "amber",
			SampleRate:   22050,
			Channels:     1,
		},
		Transcriber: TranscriberConfig{
			Enabled: false,
			Mode:    "mock",
		},
		Synthesis: SynthesisConfig{
			MaxChars:    200,
			MaxWords:    60,
			MinChars:    40,
			MaxTextLen:  5000,
			CrossfadeMS: 40,
			SilenceMS:   0,
			TargetPeak:  0.95,
			Languages: []string{
				"en", "es", "fr", "de", "it", "pt", "pl", "tr", "ru",
				"nl", "cs", "ar", "zh-cn", "ja", "hu", "ko", "hi",
			},
		},
		Clone: CloneConfig{
			MaxSizeMB:           10,
			MinDurationSec:      3,
			MaxDurationSec:      30,
			OptimalMinSec:       6,
			OptimalMaxSec:       10,
			MinSampleRate:       16000,
			PreferredSampleRate: 22050,
		},
		VoiceCache: VoiceCacheConfig{
			TTLDays:   10,
			QueueSize: 16,
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
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "PARLANCE_SERVICE_NAME")
	overrideString(&cfg.Environment, "PARLANCE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PARLANCE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PARLANCE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PARLANCE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PARLANCE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PARLANCE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "PARLANCE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "PARLANCE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PARLANCE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "PARLANCE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "PARLANCE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PARLANCE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PARLANCE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PARLANCE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PARLANCE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PARLANCE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "PARLANCE_STORE_PATH")
	overrideInt(&cfg.Store.RetentionDays, "PARLANCE_STORE_RETENTION_DAYS")
	overrideInt(&cfg.Store.MaxRequests, "PARLANCE_STORE_MAX_REQUESTS")
	overrideBool(&cfg.Store.VacuumOnStart, "PARLANCE_STORE_VACUUM_ON_START")
	overrideString(&cfg.Engine.Mode, "PARLANCE_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "PARLANCE_ENGINE_COMMAND")
	overrideString(&cfg.Engine.DefaultVoice, "PARLANCE_ENGINE_DEFAULT_VOICE")
	overrideInt(&cfg.Engine.SampleRate, "PARLANCE_ENGINE_SAMPLE_RATE")
	overrideInt(&cfg.Engine.Channels, "PARLANCE_ENGINE_CHANNELS")
	overrideBool(&cfg.Transcriber.Enabled, "PARLANCE_TRANSCRIBER_ENABLED")
	overrideString(&cfg.Transcriber.Mode, "PARLANCE_TRANSCRIBER_MODE")
	overrideString(&cfg.Transcriber.Command, "PARLANCE_TRANSCRIBER_COMMAND")
	overrideString(&cfg.Transcriber.ModelPath, "PARLANCE_TRANSCRIBER_MODEL_PATH")
	overrideInt(&cfg.Synthesis.MaxChars, "PARLANCE_SYNTHESIS_MAX_CHARS")
	overrideInt(&cfg.Synthesis.MaxWords, "PARLANCE_SYNTHESIS_MAX_WORDS")
	overrideInt(&cfg.Synthesis.MinChars, "PARLANCE_SYNTHESIS_MIN_CHARS")
	overrideInt(&cfg.Synthesis.MaxTextLen, "PARLANCE_SYNTHESIS_MAX_TEXT_LEN")
	overrideInt(&cfg.Synthesis.CrossfadeMS, "PARLANCE_SYNTHESIS_CROSSFADE_MS")
	overrideInt(&cfg.Synthesis.SilenceMS, "PARLANCE_SYNTHESIS_SILENCE_MS")
	overrideFloat(&cfg.Synthesis.TargetPeak, "PARLANCE_SYNTHESIS_TARGET_PEAK")
	overrideStringSlice(&cfg.Synthesis.Languages, "PARLANCE_SYNTHESIS_LANGUAGES")
	overrideFloat(&cfg.Clone.MaxSizeMB, "PARLANCE_CLONE_MAX_SIZE_MB")
	overrideFloat(&cfg.Clone.MinDurationSec, "PARLANCE_CLONE_MIN_DURATION_SEC")
	overrideFloat(&cfg.Clone.MaxDurationSec, "PARLANCE_CLONE_MAX_DURATION_SEC")
	overrideInt(&cfg.Clone.MinSampleRate, "PARLANCE_CLONE_MIN_SAMPLE_RATE")
	overrideInt(&cfg.VoiceCache.TTLDays, "PARLANCE_VOICE_CACHE_TTL_DAYS")
	overrideInt(&cfg.VoiceCache.QueueSize, "PARLANCE_VOICE_CACHE_QUEUE_SIZE")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if cfg.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be >= 0")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Engine.SampleRate <= 0 {
		return errors.New("engine.sample_rate must be positive")
	}
	if cfg.Engine.Channels <= 0 {
		return errors.New("engine.channels must be positive")
	}
	if cfg.Transcriber.Enabled {
		switch cfg.Transcriber.Mode {
		case "mock", "exec":
		default:
			return errors.New("transcriber.mode must be one of mock|exec")
		}
		if cfg.Transcriber.Mode == "exec" && cfg.Transcriber.Command == "" {
			return errors.New("transcriber.command must be set when mode=exec")
		}
	}
	if cfg.Synthesis.MaxChars <= 0 {
		return errors.New("synthesis.max_chars must be positive")
	}
	if cfg.Synthesis.MaxWords <= 0 {
		return errors.New("synthesis.max_words must be positive")
	}
	if cfg.Synthesis.MinChars < 0 {
		return errors.New("synthesis.min_chars must be >= 0")
	}
	if cfg.Synthesis.MaxTextLen <= 0 {
		return errors.New("synthesis.max_text_len must be positive")
	}
	if cfg.Synthesis.CrossfadeMS < 0 {
		return errors.New("synthesis.crossfade_ms must be >= 0")
	}
	if cfg.Synthesis.SilenceMS < 0 {
		return errors.New("synthesis.silence_ms must be >= 0")
	}
	if cfg.Synthesis.TargetPeak <= 0 || cfg.Synthesis.TargetPeak > 1 {
		return errors.New("synthesis.target_peak must be in (0, 1]")
	}
	if len(cfg.Synthesis.Languages) == 0 {
		return errors.New("synthesis.languages must not be empty")
	}
	if cfg.Clone.MaxSizeMB <= 0 {
		return errors.New("clone.max_size_mb must be positive")
	}
	if cfg.Clone.MinDurationSec <= 0 || cfg.Clone.MaxDurationSec <= cfg.Clone.MinDurationSec {
		return errors.New("clone duration bounds must satisfy 0 < min < max")
	}
	if cfg.Clone.MinSampleRate <= 0 {
		return errors.New("clone.min_sample_rate must be positive")
	}
	if cfg.VoiceCache.TTLDays <= 0 {
		return errors.New("voice_cache.ttl_days must be positive")
	}
	if cfg.VoiceCache.QueueSize <= 0 {
		return errors.New("voice_cache.queue_size must be positive")
	}
	return nil
}
