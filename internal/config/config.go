// Package config provides the configuration structure for the chapter audio service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Storage backends.
const (
	StorageFilesystem = "filesystem"
	StorageNATS       = "nats"
)

// Chapter repository drivers.
const (
	DatabaseSQLite = "sqlite"
	DatabaseMemory = "memory"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr             string `toml:"listen_addr"`
	PublicBaseURL          string `toml:"public_base_url"`
	ReadTimeoutSeconds     int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `toml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

// TTSConfig holds the speech provider and fallback settings.
type TTSConfig struct {
	BaseURL            string `toml:"base_url"`
	APIKey             string `toml:"api_key"`
	APIKeyEnv          string `toml:"api_key_env"`
	ModelID            string `toml:"model_id"`
	OutputFormat       string `toml:"output_format"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	MinAudioBytes      int    `toml:"min_audio_bytes"`
	PlaceholderSeconds int    `toml:"placeholder_seconds"`
}

// StorageConfig selects where artifacts live.
type StorageConfig struct {
	Backend    string `toml:"backend"`
	AudioDir   string `toml:"audio_dir"`
	NATSBucket string `toml:"nats_bucket"`
}

// DatabaseConfig selects the chapter repository.
type DatabaseConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	Enabled          bool   `toml:"enabled"`
	URL              string `toml:"url"`
	GenerateSubject  string `toml:"generate_subject"`
	GeneratedSubject string `toml:"generated_subject"`
	QueueGroup       string `toml:"queue_group"`
	MaxInFlight      int    `toml:"max_in_flight"`
}

// AuthConfig maps bearer tokens to user ids.
type AuthConfig struct {
	Tokens map[string]string `toml:"tokens"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	TTS      TTSConfig      `toml:"tts"`
	Storage  StorageConfig  `toml:"storage"`
	Database DatabaseConfig `toml:"database"`
	NATS     NATSConfig     `toml:"nats"`
	Auth     AuthConfig     `toml:"auth"`
	Paths    PathsConfig    `toml:"paths"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// Load loads the configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile loads the configuration from an explicit TOML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes TOML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	setString(&c.Server.ListenAddr, ":8080")
	setInt(&c.Server.ReadTimeoutSeconds, 15)
	setInt(&c.Server.WriteTimeoutSeconds, 180)
	setInt(&c.Server.ShutdownTimeoutSeconds, 10)

	setString(&c.TTS.BaseURL, "https://api.elevenlabs.io")
	setString(&c.TTS.APIKeyEnv, "ELEVENLABS_API_KEY")
	setString(&c.TTS.ModelID, "eleven_multilingual_v2")
	setString(&c.TTS.OutputFormat, "mp3_44100_128")
	setInt(&c.TTS.TimeoutSeconds, 60)
	setInt(&c.TTS.MinAudioBytes, 1000)
	setInt(&c.TTS.PlaceholderSeconds, 2)

	setString(&c.Storage.Backend, StorageFilesystem)
	setString(&c.Storage.AudioDir, "uploads/audio")
	setString(&c.Storage.NATSBucket, "CHAPTER_AUDIO")

	setString(&c.Database.Driver, DatabaseSQLite)
	setString(&c.Database.Path, "data/chapters.db")

	setString(&c.NATS.URL, "nats://127.0.0.1:4222")
	setString(&c.NATS.GenerateSubject, "chapter.audio.generate")
	setString(&c.NATS.GeneratedSubject, "chapter.audio.generated")
	setString(&c.NATS.QueueGroup, "chapter-audio-workers")
	setInt(&c.NATS.MaxInFlight, 8)

	setString(&c.Paths.BaseLogsDir, os.TempDir())
	setString(&c.Metrics.Path, "/metrics")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageFilesystem, StorageNATS:
	default:
		return fmt.Errorf("%w: storage.backend %q is not one of %q, %q",
			ErrInvalidConfig, c.Storage.Backend, StorageFilesystem, StorageNATS)
	}

	if c.Storage.Backend == StorageNATS && !c.NATS.Enabled {
		return fmt.Errorf("%w: storage.backend %q requires nats.enabled", ErrInvalidConfig, StorageNATS)
	}

	switch c.Database.Driver {
	case DatabaseSQLite, DatabaseMemory:
	default:
		return fmt.Errorf("%w: database.driver %q is not one of %q, %q",
			ErrInvalidConfig, c.Database.Driver, DatabaseSQLite, DatabaseMemory)
	}

	if c.Server.PublicBaseURL != "" {
		parsed, err := url.Parse(c.Server.PublicBaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%w: server.public_base_url %q must be an absolute URL",
				ErrInvalidConfig, c.Server.PublicBaseURL)
		}
	}

	if c.TTS.MinAudioBytes < 0 || c.TTS.PlaceholderSeconds < 0 || c.TTS.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: tts sizes and durations must not be negative", ErrInvalidConfig)
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("%w: metrics.path %q must start with /", ErrInvalidConfig, c.Metrics.Path)
	}

	return nil
}

// ResolveAPIKey returns tts.api_key, or the value of tts.api_key_env.
func (c *Config) ResolveAPIKey() string {
	if c.TTS.APIKey != "" {
		return c.TTS.APIKey
	}

	return os.Getenv(c.TTS.APIKeyEnv)
}

// ProviderTimeout is the per-call synthesis deadline.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.TTS.TimeoutSeconds) * time.Second
}

// PlaceholderLength is the duration of the silent fallback artifact.
func (c *Config) PlaceholderLength() time.Duration {
	return time.Duration(c.TTS.PlaceholderSeconds) * time.Second
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setInt(field *int, value int) {
	if *field == 0 {
		*field = value
	}
}
