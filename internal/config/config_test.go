// Package config_test tests the configuration loading for the chapter audio service.
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[server]
listen_addr = ":9090"
public_base_url = "https://books.example.com"

[tts]
base_url = "http://tts.internal"
api_key = "secret"
timeout_seconds = 30
min_audio_bytes = 2048
placeholder_seconds = 3

[storage]
backend = "nats"
nats_bucket = "AUDIO_FILES"

[database]
driver = "memory"

[nats]
enabled = true
url = "nats://127.0.0.1:4222"

[auth.tokens]
"token-a" = "alice"

[paths]
base_logs_dir = "/var/log/chapter-audio"
`

	cfg, err := config.Parse([]byte(tomlData))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, "https://books.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, "http://tts.internal", cfg.TTS.BaseURL)
	assert.Equal(t, "secret", cfg.ResolveAPIKey())
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout())
	assert.Equal(t, 2048, cfg.TTS.MinAudioBytes)
	assert.Equal(t, 3*time.Second, cfg.PlaceholderLength())
	assert.Equal(t, config.StorageNATS, cfg.Storage.Backend)
	assert.Equal(t, "AUDIO_FILES", cfg.Storage.NATSBucket)
	assert.Equal(t, config.DatabaseMemory, cfg.Database.Driver)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "chapter.audio.generate", cfg.NATS.GenerateSubject)
	assert.Equal(t, 8, cfg.NATS.MaxInFlight)
	assert.Equal(t, map[string]string{"token-a": "alice"}, cfg.Auth.Tokens)
	assert.Equal(t, "/var/log/chapter-audio", cfg.Paths.BaseLogsDir)
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 60*time.Second, cfg.ProviderTimeout())
	assert.Equal(t, 1000, cfg.TTS.MinAudioBytes)
	assert.Equal(t, 2*time.Second, cfg.PlaceholderLength())
	assert.Equal(t, config.StorageFilesystem, cfg.Storage.Backend)
	assert.Equal(t, config.DatabaseSQLite, cfg.Database.Driver)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.NATS.Enabled)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown backend":   "[storage]\nbackend = \"s3\"",
		"nats without nats": "[storage]\nbackend = \"nats\"",
		"unknown driver":    "[database]\ndriver = \"postgres\"",
		"relative base url": "[server]\npublic_base_url = \"/audio\"",
		"negative sizes":    "[tts]\nmin_audio_bytes = -1",
		"metrics path":      "[metrics]\npath = \"metrics\"",
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Parse([]byte(data))
			require.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Server: config.ServerConfig{ListenAddr: ":7000"}}

	data, err := toml.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "project.toml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", loaded.Server.ListenAddr)

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestResolveAPIKeyFromEnv(t *testing.T) {
	t.Setenv("CHAPTER_AUDIO_TEST_KEY", "from-env")

	cfg, err := config.Parse([]byte("[tts]\napi_key_env = \"CHAPTER_AUDIO_TEST_KEY\""))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.ResolveAPIKey())
}
