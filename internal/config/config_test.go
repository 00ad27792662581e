package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envBindings {
		for _, env := range envs {
			t.Setenv(env, "")
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, ProviderGemini, cfg.Provider)
	require.Empty(t, cfg.APIKey)
	require.Equal(t, DefaultModels, cfg.Models)
	require.Nil(t, cfg.Temperature)
	require.True(t, cfg.CacheWorkingModel)
	require.False(t, cfg.StrictImage)
	require.Equal(t, ".", cfg.StaticDir)
	require.Equal(t, []string{"script.js", "style.css"}, cfg.StaticFiles)
	require.Equal(t, 60*time.Second, cfg.ProviderTimeout)
	require.Equal(t, "https://api.openai.com/v1", cfg.OpenAIBaseURL)
	require.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_PROVIDER", "OpenAI")
	t.Setenv("CHAT_MODELS", " gpt-4o-mini , ,gpt-4o ")
	t.Setenv("CHAT_TEMPERATURE", "0.4")
	t.Setenv("CHAT_CACHE_WORKING_MODEL", "false")
	t.Setenv("CHAT_STRICT_IMAGE", "true")
	t.Setenv("CHAT_STATIC_FILES", "*")
	t.Setenv("CHAT_PROVIDER_TIMEOUT", "15s")
	t.Setenv("CHAT_LOG_LEVEL", "debug")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, ProviderOpenAI, cfg.Provider)
	require.Equal(t, []string{"gpt-4o-mini", "gpt-4o"}, cfg.Models)
	require.NotNil(t, cfg.Temperature)
	require.InDelta(t, 0.4, *cfg.Temperature, 1e-6)
	require.False(t, cfg.CacheWorkingModel)
	require.True(t, cfg.StrictImage)
	require.Equal(t, []string{"*"}, cfg.StaticFiles)
	require.Equal(t, 15*time.Second, cfg.ProviderTimeout)
	require.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_APIKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("MY_SECRET_KEY", "secondary")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "secondary", cfg.APIKey)

	t.Setenv("GEMINI_API_KEY", "primary")
	cfg, err = Load(nil)
	require.NoError(t, err)
	require.Equal(t, "primary", cfg.APIKey)
}

func TestLoad_Addr(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Addr)

	t.Setenv("CHAT_ADDR", "127.0.0.1:7000")
	cfg, err = Load(nil)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_STATIC_DIR", "/srv/env")

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.String("addr", "", "")
	fs.String("static-dir", "", "")
	fs.String("log-level", "", "")
	fs.String("unrelated", "x", "")
	require.NoError(t, fs.Parse([]string{"--addr", ":9999", "--static-dir", "/srv/flag"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, "/srv/flag", cfg.StaticDir)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  string
		val  string
	}{
		{name: "provider", env: "CHAT_PROVIDER", val: "cohere"},
		{name: "temperature range", env: "CHAT_TEMPERATURE", val: "3.5"},
		{name: "temperature syntax", env: "CHAT_TEMPERATURE", val: "warm"},
		{name: "timeout", env: "CHAT_PROVIDER_TIMEOUT", val: "soon"},
		{name: "log level", env: "CHAT_LOG_LEVEL", val: "trace"},
		{name: "base url", env: "OPENAI_BASE_URL", val: "not a url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.env, tc.val)
			_, err := Load(nil)
			require.Error(t, err)
		})
	}
}
