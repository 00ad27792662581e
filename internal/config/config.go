// Package config resolves runtime settings from flags, the environment and
// defaults, in that order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	defaultAddr = ":8080"
)

var DefaultModels = []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"}

type Config struct {
	Addr              string `validate:"required"`
	Provider          string `validate:"oneof=gemini openai"`
	APIKey            string
	APIKeyParam       string
	Models            []string `validate:"dive,required"`
	SystemPrompt      string
	Temperature       *float32 `validate:"omitempty,gte=0,lte=2"`
	CacheWorkingModel bool
	StrictImage       bool
	StaticDir         string `validate:"required"`
	StaticFiles       []string
	ExchangeTable     string
	ProviderTimeout   time.Duration `validate:"gt=0"`
	OpenAIBaseURL     string        `validate:"omitempty,url"`
	LogLevel          string        `validate:"oneof=debug info warn error"`
}

// envBindings maps each key to the environment variables that may carry it.
// When several are listed the first non-empty one wins.
var envBindings = map[string][]string{
	"addr":                {"CHAT_ADDR"},
	"port":                {"PORT"},
	"provider":            {"CHAT_PROVIDER"},
	"api_key":             {"GEMINI_API_KEY", "MY_SECRET_KEY"},
	"api_key_param":       {"CHAT_API_KEY_PARAM"},
	"models":              {"CHAT_MODELS"},
	"system_prompt":       {"CHAT_SYSTEM_PROMPT"},
	"temperature":         {"CHAT_TEMPERATURE"},
	"cache_working_model": {"CHAT_CACHE_WORKING_MODEL"},
	"strict_image":        {"CHAT_STRICT_IMAGE"},
	"static_dir":          {"CHAT_STATIC_DIR"},
	"static_files":        {"CHAT_STATIC_FILES"},
	"exchange_table":      {"CHAT_EXCHANGE_TABLE"},
	"provider_timeout":    {"CHAT_PROVIDER_TIMEOUT"},
	"openai_base_url":     {"OPENAI_BASE_URL"},
	"log_level":           {"CHAT_LOG_LEVEL"},
}

// Load reads the configuration. Flags in fs are bound to the key with the
// same name once dashes become underscores; fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("models", strings.Join(DefaultModels, ","))
	v.SetDefault("cache_working_model", true)
	v.SetDefault("strict_image", false)
	v.SetDefault("static_dir", ".")
	v.SetDefault("static_files", "script.js,style.css")
	v.SetDefault("provider_timeout", "60s")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("log_level", "info")

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return Config{}, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}
	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, ok := envBindings[key]; !ok {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = fmt.Errorf("config: bind flag %s: %w", f.Name, err)
			}
		})
		if bindErr != nil {
			return Config{}, bindErr
		}
	}

	cfg := Config{
		Addr:              resolveAddr(v.GetString("addr"), v.GetString("port")),
		Provider:          strings.ToLower(strings.TrimSpace(v.GetString("provider"))),
		APIKey:            strings.TrimSpace(v.GetString("api_key")),
		APIKeyParam:       strings.TrimSpace(v.GetString("api_key_param")),
		Models:            splitList(v.GetString("models")),
		SystemPrompt:      v.GetString("system_prompt"),
		CacheWorkingModel: v.GetBool("cache_working_model"),
		StrictImage:       v.GetBool("strict_image"),
		StaticDir:         v.GetString("static_dir"),
		StaticFiles:       splitList(v.GetString("static_files")),
		ExchangeTable:     strings.TrimSpace(v.GetString("exchange_table")),
		ProviderTimeout:   v.GetDuration("provider_timeout"),
		OpenAIBaseURL:     strings.TrimSpace(v.GetString("openai_base_url")),
		LogLevel:          strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
	}
	if raw := strings.TrimSpace(v.GetString("temperature")); raw != "" {
		t, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return Config{}, fmt.Errorf("config: temperature: %w", err)
		}
		f := float32(t)
		cfg.Temperature = &f
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps LogLevel onto slog.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func resolveAddr(addr, port string) string {
	if addr = strings.TrimSpace(addr); addr != "" {
		return addr
	}
	if port = strings.TrimSpace(port); port != "" {
		return ":" + port
	}
	return defaultAddr
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
