package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validViper() *viper.Viper {
	v := viper.New()
	v.Set("TELEGRAM_BOT_TOKEN", "123456:telegram-secret-token")
	v.Set("OPENAI_API_KEY", "sk-test-abcdefghijkl")
	return v
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(validViper())
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, 100, cfg.Memory.MaxContextMessages)
	assert.Equal(t, 2*time.Hour, cfg.Memory.ConsolidationInterval)
	assert.Equal(t, 50, cfg.Memory.MessageThreshold)
	assert.Equal(t, 20, cfg.Memory.SeenInfoThreshold)
	assert.Equal(t, 20, cfg.Memory.ToolCallThreshold)
	assert.Equal(t, 10*time.Second, cfg.Tools.LookupTimeout)
	assert.Equal(t, 60*time.Second, cfg.Tools.GenerationTimeout)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.False(t, cfg.Database.Enabled())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFrom_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MEMORY_MAX_CONTEXT_MESSAGES", "40")
	t.Setenv("TOOLS_GENERATION_TIMEOUT", "2m")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/ai_teacher")

	v := validViper()
	v.AutomaticEnv()

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.Memory.MaxContextMessages)
	assert.Equal(t, 2*time.Minute, cfg.Tools.GenerationTimeout)
	assert.True(t, cfg.Database.Enabled())
}

func TestValidate_AggregatesErrors(t *testing.T) {
	v := viper.New()
	v.Set("APP_ENV", "production")
	v.Set("MEMORY_MAX_CONTEXT_MESSAGES", 1)

	_, err := LoadFrom(v)
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "TELEGRAM_BOT_TOKEN is required")
	assert.Contains(t, msg, "OPENAI_API_KEY is required")
	assert.Contains(t, msg, "DATABASE_URL or DB_HOST is required in production")
	assert.Contains(t, msg, "MEMORY_MAX_CONTEXT_MESSAGES must be at least 2")
}

func TestValidate_TimeoutOrdering(t *testing.T) {
	v := validViper()
	v.Set("TOOLS_LOOKUP_TIMEOUT", "30s")
	v.Set("TOOLS_GENERATION_TIMEOUT", "5s")

	_, err := LoadFrom(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOOLS_GENERATION_TIMEOUT must not be shorter")
}

func TestString_MasksSecrets(t *testing.T) {
	v := validViper()
	v.Set("DATABASE_URL", "postgres://user:hunter2@db:5432/ai_teacher")
	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	s := cfg.String()
	assert.NotContains(t, s, "telegram-secret")
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "sk-test")
	assert.Contains(t, s, "****oken")
	assert.Contains(t, s, "backend_key=<unset>")
}
