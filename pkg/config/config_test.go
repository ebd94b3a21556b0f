package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	t.Cleanup(func() { SetConfigForTesting(nil) })
	dir := t.TempDir()

	require.NoError(t, LoadConfig(dir))
	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, ProviderOllama, cfg.Advisor.Provider)
	assert.Equal(t, DefaultAdvisorModel, cfg.Advisor.Model)
	assert.Equal(t, DefaultOllamaHost, cfg.Advisor.Host)
	assert.Equal(t, DefaultAdvisorRetries, cfg.Advisor.Retries)
	assert.Equal(t, DefaultAdvisorBackoff, cfg.Advisor.Backoff.D())
	assert.Equal(t, DefaultMSFPort, cfg.MSF.Port)
	assert.InDelta(t, DefaultMSFRateLimit, cfg.MSF.RateLimit, 0)
	assert.Equal(t, DefaultMSFUpgradePort, cfg.MSF.UpgradePort)
	assert.Equal(t, DefaultPollDeadline, cfg.Poll.Deadline.D())
	assert.Equal(t, DefaultPollTick, cfg.Poll.Tick.D())
	assert.Equal(t, DefaultScanParallel, cfg.Scan.Parallel)

	data, err := os.ReadFile(filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename))
	require.NoError(t, err)
	assert.Contains(t, string(data), "deadline: 1m0s")
	assert.Contains(t, string(data), "tick: 5s")
}

func TestLoadConfigAppliesDefaultsToPartialFile(t *testing.T) {
	t.Cleanup(func() { SetConfigForTesting(nil) })
	dir := t.TempDir()
	path := filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`
advisor:
  provider: Anthropic
  model: claude-sonnet-4
  require_manual_approval: true
poll:
  deadline: 30
  tick: 500ms
`), 0o644))

	require.NoError(t, LoadConfig(dir))
	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Advisor.Provider)
	assert.True(t, cfg.Advisor.RequireManualApproval)
	assert.Empty(t, cfg.Advisor.Host)
	assert.Equal(t, 30*time.Second, cfg.Poll.Deadline.D())
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Tick.D())
	assert.Equal(t, DefaultMSFHost, cfg.MSF.Host)
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	t.Cleanup(func() { SetConfigForTesting(nil) })
	dir := t.TempDir()
	path := filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("advisor: [unclosed"), 0o644))

	err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be parsed")

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "advisor: [unclosed", string(data))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		mutate func(*Config)
		name   string
		substr string
	}{
		{name: "provider", mutate: func(c *Config) { c.Advisor.Provider = "skynet" }, substr: "advisor.provider"},
		{name: "port", mutate: func(c *Config) { c.MSF.Port = 70000 }, substr: "msf.port"},
		{name: "temperature", mutate: func(c *Config) { c.Advisor.Temperature = 3 }, substr: "temperature"},
		{name: "deadline", mutate: func(c *Config) { c.Poll.Deadline = Duration(time.Second) }, substr: "poll.deadline"},
		{name: "level", mutate: func(c *Config) { c.Logs.Level = "LOUD" }, substr: "logs.level"},
		{name: "upgrade port", mutate: func(c *Config) { c.MSF.UpgradePort = 99999 }, substr: "msf.upgrade_port"},
		{name: "rate limit", mutate: func(c *Config) { c.MSF.RateLimit = -1 }, substr: "msf.rate_limit"},
		{name: "uri", mutate: func(c *Config) { c.MSF.URI = "api" }, substr: "msf.uri"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createDefaultConfig()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
	assert.NoError(t, validateConfig(createDefaultConfig()))
}

func TestDurationYAML(t *testing.T) {
	var holder struct {
		D Duration `yaml:"d"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("d: 90s"), &holder))
	assert.Equal(t, 90*time.Second, holder.D.D())

	require.NoError(t, yaml.Unmarshal([]byte("d: 2"), &holder))
	assert.Equal(t, 2*time.Second, holder.D.D())

	assert.Error(t, yaml.Unmarshal([]byte("d: soon"), &holder))
	assert.Error(t, yaml.Unmarshal([]byte("d: [1]"), &holder))

	out, err := yaml.Marshal(holder)
	require.NoError(t, err)
	assert.Equal(t, "d: 2s\n", string(out))
}

func TestUpdateAdvisor(t *testing.T) {
	t.Cleanup(func() { SetConfigForTesting(nil) })
	require.NoError(t, LoadConfig(t.TempDir()))

	require.Error(t, UpdateAdvisor(&AdvisorConfig{Provider: "nope"}))

	require.NoError(t, UpdateAdvisor(&AdvisorConfig{Provider: ProviderOpenAI, Model: "gpt-4.1"}))
	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.Advisor.Provider)
	assert.Equal(t, DefaultAdvisorRetries, cfg.Advisor.Retries)
}

func TestGetAPIKey(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	t.Setenv(EnvOllamaHost, "")
	host, err := GetAPIKey(ProviderOllama)
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaHost, host)

	t.Setenv(EnvOpenAIAPIKey, "sk-test")
	key, err := GetAPIKey(ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)

	t.Setenv(EnvGoogleAPIKey, "")
	_, err = GetAPIKey(ProviderGoogle)
	assert.Error(t, err)

	_, err = GetAPIKey("skynet")
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	t.Cleanup(func() { SetConfigForTesting(nil) })
	dir := t.TempDir()
	require.NoError(t, LoadConfig(dir))

	p, err := ResolvePath("spectra.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ProjectConfigDir, "spectra.db"), p)

	abs, err := ResolvePath("/tmp/x.db")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", abs)
}
