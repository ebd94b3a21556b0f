// Package config provides configuration loading, validation, and management for spectra.
//
// A single global Config is kept in memory behind a mutex. LoadConfig reads
// <projectDir>/.spectra/config.yaml (creating it with defaults when missing),
// applies defaults for absent fields, validates, and writes the result back so
// older files pick up new keys. GetConfig returns the config BY VALUE; callers
// never mutate the singleton directly.
//
// Secrets (backend password, provider API keys) never live in config.yaml. They
// come from the encrypted secrets file or the environment, see secrets.go.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"spectra/pkg/logx"
)

// Project layout and schema.
const (
	ProjectConfigDir      = ".spectra"
	ProjectConfigFilename = "config.yaml"
	SchemaVersion         = "1.0"
)

// Advisor providers.
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
)

// Secret and environment variable names.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
	EnvMSFPassword     = "MSF_PASSWORD"
)

// Defaults.
const (
	DefaultAdvisorModel     = "dolphin-llama3"
	DefaultOllamaHost       = "http://localhost:11434"
	DefaultAdvisorRetries   = 2
	DefaultAdvisorBackoff   = time.Second
	DefaultAdvisorTimeout   = 15 * time.Second
	DefaultAdvisorMaxTokens = 1024
	DefaultMaxReconTokens   = 6000
	DefaultMSFHost          = "127.0.0.1"
	DefaultMSFPort          = 55553
	DefaultMSFUser          = "msf"
	DefaultMSFURI           = "/api/"
	DefaultMSFTimeout       = 30 * time.Second
	DefaultMSFRateLimit     = 10.0
	DefaultMSFUpgradePort   = 4433
	DefaultScanTimeout      = 120 * time.Second
	DefaultScanRetries      = 1
	DefaultScanParallel     = 3
	DefaultPollDeadline     = 60 * time.Second
	DefaultPollTick         = 5 * time.Second
	DefaultDatabaseFile     = "spectra.db"
	DefaultLogsDir          = "logs"
	DefaultLogMaxSizeMB     = 5
	DefaultLogBackups       = 3
	DefaultLogLevel         = "INFO"
	MaxAdvisorTemperature   = 2.0
	MinPollTickResolution   = 10 * time.Millisecond
)

//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config     *Config
	projectDir string
	logger     *logx.Logger
	mu         sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// Duration is a time.Duration that reads and writes as "5s" style strings in YAML.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Bare integers are read as seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	raw := strings.TrimSpace(node.Value)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// AdvisorConfig selects and tunes the language-model backend.
type AdvisorConfig struct {
	Provider              string   `yaml:"provider"`
	Model                 string   `yaml:"model"`
	Host                  string   `yaml:"host,omitempty"`
	Retries               int      `yaml:"retries"` // zero means default, negative disables retries
	Backoff               Duration `yaml:"backoff"`
	Timeout               Duration `yaml:"timeout"`
	MaxTokens             int      `yaml:"max_tokens"`
	MaxReconTokens        int      `yaml:"max_recon_tokens"`
	Temperature           float32  `yaml:"temperature"`
	RequireManualApproval bool     `yaml:"require_manual_approval"`
}

// MSFConfig locates the execution backend's RPC daemon.
type MSFConfig struct {
	Host    string   `yaml:"host"`
	Port    int      `yaml:"port"`
	SSL     bool     `yaml:"ssl"`
	User    string   `yaml:"user"`
	URI     string   `yaml:"uri"`
	Timeout Duration `yaml:"timeout"`
	// SkipVerify accepts the self-signed certificate msfrpcd generates by default.
	SkipVerify bool `yaml:"skip_verify"`
	// RateLimit caps RPC calls per second; msfrpcd serves requests one at a time.
	RateLimit float64 `yaml:"rate_limit"`
	// UpgradePort is the callback port used when upgrading shell sessions.
	UpgradePort int `yaml:"upgrade_port"`
}

// ScanConfig controls the nmap runner.
type ScanConfig struct {
	NmapPath string   `yaml:"nmap_path,omitempty"`
	Timeout  Duration `yaml:"timeout"`
	Retries  int      `yaml:"retries"` // attempts per nmap invocation; below 1 means one
	Parallel int      `yaml:"parallel"`
}

// PollConfig bounds the post-dispatch session polling loop.
type PollConfig struct {
	Deadline Duration `yaml:"deadline"`
	Tick     Duration `yaml:"tick"`
}

// DatabaseConfig locates the run-history database, relative to .spectra unless absolute.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig controls Prometheus metric export.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile,omitempty"`
}

// LogsConfig controls the rotating log file.
type LogsConfig struct {
	Dir       string `yaml:"dir"`
	Level     string `yaml:"level"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	Backups   int    `yaml:"backups"`
}

// Config is the whole on-disk configuration.
type Config struct {
	SchemaVersion string         `yaml:"schema_version"`
	Advisor       AdvisorConfig  `yaml:"advisor"`
	MSF           MSFConfig      `yaml:"msf"`
	Scan          ScanConfig     `yaml:"scan"`
	Poll          PollConfig     `yaml:"poll"`
	Database      DatabaseConfig `yaml:"database"`
	Metrics       MetricsConfig  `yaml:"metrics"`
	Logs          LogsConfig     `yaml:"logs"`
}

// GetProjectSpectraDir returns the path to the .spectra directory.
func GetProjectSpectraDir() (string, error) {
	mu.RLock()
	defer mu.RUnlock()
	if projectDir == "" {
		return "", fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return filepath.Join(projectDir, ProjectConfigDir), nil
}

// GetProjectDir returns the current project directory.
func GetProjectDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return projectDir
}

// GetConfig returns the current global config BY VALUE.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTesting sets the global config for testing purposes.
// Pass nil to reset.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
	if cfg == nil {
		projectDir = ""
	}
}

// LoadConfig loads <projectDir>/.spectra/config.yaml into the global singleton.
//
// Missing file: a default config is created and saved.
// Existing file: defaults are applied for missing fields, validated, saved back.
// Unparseable file: error, so the user's edits are never overwritten.
func LoadConfig(inputProjectDir string) error {
	mu.Lock()
	defer mu.Unlock()

	projectDir = inputProjectDir
	configPath := filepath.Join(projectDir, ProjectConfigDir, ProjectConfigFilename)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		getLogger().Info("Config file not found, creating new config at %s", configPath)
		config = createDefaultConfig()
		if err := validateConfig(config); err != nil {
			return fmt.Errorf("default config validation failed: %w", err)
		}
		if err := saveConfigLocked(); err != nil {
			return fmt.Errorf("failed to save initial config: %w", err)
		}
		return nil
	}

	getLogger().Info("Loading config from %s", configPath)
	loaded, err := loadConfigFromFile(configPath)
	if err != nil {
		return fmt.Errorf("fatal: config file exists but cannot be parsed (to avoid overwriting your changes): %w", err)
	}

	applyDefaults(loaded)
	if err := validateConfig(loaded); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	config = loaded

	if err := saveConfigLocked(); err != nil {
		return fmt.Errorf("failed to save config with applied defaults: %w", err)
	}
	return nil
}

// UpdateAdvisor replaces the advisor section after validation and persists it.
func UpdateAdvisor(advisor *AdvisorConfig) error {
	mu.Lock()
	defer mu.Unlock()
	if config == nil {
		return fmt.Errorf("config not initialized - call LoadConfig first")
	}

	candidate := *config
	candidate.Advisor = *advisor
	applyDefaults(&candidate)
	if err := validateConfig(&candidate); err != nil {
		return err
	}
	config.Advisor = candidate.Advisor
	return saveConfigLocked()
}

func loadConfigFromFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML %s: %w", configPath, err)
	}
	return &cfg, nil
}

func createDefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// saveConfigLocked saves config to disk. Must be called with mu held.
func saveConfigLocked() error {
	if projectDir == "" {
		return fmt.Errorf("config not initialized - call LoadConfig first")
	}

	configPath := filepath.Join(projectDir, ProjectConfigDir, ProjectConfigFilename)
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

//nolint:cyclop // flat list of defaults
func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SchemaVersion
	}

	a := &cfg.Advisor
	if a.Provider == "" {
		a.Provider = ProviderOllama
	}
	a.Provider = strings.ToLower(a.Provider)
	if a.Model == "" {
		a.Model = DefaultAdvisorModel
	}
	if a.Provider == ProviderOllama && a.Host == "" {
		a.Host = DefaultOllamaHost
	}
	if a.Retries == 0 {
		a.Retries = DefaultAdvisorRetries
	}
	if a.Backoff == 0 {
		a.Backoff = Duration(DefaultAdvisorBackoff)
	}
	if a.Timeout == 0 {
		a.Timeout = Duration(DefaultAdvisorTimeout)
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = DefaultAdvisorMaxTokens
	}
	if a.MaxReconTokens == 0 {
		a.MaxReconTokens = DefaultMaxReconTokens
	}

	m := &cfg.MSF
	if m.Host == "" {
		m.Host = DefaultMSFHost
	}
	if m.Port == 0 {
		m.Port = DefaultMSFPort
	}
	if m.User == "" {
		m.User = DefaultMSFUser
	}
	if m.URI == "" {
		m.URI = DefaultMSFURI
	}
	if m.Timeout == 0 {
		m.Timeout = Duration(DefaultMSFTimeout)
	}
	if m.RateLimit == 0 {
		m.RateLimit = DefaultMSFRateLimit
	}
	if m.UpgradePort == 0 {
		m.UpgradePort = DefaultMSFUpgradePort
	}

	s := &cfg.Scan
	if s.Timeout == 0 {
		s.Timeout = Duration(DefaultScanTimeout)
	}
	if s.Retries == 0 {
		s.Retries = DefaultScanRetries
	}
	if s.Parallel == 0 {
		s.Parallel = DefaultScanParallel
	}

	if cfg.Poll.Deadline == 0 {
		cfg.Poll.Deadline = Duration(DefaultPollDeadline)
	}
	if cfg.Poll.Tick == 0 {
		cfg.Poll.Tick = Duration(DefaultPollTick)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabaseFile
	}

	l := &cfg.Logs
	if l.Dir == "" {
		l.Dir = DefaultLogsDir
	}
	if l.Level == "" {
		l.Level = DefaultLogLevel
	}
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if l.Backups == 0 {
		l.Backups = DefaultLogBackups
	}
}

//nolint:cyclop // flat list of checks
func validateConfig(cfg *Config) error {
	var problems []string

	switch cfg.Advisor.Provider {
	case ProviderOllama, ProviderAnthropic, ProviderOpenAI, ProviderGoogle:
	default:
		problems = append(problems, fmt.Sprintf("advisor.provider %q is not one of ollama, anthropic, openai, google", cfg.Advisor.Provider))
	}
	if cfg.Advisor.Backoff < 0 || cfg.Advisor.Timeout < 0 {
		problems = append(problems, "advisor durations must not be negative")
	}
	if cfg.Advisor.MaxTokens <= 0 {
		problems = append(problems, "advisor.max_tokens must be positive")
	}
	if cfg.Advisor.MaxReconTokens <= 0 {
		problems = append(problems, "advisor.max_recon_tokens must be positive")
	}
	if cfg.Advisor.Temperature < 0 || cfg.Advisor.Temperature > MaxAdvisorTemperature {
		problems = append(problems, "advisor.temperature must be between 0.0 and 2.0")
	}
	if cfg.MSF.Port <= 0 || cfg.MSF.Port > 65535 {
		problems = append(problems, fmt.Sprintf("msf.port %d out of range", cfg.MSF.Port))
	}
	if cfg.MSF.UpgradePort < 0 || cfg.MSF.UpgradePort > 65535 {
		problems = append(problems, fmt.Sprintf("msf.upgrade_port %d out of range", cfg.MSF.UpgradePort))
	}
	if cfg.MSF.RateLimit < 0 {
		problems = append(problems, "msf.rate_limit must not be negative")
	}
	if !strings.HasPrefix(cfg.MSF.URI, "/") {
		problems = append(problems, "msf.uri must start with /")
	}
	if cfg.Scan.Timeout <= 0 {
		problems = append(problems, "scan.timeout must be positive")
	}
	if cfg.Scan.Parallel <= 0 {
		problems = append(problems, "scan.parallel must be positive")
	}
	if cfg.Poll.Tick.D() < MinPollTickResolution {
		problems = append(problems, "poll.tick must be at least 10ms")
	}
	if cfg.Poll.Deadline < cfg.Poll.Tick {
		problems = append(problems, "poll.deadline must not be shorter than poll.tick")
	}
	if _, ok := logx.LookupLevel(cfg.Logs.Level); !ok {
		problems = append(problems, fmt.Sprintf("logs.level %q is not DEBUG, INFO, WARN or ERROR", cfg.Logs.Level))
	}
	if cfg.Logs.MaxSizeMB <= 0 || cfg.Logs.Backups < 0 {
		problems = append(problems, "logs.max_size_mb must be positive and logs.backups not negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ResolvePath resolves a config-relative path against the .spectra directory.
func ResolvePath(path string) (string, error) {
	if path == "" || filepath.IsAbs(path) {
		return path, nil
	}
	dir, err := GetProjectSpectraDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, path), nil
}

// APIKeyEnv returns the secret name holding a provider's API key.
// Ollama needs none and returns "".
func APIKeyEnv(provider string) (string, error) {
	switch provider {
	case ProviderAnthropic:
		return EnvAnthropicAPIKey, nil
	case ProviderOpenAI:
		return EnvOpenAIAPIKey, nil
	case ProviderGoogle:
		return EnvGoogleAPIKey, nil
	case ProviderOllama:
		return "", nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}
}

// GetAPIKey returns the API key for a given provider.
// Checks the secrets file first, then falls back to environment variables.
// For Ollama, returns the host URL instead of an API key.
func GetAPIKey(provider string) (string, error) {
	envVar, err := APIKeyEnv(provider)
	if err != nil {
		return "", err
	}
	if envVar == "" {
		if host := os.Getenv(EnvOllamaHost); host != "" {
			return host, nil
		}
		return DefaultOllamaHost, nil
	}

	key, err := GetSecret(envVar)
	if err == nil && key != "" {
		return key, nil
	}
	return "", fmt.Errorf("API key not found: %s not found in secrets file or environment variables", envVar)
}
