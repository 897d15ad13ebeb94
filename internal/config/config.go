// Package config loads FlowState settings from config.yaml and FLOWSTATE_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/HendryAvila/flowstate/internal/memory"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"
	envPrefix      = "FLOWSTATE"
)

// Config keys.
const (
	KeyDataDir                 = "data_dir"
	KeyLogFile                 = "log.file"
	KeyLogLevel                = "log.level"
	KeyLogMaxSizeMB            = "log.max_size_mb"
	KeyLogMaxBackups           = "log.max_backups"
	KeyTokenWeight             = "search.token_weight"
	KeyVectorWeight            = "search.vector_weight"
	KeyCandidatePool           = "search.candidate_pool"
	KeyWindowHours             = "context.window_hours"
	KeyRecentLearnings         = "context.recent_learnings"
	KeyMinSessions             = "intelligence.min_sessions"
	KeyMinSuccessRate          = "intelligence.min_success_rate"
	KeyConfidenceAlpha         = "intelligence.confidence_alpha"
	KeyActivePatternConfidence = "intelligence.active_pattern_confidence"
	KeyEmbeddingProvider       = "embedding.provider"
	KeyEmbeddingModel          = "embedding.model"
	KeyEmbeddingDimensions     = "embedding.dimensions"
	KeyEmbeddingTimeout        = "embedding.timeout"
)

// Embedding providers.
const (
	ProviderNone   = "none"
	ProviderOllama = "ollama"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# FlowState configuration
# Every key can be overridden with a FLOWSTATE_ environment variable,
# e.g. FLOWSTATE_DATA_DIR or FLOWSTATE_EMBEDDING_PROVIDER.

# data_dir:

log:
  level: info

search:
  token_weight: 0.4
  vector_weight: 0.6

context:
  window_hours: 48

intelligence:
  min_sessions: 3
  min_success_rate: 0.8

embedding:
  provider: none
  model: nomic-embed-text
`

// Config is the resolved configuration.
type Config struct {
	ConfigDir string
	DataDir   string

	LogFile       string
	LogLevel      string
	LogMaxSizeMB  int
	LogMaxBackups int

	TokenWeight   float64
	VectorWeight  float64
	CandidatePool int

	Window          time.Duration
	RecentLearnings int

	MinSessions             int
	MinSuccessRate          float64
	ConfidenceAlpha         float64
	ActivePatternConfidence float64

	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingTimeout    time.Duration
}

// DefaultConfigDir is ~/.flowstate.
func DefaultConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".flowstate")
}

// Load reads config.yaml from configDir, creating the directory and a
// default file on first run. A missing file is not an error. Environment
// variables take precedence over the file.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("config: ensure dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("config: ensure default file: %w", err)
	}

	v := viper.New()
	setDefaults(v, configDir)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg := fromViper(v)
	cfg.ConfigDir = configDir
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault(KeyDataDir, configDir)
	v.SetDefault(KeyLogFile, filepath.Join(configDir, "logs", "flowstate.log"))
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogMaxSizeMB, 10)
	v.SetDefault(KeyLogMaxBackups, 3)
	v.SetDefault(KeyTokenWeight, 0.4)
	v.SetDefault(KeyVectorWeight, 0.6)
	v.SetDefault(KeyCandidatePool, 20)
	v.SetDefault(KeyWindowHours, 48)
	v.SetDefault(KeyRecentLearnings, 10)
	v.SetDefault(KeyMinSessions, 3)
	v.SetDefault(KeyMinSuccessRate, 0.8)
	v.SetDefault(KeyConfidenceAlpha, 0.3)
	v.SetDefault(KeyActivePatternConfidence, 0.7)
	v.SetDefault(KeyEmbeddingProvider, ProviderNone)
	v.SetDefault(KeyEmbeddingModel, "nomic-embed-text")
	v.SetDefault(KeyEmbeddingDimensions, 0)
	v.SetDefault(KeyEmbeddingTimeout, "5s")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		DataDir:                 expandHome(v.GetString(KeyDataDir)),
		LogFile:                 expandHome(v.GetString(KeyLogFile)),
		LogLevel:                v.GetString(KeyLogLevel),
		LogMaxSizeMB:            v.GetInt(KeyLogMaxSizeMB),
		LogMaxBackups:           v.GetInt(KeyLogMaxBackups),
		TokenWeight:             v.GetFloat64(KeyTokenWeight),
		VectorWeight:            v.GetFloat64(KeyVectorWeight),
		CandidatePool:           v.GetInt(KeyCandidatePool),
		Window:                  time.Duration(v.GetInt(KeyWindowHours)) * time.Hour,
		RecentLearnings:         v.GetInt(KeyRecentLearnings),
		MinSessions:             v.GetInt(KeyMinSessions),
		MinSuccessRate:          v.GetFloat64(KeyMinSuccessRate),
		ConfidenceAlpha:         v.GetFloat64(KeyConfidenceAlpha),
		ActivePatternConfidence: v.GetFloat64(KeyActivePatternConfidence),
		EmbeddingProvider:       strings.ToLower(v.GetString(KeyEmbeddingProvider)),
		EmbeddingModel:          v.GetString(KeyEmbeddingModel),
		EmbeddingDimensions:     v.GetInt(KeyEmbeddingDimensions),
		EmbeddingTimeout:        v.GetDuration(KeyEmbeddingTimeout),
	}
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch c.EmbeddingProvider {
	case ProviderNone, ProviderOllama:
	default:
		return fmt.Errorf("config: %s must be %q or %q, got %q", KeyEmbeddingProvider, ProviderNone, ProviderOllama, c.EmbeddingProvider)
	}
	if c.TokenWeight < 0 || c.VectorWeight < 0 || c.TokenWeight+c.VectorWeight == 0 {
		return fmt.Errorf("config: search weights must be non-negative and not both zero")
	}
	if c.MinSuccessRate < 0 || c.MinSuccessRate > 1 {
		return fmt.Errorf("config: %s must be within [0,1]", KeyMinSuccessRate)
	}
	if c.ConfidenceAlpha <= 0 || c.ConfidenceAlpha > 1 {
		return fmt.Errorf("config: %s must be within (0,1]", KeyConfidenceAlpha)
	}
	return nil
}

// MemoryConfig maps the settings used by the memory store.
func (c *Config) MemoryConfig() memory.Config {
	return memory.Config{
		DataDir:         c.DataDir,
		RecencyWindow:   c.Window,
		RecentLearnings: c.RecentLearnings,
		EmbedTimeout:    c.EmbeddingTimeout,
		Promotion: memory.PromotionThresholds{
			MinSessions:    c.MinSessions,
			MinSuccessRate: c.MinSuccessRate,
		},
		ConfidenceAlpha:         c.ConfidenceAlpha,
		ActivePatternConfidence: c.ActivePatternConfidence,
	}
}

// VectorPath is where the vector index lives.
func (c *Config) VectorPath() string {
	return filepath.Join(c.DataDir, "vectors.db")
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
