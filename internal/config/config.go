package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the labelsmith pipeline and API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings for the annotation API.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	APIKeys         []string `yaml:"api_keys"`
}

// DatasetConfig holds the ingest schema for the delimited input file.
type DatasetConfig struct {
	Path        string   `yaml:"path"`
	IDColumn    string   `yaml:"id_column"`
	TextColumn  string   `yaml:"text_column"`
	LabelColumn string   `yaml:"label_column"` // optional; empty = unlabeled dataset
	Labels      []string `yaml:"labels"`       // closed label vocabulary
}

// EmbeddingConfig holds embedding provider and normalization settings.
type EmbeddingConfig struct {
	Provider     string       `yaml:"provider"` // openai, onnx (default: openai)
	OpenAI       OpenAIConfig `yaml:"openai"`
	ONNX         ONNXConfig   `yaml:"onnx"`
	Cache        CacheConfig  `yaml:"cache"`
	BatchSize    int          `yaml:"batch_size"`
	Workers      int          `yaml:"workers"`
	MaxTextRunes int          `yaml:"max_text_runes"`
	LengthPolicy string       `yaml:"length_policy"` // truncate (default) | reject
	Lowercase    bool         `yaml:"lowercase"`
}

// OpenAIConfig holds OpenAI-compatible provider settings.
type OpenAIConfig struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	ChatModel   string `yaml:"chat_model"` // for the generative ordering strategy
	Dimensions  int    `yaml:"dimensions"`
	Instruction string `yaml:"instruction"` // prepended to every text before embedding
}

// ONNXConfig holds local ONNX embedding settings.
type ONNXConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
}

// CacheConfig holds redis embedding cache settings. Empty addrs disables the cache.
type CacheConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// PipelineConfig holds per-stage tuning knobs.
type PipelineConfig struct {
	Reduce    ReduceConfig    `yaml:"reduce"`
	Selection SelectionConfig `yaml:"selection"`
	Order     OrderConfig     `yaml:"order"`
	Agreement AgreementConfig `yaml:"agreement"`
	FewShot   FewShotConfig   `yaml:"fewshot"`
	Audit     AuditConfig     `yaml:"audit"`
	OutputDir string          `yaml:"output_dir"`
	Serve     bool            `yaml:"serve"` // keep the annotation API running after the batch run
}

// ReduceConfig holds dimensionality reduction settings.
type ReduceConfig struct {
	Dims      int    `yaml:"dims"` // 1 or 2
	Seed      int64  `yaml:"seed"`
	Neighbors int    `yaml:"neighbors"`
	Mode      string `yaml:"mode"` // global (1-D sort) | local (2-D scatter)
}

// SelectionConfig holds the facility-location selection budget.
type SelectionConfig struct {
	Budget int `yaml:"budget"`
}

// OrderConfig holds annotation ordering settings.
type OrderConfig struct {
	Strategy string       `yaml:"strategy"` // similarity, model, rules, generative
	TopM     int          `yaml:"top_m"`
	Rules    []RuleConfig `yaml:"rules"`
}

// RuleConfig maps keywords to a label for the rule-based ordering strategy.
type RuleConfig struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
	Weight   float64  `yaml:"weight"`
}

// AgreementConfig holds consensus settings.
type AgreementConfig struct {
	Quorum            int `yaml:"quorum"`
	AnnotatorsPerItem int `yaml:"annotators_per_item"`
}

// FewShotConfig holds few-shot trainer settings.
type FewShotConfig struct {
	Pairs        int     `yaml:"pairs"`
	Epochs       int     `yaml:"epochs"`
	LearningRate float64 `yaml:"learning_rate"`
	Seed         int64   `yaml:"seed"`
	LinearProbe  bool    `yaml:"linear_probe"`
	Temperature  float64 `yaml:"temperature"`
}

// AuditConfig holds label audit settings.
type AuditConfig struct {
	Folds   int `yaml:"folds"`
	Workers int `yaml:"workers"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Dataset.IDColumn == "" {
		c.Dataset.IDColumn = "id"
	}
	if c.Dataset.TextColumn == "" {
		c.Dataset.TextColumn = "text"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Embedding.Workers <= 0 {
		c.Embedding.Workers = 4
	}
	if c.Embedding.MaxTextRunes <= 0 {
		c.Embedding.MaxTextRunes = 8192
	}
	if c.Embedding.LengthPolicy == "" {
		c.Embedding.LengthPolicy = "truncate"
	}
	if c.Embedding.Cache.ReadinessTimeout <= 0 {
		c.Embedding.Cache.ReadinessTimeout = 10
	}
	if c.Embedding.Cache.KeyPrefix == "" {
		c.Embedding.Cache.KeyPrefix = "labelsmith:"
	}
	if c.Embedding.ONNX.MaxTokens <= 0 {
		c.Embedding.ONNX.MaxTokens = 256
	}
	if c.Pipeline.Reduce.Dims <= 0 {
		c.Pipeline.Reduce.Dims = 2
	}
	if c.Pipeline.Reduce.Neighbors <= 0 {
		c.Pipeline.Reduce.Neighbors = 15
	}
	if c.Pipeline.Reduce.Mode == "" {
		c.Pipeline.Reduce.Mode = "local"
	}
	if c.Pipeline.Selection.Budget <= 0 {
		c.Pipeline.Selection.Budget = 100
	}
	if c.Pipeline.Order.Strategy == "" {
		c.Pipeline.Order.Strategy = "similarity"
	}
	if c.Pipeline.Order.TopM <= 0 {
		c.Pipeline.Order.TopM = 5
	}
	if c.Pipeline.Agreement.Quorum <= 0 {
		c.Pipeline.Agreement.Quorum = 3
	}
	if c.Pipeline.Agreement.AnnotatorsPerItem <= 0 {
		c.Pipeline.Agreement.AnnotatorsPerItem = 5
	}
	if c.Pipeline.FewShot.Pairs <= 0 {
		c.Pipeline.FewShot.Pairs = 1000
	}
	if c.Pipeline.FewShot.Epochs <= 0 {
		c.Pipeline.FewShot.Epochs = 10
	}
	if c.Pipeline.FewShot.LearningRate <= 0 {
		c.Pipeline.FewShot.LearningRate = 0.05
	}
	if c.Pipeline.FewShot.Temperature <= 0 {
		c.Pipeline.FewShot.Temperature = 0.1
	}
	if c.Pipeline.Audit.Folds <= 0 {
		c.Pipeline.Audit.Folds = 5
	}
	if c.Pipeline.Audit.Workers <= 0 {
		c.Pipeline.Audit.Workers = 2
	}
	if c.Pipeline.OutputDir == "" {
		c.Pipeline.OutputDir = "out"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Dataset.Path == "" {
		return fmt.Errorf("dataset.path is required")
	}
	switch c.Embedding.Provider {
	case "openai", "onnx":
	default:
		return fmt.Errorf("embedding.provider must be \"openai\" or \"onnx\", got %q", c.Embedding.Provider)
	}
	switch c.Embedding.LengthPolicy {
	case "truncate", "reject":
	default:
		return fmt.Errorf(
			"embedding.length_policy must be \"truncate\" or \"reject\", got %q",
			c.Embedding.LengthPolicy,
		)
	}
	if d := c.Pipeline.Reduce.Dims; d != 1 && d != 2 {
		return fmt.Errorf("pipeline.reduce.dims must be 1 or 2, got %d", d)
	}
	switch c.Pipeline.Reduce.Mode {
	case "global", "local":
	default:
		return fmt.Errorf("pipeline.reduce.mode must be \"global\" or \"local\", got %q", c.Pipeline.Reduce.Mode)
	}
	switch c.Pipeline.Order.Strategy {
	case "similarity", "model", "rules", "generative":
	default:
		return fmt.Errorf("pipeline.order.strategy must be one of similarity, model, rules, generative; got %q",
			c.Pipeline.Order.Strategy)
	}
	if q, n := c.Pipeline.Agreement.Quorum, c.Pipeline.Agreement.AnnotatorsPerItem; q > n {
		return fmt.Errorf("pipeline.agreement.quorum (%d) exceeds annotators_per_item (%d)", q, n)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
