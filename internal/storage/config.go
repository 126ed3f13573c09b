package storage

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	DBPath         string `yaml:"dbPath"`
	BookmarksFile  string `yaml:"bookmarksFile"` // Netscape HTML file acting as the host bookmark tree
	CategoriesFile string `yaml:"categoriesFile,omitempty"`
	LogLevel       string `yaml:"logLevel"`  // debug | info | warn | error
	LogFormat      string `yaml:"logFormat"` // console | json
	QuotaBytes     int64  `yaml:"quotaBytes"`

	Migration      MigrationConfig      `yaml:"migration"`
	Classification ClassificationConfig `yaml:"classification"`
	Duplicates     DuplicatesConfig     `yaml:"duplicates"`
	Guardian       GuardianConfig       `yaml:"guardian"`
	LocalModel     LocalModelConfig     `yaml:"localModel"`
}

type MigrationConfig struct {
	ProbeTimeout      time.Duration `yaml:"probeTimeout"`
	PaceInterval      time.Duration `yaml:"paceInterval"`
	MaxTextLength     int           `yaml:"maxTextLength"`
	UnreachableFolder string        `yaml:"unreachableFolder"`
	ProtectedFolders  []string      `yaml:"protectedFolders"`
	CleanupBatchSize  int           `yaml:"cleanupBatchSize"`
	KeepTitles        bool          `yaml:"keepTitles"`   // skip refreshing titles from live pages
	RequireModel      bool          `yaml:"requireModel"` // halt unless the local model answers
}

type ClassificationConfig struct {
	ConfidenceThreshold float64       `yaml:"confidenceThreshold"`
	CacheTTL            time.Duration `yaml:"cacheTTL"`
	PromptTimeout       time.Duration `yaml:"promptTimeout"`
	SummaryLength       int           `yaml:"summaryLength"`
}

type DuplicatesConfig struct {
	Threshold          float64 `yaml:"threshold"`
	AutoMergeThreshold float64 `yaml:"autoMergeThreshold"`
}

type GuardianConfig struct {
	Interval          time.Duration `yaml:"interval"`
	WarningRetention  time.Duration `yaml:"warningRetention"`
	CriticalRetention time.Duration `yaml:"criticalRetention"`
}

type LocalModelConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		LogLevel:   "info",
		LogFormat:  "console",
		QuotaBytes: 100 << 20,
		Migration: MigrationConfig{
			ProbeTimeout:      5 * time.Second,
			PaceInterval:      200 * time.Millisecond,
			MaxTextLength:     5000,
			UnreachableFolder: "Unreachable",
			ProtectedFolders:  []string{"0", "1", "2", "3"},
			CleanupBatchSize:  50,
		},
		Classification: ClassificationConfig{
			ConfidenceThreshold: 0.8,
			CacheTTL:            24 * time.Hour,
			PromptTimeout:       30 * time.Second,
			SummaryLength:       200,
		},
		Duplicates: DuplicatesConfig{
			Threshold:          0.8,
			AutoMergeThreshold: 0.95,
		},
		Guardian: GuardianConfig{
			Interval:          time.Hour,
			WarningRetention:  30 * 24 * time.Hour,
			CriticalRetention: 7 * 24 * time.Hour,
		},
		LocalModel: LocalModelConfig{
			URL:   "http://localhost:11434",
			Model: "llama2",
		},
	}
}

// LoadConfig reads config from the YAML file.
// Creates the file with defaults if it doesn't exist.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			config := DefaultConfig()
			config.resolvePaths(filepath.Dir(path))
			// Non-fatal: return defaults even if save fails
			_ = SaveConfig(path, &config)
			config.applyEnv()
			return &config, nil
		}
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	config.resolvePaths(filepath.Dir(path))
	config.applyEnv()
	return &config, nil
}

// applyDefaults fills zero-valued fields from DefaultConfig.
func (c *Config) applyDefaults() {
	d := DefaultConfig()

	setString(&c.LogLevel, d.LogLevel)
	setString(&c.LogFormat, d.LogFormat)
	if c.QuotaBytes <= 0 {
		c.QuotaBytes = d.QuotaBytes
	}

	setDuration(&c.Migration.ProbeTimeout, d.Migration.ProbeTimeout)
	setDuration(&c.Migration.PaceInterval, d.Migration.PaceInterval)
	setInt(&c.Migration.MaxTextLength, d.Migration.MaxTextLength)
	setString(&c.Migration.UnreachableFolder, d.Migration.UnreachableFolder)
	if c.Migration.ProtectedFolders == nil {
		c.Migration.ProtectedFolders = d.Migration.ProtectedFolders
	}
	setInt(&c.Migration.CleanupBatchSize, d.Migration.CleanupBatchSize)

	setFloat(&c.Classification.ConfidenceThreshold, d.Classification.ConfidenceThreshold)
	setDuration(&c.Classification.CacheTTL, d.Classification.CacheTTL)
	setDuration(&c.Classification.PromptTimeout, d.Classification.PromptTimeout)
	setInt(&c.Classification.SummaryLength, d.Classification.SummaryLength)

	setFloat(&c.Duplicates.Threshold, d.Duplicates.Threshold)
	setFloat(&c.Duplicates.AutoMergeThreshold, d.Duplicates.AutoMergeThreshold)

	setDuration(&c.Guardian.Interval, d.Guardian.Interval)
	setDuration(&c.Guardian.WarningRetention, d.Guardian.WarningRetention)
	setDuration(&c.Guardian.CriticalRetention, d.Guardian.CriticalRetention)

	setString(&c.LocalModel.URL, d.LocalModel.URL)
	setString(&c.LocalModel.Model, d.LocalModel.Model)
}

// resolvePaths places the database and bookmarks file next to the config
// file when they are not set.
func (c *Config) resolvePaths(dir string) {
	setString(&c.DBPath, filepath.Join(dir, "gmark.db"))
	setString(&c.BookmarksFile, filepath.Join(dir, "bookmarks.html"))
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GMARK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("GMARK_DB_PATH"); v != "" {
		c.DBPath = v
	}
}

// PrettyLog reports whether logs use the colored console encoder.
func (c *Config) PrettyLog() bool {
	return c.LogFormat != "json"
}

// SaveConfig writes config to the YAML file.
// Creates the directory if it doesn't exist.
func SaveConfig(path string, config *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfigFilePath returns the default config path: ~/.config/gmark/config.yaml
func DefaultConfigFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "gmark", "config.yaml"), nil
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}

func setFloat(dst *float64, def float64) {
	if *dst <= 0 {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst <= 0 {
		*dst = def
	}
}
