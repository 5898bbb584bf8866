package sources

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/SuperrNaruto/you2down/app/database"
)

type ConfigCache struct {
	sourcesDir string
	cache      map[string]*Config
	mu         sync.RWMutex
}

func NewConfigCache(sourcesDir string) *ConfigCache {
	return &ConfigCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		config, err := cc.LoadConfig(file)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source configuration loaded", "source_id", config.ID, "kind", config.Kind, "strategy", config.Strategy)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(configFile string) (*Config, error) {
	config, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	if config.Name == "" {
		fileName := filepath.Base(configFile)
		config.Name = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}

	if err := cc.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[config.ID] = config

	return config, nil
}

func (cc *ConfigCache) GetConfig(sourceID string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	config, ok := cc.cache[sourceID]
	if !ok {
		return nil, fmt.Errorf("source config with id '%s' not found", sourceID)
	}
	return config, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.Strategy == "" {
		config.Strategy = string(database.StrategyFull)
	}

	return &config, nil
}

func (cc *ConfigCache) validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	if config.ID == "" {
		return fmt.Errorf("source id is required")
	}

	validKinds := map[string]bool{
		KindYouTubePlaylist: true,
		KindInstagramLikes:  true,
	}
	if !validKinds[config.Kind] {
		return fmt.Errorf("invalid source kind: %s", config.Kind)
	}

	if !database.ValidStrategy(database.Strategy(config.Strategy)) {
		return fmt.Errorf("invalid strategy: %s", config.Strategy)
	}

	if config.CheckInterval < 0 {
		return fmt.Errorf("check interval must be non-negative")
	}

	return nil
}
