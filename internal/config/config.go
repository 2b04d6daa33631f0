// Package config loads docstore settings from defaults, an optional config
// file and prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/kartikbazzad/bunbase/docstore/internal/btree"
)

type Config struct {
	Index   IndexConfig
	Query   QueryConfig
	Storage StorageConfig
	Log     LogConfig
}

type IndexConfig struct {
	Order          int // B+tree node capacity for BTREE indexes
	MergeThreshold int // underflow bound (0 = Order/2)
}

type QueryConfig struct {
	ProgramCacheSize int // compiled program cache entries (0 = unbounded)
}

type StorageConfig struct {
	Engine string // registered engine name: memory, sqlite, ...
	Path   string // sqlite database file
}

type LogConfig struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // json, text
}

func Default() *Config {
	return &Config{
		Index: IndexConfig{
			Order: btree.DefaultOrder,
		},
		Storage: StorageConfig{
			Engine: "memory",
			Path:   "docstore.db",
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// Load layers an optional config file (yaml/json/toml, chosen by extension)
// and PREFIX_SECTION_KEY environment variables over Default.
// Example: DOCSTORE_INDEX_ORDER=64 sets Index.Order.
func Load(prefix, file string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", file, err)
			}
		}
	}

	prefixUpper := strings.ToUpper(strings.TrimSuffix(prefix, "_")) + "_"
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		if len(pair) != 2 || !strings.HasPrefix(pair[0], prefixUpper) {
			continue
		}
		// DOCSTORE_INDEX_ORDER -> index.order
		propKey := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(pair[0], prefixUpper), "_", "."))
		v.Set(propKey, pair[1])
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("index.order", d.Index.Order)
	v.SetDefault("index.mergethreshold", d.Index.MergeThreshold)
	v.SetDefault("query.programcachesize", d.Query.ProgramCacheSize)
	v.SetDefault("storage.engine", d.Storage.Engine)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks the tree shape and storage selection. Engine names are
// resolved against the registry at open time.
func (c *Config) Validate() error {
	if c.Index.Order < 3 {
		return fmt.Errorf("index.order must be at least 3, got %d", c.Index.Order)
	}
	if c.Index.MergeThreshold < 0 || 2*c.Index.MergeThreshold > c.Index.Order {
		return fmt.Errorf("index.mergethreshold %d does not fit order %d", c.Index.MergeThreshold, c.Index.Order)
	}
	if c.Query.ProgramCacheSize < 0 {
		return fmt.Errorf("query.programcachesize must not be negative")
	}
	switch c.Storage.Engine {
	case "":
		return fmt.Errorf("storage.engine is required")
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite engine")
		}
	}
	return nil
}
