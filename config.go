package keypager

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config holds the defaults applied by a Pager. It can be embedded into a
// service's YAML configuration.
//
//	pagination:
//	  default_limit: 20
//	  max_limit: 200
//	  identity_columns: [id]
//	  count_total: true
type Config struct {
	// DefaultLimit is applied when neither the pager nor the query sets a limit.
	DefaultLimit int `yaml:"default_limit"`
	// MaxLimit caps limits requested through the pager.
	MaxLimit int `yaml:"max_limit"`
	// IdentityColumns order the dataset when the query declares no ordering
	// and its model has no primary key gorm can discover.
	IdentityColumns []string `yaml:"identity_columns"`
	// CountTotal enables the total row count for every page.
	CountTotal bool `yaml:"count_total"`
	// Lookahead fetches one extra row to tell whether more rows follow.
	Lookahead bool `yaml:"lookahead"`

	Logger *zap.Logger `yaml:"-"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:    DefaultLimit,
		MaxLimit:        MaxLimit,
		IdentityColumns: []string{"id"},
		Logger:          zap.NewNop(),
	}
}

// ParseConfig decodes a YAML document on top of DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse pager config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read pager config: %w", err)
	}

	return ParseConfig(data)
}

// WithLogger returns a copy of the config logging to logger.
func (c Config) WithLogger(logger *zap.Logger) Config {
	c.Logger = logger
	return c
}

func (c Config) validate() error {
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("invalid pager config: default_limit must be positive, got %d", c.DefaultLimit)
	}

	if c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("invalid pager config: max_limit %d is below default_limit %d", c.MaxLimit, c.DefaultLimit)
	}

	if len(c.IdentityColumns) == 0 {
		return fmt.Errorf("invalid pager config: identity_columns must not be empty")
	}

	return nil
}

// normalized fills zero values with defaults so a partially filled Config
// literal is usable.
func (c Config) normalized() Config {
	defaults := DefaultConfig()

	if c.DefaultLimit <= 0 {
		c.DefaultLimit = defaults.DefaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = defaults.MaxLimit
	}
	if c.MaxLimit < c.DefaultLimit {
		c.MaxLimit = c.DefaultLimit
	}
	if len(c.IdentityColumns) == 0 {
		c.IdentityColumns = defaults.IdentityColumns
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}

	return c
}
