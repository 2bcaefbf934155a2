// ABOUTME: YAML configuration for the lavago command
// ABOUTME: Loaded from a file or the LAVAGO_CONFIG variable and validated
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/lavago/lavago/internal/version"
	"github.com/lavago/lavago/pkg/node"
)

// EnvVar holds inline YAML when no config file is given.
const EnvVar = "LAVAGO_CONFIG"

var ErrNoConfig = errors.New("no config file given and " + EnvVar + " is empty")

type Config struct {
	UserID     string `json:"user_id"     yaml:"user_id"`
	ClientName string `json:"client_name" yaml:"client_name"`
	LogLevel   string `json:"log_level"   yaml:"log_level"`
	Nodes      []Node `json:"nodes"       yaml:"nodes"`
}

type Node struct {
	Identifier        string        `json:"identifier"          yaml:"identifier"`
	Host              string        `json:"host"                yaml:"host"`
	Port              int           `json:"port"                yaml:"port"`
	Password          string        `json:"password"            yaml:"password"`
	Secure            bool          `json:"secure"              yaml:"secure"`
	Reconnect         bool          `json:"reconnect"           yaml:"reconnect"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	CacheSize         int64         `json:"cache_size"          yaml:"cache_size"`
	CacheTTL          time.Duration `json:"cache_ttl"           yaml:"cache_ttl"`
}

func (cfg *Config) validate() error {
	if cfg.UserID == "" {
		return errors.New("user ID is empty")
	}

	if cfg.LogLevel != "" {
		if _, err := zerolog.ParseLevel(cfg.LogLevel); nil != err {
			return fmt.Errorf("log level: %w", err)
		}
	}

	if len(cfg.Nodes) == 0 {
		return errors.New("no nodes configured")
	}

	seen := make(map[string]struct{}, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		if n.Identifier == "" {
			return fmt.Errorf("node %d: identifier is empty", i)
		}
		if _, ok := seen[n.Identifier]; ok {
			return fmt.Errorf("node %q: duplicate identifier", n.Identifier)
		}
		seen[n.Identifier] = struct{}{}

		if n.Host == "" {
			return fmt.Errorf("node %q: host is empty", n.Identifier)
		}
		if n.Port <= 0 || n.Port > 65535 {
			return fmt.Errorf("node %q: port %d out of range", n.Identifier, n.Port)
		}
		if n.RequestsPerSecond < 0 {
			return fmt.Errorf("node %q: requests per second is negative", n.Identifier)
		}
	}

	return nil
}

// Load reads filePath, or LAVAGO_CONFIG when filePath is empty.
func Load(filePath string) (*Config, error) {
	if filePath != "" {
		return FromFile(filePath)
	}
	if data := os.Getenv(EnvVar); data != "" {
		return FromString(data)
	}
	return nil, ErrNoConfig
}

func FromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if nil != err {
		return nil, fmt.Errorf("failed to read config file %q: %w", filePath, err)
	}

	cfg, err := parse(data)
	if nil != err {
		return nil, fmt.Errorf("config file %q: %w", filePath, err)
	}
	return cfg, nil
}

func FromString(data string) (*Config, error) {
	return parse([]byte(data))
}

// parse expands ${VAR} references so secrets can live in .env.
func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); nil != err {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ClientName == "" {
		cfg.ClientName = version.ClientName()
	}

	if err := cfg.validate(); nil != err {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

// Level returns the configured log level, or fallback when none is set.
func (cfg *Config) Level(fallback zerolog.Level) zerolog.Level {
	if cfg.LogLevel == "" {
		return fallback
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if nil != err {
		return fallback
	}
	return level
}

// NodeConfigs converts the configured nodes for node.New.
func (cfg *Config) NodeConfigs(logger zerolog.Logger) []node.Config {
	configs := make([]node.Config, 0, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		configs = append(configs, node.Config{
			Identifier:        n.Identifier,
			Host:              n.Host,
			Port:              n.Port,
			Password:          n.Password,
			UserID:            cfg.UserID,
			ClientName:        cfg.ClientName,
			Secure:            n.Secure,
			Reconnect:         n.Reconnect,
			RequestsPerSecond: n.RequestsPerSecond,
			CacheSize:         n.CacheSize,
			CacheTTL:          n.CacheTTL,
			Logger:            logger,
		})
	}
	return configs
}
