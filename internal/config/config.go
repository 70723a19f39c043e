package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DaemonPort     int           `mapstructure:"daemon_port"`
	DBPath         string        `mapstructure:"db_path"`
	LogPath        string        `mapstructure:"log_path"`
	Remote         string        `mapstructure:"remote"`
	Branch         string        `mapstructure:"branch"`
	Debounce       time.Duration `mapstructure:"debounce"`
	CommitInterval time.Duration `mapstructure:"commit_interval"`
	DeferDelay     time.Duration `mapstructure:"defer_delay"`
	QueueCapacity  int           `mapstructure:"queue_capacity"`
	BufferSize     int           `mapstructure:"buffer_size"`
	IgnoreList     []string      `mapstructure:"ignore_list"`
}

var Default = Config{
	DaemonPort:     9410,
	Remote:         "origin",
	Branch:         "main",
	Debounce:       2 * time.Second,
	CommitInterval: 10 * time.Minute,
	DeferDelay:     3 * time.Second,
	QueueCapacity:  64,
	BufferSize:     100,
	IgnoreList:     []string{".git", ".DS_Store", "*.tmp", "*.swp", "*_conflict_*"},
}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home dir: %w", err)
	}

	configDir := filepath.Join(home, ".inksync")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)

	viper.SetDefault("daemon_port", Default.DaemonPort)
	viper.SetDefault("db_path", filepath.Join(configDir, "inksync.db"))
	viper.SetDefault("log_path", "")
	viper.SetDefault("remote", Default.Remote)
	viper.SetDefault("branch", Default.Branch)
	viper.SetDefault("debounce", Default.Debounce)
	viper.SetDefault("commit_interval", Default.CommitInterval)
	viper.SetDefault("defer_delay", Default.DeferDelay)
	viper.SetDefault("queue_capacity", Default.QueueCapacity)
	viper.SetDefault("buffer_size", Default.BufferSize)
	viper.SetDefault("ignore_list", Default.IgnoreList)

	viper.SetEnvPrefix("INKSYNC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
