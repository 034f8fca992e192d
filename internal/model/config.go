package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// AccountConfig holds the connection settings for a single mail account.
type AccountConfig struct {
	// ID is the stable identifier the engine keys folders by.
	ID string `mapstructure:"id" yaml:"id"`

	// Name is the user-visible account label.
	Name string `mapstructure:"name" yaml:"name"`

	// Type is one of the AccountType* constants ("imap", "rss", "none").
	Type string `mapstructure:"type" yaml:"type"`

	// Host and Port locate the IMAP server.
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`

	// Username authenticates against the server; the password lives in the
	// system keyring, never in this file.
	Username string `mapstructure:"username" yaml:"username"`

	// TLS selects implicit TLS; otherwise STARTTLS is used.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	// FavoriteFolders lists folder paths treated as favorites when
	// offering folders for watching.
	FavoriteFolders []string `mapstructure:"favorite_folders" yaml:"favorite_folders"`

	// Identities lists the sending identities reported in extended
	// payloads.
	Identities []Identity `mapstructure:"identities" yaml:"identities"`
}

// NotifyConfig holds the notification channel endpoint.
type NotifyConfig struct {
	// Network is a net.Dial network ("unix", "tcp").
	Network string `mapstructure:"network" yaml:"network"`

	// Address is the consumer endpoint (socket path or host:port).
	Address string `mapstructure:"address" yaml:"address"`
}

// AppConfig is the bootstrap configuration read from the YAML config file.
// Settings the user changes at runtime (watched folders, notification mode,
// connection type) live in the durable store instead.
type AppConfig struct {
	// DBPath locates the SQLite settings database.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// PollIntervalSec is how often (in seconds) each watched folder is
	// polled for changes.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// StartupRetryAttempts bounds the retry loop that papers over folders
	// not yet ready right after startup.
	StartupRetryAttempts int `mapstructure:"startup_retry_attempts" yaml:"startup_retry_attempts"`

	Accounts []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
	Notify   NotifyConfig    `mapstructure:"notify" yaml:"notify"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailwatch/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailwatch", "config.yaml")
}

// DefaultDBPath returns the default path for the settings database.
func DefaultDBPath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "mailwatch.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		DBPath:               DefaultDBPath(),
		PollIntervalSec:      30,
		StartupRetryAttempts: 10,
		Notify: NotifyConfig{
			Network: "unix",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("db_path", DefaultDBPath())
	v.SetDefault("poll_interval_sec", 30)
	v.SetDefault("startup_retry_attempts", 10)
	v.SetDefault("notify.network", "unix")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Apply defaults for each account entry.
	for i := range cfg.Accounts {
		if cfg.Accounts[i].Type == "" {
			cfg.Accounts[i].Type = AccountTypeIMAP
		}
		if cfg.Accounts[i].Port == "" {
			cfg.Accounts[i].Port = "993"
		}
		if cfg.Accounts[i].ID == "" {
			cfg.Accounts[i].ID = cfg.Accounts[i].Username
		}
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("db_path", cfg.DBPath)
	v.Set("poll_interval_sec", cfg.PollIntervalSec)
	v.Set("startup_retry_attempts", cfg.StartupRetryAttempts)
	v.Set("accounts", cfg.Accounts)
	v.Set("notify", cfg.Notify)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// Account returns the configured account with the given ID, or nil.
func (c *AppConfig) Account(id string) *AccountConfig {
	for i := range c.Accounts {
		if c.Accounts[i].ID == id {
			return &c.Accounts[i]
		}
	}
	return nil
}
