package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/barley-project/barley/internal/field"
	"github.com/barley-project/barley/internal/image"
	"github.com/barley-project/barley/internal/logging"
	"github.com/barley-project/barley/internal/machine"
	"github.com/barley-project/barley/internal/store"
)

type Config struct {
	Log     logging.Config
	Home    string        `mapstructure:"home"`
	SSH     SSHConfig     `mapstructure:"ssh"`
	Field   string        `mapstructure:"field"`
	Machine MachineConfig `mapstructure:"machine"`
}

type SSHConfig struct {
	Dir        string `mapstructure:"dir"`
	User       string `mapstructure:"user"`
	Key        string `mapstructure:"key"`
	KnownHosts string `mapstructure:"known_hosts"`
}

type MachineConfig struct {
	Bridge   string        `mapstructure:"bridge"`
	WaitUnit time.Duration `mapstructure:"wait_unit"`
}

// InitConfig loads application.yaml, .env and the environment, then lets
// flags override them. It is the only place the home directory is looked up.
func InitConfig(flags *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("application")
	v.AddConfigPath(".")
	v.AddConfigPath("./cmd/sow")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("barley")
	v.AutomaticEnv()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate home directory: %w", err)
	}
	v.SetDefault("log.level", logging.LOG_LEVEL_WARNING)
	v.SetDefault("home", filepath.Join(home, ".barley"))
	v.SetDefault("ssh.dir", filepath.Join(home, ".ssh"))
	v.SetDefault("ssh.user", "root")
	v.SetDefault("field", "")
	v.SetDefault("machine.bridge", machine.DefaultBridge)
	v.SetDefault("machine.wait_unit", machine.DefaultWaitUnit)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if flags != nil {
		if f := flags.Lookup("field"); f != nil {
			_ = v.BindPFlag("field", f)
		}
		if f := flags.Lookup("home"); f != nil {
			_ = v.BindPFlag("home", f)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.SSH.Key == "" {
		config.SSH.Key = filepath.Join(config.SSH.Dir, "id_ed25519")
	}
	if config.SSH.KnownHosts == "" {
		config.SSH.KnownHosts = filepath.Join(config.SSH.Dir, "known_hosts")
	}

	logging.Init(config.Log.Level, os.Stderr)
	return &config, nil
}

func (c *Config) homeStore() (*store.Store, error) {
	return store.Ensure(c.Home)
}

func (c *Config) fieldCatalog() (*field.Catalog, error) {
	home, err := c.homeStore()
	if err != nil {
		return nil, err
	}
	fields, err := home.EnsureSub("fields")
	if err != nil {
		return nil, err
	}
	return field.NewCatalog(fields), nil
}

func (c *Config) imageCatalog() (*image.Catalog, error) {
	home, err := c.homeStore()
	if err != nil {
		return nil, err
	}
	images, err := home.EnsureSub("images")
	if err != nil {
		return nil, err
	}
	return image.NewCatalog(images), nil
}

func (c *Config) machineConfig() machine.Config {
	return machine.Config{
		Bridge:         c.Machine.Bridge,
		WaitUnit:       c.Machine.WaitUnit,
		KnownHostsPath: c.SSH.KnownHosts,
	}
}
