package main

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"regexp"
	"strings"

	"github.com/barley-project/barley/internal/api/http"
	"github.com/barley-project/barley/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log    logging.Config
	Http   http.Config
	Server ServerConfig
}

type ServerConfig struct {
	// Address is handed to Seeds as SOWER. Detected from DnsmasqConf when
	// empty.
	Address     string `mapstructure:"address"`
	DnsmasqConf string `mapstructure:"dnsmasq_conf"`
	DataDir     string `mapstructure:"data_dir"`
	SeedDir     string `mapstructure:"seed_dir"`
	BootDir     string `mapstructure:"boot_dir"`
}

var config Config

var bootURLRegexp = regexp.MustCompile(`http://(?P<ip>.*?):\d+/`)

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/sower")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("log.level", logging.LOG_LEVEL_INFO)
	viper.SetDefault("http.port", 8000)
	viper.SetDefault("server.dnsmasq_conf", "/etc/dnsmasq.d/barley.conf")
	viper.SetDefault("server.data_dir", "/var/lib/barley")
	viper.SetDefault("server.seed_dir", "/var/lib/barley/seeds")
	viper.SetDefault("server.boot_dir", "/var/lib/barley/boot")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	// Initialize logger with configured log level
	logging.Init(config.Log.Level, os.Stdout)

	// Pretty print config as JSON (only at DEBUG level)
	if strings.ToUpper(config.Log.Level) == logging.LOG_LEVEL_DEBUG {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}

// detectAddress returns the IP of the first HTTP boot URL in a dnsmasq
// configuration, which is the address Seeds already reach us on.
func detectAddress(path string) (netip.Addr, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to read dnsmasq config %s: %w", path, err)
	}
	return parseBootAddress(string(data))
}

func parseBootAddress(conf string) (netip.Addr, error) {
	match := bootURLRegexp.FindStringSubmatch(conf)
	if match == nil {
		return netip.Addr{}, fmt.Errorf("no boot URL found in dnsmasq config")
	}
	addr, err := netip.ParseAddr(match[bootURLRegexp.SubexpIndex("ip")])
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid boot URL address: %w", err)
	}
	return addr, nil
}
