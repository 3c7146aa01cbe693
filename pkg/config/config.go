// Package config loads a node's startup configuration from a YAML file
// plus environment overrides (grounded on the teacher's pkg/config
// loader, narrowed from the teacher's whole-network config surface down
// to what node.Config needs: network identity, p2p bootstrap, the
// validator set, and logging).
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"trinci-core/pkg/utils"
)

// Config mirrors node.Config in a form a YAML file can populate.
type Config struct {
	Network struct {
		Name           string   `mapstructure:"name" json:"name"`
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	Validator struct {
		// KeyFile, if set, names a PEM-encoded P-384 private key this
		// node signs produced blocks with. Empty means a follower node.
		KeyFile string   `mapstructure:"key_file" json:"key_file"`
		Trusted []string `mapstructure:"trusted" json:"trusted"` // hex-encoded validator public keys
	} `mapstructure:"validator" json:"validator"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads cmd/config/<name>.yaml (default plus an optional
// environment-specific overlay) and any TRINCI_-prefixed environment
// overrides, storing the result in AppConfig.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("trinci")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the TRINCI_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("TRINCI_ENV", ""))
}
