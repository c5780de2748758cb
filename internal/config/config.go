// Package config loads the simulated medium's geometry and image path
// from a YAML config file, environment variables, or defaults, using
// spf13/viper — the same defaults-then-override pattern the teacher
// uses for its DMG/APFS device configuration.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/dark0711/flogfs/internal/flash"
)

// Config holds the settings cmd/flogfs needs to stand up a medium.
type Config struct {
	NumBlocks      uint32 `mapstructure:"num_blocks"`
	PagesPerBlock  uint32 `mapstructure:"pages_per_block"`
	SectorsPerPage uint32 `mapstructure:"sectors_per_page"`
	SectorSize     uint32 `mapstructure:"sector_size"`
	ImagePath      string `mapstructure:"image_path"`
}

// Load reads flogfs configuration from ./flogfs-config.yaml,
// $HOME/.flogfs, or /etc/flogfs, falling back to spec.md §6's default
// media geometry when no file is present. Environment variables
// prefixed FLOGFS_ override file values.
func Load() (*Config, error) {
	viper.SetConfigName("flogfs-config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.flogfs")
	viper.AddConfigPath("/etc/flogfs")

	def := flash.DefaultConfig()
	viper.SetDefault("num_blocks", def.NumBlocks)
	viper.SetDefault("pages_per_block", def.PagesPerBlock)
	viper.SetDefault("sectors_per_page", def.SectorsPerPage)
	viper.SetDefault("sector_size", def.SectorSize)
	viper.SetDefault("image_path", "flogfs.img")

	viper.SetEnvPrefix("FLOGFS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("flogfs: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("flogfs: unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// FlashConfig converts the loaded settings into a flash.Config.
func (c *Config) FlashConfig() flash.Config {
	return flash.Config{
		NumBlocks:      c.NumBlocks,
		PagesPerBlock:  c.PagesPerBlock,
		SectorsPerPage: c.SectorsPerPage,
		SectorSize:     c.SectorSize,
	}
}
