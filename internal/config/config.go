package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/deploymenttheory/go-uffs/internal/types"
)

// Config holds every tunable of a mounted volume
type Config struct {
	Device    DeviceConfig    `mapstructure:"device"`
	Buffers   BufferConfig    `mapstructure:"buffers"`
	Flush     FlushConfig     `mapstructure:"flush"`
	BlockInfo BlockInfoConfig `mapstructure:"blockinfo"`
}

// DeviceConfig describes the flash image and its geometry
type DeviceConfig struct {
	ImagePath     string `mapstructure:"image_path"`
	TotalBlocks   uint32 `mapstructure:"total_blocks"`
	PagesPerBlock uint32 `mapstructure:"pages_per_block"`
	PageDataSize  uint32 `mapstructure:"page_data_size"`
}

// BufferConfig sizes the page buffer pool and dirty group tracker
type BufferConfig struct {
	MaxBuffers      int `mapstructure:"max_buffers"`
	MaxDirtyBuffers int `mapstructure:"max_dirty_buffers"`
	DirtyGroups     int `mapstructure:"dirty_groups"`
	CloneBuffers    int `mapstructure:"clone_buffers"`
}

// FlushConfig bounds the recovery engine
type FlushConfig struct {
	MaxIORetries int `mapstructure:"max_io_retries"`
}

// BlockInfoConfig sizes the block tag cache
type BlockInfoConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// Geometry returns the device geometry described by the config
func (c *Config) Geometry() types.Geometry {
	return types.Geometry{
		TotalBlocks:   c.Device.TotalBlocks,
		PagesPerBlock: c.Device.PagesPerBlock,
		PageDataSize:  c.Device.PageDataSize,
	}
}

// Validate checks the config for values the engine cannot run with
func (c *Config) Validate() error {
	if err := c.Geometry().Validate(); err != nil {
		return errors.Wrap(err, "invalid device geometry")
	}
	if c.Buffers.MaxBuffers < 4 {
		return errors.Wrapf(types.ErrInvalidArgument, "max_buffers %d, need at least 4", c.Buffers.MaxBuffers)
	}
	if c.Buffers.MaxDirtyBuffers < 1 || c.Buffers.MaxDirtyBuffers >= c.Buffers.MaxBuffers {
		return errors.Wrapf(types.ErrInvalidArgument, "max_dirty_buffers %d must be in [1, max_buffers)", c.Buffers.MaxDirtyBuffers)
	}
	if c.Buffers.DirtyGroups < 1 {
		return errors.Wrapf(types.ErrInvalidArgument, "dirty_groups %d, need at least 1", c.Buffers.DirtyGroups)
	}
	if c.Buffers.CloneBuffers < 1 {
		return errors.Wrapf(types.ErrInvalidArgument, "clone_buffers %d, need at least 1", c.Buffers.CloneBuffers)
	}
	if c.Flush.MaxIORetries < 1 {
		return errors.Wrapf(types.ErrInvalidArgument, "max_io_retries %d, need at least 1", c.Flush.MaxIORetries)
	}
	return nil
}

// Default returns the built-in configuration
func Default() *Config {
	geo := types.DefaultGeometry()
	return &Config{
		Device: DeviceConfig{
			ImagePath:     "uffs.img",
			TotalBlocks:   geo.TotalBlocks,
			PagesPerBlock: geo.PagesPerBlock,
			PageDataSize:  geo.PageDataSize,
		},
		Buffers: BufferConfig{
			MaxBuffers:      40,
			MaxDirtyBuffers: 10,
			DirtyGroups:     3,
			CloneBuffers:    2,
		},
		Flush: FlushConfig{
			MaxIORetries: 3,
		},
		BlockInfo: BlockInfoConfig{
			CacheSize: 16,
		},
	}
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("device.image_path", def.Device.ImagePath)
	v.SetDefault("device.total_blocks", def.Device.TotalBlocks)
	v.SetDefault("device.pages_per_block", def.Device.PagesPerBlock)
	v.SetDefault("device.page_data_size", def.Device.PageDataSize)
	v.SetDefault("buffers.max_buffers", def.Buffers.MaxBuffers)
	v.SetDefault("buffers.max_dirty_buffers", def.Buffers.MaxDirtyBuffers)
	v.SetDefault("buffers.dirty_groups", def.Buffers.DirtyGroups)
	v.SetDefault("buffers.clone_buffers", def.Buffers.CloneBuffers)
	v.SetDefault("flush.max_io_retries", def.Flush.MaxIORetries)
	v.SetDefault("blockinfo.cache_size", def.BlockInfo.CacheSize)
}

// Load reads configuration using Viper. An explicit file path takes
// precedence over the search path; a missing search-path file is not an
// error. Environment variables prefixed with UFFS_ override both, for
// example UFFS_DEVICE_IMAGE_PATH.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("uffs-config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.uffs")
		v.AddConfigPath("/etc/uffs")
	}

	v.SetEnvPrefix("UFFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "error reading config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
