// Package config loads the CLI and server configuration.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"impose/pkg/flblend"
)

type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Blend  BlendConfig  `mapstructure:"blend"`
	Stack  StackConfig  `mapstructure:"stack"`
	Server ServerConfig `mapstructure:"server"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

// BlendConfig selects how channel files are blended.
type BlendConfig struct {
	Mode         string          `mapstructure:"mode"`
	Autocontrast bool            `mapstructure:"autocontrast"`
	Channels     []ChannelConfig `mapstructure:"channels"`
}

// ChannelConfig describes one channel file. Hue is a hue angle (0-255),
// a hex string or an RGB triple.
type ChannelConfig struct {
	Name       string  `mapstructure:"name"`
	Path       string  `mapstructure:"path"`
	Hue        any     `mapstructure:"hue"`
	Brightness float64 `mapstructure:"brightness"`
	Contrast   float64 `mapstructure:"contrast"`
}

// StackConfig overrides the pixel sizes in microns. Zero keeps the value
// found in the file.
type StackConfig struct {
	PixelSizeX float64 `mapstructure:"pixel_size_x"`
	PixelSizeY float64 `mapstructure:"pixel_size_y"`
	PixelSizeZ float64 `mapstructure:"pixel_size_z"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxUpload    int64         `mapstructure:"max_upload"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Load reads a YAML file. An empty path uses the defaults and the
// IMPOSE_* environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("impose")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.mode", "debug")

	v.SetDefault("blend.mode", "hsv")
	v.SetDefault("blend.autocontrast", true)

	v.SetDefault("stack.pixel_size_x", 0)
	v.SetDefault("stack.pixel_size_y", 0)
	v.SetDefault("stack.pixel_size_z", 0)

	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.max_upload", 64*1024*1024)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Hour)
}

// Default returns the configuration used without a config file.
func Default() *Config {
	return &Config{
		Log:   LogConfig{Mode: "debug"},
		Blend: BlendConfig{Mode: "hsv", Autocontrast: true},
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			MaxUpload:    64 * 1024 * 1024,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  time.Hour,
		},
	}
}

// Validate checks value ranges. Channel levels of zero select the default.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Blend.Mode) {
	case "hsv", "rgb":
	default:
		errs = append(errs, fmt.Errorf("unknown blend mode %q", c.Blend.Mode))
	}
	for i, v := range []float64{c.Stack.PixelSizeX, c.Stack.PixelSizeY, c.Stack.PixelSizeZ} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("stack.pixel_size_%c must be positive, got %g", "xyz"[i], v))
		}
	}
	for i, ch := range c.Blend.Channels {
		if ch.Path == "" {
			errs = append(errs, fmt.Errorf("blend.channels[%d]: missing path", i))
		}
		if ch.Hue != nil {
			if _, err := flblend.ResolveHue(ch.Hue); err != nil {
				errs = append(errs, fmt.Errorf("blend.channels[%d]: %w", i, err))
			}
		}
		if ch.Brightness < 0 || ch.Brightness > 255 || ch.Contrast < 0 || ch.Contrast > 255 {
			errs = append(errs, fmt.Errorf("blend.channels[%d]: levels must be within [0, 255]", i))
		}
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("unknown server mode %q", c.Server.Mode))
	}
	if c.Server.MaxUpload <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload must be positive"))
	}
	return errors.Join(errs...)
}
