// Package config loads storyloom settings with viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Player    PlayerConfig    `mapstructure:"player"`
	Export    ExportConfig    `mapstructure:"export"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Draft     DraftConfig     `mapstructure:"draft"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type GeneratorConfig struct {
	Type        string  `mapstructure:"type"`
	Speech      string  `mapstructure:"speech"`
	APIKey      string  `mapstructure:"api_key"`
	ScriptModel string  `mapstructure:"script_model"`
	ImageModel  string  `mapstructure:"image_model"`
	SpeechModel string  `mapstructure:"speech_model"`
	Voice       string  `mapstructure:"voice"`
	Speed       float64 `mapstructure:"speed"`
	Volume      float64 `mapstructure:"volume"`
	Scenes      int     `mapstructure:"scenes"`
	Concurrency int     `mapstructure:"concurrency"`
	CacheDir    string  `mapstructure:"cache_dir"`
}

type PlayerConfig struct {
	Fallback time.Duration `mapstructure:"fallback"`
	Volume   float64       `mapstructure:"volume"`
}

type ExportConfig struct {
	Dir          string        `mapstructure:"dir"`
	Width        int           `mapstructure:"width"`
	Height       int           `mapstructure:"height"`
	FPS          int           `mapstructure:"fps"`
	Bitrate      string        `mapstructure:"bitrate"`
	FFmpeg       string        `mapstructure:"ffmpeg"`
	ImageTimeout time.Duration `mapstructure:"image_timeout"`
	RealTime     bool          `mapstructure:"realtime"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type DraftConfig struct {
	Dir   string `mapstructure:"dir"`
	Quota int    `mapstructure:"quota"`
}

// Init points viper at storyloom.yaml and the STORYLOOM_ environment.
func Init() {
	viper.SetConfigName("storyloom")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.storyloom")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("storyloom")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	SetDefaults()
}

func SetDefaults() {
	viper.SetDefault("log.level", "info")

	viper.SetDefault("generator.type", "auto") // Auto-select best engine
	viper.SetDefault("generator.speech", "")
	viper.SetDefault("generator.voice", "default")
	viper.SetDefault("generator.speed", 1.0)
	viper.SetDefault("generator.volume", 0.8)
	viper.SetDefault("generator.scenes", 4)
	viper.SetDefault("generator.concurrency", 4)
	viper.SetDefault("generator.cache_dir", filepath.Join(dataDir(), "cache"))

	viper.SetDefault("player.fallback", 3*time.Second)
	viper.SetDefault("player.volume", 0.08)

	viper.SetDefault("export.dir", ".")
	viper.SetDefault("export.width", 1920)
	viper.SetDefault("export.height", 1080)
	viper.SetDefault("export.fps", 30)
	viper.SetDefault("export.bitrate", "8M")
	viper.SetDefault("export.ffmpeg", "ffmpeg")
	viper.SetDefault("export.image_timeout", 10*time.Second)
	viper.SetDefault("export.realtime", false)

	viper.SetDefault("metrics.addr", "")

	viper.SetDefault("draft.dir", dataDir())
	viper.SetDefault("draft.quota", 5<<20)
}

// Load reads the config file, if there is one, and returns the merged settings.
func Load() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		logrus.WithField("file", viper.ConfigFileUsed()).Debug("Loaded config file")
	}

	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &c, nil
}

// ApplyLogLevel sets the logrus level named in c, keeping the current level
// when the name is not recognized.
func (c *Config) ApplyLogLevel() {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		logrus.WithError(err).Warn("Unknown log level")
		return
	}
	logrus.SetLevel(level)
}

// dataDir returns where storyloom keeps drafts and caches.
func dataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "storyloom")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".storyloom")
	}
	return ".storyloom"
}
