// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/ColonelBlimp/proctap"
)

const (
	AppName       = "proctap"
	ConfigType    = "yaml"
	DefaultConfig = `# ProcTap Configuration

# Target format: what callers receive, regardless of what the platform
# backend natively delivers. ProcTap converts transparently between the two.
target_sample_rate: 48000    # Hz
target_channels: 2           # 1 to 8 (1 = mono, 2 = stereo)
target_encoding: "int16"     # int16, int24-packed, int24-in-32, int32, float32

# Resample quality when the native and target rates differ.
# "low-latency" is linear interpolation; "high-quality" is windowed-sinc.
resample_quality: "low-latency"

# Timeouts
activation_timeout_ms: 3000  # validated (>= 1000) only; the WASAPI engine uses a fixed 3s activation wait
join_timeout_ms: 2000        # validated (>= 0) only; Stop uses a fixed 2s worker join bound
read_timeout_ms: 200         # default Read() block duration in pull mode

# Output
debug: false                 # enable verbose logging
`
)

// Settings holds all application configuration.
type Settings struct {
	// Target format
	TargetSampleRate int    `mapstructure:"target_sample_rate"`
	TargetChannels   int    `mapstructure:"target_channels"`
	TargetEncoding   string `mapstructure:"target_encoding"`

	// Conversion
	ResampleQuality string `mapstructure:"resample_quality"`

	// Timeouts
	ActivationTimeoutMs int `mapstructure:"activation_timeout_ms"`
	JoinTimeoutMs       int `mapstructure:"join_timeout_ms"`
	ReadTimeoutMs       int `mapstructure:"read_timeout_ms"`

	// Output
	Debug bool `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/proctap/
func Init() error {
	// Set defaults
	viper.SetDefault("target_sample_rate", 48000)
	viper.SetDefault("target_channels", 2)
	viper.SetDefault("target_encoding", "int16")
	viper.SetDefault("resample_quality", "low-latency")
	viper.SetDefault("activation_timeout_ms", 3000)
	viper.SetDefault("join_timeout_ms", 2000)
	viper.SetDefault("read_timeout_ms", 200)
	viper.SetDefault("debug", false)

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		// Try config.yaml as fallback
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config found - create default in ~/.config/proctap/
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			// Read the newly created config
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings.
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// validEncodings maps the config file's encoding names to their
// proctap.SampleEncoding values.
var validEncodings = map[string]proctap.SampleEncoding{
	"int16":        proctap.EncodingInt16,
	"int24-packed": proctap.EncodingInt24Packed,
	"int24-in-32":  proctap.EncodingInt24In32,
	"int32":        proctap.EncodingInt32,
	"float32":      proctap.EncodingFloat32,
}

// Validate checks that all settings are within acceptable ranges.
func (s *Settings) Validate() error {
	var errs []error

	// Target format
	if s.TargetSampleRate <= 0 || s.TargetSampleRate > 384000 {
		errs = append(errs, fmt.Errorf("target_sample_rate must be between 1 and 384000 Hz, got %d", s.TargetSampleRate))
	}
	if s.TargetChannels < 1 || s.TargetChannels > 8 {
		errs = append(errs, fmt.Errorf("target_channels must be between 1 and 8, got %d", s.TargetChannels))
	}
	if _, ok := validEncodings[s.TargetEncoding]; !ok {
		errs = append(errs, fmt.Errorf("target_encoding must be one of int16, int24-packed, int24-in-32, int32, float32, got %q", s.TargetEncoding))
	}

	// Conversion
	if s.ResampleQuality != "low-latency" && s.ResampleQuality != "high-quality" {
		errs = append(errs, fmt.Errorf("resample_quality must be low-latency or high-quality, got %q", s.ResampleQuality))
	}

	// Timeouts
	if s.ActivationTimeoutMs < 1000 {
		errs = append(errs, fmt.Errorf("activation_timeout_ms must be >= 1000, got %d", s.ActivationTimeoutMs))
	}
	if s.JoinTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("join_timeout_ms must be >= 0, got %d", s.JoinTimeoutMs))
	}
	if s.ReadTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("read_timeout_ms must be >= 0, got %d", s.ReadTimeoutMs))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// TargetFormat builds the proctap.AudioFormat the settings describe.
func (s *Settings) TargetFormat() proctap.AudioFormat {
	return proctap.AudioFormat{
		SampleRateHz: s.TargetSampleRate,
		Channels:     s.TargetChannels,
		Encoding:     validEncodings[s.TargetEncoding],
	}
}

// Quality maps the configured resample_quality string to its
// proctap.ResamplingQuality value.
func (s *Settings) Quality() proctap.ResamplingQuality {
	if s.ResampleQuality == "high-quality" {
		return proctap.QualityHighQuality
	}
	return proctap.QualityLowLatency
}
