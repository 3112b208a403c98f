package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	Compression CompressionConfig `mapstructure:"compression"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig contains batch compression settings
type CompressionConfig struct {
	DefaultQuality      int      `mapstructure:"default_quality" validate:"min=0,max=100"`
	Workers             int      `mapstructure:"workers" validate:"min=0,max=64"`
	ArchiveName         string   `mapstructure:"archive_name" validate:"required"`
	SupportedExtensions []string `mapstructure:"supported_extensions"`
}

// ServerConfig contains web interface settings
type ServerConfig struct {
	Port        int `mapstructure:"port" validate:"min=1,max=65535"`
	MaxUploadMB int `mapstructure:"max_upload_mb" validate:"min=1"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Compression: CompressionConfig{
			DefaultQuality: 85,
			Workers:        1,
			ArchiveName:    "compressed_images.zip",
			SupportedExtensions: []string{
				".jpg", ".jpeg", ".png", ".gif",
			},
		},
		Server: ServerConfig{
			Port:        8080,
			MaxUploadMB: 64,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			FilePath:   "image-compressor.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-compressor")
		v.AddConfigPath("/etc/image-compressor")
	}

	// Enable environment variable support
	v.SetEnvPrefix("IMAGE_COMPRESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindEnvKeys registers every known key so AutomaticEnv also applies when no
// config file provides the key.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"compression.default_quality",
		"compression.workers",
		"compression.archive_name",
		"server.port",
		"server.max_upload_mb",
		"logging.level",
		"logging.format",
		"logging.file_path",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate validates and normalizes the configuration
func (c *Config) Validate() error {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if c.Compression.Workers <= 0 {
		c.Compression.Workers = 1
	}
	c.Compression.SupportedExtensions = normalizeExtensions(c.Compression.SupportedExtensions)

	if err := validator.New().Struct(c); err != nil {
		return err
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// IsSupportedExtension checks if the extension is accepted for upload
func (c *Config) IsSupportedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supportedExt := range c.Compression.SupportedExtensions {
		if ext == supportedExt {
			return true
		}
	}
	return false
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
