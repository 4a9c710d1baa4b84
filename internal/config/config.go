package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"mwork_attachments/internal/logger"
	"mwork_attachments/internal/storage"
	"mwork_attachments/internal/validator"
)

type StyleConfig struct {
	Name     string `yaml:"name" validate:"required,identifier"`
	Geometry string `yaml:"geometry" validate:"required,geometry"`
}

// AttachmentConfig declares one attachment of an entity kind.
type AttachmentConfig struct {
	Name          string        `yaml:"name" validate:"required,identifier"`
	Styles        []StyleConfig `yaml:"styles" validate:"dive"`
	Path          string        `yaml:"path"`
	URL           string        `yaml:"url"`
	DefaultURL    string        `yaml:"default_url"`
	DefaultStyle  string        `yaml:"default_style"`
	KeepOldFiles  bool          `yaml:"keep_old_files"`
	PreserveFiles bool          `yaml:"preserve_files"`
}

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port" validate:"min=0,max=65535"`
		Env  string `yaml:"env" validate:"omitempty,oneof=development production test"`
	} `yaml:"server"`

	Database struct {
		Driver string `yaml:"driver" validate:"oneof=postgres mysql sqlite"`
		DSN    string `yaml:"url" validate:"required"`
	} `yaml:"database"`

	Storage struct {
		Type       string `yaml:"type" validate:"omitempty,oneof=local s3 cloudflare_r2"`
		BasePath   string `yaml:"base_path"`   // For local storage
		BaseURL    string `yaml:"base_url"`    // Public URL base
		Bucket     string `yaml:"bucket"`      // For S3/R2
		Region     string `yaml:"region"`      // For S3
		AccessKey  string `yaml:"access_key"`  // For S3/R2
		SecretKey  string `yaml:"secret_key"`  // For S3/R2
		Endpoint   string `yaml:"endpoint"`    // For R2 or custom S3
		UseSSL     bool   `yaml:"use_ssl"`     // For S3/R2
		PublicRead bool   `yaml:"public_read"` // Make files public
	} `yaml:"storage"`

	Attachments struct {
		DeleteSentinel  string                        `yaml:"delete_sentinel"`
		ImageQuality    int                           `yaml:"image_quality" validate:"min=0,max=100"`
		MaxUploadSize   int64                         `yaml:"max_upload_size" validate:"min=0"`
		MaxDownloadSize int64                         `yaml:"max_download_size" validate:"min=0"`
		Kinds           map[string][]AttachmentConfig `yaml:"kinds" validate:"dive,keys,identifier,endkeys,dive"`
	} `yaml:"attachments"`
}

const (
	defaultConfigPath     = "config/config.yaml"
	defaultDeleteSentinel = "__!__null__!__"
)

var AppConfig *Config

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. A missing file is allowed when
// DATABASE_URL is set.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file at %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && os.Getenv("DATABASE_URL") != "":
		logger.Info("config file not found, using environment", "path", path)
	default:
		return nil, fmt.Errorf("failed to open config file at %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := validator.New().Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SERVER_ENV"); v != "" {
		cfg.Server.Env = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("STORAGE_PATH"); v != "" {
		cfg.Storage.BasePath = v
	}
	if v := os.Getenv("ATTACHMENT_DELETE_SENTINEL"); v != "" {
		cfg.Attachments.DeleteSentinel = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4000
	}
	if cfg.Server.Env == "" {
		cfg.Server.Env = "development"
	}
	if cfg.Database.Driver == "" {
		if strings.HasPrefix(cfg.Database.DSN, "postgres") || strings.Contains(cfg.Database.DSN, "host=") {
			cfg.Database.Driver = "postgres"
		} else if strings.Contains(cfg.Database.DSN, "@tcp(") {
			cfg.Database.Driver = "mysql"
		} else {
			cfg.Database.Driver = "sqlite"
		}
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.Type == "local" {
		if cfg.Storage.BasePath == "" {
			cfg.Storage.BasePath = "./uploads"
		}
		if cfg.Storage.BaseURL == "" {
			cfg.Storage.BaseURL = "/files"
		}
	}
	if cfg.Attachments.DeleteSentinel == "" {
		cfg.Attachments.DeleteSentinel = defaultDeleteSentinel
	}
	if cfg.Attachments.ImageQuality == 0 {
		cfg.Attachments.ImageQuality = 85
	}
	if cfg.Attachments.MaxUploadSize == 0 {
		cfg.Attachments.MaxUploadSize = 10 * 1024 * 1024 // 10MB
	}
}

// StorageConfig converts the storage section for storage.NewStorage.
func (c *Config) StorageConfig() storage.Config {
	s := c.Storage
	return storage.Config{
		Type:       s.Type,
		BasePath:   s.BasePath,
		BaseURL:    s.BaseURL,
		Bucket:     s.Bucket,
		Region:     s.Region,
		AccessKey:  s.AccessKey,
		SecretKey:  s.SecretKey,
		Endpoint:   s.Endpoint,
		UseSSL:     s.UseSSL,
		PublicRead: s.PublicRead,
	}
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// LoadConfig loads the global config from CONFIG_PATH (default
// config/config.yaml) and exits on failure.
func LoadConfig() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := Load(path)
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}
	AppConfig = cfg
}

func GetConfig() *Config {
	if AppConfig == nil {
		LoadConfig()
	}
	return AppConfig
}
