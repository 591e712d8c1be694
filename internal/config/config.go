package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// OCR engines.
const (
	EngineTesseract    = "tesseract"
	EngineOpenAIVision = "openai-vision"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		CORSOrigins     []string      `yaml:"corsOrigins"`
		APIKeys         []string      `yaml:"apiKeys"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		RateLimit       struct {
			Capacity   int `yaml:"capacity"`
			RefillRate int `yaml:"refillRate"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Storage struct {
		Driver     string        `yaml:"driver"`
		SessionTTL time.Duration `yaml:"sessionTTL"`
		Database   struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			Name     string `yaml:"name"`
			SSLMode  string `yaml:"sslMode"`
		} `yaml:"database"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"storage"`

	Minio struct {
		Endpoint   string        `yaml:"endpoint"`
		AccessKey  string        `yaml:"accessKey"`
		SecretKey  string        `yaml:"secretKey"`
		BucketName string        `yaml:"bucketName"`
		Region     string        `yaml:"region"`
		UseSSL     bool          `yaml:"useSSL"`
		PresignTTL time.Duration `yaml:"presignTTL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey            string  `yaml:"apiKey"`
		BaseURL           string  `yaml:"baseURL"`
		Model             string  `yaml:"model"`
		VisionModel       string  `yaml:"visionModel"`
		MaxTokens         int     `yaml:"maxTokens"`
		RequestsPerSecond float64 `yaml:"requestsPerSecond"`
		Burst             int     `yaml:"burst"`
	} `yaml:"openai"`

	OCR struct {
		Engine      string `yaml:"engine"`
		Language    string `yaml:"language"`
		PageSegMode int    `yaml:"pageSegMode"`
	} `yaml:"ocr"`

	Converter struct {
		Command string   `yaml:"command"`
		Args    []string `yaml:"args"`
		TempDir string   `yaml:"tempDir"`
	} `yaml:"converter"`

	Upload struct {
		MaxFileBytes int64 `yaml:"maxFileBytes"`
		MaxFiles     int   `yaml:"maxFiles"`
	} `yaml:"upload"`

	Generate struct {
		Concurrency int           `yaml:"concurrency"`
		ItemTimeout time.Duration `yaml:"itemTimeout"`
	} `yaml:"generate"`

	Export struct {
		AllowIncomplete bool `yaml:"allowIncomplete"`
		Optimize        bool `yaml:"optimize"`
		MaxImagePixels  int  `yaml:"maxImagePixels"`
	} `yaml:"export"`
}

// Load baca file config.yaml, lalu isi default dan override dari env.
// A missing file is not an error; defaults and the environment still apply.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.SessionTTL == 0 {
		c.Storage.SessionTTL = 24 * time.Hour
	}
	if c.Storage.Database.Host == "" {
		c.Storage.Database.Host = "localhost"
	}
	if c.Storage.Database.Port == 0 {
		switch c.Storage.Driver {
		case DriverPostgres:
			c.Storage.Database.Port = 5432
		default:
			c.Storage.Database.Port = 3306
		}
	}
	if c.Storage.Database.SSLMode == "" {
		c.Storage.Database.SSLMode = "disable"
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = "localhost:6379"
	}

	if c.Minio.BucketName == "" {
		c.Minio.BucketName = "scribe-notes"
	}
	if c.Minio.PresignTTL == 0 {
		c.Minio.PresignTTL = time.Hour
	}

	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-3.5-turbo"
	}
	if c.OpenAI.VisionModel == "" {
		c.OpenAI.VisionModel = "gpt-4o-mini"
	}
	if c.OpenAI.MaxTokens == 0 {
		c.OpenAI.MaxTokens = 2048
	}

	if c.OCR.Engine == "" {
		c.OCR.Engine = EngineTesseract
	}
	if c.OCR.Language == "" {
		c.OCR.Language = "eng"
	}
	if c.OCR.PageSegMode == 0 {
		c.OCR.PageSegMode = 3
	}

	if c.Converter.Command == "" {
		c.Converter.Command = "heif-convert"
	}

	if c.Upload.MaxFileBytes == 0 {
		c.Upload.MaxFileBytes = 5 << 20
	}
	if c.Upload.MaxFiles == 0 {
		c.Upload.MaxFiles = 50
	}

	if c.Export.MaxImagePixels == 0 {
		c.Export.MaxImagePixels = 1600
	}
}

// applyEnv overrides secrets and deployment-specific values from the environment.
func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	str("OPENAI_MODEL", &c.OpenAI.Model)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("DB_HOST", &c.Storage.Database.Host)
	str("DB_USER", &c.Storage.Database.User)
	str("DB_PASSWORD", &c.Storage.Database.Password)
	str("DB_NAME", &c.Storage.Database.Name)
	str("REDIS_ADDR", &c.Storage.Redis.Addr)
	str("REDIS_PASSWORD", &c.Storage.Redis.Password)
	str("MINIO_ENDPOINT", &c.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &c.Minio.SecretKey)
	str("OCR_ENGINE", &c.OCR.Engine)

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("API_KEYS"); v != "" {
		c.Server.APIKeys = nil
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.Server.APIKeys = append(c.Server.APIKeys, k)
			}
		}
	}
	return nil
}

// Validate checks the values the service cannot run without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: out of range: %d", c.Server.Port)
	}
	if c.OpenAI.APIKey == "" {
		return errors.New("openai.apiKey: required (or set OPENAI_API_KEY)")
	}
	if c.OpenAI.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.OpenAI.BaseURL); err != nil {
			return fmt.Errorf("openai.baseURL: %w", err)
		}
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverRedis:
	case DriverMySQL, DriverPostgres:
		if c.Storage.Database.Name == "" {
			return fmt.Errorf("storage.database.name: required for driver %s", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	switch c.OCR.Engine {
	case EngineTesseract, EngineOpenAIVision:
	default:
		return fmt.Errorf("ocr.engine: unknown engine %q", c.OCR.Engine)
	}

	if c.Upload.MaxFileBytes < 0 {
		return fmt.Errorf("upload.maxFileBytes: must not be negative")
	}
	if c.Generate.Concurrency < 0 {
		return fmt.Errorf("generate.concurrency: must not be negative")
	}
	if c.Minio.Endpoint != "" && (c.Minio.AccessKey == "" || c.Minio.SecretKey == "") {
		return errors.New("minio: accessKey and secretKey are required when endpoint is set")
	}
	return nil
}

// ResolveOCREngine returns the engine to run. A tesseract selection falls back
// to openai-vision when the binary was built without the ocr tag; fellBack
// reports that case so the caller can warn.
func (c *Config) ResolveOCREngine(tesseractAvailable bool) (engine string, fellBack bool) {
	if c.OCR.Engine == EngineTesseract && !tesseractAvailable {
		return EngineOpenAIVision, true
	}
	return c.OCR.Engine, false
}

// MinioEnabled reports whether exports can be stored in object storage.
func (c *Config) MinioEnabled() bool {
	return c.Minio.Endpoint != ""
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	db := c.Storage.Database
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		db.User,
		db.Password,
		db.Host,
		db.Port,
		db.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	db := c.Storage.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host,
		db.Port,
		db.User,
		db.Password,
		db.Name,
		db.SSLMode,
	)
}
