package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DB         DBConfig
	Images     ImagesConfig
	S3         S3Config
	Scheduler  SchedulerConfig
	Sync       SyncConfig
	HTTPAddr   string
	LogLevel   string `validate:"oneof=trace debug info warn error"`
	LogFile    string
	SourcesDir string
	Sources    map[string]*SourceConfig `validate:"dive"`
}

type DBConfig struct {
	Driver string `validate:"oneof=sqlite mysql postgres"`
	DSN    string `validate:"required"`
}

type ImagesConfig struct {
	Dir          string        `validate:"required"`
	MaxDimension int           `validate:"gte=0"`
	Quality      int           `validate:"gte=0,lte=100"`
	Timeout      time.Duration `validate:"gte=0"`
	Concurrency  int           `validate:"gte=1"`
	RPS          float64       `validate:"gte=0"`
}

// S3Config switches image storage to a bucket when Bucket is set.
type S3Config struct {
	Bucket          string
	Region          string `validate:"required_with=Bucket"`
	Endpoint        string // DO Spaces, R2, MinIO
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type SyncConfig struct {
	BatchSize  int           `validate:"gte=1"`
	RunTimeout time.Duration `validate:"gt=0"`
	StartGrace time.Duration `validate:"gt=0"`
}

// SourceConfig describes one external listings API.
type SourceConfig struct {
	ID       string            `yaml:"id" validate:"required"`
	Name     string            `yaml:"name"`
	Endpoint string            `yaml:"endpoint" validate:"required,url"`
	Method   string            `yaml:"method" validate:"omitempty,oneof=GET POST"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
	Filters  Filters           `yaml:"filters"`
	Disabled bool              `yaml:"disabled"`

	DownloadImages *bool `yaml:"download_images"`
	TrackChanges   *bool `yaml:"track_changes"`
	MarkInactive   bool  `yaml:"mark_inactive"`
	Limit          int   `yaml:"limit" validate:"gte=0"`
	BatchSize      int   `yaml:"batch_size" validate:"gte=0"`
}

// Filters are sent to the API as the "filtros" object.
type Filters struct {
	Ref       string            `yaml:"ref"`
	SyncCode  string            `yaml:"sync_code"`
	UseID     int               `yaml:"use_id"`
	StatusIDs []int             `yaml:"status_ids"`
	City      string            `yaml:"city"`
	Extra     map[string]string `yaml:"extra"`
}

func (f Filters) Empty() bool {
	return f.Ref == "" && f.SyncCode == "" && f.UseID == 0 && len(f.StatusIDs) == 0 && f.City == "" && len(f.Extra) == 0
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DB: DBConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			DSN:    getEnv("DB_DSN", "propsync.db"),
		},
		Images: ImagesConfig{
			Dir:          getEnv("IMAGES_DIR", "images"),
			MaxDimension: getEnvInt("IMAGE_MAX_DIMENSION", 1600),
			Quality:      getEnvInt("IMAGE_QUALITY", 82),
			Timeout:      getEnvDuration("IMAGE_TIMEOUT", 30*time.Second),
			Concurrency:  getEnvInt("IMAGE_CONCURRENCY", 3),
			RPS:          getEnvFloat("IMAGE_RPS", 0),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			Prefix:          os.Getenv("S3_PREFIX"),
		},
		Scheduler: SchedulerConfig{
			Cron:     os.Getenv("SYNC_CRON"),
			Interval: getEnvDuration("SYNC_INTERVAL", 0),
		},
		Sync: SyncConfig{
			BatchSize:  getEnvInt("SYNC_BATCH_SIZE", 5),
			RunTimeout: getEnvDuration("RUN_TIMEOUT", 30*time.Minute),
			StartGrace: getEnvDuration("START_GRACE", 5*time.Minute),
		},
		HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFile:    getEnv("LOG_FILE", "propsync.log"),
		SourcesDir: getEnv("SOURCES_DIR", "config/sources"),
	}

	sources, err := LoadSources(cfg.SourcesDir)
	if err != nil {
		return nil, err
	}
	cfg.Sources = sources

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SourceIDs returns the enabled source ids in a stable order.
func (c *Config) SourceIDs() []string {
	ids := make([]string, 0, len(c.Sources))
	for id, src := range c.Sources {
		if !src.Disabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// LoadSources reads every *.yaml file in dir. A missing dir yields no
// sources.
func LoadSources(dir string) (map[string]*SourceConfig, error) {
	sources := make(map[string]*SourceConfig)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return sources, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		var src SourceConfig
		if err := yaml.Unmarshal(data, &src); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if err := validate.Struct(&src); err != nil {
			return nil, fmt.Errorf("source %s: %w", path, err)
		}
		if _, dup := sources[src.ID]; dup {
			return nil, fmt.Errorf("source %s: duplicate id %q", path, src.ID)
		}
		sources[src.ID] = &src
	}

	return sources, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
