// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"bwupload/extract"
	"bwupload/imaging"
)

const (
	BackendMinio = "minio"
	BackendS3    = "s3"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Alert   AlertConfig
	Image   ImageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Listen         string
	MaxUploadBytes int64
	ProcessTimeout time.Duration
}

type StorageConfig struct {
	Backend         string
	OriginalBucket  string
	ProcessedBucket string
	Minio           MinioConfig
	S3              S3Config
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type AlertConfig struct {
	SNSTopicARN string
	Region      string
}

type ImageConfig struct {
	MaxDimension  int
	JPEGQuality   int
	MaxPixels     int64
	ExtractPolicy extract.Policy
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads the environment through a fresh viper instance, so repeated calls
// (and tests) never share state.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	policy, ok := extract.ParsePolicy(v.GetString("EXTRACT_POLICY"))
	if !ok {
		return nil, fmt.Errorf("unknown EXTRACT_POLICY %q", v.GetString("EXTRACT_POLICY"))
	}

	cfg := &Config{
		Server: ServerConfig{
			Listen:         v.GetString("LISTEN_ADDR"),
			MaxUploadBytes: v.GetInt64("MAX_UPLOAD_BYTES"),
			ProcessTimeout: v.GetDuration("PROCESS_TIMEOUT"),
		},
		Storage: StorageConfig{
			Backend:         strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_BACKEND"))),
			OriginalBucket:  v.GetString("ORIGINAL_BUCKET"),
			ProcessedBucket: v.GetString("PROCESSED_BUCKET"),
			Minio: MinioConfig{
				Endpoint:  v.GetString("MINIO_ENDPOINT"),
				AccessKey: v.GetString("MINIO_ACCESS_KEY"),
				SecretKey: v.GetString("MINIO_SECRET_KEY"),
				UseSSL:    v.GetBool("MINIO_USE_SSL"),
				Region:    v.GetString("MINIO_REGION"),
			},
			S3: S3Config{
				Endpoint:        v.GetString("S3_ENDPOINT"),
				Region:          v.GetString("S3_REGION"),
				AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
				SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			},
		},
		Alert: AlertConfig{
			SNSTopicARN: v.GetString("SNS_TOPIC_ARN"),
			Region:      v.GetString("S3_REGION"),
		},
		Image: ImageConfig{
			MaxDimension:  v.GetInt("MAX_DIMENSION"),
			JPEGQuality:   v.GetInt("JPEG_QUALITY"),
			MaxPixels:     v.GetInt64("MAX_PIXELS"),
			ExtractPolicy: policy,
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("PROCESS_TIMEOUT", 30*time.Second)

	v.SetDefault("STORAGE_BACKEND", BackendMinio)
	v.SetDefault("ORIGINAL_BUCKET", "original-images")
	v.SetDefault("PROCESSED_BUCKET", "processed-images")
	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("MINIO_REGION", "")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_ACCESS_KEY_ID", "")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "")

	v.SetDefault("SNS_TOPIC_ARN", "")

	v.SetDefault("MAX_DIMENSION", imaging.DefaultMaxDimension)
	v.SetDefault("JPEG_QUALITY", imaging.DefaultQuality)
	v.SetDefault("MAX_PIXELS", imaging.DefaultMaxPixels)
	v.SetDefault("EXTRACT_POLICY", "first")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMinio, BackendS3:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want %s or %s)", c.Storage.Backend, BackendMinio, BackendS3)
	}
	if c.Storage.OriginalBucket == "" || c.Storage.ProcessedBucket == "" {
		return fmt.Errorf("ORIGINAL_BUCKET and PROCESSED_BUCKET must be set")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.Server.MaxUploadBytes)
	}
	if c.Server.ProcessTimeout <= 0 {
		return fmt.Errorf("PROCESS_TIMEOUT must be positive, got %s", c.Server.ProcessTimeout)
	}
	if c.Image.MaxDimension <= 0 {
		return fmt.Errorf("MAX_DIMENSION must be positive, got %d", c.Image.MaxDimension)
	}
	if c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be within 1..100, got %d", c.Image.JPEGQuality)
	}
	if c.Image.MaxPixels <= 0 {
		return fmt.Errorf("MAX_PIXELS must be positive, got %d", c.Image.MaxPixels)
	}
	return nil
}
