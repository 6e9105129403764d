package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Practice PracticeConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
	Tracing  TracingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// PracticeConfig holds practice pipeline configuration
type PracticeConfig struct {
	FFmpegPath string
	// SampleRate all clips are decoded at for analysis.
	SampleRate int
	// SeekTimeout bounds the wait for the host seek before capture.
	SeekTimeout time.Duration
	// CaptureMargin extends capture past the window so trailing audio is
	// kept.
	CaptureMargin time.Duration
	// CountdownTicks and TickInterval shape the pre-roll countdown.
	CountdownTicks int
	TickInterval   time.Duration
	// SubtitleTTL is how long an ingested subtitle feed stays cached.
	SubtitleTTL time.Duration
	TempDir     string
	// MicFormat/MicDevice name the FFmpeg capture device for server-side
	// recording. An empty device disables it; clients upload clips instead.
	MicFormat string
	MicDevice string
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Port int
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	ServiceName    string
	JaegerEndpoint string
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.readTimeout", "30s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "10s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "chorus")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxConns", 25)
	viper.SetDefault("database.minConns", 5)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Storage defaults
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accessKeyID", "minioadmin")
	viper.SetDefault("storage.secretAccessKey", "minioadmin")
	viper.SetDefault("storage.bucketName", "clips")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.useSSL", false)

	// Queue defaults
	viper.SetDefault("queue.host", "localhost")
	viper.SetDefault("queue.port", 5672)
	viper.SetDefault("queue.user", "guest")
	viper.SetDefault("queue.password", "guest")
	viper.SetDefault("queue.vhost", "/")

	// Practice defaults
	viper.SetDefault("practice.ffmpegPath", "ffmpeg")
	viper.SetDefault("practice.sampleRate", 16000)
	viper.SetDefault("practice.seekTimeout", "5s")
	viper.SetDefault("practice.captureMargin", "200ms")
	viper.SetDefault("practice.countdownTicks", 3)
	viper.SetDefault("practice.tickInterval", "1s")
	viper.SetDefault("practice.subtitleTTL", "45m")
	viper.SetDefault("practice.tempDir", "/tmp/chorus")
	viper.SetDefault("practice.micFormat", "alsa")
	viper.SetDefault("practice.micDevice", "")

	// Auth defaults
	viper.SetDefault("auth.jwtSecret", "")

	// Metrics defaults
	viper.SetDefault("metrics.port", 9091)

	// Tracing defaults
	viper.SetDefault("tracing.serviceName", "chorus")
	viper.SetDefault("tracing.jaegerEndpoint", "http://localhost:14268/api/traces")
}
