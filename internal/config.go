// Package internal holds the process configuration, read from the environment.
package internal

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8000"`
	GRPCPort int    `env:"GRPC_PORT,default=8001"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	LimitMessages  *int   `env:"LIMIT_MESSAGES"`

	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	StorageURI       string        `env:"STORAGE_URI,default=media_files"`
	StorageEndpoint  string        `env:"STORAGE_ENDPOINT,default=localhost:9000"`
	StorageAccessKey string        `env:"STORAGE_ACCESS_KEY"`
	StorageSecretKey string        `env:"STORAGE_SECRET_KEY"`
	StorageRegion    string        `env:"STORAGE_REGION,default=eu-west-3"`
	StorageUseSSL    bool          `env:"STORAGE_USE_SSL,default=false"`
	MediaURLTTL      time.Duration `env:"MEDIA_URL_TTL,default=30m"`
	MaxUploadBytes   int64         `env:"MAX_UPLOAD_BYTES,default=20971520"`

	NumberOfShards       int           `env:"NUMBER_OF_SHARDS,default=4"`
	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	DispatchTimeout      time.Duration `env:"DISPATCH_TIMEOUT,default=100ms"`
	PublishTimeout       time.Duration `env:"PUBLISH_TIMEOUT,default=1s"`
	MaxConsecutiveDrops  int           `env:"MAX_CONSECUTIVE_DROPS,default=32"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`

	PingInterval    time.Duration `env:"PING_INTERVAL,default=20s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	FramesPerSecond int           `env:"FRAMES_PER_SECOND,default=20"`
	MaxFrameBytes   int64         `env:"MAX_FRAME_BYTES,default=65536"`

	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=4096"`
	ModerationFile       string        `env:"MODERATION_FILE"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=5s"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=80"`
}

// Load reads an optional .env file then the environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return Config{}, fmt.Errorf("loading %v: %w", files, err)
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	switch {
	case c.NumberOfShards <= 0:
		return fmt.Errorf("NUMBER_OF_SHARDS must be positive, got %d", c.NumberOfShards)
	case c.ConnectionBufferSize <= 0:
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	case c.PingInterval <= 0 || c.IdleTimeout <= c.PingInterval:
		return fmt.Errorf("IDLE_TIMEOUT (%s) must exceed PING_INTERVAL (%s)", c.IdleTimeout, c.PingInterval)
	case c.LowCapacityThreshold <= 0 || c.LowCapacityThreshold > 100:
		return fmt.Errorf("LOW_CAPACITY_THRESHOLD must be a percentage, got %d", c.LowCapacityThreshold)
	}
	return nil
}

func (c Config) Address() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

func (c Config) GRPCAddress() string { return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort) }

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
