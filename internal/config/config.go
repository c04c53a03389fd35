package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config defines the runtime configuration for the drowsiness monitor.
type Config struct {
	// Video source: stream URL or device index
	VideoSource string `envconfig:"VIDEO_SOURCE" default:"http://192.168.1.10:4747/video" validate:"required"`

	// Device endpoint receiving GET /alert and /drowsy
	DeviceURL     string        `envconfig:"DEVICE_URL" default:"http://192.168.4.1" validate:"required,url"`
	NotifyTimeout time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"500ms" validate:"gt=0"`
	NotifyRate    float64       `envconfig:"NOTIFY_RATE" default:"0" validate:"gte=0"`

	// Classification
	Threshold      float64 `envconfig:"EAR_THRESHOLD" default:"0.22" validate:"gt=0"`
	LandmarkScheme string  `envconfig:"LANDMARK_SCHEME" default:"ibug-68" validate:"required"`

	// Detection
	ModelPath       string        `envconfig:"MODEL_PATH" default:"shape_predictor_68_face_landmarks.dat" validate:"required"`
	CascadePath     string        `envconfig:"CASCADE_PATH" default:"haarcascade_frontalface_default.xml" validate:"required"`
	LandmarkURL     string        `envconfig:"LANDMARK_URL" default:"ws://127.0.0.1:8765/landmarks" validate:"required,url"`
	LandmarkTimeout time.Duration `envconfig:"LANDMARK_TIMEOUT" default:"2s" validate:"gt=0"`

	// Presentation
	Display    bool   `envconfig:"DISPLAY_WINDOW" default:"true"`
	WindowName string `envconfig:"WINDOW_NAME" default:"Eye Detection"`
	HTTPAddr   string `envconfig:"HTTP_ADDR" default:":8080"`

	// Observability
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn warning error silent none"`
	LogColor    bool   `envconfig:"LOG_COLOR" default:"true"`
	LogFile     string `envconfig:"LOG_FILE"`

	// Optional sinks
	JournalPath  string `envconfig:"JOURNAL_PATH"`
	RedisAddr    string `envconfig:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisChannel string `envconfig:"REDIS_CHANNEL" default:"driver:state"`
	SnapshotDir  string `envconfig:"SNAPSHOT_DIR"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// BindFlags registers command-line overrides for the current values.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.VideoSource, "source", c.VideoSource, "Video stream URL or device index")
	fs.StringVar(&c.DeviceURL, "device", c.DeviceURL, "Base URL of the notification device")
	fs.DurationVar(&c.NotifyTimeout, "notify-timeout", c.NotifyTimeout, "Timeout for one device notification")
	fs.Float64Var(&c.NotifyRate, "notify-rate", c.NotifyRate, "Max repeated notifications per second (0 = unlimited)")
	fs.Float64Var(&c.Threshold, "threshold", c.Threshold, "EAR at or below which the driver is Drowsy")
	fs.StringVar(&c.LandmarkScheme, "scheme", c.LandmarkScheme, "Landmark scheme of the model")
	fs.StringVar(&c.ModelPath, "model", c.ModelPath, "Landmark model file")
	fs.StringVar(&c.CascadePath, "cascade", c.CascadePath, "Face detection cascade file")
	fs.StringVar(&c.LandmarkURL, "landmark-url", c.LandmarkURL, "Landmark service WebSocket URL")
	fs.BoolVar(&c.Display, "display", c.Display, "Show the annotated frame in a window")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "Web monitor address (empty disables)")
	fs.StringVar(&c.MetricsAddr, "metrics", c.MetricsAddr, "Metrics server address (empty disables)")
	fs.StringVar(&c.JournalPath, "journal", c.JournalPath, "SQLite journal path (empty disables)")
	fs.StringVar(&c.SnapshotDir, "snapshots", c.SnapshotDir, "Save drowsy-onset frames to this directory (empty disables)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error, silent)")
	fs.BoolVar(&c.LogColor, "log-color", c.LogColor, "Enable colored log output")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "Also write logs to this rotating file")
}

// Validate checks field constraints and that the model artifacts exist.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, path := range []string{c.ModelPath, c.CascadePath} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	return nil
}
