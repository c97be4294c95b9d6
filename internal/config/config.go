package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the server and the standalone scanner.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Server   ServerConfig   `yaml:"server"`
	Detector DetectorConfig `yaml:"detector"`
	Scan     ScanConfig     `yaml:"scan"`
	Storage  StorageConfig  `yaml:"storage"`
	Minio    MinioConfig    `yaml:"minio"`
	Kafka    KafkaConfig    `yaml:"kafka"`

	LogDirectory string `yaml:"log_dir" env:"LOG_DIR"`
}

// CameraConfig describes how to reach the PTZ camera.
type CameraConfig struct {
	Host     string        `yaml:"host" env:"CAM_IP"`
	Username string        `yaml:"username" env:"CAM_USER"`
	Password string        `yaml:"password" env:"CAM_PASSWORD"`
	Channel  int           `yaml:"channel" env:"CAM_CHANNEL"`
	HTTPS    bool          `yaml:"https" env:"CAM_HTTPS"`
	Timeout  time.Duration `yaml:"timeout" env:"CAM_TIMEOUT"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST"`
	Port int    `yaml:"port" env:"PORT"`
}

// DetectorConfig tunes the object detector. InputSize and MinConfidence are
// passed to the model on every call.
type DetectorConfig struct {
	ModelPath     string  `yaml:"model_path" env:"MODEL_PATH"`
	InputSize     int     `yaml:"input_size" env:"DETECTOR_INPUT_SIZE"`
	MinConfidence float64 `yaml:"min_confidence" env:"DETECTOR_MIN_CONFIDENCE"`
	TargetClass   int     `yaml:"target_class" env:"DETECTOR_TARGET_CLASS"`
	NMSThreshold  float64 `yaml:"nms_threshold" env:"DETECTOR_NMS_THRESHOLD"`
}

// ScanConfig controls the pan-until-found loop. MaxSteps 0 means unbounded.
type ScanConfig struct {
	PanSpeed     int           `yaml:"pan_speed" env:"SCAN_PAN_SPEED"`
	PanHold      time.Duration `yaml:"pan_hold" env:"SCAN_PAN_HOLD"`
	ZoomSpeed    int           `yaml:"zoom_speed" env:"SCAN_ZOOM_SPEED"`
	ZoomHold     time.Duration `yaml:"zoom_hold" env:"SCAN_ZOOM_HOLD"`
	MaxSteps     int           `yaml:"max_steps" env:"SCAN_MAX_STEPS"`
	InspectFirst bool          `yaml:"inspect_first" env:"SCAN_INSPECT_FIRST"`
}

type StorageConfig struct {
	DatabasePath   string        `yaml:"database_path" env:"DB_PATH"`
	ImageDirectory string        `yaml:"image_dir" env:"IMAGE_DIR"`
	BufferLimit    int           `yaml:"buffer_limit" env:"BUFFER_LIMIT"`
	FlushInterval  time.Duration `yaml:"flush_interval" env:"FLUSH_INTERVAL"`
}

// MinioConfig enables archiving of found frames when Endpoint is set.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
	Region    string `yaml:"region" env:"MINIO_REGION"`
	Secure    bool   `yaml:"secure" env:"MINIO_SECURE"`
}

// KafkaConfig enables publishing of scan events when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC"`
}

// Default returns the built-in settings. Camera credentials have no default.
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Channel: 0,
			Timeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Detector: DetectorConfig{
			ModelPath:     filepath.Join(".", "models", "yolov8n.onnx"),
			InputSize:     640,
			MinConfidence: 0.35,
			TargetClass:   16, // COCO "dog"
			NMSThreshold:  0.45,
		},
		Scan: ScanConfig{
			PanSpeed:  20,
			PanHold:   400 * time.Millisecond,
			ZoomSpeed: 10,
			ZoomHold:  600 * time.Millisecond,
		},
		Storage: StorageConfig{
			DatabasePath:   filepath.Join(".", "data", "dogfinder.db"),
			ImageDirectory: filepath.Join(".", "images"),
			BufferLimit:    10,
			FlushInterval:  30 * time.Second,
		},
		Minio: MinioConfig{
			Bucket: "dogfinder",
			Region: "us-east-1",
		},
		Kafka: KafkaConfig{
			Topic: "dogfinder-scans",
		},
		LogDirectory: filepath.Join(".", "logs"),
	}
}

// Load reads .env (if present), then the optional YAML file at path, then the
// process environment, and validates the result. Environment wins over YAML.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	var errs []error

	if c.Camera.Host == "" {
		errs = append(errs, errors.New("CAM_IP is required"))
	}
	if c.Camera.Username == "" {
		errs = append(errs, errors.New("CAM_USER is required"))
	}
	if c.Camera.Password == "" {
		errs = append(errs, errors.New("CAM_PASSWORD is required"))
	}
	if c.Camera.Channel < 0 {
		errs = append(errs, fmt.Errorf("invalid camera channel: %d", c.Camera.Channel))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d", c.Server.Port))
	}
	if c.Detector.InputSize <= 0 {
		errs = append(errs, fmt.Errorf("invalid detector input size: %d", c.Detector.InputSize))
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("detector confidence must be within [0,1], got %v", c.Detector.MinConfidence))
	}
	if c.Scan.PanSpeed <= 0 || c.Scan.ZoomSpeed <= 0 {
		errs = append(errs, errors.New("scan speeds must be positive"))
	}
	if c.Scan.PanHold <= 0 || c.Scan.ZoomHold <= 0 {
		errs = append(errs, errors.New("scan hold durations must be positive"))
	}
	if c.Scan.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("invalid scan max steps: %d", c.Scan.MaxSteps))
	}
	if c.Storage.FlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("invalid flush interval: %v", c.Storage.FlushInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ServerAddress returns the listen address of the HTTP server.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
