package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	appDirName        = "parking-finder-cli"
	defaultAPIBaseURL = "http://localhost:3000"
)

// Config is the full client configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Search   SearchConfig   `yaml:"search"`
	Location LocationConfig `yaml:"location"`
}

// APIConfig configures access to the parking directory service.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Burst          int           `yaml:"burst"`
}

// SearchConfig holds the nearby query defaults.
type SearchConfig struct {
	RadiusKM float64 `yaml:"radius_km"`
	SpeedKMH float64 `yaml:"speed_kmh"`
}

// LocationConfig controls how the current position is resolved.
type LocationConfig struct {
	Latitude          *float64      `yaml:"latitude"`
	Longitude         *float64      `yaml:"longitude"`
	DisableIPFallback bool          `yaml:"disable_ip_fallback"`
	CacheTTLSeconds   int           `yaml:"cache_ttl_seconds"`
	CacheTTL          time.Duration `yaml:"-"`
}

// Fixed reports whether a static position was configured.
func (l LocationConfig) Fixed() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// DefaultPath is config.yaml inside the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDirName, "config.yaml"), nil
}

// Load reads the YAML file at path (a missing file yields defaults), then applies
// .env and PARKING_* environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load() // ignore missing file
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		cfg.API.BaseURL = defaultAPIBaseURL
	}
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 12
	}
	cfg.API.Timeout = time.Duration(cfg.API.TimeoutSeconds) * time.Second
	if cfg.API.MaxAttempts <= 0 {
		cfg.API.MaxAttempts = 3
	}
	if cfg.API.RequestsPerSec <= 0 {
		cfg.API.RequestsPerSec = 5
	}
	if cfg.API.Burst <= 0 {
		cfg.API.Burst = 5
	}

	if cfg.Search.RadiusKM <= 0 {
		cfg.Search.RadiusKM = 5
	}
	if cfg.Search.SpeedKMH <= 0 {
		cfg.Search.SpeedKMH = 40
	}

	if cfg.Location.CacheTTLSeconds <= 0 {
		cfg.Location.CacheTTLSeconds = 120
	}
	cfg.Location.CacheTTL = time.Duration(cfg.Location.CacheTTLSeconds) * time.Second

	if (cfg.Location.Latitude == nil) != (cfg.Location.Longitude == nil) {
		log.Printf("location.latitude and location.longitude must be set together; ignoring fixed location")
		cfg.Location.Latitude = nil
		cfg.Location.Longitude = nil
	}
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("PARKING_API_URL")); v != "" {
		cfg.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PARKING_RADIUS_KM")); v != "" {
		radius, err := strconv.ParseFloat(v, 64)
		if err != nil || radius <= 0 {
			return fmt.Errorf("invalid PARKING_RADIUS_KM: %s", v)
		}
		cfg.Search.RadiusKM = radius
	}
	if v := strings.TrimSpace(os.Getenv("PARKING_SPEED_KMH")); v != "" {
		speed, err := strconv.ParseFloat(v, 64)
		if err != nil || speed <= 0 {
			return fmt.Errorf("invalid PARKING_SPEED_KMH: %s", v)
		}
		cfg.Search.SpeedKMH = speed
	}

	lat := strings.TrimSpace(os.Getenv("PARKING_LAT"))
	lng := strings.TrimSpace(os.Getenv("PARKING_LNG"))
	if lat != "" || lng != "" {
		latitude, longitude, err := ParseLatLng(lat, lng)
		if err != nil {
			return fmt.Errorf("invalid PARKING_LAT/PARKING_LNG: %w", err)
		}
		cfg.Location.Latitude = &latitude
		cfg.Location.Longitude = &longitude
	}
	return nil
}

// ParseLatLng parses a latitude/longitude pair and checks their ranges.
func ParseLatLng(lat string, lng string) (float64, float64, error) {
	latitude, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("latitude %q: %w", lat, err)
	}
	longitude, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("longitude %q: %w", lng, err)
	}
	if latitude < -90 || latitude > 90 {
		return 0, 0, fmt.Errorf("latitude %v out of range", latitude)
	}
	if longitude < -180 || longitude > 180 {
		return 0, 0, fmt.Errorf("longitude %v out of range", longitude)
	}
	return latitude, longitude, nil
}
