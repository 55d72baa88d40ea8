package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PARKING_API_URL", "PARKING_RADIUS_KM", "PARKING_SPEED_KMH", "PARKING_LAT", "PARKING_LNG"} {
		t.Setenv(key, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultAPIBaseURL, cfg.API.BaseURL)
	assert.Equal(t, 12*time.Second, cfg.API.Timeout)
	assert.Equal(t, 3, cfg.API.MaxAttempts)
	assert.Equal(t, 5.0, cfg.Search.RadiusKM)
	assert.Equal(t, 40.0, cfg.Search.SpeedKMH)
	assert.Equal(t, 2*time.Minute, cfg.Location.CacheTTL)
	assert.False(t, cfg.Location.Fixed())
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://parking.example.com/
  timeout_seconds: 3
  max_attempts: 1
search:
  radius_km: 2.5
location:
  latitude: -23.55
  longitude: -46.63
  disable_ip_fallback: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://parking.example.com", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, 1, cfg.API.MaxAttempts)
	assert.Equal(t, 2.5, cfg.Search.RadiusKM)
	require.True(t, cfg.Location.Fixed())
	assert.Equal(t, -23.55, *cfg.Location.Latitude)
	assert.True(t, cfg.Location.DisableIPFallback)

	t.Setenv("PARKING_API_URL", "http://10.0.2.2:3000")
	t.Setenv("PARKING_RADIUS_KM", "12")
	t.Setenv("PARKING_LAT", "40.7128")
	t.Setenv("PARKING_LNG", "-74.0060")

	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.2.2:3000", cfg.API.BaseURL)
	assert.Equal(t, 12.0, cfg.Search.RadiusKM)
	assert.Equal(t, 40.7128, *cfg.Location.Latitude)
	assert.Equal(t, -74.0060, *cfg.Location.Longitude)
}

func TestLoad_InvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARKING_RADIUS_KM", "far")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PARKING_RADIUS_KM")

	t.Setenv("PARKING_RADIUS_KM", "")
	t.Setenv("PARKING_LAT", "95")
	t.Setenv("PARKING_LNG", "0")
	_, err = Load("")
	require.Error(t, err)
}

func TestLoad_HalfFixedLocationIgnored(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("location:\n  latitude: 10\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Location.Fixed())
}

func TestParseLatLng(t *testing.T) {
	lat, lng, err := ParseLatLng(" 1.5", "-2.25 ")
	require.NoError(t, err)
	assert.Equal(t, 1.5, lat)
	assert.Equal(t, -2.25, lng)

	_, _, err = ParseLatLng("x", "0")
	assert.Error(t, err)
	_, _, err = ParseLatLng("0", "181")
	assert.Error(t, err)
}
