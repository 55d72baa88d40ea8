package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"parking-finder-cli/model"
)

const (
	ipLocationEndpoint    = "https://ipapi.co/json/"
	ipWhoIsEndpoint       = "https://ipwho.is/"
	ipInfoEndpoint        = "https://ipinfo.io/json"
	locationErrorSnippetN = 120
	ipAccuracyM           = 5000
	positionCacheKey      = "position"
)

var (
	// ErrLocationDisabled means no location service is available on this device.
	ErrLocationDisabled = errors.New("location services are disabled")
	// ErrPermissionDenied means the user refused access to the device location.
	ErrPermissionDenied = errors.New("location permission denied")
)

// Permission is the outcome of a location permission request.
type Permission int

const (
	PermissionDenied Permission = iota
	PermissionGranted
)

func (p Permission) String() string {
	if p == PermissionGranted {
		return "granted"
	}
	return "denied"
}

// LocationProvider supplies the device's current coordinates.
type LocationProvider interface {
	ServiceEnabled(ctx context.Context) bool
	RequestPermission(ctx context.Context) (Permission, error)
	CurrentPosition(ctx context.Context) (model.Coordinates, error)
}

// Locate runs the provider contract in order: service check, permission, position.
func Locate(ctx context.Context, provider LocationProvider) (model.Coordinates, error) {
	if provider == nil {
		return model.Coordinates{}, ErrLocationDisabled
	}
	if !provider.ServiceEnabled(ctx) {
		return model.Coordinates{}, ErrLocationDisabled
	}
	permission, err := provider.RequestPermission(ctx)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("request location permission: %w", err)
	}
	if permission != PermissionGranted {
		return model.Coordinates{}, ErrPermissionDenied
	}
	position, err := provider.CurrentPosition(ctx)
	if err != nil {
		return model.Coordinates{}, err
	}
	return position, nil
}

// IsLocationDenied reports whether err is a terminal permission/service condition.
func IsLocationDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrLocationDisabled)
}

// StaticLocator always reports the same position.
type StaticLocator struct {
	Position model.Coordinates
}

func (s StaticLocator) ServiceEnabled(context.Context) bool { return true }

func (s StaticLocator) RequestPermission(context.Context) (Permission, error) {
	return PermissionGranted, nil
}

func (s StaticLocator) CurrentPosition(ctx context.Context) (model.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return model.Coordinates{}, err
	}
	position := s.Position
	if position.Source == "" {
		position.Source = "static"
	}
	return position, nil
}

type ipProvider struct {
	name     string
	endpoint string
	parse    func([]byte) (model.Coordinates, error)
}

var defaultIPProviders = []ipProvider{
	{name: "ipapi", endpoint: ipLocationEndpoint, parse: parseIPAPI},
	{name: "ipwhois", endpoint: ipWhoIsEndpoint, parse: parseIPWhoIs},
	{name: "ipinfo", endpoint: ipInfoEndpoint, parse: parseIPInfo},
}

var (
	systemServicesEnabledFn = systemServicesEnabled
	systemPermissionFn      = systemPermission
	systemLocationFn        = systemLocation
)

// DeviceLocator resolves the position through the operating system, falling back
// to IP geolocation when allowed. Readings are cached for the configured TTL.
type DeviceLocator struct {
	httpClient *http.Client
	ipFallback bool
	providers  []ipProvider
	readings   *cache.Cache
}

// NewDeviceLocator creates a locator. If httpClient is nil, a default client is used.
func NewDeviceLocator(httpClient *http.Client, ipFallback bool, ttl time.Duration) *DeviceLocator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 8 * time.Second}
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &DeviceLocator{
		httpClient: httpClient,
		ipFallback: ipFallback,
		providers:  defaultIPProviders,
		readings:   cache.New(ttl, 2*ttl),
	}
}

func (d *DeviceLocator) ServiceEnabled(context.Context) bool {
	return systemServicesEnabledFn() || d.ipFallback
}

func (d *DeviceLocator) RequestPermission(ctx context.Context) (Permission, error) {
	if err := ctx.Err(); err != nil {
		return PermissionDenied, err
	}
	if !systemServicesEnabledFn() {
		if d.ipFallback {
			return PermissionGranted, nil
		}
		return PermissionDenied, nil
	}
	// An explicit refusal is respected even when IP lookup could answer.
	return systemPermissionFn(), nil
}

func (d *DeviceLocator) CurrentPosition(ctx context.Context) (model.Coordinates, error) {
	if cached, ok := d.readings.Get(positionCacheKey); ok {
		return cached.(model.Coordinates), nil
	}

	position, err := d.lookup(ctx)
	if err != nil {
		return model.Coordinates{}, err
	}
	d.readings.SetDefault(positionCacheKey, position)
	return position, nil
}

// Forget drops the cached reading so the next call performs a fresh lookup.
func (d *DeviceLocator) Forget() {
	d.readings.Delete(positionCacheKey)
}

func (d *DeviceLocator) lookup(ctx context.Context) (model.Coordinates, error) {
	var systemErr error
	if systemServicesEnabledFn() {
		position, err := systemLocationFn(ctx)
		if err == nil {
			if strings.TrimSpace(position.Source) == "" {
				position.Source = "system"
			}
			return position, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return model.Coordinates{}, err
		}
		if errors.Is(err, ErrPermissionDenied) {
			return model.Coordinates{}, err
		}
		systemErr = err
	} else {
		systemErr = ErrLocationDisabled
	}

	if !d.ipFallback {
		return model.Coordinates{}, systemErr
	}

	position, ipErr := locateWithIPProviders(ctx, d.httpClient, d.providers)
	if ipErr == nil {
		log.Printf("[location] system lookup failed: %v; using fallback source: %s", systemErr, position.Source)
		return position, nil
	}
	if errors.Is(ipErr, context.Canceled) || errors.Is(ipErr, context.DeadlineExceeded) {
		return model.Coordinates{}, ipErr
	}
	return model.Coordinates{}, fmt.Errorf("system location failed (%s); ip fallback failed (%s)", systemErr.Error(), ipErr.Error())
}

func locateWithIPProviders(ctx context.Context, httpClient *http.Client, providers []ipProvider) (model.Coordinates, error) {
	if len(providers) == 0 {
		return model.Coordinates{}, errors.New("no location providers configured")
	}

	var providerErrors []string
	for _, provider := range providers {
		position, err := locateWithIPProvider(ctx, httpClient, provider)
		if err == nil {
			return position, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return model.Coordinates{}, err
		}
		providerErrors = append(providerErrors, fmt.Sprintf("%s: %s", provider.name, err.Error()))
	}
	return model.Coordinates{}, fmt.Errorf("all location providers failed (%s)", strings.Join(providerErrors, " | "))
}

func locateWithIPProvider(ctx context.Context, httpClient *http.Client, provider ipProvider) (model.Coordinates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.endpoint, nil)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("create location request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)

	res, err := httpClient.Do(req)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("location request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		msg := compactErrorSnippet(string(snippet))
		if msg == "" {
			return model.Coordinates{}, errors.New(res.Status)
		}
		return model.Coordinates{}, fmt.Errorf("%s: %s", res.Status, msg)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("read location response: %w", err)
	}

	position, err := provider.parse(body)
	if err != nil {
		return model.Coordinates{}, err
	}
	if position.IsZero() {
		return model.Coordinates{}, errors.New("provider returned empty coordinates")
	}
	position.AccuracyM = ipAccuracyM
	position.Source = provider.name
	return position, nil
}

func parseIPAPI(body []byte) (model.Coordinates, error) {
	var payload struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Error     bool    `json:"error"`
		Reason    string  `json:"reason"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.Coordinates{}, fmt.Errorf("decode location response: %w", err)
	}
	if payload.Error {
		if payload.Reason == "" {
			payload.Reason = "unknown error"
		}
		return model.Coordinates{}, errors.New(payload.Reason)
	}
	return model.Coordinates{Latitude: payload.Latitude, Longitude: payload.Longitude}, nil
}

func parseIPWhoIs(body []byte) (model.Coordinates, error) {
	var payload struct {
		Success   bool    `json:"success"`
		Message   string  `json:"message"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.Coordinates{}, fmt.Errorf("decode location response: %w", err)
	}
	if !payload.Success {
		if strings.TrimSpace(payload.Message) == "" {
			payload.Message = "provider returned unsuccessful response"
		}
		return model.Coordinates{}, errors.New(payload.Message)
	}
	return model.Coordinates{Latitude: payload.Latitude, Longitude: payload.Longitude}, nil
}

func parseIPInfo(body []byte) (model.Coordinates, error) {
	var payload struct {
		Loc   string `json:"loc"`
		Bogon bool   `json:"bogon"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.Coordinates{}, fmt.Errorf("decode location response: %w", err)
	}
	if payload.Bogon {
		return model.Coordinates{}, errors.New("bogon IP")
	}
	if payload.Error.Message != "" {
		return model.Coordinates{}, errors.New(payload.Error.Message)
	}
	parts := strings.Split(strings.TrimSpace(payload.Loc), ",")
	if len(parts) != 2 {
		return model.Coordinates{}, errors.New("provider did not return valid loc")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("parse latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("parse longitude: %w", err)
	}
	return model.Coordinates{Latitude: lat, Longitude: lng}, nil
}

func compactErrorSnippet(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype") {
		return ""
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > locationErrorSnippetN {
		text = text[:locationErrorSnippetN]
	}
	return text
}
