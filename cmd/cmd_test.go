package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-finder-cli/config"
	"parking-finder-cli/model"
	"parking-finder-cli/service"
)

type parkingServer struct {
	mu    sync.Mutex
	lots  []model.ParkingLot
	books []string
	rates []map[string]any

	bookStatus int
	bookBody   string
}

func (s *parkingServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/parking/nearby", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		assert.Equal(t, http.MethodGet, r.Method)
		assert.NotEmpty(t, r.URL.Query().Get("radius"))
		_ = json.NewEncoder(w).Encode(s.lots)
	})
	mux.HandleFunc("/api/parking/book", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		var body struct {
			Id string `json:"id"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		s.books = append(s.books, body.Id)
		if s.bookStatus != 0 {
			w.WriteHeader(s.bookStatus)
			_, _ = w.Write([]byte(s.bookBody))
			return
		}
		for i := range s.lots {
			if strconv.Itoa(s.lots[i].Id) == body.Id {
				s.lots[i].Available--
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/parking/rate", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		s.rates = append(s.rates, body)
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", root)
	t.Setenv("AppData", root)
	t.Setenv("PARKING_API_URL", "")
	t.Setenv("PARKING_RADIUS_KM", "")
	t.Setenv("PARKING_SPEED_KMH", "")
	t.Setenv("PARKING_LAT", "")
	t.Setenv("PARKING_LNG", "")
	return root
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	root := isolate(t)
	cmd := NewRootCmd("1.2.3", "abc123")
	base := []string{
		"--config", filepath.Join(root, "missing.yaml"),
		"--api", srv.URL,
		"--lat", "-23.55",
		"--lng", "-46.63",
	}
	cmd.SetArgs(append(args, base...))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func fixtureServer(t *testing.T) (*parkingServer, *httptest.Server) {
	ps := &parkingServer{lots: []model.ParkingLot{
		{Id: 1, Name: "Central", Latitude: -23.551, Longitude: -46.631, Capacity: 10, Available: 3, Rate: 4, Ratings: []int{4, 5}},
		{Id: 2, Name: "Station", Latitude: -23.56, Longitude: -46.64, Capacity: 20, Available: 0, Rate: 2},
	}}
	srv := httptest.NewServer(ps.handler(t))
	t.Cleanup(srv.Close)
	return ps, srv
}

func TestBookCommand_Success(t *testing.T) {
	ps, srv := fixtureServer(t)

	out, err := run(t, srv, "book", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Spot booked at Central.")
	assert.Equal(t, []string{"1"}, ps.books)
	assert.Equal(t, 2, ps.lots[0].Available)
}

func TestBookCommand_RejectionCarriesServerMessage(t *testing.T) {
	ps, srv := fixtureServer(t)
	ps.bookStatus = http.StatusConflict
	ps.bookBody = `{"message":"Lot full"}`

	_, err := run(t, srv, "book", "1")
	require.Error(t, err)
	assert.Equal(t, "Lot full", err.Error())
	assert.Len(t, ps.books, 1, "bookings are never retried")
}

func TestBookCommand_FullLotIsRefusedLocally(t *testing.T) {
	ps, srv := fixtureServer(t)

	_, err := run(t, srv, "book", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no available spots")
	assert.Empty(t, ps.books)
}

func TestRateCommand(t *testing.T) {
	ps, srv := fixtureServer(t)

	out, err := run(t, srv, "rate", "1", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Thanks! You rated Central 5/5.")
	require.Len(t, ps.rates, 1)
	assert.Equal(t, "1", ps.rates[0]["id"])
	assert.Equal(t, float64(5), ps.rates[0]["rating"])

	_, err = run(t, srv, "rate", "1", "9")
	require.Error(t, err)
	assert.Len(t, ps.rates, 1)
}

func TestNearbyCommand_Table(t *testing.T) {
	_, srv := fixtureServer(t)

	out, err := run(t, srv, "nearby")
	require.NoError(t, err)
	assert.Contains(t, out, "Central")
	assert.Contains(t, out, "Station")
	assert.Contains(t, out, "4.5 (2)")
	assert.Less(t, strings.Index(out, "Central"), strings.Index(out, "Station"), "nearest first")
}

func TestNearbyCommand_Empty(t *testing.T) {
	ps, srv := fixtureServer(t)
	ps.lots = nil

	out, err := run(t, srv, "nearby", "--radius", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "No parking lots within 2.0 km.")
}

func TestVersionCommand(t *testing.T) {
	_, srv := fixtureServer(t)

	out, err := run(t, srv, "version")
	require.NoError(t, err)
	assert.Equal(t, "parking-finder 1.2.3 (abc123)\n", out)
}

func TestApplyFlags(t *testing.T) {
	cfg := &config.Config{}
	require.NoError(t, applyFlags(cfg, &globalFlags{apiURL: "http://api.test/", radiusKM: 3, lat: "1", lng: "2"}))
	assert.Equal(t, "http://api.test", cfg.API.BaseURL)
	assert.Equal(t, 3.0, cfg.Search.RadiusKM)
	require.True(t, cfg.Location.Fixed())
	assert.Equal(t, 1.0, *cfg.Location.Latitude)

	assert.Error(t, applyFlags(&config.Config{}, &globalFlags{lat: "1"}))
	assert.Error(t, applyFlags(&config.Config{}, &globalFlags{radiusKM: -1}))
}

func TestNewLocator(t *testing.T) {
	lat, lng := 1.5, 2.5
	cfg := &config.Config{Location: config.LocationConfig{Latitude: &lat, Longitude: &lng}}
	_, ok := newLocator(cfg).(service.StaticLocator)
	assert.True(t, ok)

	_, ok = newLocator(&config.Config{}).(*service.DeviceLocator)
	assert.True(t, ok)
}

type recordingCreator struct {
	drafts []model.LotDraft
	err    error
}

func (r *recordingCreator) CreateLot(_ context.Context, draft model.LotDraft) error {
	r.drafts = append(r.drafts, draft)
	return r.err
}

func stubPrompts(t *testing.T, answers map[string]string) {
	t.Helper()
	original := promptFn
	promptFn = func(label string, def string, validate promptui.ValidateFunc) (string, error) {
		value, ok := answers[label]
		if !ok {
			value = def
		}
		return value, nil
	}
	t.Cleanup(func() { promptFn = original })
}

func TestPromptAddLot(t *testing.T) {
	stubPrompts(t, map[string]string{
		"Name":          "Central",
		"Capacity":      "10",
		"Available":     "8",
		"Rate per hour": "3.5",
	})
	creator := &recordingCreator{}
	locator := service.StaticLocator{Position: model.Coordinates{Latitude: -23.5, Longitude: -46.6}}

	var out bytes.Buffer
	require.NoError(t, promptAddLot(context.Background(), &out, creator, locator))
	require.Len(t, creator.drafts, 1)
	assert.Equal(t, model.LotDraft{Name: "Central", Latitude: -23.5, Longitude: -46.6, Capacity: 10, Available: 8, Rate: 3.5}, creator.drafts[0])
	assert.Contains(t, out.String(), "Saved Central")
}

func TestPromptAddLot_ValidationNeverCallsService(t *testing.T) {
	stubPrompts(t, map[string]string{
		"Name":          "Central",
		"Latitude":      "1",
		"Longitude":     "2",
		"Capacity":      "5",
		"Available":     "9",
		"Rate per hour": "1",
	})
	creator := &recordingCreator{}

	var out bytes.Buffer
	err := promptAddLot(context.Background(), &out, creator, service.StaticLocator{})
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, out.String(), "available: must not exceed capacity")
	assert.Empty(t, creator.drafts)
}

func TestPromptAddLot_ServerRejection(t *testing.T) {
	stubPrompts(t, map[string]string{
		"Name":          "Central",
		"Latitude":      "1",
		"Longitude":     "2",
		"Capacity":      "5",
		"Available":     "5",
		"Rate per hour": "1",
	})
	creator := &recordingCreator{err: &service.APIError{StatusCode: http.StatusBadRequest, Message: "Duplicate lot"}}

	err := promptAddLot(context.Background(), &bytes.Buffer{}, creator, service.StaticLocator{})
	require.Error(t, err)
	assert.Equal(t, "save parking lot: Duplicate lot", err.Error())
}

func TestFieldValidators(t *testing.T) {
	assert.Error(t, requiredText("  "))
	assert.NoError(t, requiredText("x"))
	assert.Error(t, numberText("abc"))
	assert.NoError(t, numberText("-1.5"))
	assert.Error(t, wholeNumberText("1.5"))
	assert.NoError(t, wholeNumberText("7"))
}
