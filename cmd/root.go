package cmd

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"parking-finder-cli/booking"
	"parking-finder-cli/config"
	"parking-finder-cli/model"
	"parking-finder-cli/service"
)

const appName = "parking-finder"

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	apiURL     string
	lat        string
	lng        string
	radiusKM   float64
}

// app is the wired set of collaborators a command runs against.
type app struct {
	cfg        *config.Config
	client     *service.Client
	reconciler *booking.Reconciler
	locator    service.LocationProvider
}

// NewRootCmd builds the command tree. Running it without a subcommand opens the browse screen.
func NewRootCmd(version string, commit string) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Find, book and rate parking lots near you",
		Long:          `Browse nearby parking lots on a terminal map, book a spot and rate the lots you used.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(os.Stderr)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd, flags)
		},
	}

	defaultConfig, err := config.DefaultPath()
	if err != nil {
		defaultConfig = ""
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", defaultConfig, "path to the YAML config file")
	pf.StringVar(&flags.apiURL, "api", "", "parking API base URL (overrides config)")
	pf.StringVar(&flags.lat, "lat", "", "fixed latitude instead of detecting the location")
	pf.StringVar(&flags.lng, "lng", "", "fixed longitude instead of detecting the location")
	pf.Float64Var(&flags.radiusKM, "radius", 0, "search radius in km (overrides config)")

	rootCmd.AddCommand(
		newBrowseCmd(flags),
		newAddCmd(flags),
		newNearbyCmd(flags),
		newBookCmd(flags),
		newRateCmd(flags),
		newVersionCmd(version, commit),
	)
	return rootCmd
}

// Execute runs the root command with os.Args.
func Execute(version string, commit string) error {
	return NewRootCmd(version, commit).Execute()
}

// configureLogging discards log output unless PARKING_DEBUG is set.
func configureLogging(w io.Writer) {
	if strings.TrimSpace(os.Getenv("PARKING_DEBUG")) == "" {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

func loadApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := applyFlags(cfg, flags); err != nil {
		return nil, err
	}

	client := service.NewClient(
		&http.Client{Timeout: cfg.API.Timeout},
		service.WithBaseURL(cfg.API.BaseURL),
		service.WithMaxAttempts(cfg.API.MaxAttempts),
		service.WithRateLimit(cfg.API.RequestsPerSec, cfg.API.Burst),
	)
	log.Printf("[cmd] api=%s radius=%.1fkm", client.BaseURL(), cfg.Search.RadiusKM)

	return &app{
		cfg:        cfg,
		client:     client,
		reconciler: booking.NewReconciler(client),
		locator:    newLocator(cfg),
	}, nil
}

// applyFlags layers command line overrides on top of the loaded config.
func applyFlags(cfg *config.Config, flags *globalFlags) error {
	if v := strings.TrimSpace(flags.apiURL); v != "" {
		cfg.API.BaseURL = strings.TrimRight(v, "/")
	}
	if flags.radiusKM < 0 {
		return fmt.Errorf("invalid --radius: %v", flags.radiusKM)
	}
	if flags.radiusKM > 0 {
		cfg.Search.RadiusKM = flags.radiusKM
	}
	if flags.lat != "" || flags.lng != "" {
		lat, lng, err := config.ParseLatLng(flags.lat, flags.lng)
		if err != nil {
			return fmt.Errorf("invalid --lat/--lng: %w", err)
		}
		cfg.Location.Latitude = &lat
		cfg.Location.Longitude = &lng
	}
	return nil
}

func newLocator(cfg *config.Config) service.LocationProvider {
	if cfg.Location.Fixed() {
		return service.StaticLocator{Position: model.Coordinates{
			Latitude:  *cfg.Location.Latitude,
			Longitude: *cfg.Location.Longitude,
		}}
	}
	return service.NewDeviceLocator(nil, !cfg.Location.DisableIPFallback, cfg.Location.CacheTTL)
}
