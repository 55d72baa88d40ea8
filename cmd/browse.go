package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"parking-finder-cli/tui"
)

const debugLogName = "parking-finder.log"

func newBrowseCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse nearby parking lots on a map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd, flags)
		},
	}
}

func runBrowse(cmd *cobra.Command, flags *globalFlags) error {
	return runScreens(flags, tui.ModeBrowse)
}

func runScreens(flags *globalFlags, mode tui.Mode) error {
	a, err := loadApp(flags)
	if err != nil {
		return err
	}

	// the terminal belongs to bubbletea, so logs either go to a file or nowhere
	if strings.TrimSpace(os.Getenv("PARKING_DEBUG")) != "" {
		f, err := tea.LogToFile(filepath.Join(os.TempDir(), debugLogName), "parking")
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer f.Close()
	}

	screens := tui.New(tui.Options{
		Mode:       mode,
		Reconciler: a.reconciler,
		Creator:    a.client,
		Locator:    a.locator,
		RadiusKM:   a.cfg.Search.RadiusKM,
		SpeedKMH:   a.cfg.Search.SpeedKMH,
	})
	if _, err := tea.NewProgram(screens, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	return nil
}
