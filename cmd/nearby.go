package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"parking-finder-cli/booking"
	"parking-finder-cli/model"
	"parking-finder-cli/service"
)

func newNearbyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "nearby",
		Short: "List parking lots around your location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			center, lots, err := locateAndFetch(ctx, a)
			if err != nil {
				return err
			}
			renderNearby(cmd.OutOrStdout(), center, lots, a.cfg.Search.RadiusKM, a.cfg.Search.SpeedKMH)
			return nil
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// locateAndFetch resolves the current position and loads the lots around it.
func locateAndFetch(ctx context.Context, a *app) (model.Coordinates, []model.ParkingLot, error) {
	center, err := service.Locate(ctx, a.locator)
	if err != nil {
		return model.Coordinates{}, nil, fmt.Errorf("failed to detect current location: %w", err)
	}
	lots, err := a.reconciler.FetchNearby(ctx, center, a.cfg.Search.RadiusKM)
	if err != nil {
		return model.Coordinates{}, nil, err
	}
	return center, lots, nil
}

func renderNearby(out io.Writer, center model.Coordinates, lots []model.ParkingLot, radiusKM float64, speedKMH float64) {
	if len(lots) == 0 {
		fmt.Fprintf(out, "No parking lots within %.1f km.\n", radiusKM)
		return
	}

	type row struct {
		lot      model.ParkingLot
		distance float64
	}
	rows := make([]row, 0, len(lots))
	for _, lot := range lots {
		rows = append(rows, row{lot: lot, distance: model.DistanceKm(center, lot.Position())})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].distance < rows[j].distance })

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"ID", "Name", "Available", "Capacity", "Distance", "ETA", "Rating", "Rate/h"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 28},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	for _, r := range rows {
		rating := "-"
		if len(r.lot.Ratings) > 0 {
			rating = fmt.Sprintf("%.1f (%d)", r.lot.AverageRating(), len(r.lot.Ratings))
		}
		t.AppendRow(table.Row{
			r.lot.Id,
			r.lot.Name,
			r.lot.Available,
			r.lot.Capacity,
			fmt.Sprintf("%.1f km", r.distance),
			fmt.Sprintf("%.0f min", model.EstimatedMinutes(r.distance, speedKMH)),
			rating,
			fmt.Sprintf("$%.2f", r.lot.Rate),
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

// describeOutcome prints a settled booking or rating and turns failures into errors.
func describeOutcome(out io.Writer, outcome booking.Outcome, message string, refreshErr error) error {
	if outcome != booking.OutcomeConfirmed {
		return errors.New(message)
	}
	fmt.Fprintln(out, message)
	if refreshErr != nil {
		fmt.Fprintf(out, "Availability could not be refreshed: %v\n", refreshErr)
	}
	return nil
}
