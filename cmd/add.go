package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"parking-finder-cli/model"
	"parking-finder-cli/service"
	"parking-finder-cli/tui"
)

// promptFn asks for one field; swapped in tests.
var promptFn = func(label string, def string, validate promptui.ValidateFunc) (string, error) {
	prompt := promptui.Prompt{
		Label:     label,
		Default:   def,
		AllowEdit: true,
		Validate:  validate,
	}
	return prompt.Run()
}

func newAddCmd(flags *globalFlags) *cobra.Command {
	var noTUI bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new parking lot",
		Long:  `Pin a new parking lot on the map and save its capacity and hourly rate.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !noTUI {
				return runScreens(flags, tui.ModeAdd)
			}
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			return promptAddLot(cmd.Context(), cmd.OutOrStdout(), a.client, a.locator)
		},
	}
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "ask for the lot details with line prompts")
	return cmd
}

func promptAddLot(ctx context.Context, out io.Writer, creator tui.LotCreator, locator service.LocationProvider) error {
	if ctx == nil {
		ctx = context.Background()
	}

	defLat, defLng := "", ""
	locateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if position, err := service.Locate(locateCtx, locator); err == nil {
		defLat = strconv.FormatFloat(position.Latitude, 'f', 6, 64)
		defLng = strconv.FormatFloat(position.Longitude, 'f', 6, 64)
	} else {
		fmt.Fprintf(out, "Could not detect your location (%v); enter coordinates manually.\n", err)
	}
	cancel()

	var form model.LotForm
	fields := []struct {
		label    string
		def      string
		target   *string
		validate promptui.ValidateFunc
	}{
		{"Name", "", &form.Name, requiredText},
		{"Latitude", defLat, &form.Latitude, numberText},
		{"Longitude", defLng, &form.Longitude, numberText},
		{"Capacity", "", &form.Capacity, wholeNumberText},
		{"Available", "", &form.Available, wholeNumberText},
		{"Rate per hour", "", &form.Rate, numberText},
	}
	for _, field := range fields {
		value, err := promptFn(field.label, field.def, field.validate)
		if err != nil {
			return fmt.Errorf("prompt %s: %w", strings.ToLower(field.label), err)
		}
		*field.target = value
	}

	draft, err := form.Parse()
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			for _, name := range []string{"name", "latitude", "longitude", "capacity", "available", "rate"} {
				if msg := verr.Field(name); msg != "" {
					fmt.Fprintf(out, "  %s: %s\n", name, msg)
				}
			}
		}
		return err
	}

	if err := creator.CreateLot(ctx, draft); err != nil {
		if msg := service.RejectionMessage(err); msg != "" {
			return fmt.Errorf("save parking lot: %s", msg)
		}
		return fmt.Errorf("save parking lot: %w", err)
	}
	fmt.Fprintf(out, "Saved %s (%d/%d spots free).\n", draft.Name, draft.Available, draft.Capacity)
	return nil
}

func requiredText(input string) error {
	if strings.TrimSpace(input) == "" {
		return errors.New("required")
	}
	return nil
}

func numberText(input string) error {
	if _, err := strconv.ParseFloat(strings.TrimSpace(input), 64); err != nil {
		return errors.New("must be a number")
	}
	return nil
}

func wholeNumberText(input string) error {
	if _, err := strconv.Atoi(strings.TrimSpace(input)); err != nil {
		return errors.New("must be a whole number")
	}
	return nil
}
