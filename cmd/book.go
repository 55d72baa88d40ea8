package cmd

import (
	"fmt"
	"log"
	"strconv"

	"github.com/spf13/cobra"
	"parking-finder-cli/store"
)

func newBookCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "book <lot-id>",
		Short: "Book a spot in a nearby parking lot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lotID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid lot id %q", args[0])
			}
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			if _, _, err := locateAndFetch(ctx, a); err != nil {
				return err
			}

			result, err := a.reconciler.RequestBooking(ctx, lotID)
			if err != nil {
				return err
			}
			if result.Succeeded() {
				if lot, ok := a.reconciler.Lot(lotID); ok {
					if err := store.RememberBooking(lot); err != nil {
						log.Printf("[cmd] remember booking: %v", err)
					}
				}
			}
			return describeOutcome(cmd.OutOrStdout(), result.Outcome, result.Message, result.RefreshErr)
		},
	}
}

func newRateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rate <lot-id> <1-5>",
		Short: "Rate a nearby parking lot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lotID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid lot id %q", args[0])
			}
			rating, err := strconv.Atoi(args[1])
			if err != nil || rating < 1 || rating > 5 {
				return fmt.Errorf("invalid rating %q: use a whole number from 1 to 5", args[1])
			}
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			if _, _, err := locateAndFetch(ctx, a); err != nil {
				return err
			}
			if err := a.reconciler.Select(lotID); err != nil {
				return err
			}

			result, err := a.reconciler.SubmitRating(ctx, lotID, rating)
			if err != nil {
				return err
			}
			if result.Succeeded() {
				if err := store.RememberRating(lotID, rating); err != nil {
					log.Printf("[cmd] remember rating: %v", err)
				}
			}
			return describeOutcome(cmd.OutOrStdout(), result.Outcome, result.Message, result.RefreshErr)
		},
	}
}
