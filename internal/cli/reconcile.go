package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/byefat/backend/internal/service"
)

var (
	reconcileDays int
	reconcileFix  bool
	reconcileUser string
	reconcileDate string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare daily counters with the logged items",
	Long: "reconcile recomputes consumed and active calories from the food and activity items. " +
		"Without --fix it only reports drift and exits non-zero when any is found.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (reconcileUser == "") != (reconcileDate == "") {
			return fmt.Errorf("--user and --date must be given together")
		}
		return withDB(func(db *gorm.DB, log *zap.Logger) error {
			r := service.NewReconciler(db, service.NewLocalNotifier(), log)

			var report []service.Drift
			if reconcileUser != "" {
				d, err := r.ReconcileDay(cmd.Context(), reconcileUser, reconcileDate, reconcileFix)
				if err != nil {
					return err
				}
				if d != nil && (d.HasDrift() || d.Flagged) {
					report = append(report, *d)
				}
			} else {
				var err error
				report, err = r.ReconcileRecent(cmd.Context(), reconcileDays, reconcileFix)
				if err != nil {
					return err
				}
			}

			printDrift(cmd.OutOrStdout(), report)
			if len(report) > 0 && !reconcileFix {
				return fmt.Errorf("%d day(s) need reconciliation; rerun with --fix", len(report))
			}
			return nil
		})
	},
}

func printDrift(out io.Writer, report []service.Drift) {
	if len(report) == 0 {
		color.New(color.FgGreen).Fprintln(out, "All counters match their items")
		return
	}
	bad := color.New(color.FgRed)
	ok := color.New(color.FgYellow)
	for _, d := range report {
		line := fmt.Sprintf("%s %s consumed %.1f -> %.1f active %.1f -> %.1f",
			d.UserID, d.Date, d.StoredConsumed, d.ComputedConsumed, d.StoredActive, d.ComputedActive)
		if d.Flagged {
			line += " (flagged)"
		}
		if d.Fixed {
			ok.Fprintln(out, "fixed   "+line)
		} else {
			bad.Fprintln(out, "drift   "+line)
		}
	}
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().IntVar(&reconcileDays, "days", 7, "Number of recent days to check")
	reconcileCmd.Flags().BoolVar(&reconcileFix, "fix", false, "Overwrite drifted counters")
	reconcileCmd.Flags().StringVar(&reconcileUser, "user", "", "Check a single user (requires --date)")
	reconcileCmd.Flags().StringVar(&reconcileDate, "date", "", "Day to check, YYYY-MM-DD")
}
