package cli

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/byefat/backend/internal/service"
)

var levelLinear bool

var levelCmd = &cobra.Command{
	Use:   "level <xp>",
	Short: "Show the level reached with an XP total",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		xp, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid xp %q", args[0])
		}

		engine := service.DefaultLevelEngine
		if levelLinear {
			engine = service.DeficitLevelEngine
		}
		p := engine.Progress(xp)

		out := cmd.OutOrStdout()
		color.New(color.FgCyan, color.Bold).Fprintf(out, "Level %d\n", p.Level)
		fmt.Fprintf(out, "XP in level: %.0f / %.0f (%.1f%%)\n", p.XPInLevel, p.XPRequired, p.ProgressPercent)
		fmt.Fprintf(out, "Level %d starts at %.0f XP\n", p.NextLevel, p.NextLevelTotalXP)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(levelCmd)
	levelCmd.Flags().BoolVar(&levelLinear, "linear", false, "Use the linear deficit curve")
}
