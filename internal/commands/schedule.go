package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ourmate-bot/internal/logger"
	"ourmate-bot/internal/schedule"
	"ourmate-bot/internal/texts"
)

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule [today|tomorrow|pinned]",
		Short: "Print the class schedule from the calendar files",
		Long: `Read the calendar files and print the same text the bot would post.

Examples:
  ourmate schedule
  ourmate schedule tomorrow
  ourmate schedule pinned`,
		ValidArgs: []string{"today", "tomorrow", "pinned"},
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tx, err := texts.Load(texts.DefaultLang)
			if err != nil {
				return err
			}
			loc := cfg.Location()
			now := time.Now().In(loc)
			cal := schedule.Load(cfg.Schedule.FilesPattern, loc, now.Add(schedule.DefaultHorizon), logger.New(cmd.ErrOrStderr(), cfg.Log.Level))
			f := schedule.NewFormatter(tx, cfg.Schedule.Footer)

			what := "today"
			if len(args) == 1 {
				what = args[0]
			}
			var text string
			switch what {
			case "pinned":
				var ok bool
				if text, ok = f.Pinned(cal, now); !ok {
					text = tx.Get(texts.NoneToday)
				}
			default:
				text = f.Day(cal, now, what == "tomorrow")
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}
