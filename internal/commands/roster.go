package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"ourmate-bot/internal/logger"
	"ourmate-bot/internal/models"
	"ourmate-bot/internal/roster"
)

func newRosterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Inspect the member roster",
	}
	cmd.AddCommand(newRosterCheckCmd())
	return cmd
}

func newRosterCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a roster seed file",
		Long: `Parse a {"users":[...]} seed file and report what would be imported.
Broken records are logged to stderr and skipped. Without an argument the
file from the config is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path := cfg.Birthdays.File
			if len(args) == 1 {
				path = args[0]
			}
			entries, err := roster.ReadSeed(path, logger.New(cmd.ErrOrStderr(), cfg.Log.Level))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), summarize(path, entries))
			return nil
		},
	}
}

func summarize(path string, entries []models.RosterEntry) string {
	counts := map[string]int{}
	var withID, optedIn int
	for _, e := range entries {
		counts[string(e.Status)]++
		if e.HasID() {
			withID++
		}
		if e.HasOptedIn {
			optedIn++
		}
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d entries\n", path, len(entries))
	for _, s := range statuses {
		fmt.Fprintf(&b, "  %-8s %d\n", s, counts[s])
	}
	fmt.Fprintf(&b, "  with id  %d\n  opted in %d\n", withID, optedIn)
	return b.String()
}
