package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ourmate-bot/internal/birthday"
	"ourmate-bot/internal/logger"
	"ourmate-bot/internal/roster"
	"ourmate-bot/internal/storage"
	"ourmate-bot/internal/texts"
)

func newNextBirthdayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next-birthday",
		Short: "Print the upcoming birthday notice",
		Long: `Print the notice the owner gets every morning, computed from the
roster in the database. Nothing is sent to Telegram.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := logger.New(cmd.ErrOrStderr(), cfg.Log.Level)

			db, err := storage.New(cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			members, err := roster.Open(db, cfg.Birthdays.File, log)
			if err != nil {
				return err
			}
			tx, err := texts.Load(texts.DefaultLang)
			if err != nil {
				return err
			}

			engine := birthday.New(birthday.Config{Location: cfg.Location()}, members, db, nil, nil, tx, log)
			fmt.Fprintln(cmd.OutOrStdout(), engine.NextNotice(time.Now()))
			return nil
		},
	}
}
