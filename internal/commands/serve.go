package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"ourmate-bot/internal/admin"
	"ourmate-bot/internal/birthday"
	"ourmate-bot/internal/config"
	"ourmate-bot/internal/handlers"
	"ourmate-bot/internal/history"
	"ourmate-bot/internal/llm"
	"ourmate-bot/internal/logger"
	"ourmate-bot/internal/roster"
	"ourmate-bot/internal/schedule"
	"ourmate-bot/internal/scheduler"
	"ourmate-bot/internal/storage"
	"ourmate-bot/internal/telegram"
	"ourmate-bot/internal/texts"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Telegram and run until stopped",
		Long: `Start the bot: poll Telegram for messages, answer them and run the
daily birthday and schedule jobs. SIGINT, SIGTERM or the owner's
"stop bot" command shut it down.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ---------------- config & logging --------------------
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log := logger.Init(cfg.Log)
	loc := cfg.Location()
	clock := clockwork.NewRealClock()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// ---------------- state --------------------
	db, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := texts.Load(texts.DefaultLang)
	if err != nil {
		return err
	}

	members, err := roster.Open(db, cfg.Birthdays.File, logger.For("roster"))
	if err != nil {
		return err
	}

	// ---------------- transport --------------------
	tg, err := telegram.New(cfg.Telegram.Token, log)
	if err != nil {
		return err
	}

	orch := llm.NewOrchestrator(
		llm.NewClient(cfg.LLM.APIURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout),
		llm.Options{
			Workers:           cfg.LLM.Workers,
			HeartbeatInterval: cfg.LLM.HeartbeatInterval,
			Timeout:           cfg.LLM.Timeout,
			Clock:             clock,
			Logger:            log,
		},
	)
	conversations := history.New(cfg.LLM.ContextPairs, cfg.LLM.ContextTTL, clock)

	// ---------------- features --------------------
	birthdays := birthday.New(birthday.Config{
		GroupID:      cfg.Telegram.GroupChatID,
		OwnerID:      cfg.Telegram.OwnerChatID,
		Location:     loc,
		PromptActive: cfg.Birthdays.PromptActive,
		PromptFormer: cfg.Birthdays.PromptFormer,
		SystemPrompt: cfg.Birthdays.SystemPrompt,
	}, members, db, tg, orch, tx, log)

	source := schedule.NewSource(cfg.Schedule.FilesPattern, loc, schedule.DefaultHorizon, log)
	source.Reload(clock.Now().In(loc))
	classes := schedule.NewNotifier(source, schedule.NewFormatter(tx, cfg.Schedule.Footer), db, tg, cfg.Telegram.GroupChatID, tx, log)

	maintenance := admin.New(admin.Options{
		LogFile: cfg.Log.File,
		Clock:   clock,
		Stop:    cancel,
		Facts: []admin.Fact{
			{Name: "roster", Value: func() string { return strconv.Itoa(members.Len()) }},
			{Name: "roster_stored", Value: func() string {
				n, err := db.RosterSize()
				if err != nil {
					return "error: " + err.Error()
				}
				return strconv.Itoa(n)
			}},
			{Name: "conversations", Value: func() string { return strconv.Itoa(conversations.Len()) }},
			{Name: "events", Value: func() string { return strconv.Itoa(len(source.Calendar().Events())) }},
			{Name: "pinned", Value: func() string { return strconv.Itoa(classes.Pointer()) }},
		},
	}, log)

	sch, err := scheduler.Start(ctx, jobTimes(cfg), birthdays, classes, loc, clock, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := sch.Shutdown(); err != nil {
			log.Error("scheduler shutdown", "error", err)
		}
	}()

	// ---------------- messages --------------------
	h := handlers.New(handlers.Config{
		OwnerID:    cfg.Telegram.OwnerChatID,
		GroupID:    cfg.Telegram.GroupChatID,
		Bot:        tg.Self(),
		ChatPrompt: cfg.LLM.ChatPrompt,
	}, handlers.Deps{
		Gateway:   tg,
		Roster:    members,
		History:   conversations,
		LLM:       orch,
		Birthdays: birthdays,
		Schedule:  classes,
		Admin:     maintenance,
		Texts:     tx,
		Clock:     clock,
		Logger:    log,
	})

	log.Info("bot started", "group_id", cfg.Telegram.GroupChatID, "roster", members.Len(), "timezone", loc.String())
	handlers.NewDispatcher(h.Handle, log).Run(ctx, tg.Updates(ctx))
	log.Info("bot stopped")
	return nil
}

func jobTimes(cfg *config.Config) scheduler.Times {
	return scheduler.Times{
		Greeting:      cfg.Birthdays.Send,
		OptIn:         cfg.Birthdays.OptInRefresh,
		Notice:        cfg.Schedule.Notice,
		Pinned:        cfg.Schedule.PinnedUpdate,
		PinnedEnabled: cfg.Schedule.PinnedEnabled,
	}
}
