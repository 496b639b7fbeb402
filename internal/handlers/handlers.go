// Package handlers turns classified chat messages into replies.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"ourmate-bot/internal/access"
	"ourmate-bot/internal/history"
	"ourmate-bot/internal/llm"
	"ourmate-bot/internal/models"
	"ourmate-bot/internal/telegram"
	"ourmate-bot/internal/texts"
	"ourmate-bot/internal/utils"
)

const (
	alertQuestionRunes = 300
	alertErrorRunes    = 500
	logTextRunes       = 200
)

var errEmptyAnswer = errors.New("empty answer")

type Roster interface {
	ByID(id int64) (models.RosterEntry, bool)
	FirstName(id int64, username string) string
	MarkInteracted(id int64, username string) bool
	SetOptIn(id int64, v bool) bool
}

type History interface {
	Get(conversationID int64) []history.Pair
	Put(conversationID int64, question, answer string)
}

type Answerer interface {
	Complete(ctx context.Context, conversationID int64, systemPrompt string, pairs []history.Pair, question string, signal llm.Signal) (string, error)
}

type Birthdays interface {
	NextNotice(now time.Time) string
	BirthdayOf(target string) string
}

type Schedule interface {
	Answer(now time.Time, tomorrow bool) string
}

type Admin interface {
	Run(name string, tx *texts.Texts) (reply string, stop func())
}

type Config struct {
	OwnerID    int64
	GroupID    int64
	Bot        telegram.Identity
	ChatPrompt string
}

type Deps struct {
	Gateway   telegram.Gateway
	Roster    Roster
	History   History
	LLM       Answerer
	Birthdays Birthdays
	Schedule  Schedule
	Admin     Admin
	Texts     *texts.Texts
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

type Handler struct {
	cfg Config
	Deps
	log *slog.Logger
}

func New(cfg Config, d Deps) *Handler {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{cfg: cfg, Deps: d, log: d.Logger.With("component", "handler")}
}

// ---------------- entry point --------------------

// Handle processes one message to completion. It never panics; a message
// that was routed gets the fallback reply when something below it does.
func (h *Handler) Handle(ctx context.Context, msg models.Incoming) {
	routed := false
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("handler panic", "chat_id", msg.ChatID, "panic", r, "stack", string(debug.Stack()))
			if routed {
				h.reply(ctx, msg, h.Texts.Get(texts.Fallback))
			}
		}
	}()

	_, member := h.Roster.ByID(msg.SenderID)
	d := access.Classify(msg, access.Env{
		OwnerID:        h.cfg.OwnerID,
		GroupID:        h.cfg.GroupID,
		BotUsername:    h.cfg.Bot.Username,
		BotID:          h.cfg.Bot.ID,
		SenderIsMember: member,
	})
	if d.Route == access.RouteIgnore {
		h.log.Debug("ignored", d.LogAttrs(msg)...)
		return
	}
	routed = true
	h.log.Info("incoming", append(d.LogAttrs(msg), "text", utils.Truncate(msg.Text, logTextRunes))...)

	if member && msg.ChatKind == models.ChatPrivate && d.Command.Kind != access.KindOptOut {
		if h.Roster.MarkInteracted(msg.SenderID, msg.SenderUsername) {
			h.log.Info("opted in", "user_id", msg.SenderID, "username", msg.SenderUsername)
		}
	}

	switch d.Route {
	case access.RouteRejected:
		h.reject(ctx, msg, d)
	case access.RouteAdmin:
		h.admin(ctx, msg, d.Command.Arg)
	case access.RouteCommand:
		h.command(ctx, msg, d.Command)
	case access.RouteDialogue:
		h.dialogue(ctx, msg, d.Command.Arg)
	}
}

// ---------------- commands --------------------

func (h *Handler) reject(ctx context.Context, msg models.Incoming, d access.Decision) {
	h.log.Warn("rejected", d.LogAttrs(msg)...)
	id := texts.PublicDenied
	switch d.Reason {
	case access.ReasonOwnerOnly:
		id = texts.AccessDenied
	case access.ReasonPrivateOnly:
		id = texts.PrivateOnly
	}
	h.reply(ctx, msg, h.Texts.Get(id))
}

func (h *Handler) admin(ctx context.Context, msg models.Incoming, name string) {
	text, stop := h.Admin.Run(name, h.Texts)
	if text != "" {
		h.reply(ctx, msg, text)
	}
	if stop != nil {
		stop()
	}
}

func (h *Handler) command(ctx context.Context, msg models.Incoming, cmd access.Command) {
	now := h.Clock.Now()
	var text string
	switch cmd.Kind {
	case access.KindHelp:
		text = h.Texts.Get(texts.HelpUser)
		if msg.SenderID == h.cfg.OwnerID {
			text = h.Texts.Get(texts.HelpOwner)
		}
	case access.KindOptOut:
		text = h.Texts.Get(texts.OptOutUnknown)
		if h.Roster.SetOptIn(msg.SenderID, false) {
			h.log.Info("opted out", "user_id", msg.SenderID, "username", msg.SenderUsername)
			text = h.Texts.Get(texts.OptOutDone)
		}
	case access.KindNextBirthday:
		text = h.Birthdays.NextNotice(now)
	case access.KindBirthdayOf:
		text = h.Birthdays.BirthdayOf(cmd.Arg)
	case access.KindScheduleToday:
		text = h.Schedule.Answer(now, false)
	case access.KindScheduleTomorrow:
		text = h.Schedule.Answer(now, true)
	default:
		return
	}
	h.reply(ctx, msg, text)
}

// ---------------- dialogue --------------------

// dialogue runs one question through the language model. The placeholder is
// removed on every exit path; any failure ends in exactly one fallback reply
// and one owner alert.
func (h *Handler) dialogue(ctx context.Context, msg models.Incoming, question string) {
	log := h.log.With("turn_id", uuid.NewString(), "chat_kind", msg.ChatKind.Tag(), "chat_id", msg.ChatID, "sender_id", msg.SenderID)

	name := h.Roster.FirstName(msg.SenderID, msg.SenderUsername)
	pairs := h.History.Get(msg.ChatID)

	placeholder, err := h.send(ctx, msg, h.Texts.Get(texts.Thinking))
	if err != nil {
		log.Warn("send placeholder", "error", err)
	} else {
		defer func() {
			if err := h.Gateway.Delete(context.WithoutCancel(ctx), msg.ChatID, placeholder); err != nil {
				log.Warn("delete placeholder", "message_id", placeholder, "error", err)
			}
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("dialogue panic", "panic", r, "stack", string(debug.Stack()))
			h.fail(ctx, msg, question, fmt.Errorf("panic: %v", r), log)
		}
	}()

	signal := func(ctx context.Context) error { return h.Gateway.Typing(ctx, msg.ChatID) }
	answer, err := h.LLM.Complete(ctx, msg.ChatID, h.cfg.ChatPrompt, pairs, question, signal)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errEmptyAnswer
	}
	if err != nil {
		h.fail(ctx, msg, question, err, log)
		return
	}

	h.History.Put(msg.ChatID, question, answer)

	text := answer
	if name != "" {
		text = name + ", " + utils.LowerFirst(answer)
	}
	if _, err := h.send(ctx, msg, utils.RenderHTML(text)); err != nil {
		h.fail(ctx, msg, question, err, log)
		return
	}
	log.Info("answered", "chars", len(answer), "context_pairs", len(pairs))
}

func (h *Handler) fail(ctx context.Context, msg models.Incoming, question string, cause error, log *slog.Logger) {
	log.Error("dialogue failed", "error", cause)
	h.reply(ctx, msg, h.Texts.Get(texts.Fallback))

	if h.cfg.OwnerID == 0 {
		return
	}
	alert := h.Texts.T(texts.OwnerAlert, map[string]any{
		"Chat":     msg.ChatID,
		"Sender":   utils.EscapeHTML(senderLabel(msg)),
		"Question": utils.EscapeHTML(utils.Truncate(question, alertQuestionRunes)),
		"Error":    utils.EscapeHTML(utils.Truncate(cause.Error(), alertErrorRunes)),
	})
	if _, err := h.Gateway.Send(ctx, telegram.Outgoing{ChatID: h.cfg.OwnerID, Text: alert}); err != nil {
		log.Error("send owner alert", "error", err)
	}
}

func senderLabel(msg models.Incoming) string {
	label := msg.SenderName
	if msg.SenderUsername != "" {
		label = strings.TrimSpace(label + " @" + msg.SenderUsername)
	}
	if label == "" {
		label = fmt.Sprint(msg.SenderID)
	}
	return label
}

// ---------------- helpers --------------------

// send answers msg, quoting it in groups.
func (h *Handler) send(ctx context.Context, msg models.Incoming, text string) (int, error) {
	out := telegram.Outgoing{ChatID: msg.ChatID, Text: text}
	if msg.ChatKind == models.ChatGroup {
		out.ReplyTo = msg.MessageID
	}
	return h.Gateway.Send(ctx, out)
}

func (h *Handler) reply(ctx context.Context, msg models.Incoming, text string) {
	if _, err := h.send(ctx, msg, text); err != nil {
		h.log.Error("send reply", "chat_id", msg.ChatID, "error", err)
	}
}
