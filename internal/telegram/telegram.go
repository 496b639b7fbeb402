// Package telegram wraps the Bot API behind the small surface the bot uses.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ourmate-bot/internal/models"
)

// ErrNotModified is returned by Edit when the new text equals the old one.
var ErrNotModified = errors.New("message is not modified")

// Outgoing is one HTML message to send.
type Outgoing struct {
	ChatID  int64
	Text    string
	ReplyTo int
}

// Identity is what a probe learns about a user.
type Identity struct {
	ID        int64
	Username  string
	FirstName string
}

// Gateway is the outbound side used by handlers and jobs.
type Gateway interface {
	Send(ctx context.Context, m Outgoing) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
	Pin(ctx context.Context, chatID int64, messageID int) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	Typing(ctx context.Context, chatID int64) error
	Probe(ctx context.Context, userID int64) (Identity, error)
}

type Client struct {
	bot *tgbotapi.BotAPI
	log *slog.Logger
}

func New(token string, log *slog.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}
	log = log.With("component", "telegram")
	log.Info("authorized", "bot", bot.Self.UserName, "bot_id", bot.Self.ID)
	return &Client{bot: bot, log: log}, nil
}

// Self returns the bot's own id and username.
func (c *Client) Self() Identity {
	return Identity{ID: c.bot.Self.ID, Username: c.bot.Self.UserName, FirstName: c.bot.Self.FirstName}
}

func (c *Client) Send(_ context.Context, m Outgoing) (int, error) {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyToMessageID = m.ReplyTo
	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send to %d: %w", m.ChatID, err)
	}
	return sent.MessageID, nil
}

func (c *Client) Edit(_ context.Context, chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	if _, err := c.bot.Send(edit); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return ErrNotModified
		}
		return fmt.Errorf("edit %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

func (c *Client) Pin(_ context.Context, chatID int64, messageID int) error {
	_, err := c.bot.Request(tgbotapi.PinChatMessageConfig{
		ChatID:              chatID,
		MessageID:           messageID,
		DisableNotification: true,
	})
	if err != nil {
		return fmt.Errorf("pin %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

func (c *Client) Delete(_ context.Context, chatID int64, messageID int) error {
	if _, err := c.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

func (c *Client) Typing(_ context.Context, chatID int64) error {
	_, err := c.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

// Probe asks Telegram about a user. An error means the bot cannot reach them.
func (c *Client) Probe(_ context.Context, userID int64) (Identity, error) {
	chat, err := c.bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: userID}})
	if err != nil {
		return Identity{}, fmt.Errorf("get chat %d: %w", userID, err)
	}
	return Identity{ID: chat.ID, Username: chat.UserName, FirstName: chat.FirstName}, nil
}

// Updates streams inbound text messages until ctx is done.
func (c *Client) Updates(ctx context.Context) <-chan models.Incoming {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := c.bot.GetUpdatesChan(cfg)

	out := make(chan models.Incoming)
	go func() {
		defer close(out)
		defer c.bot.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				in, ok := ToIncoming(upd.Message)
				if !ok {
					continue
				}
				select {
				case out <- in:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// ToIncoming normalises a Bot API message. Messages without a sender or
// text are dropped.
func ToIncoming(m *tgbotapi.Message) (models.Incoming, bool) {
	if m == nil || m.From == nil || m.Chat == nil {
		return models.Incoming{}, false
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if strings.TrimSpace(text) == "" {
		return models.Incoming{}, false
	}

	in := models.Incoming{
		ChatID:         m.Chat.ID,
		MessageID:      m.MessageID,
		SenderID:       m.From.ID,
		SenderUsername: m.From.UserName,
		SenderName:     strings.TrimSpace(m.From.FirstName + " " + m.From.LastName),
		Text:           text,
	}
	switch {
	case m.Chat.IsPrivate():
		in.ChatKind = models.ChatPrivate
	case m.Chat.IsGroup(), m.Chat.IsSuperGroup():
		in.ChatKind = models.ChatGroup
	default:
		return models.Incoming{}, false
	}
	if r := m.ReplyToMessage; r != nil && r.From != nil {
		in.ReplyToSenderID = r.From.ID
	}
	return in, true
}
