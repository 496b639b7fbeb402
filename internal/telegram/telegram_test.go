package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ourmate-bot/internal/models"
)

func TestToIncoming_Group(t *testing.T) {
	m := &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: 5, FirstName: "Anna", LastName: "Ivanova", UserName: "anna"},
		Chat:      &tgbotapi.Chat{ID: -100, Type: "supergroup"},
		Text:      "@ourmate_bot привет",
		ReplyToMessage: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 999},
		},
	}
	in, ok := ToIncoming(m)
	require.True(t, ok)
	assert.Equal(t, models.Incoming{
		ChatID:          -100,
		ChatKind:        models.ChatGroup,
		MessageID:       10,
		SenderID:        5,
		SenderUsername:  "anna",
		SenderName:      "Anna Ivanova",
		Text:            "@ourmate_bot привет",
		ReplyToSenderID: 999,
	}, in)
}

func TestToIncoming_PrivateCaption(t *testing.T) {
	m := &tgbotapi.Message{
		From:    &tgbotapi.User{ID: 5, FirstName: "Anna"},
		Chat:    &tgbotapi.Chat{ID: 5, Type: "private"},
		Caption: "что на фото?",
	}
	in, ok := ToIncoming(m)
	require.True(t, ok)
	assert.Equal(t, models.ChatPrivate, in.ChatKind)
	assert.Equal(t, "что на фото?", in.Text)
	assert.Equal(t, "Anna", in.SenderName)
}

func TestToIncoming_Dropped(t *testing.T) {
	_, ok := ToIncoming(nil)
	assert.False(t, ok)

	_, ok = ToIncoming(&tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1, Type: "private"}, Text: "x"})
	assert.False(t, ok, "no sender")

	_, ok = ToIncoming(&tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1, Type: "private"}, Text: "  "})
	assert.False(t, ok, "blank")

	_, ok = ToIncoming(&tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1, Type: "channel"}, Text: "x"})
	assert.False(t, ok, "channel")
}
