package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ourmate-bot/internal/models"
)

const (
	ownerID = int64(100)
	groupID = int64(-500)
	botID   = int64(999)
)

func env(member bool) Env {
	return Env{OwnerID: ownerID, GroupID: groupID, BotUsername: "ourmate_bot", BotID: botID, SenderIsMember: member}
}

func private(sender int64, text string) models.Incoming {
	return models.Incoming{ChatID: sender, ChatKind: models.ChatPrivate, SenderID: sender, Text: text}
}

func group(sender int64, text string) models.Incoming {
	return models.Incoming{ChatID: groupID, ChatKind: models.ChatGroup, SenderID: sender, Text: text}
}

func TestClassify_GroupRequiresAddressing(t *testing.T) {
	d := Classify(group(1, "привет всем"), env(true))
	assert.Equal(t, RouteIgnore, d.Route)
	assert.Equal(t, ReasonNotAddressed, d.Reason)

	d = Classify(group(1, "@OurMate_Bot, как дела?"), env(true))
	assert.Equal(t, RouteDialogue, d.Route)
	assert.Equal(t, "как дела?", d.Command.Arg)

	msg := group(1, "а ты что думаешь?")
	msg.ReplyToSenderID = botID
	assert.Equal(t, RouteDialogue, Classify(msg, env(true)).Route)

	// substring of a longer handle is not a mention
	assert.Equal(t, RouteIgnore, Classify(group(1, "@ourmate_bot2 hi"), env(true)).Route)
}

func TestClassify_EmptyAfterStripping(t *testing.T) {
	d := Classify(group(1, "@ourmate_bot"), env(true))
	assert.Equal(t, RouteIgnore, d.Route)
	assert.Equal(t, ReasonEmpty, d.Reason)
}

func TestClassify_AdminKeywords(t *testing.T) {
	d := Classify(group(1, "@ourmate_bot logs"), env(true))
	assert.Equal(t, RouteRejected, d.Route)
	assert.Equal(t, ReasonOwnerOnly, d.Reason)

	d = Classify(private(2, "status"), env(false))
	assert.Equal(t, RouteRejected, d.Route)

	d = Classify(private(ownerID, "Full Logs"), env(false))
	assert.Equal(t, RouteAdmin, d.Route)
	assert.Equal(t, Command{Kind: KindAdmin, Arg: AdminFullLogs}, d.Command)

	d = Classify(group(ownerID, "@ourmate_bot stop bot"), env(false))
	assert.Equal(t, RouteAdmin, d.Route)
}

func TestClassify_HelpAndOptOut(t *testing.T) {
	assert.Equal(t, RouteCommand, Classify(private(5, "/start"), env(false)).Route)
	assert.Equal(t, KindHelp, Classify(group(5, "/help@ourmate_bot"), env(false)).Command.Kind)
	assert.Equal(t, KindHelp, Classify(group(5, "@ourmate_bot помощь"), env(false)).Command.Kind)

	d := Classify(private(5, "отписаться"), env(true))
	assert.Equal(t, RouteCommand, d.Route)
	assert.Equal(t, KindOptOut, d.Command.Kind)

	d = Classify(group(5, "/stop@ourmate_bot"), env(true))
	assert.Equal(t, RouteRejected, d.Route)
	assert.Equal(t, ReasonPrivateOnly, d.Reason)
}

func TestClassify_PublicCommands(t *testing.T) {
	tests := []struct {
		name  string
		msg   models.Incoming
		env   Env
		route Route
	}{
		{"group anyone", group(7, "@ourmate_bot др"), env(false), RouteCommand},
		{"private member", private(7, "пары завтра"), env(true), RouteCommand},
		{"private stranger", private(7, "др"), env(false), RouteRejected},
		{"owner private", private(ownerID, "др"), env(false), RouteCommand},
		{"other group stranger", models.Incoming{ChatID: -77, ChatKind: models.ChatGroup, SenderID: 7, Text: "@ourmate_bot пары"}, env(false), RouteRejected},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.route, Classify(tc.msg, tc.env).Route)
		})
	}
}

func TestParse(t *testing.T) {
	tests := map[string]Command{
		"др":                 {Kind: KindNextBirthday},
		"next birthday":      {Kind: KindNextBirthday},
		"др @anna":           {Kind: KindBirthdayOf, Arg: "@anna"},
		"birthday  ivanova":  {Kind: KindBirthdayOf, Arg: "ivanova"},
		"пары":               {Kind: KindScheduleToday},
		"пары сегодня":       {Kind: KindScheduleToday},
		"schedule tomorrow":  {Kind: KindScheduleTomorrow},
		"пары завтра":        {Kind: KindScheduleTomorrow},
		"stop":               {Kind: KindOptOut},
		"stop bot":           {Kind: KindAdmin, Arg: AdminStop},
		"дружба":             Dialogue("дружба"),
		"что такое рекурсия": Dialogue("что такое рекурсия"),
	}
	for in, want := range tests {
		assert.Equal(t, want, Parse(in, "ourmate_bot"), in)
	}
}

func TestStripMention(t *testing.T) {
	out, ok := StripMention("эй @OURMATE_BOT! расскажи", "ourmate_bot")
	assert.True(t, ok)
	assert.Equal(t, "эй расскажи", out)

	out, ok = StripMention("без упоминания", "ourmate_bot")
	assert.False(t, ok)
	assert.Equal(t, "без упоминания", out)

	out, ok = StripMention("line one\n\tindented @ourmate_bot, tail\n", "ourmate_bot")
	assert.True(t, ok)
	assert.Equal(t, "line one\n\tindented tail\n", out)
}

func TestClassify_MultilineDialogueKeepsLayout(t *testing.T) {
	question := "why fails?\n```go\nfunc f() {\n\treturn\n}\n```"
	d := Classify(group(1, "@ourmate_bot "+question), env(true))

	require.Equal(t, RouteDialogue, d.Route)
	assert.Equal(t, question, d.Command.Arg)
}

func TestLogAttrs(t *testing.T) {
	msg := group(1, "@ourmate_bot logs")
	d := Classify(msg, env(false))
	attrs := d.LogAttrs(msg)
	assert.Contains(t, attrs, "GR")
	assert.Contains(t, attrs, "rejected")
	assert.Contains(t, attrs, "admin:logs")
}
