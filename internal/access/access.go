// Package access decides what to do with an inbound message: ignore it,
// reject it, or route it to a command or to the dialogue pipeline.
package access

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"ourmate-bot/internal/models"
)

type Route int

const (
	RouteIgnore Route = iota
	RouteRejected
	RouteAdmin
	RouteCommand
	RouteDialogue
)

func (r Route) String() string {
	switch r {
	case RouteIgnore:
		return "ignore"
	case RouteRejected:
		return "rejected"
	case RouteAdmin:
		return "admin"
	case RouteCommand:
		return "command"
	case RouteDialogue:
		return "dialogue"
	}
	return "unknown"
}

// Rejection reasons.
const (
	ReasonNotAddressed = "not_addressed"
	ReasonEmpty        = "empty"
	ReasonOwnerOnly    = "owner_only"
	ReasonPrivateOnly  = "private_only"
	ReasonMembersOnly  = "members_only"
)

// Env is what the classifier knows beyond the message itself.
type Env struct {
	OwnerID     int64
	GroupID     int64
	BotUsername string // without @
	BotID       int64
	// SenderIsMember is true when the sender is on the roster with a known id.
	SenderIsMember bool
}

type Decision struct {
	Route   Route
	Command Command
	Reason  string
}

// Classify applies the routing rules in priority order.
func Classify(msg models.Incoming, env Env) Decision {
	stripped, mentioned := StripMention(msg.Text, env.BotUsername)
	group := msg.ChatKind == models.ChatGroup

	if group {
		repliedToBot := env.BotID != 0 && msg.ReplyToSenderID == env.BotID
		if !mentioned && !repliedToBot && !addressedCommand(msg.Text, env.BotUsername) {
			return Decision{Route: RouteIgnore, Reason: ReasonNotAddressed}
		}
	}

	norm := strings.ToLower(strings.TrimSpace(stripped))
	if norm == "" {
		return Decision{Route: RouteIgnore, Reason: ReasonEmpty}
	}

	cmd := Parse(norm, env.BotUsername)
	owner := env.OwnerID != 0 && msg.SenderID == env.OwnerID

	switch {
	case cmd.Kind == KindHelp:
		return Decision{Route: RouteCommand, Command: cmd}

	case cmd.Kind == KindOptOut:
		if group {
			return Decision{Route: RouteRejected, Command: cmd, Reason: ReasonPrivateOnly}
		}
		return Decision{Route: RouteCommand, Command: cmd}

	case cmd.Kind == KindAdmin:
		if !owner {
			return Decision{Route: RouteRejected, Command: cmd, Reason: ReasonOwnerOnly}
		}
		return Decision{Route: RouteAdmin, Command: cmd}

	case cmd.IsPublic():
		if owner ||
			(group && msg.ChatID == env.GroupID) ||
			(msg.ChatKind == models.ChatPrivate && env.SenderIsMember) {
			return Decision{Route: RouteCommand, Command: cmd}
		}
		return Decision{Route: RouteRejected, Command: cmd, Reason: ReasonMembersOnly}
	}

	return Decision{Route: RouteDialogue, Command: Dialogue(strings.TrimSpace(stripped))}
}

// StripMention removes standalone @bot tokens from text, case-insensitively
// and ignoring trailing punctuation. Everything else, line breaks included,
// is kept as written. Reports whether one was found.
func StripMention(text, botUsername string) (string, bool) {
	if botUsername == "" {
		return text, false
	}
	handle := "@" + strings.ToLower(strings.TrimPrefix(botUsername, "@"))

	var b strings.Builder
	found := false
	last := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}
		end := i
		for end < len(text) {
			r, size := utf8.DecodeRuneInString(text[end:])
			if unicode.IsSpace(r) {
				break
			}
			end += size
		}
		if strings.TrimRightFunc(strings.ToLower(text[i:end]), isTrailingPunct) == handle {
			found = true
			b.WriteString(text[last:i])
			// the blank that separated the token from the next word
			for end < len(text) && (text[end] == ' ' || text[end] == '\t') {
				end++
			}
			last = end
		}
		i = end
	}
	if !found {
		return text, false
	}
	b.WriteString(text[last:])
	return b.String(), true
}

func isTrailingPunct(r rune) bool {
	return unicode.IsPunct(r) && r != '_'
}

// LogAttrs are the slog attributes every decision is logged with.
func (d Decision) LogAttrs(msg models.Incoming) []any {
	attrs := []any{
		"chat_kind", msg.ChatKind.Tag(),
		"chat_id", msg.ChatID,
		"sender_id", msg.SenderID,
		"sender", msg.SenderUsername,
		"route", d.Route.String(),
	}
	if d.Command.Kind != KindDialogue {
		attrs = append(attrs, "command", d.Command.String())
	}
	if d.Reason != "" {
		attrs = append(attrs, "reason", d.Reason)
	}
	return attrs
}
