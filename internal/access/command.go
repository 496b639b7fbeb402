package access

import "strings"

type Kind int

const (
	KindDialogue Kind = iota
	KindHelp
	KindOptOut
	KindAdmin
	KindNextBirthday
	KindBirthdayOf
	KindScheduleToday
	KindScheduleTomorrow
)

// Admin command names.
const (
	AdminLogs     = "logs"
	AdminFullLogs = "full logs"
	AdminStatus   = "status"
	AdminSystem   = "system"
	AdminStop     = "stop bot"
)

// Command is the parsed intent of a message. Arg holds the admin name, the
// birthday target or the dialogue text depending on Kind.
type Command struct {
	Kind Kind
	Arg  string
}

func Dialogue(text string) Command { return Command{Kind: KindDialogue, Arg: text} }

// IsPublic reports whether the command belongs to the member-visible set.
func (c Command) IsPublic() bool {
	switch c.Kind {
	case KindNextBirthday, KindBirthdayOf, KindScheduleToday, KindScheduleTomorrow:
		return true
	}
	return false
}

func (c Command) String() string {
	switch c.Kind {
	case KindHelp:
		return "help"
	case KindOptOut:
		return "opt_out"
	case KindAdmin:
		return "admin:" + c.Arg
	case KindNextBirthday:
		return "next_birthday"
	case KindBirthdayOf:
		return "birthday_of"
	case KindScheduleToday:
		return "schedule_today"
	case KindScheduleTomorrow:
		return "schedule_tomorrow"
	}
	return "dialogue"
}

var (
	helpWords     = set("/start", "/help", "help", "помощь", "команды")
	optOutWords   = set("/stop", "stop", "отписаться")
	adminWords    = set(AdminLogs, AdminFullLogs, AdminStatus, AdminSystem, AdminStop)
	todayWords    = set("пары", "пары сегодня", "/today", "schedule", "schedule today")
	tomorrowWords = set("пары завтра", "/tomorrow", "schedule tomorrow")
	nextWords     = set("др", "/next", "next birthday")
)

var targetPrefixes = []string{"др ", "birthday "}

// Parse maps normalised (trimmed, lower-cased, mention-free) text onto a
// Command. Anything unrecognised is dialogue.
func Parse(norm, botUsername string) Command {
	norm = strings.Join(strings.Fields(norm), " ")
	norm = stripCommandSuffix(norm, botUsername)

	switch {
	case helpWords[norm]:
		return Command{Kind: KindHelp}
	case optOutWords[norm]:
		return Command{Kind: KindOptOut}
	case adminWords[norm]:
		return Command{Kind: KindAdmin, Arg: norm}
	case nextWords[norm]:
		return Command{Kind: KindNextBirthday}
	case todayWords[norm]:
		return Command{Kind: KindScheduleToday}
	case tomorrowWords[norm]:
		return Command{Kind: KindScheduleTomorrow}
	}
	for _, p := range targetPrefixes {
		if strings.HasPrefix(norm, p) {
			if target := strings.TrimSpace(strings.TrimPrefix(norm, p)); target != "" {
				return Command{Kind: KindBirthdayOf, Arg: target}
			}
		}
	}
	return Dialogue(norm)
}

// addressedCommand reports whether text starts with "/cmd@bot".
func addressedCommand(text, botUsername string) bool {
	if botUsername == "" {
		return false
	}
	first, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	suffix := "@" + strings.ToLower(strings.TrimPrefix(botUsername, "@"))
	first = strings.ToLower(first)
	return strings.HasPrefix(first, "/") && strings.HasSuffix(first, suffix)
}

// stripCommandSuffix turns "/help@ourmate_bot" into "/help".
func stripCommandSuffix(norm, botUsername string) string {
	if !strings.HasPrefix(norm, "/") || botUsername == "" {
		return norm
	}
	first, rest, _ := strings.Cut(norm, " ")
	suffix := "@" + strings.ToLower(strings.TrimPrefix(botUsername, "@"))
	if !strings.HasSuffix(first, suffix) {
		return norm
	}
	first = strings.TrimSuffix(first, suffix)
	if rest == "" {
		return first
	}
	return first + " " + rest
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
