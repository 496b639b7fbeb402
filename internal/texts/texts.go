// Package texts holds every user-facing string of the bot.
package texts

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

const DefaultLang = "ru"

const (
	HelpOwner         = "help_owner"
	HelpUser          = "help_user"
	AccessDenied      = "access_denied"
	PrivateOnly       = "private_only"
	PublicDenied      = "public_denied"
	Thinking          = "thinking"
	Fallback          = "fallback"
	OwnerAlert        = "owner_alert"
	OptOutDone        = "optout_done"
	OptOutUnknown     = "optout_unknown"
	GreetingActive    = "greeting_active"
	GreetingFormer    = "greeting_former"
	NextBirthday      = "next_birthday"
	NextBirthdayNone  = "next_birthday_none"
	BirthdayOf        = "birthday_of"
	BirthdayOfUnknown = "birthday_of_unknown"
	And               = "and"
	ScheduleToday     = "schedule_today"
	ScheduleTomorrow  = "schedule_tomorrow"
	ScheduleNotice    = "schedule_notice"
	NoneToday         = "schedule_none_today"
	NoneTomorrow      = "schedule_none_tomorrow"
	ScheduleNext      = "schedule_next"
	ScheduleDay       = "schedule_day"
	OptInDelta        = "optin_delta"
	OptInDeltaEmpty   = "optin_delta_empty"
	AdminLogs         = "admin_logs"
	AdminLogsEmpty    = "admin_logs_empty"
	AdminLogsError    = "admin_logs_error"
	AdminStatus       = "admin_status"
	AdminSystem       = "admin_system"
	AdminStop         = "admin_stop"
)

// Texts localizes message ids. A missing id renders as the id itself.
type Texts struct {
	loc *i18n.Localizer
}

// Load builds the bundle from the embedded locale files.
func Load(lang string) (*Texts, error) {
	bundle := i18n.NewBundle(language.Russian)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "active.") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+e.Name()); err != nil {
			return nil, fmt.Errorf("load %s: %w", e.Name(), err)
		}
	}
	if lang == "" {
		lang = DefaultLang
	}
	return &Texts{loc: i18n.NewLocalizer(bundle, lang)}, nil
}

// MustLoad is Load for the default language.
func MustLoad() *Texts {
	t, err := Load(DefaultLang)
	if err != nil {
		panic(err)
	}
	return t
}

// T renders id with optional template data.
func (t *Texts) T(id string, data map[string]any) string {
	msg, err := t.loc.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		slog.Debug("missing translation", "component", "texts", "id", id, "error", err)
		return id
	}
	return msg
}

// Get renders id without data.
func (t *Texts) Get(id string) string { return t.T(id, nil) }

// MonthGenitive returns "марта" for March.
func (t *Texts) MonthGenitive(m time.Month) string {
	return t.Get(fmt.Sprintf("month_%d", int(m)))
}

// Weekday returns the lower-case weekday name.
func (t *Texts) Weekday(d time.Weekday) string {
	return t.Get(fmt.Sprintf("weekday_%d", int(d)))
}

// WeekdayTitle returns the capitalised weekday name.
func (t *Texts) WeekdayTitle(d time.Weekday) string {
	// a Caser keeps state, so one per call
	return cases.Title(language.Russian).String(t.Weekday(d))
}

// DayMonth formats "5 марта".
func (t *Texts) DayMonth(day int, m time.Month) string {
	return fmt.Sprintf("%d %s", day, t.MonthGenitive(m))
}

// JoinAnd joins items as "a, b и c".
func (t *Texts) JoinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " " + t.Get(And) + " " + items[len(items)-1]
}
