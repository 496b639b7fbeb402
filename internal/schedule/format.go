package schedule

import (
	"strings"
	"time"
	"unicode/utf8"

	"ourmate-bot/internal/models"
	"ourmate-bot/internal/texts"
	"ourmate-bot/internal/utils"
)

// MessageLimit is Telegram's maximum text length.
const MessageLimit = 4096

// Formatter renders schedule blocks in Telegram HTML.
type Formatter struct {
	tx     *texts.Texts
	footer string
}

func NewFormatter(tx *texts.Texts, footer string) *Formatter {
	return &Formatter{tx: tx, footer: footer}
}

// Classes renders a title, a blank line and one "• HH:MM-HH:MM / — <b>name</b>"
// pair per event. Empty events give empty.
func (f *Formatter) Classes(events []models.ScheduleEvent, title, empty string, quote bool) string {
	if len(events) == 0 {
		return empty
	}
	var lines []string
	for _, e := range events {
		lines = append(lines, "• "+e.Start.Format("15:04")+"-"+e.End.Format("15:04"))
		line := "— <b>" + utils.EscapeHTML(e.Summary) + "</b>"
		if e.Location != "" {
			line += " (" + utils.EscapeHTML(e.Location) + ")"
		}
		lines = append(lines, line)
	}
	body := strings.Join(lines, "\n")
	if quote {
		body = "<blockquote>" + body + "</blockquote>"
	}
	return title + "\n\n" + body
}

// Day answers "пары сегодня" and "пары завтра".
func (f *Formatter) Day(cal *Calendar, now time.Time, tomorrow bool) string {
	day := cal.day(now)
	title, empty := texts.ScheduleToday, texts.NoneToday
	if tomorrow {
		day = day.AddDate(0, 0, 1)
		title, empty = texts.ScheduleTomorrow, texts.NoneTomorrow
	}
	return f.Classes(cal.EventsOn(day), f.tx.Get(title), f.tx.Get(empty), false)
}

func (f *Formatter) dayBlock(g DayGroup) string {
	header := f.tx.T(texts.ScheduleDay, map[string]any{
		"Day":  f.tx.WeekdayTitle(g.Date.Weekday()),
		"Date": g.Date.Format("02.01"),
	})
	return f.Classes(g.Events, "<b>"+header+"</b>", "", true)
}

// Pinned builds the rolling summary for today. ok is false when nothing is
// scheduled today or later.
func (f *Formatter) Pinned(cal *Calendar, today time.Time) (text string, ok bool) {
	today = cal.day(today)
	todays := cal.EventsOn(today)

	var (
		blocks   []string
		usedNext time.Time
	)
	if len(todays) > 0 {
		blocks = append(blocks, f.Classes(todays, f.tx.Get(texts.ScheduleToday), "", true))
	} else {
		date, events, found := cal.NextEventsAfter(today)
		if !found {
			return "", false
		}
		usedNext = date
		next := f.Classes(events, f.tx.T(texts.ScheduleNext, map[string]any{
			"Day":  f.tx.Weekday(date.Weekday()),
			"Date": date.Format("02.01"),
		}), "", true)
		blocks = append(blocks, f.tx.Get(texts.NoneToday)+"\n\n"+next)
	}

	var tail string
	if f.footer != "" {
		tail = "\n\n" + f.footer
	}
	size := utf8.RuneCountInString(blocks[0]) + utf8.RuneCountInString(tail)

	for _, g := range cal.DaysFrom(today) {
		if g.Date.Equal(today) || g.Date.Equal(usedNext) {
			continue
		}
		b := f.dayBlock(g)
		n := utf8.RuneCountInString(b) + 2
		if size+n > MessageLimit {
			break
		}
		size += n
		blocks = append(blocks, b)
	}
	return strings.Join(blocks, "\n\n") + tail, true
}
