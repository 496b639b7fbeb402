package utils

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Truncate cuts s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

// LowerFirst lower-cases the first rune of s.
func LowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// EscapeHTML escapes text for Telegram HTML parse mode.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}

var (
	fenceRx  = regexp.MustCompile("(?s)```([a-zA-Z0-9#+-]*)\n(.*?)```")
	boldRx   = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	italicRx = regexp.MustCompile(`(^|[^*\w])\*([^*\n]+?)\*([^*\w]|$)`)
)

// RenderHTML escapes model output and converts code fences, **bold** and
// *italic* into Telegram HTML.
func RenderHTML(text string) string {
	var b strings.Builder
	last := 0
	for _, m := range fenceRx.FindAllStringSubmatchIndex(text, -1) {
		b.WriteString(renderInline(text[last:m[0]]))
		lang := text[m[2]:m[3]]
		code := html.EscapeString(strings.TrimRight(text[m[4]:m[5]], "\n"))
		if lang != "" {
			b.WriteString(`<pre><code class="language-` + lang + `">` + code + `</code></pre>`)
		} else {
			b.WriteString("<pre><code>" + code + "</code></pre>")
		}
		last = m[1]
	}
	b.WriteString(renderInline(text[last:]))
	return b.String()
}

func renderInline(s string) string {
	if s == "" {
		return ""
	}
	s = html.EscapeString(s)
	s = boldRx.ReplaceAllStringFunc(s, func(m string) string {
		return "<b>" + m[2:len(m)-2] + "</b>"
	})
	return italicRx.ReplaceAllString(s, "$1<i>$2</i>$3")
}
