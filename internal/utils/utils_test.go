package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "привет", Truncate("привет", 10))
	assert.Equal(t, "при…", Truncate("привет", 3))
	assert.Equal(t, "", Truncate("abc", 0))
}

func TestLowerFirst(t *testing.T) {
	assert.Equal(t, "конечно!", LowerFirst("Конечно!"))
	assert.Equal(t, "", LowerFirst(""))
	assert.Equal(t, "42", LowerFirst("42"))
}

func TestRenderHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain escapes", "a < b & c", "a &lt; b &amp; c"},
		{"bold", "это **важно**", "это <b>важно</b>"},
		{"bold underscores", "__жирный__", "<b>жирный</b>"},
		{"italic", "очень *тихо* тут", "очень <i>тихо</i> тут"},
		{"fence with lang", "код:\n```go\nx := 1 < 2\n```", "код:\n<pre><code class=\"language-go\">x := 1 &lt; 2</code></pre>"},
		{"fence without lang", "```\nls\n```", "<pre><code>ls</code></pre>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderHTML(tt.in))
		})
	}
}
