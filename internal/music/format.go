package music

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLength is the platform's content limit for a single message.
const MaxMessageLength = 2000

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"~", `\~`,
	"`", "\\`",
	"|", `\|`,
	">", `\>`,
)

func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// FormatDuration renders m:ss or h:mm:ss, or "?" when the length is unknown.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "?"
	}

	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

type trackFormat struct {
	bold     bool
	duration bool
	link     bool
	position *time.Duration
}

func formatTrack(t Track, f trackFormat) string {
	var b strings.Builder

	title := EscapeMarkdown(t.Title)
	if f.bold {
		b.WriteString("**" + title + "**")
	} else {
		b.WriteString(title)
	}

	if f.duration && !t.IsLive {
		b.WriteString(" (**")
		if f.position != nil {
			b.WriteString(FormatDuration(*f.position) + " / ")
		}
		b.WriteString(FormatDuration(t.Duration) + "**)")
	}

	if f.link && t.URI != "" {
		b.WriteString(" [(link)](<" + t.URI + ">)")
	}

	return b.String()
}

// Truncate cuts s to at most limit bytes, ending in "..." when shortened.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}

	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
