package council

import "strings"

const (
	titleMaxWords = 8
	titleMaxBytes = 60
)

// DeriveTitle builds a conversation title from the first line of the user's
// prompt when the title model call fails. Markdown markers are stripped and
// the result is capped at 8 words / 60 bytes.
func DeriveTitle(prompt string) string {
	var first string
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "#>*-` ")
		line = strings.TrimSpace(strings.ReplaceAll(line, "`", ""))
		if line != "" {
			first = line
			break
		}
	}
	if first == "" {
		return "New Conversation"
	}

	words := strings.Fields(first)
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	title := strings.Join(words, " ")
	if len(title) > titleMaxBytes {
		title = strings.TrimSpace(title[:titleMaxBytes])
	}
	return strings.TrimRight(title, ".,;:!?")
}

// CleanModelTitle normalizes a model-produced title: one line, no wrapping
// quotes, no trailing punctuation. Empty result means the call is unusable.
func CleanModelTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	title = strings.Trim(title, `"'`)
	title = strings.TrimRight(title, ".,;:!?")
	if len(title) > titleMaxBytes*2 {
		return ""
	}
	return title
}
