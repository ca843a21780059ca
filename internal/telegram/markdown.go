package telegram

import (
	"strings"
)

// SplitMessage splits text into chunks of at most maxLen runes, preferring to
// cut after a newline in the second half of a chunk.
func SplitMessage(text string, maxLen int) []string {
	runes := []rune(text)
	if maxLen <= 0 || len(runes) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(runes) > maxLen {
		splitAt := maxLen
		for i := maxLen - 1; i > maxLen/2; i-- {
			if runes[i] == '\n' {
				splitAt = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:splitAt]))
		runes = runes[splitAt:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

// FixMarkdown closes unbalanced code fences and inline code spans.
func FixMarkdown(text string) string {
	if strings.Count(text, "```")%2 != 0 {
		text += "\n```"
	}
	return fixInlineCode(text)
}

func fixInlineCode(text string) string {
	var sb strings.Builder
	inBlock := false
	inlineOpen := false

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if i+2 < len(runes) && runes[i] == '`' && runes[i+1] == '`' && runes[i+2] == '`' {
			if inlineOpen {
				sb.WriteRune('`')
				inlineOpen = false
			}
			inBlock = !inBlock
			sb.WriteString("```")
			i += 2
			continue
		}
		if !inBlock && runes[i] == '`' {
			inlineOpen = !inlineOpen
		}
		sb.WriteRune(runes[i])
	}
	if inlineOpen {
		sb.WriteRune('`')
	}
	return sb.String()
}

// LegacyMarkdown rewrites the common markdown emphasis used by the assistant
// into Telegram's legacy Markdown mode, leaving code untouched.
func LegacyMarkdown(text string) string {
	var sb strings.Builder
	for i, seg := range strings.Split(text, "```") {
		if i > 0 {
			sb.WriteString("```")
		}
		if i%2 == 1 {
			sb.WriteString(seg)
			continue
		}
		seg = strings.ReplaceAll(seg, "**", "*")
		seg = strings.ReplaceAll(seg, "__", "_")
		sb.WriteString(rewriteHeadings(seg))
	}
	return sb.String()
}

// rewriteHeadings turns "# Title" lines into bold lines.
func rewriteHeadings(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, "#")
		if trimmed == line || !strings.HasPrefix(trimmed, " ") {
			continue
		}
		lines[i] = "*" + strings.TrimSpace(trimmed) + "*"
	}
	return strings.Join(lines, "\n")
}
