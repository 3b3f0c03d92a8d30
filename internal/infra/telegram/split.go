package telegram

import "strings"

// SplitMessage splits text into chunks of at most maxLen runes, preferring
// to break after a newline in the second half of a chunk.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = MaxMessageLength
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			parts = append(parts, string(runes))
			break
		}

		cut := maxLen
		chunk := string(runes[:maxLen])
		if idx := strings.LastIndex(chunk, "\n"); idx >= 0 {
			if n := len([]rune(chunk[:idx])) + 1; n >= maxLen/2 {
				cut = n
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	return parts
}
