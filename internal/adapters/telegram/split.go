package telegram

import "strings"

const messageLimit = 4096

// SplitMessage packs whole lines into chunks of at most messageLimit runes.
// A single line longer than the limit is cut hard.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if runeLen(trimmed) <= messageLimit {
		return []string{trimmed}
	}

	var (
		parts []string
		cur   []string
		size  int
	)
	flush := func() {
		if chunk := strings.Trim(strings.Join(cur, "\n"), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		cur, size = cur[:0], 0
	}
	for _, line := range strings.Split(trimmed, "\n") {
		n := runeLen(line)
		if n > messageLimit {
			flush()
			r := []rune(line)
			for len(r) > messageLimit {
				parts = append(parts, string(r[:messageLimit]))
				r = r[messageLimit:]
			}
			line, n = string(r), len(r)
		}
		extra := n
		if len(cur) > 0 {
			extra++
		}
		if size+extra > messageLimit {
			flush()
			extra = n
		}
		cur = append(cur, line)
		size += extra
	}
	flush()
	return parts
}

func runeLen(s string) int {
	return len([]rune(s))
}
