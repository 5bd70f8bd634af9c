package services

import "strings"

// SectionSeparator is the literal line the game client puts between item card sections
const SectionSeparator = "--------"

// SplitSections splits item text into contiguous runs of trimmed, non-blank lines.
// Runs are delimited by SectionSeparator lines; empty runs are dropped.
func SplitSections(text string) [][]string {
	var sections [][]string
	var current []string

	flush := func() {
		if len(current) > 0 {
			sections = append(sections, current)
			current = nil
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		cleaned := strings.TrimSpace(line)
		if cleaned == SectionSeparator {
			flush()
			continue
		}
		if cleaned != "" {
			current = append(current, cleaned)
		}
	}
	flush()

	return sections
}

// LooksLikeItemText reports whether text plausibly is an item card copied from the game
func LooksLikeItemText(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 3 {
		return false
	}

	head := lines
	if len(head) > 5 {
		head = head[:5]
	}
	firstLines := strings.ToLower(strings.Join(head, "\n"))

	return strings.Contains(firstLines, "item class:") ||
		strings.Contains(firstLines, "rarity:") ||
		strings.Contains(trimmed, SectionSeparator)
}
