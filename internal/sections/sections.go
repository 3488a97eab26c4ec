// Package sections splits free-text narrative into positional sections and
// pulls lists out of labeled sub-sections. Every function here is total: bad
// input degrades to placeholders, never to an error.
package sections

import (
	"regexp"
	"strings"
)

// Placeholder fills slots the narrative did not provide.
const Placeholder = "Information not available"

var (
	blankLine  = regexp.MustCompile(`\n[ \t]*\n`)
	listMarker = regexp.MustCompile(`^\s*(?:\(?\d{1,2}[.):]|[-*•])\s+`)
	bullet     = regexp.MustCompile(`(?m)^\s*(?:\d{1,2}[.)]|[-*•])\s+`)
	listSep    = regexp.MustCompile(`[,;\n]`)
)

// Parse returns exactly n sections of text. Paragraph breaks are tried first,
// then single line breaks; missing trailing slots get Placeholder and surplus
// pieces are joined into the last slot.
func Parse(text string, n int) []string {
	if n < 1 {
		return []string{}
	}

	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	pieces := split(blankLine.Split(normalized, -1))
	if len(pieces) < n {
		if lines := split(strings.Split(normalized, "\n")); len(lines) > len(pieces) {
			pieces = lines
		}
	}

	out := make([]string, n)
	for i := range out {
		switch {
		case i >= len(pieces):
			out[i] = Placeholder
		case i == n-1 && len(pieces) > n:
			out[i] = strings.Join(pieces[i:], "\n\n")
		default:
			out[i] = pieces[i]
		}
	}
	return out
}

// Paragraphs returns the non-empty blank-line separated pieces of text.
func Paragraphs(text string) []string {
	return split(blankLine.Split(strings.ReplaceAll(text, "\r\n", "\n"), -1))
}

func split(raw []string) []string {
	pieces := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(listMarker.ReplaceAllString(p, ""))
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

// ExtractList splits a list written as comma, semicolon, newline or bullet
// separated items. Surrounding quotes and markdown emphasis are removed and
// duplicates dropped. max <= 0 means no limit.
func ExtractList(text string, max int) []string {
	text = bullet.ReplaceAllString(text, "\n")
	var items []string
	seen := make(map[string]bool)
	for _, raw := range listSep.Split(text, -1) {
		item := strings.Trim(strings.TrimSpace(raw), "\"'`*#. ")
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, item)
		if max > 0 && len(items) == max {
			break
		}
	}
	return items
}

// Labeled returns the text that follows the first line starting with one
// of labels (case-insensitive), e.g. "Tags: a, b" yields "a, b". When the
// label line is bare, the following lines up to the next blank line are
// returned instead.
func Labeled(text string, labels ...string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		rest, ok := afterLabel(line, labels)
		if !ok {
			continue
		}
		if rest != "" {
			return rest
		}
		var block []string
		for _, next := range lines[i+1:] {
			if strings.TrimSpace(next) == "" {
				if len(block) > 0 {
					break
				}
				continue
			}
			block = append(block, next)
		}
		return strings.Join(block, "\n")
	}
	return ""
}

func afterLabel(line string, labels []string) (string, bool) {
	s := strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
	s = strings.TrimLeft(s, "#* ")
	lower := strings.ToLower(s)
	for _, label := range labels {
		label = strings.ToLower(label)
		if !strings.HasPrefix(lower, label) {
			continue
		}
		rest := strings.TrimLeft(s[len(label):], "*")
		// "Tags/keywords:" and "Tags (5):" style labels
		if idx := strings.Index(rest, ":"); idx >= 0 && idx < 24 {
			rest = rest[idx+1:]
		} else if strings.TrimSpace(rest) != "" {
			continue
		}
		return strings.TrimSpace(strings.Trim(rest, "* ")), true
	}
	return "", false
}

// FindParagraph returns the first paragraph containing any keyword,
// compared case-insensitively.
func FindParagraph(paragraphs []string, keywords ...string) (string, bool) {
	for _, p := range paragraphs {
		lower := strings.ToLower(p)
		for _, k := range keywords {
			if strings.Contains(lower, strings.ToLower(k)) {
				return p, true
			}
		}
	}
	return "", false
}

// Or returns s unless it is empty or the placeholder, in which case
// fallback is returned.
func Or(s, fallback string) string {
	if strings.TrimSpace(s) == "" || s == Placeholder {
		return fallback
	}
	return s
}
