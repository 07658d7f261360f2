package parser

import "strings"

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		if level, text := heading(line); level == 1 && text != "" {
			return text
		}
	}
	return ""
}

// FirstHeading returns the trimmed text of the first ATX heading of any level
// in content, skipping YAML frontmatter and fenced code. It returns "" when
// there is none.
func FirstHeading(content string) string {
	_, body, _ := splitFrontmatter([]byte(content))
	return firstHeading(stripCode(body))
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if level, text := heading(line); level > 0 && text != "" {
			return text
		}
	}
	return ""
}

// heading parses "## text" style lines. level is 0 for non-heading lines.
func heading(line string) (level int, text string) {
	trimmed := strings.TrimSpace(line)
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, ""
	}
	rest := trimmed[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		// "#tag" is a tag, not a heading.
		return 0, ""
	}
	text = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), "#"))
	return level, text
}
