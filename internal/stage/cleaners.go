package stage

import (
	"regexp"
	"strings"
)

// WhitespaceCleaner normalizes line endings, strips trailing whitespace, and
// collapses runs of blank lines down to one.
type WhitespaceCleaner struct{}

var blankRunRe = regexp.MustCompile(`\n{3,}`)

func (c *WhitespaceCleaner) Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	text = strings.Join(lines, "\n")

	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// MarkdownNoiseCleaner strips documentation boilerplate that would never be
// useful in a retrieval context: "Edit this page" links and auto-generated
// tables of contents.
type MarkdownNoiseCleaner struct{}

var (
	editLinkRe = regexp.MustCompile(`(?mi)^\[edit[^\]]*\]\([^\)]+\)[ \t]*$`)
	tocRe      = regexp.MustCompile(`(?mi)^#{1,3}[ \t]+(?:table of )?contents?[ \t]*\n(?:[ \t]*[-*][ \t]*\[.*?\]\(#.*?\)[ \t]*\n)*`)
)

func (c *MarkdownNoiseCleaner) Clean(text string) string {
	text = editLinkRe.ReplaceAllString(text, "")
	text = tocRe.ReplaceAllString(text, "")
	return text
}

// ControlCharCleaner drops control characters other than newline and tab.
type ControlCharCleaner struct{}

func (c *ControlCharCleaner) Clean(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)
}
