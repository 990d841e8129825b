package stage

import (
	"strings"
	"unicode/utf8"

	"github.com/seanblong/docsearch/pkg/models"
)

// ParagraphChunker splits on blank lines and greedily merges consecutive
// paragraphs up to MaxSize runes. A single oversized paragraph becomes its
// own chunk rather than being truncated, so every input rune ends up in
// exactly one span.
type ParagraphChunker struct {
	MaxSize int
}

func (c *ParagraphChunker) Chunk(snap *models.FileSnapshot) []string {
	text := strings.TrimSpace(snap.RawText)
	if text == "" {
		return nil
	}
	max := c.MaxSize
	if max <= 0 {
		max = 1200
	}

	paras := splitParagraphs(text)
	var chunks []string
	var cur strings.Builder
	curRunes := 0
	for _, p := range paras {
		n := utf8.RuneCountInString(p)
		if curRunes > 0 && curRunes+len("\n\n")+n > max {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curRunes = 0
		}
		if curRunes > 0 {
			cur.WriteString("\n\n")
			curRunes += len("\n\n")
		}
		cur.WriteString(p)
		curRunes += n
	}
	if curRunes > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WindowChunker slides a fixed rune window over the text with the configured
// overlap. The last window always reaches the end of the text: nothing is
// silently dropped.
type WindowChunker struct {
	Size    int
	Overlap int
}

func (c *WindowChunker) Chunk(snap *models.FileSnapshot) []string {
	text := snap.RawText
	if strings.TrimSpace(text) == "" {
		return nil
	}
	size := c.Size
	if size <= 0 {
		size = 1200
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
