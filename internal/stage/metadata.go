package stage

import (
	"path/filepath"
	"strings"

	"github.com/seanblong/docsearch/pkg/models"
)

// FileInfoExtractor records path facts: file name, extension, and a coarse
// document type.
type FileInfoExtractor struct{}

func (e *FileInfoExtractor) Extract(snap *models.FileSnapshot, meta map[string]any) map[string]any {
	if snap == nil {
		return meta
	}
	out := cloneMeta(meta)
	out["file_name"] = filepath.Base(snap.Path)
	ext := strings.ToLower(filepath.Ext(snap.Path))
	out["extension"] = ext
	out["doc_type"] = docType(ext)
	return out
}

func docType(ext string) string {
	switch ext {
	case ".md", ".markdown":
		return "markdown"
	case ".txt", ".text":
		return "text"
	case ".docx":
		return "word"
	default:
		return strings.TrimPrefix(ext, ".")
	}
}

// TitleExtractor takes the first markdown heading, or failing that the first
// non-empty line, as the document title.
type TitleExtractor struct{}

const maxTitleLen = 120

func (e *TitleExtractor) Extract(snap *models.FileSnapshot, meta map[string]any) map[string]any {
	if snap == nil || snap.RawText == "" {
		return meta
	}

	var fallback string
	for _, line := range strings.Split(snap.RawText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			title := strings.TrimSpace(strings.TrimLeft(line, "# "))
			if title != "" {
				return withTitle(meta, title)
			}
			continue
		}
		if fallback == "" {
			fallback = line
		}
	}
	if fallback == "" {
		return meta
	}
	return withTitle(meta, fallback)
}

func withTitle(meta map[string]any, title string) map[string]any {
	if len(title) > maxTitleLen {
		title = title[:maxTitleLen]
	}
	out := cloneMeta(meta)
	out["title"] = title
	return out
}

func cloneMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+4)
	for k, v := range meta {
		out[k] = v
	}
	return out
}
