package stage

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/seanblong/docsearch/pkg/models"
)

// TextParser reads plain text and markdown documents as-is, dropping invalid
// UTF-8 sequences.
type TextParser struct{}

func (p *TextParser) Parse(ctx context.Context, snap *models.FileSnapshot) (string, error) {
	b, err := os.ReadFile(snap.FullPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", snap.Path, err)
	}
	if utf8.Valid(b) {
		return string(b), nil
	}
	return strings.ToValidUTF8(string(b), ""), nil
}

// DocxParser extracts text from Microsoft Word documents: a .docx file is a
// zip archive whose word/document.xml holds the body as w:p paragraphs and
// w:t text runs.
type DocxParser struct{}

func (p *DocxParser) Parse(ctx context.Context, snap *models.FileSnapshot) (string, error) {
	zr, err := zip.OpenReader(snap.FullPath)
	if err != nil {
		return "", fmt.Errorf("open docx %s: %w", snap.Path, err)
	}
	defer zr.Close()

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx %s: missing word/document.xml", snap.Path)
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open document.xml in %s: %w", snap.Path, err)
	}
	defer rc.Close()

	text, err := extractDocxText(rc)
	if err != nil {
		return "", fmt.Errorf("parse document.xml in %s: %w", snap.Path, err)
	}
	return text, nil
}

// extractDocxText streams the document XML, emitting text runs and a newline
// per paragraph boundary.
func extractDocxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	var inText bool
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "br":
				sb.WriteByte('\n')
			case "tab":
				sb.WriteByte('\t')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

// AutoParser dispatches to a concrete parser by file extension. An unknown
// extension is a parse failure: the scanner should never have listed it.
type AutoParser struct {
	Text *TextParser
	Docx *DocxParser
}

func (p *AutoParser) Parse(ctx context.Context, snap *models.FileSnapshot) (string, error) {
	switch strings.ToLower(filepath.Ext(snap.Path)) {
	case ".txt", ".text", ".md", ".markdown":
		return p.Text.Parse(ctx, snap)
	case ".docx":
		return p.Docx.Parse(ctx, snap)
	default:
		return "", fmt.Errorf("unsupported document format: %s", snap.Path)
	}
}
