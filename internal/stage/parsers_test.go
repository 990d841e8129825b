package stage

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/seanblong/docsearch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, content []byte) *models.FileSnapshot {
	t.Helper()
	full := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(full, content, 0o644))
	return &models.FileSnapshot{Path: name, FullPath: full, Hash: "h"}
}

func TestTextParser(t *testing.T) {
	p := &TextParser{}
	snap := writeTemp(t, "a.md", []byte("# Title\n\nBody text.\n"))

	text, err := p.Parse(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nBody text.\n", text)
}

func TestTextParserInvalidUTF8(t *testing.T) {
	p := &TextParser{}
	snap := writeTemp(t, "a.txt", []byte("ok\xff\xfebytes"))

	text, err := p.Parse(context.Background(), snap)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(text))
	assert.Contains(t, text, "ok")
	assert.Contains(t, text, "bytes")
}

func TestTextParserMissingFile(t *testing.T) {
	p := &TextParser{}
	snap := &models.FileSnapshot{Path: "gone.txt", FullPath: filepath.Join(t.TempDir(), "gone.txt")}

	_, err := p.Parse(context.Background(), snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone.txt")
}

// writeDocx builds a minimal .docx on disk: a zip with word/document.xml.
func writeDocx(t *testing.T, documentXML string) *models.FileSnapshot {
	t.Helper()
	full := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(full)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return &models.FileSnapshot{Path: "doc.docx", FullPath: full, Hash: "h"}
}

func TestDocxParser(t *testing.T) {
	xml := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Hello</w:t></w:r><w:br/><w:r><w:t>World</w:t></w:r></w:p>
    <w:p><w:r><w:t>Col</w:t></w:r><w:tab/><w:r><w:t>umn</w:t></w:r></w:p>
    <w:p/>
  </w:body>
</w:document>`
	p := &DocxParser{}
	snap := writeDocx(t, xml)

	text, err := p.Parse(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, "Hello\nWorld\nCol\tumn\n\n", text)
}

func TestDocxParserMissingDocument(t *testing.T) {
	full := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(full)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("word/styles.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	p := &DocxParser{}
	_, err = p.Parse(context.Background(), &models.FileSnapshot{Path: "empty.docx", FullPath: full})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "word/document.xml")
}

func TestDocxParserCorruptArchive(t *testing.T) {
	p := &DocxParser{}
	snap := writeTemp(t, "fake.docx", []byte("this is not a zip archive"))

	_, err := p.Parse(context.Background(), snap)
	require.Error(t, err)
}

func TestAutoParserDispatch(t *testing.T) {
	auto := &AutoParser{Text: &TextParser{}, Docx: &DocxParser{}}
	ctx := context.Background()

	snap := writeTemp(t, "notes.md", []byte("markdown body"))
	text, err := auto.Parse(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, "markdown body", text)

	snap = writeTemp(t, "notes.TXT", []byte("plain body"))
	text, err = auto.Parse(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, "plain body", text)
}

func TestAutoParserUnknownExtension(t *testing.T) {
	auto := &AutoParser{Text: &TextParser{}, Docx: &DocxParser{}}
	snap := writeTemp(t, "image.png", []byte{0x89, 0x50})

	_, err := auto.Parse(context.Background(), snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported document format")
}
