// Package stage defines the pluggable pipeline stage contracts and the
// name-indexed registry that resolves configuration keys to implementations
// once at startup.
package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/seanblong/docsearch/internal/ai"
	"github.com/seanblong/docsearch/internal/store"
	"github.com/seanblong/docsearch/pkg/models"
)

// ErrUnknownStage is returned when a configuration key matches no registered
// stage. Resolution happens before any file is claimed, so an unknown key is
// fatal at startup, never at processing time.
var ErrUnknownStage = errors.New("unknown stage key")

// Parser extracts raw text from a document. It may fail on unreadable or
// corrupt input; the orchestrator treats any parser error as terminal for
// the attempt.
type Parser interface {
	Parse(ctx context.Context, snap *models.FileSnapshot) (string, error)
}

// Cleaner transforms extracted text. Cleaners are pure and idempotent
// (clean(clean(x)) == clean(x)) and compose left to right.
type Cleaner interface {
	Clean(text string) string
}

// MetadataExtractor folds facts about the snapshot into the accumulated
// metadata. Extractors must not fail: one that cannot do its job returns the
// input metadata unchanged.
type MetadataExtractor interface {
	Extract(snap *models.FileSnapshot, meta map[string]any) map[string]any
}

// Chunker splits the snapshot's text into ordered spans covering the whole
// input. Empty text yields zero spans.
type Chunker interface {
	Chunk(snap *models.FileSnapshot) []string
}

// Embedder embeds the spans and persists the resulting chunk set, replacing
// any prior set for the snapshot's hash. It returns the number of chunks
// persisted.
type Embedder interface {
	Embed(ctx context.Context, snap *models.FileSnapshot, spans []string, meta map[string]any) (int, error)
}

// Options carries the dependencies and knobs the built-in stages need.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Client       ai.Client
	Chunks       store.ChunkStore
}

// Registry maps configuration keys to stage implementations.
type Registry struct {
	parsers    map[string]Parser
	cleaners   map[string]Cleaner
	extractors map[string]MetadataExtractor
	chunkers   map[string]Chunker
	embedders  map[string]Embedder
}

// NewRegistry builds a registry populated with the built-in stages.
func NewRegistry(opts Options) *Registry {
	text := &TextParser{}
	docx := &DocxParser{}

	return &Registry{
		parsers: map[string]Parser{
			"text": text,
			"docx": docx,
			"auto": &AutoParser{Text: text, Docx: docx},
		},
		cleaners: map[string]Cleaner{
			"whitespace":     &WhitespaceCleaner{},
			"markdown-noise": &MarkdownNoiseCleaner{},
			"control-chars":  &ControlCharCleaner{},
		},
		extractors: map[string]MetadataExtractor{
			"file-info": &FileInfoExtractor{},
			"title":     &TitleExtractor{},
		},
		chunkers: map[string]Chunker{
			"paragraph": &ParagraphChunker{MaxSize: opts.ChunkSize},
			"window":    &WindowChunker{Size: opts.ChunkSize, Overlap: opts.ChunkOverlap},
		},
		embedders: map[string]Embedder{
			"store": &StoreEmbedder{Client: opts.Client, Chunks: opts.Chunks},
		},
	}
}

// Parser resolves a parser stage by key.
func (r *Registry) Parser(key string) (Parser, error) {
	p, ok := r.parsers[key]
	if !ok {
		return nil, fmt.Errorf("parser %q: %w", key, ErrUnknownStage)
	}
	return p, nil
}

// Cleaners resolves an ordered cleaner pipeline by keys.
func (r *Registry) Cleaners(keys []string) ([]Cleaner, error) {
	out := make([]Cleaner, 0, len(keys))
	for _, k := range keys {
		c, ok := r.cleaners[k]
		if !ok {
			return nil, fmt.Errorf("cleaner %q: %w", k, ErrUnknownStage)
		}
		out = append(out, c)
	}
	return out, nil
}

// Extractors resolves an ordered metadata-extractor pipeline by keys.
func (r *Registry) Extractors(keys []string) ([]MetadataExtractor, error) {
	out := make([]MetadataExtractor, 0, len(keys))
	for _, k := range keys {
		e, ok := r.extractors[k]
		if !ok {
			return nil, fmt.Errorf("extractor %q: %w", k, ErrUnknownStage)
		}
		out = append(out, e)
	}
	return out, nil
}

// Chunker resolves a chunker stage by key.
func (r *Registry) Chunker(key string) (Chunker, error) {
	c, ok := r.chunkers[key]
	if !ok {
		return nil, fmt.Errorf("chunker %q: %w", key, ErrUnknownStage)
	}
	return c, nil
}

// Embedder resolves an embedder stage by key.
func (r *Registry) Embedder(key string) (Embedder, error) {
	e, ok := r.embedders[key]
	if !ok {
		return nil, fmt.Errorf("embedder %q: %w", key, ErrUnknownStage)
	}
	return e, nil
}
