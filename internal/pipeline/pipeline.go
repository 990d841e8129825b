// Package pipeline drives one file snapshot through the five processing
// stages in strict order: parse, clean, extract metadata, chunk, embed.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/docsearch/internal/stage"
	"github.com/seanblong/docsearch/internal/store"
	"github.com/seanblong/docsearch/pkg/models"
	"golang.org/x/sync/semaphore"
)

// Config selects the stages and the two stage-level concurrency ceilings.
type Config struct {
	Parser         string
	Cleaners       []string
	Extractors     []string
	Chunker        string
	Embedder       string
	EnableCleaning bool
	EnableMetadata bool
	MaxParse       int64
	MaxEmbed       int64
}

// Orchestrator sequences the stages for one file. The parse and embed
// semaphores are shared across every concurrent run, so those two stages are
// bounded independently of how many files are in flight.
type Orchestrator struct {
	files      store.FileStore
	parser     stage.Parser
	cleaners   []stage.Cleaner
	extractors []stage.MetadataExtractor
	chunker    stage.Chunker
	embedder   stage.Embedder

	parseSem *semaphore.Weighted
	embedSem *semaphore.Weighted
}

// New resolves every configured stage key against the registry. Resolution
// failures are fatal here, at startup, before any file is claimed.
func New(cfg Config, reg *stage.Registry, files store.FileStore) (*Orchestrator, error) {
	parser, err := reg.Parser(cfg.Parser)
	if err != nil {
		return nil, err
	}
	var cleaners []stage.Cleaner
	if cfg.EnableCleaning {
		if cleaners, err = reg.Cleaners(cfg.Cleaners); err != nil {
			return nil, err
		}
	}
	var extractors []stage.MetadataExtractor
	if cfg.EnableMetadata {
		if extractors, err = reg.Extractors(cfg.Extractors); err != nil {
			return nil, err
		}
	}
	chunker, err := reg.Chunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	embedder, err := reg.Embedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	maxParse := cfg.MaxParse
	if maxParse < 1 {
		maxParse = 1
	}
	maxEmbed := cfg.MaxEmbed
	if maxEmbed < 1 {
		maxEmbed = 1
	}

	return &Orchestrator{
		files:      files,
		parser:     parser,
		cleaners:   cleaners,
		extractors: extractors,
		chunker:    chunker,
		embedder:   embedder,
		parseSem:   semaphore.NewWeighted(maxParse),
		embedSem:   semaphore.NewWeighted(maxEmbed),
	}, nil
}

// Process runs the stages for one claimed snapshot and writes the terminal
// status transition. A returned file error (see IsFileError) has already
// been recorded against the file; any other error means the repository
// itself failed and the caller must stop claiming.
func (o *Orchestrator) Process(ctx context.Context, snap *models.FileSnapshot) error {
	start := time.Now()

	text, err := o.parse(ctx, snap)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		perr := &ParseError{Path: snap.Path}
		return o.fail(ctx, snap, perr)
	}
	snap.RawText = text

	for _, c := range o.cleaners {
		snap.RawText = c.Clean(snap.RawText)
	}

	meta := map[string]any{}
	for _, ex := range o.extractors {
		meta = applyExtractor(ex, snap, meta)
	}

	spans := o.chunker.Chunk(snap)
	if len(spans) == 0 && strings.TrimSpace(snap.RawText) != "" {
		cerr := &ChunkingError{Path: snap.Path}
		return o.fail(ctx, snap, cerr)
	}

	count, err := o.embed(ctx, snap, spans, meta)
	if err != nil {
		return err
	}

	if err := o.files.MarkProcessed(ctx, snap.Hash); err != nil {
		return fmt.Errorf("mark processed %s: %w", snap.Path, err)
	}

	log.Info().
		Str("path", snap.Path).
		Str("hash", snap.Hash).
		Int("chunks", count).
		Dur("dur", time.Since(start)).
		Msg("file processed")
	return nil
}

func (o *Orchestrator) parse(ctx context.Context, snap *models.FileSnapshot) (string, error) {
	if err := o.parseSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer o.parseSem.Release(1)

	text, err := o.parser.Parse(ctx, snap)
	if err != nil {
		perr := &ParseError{Path: snap.Path, Err: err}
		return "", o.fail(ctx, snap, perr)
	}
	return text, nil
}

func (o *Orchestrator) embed(ctx context.Context, snap *models.FileSnapshot, spans []string, meta map[string]any) (int, error) {
	if err := o.embedSem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer o.embedSem.Release(1)

	count, err := o.embedder.Embed(ctx, snap, spans, meta)
	if err != nil {
		eerr := &EmbeddingError{Path: snap.Path, Err: err}
		return 0, o.fail(ctx, snap, eerr)
	}
	return count, nil
}

// fail records the terminal failure against the file. If the status write
// itself fails, the repository error takes precedence.
func (o *Orchestrator) fail(ctx context.Context, snap *models.FileSnapshot, ferr error) error {
	log.Warn().Str("path", snap.Path).Str("hash", snap.Hash).Err(ferr).Msg("file errored")
	if err := o.files.MarkError(ctx, snap.Hash, ferr.Error()); err != nil {
		return fmt.Errorf("mark error %s: %w", snap.Path, err)
	}
	return ferr
}

// applyExtractor shields the run from a misbehaving extractor: the contract
// says extractors never fail, so a panic falls back to the input metadata.
func applyExtractor(ex stage.MetadataExtractor, snap *models.FileSnapshot, meta map[string]any) (out map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("path", snap.Path).Any("panic", r).Msg("metadata extractor panicked")
			out = meta
		}
	}()
	return ex.Extract(snap, meta)
}
