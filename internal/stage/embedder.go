package stage

import (
	"context"
	"fmt"

	"github.com/seanblong/docsearch/internal/ai"
	"github.com/seanblong/docsearch/internal/store"
	"github.com/seanblong/docsearch/pkg/models"
)

// StoreEmbedder embeds each span and persists the chunk set through the
// repository as an atomic replace keyed by the snapshot's hash: a failed
// embed leaves the prior chunk set intact, and a retry cannot leave a
// half-written mix of old and new chunks.
type StoreEmbedder struct {
	Client ai.Client
	Chunks store.ChunkStore
}

func (e *StoreEmbedder) Embed(ctx context.Context, snap *models.FileSnapshot, spans []string, meta map[string]any) (int, error) {
	if len(spans) == 0 {
		// Nothing to insert; clear any chunks left from a prior version.
		if err := e.Chunks.DeleteChunksByHash(ctx, snap.Hash); err != nil {
			return 0, err
		}
		return 0, nil
	}

	chunks := make([]models.Chunk, 0, len(spans))
	for i, span := range spans {
		vec, err := e.Client.Embed(ctx, span)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d/%d of %s: %w", i+1, len(spans), snap.Path, err)
		}
		m := make(map[string]any, len(meta)+4)
		for k, v := range meta {
			m[k] = v
		}
		m["chunk_index"] = i
		m["total_chunks"] = len(spans)
		m["file_hash"] = snap.Hash
		m["file_path"] = snap.Path
		chunks = append(chunks, models.Chunk{Content: span, Metadata: m, Embedding: vec})
	}

	// SaveChunks deletes the hash's prior set and inserts the new one in a
	// single transaction.
	if err := e.Chunks.SaveChunks(ctx, snap, chunks); err != nil {
		return 0, fmt.Errorf("save chunks for %s: %w", snap.Path, err)
	}
	return len(chunks), nil
}
