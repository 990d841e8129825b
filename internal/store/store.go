package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/seanblong/docsearch/pkg/models"
)

// Store provides methods to interact with the database.
type Store struct {
	pool *pgxpool.Pool
}

// FileStore is the durable file-state machine: claim, status transitions,
// reconciliation, and queue introspection.
type FileStore interface {
	GetNextFile(ctx context.Context) (*models.FileRecord, error)
	MarkOK(ctx context.Context, hash string) error
	MarkProcessed(ctx context.Context, hash string) error
	MarkError(ctx context.Context, hash, reason string) error
	SyncFilesystemSnapshot(ctx context.Context, listings []models.FileListing) error
	ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error)
	GetQueueStats(ctx context.Context) (models.QueueStats, error)
	ListErrors(ctx context.Context, limit int) ([]models.FileRecord, error)
	ResetErrors(ctx context.Context) (int64, error)
}

// ChunkStore holds the derived chunk sets, keyed by file hash.
type ChunkStore interface {
	SaveChunks(ctx context.Context, snap *models.FileSnapshot, chunks []models.Chunk) error
	DeleteChunksByHash(ctx context.Context, hash string) error
	HasChunks(ctx context.Context, hash string) (bool, error)
	Search(ctx context.Context, vec []float32, k int) ([]models.SearchResult, error)
}

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Migrate applies necessary database migrations and schema setup.
func (s *Store) Migrate(ctx context.Context, dim int) error {
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS files (
  path       TEXT PRIMARY KEY,
  hash       TEXT NOT NULL,
  status     TEXT NOT NULL DEFAULT 'added',
  last_error TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE DEFAULT now(),
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS files_status_updated_idx
  ON files (status, updated_at);

CREATE INDEX IF NOT EXISTS files_hash_idx
  ON files (hash);

CREATE TABLE IF NOT EXISTS chunks (
  id          BIGSERIAL PRIMARY KEY,
  file_hash   TEXT NOT NULL,
  file_path   TEXT NOT NULL,
  chunk_index INT NOT NULL,
  content     TEXT NOT NULL,
  metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
  embedding   vector(%d),
  created_at  TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS chunks_file_hash_idx
  ON chunks (file_hash);

CREATE INDEX IF NOT EXISTS chunks_embedding_idx
  ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, dim))
	return err
}

// GetNextFile atomically claims the oldest eligible file, flipping it to
// processing. SKIP LOCKED keeps concurrent claimers (including other
// processes) from ever receiving the same path. Returns (nil, nil) when the
// queue is empty.
func (s *Store) GetNextFile(ctx context.Context) (*models.FileRecord, error) {
	const q = `
		UPDATE files SET status = 'processing', updated_at = now()
		WHERE path = (
			SELECT path FROM files
			WHERE status IN ('added', 'updated')
			ORDER BY updated_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING path, hash, status, last_error, created_at, updated_at;`

	var r models.FileRecord
	err := s.pool.QueryRow(ctx, q).
		Scan(&r.Path, &r.Hash, &r.Status, &r.LastError, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// MarkOK records a terminal success for an unchanged file.
func (s *Store) MarkOK(ctx context.Context, hash string) error {
	return s.setStatus(ctx, hash, models.StatusOK, "")
}

// MarkProcessed records a terminal success for a freshly embedded file.
func (s *Store) MarkProcessed(ctx context.Context, hash string) error {
	return s.setStatus(ctx, hash, models.StatusProcessed, "")
}

// MarkError records a terminal failure with its reason.
func (s *Store) MarkError(ctx context.Context, hash, reason string) error {
	return s.setStatus(ctx, hash, models.StatusError, reason)
}

// setStatus writes one durable transition, keyed by hash. If reconciliation
// already replaced the hash (content changed mid-run), the write matches
// nothing and the stale attempt's outcome is discarded, which is what we want.
func (s *Store) setStatus(ctx context.Context, hash string, status models.FileStatus, reason string) error {
	const q = `UPDATE files SET status = $1, last_error = $2, updated_at = now() WHERE hash = $3`
	_, err := s.pool.Exec(ctx, q, status, reason, hash)
	return err
}

// SaveChunks replaces the chunk set for the snapshot's hash in a single
// transaction: readers never observe a mix of old and new chunks, and
// retrying after a crash cannot duplicate rows.
func (s *Store) SaveChunks(ctx context.Context, snap *models.FileSnapshot, chunks []models.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE file_hash = $1`, snap.Hash); err != nil {
		return err
	}

	const ins = `
		INSERT INTO chunks (file_hash, file_path, chunk_index, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`

	b := &pgx.Batch{}
	for i, c := range chunks {
		var emb any
		if c.Embedding != nil {
			emb = pgvector.NewVector(c.Embedding)
		} else {
			emb = (*pgvector.Vector)(nil)
		}
		b.Queue(ins, snap.Hash, snap.Path, i, c.Content, c.Metadata, emb)
	}
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteChunksByHash removes the chunk set for a file version. Idempotent:
// deleting a hash with no chunks is a no-op.
func (s *Store) DeleteChunksByHash(ctx context.Context, hash string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE file_hash = $1`, hash)
	return err
}

// HasChunks reports whether any chunks exist for the given file hash.
func (s *Store) HasChunks(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chunks WHERE file_hash = $1)`, hash).Scan(&exists)
	return exists, err
}

// SyncFilesystemSnapshot reconciles the full on-disk listing against stored
// records in one transaction:
//   - unseen paths are inserted as added
//   - paths whose hash changed are re-flagged updated with the new hash,
//     and the old hash's chunks are dropped
//   - processed paths whose hash is unchanged are confirmed ok
//   - vanished paths are removed, along with their chunks
//
// Rows are locked up front so a concurrent claim cannot interleave with the
// reconciliation of the same path.
func (s *Store) SyncFilesystemSnapshot(ctx context.Context, listings []models.FileListing) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `SELECT path, hash, status FROM files FOR UPDATE`)
	if err != nil {
		return err
	}
	type rec struct {
		hash   string
		status models.FileStatus
	}
	stored := make(map[string]rec)
	for rows.Next() {
		var path string
		var r rec
		if err := rows.Scan(&path, &r.hash, &r.status); err != nil {
			rows.Close()
			return err
		}
		stored[path] = r
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	onDisk := make(map[string]struct{}, len(listings))
	for _, l := range listings {
		onDisk[l.Path] = struct{}{}
		cur, ok := stored[l.Path]
		switch {
		case !ok:
			if _, err := tx.Exec(ctx,
				`INSERT INTO files (path, hash, status) VALUES ($1, $2, 'added')`,
				l.Path, l.Hash); err != nil {
				return err
			}
		case cur.hash != l.Hash:
			// The old version's chunk set dies with its hash, here: every other
			// chunk deletion in the tree is keyed by the current hash and would
			// never see it again once the row carries the new one.
			if _, err := tx.Exec(ctx,
				`DELETE FROM chunks WHERE file_hash = $1`, cur.hash); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`UPDATE files SET hash = $1, status = 'updated', last_error = '', updated_at = now() WHERE path = $2`,
				l.Hash, l.Path); err != nil {
				return err
			}
		case cur.status == models.StatusProcessed:
			if _, err := tx.Exec(ctx,
				`UPDATE files SET status = 'ok', updated_at = now() WHERE path = $1`,
				l.Path); err != nil {
				return err
			}
		}
	}

	for path, r := range stored {
		if _, ok := onDisk[path]; ok {
			continue
		}
		if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE file_hash = $1`, r.hash); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM files WHERE path = $1`, path); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ReleaseStaleClaims returns processing rows older than the threshold to the
// queue. After a crash, claimed-but-unfinished files come back through here.
func (s *Store) ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	const q = `
		UPDATE files SET status = 'added', updated_at = now()
		WHERE status = 'processing' AND updated_at < now() - make_interval(secs => $1)`
	tag, err := s.pool.Exec(ctx, q, olderThan.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetQueueStats returns a point-in-time count per status. Side-effect free.
func (s *Store) GetQueueStats(ctx context.Context) (models.QueueStats, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM files GROUP BY status`)
	if err != nil {
		return models.QueueStats{}, err
	}
	defer rows.Close()

	var stats models.QueueStats
	for rows.Next() {
		var status models.FileStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return models.QueueStats{}, err
		}
		switch status {
		case models.StatusAdded:
			stats.Added = n
		case models.StatusUpdated:
			stats.Updated = n
		case models.StatusProcessing:
			stats.Processing = n
		case models.StatusOK:
			stats.OK = n
		case models.StatusProcessed:
			stats.Processed = n
		case models.StatusError:
			stats.Errored = n
		}
	}
	return stats, rows.Err()
}

// ListErrors returns the most recently failed files with their messages.
func (s *Store) ListErrors(ctx context.Context, limit int) ([]models.FileRecord, error) {
	const q = `
		SELECT path, hash, status, last_error, created_at, updated_at
		FROM files WHERE status = 'error'
		ORDER BY updated_at DESC
		LIMIT $1`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FileRecord
	for rows.Next() {
		var r models.FileRecord
		if err := rows.Scan(&r.Path, &r.Hash, &r.Status, &r.LastError, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResetErrors moves errored files back to the queue. This is the manual
// retry entry point; nothing retries an errored file automatically.
func (s *Store) ResetErrors(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE files SET status = 'added', last_error = '', updated_at = now() WHERE status = 'error'`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Search returns the k chunks nearest to the query vector by cosine distance.
func (s *Store) Search(ctx context.Context, vec []float32, k int) ([]models.SearchResult, error) {
	const q = `
		SELECT content, metadata, 1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`
	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.Content, &r.Metadata, &r.Score); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
