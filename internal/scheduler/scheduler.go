// Package scheduler polls the repository for eligible files and drives the
// pipeline concurrently across a bounded pool of runs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/docsearch/internal/pipeline"
	"github.com/seanblong/docsearch/internal/store"
	"github.com/seanblong/docsearch/pkg/models"
)

// Builder creates the per-attempt snapshot for a claimed path.
type Builder func(path string) (*models.FileSnapshot, error)

// Processor runs the pipeline for one snapshot.
type Processor interface {
	Process(ctx context.Context, snap *models.FileSnapshot) error
}

// Lister produces the full on-disk corpus listing.
type Lister interface {
	Scan() ([]models.FileListing, error)
}

type Config struct {
	PollInterval      time.Duration
	ReconcileInterval time.Duration
	StaleClaimAfter   time.Duration
	MaxFiles          int
}

// Scheduler owns the poll loop. Claim exclusivity lives in the store; the
// scheduler only decides how many claims to attempt per tick.
type Scheduler struct {
	cfg     Config
	files   store.FileStore
	chunks  store.ChunkStore
	scanner Lister
	build   Builder
	proc    Processor

	pool     *ants.Pool
	inFlight atomic.Int64
	wg       sync.WaitGroup

	// fatal receives repository-class errors from in-flight runs; the loop
	// stops claiming as soon as one arrives.
	fatal chan error
}

func New(cfg Config, files store.FileStore, chunks store.ChunkStore, scanner Lister, build Builder, proc Processor) (*Scheduler, error) {
	if cfg.MaxFiles < 1 {
		cfg.MaxFiles = 1
	}
	pool, err := ants.NewPool(cfg.MaxFiles)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:     cfg,
		files:   files,
		chunks:  chunks,
		scanner: scanner,
		build:   build,
		proc:    proc,
		pool:    pool,
		fatal:   make(chan error, 1),
	}, nil
}

// Run executes the cooperative poll loop until ctx is cancelled or the
// repository becomes unreachable. In-flight runs always finish before Run
// returns; cancellation is only observed at the tick boundary.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.pool.Release()
	defer s.wg.Wait()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var lastReconcile time.Time
	for {
		if time.Since(lastReconcile) >= s.cfg.ReconcileInterval {
			if err := s.reconcile(ctx); err != nil {
				return err
			}
			lastReconcile = time.Now()
		}

		if err := s.claimBatch(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			log.Info().Int64("in_flight", s.inFlight.Load()).Msg("scheduler shutting down")
			return nil
		case err := <-s.fatal:
			return err
		case <-ticker.C:
		}
	}
}

// reconcile scans the corpus and lets the store correct bulk state
// divergence: new paths, changed hashes, vanished files, stale claims.
// A filesystem scan failure is logged and retried next cycle; a store
// failure halts the scheduler.
func (s *Scheduler) reconcile(ctx context.Context) error {
	listings, err := s.scanner.Scan()
	if err != nil {
		log.Warn().Err(err).Msg("corpus scan failed, skipping reconcile")
		return nil
	}
	if err := s.files.SyncFilesystemSnapshot(ctx, listings); err != nil {
		return fmt.Errorf("sync filesystem snapshot: %w", err)
	}
	released, err := s.files.ReleaseStaleClaims(ctx, s.cfg.StaleClaimAfter)
	if err != nil {
		return fmt.Errorf("release stale claims: %w", err)
	}
	if released > 0 {
		log.Warn().Int64("released", released).Msg("returned stale claims to the queue")
	}
	log.Debug().Int("files", len(listings)).Msg("reconciled corpus")
	return nil
}

// claimBatch claims up to (ceiling - in flight) eligible files and hands
// each to the pool. An empty claim is not an error, just an idle tick.
func (s *Scheduler) claimBatch(ctx context.Context) error {
	for s.inFlight.Load() < int64(s.cfg.MaxFiles) {
		rec, err := s.files.GetNextFile(ctx)
		if err != nil {
			return fmt.Errorf("claim next file: %w", err)
		}
		if rec == nil {
			return nil
		}
		s.launch(ctx, rec)
	}
	return nil
}

func (s *Scheduler) launch(ctx context.Context, rec *models.FileRecord) {
	// A claimed file runs to completion even if the scheduler is asked to
	// shut down; cancellation is only honored between runs.
	runCtx := context.WithoutCancel(ctx)

	s.inFlight.Add(1)
	s.wg.Add(1)
	err := s.pool.Submit(func() {
		defer s.wg.Done()
		defer s.inFlight.Add(-1)
		s.process(runCtx, rec)
	})
	if err != nil {
		// Pool rejected the task (released during shutdown); undo the claim
		// accounting and let the stale-claim sweep re-queue the record.
		s.inFlight.Add(-1)
		s.wg.Done()
		log.Warn().Err(err).Str("path", rec.Path).Msg("failed to submit run")
	}
}

func (s *Scheduler) process(ctx context.Context, rec *models.FileRecord) {
	snap, err := s.build(rec.Path)
	if err != nil {
		// The file changed or vanished between claim and snapshot; record it
		// and let reconciliation settle the final state.
		if merr := s.files.MarkError(ctx, rec.Hash, fmt.Sprintf("snapshot %s: %v", rec.Path, err)); merr != nil {
			s.reportFatal(merr)
		}
		return
	}

	// Crash recovery fast path: if this exact content version already has a
	// persisted chunk set, the previous run finished its work but not its
	// status write. Confirm instead of re-embedding.
	if snap.Hash == rec.Hash {
		has, err := s.chunks.HasChunks(ctx, snap.Hash)
		if err != nil {
			s.reportFatal(fmt.Errorf("check chunks for %s: %w", rec.Path, err))
			return
		}
		if has {
			if err := s.files.MarkOK(ctx, snap.Hash); err != nil {
				s.reportFatal(err)
			} else {
				log.Info().Str("path", rec.Path).Str("hash", snap.Hash).Msg("file confirmed unchanged")
			}
			return
		}
	}

	if err := s.proc.Process(ctx, snap); err != nil {
		if pipeline.IsFileError(err) {
			// Already recorded against the file; other runs are unaffected.
			return
		}
		s.reportFatal(err)
	}
}

// reportFatal hands a repository-class error to the loop. Only the first
// one matters; the rest are logged.
func (s *Scheduler) reportFatal(err error) {
	select {
	case s.fatal <- err:
	default:
		log.Error().Err(err).Msg("repository error while shutting down")
	}
}
