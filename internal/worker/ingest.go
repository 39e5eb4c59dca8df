package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jumine/cpc-pipeline/internal/bulletin"
)

// DumpSource is the slice of the dump store the ingestor needs.
type DumpSource interface {
	ListPending(ctx context.Context) ([]string, error)
	Get(ctx context.Context, key string) (string, error)
	MoveToProcessed(ctx context.Context, key string) (string, error)
}

// BlockWriter persists segmented bulletin blocks.
type BlockWriter interface {
	UpsertBlocks(ctx context.Context, blocks []bulletin.BulletinBlock) error
}

// Ingestor drains raw bulletin dumps from the bucket: each cycle discovers
// new .txt objects into dump_import_log, claims pending ones, segments them
// into bulletin blocks, and renames the object under processed/. Claims go
// through the database so concurrent ingestors never double-process a dump.
type Ingestor struct {
	store     DumpSource
	db        *sql.DB
	blocks    BlockWriter
	interval  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	lastRunAt time.Time
	healthy   bool
	running   int32
}

func NewIngestor(store DumpSource, db *sql.DB, blocks BlockWriter, interval time.Duration) *Ingestor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Ingestor{store: store, db: db, blocks: blocks, interval: interval, healthy: true}
}

func (n *Ingestor) Start() {
	n.ctx, n.cancel = context.WithCancel(context.Background())
	go func() {
		n.resumeStuck()
		n.RunOnce()
		ticker := time.NewTicker(n.interval)
		defer ticker.Stop()
		for {
			select {
			case <-n.ctx.Done():
				return
			case <-ticker.C:
				n.RunOnce()
			}
		}
	}()
}

func (n *Ingestor) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
}

func (n *Ingestor) IsHealthy() bool      { return n.healthy }
func (n *Ingestor) LastRunAt() time.Time { return n.lastRunAt }
func (n *Ingestor) IsRunning() bool      { return atomic.LoadInt32(&n.running) == 1 }

// RunOnce executes one cycle: discover new dumps, then drain the queue.
func (n *Ingestor) RunOnce() {
	if !atomic.CompareAndSwapInt32(&n.running, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&n.running, 0)

	ctx := n.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	n.lastRunAt = time.Now()
	n.healthy = true

	n.discoverDumps(ctx)
	n.processQueue(ctx)
}

// discoverDumps records every unknown bucket object as a pending entry in
// dump_import_log. Already-known keys are skipped via ON CONFLICT.
func (n *Ingestor) discoverDumps(ctx context.Context) {
	keys, err := n.store.ListPending(ctx)
	if err != nil {
		log.Printf("[ingest] list dumps: %v", err)
		n.healthy = false
		return
	}

	inserted := 0
	for _, key := range keys {
		res, err := n.db.ExecContext(ctx,
			`INSERT INTO dump_import_log (source_key, status)
			 VALUES ($1, 'pending')
			 ON CONFLICT (source_key) DO NOTHING`,
			key,
		)
		if err != nil {
			log.Printf("[ingest] insert pending %s: %v", key, err)
			continue
		}
		if rows, _ := res.RowsAffected(); rows > 0 {
			inserted++
		}
	}
	if inserted > 0 {
		log.Printf("[ingest] discovered %d new dumps", inserted)
	}
}

// processQueue claims pending dumps (oldest first) and processes them
// concurrently with a semaphore of 4.
func (n *Ingestor) processQueue(ctx context.Context) {
	rows, err := n.db.QueryContext(ctx,
		`SELECT source_key FROM dump_import_log
		 WHERE status = 'pending'
		 ORDER BY created_at ASC
		 LIMIT 10`)
	if err != nil {
		log.Printf("[ingest] query queue: %v", err)
		return
	}

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err == nil {
			keys = append(keys, k)
		}
	}
	rows.Close()

	if len(keys) == 0 {
		return
	}
	log.Printf("[ingest] processing batch of %d dumps", len(keys))

	sem := make(chan struct{}, 4)
	var wg sync.WaitGroup
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(k string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := n.ProcessDump(ctx, k); err != nil {
				log.Printf("[ingest] process dump %s: %v", k, err)
			}
		}(key)
	}
	wg.Wait()
}

// ProcessDump claims, downloads, segments, and persists one dump, then moves
// the object under processed/. If another ingestor claimed the key first the
// call is a no-op.
func (n *Ingestor) ProcessDump(ctx context.Context, key string) error {
	res, err := n.db.ExecContext(ctx,
		`UPDATE dump_import_log
		 SET status='processing', retry_count=retry_count+1, started_at=NOW()
		 WHERE source_key=$1 AND status='pending'`, key)
	if err != nil {
		return fmt.Errorf("claim dump: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil
	}

	log.Printf("[ingest] processing %s", key)

	raw, err := n.store.Get(ctx, key)
	if err != nil {
		n.markFailed(ctx, key, err.Error())
		return err
	}

	blocks := bulletin.Segment(SourceIDFromKey(key), raw)
	if err := n.blocks.UpsertBlocks(ctx, blocks); err != nil {
		n.markFailed(ctx, key, err.Error())
		return err
	}

	if _, err := n.db.ExecContext(ctx,
		`UPDATE dump_import_log
		 SET status='completed', block_count=$1, processed_at=NOW()
		 WHERE source_key=$2`, len(blocks), key); err != nil {
		return fmt.Errorf("mark completed %s: %w", key, err)
	}

	dest, err := n.store.MoveToProcessed(ctx, key)
	if err != nil {
		// already recorded as completed; the processed/ filter keeps a
		// leftover original out of the next discovery pass
		log.Printf("[ingest] move %s: %v", key, err)
	}

	log.Printf("[ingest] completed %s -> %s: %d blocks", key, dest, len(blocks))
	return nil
}

func (n *Ingestor) markFailed(ctx context.Context, key, msg string) {
	if _, err := n.db.ExecContext(ctx,
		`UPDATE dump_import_log SET status='failed', error_message=$1 WHERE source_key=$2`,
		msg, key); err != nil {
		log.Printf("[ingest] mark failed %s: %v", key, err)
	}
}

// resumeStuck resets dumps left in 'processing' by a prior crash. Keys past
// the retry limit are marked failed instead.
func (n *Ingestor) resumeStuck() {
	if _, err := n.db.Exec(
		`UPDATE dump_import_log SET status='failed', error_message='max retries exceeded'
		 WHERE status='processing' AND retry_count >= 3`); err != nil {
		log.Printf("[ingest] resume stuck (retries): %v", err)
	}
	if _, err := n.db.Exec(
		`UPDATE dump_import_log SET status='pending'
		 WHERE status='processing' AND retry_count < 3`); err != nil {
		log.Printf("[ingest] resume stuck: %v", err)
	}
}

// SourceIDFromKey derives the stable source identifier from an object key:
// the base name without extension. Composite keys inherit it, so renaming
// the bucket prefix never changes downstream identity.
func SourceIDFromKey(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}
