// Package scheduler runs the periodic reconciliation sweeps: a direct
// SQL scan for stale rows followed by a per-row status update, wired
// into robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/syntheit/ledgerflow/internal/models"
	"github.com/syntheit/ledgerflow/internal/store"
)

// StaleProcessingThreshold is the age after which a document stuck in
// "processing" is considered orphaned.
const StaleProcessingThreshold = time.Hour

// StaleSweepSchedule runs the reconciliation sweep every 15 minutes,
// frequent enough that no document sits orphaned much past the 1-hour
// threshold.
const StaleSweepSchedule = "*/15 * * * *"

// Scheduler owns the cron instance and the sweep jobs registered on it.
type Scheduler struct {
	store *store.Store
	cron  *cron.Cron
}

// New constructs a Scheduler and registers the stale-processing sweep.
func New(s *store.Store) (*Scheduler, error) {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(log.Default())))

	sch := &Scheduler{store: s, cron: c}

	_, err := c.AddFunc(StaleSweepSchedule, func() {
		if err := sch.SweepStaleProcessing(context.Background()); err != nil {
			log.Printf("[SWEEP] stale-processing sweep failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule stale-processing sweep: %w", err)
	}

	return sch, nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() { s.cron.Stop() }

// SweepStaleProcessing re-marks any document stuck in "processing" for
// longer than StaleProcessingThreshold as "failed" with
// processing_error="orphaned".
func (s *Scheduler) SweepStaleProcessing(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-StaleProcessingThreshold)

	rows, err := s.store.Pool.Query(ctx, `
		SELECT id FROM documents
		WHERE extraction_status = $1 AND updated_at < $2
	`, string(models.ExtractionProcessing), cutoff)
	if err != nil {
		return fmt.Errorf("query stale documents: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan stale document id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate stale documents: %w", err)
	}

	if len(ids) == 0 {
		return nil
	}

	marked := 0
	for _, id := range ids {
		if _, err := s.store.PatchByID(ctx, "documents", id, store.Row{
			"extraction_status": string(models.ExtractionFailed),
			"processing_error":  "orphaned",
			"processed_at":      time.Now().UTC(),
		}); err != nil {
			log.Printf("[SWEEP] failed to mark document %s failed: %v", id, err)
			continue
		}
		marked++
	}

	log.Printf("[SWEEP] marked %d/%d stale documents as failed (orphaned)", marked, len(ids))
	return nil
}
