// Package mucleanup runs the background attachment-retention loop (spec §3,
// AttachmentRecord.expires_at_ms / §6 attachment_gc_batch_size). Grounded on
// the teacher's pkg/cleanup.Service: same Start/Stop/ticker shape, adapted
// from soft-deleting stale sessions and orphaned events to expiring
// content-addressed attachment blobs.
package mucleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/femtomc/mu-controlplane/pkg/mujournal"
)

// Service periodically removes attachment blobs past their TTL and tombstones
// their journal entries. All operations are idempotent and safe to rerun.
type Service struct {
	attachments *mujournal.AttachmentJournal
	blobRoot    string
	batchSize   int
	interval    time.Duration
	clock       func() int64
	logger      *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs the attachment cleanup service. batchSize bounds how many
// expired attachments are swept per tick, per spec §6's
// attachment_gc_batch_size.
func New(attachments *mujournal.AttachmentJournal, blobRoot string, batchSize int, interval time.Duration, clock func() int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		attachments: attachments,
		blobRoot:    blobRoot,
		batchSize:   batchSize,
		interval:    interval,
		clock:       clock,
		logger:      logger,
	}
}

// Start launches the background sweep loop. It is a no-op if already running.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("attachment cleanup service started",
		"batch_size", s.batchSize, "interval", s.interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("attachment cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep expires at most batchSize attachments past their TTL.
func (s *Service) sweep() {
	expired := s.attachments.Expired(s.clock())
	if len(expired) > s.batchSize {
		expired = expired[:s.batchSize]
	}
	removed := 0
	for _, rec := range expired {
		if rec.BlobRelPath != "" {
			path := filepath.Join(s.blobRoot, rec.BlobRelPath)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				s.logger.Error("attachment blob removal failed", "attachment_id", rec.AttachmentID, "path", path, "error", err)
				continue
			}
		}
		if err := s.attachments.Delete(rec.AttachmentID); err != nil {
			s.logger.Error("attachment tombstone failed", "attachment_id", rec.AttachmentID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("attachment cleanup swept expired attachments", "count", removed)
	}
}
