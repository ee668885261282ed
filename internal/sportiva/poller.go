package sportiva

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Poller periodically syncs catalog and attendance for the configured clubs.
// It is the fallback path when the live updates stream is down or misses events.
type Poller struct {
	logger       *zap.Logger
	service      *Service
	pollInterval time.Duration
	stopCh       chan struct{}
}

// NewPoller constructs a new attendance/catalog poller.
func NewPoller(logger *zap.Logger, service *Service, interval time.Duration) *Poller {
	return &Poller{
		logger:       logger,
		service:      service,
		pollInterval: interval,
		stopCh:       make(chan struct{}),
	}
}

// Stop signals the poller to stop gracefully.
func (p *Poller) Stop() {
	close(p.stopCh)
}

// Start runs the sync loop until the context is canceled. Catalog is synced
// on startup and then once per day; attendance every tick.
func (p *Poller) Start(ctx context.Context, clubIDs []string) {
	p.syncCatalogs(ctx, clubIDs)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	catalogTicker := time.NewTicker(24 * time.Hour)
	defer catalogTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller.stopped", zap.String("reason", "context_done"))
			return

		case <-p.stopCh:
			p.logger.Info("poller.stopped", zap.String("reason", "shutdown"))
			return

		case <-catalogTicker.C:
			p.syncCatalogs(ctx, clubIDs)

		case <-ticker.C:
			date := time.Now().UTC().Format("2006-01-02")
			for _, clubID := range clubIDs {
				if err := p.service.SyncClubAttendance(ctx, clubID, date); err != nil {
					p.logger.Warn("poller.attendance_sync_failed",
						zap.String("club", clubID),
						zap.Error(err))
					continue
				}
				p.logger.Debug("poller.attendance_synced", zap.String("club", clubID))
			}
		}
	}
}

func (p *Poller) syncCatalogs(ctx context.Context, clubIDs []string) {
	for _, clubID := range clubIDs {
		if err := p.service.SyncClubCatalog(ctx, clubID); err != nil {
			p.logger.Warn("poller.catalog_sync_failed",
				zap.String("club", clubID),
				zap.Error(err))
		}
		if err := p.service.SyncClubBilling(ctx, clubID); err != nil {
			p.logger.Warn("poller.billing_sync_failed",
				zap.String("club", clubID),
				zap.Error(err))
		}
	}
}
