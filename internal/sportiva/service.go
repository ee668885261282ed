package sportiva

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stridehq/sportiva-adapter/internal/store"
	"github.com/stridehq/sportiva-adapter/pkg/model"
)

// attendanceCacheTTL bounds how long a session's check-in list stays cached
// between sync rounds.
const attendanceCacheTTL = 30 * time.Minute

// EventPublisher is the slice of the NATS publisher the service needs.
type EventPublisher interface {
	PublishCheckInRecorded(ctx context.Context, ci model.CheckIn) error
	PublishAttendanceUpdated(ctx context.Context, ev model.AttendanceEvent) error
	PublishInstallmentSettled(ctx context.Context, clubID string, inst model.Installment) error
}

// AttendanceSink receives finalized check-ins for the legacy reporting table.
type AttendanceSink interface {
	SyncCheckInUpsert(ctx context.Context, ci *model.CheckIn) error
}

// Service is the core adapter logic: it executes commands against Sportiva
// and fans results out to the event bus, the store and the legacy sink.
type Service struct {
	logger    *zap.Logger
	client    *Client
	publisher EventPublisher
	store     store.Store
	legacy    AttendanceSink
}

// NewService constructs the Sportiva service.
// publisher, st and legacy are each optional; missing sinks are skipped.
func NewService(logger *zap.Logger, client *Client, publisher EventPublisher, st store.Store, legacy AttendanceSink) *Service {
	return &Service{
		logger:    logger,
		client:    client,
		publisher: publisher,
		store:     st,
		legacy:    legacy,
	}
}

// RecordCheckIn executes a check-in command against Sportiva and propagates
// the result. Downstream sink failures are logged, not fatal: the check-in
// already happened upstream.
func (s *Service) RecordCheckIn(ctx context.Context, cmd *RecordCheckInCommand) (*model.CheckIn, error) {
	ci, err := s.client.RecordCheckIn(ctx, CheckInRequest{
		SessionID:      cmd.SessionID,
		ChildID:        cmd.ChildID,
		Status:         cmd.Status,
		CheckedBy:      cmd.CheckedBy,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		s.logger.Error("sportiva.checkin_failed",
			zap.String("session_id", cmd.SessionID),
			zap.String("child_id", cmd.ChildID),
			zap.Error(err))
		return nil, err
	}
	if ci.ClubID == "" {
		ci.ClubID = cmd.ClubID
	}

	s.propagateCheckIn(ctx, ci)

	s.logger.Info("sportiva.checkin_recorded",
		zap.String("checkin_id", ci.ID),
		zap.String("session_id", ci.SessionID),
		zap.String("child_id", ci.ChildID),
		zap.String("status", ci.Status))
	return ci, nil
}

// PostAnnouncement publishes an announcement to a class via Sportiva.
func (s *Service) PostAnnouncement(ctx context.Context, cmd *PostAnnouncementCommand) (*model.Announcement, error) {
	ann, err := s.client.PostAnnouncement(ctx, AnnouncementRequest{
		ClassID: cmd.ClassID,
		Title:   cmd.Title,
		Body:    cmd.Body,
		Author:  cmd.Author,
	})
	if err != nil {
		s.logger.Error("sportiva.announcement_failed",
			zap.String("class_id", cmd.ClassID),
			zap.Error(err))
		return nil, err
	}
	return ann, nil
}

// SyncClubCatalog refreshes the reference catalog of a club's classes.
func (s *Service) SyncClubCatalog(ctx context.Context, clubID string) error {
	programs, err := s.client.ListPrograms(ctx, clubID)
	if err != nil {
		return err
	}

	for _, prog := range programs {
		classes, err := s.client.ListClasses(ctx, prog.ID)
		if err != nil {
			s.logger.Warn("sportiva.catalog_sync_partial",
				zap.String("program_id", prog.ID),
				zap.Error(err))
			continue
		}
		if s.store == nil {
			continue
		}
		for _, cl := range classes {
			if err := s.store.StoreClass(ctx, cl); err != nil {
				s.logger.Warn("sportiva.catalog_store_failed",
					zap.String("class_id", cl.ID),
					zap.Error(err))
			}
		}
	}
	return nil
}

// SyncSessionAttendance pulls the current check-ins of a session, emits
// attendance.updated events for every status that changed since the last
// sync, and refreshes the cached list. Returns the number of changes.
func (s *Service) SyncSessionAttendance(ctx context.Context, clubID, sessionID string) (int, error) {
	current, err := s.client.ListCheckIns(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	previous := map[string]string{}
	if s.store != nil {
		if prev, err := s.store.GetSessionAttendance(ctx, sessionID); err == nil {
			for _, ci := range prev {
				previous[ci.ChildID] = ci.Status
			}
		}
	}

	changes := 0
	for i := range current {
		ci := current[i]
		if ci.ClubID == "" {
			ci.ClubID = clubID
		}
		if previous[ci.ChildID] == ci.Status {
			continue
		}
		changes++
		s.propagateCheckIn(ctx, &ci)

		if s.publisher != nil {
			ev := model.AttendanceEvent{
				ClubID:    ci.ClubID,
				SessionID: ci.SessionID,
				ChildID:   ci.ChildID,
				Status:    ci.Status,
				Timestamp: time.Now().UTC(),
			}
			if err := s.publisher.PublishAttendanceUpdated(ctx, ev); err != nil {
				s.logger.Debug("nats.publish_failed",
					zap.String("session_id", sessionID),
					zap.Error(err))
			}
		}
	}

	if s.store != nil {
		if err := s.store.CacheSessionAttendance(ctx, sessionID, current, attendanceCacheTTL); err != nil {
			s.logger.Warn("sportiva.attendance_cache_failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}
	return changes, nil
}

// SyncClubAttendance walks a club's catalog and syncs attendance for every
// session scheduled on the given date (YYYY-MM-DD).
func (s *Service) SyncClubAttendance(ctx context.Context, clubID, date string) error {
	programs, err := s.client.ListPrograms(ctx, clubID)
	if err != nil {
		return err
	}

	for _, prog := range programs {
		classes, err := s.client.ListClasses(ctx, prog.ID)
		if err != nil {
			s.logger.Warn("sportiva.attendance_sync_partial",
				zap.String("program_id", prog.ID),
				zap.Error(err))
			continue
		}
		for _, cl := range classes {
			sessions, err := s.client.ListClassSessions(ctx, cl.ID, date)
			if err != nil {
				s.logger.Warn("sportiva.sessions_fetch_failed",
					zap.String("class_id", cl.ID),
					zap.Error(err))
				continue
			}
			for _, sess := range sessions {
				if _, err := s.SyncSessionAttendance(ctx, clubID, sess.ID); err != nil {
					s.logger.Warn("sportiva.session_sync_failed",
						zap.String("session_id", sess.ID),
						zap.Error(err))
				}
			}
		}
	}
	return nil
}

// billingKey marks an installment whose settlement event has been emitted.
func billingKey(installmentID string) string {
	return "billing:settled:" + installmentID
}

// SyncClassBilling publishes installment.settled events for installments that
// were paid since the last sync. Returns the number of events emitted.
func (s *Service) SyncClassBilling(ctx context.Context, clubID, classID string) (int, error) {
	roster, err := s.client.Roster(ctx, classID)
	if err != nil {
		return 0, err
	}

	emitted := 0
	for _, enr := range roster {
		if enr.Status != "active" {
			continue
		}
		installments, err := s.client.ListInstallments(ctx, enr.ID)
		if err != nil {
			s.logger.Warn("sportiva.installments_fetch_failed",
				zap.String("enrollment_id", enr.ID),
				zap.Error(err))
			continue
		}
		for _, inst := range installments {
			if inst.Status != "paid" {
				continue
			}
			if s.store != nil {
				var seen bool
				if err := s.store.GetJSON(ctx, billingKey(inst.ID), &seen); err == nil && seen {
					continue
				}
			}
			if s.publisher != nil {
				if err := s.publisher.PublishInstallmentSettled(ctx, clubID, inst); err != nil {
					s.logger.Debug("nats.publish_failed",
						zap.String("installment_id", inst.ID),
						zap.Error(err))
					continue
				}
			}
			emitted++
			if s.store != nil {
				if err := s.store.SetJSON(ctx, billingKey(inst.ID), true, 0); err != nil {
					s.logger.Warn("sportiva.billing_mark_failed",
						zap.String("installment_id", inst.ID),
						zap.Error(err))
				}
			}
		}
	}
	return emitted, nil
}

// SyncClubBilling walks a club's catalog and syncs installment settlements
// for every class.
func (s *Service) SyncClubBilling(ctx context.Context, clubID string) error {
	programs, err := s.client.ListPrograms(ctx, clubID)
	if err != nil {
		return err
	}

	for _, prog := range programs {
		classes, err := s.client.ListClasses(ctx, prog.ID)
		if err != nil {
			s.logger.Warn("sportiva.billing_sync_partial",
				zap.String("program_id", prog.ID),
				zap.Error(err))
			continue
		}
		for _, cl := range classes {
			if _, err := s.SyncClassBilling(ctx, clubID, cl.ID); err != nil {
				s.logger.Warn("sportiva.class_billing_failed",
					zap.String("class_id", cl.ID),
					zap.Error(err))
			}
		}
	}
	return nil
}

// SessionAttendance serves the locally cached/persisted view of a session.
func (s *Service) SessionAttendance(ctx context.Context, sessionID string) ([]model.CheckIn, error) {
	if s.store == nil {
		return s.client.ListCheckIns(ctx, sessionID)
	}
	return s.store.GetSessionAttendance(ctx, sessionID)
}

// ChildBadges proxies a child's badge list from Sportiva.
func (s *Service) ChildBadges(ctx context.Context, childID string) ([]model.Badge, error) {
	return s.client.ListBadges(ctx, childID)
}

// propagateCheckIn fans one check-in out to the event bus, the ledger and
// the legacy reporting table.
func (s *Service) propagateCheckIn(ctx context.Context, ci *model.CheckIn) {
	if s.publisher != nil {
		if err := s.publisher.PublishCheckInRecorded(ctx, *ci); err != nil {
			s.logger.Debug("nats.publish_failed",
				zap.String("checkin_id", ci.ID),
				zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.RecordAttendanceEvent(ctx, *ci); err != nil {
			s.logger.Warn("store.attendance_event_failed", zap.Error(err))
		}
		if err := s.store.UpdateAttendanceSnapshot(ctx, *ci); err != nil {
			s.logger.Warn("store.attendance_snapshot_failed", zap.Error(err))
		}
	}
	if s.legacy != nil {
		if err := s.legacy.SyncCheckInUpsert(ctx, ci); err != nil {
			s.logger.Warn("legacy.attendance_sync_failed", zap.Error(err))
		}
	}
}
