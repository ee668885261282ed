package legacy

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/stridehq/sportiva-adapter/pkg/model"
)

// AttendanceWriter writes finalized check-ins into the club's legacy
// reporting.t_attendance table, which the old reporting stack still reads.
type AttendanceWriter struct {
	db     *pgxpool.Pool
	logger *zap.Logger
	source string
}

// NewAttendanceWriter constructs a writer to update the legacy reporting.t_attendance table.
// source identifies the service writing the record (e.g. "sportiva-adapter").
func NewAttendanceWriter(db *pgxpool.Pool, logger *zap.Logger, source string) *AttendanceWriter {
	return &AttendanceWriter{
		db:     db,
		logger: logger,
		source: source,
	}
}

// SyncCheckInUpsert inserts or updates the legacy attendance record.
func (w *AttendanceWriter) SyncCheckInUpsert(ctx context.Context, ci *model.CheckIn) error {
	if ci == nil {
		return nil
	}

	const query = `
		INSERT INTO reporting.t_attendance (
			s_id_checkin,
			s_id_session,
			s_id_child,
			s_id_club,
			s_status,
			s_checked_by,
			dt_checked,
			s_source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (s_id_checkin)
		DO UPDATE SET
			s_status = EXCLUDED.s_status,
			s_checked_by = EXCLUDED.s_checked_by,
			dt_checked = EXCLUDED.dt_checked,
			s_source = EXCLUDED.s_source;
	`

	_, err := w.db.Exec(ctx, query,
		ci.ID,        // s_id_checkin
		ci.SessionID, // s_id_session
		ci.ChildID,   // s_id_child
		ci.ClubID,    // s_id_club
		ci.Status,    // s_status
		ci.CheckedBy, // s_checked_by
		ci.CheckedAt, // dt_checked
		w.source,     // s_source
	)
	if err != nil {
		w.logger.Error("legacy.attendance_sync_failed",
			zap.String("checkin_id", ci.ID),
			zap.String("child_id", ci.ChildID),
			zap.Error(err),
		)
		return err
	}

	w.logger.Info("legacy.attendance_sync_upsert",
		zap.String("checkin_id", ci.ID),
		zap.String("status", ci.Status),
		zap.String("child_id", ci.ChildID),
	)
	return nil
}
