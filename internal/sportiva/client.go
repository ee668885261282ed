package sportiva

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stridehq/sportiva-adapter/internal/gateway"
	"github.com/stridehq/sportiva-adapter/internal/rate"
	"github.com/stridehq/sportiva-adapter/pkg/model"
)

// rateKey scopes the outbound limiter; Sportiva rate-limits per API consumer,
// not per club, so all calls share one bucket.
const rateKey = "sportiva"

// Client is the typed Sportiva API client. All calls go through the
// authenticated gateway, which owns bearer tokens and the refresh protocol.
type Client struct {
	logger  *zap.Logger
	gw      *gateway.Gateway
	rateMgr *rate.Manager
}

// NewClient constructs a Sportiva client over the given gateway.
// rateMgr is optional; if nil, calls are not rate limited.
func NewClient(logger *zap.Logger, gw *gateway.Gateway, rateMgr *rate.Manager) *Client {
	return &Client{
		logger:  logger,
		gw:      gw,
		rateMgr: rateMgr,
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.rateMgr == nil {
		return nil
	}
	if err := c.rateMgr.Wait(ctx, rateKey); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// ListPrograms returns all programs a club runs.
func (c *Client) ListPrograms(ctx context.Context, clubID string) ([]model.Program, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out []model.Program
	err := c.gw.GetJSON(ctx, fmt.Sprintf("/clubs/%s/programs", clubID), &out)
	return out, err
}

// ListClasses returns the classes of a program.
func (c *Client) ListClasses(ctx context.Context, programID string) ([]model.Class, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out []model.Class
	err := c.gw.GetJSON(ctx, fmt.Sprintf("/programs/%s/classes", programID), &out)
	return out, err
}

// Roster returns the active enrollments of a class.
func (c *Client) Roster(ctx context.Context, classID string) ([]model.Enrollment, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out []model.Enrollment
	err := c.gw.GetJSON(ctx, fmt.Sprintf("/classes/%s/roster", classID), &out)
	return out, err
}

// ListEnrollments returns a child's enrollments across classes.
func (c *Client) ListEnrollments(ctx context.Context, childID string) ([]model.Enrollment, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out []model.Enrollment
	err := c.gw.GetJSON(ctx, fmt.Sprintf("/children/%s/enrollments", childID), &out)
	return out, err
}

// ListInstallments returns the payment schedule of an enrollment.
func (c *Client) ListInstallments(ctx context.Context, enrollmentID string) ([]model.Installment, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out []model.Installment
	err := c.gw.GetJSON(ctx, fmt.Sprintf("/enrollments/%s/installments", enrollmentID), &out)
	return out, err
}

// ListClassSessions returns the scheduled sessions of a class for a day (YYYY-MM-DD).
func (c *Client) ListClassSessions(ctx context.Context, classID, date string) ([]model.ClassSession, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out []model.ClassSession
	err := c.gw.GetJSON(ctx, fmt.Sprintf("/classes/%s/sessions?date=%s", classID, date), &out)
	return out, err
}

// ListCheckIns returns the recorded check-ins of a class session.
func (c *Client) ListCheckIns(ctx context.Context, sessionID string) ([]model.CheckIn, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out []model.CheckIn
	err := c.gw.GetJSON(ctx, fmt.Sprintf("/sessions/%s/checkins", sessionID), &out)
	return out, err
}

// RecordCheckIn records attendance for a child at a session.
func (c *Client) RecordCheckIn(ctx context.Context, req CheckInRequest) (*model.CheckIn, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out model.CheckIn
	if err := c.gw.PostJSON(ctx, "/checkins", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBadges returns a child's awarded badges.
func (c *Client) ListBadges(ctx context.Context, childID string) ([]model.Badge, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out []model.Badge
	err := c.gw.GetJSON(ctx, fmt.Sprintf("/children/%s/badges", childID), &out)
	return out, err
}

// ListPhotos returns the photos uploaded for a session.
func (c *Client) ListPhotos(ctx context.Context, sessionID string) ([]model.Photo, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out []model.Photo
	err := c.gw.GetJSON(ctx, fmt.Sprintf("/sessions/%s/photos", sessionID), &out)
	return out, err
}

// ListAnnouncements returns the announcements posted to a class.
func (c *Client) ListAnnouncements(ctx context.Context, classID string) ([]model.Announcement, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out []model.Announcement
	err := c.gw.GetJSON(ctx, fmt.Sprintf("/classes/%s/announcements", classID), &out)
	return out, err
}

// PostAnnouncement publishes an announcement to a class roster.
func (c *Client) PostAnnouncement(ctx context.Context, req AnnouncementRequest) (*model.Announcement, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out model.Announcement
	if err := c.gw.PostJSON(ctx, "/announcements", req, &out); err != nil {
		return nil, err
	}
	c.logger.Info("sportiva.announcement_posted",
		zap.String("class_id", req.ClassID),
		zap.String("title", req.Title))
	return &out, nil
}
