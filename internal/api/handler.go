package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/stridehq/sportiva-adapter/internal/gateway"
	"github.com/stridehq/sportiva-adapter/internal/sportiva"
	"github.com/stridehq/sportiva-adapter/pkg/model"
)

// AttendanceService defines the slice of the Sportiva service the API exposes.
type AttendanceService interface {
	SessionAttendance(ctx context.Context, sessionID string) ([]model.CheckIn, error)
	RecordCheckIn(ctx context.Context, cmd *sportiva.RecordCheckInCommand) (*model.CheckIn, error)
	PostAnnouncement(ctx context.Context, cmd *sportiva.PostAnnouncementCommand) (*model.Announcement, error)
	ChildBadges(ctx context.Context, childID string) ([]model.Badge, error)
}

// ClassCatalog serves the locally cataloged classes of a club.
type ClassCatalog interface {
	ListClasses(ctx context.Context, clubID string) ([]model.Class, error)
}

// ClubHandler handles HTTP API requests for club operations.
type ClubHandler struct {
	logger  *zap.Logger
	service AttendanceService
	catalog ClassCatalog
}

// NewClubHandler creates a new ClubHandler.
// catalog is optional; without it the classes route returns 404.
func NewClubHandler(logger *zap.Logger, service AttendanceService, catalog ClassCatalog) *ClubHandler {
	return &ClubHandler{
		logger:  logger,
		service: service,
		catalog: catalog,
	}
}

// SessionAttendanceHandler serves the current check-in list of a session.
func (h *ClubHandler) SessionAttendanceHandler(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "sessionId is required"})
	}

	checkins, err := h.service.SessionAttendance(c.Context(), sessionID)
	if err != nil {
		h.logger.Error("api.session_attendance.failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return upstreamError(c, err)
	}
	if checkins == nil {
		checkins = []model.CheckIn{}
	}

	return c.JSON(fiber.Map{
		"sessionId": sessionID,
		"checkins":  checkins,
	})
}

// RecordCheckInHandler records attendance for a child at a session.
func (h *ClubHandler) RecordCheckInHandler(c *fiber.Ctx) error {
	var req CheckInCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ci, err := h.service.RecordCheckIn(c.Context(), &sportiva.RecordCheckInCommand{
		ClubID:    req.ClubID,
		SessionID: req.SessionID,
		ChildID:   req.ChildID,
		Status:    req.Status,
		CheckedBy: req.CheckedBy,
	})
	if err != nil {
		h.logger.Error("api.record_checkin.failed",
			zap.String("session_id", req.SessionID),
			zap.String("child_id", req.ChildID),
			zap.Error(err))
		return upstreamError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ci)
}

// PostAnnouncementHandler publishes an announcement to a class.
func (h *ClubHandler) PostAnnouncementHandler(c *fiber.Ctx) error {
	var req AnnouncementCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ann, err := h.service.PostAnnouncement(c.Context(), &sportiva.PostAnnouncementCommand{
		ClubID:  req.ClubID,
		ClassID: req.ClassID,
		Title:   req.Title,
		Body:    req.Body,
		Author:  req.Author,
	})
	if err != nil {
		h.logger.Error("api.post_announcement.failed",
			zap.String("class_id", req.ClassID),
			zap.Error(err))
		return upstreamError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ann)
}

// ChildBadgesHandler serves a child's awarded badges.
func (h *ClubHandler) ChildBadgesHandler(c *fiber.Ctx) error {
	childID := c.Params("childId")
	if childID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "childId is required"})
	}

	badges, err := h.service.ChildBadges(c.Context(), childID)
	if err != nil {
		h.logger.Error("api.child_badges.failed",
			zap.String("child_id", childID),
			zap.Error(err))
		return upstreamError(c, err)
	}
	if badges == nil {
		badges = []model.Badge{}
	}

	return c.JSON(fiber.Map{
		"childId": childID,
		"badges":  badges,
	})
}

// ClubClassesHandler serves the cataloged classes of a club.
func (h *ClubHandler) ClubClassesHandler(c *fiber.Ctx) error {
	if h.catalog == nil {
		return c.SendStatus(fiber.StatusNotFound)
	}
	clubID := c.Params("clubId")

	classes, err := h.catalog.ListClasses(c.Context(), clubID)
	if err != nil {
		h.logger.Error("api.club_classes.failed",
			zap.String("club_id", clubID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if classes == nil {
		classes = []model.Class{}
	}

	return c.JSON(fiber.Map{
		"clubId":  clubID,
		"classes": classes,
	})
}

// upstreamError maps gateway taxonomy errors onto HTTP statuses.
func upstreamError(c *fiber.Ctx, err error) error {
	var valErr *gateway.ValidationError
	if errors.As(err, &valErr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  valErr.Error(),
			"fields": valErr.Fields,
		})
	}

	var authzErr *gateway.AuthorizationError
	if errors.As(err, &authzErr) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": authzErr.Error()})
	}

	var netErr *gateway.NetworkError
	if errors.As(err, &netErr) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": netErr.Error()})
	}

	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": apiErr.Error()})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
