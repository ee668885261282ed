package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stridehq/sportiva-adapter/internal/gateway"
	"github.com/stridehq/sportiva-adapter/internal/sportiva"
	"github.com/stridehq/sportiva-adapter/pkg/model"
)

// --- Mock Service ---

type mockService struct {
	sessionAttendanceFn func(ctx context.Context, sessionID string) ([]model.CheckIn, error)
	recordCheckInFn     func(ctx context.Context, cmd *sportiva.RecordCheckInCommand) (*model.CheckIn, error)
	postAnnouncementFn  func(ctx context.Context, cmd *sportiva.PostAnnouncementCommand) (*model.Announcement, error)
	childBadgesFn       func(ctx context.Context, childID string) ([]model.Badge, error)
}

func (m *mockService) SessionAttendance(ctx context.Context, sessionID string) ([]model.CheckIn, error) {
	if m.sessionAttendanceFn != nil {
		return m.sessionAttendanceFn(ctx, sessionID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) RecordCheckIn(ctx context.Context, cmd *sportiva.RecordCheckInCommand) (*model.CheckIn, error) {
	if m.recordCheckInFn != nil {
		return m.recordCheckInFn(ctx, cmd)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) PostAnnouncement(ctx context.Context, cmd *sportiva.PostAnnouncementCommand) (*model.Announcement, error) {
	if m.postAnnouncementFn != nil {
		return m.postAnnouncementFn(ctx, cmd)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockService) ChildBadges(ctx context.Context, childID string) ([]model.Badge, error) {
	if m.childBadgesFn != nil {
		return m.childBadgesFn(ctx, childID)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockCatalog struct {
	classes []model.Class
	err     error
}

func (m *mockCatalog) ListClasses(_ context.Context, _ string) ([]model.Class, error) {
	return m.classes, m.err
}

// --- Test Helpers ---

func newTestApp(svc AttendanceService, catalog ClassCatalog) *fiber.App {
	app := fiber.New()
	handler := NewClubHandler(zap.NewNop(), svc, catalog)
	v1 := app.Group("/api/v1")
	v1.Get("/sessions/:sessionId/attendance", handler.SessionAttendanceHandler)
	v1.Post("/checkins", handler.RecordCheckInHandler)
	v1.Post("/announcements", handler.PostAnnouncementHandler)
	v1.Get("/children/:childId/badges", handler.ChildBadgesHandler)
	v1.Get("/clubs/:clubId/classes", handler.ClubClassesHandler)
	return app
}

// --- SessionAttendanceHandler Tests ---

func TestSessionAttendanceHandler_Success(t *testing.T) {
	svc := &mockService{
		sessionAttendanceFn: func(ctx context.Context, sessionID string) ([]model.CheckIn, error) {
			assert.Equal(t, "sess-1", sessionID)
			return []model.CheckIn{
				{ID: "ci-1", SessionID: "sess-1", ChildID: "child-1", Status: "present"},
			}, nil
		},
	}
	app := newTestApp(svc, nil)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/sessions/sess-1/attendance", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result struct {
		SessionID string          `json:"sessionId"`
		CheckIns  []model.CheckIn `json:"checkins"`
	}
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &result))
	assert.Equal(t, "sess-1", result.SessionID)
	require.Len(t, result.CheckIns, 1)
	assert.Equal(t, "child-1", result.CheckIns[0].ChildID)
}

func TestSessionAttendanceHandler_EmptySession(t *testing.T) {
	svc := &mockService{
		sessionAttendanceFn: func(ctx context.Context, sessionID string) ([]model.CheckIn, error) {
			return nil, nil
		},
	}
	app := newTestApp(svc, nil)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/sessions/sess-1/attendance", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	respBody, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(respBody), `"checkins":[]`, "nil slice serializes as empty list")
}

// --- RecordCheckInHandler Tests ---

func TestRecordCheckInHandler_Success(t *testing.T) {
	svc := &mockService{
		recordCheckInFn: func(ctx context.Context, cmd *sportiva.RecordCheckInCommand) (*model.CheckIn, error) {
			assert.Equal(t, "sess-1", cmd.SessionID)
			assert.Equal(t, "present", cmd.Status)
			return &model.CheckIn{
				ID:        "ci-1",
				SessionID: cmd.SessionID,
				ChildID:   cmd.ChildID,
				Status:    cmd.Status,
				CheckedAt: time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	app := newTestApp(svc, nil)

	body := `{"clubId":"club-1","sessionId":"sess-1","childId":"child-1","status":"present","checkedBy":"coach-1"}`
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/checkins", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var result model.CheckIn
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &result))
	assert.Equal(t, "ci-1", result.ID)
}

func TestRecordCheckInHandler_InvalidJSON(t *testing.T) {
	app := newTestApp(&mockService{}, nil)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/checkins", strings.NewReader("{bad"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRecordCheckInHandler_ValidationError_BadStatus(t *testing.T) {
	app := newTestApp(&mockService{}, nil)

	body := `{"sessionId":"sess-1","childId":"child-1","status":"asleep"}`
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/checkins", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var result map[string]string
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &result))
	assert.Contains(t, result["error"], "status must be")
}

func TestRecordCheckInHandler_UpstreamValidationError(t *testing.T) {
	svc := &mockService{
		recordCheckInFn: func(ctx context.Context, cmd *sportiva.RecordCheckInCommand) (*model.CheckIn, error) {
			return nil, &gateway.ValidationError{
				Fields: map[string][]string{"child_id": {"not enrolled in this class"}},
				Body:   `{"errors":{"child_id":["not enrolled in this class"]}}`,
			}
		},
	}
	app := newTestApp(svc, nil)

	body := `{"sessionId":"sess-1","childId":"child-9","status":"present"}`
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/checkins", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	respBody, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(respBody), "not enrolled")
}

func TestRecordCheckInHandler_UpstreamNetworkError(t *testing.T) {
	svc := &mockService{
		recordCheckInFn: func(ctx context.Context, cmd *sportiva.RecordCheckInCommand) (*model.CheckIn, error) {
			return nil, &gateway.NetworkError{Err: fmt.Errorf("connection refused")}
		},
	}
	app := newTestApp(svc, nil)

	body := `{"sessionId":"sess-1","childId":"child-1","status":"present"}`
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/checkins", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}

// --- PostAnnouncementHandler Tests ---

func TestPostAnnouncementHandler_Success(t *testing.T) {
	svc := &mockService{
		postAnnouncementFn: func(ctx context.Context, cmd *sportiva.PostAnnouncementCommand) (*model.Announcement, error) {
			assert.Equal(t, "class-1", cmd.ClassID)
			return &model.Announcement{ID: "ann-1", ClassID: cmd.ClassID, Title: cmd.Title}, nil
		},
	}
	app := newTestApp(svc, nil)

	body := `{"classId":"class-1","title":"Practice moved to 5pm","body":"Field maintenance.","author":"coach-1"}`
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/announcements", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestPostAnnouncementHandler_MissingTitle(t *testing.T) {
	app := newTestApp(&mockService{}, nil)

	body := `{"classId":"class-1","body":"no title"}`
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/announcements", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var result map[string]string
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &result))
	assert.Contains(t, result["error"], "title is required")
}

// --- ChildBadgesHandler Tests ---

func TestChildBadgesHandler_Success(t *testing.T) {
	svc := &mockService{
		childBadgesFn: func(ctx context.Context, childID string) ([]model.Badge, error) {
			return []model.Badge{{ID: "badge-1", Name: "First Goal"}}, nil
		},
	}
	app := newTestApp(svc, nil)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/children/child-1/badges", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	respBody, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(respBody), "First Goal")
}

func TestChildBadgesHandler_Forbidden(t *testing.T) {
	svc := &mockService{
		childBadgesFn: func(ctx context.Context, childID string) ([]model.Badge, error) {
			return nil, &gateway.AuthorizationError{Body: `{"error":"not this child's guardian"}`}
		},
	}
	app := newTestApp(svc, nil)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/children/child-9/badges", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

// --- ClubClassesHandler Tests ---

func TestClubClassesHandler_Success(t *testing.T) {
	catalog := &mockCatalog{classes: []model.Class{
		{ID: "class-1", ClubID: "club-1", Name: "U10 Tigers"},
	}}
	app := newTestApp(&mockService{}, catalog)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/clubs/club-1/classes", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	respBody, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(respBody), "U10 Tigers")
}

func TestClubClassesHandler_NoCatalog(t *testing.T) {
	app := newTestApp(&mockService{}, nil)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/clubs/club-1/classes", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
