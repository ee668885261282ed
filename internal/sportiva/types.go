package sportiva

import "encoding/json"

// loginRequest is the service-account login payload for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CheckInRequest is the payload for POST /checkins.
type CheckInRequest struct {
	SessionID      string `json:"session_id"`
	ChildID        string `json:"child_id"`
	Status         string `json:"status"` // present | absent | late
	CheckedBy      string `json:"checked_by"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// AnnouncementRequest is the payload for POST /announcements.
type AnnouncementRequest struct {
	ClassID string `json:"class_id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Author  string `json:"author"`
}

// RecordCheckInCommand arrives on the check-in command queue.
type RecordCheckInCommand struct {
	ClubID    string `json:"club_id"`
	SessionID string `json:"session_id"`
	ChildID   string `json:"child_id"`
	Status    string `json:"status"`
	CheckedBy string `json:"checked_by"`
}

// PostAnnouncementCommand arrives on the announcement command queue.
type PostAnnouncementCommand struct {
	ClubID  string `json:"club_id"`
	ClassID string `json:"class_id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Author  string `json:"author"`
}

// UpdateMessage is one frame on the live updates WebSocket.
type UpdateMessage struct {
	Type    string          `json:"type"` // checkin.recorded | photo.uploaded | ...
	ClubID  string          `json:"club_id"`
	Payload json.RawMessage `json:"payload"`
}
