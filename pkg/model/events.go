package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event wrapper published to NATS.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	ClubID        string          `json:"club_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// AttendanceEvent is emitted when a check-in is recorded or its status changes.
type AttendanceEvent struct {
	ClubID    string    `json:"club_id"`
	SessionID string    `json:"session_id"`
	ChildID   string    `json:"child_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
