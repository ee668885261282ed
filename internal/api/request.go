package api

import "fmt"

// CheckInCreateRequest is the inbound payload for POST /api/v1/checkins.
type CheckInCreateRequest struct {
	ClubID    string `json:"clubId"`
	SessionID string `json:"sessionId"`
	ChildID   string `json:"childId"`
	Status    string `json:"status"`
	CheckedBy string `json:"checkedBy"`
}

// Validate checks required fields and the status vocabulary.
func (r CheckInCreateRequest) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if r.ChildID == "" {
		return fmt.Errorf("childId is required")
	}
	switch r.Status {
	case "present", "absent", "late":
	default:
		return fmt.Errorf("status must be present, absent or late")
	}
	return nil
}

// AnnouncementCreateRequest is the inbound payload for POST /api/v1/announcements.
type AnnouncementCreateRequest struct {
	ClubID  string `json:"clubId"`
	ClassID string `json:"classId"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Author  string `json:"author"`
}

// Validate checks required fields.
func (r AnnouncementCreateRequest) Validate() error {
	if r.ClassID == "" {
		return fmt.Errorf("classId is required")
	}
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}
