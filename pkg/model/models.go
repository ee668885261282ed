package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenPair is the session credential pair issued by the Sportiva auth endpoints.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Program is a seasonal offering a club runs (e.g. "U10 Spring Soccer").
type Program struct {
	ID       string `json:"id"`
	ClubID   string `json:"club_id"`
	Name     string `json:"name"`
	Sport    string `json:"sport"`
	Season   string `json:"season"`
	Active   bool   `json:"active"`
	AgeGroup string `json:"age_group"`
}

// Class is a recurring group within a program with its own roster and coach.
type Class struct {
	ID        string `json:"id"`
	ProgramID string `json:"program_id"`
	ClubID    string `json:"club_id"`
	Name      string `json:"name"`
	CoachID   string `json:"coach_id"`
	Weekday   string `json:"weekday"`
	StartTime string `json:"start_time"` // "16:30" local club time
	Capacity  int    `json:"capacity"`
}

// Enrollment links a child to a class, with its payment plan.
type Enrollment struct {
	ID         string    `json:"id"`
	ChildID    string    `json:"child_id"`
	ClassID    string    `json:"class_id"`
	Status     string    `json:"status"` // active | waitlisted | cancelled
	EnrolledAt time.Time `json:"enrolled_at"`
}

// Installment is a single scheduled payment on an enrollment.
type Installment struct {
	ID           string          `json:"id"`
	EnrollmentID string          `json:"enrollment_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	DueDate      time.Time       `json:"due_date"`
	Status       string          `json:"status"` // pending | paid | overdue
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
}

// ClassSession is a single scheduled occurrence of a class.
type ClassSession struct {
	ID       string    `json:"id"`
	ClassID  string    `json:"class_id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Status   string    `json:"status"` // scheduled | in_progress | completed | cancelled
}

// CheckIn records a child's attendance at a class session.
type CheckIn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	ChildID   string    `json:"child_id"`
	ClubID    string    `json:"club_id"`
	Status    string    `json:"status"` // present | absent | late
	CheckedBy string    `json:"checked_by"`
	CheckedAt time.Time `json:"checked_at"`
}

// Badge is an achievement awarded to a child.
type Badge struct {
	ID        string    `json:"id"`
	ChildID   string    `json:"child_id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	AwardedAt time.Time `json:"awarded_at"`
}

// Photo is a media item a coach uploaded for a class session.
type Photo struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	URL        string    `json:"url"`
	Caption    string    `json:"caption"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Announcement is a coach/admin broadcast to a class roster.
type Announcement struct {
	ID       string    `json:"id"`
	ClassID  string    `json:"class_id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Author   string    `json:"author"`
	PostedAt time.Time `json:"posted_at"`
}
