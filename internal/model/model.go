package model

import (
	"strings"
	"time"

	"communitycal/internal/caldate"
)

// Status is the lifecycle state of a community event. The set is closed for
// filtering purposes, but unknown values are carried through untouched.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusConfirmed Status = "confirmed"
)

// Known reports whether s is one of the statuses the filters understand.
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusActive, StatusOpen, StatusCompleted, StatusRejected, StatusConfirmed:
		return true
	}
	return false
}

// Approved is true for events that are live for participants.
func (s Status) Approved() bool {
	return s == StatusActive || s == StatusOpen
}

type Role string

const (
	RoleRetiree    Role = "retiree"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// ParseRole maps a header/claim value to a Role; anything unrecognised is a
// retiree.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleSuperAdmin, "super-admin", "super_admin":
		return RoleSuperAdmin
	default:
		return RoleRetiree
	}
}

// Identity is the caller on whose behalf a view is computed.
type Identity struct {
	UserID     string `json:"user_id"`
	Role       Role   `json:"role"`
	Settlement string `json:"settlement,omitempty"`
}

// Category groups events for colouring and filtering.
type Category struct {
	ID    string            `json:"id"`
	Names map[string]string `json:"names"`
	Color string            `json:"color,omitempty"`
}

// Name returns the display name in lang, falling back to English, then to
// any available name, then to the id.
func (c Category) Name(lang string) string {
	if n := c.Names[lang]; n != "" {
		return n
	}
	if n := c.Names["en"]; n != "" {
		return n
	}
	for _, n := range c.Names {
		if n != "" {
			return n
		}
	}
	return c.ID
}

// Event is the normalized form every core component works on.
type Event struct {
	ID          string
	Title       string
	Description string
	Location    string

	// StartDate is Invalid for undated events; EndDate is never before
	// StartDate.
	StartDate caldate.Date
	EndDate   caldate.Date

	// TimeFrom / TimeTo are zero-padded HH:MM or empty.
	TimeFrom string
	TimeTo   string

	CategoryID string
	Category   Category

	Status       Status
	CreatedBy    string
	Participants []string
	Settlement   string
	Capacity     int
	CreatedAt    *time.Time
}

// Dated reports whether the event can appear in date-bound views.
func (e Event) Dated() bool {
	return e.StartDate.Valid()
}

// LastDay is the end date, or the start date when no end is known.
func (e Event) LastDay() caldate.Date {
	if e.EndDate.Valid() {
		return e.EndDate
	}
	return e.StartDate
}

// Covers reports whether d lies within [StartDate, LastDay].
func (e Event) Covers(d caldate.Date) bool {
	if !e.Dated() || !d.Valid() {
		return false
	}
	return !d.Before(e.StartDate) && !d.After(e.LastDay())
}

func (e Event) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	for _, p := range e.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// PositionedEvent is an event placed in a day-view column.
type PositionedEvent struct {
	Event
	Column          int
	TotalColumns    int
	HasCollision    bool
	StartMinute     int
	DurationMinutes int
	DurationLabel   string
}

// Snapshot is one complete delivery from the event store.
type Snapshot struct {
	Events     []RawEvent `json:"events"`
	Categories []Category `json:"categories"`
}
