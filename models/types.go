// ABOUTME: Data models for user profiles, calendar mirror state, and invitation events
// ABOUTME: Defines Profile, CalendarLink, CalendarEvent, Event, RSVP, and vote structs
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is the per-user record. The connected calendar account hangs
// off it; mirrored events are loaded separately from the store because
// they can number in the thousands.
type Profile struct {
	UserID      string       `json:"user_id"`
	Email       string       `json:"email"`
	Name        string       `json:"name,omitempty"`
	Image       string       `json:"image,omitempty"`
	Calendar    CalendarLink `json:"google_calendar"`
	Preferences Preferences  `json:"preferences"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Preferences are the user-tunable sync and display settings.
type Preferences struct {
	Timezone                  string `json:"timezone"`
	SyncFrequency             string `json:"sync_frequency"`
	DefaultCalendarVisibility string `json:"default_calendar_visibility"`
	AutoCreateEvents          bool   `json:"auto_create_events"`
}

// SyncFrequency values.
const (
	SyncFrequencyRealtime = "realtime"
	SyncFrequencyHourly   = "hourly"
	SyncFrequencyDaily    = "daily"
	SyncFrequencyManual   = "manual"
)

// ValidSyncFrequency reports whether s is a known sync frequency.
func ValidSyncFrequency(s string) bool {
	switch s {
	case SyncFrequencyRealtime, SyncFrequencyHourly, SyncFrequencyDaily, SyncFrequencyManual:
		return true
	}
	return false
}

// DefaultPreferences returns the settings a fresh profile starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		Timezone:                  "UTC",
		SyncFrequency:             SyncFrequencyDaily,
		DefaultCalendarVisibility: VisibilityPrivate,
		AutoCreateEvents:          false,
	}
}

// CalendarLink is the per-user record of a connected Google Calendar
// account: credentials, calendar list, and sync metadata.
// If Connected is true, AccessToken must be present. A nil
// TokenExpiresAt means the token is never proactively refreshed.
type CalendarLink struct {
	Connected      bool           `json:"connected"`
	AccessToken    string         `json:"-"`
	RefreshToken   string         `json:"-"`
	TokenExpiresAt *time.Time     `json:"token_expires_at,omitempty"`
	Scope          string         `json:"scope,omitempty"`
	SyncEnabled    bool           `json:"sync_enabled"`
	LastSyncAt     *time.Time     `json:"last_sync_at,omitempty"`
	Calendars      []CalendarInfo `json:"calendars"`
}

type CalendarInfo struct {
	ID              string `json:"id"`
	Summary         string `json:"summary"`
	Description     string `json:"description,omitempty"`
	TimeZone        string `json:"time_zone,omitempty"`
	AccessRole      string `json:"access_role,omitempty"`
	Primary         bool   `json:"primary"`
	Selected        bool   `json:"selected"`
	BackgroundColor string `json:"background_color,omitempty"`
	ForegroundColor string `json:"foreground_color,omitempty"`
}

// AccessRole constants.
const (
	AccessRoleOwner          = "owner"
	AccessRoleReader         = "reader"
	AccessRoleWriter         = "writer"
	AccessRoleFreeBusyReader = "freeBusyReader"
)

// EventTime holds a Google-style event boundary. Exactly one of
// DateTime and Date is set; Date marks an all-day event.
type EventTime struct {
	DateTime string `json:"date_time,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"time_zone,omitempty"`
}

// Time parses whichever representation is set. Returns the zero time
// when neither parses.
func (e EventTime) Time() time.Time {
	if e.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, e.DateTime); err == nil {
			return t
		}
	}
	if e.Date != "" {
		if t, err := time.Parse("2006-01-02", e.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}

type Attendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"display_name,omitempty"`
	ResponseStatus string `json:"response_status,omitempty"`
}

// CalendarEvent is one remote event mirrored into a profile's cache.
// ID is CalendarID + ":" + RemoteEventID, unique within a profile.
type CalendarEvent struct {
	ID            string     `json:"id"`
	Summary       string     `json:"summary"`
	Description   string     `json:"description,omitempty"`
	Start         EventTime  `json:"start"`
	End           EventTime  `json:"end"`
	Location      string     `json:"location,omitempty"`
	Attendees     []Attendee `json:"attendees,omitempty"`
	Status        string     `json:"status,omitempty"`
	Visibility    string     `json:"visibility,omitempty"`
	HTMLLink      string     `json:"html_link,omitempty"`
	RemoteEventID string     `json:"remote_event_id"`
	CalendarID    string     `json:"calendar_id"`
	LastSyncAt    time.Time  `json:"last_sync_at"`
}

// CachedEventID derives the cache key for a remote event.
func CachedEventID(calendarID, remoteEventID string) string {
	return calendarID + ":" + remoteEventID
}

// Calendar event status constants.
const (
	EventStatusConfirmed = "confirmed"
	EventStatusTentative = "tentative"
	EventStatusCancelled = "cancelled"
)

// Visibility constants.
const (
	VisibilityDefault      = "default"
	VisibilityPublic       = "public"
	VisibilityPrivate      = "private"
	VisibilityConfidential = "confidential"
)

// RSVP status constants.
const (
	RSVPPending  = "pending"
	RSVPAccepted = "accepted"
	RSVPDeclined = "declined"
)

// Vote kind constants.
const (
	VoteLike    = "like"
	VoteDislike = "dislike"
)

// Sync status constants.
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

type RSVP struct {
	Status      string     `json:"status"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// VoteRecord is one guest's full vote set. Choices maps vote option ID
// to VoteLike or VoteDislike. A resubmission replaces the whole record.
type VoteRecord struct {
	Choices map[string]string `json:"choices"`
	VotedAt time.Time         `json:"voted_at"`
}

type VoteOption struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Event is an invite-only invitation event. Emails holds the normalized
// (lower-cased, deduped) guest list; RSVPs and Votes are keyed by those
// same normalized emails.
type Event struct {
	ID           uuid.UUID             `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description,omitempty"`
	Date         time.Time             `json:"date"`
	Location     string                `json:"location,omitempty"`
	Emails       []string              `json:"emails"`
	EventCode    string                `json:"event_code"`
	CreatedBy    string                `json:"created_by"`
	MaxAttendees *int                  `json:"max_attendees,omitempty"`
	HasVoting    bool                  `json:"has_voting"`
	VoteOptions  []VoteOption          `json:"vote_options,omitempty"`
	RSVPs        map[string]RSVP       `json:"rsvps"`
	Votes        map[string]VoteRecord `json:"votes"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email for guest-list keying.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsInvited reports whether the (normalized) email is on the guest list.
func (e *Event) IsInvited(email string) bool {
	norm := NormalizeEmail(email)
	for _, invited := range e.Emails {
		if invited == norm {
			return true
		}
	}
	return false
}

// HasVoteOption reports whether the option ID belongs to this event.
func (e *Event) HasVoteOption(optionID string) bool {
	for _, opt := range e.VoteOptions {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}
