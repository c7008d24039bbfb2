// ABOUTME: Profile database operations and the mirrored calendar event cache
// ABOUTME: Handles profile CRUD, calendar link persistence, and merge-by-replace of cached events
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/gather/models"
)

func CreateProfile(db *sql.DB, profile *models.Profile) error {
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	if profile.Preferences == (models.Preferences{}) {
		profile.Preferences = models.DefaultPreferences()
	}

	_, err := db.Exec(`
		INSERT INTO profiles (user_id, email, name, image, gc_connected, gc_access_token, gc_refresh_token,
			gc_token_expires_at, gc_scope, gc_sync_enabled, gc_last_sync_at,
			pref_timezone, pref_sync_frequency, pref_default_visibility, pref_auto_create_events,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, profile.UserID, profile.Email, profile.Name, profile.Image,
		profile.Calendar.Connected, profile.Calendar.AccessToken, profile.Calendar.RefreshToken,
		profile.Calendar.TokenExpiresAt, profile.Calendar.Scope, profile.Calendar.SyncEnabled,
		profile.Calendar.LastSyncAt,
		profile.Preferences.Timezone, profile.Preferences.SyncFrequency,
		profile.Preferences.DefaultCalendarVisibility, profile.Preferences.AutoCreateEvents,
		profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// GetProfile loads a profile with its calendar link and calendar list.
// Returns (nil, nil) when no profile exists for the user.
func GetProfile(db *sql.DB, userID string) (*models.Profile, error) {
	profile := &models.Profile{}
	var tokenExpiresAt, lastSyncAt sql.NullTime

	err := db.QueryRow(`
		SELECT user_id, email, name, image, gc_connected, gc_access_token, gc_refresh_token,
			gc_token_expires_at, gc_scope, gc_sync_enabled, gc_last_sync_at,
			pref_timezone, pref_sync_frequency, pref_default_visibility, pref_auto_create_events,
			created_at, updated_at
		FROM profiles WHERE user_id = ?
	`, userID).Scan(
		&profile.UserID,
		&profile.Email,
		&profile.Name,
		&profile.Image,
		&profile.Calendar.Connected,
		&profile.Calendar.AccessToken,
		&profile.Calendar.RefreshToken,
		&tokenExpiresAt,
		&profile.Calendar.Scope,
		&profile.Calendar.SyncEnabled,
		&lastSyncAt,
		&profile.Preferences.Timezone,
		&profile.Preferences.SyncFrequency,
		&profile.Preferences.DefaultCalendarVisibility,
		&profile.Preferences.AutoCreateEvents,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if tokenExpiresAt.Valid {
		profile.Calendar.TokenExpiresAt = &tokenExpiresAt.Time
	}
	if lastSyncAt.Valid {
		profile.Calendar.LastSyncAt = &lastSyncAt.Time
	}

	calendars, err := listProfileCalendars(db, userID)
	if err != nil {
		return nil, err
	}
	profile.Calendar.Calendars = calendars

	return profile, nil
}

func listProfileCalendars(db *sql.DB, userID string) ([]models.CalendarInfo, error) {
	rows, err := db.Query(`
		SELECT calendar_id, summary, description, time_zone, access_role, is_primary, selected,
			background_color, foreground_color
		FROM profile_calendars
		WHERE user_id = ?
		ORDER BY position
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile calendars: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var calendars []models.CalendarInfo
	for rows.Next() {
		var cal models.CalendarInfo
		if err := rows.Scan(&cal.ID, &cal.Summary, &cal.Description, &cal.TimeZone, &cal.AccessRole,
			&cal.Primary, &cal.Selected, &cal.BackgroundColor, &cal.ForegroundColor); err != nil {
			return nil, fmt.Errorf("failed to scan profile calendar: %w", err)
		}
		calendars = append(calendars, cal)
	}

	return calendars, rows.Err()
}

// SavePreferences persists a user's preference settings.
func SavePreferences(db *sql.DB, userID string, prefs models.Preferences) error {
	result, err := db.Exec(`
		UPDATE profiles SET
			pref_timezone = ?,
			pref_sync_frequency = ?,
			pref_default_visibility = ?,
			pref_auto_create_events = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
	`, prefs.Timezone, prefs.SyncFrequency, prefs.DefaultCalendarVisibility,
		prefs.AutoCreateEvents, userID)
	if err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no profile for user %s", userID)
	}

	return nil
}

// SaveCalendarLink persists the link fields and the full calendar list
// in one transaction. The remote calendar list is authoritative, so the
// stored list is fully replaced.
func SaveCalendarLink(db *sql.DB, userID string, link *models.CalendarLink) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.Exec(`
		UPDATE profiles SET
			gc_connected = ?,
			gc_access_token = ?,
			gc_refresh_token = ?,
			gc_token_expires_at = ?,
			gc_scope = ?,
			gc_sync_enabled = ?,
			gc_last_sync_at = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
	`, link.Connected, link.AccessToken, link.RefreshToken, link.TokenExpiresAt,
		link.Scope, link.SyncEnabled, link.LastSyncAt, userID)
	if err != nil {
		return fmt.Errorf("failed to update calendar link: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no profile for user %s", userID)
	}

	if _, err := tx.Exec(`DELETE FROM profile_calendars WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear profile calendars: %w", err)
	}

	for i, cal := range link.Calendars {
		_, err := tx.Exec(`
			INSERT INTO profile_calendars (user_id, calendar_id, summary, description, time_zone,
				access_role, is_primary, selected, background_color, foreground_color, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, userID, cal.ID, cal.Summary, cal.Description, cal.TimeZone, cal.AccessRole,
			cal.Primary, cal.Selected, cal.BackgroundColor, cal.ForegroundColor, i)
		if err != nil {
			return fmt.Errorf("failed to insert profile calendar: %w", err)
		}
	}

	return tx.Commit()
}

// ReplaceCalendarEvents applies one sync pass's merge step atomically:
// every cached event belonging to a calendar in calendarIDs is removed,
// then the freshly fetched events are inserted. Running it twice with
// the same inputs yields the same cached set.
func ReplaceCalendarEvents(db *sql.DB, userID string, calendarIDs []string, events []models.CalendarEvent) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if len(calendarIDs) > 0 {
		placeholders := strings.Repeat("?,", len(calendarIDs))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]interface{}, 0, len(calendarIDs)+1)
		args = append(args, userID)
		for _, id := range calendarIDs {
			args = append(args, id)
		}

		query := fmt.Sprintf(`DELETE FROM calendar_events WHERE user_id = ? AND calendar_id IN (%s)`, placeholders)
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to remove stale calendar events: %w", err)
		}
	}

	for _, event := range events {
		attendees := ""
		if len(event.Attendees) > 0 {
			data, err := json.Marshal(event.Attendees)
			if err != nil {
				return fmt.Errorf("failed to encode attendees: %w", err)
			}
			attendees = string(data)
		}

		var startAt interface{}
		if t := event.Start.Time(); !t.IsZero() {
			startAt = t
		}

		_, err := tx.Exec(`
			INSERT OR REPLACE INTO calendar_events (user_id, id, summary, description,
				start_date_time, start_date, start_time_zone, end_date_time, end_date, end_time_zone,
				start_at, location, attendees, status, visibility, html_link,
				remote_event_id, calendar_id, last_sync_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, userID, event.ID, event.Summary, event.Description,
			event.Start.DateTime, event.Start.Date, event.Start.TimeZone,
			event.End.DateTime, event.End.Date, event.End.TimeZone,
			startAt, event.Location, attendees, event.Status, event.Visibility, event.HTMLLink,
			event.RemoteEventID, event.CalendarID, event.LastSyncAt)
		if err != nil {
			return fmt.Errorf("failed to insert calendar event: %w", err)
		}
	}

	return tx.Commit()
}

// EventListOptions filters ListCalendarEvents.
type EventListOptions struct {
	Limit    int
	Upcoming bool
	Start    *time.Time
	End      *time.Time
}

// ListCalendarEvents returns cached events ordered by start time
// ascending. Upcoming restricts to future, non-cancelled events.
func ListCalendarEvents(db *sql.DB, userID string, opts EventListOptions) ([]models.CalendarEvent, error) {
	query := `
		SELECT id, summary, description, start_date_time, start_date, start_time_zone,
			end_date_time, end_date, end_time_zone, location, attendees, status, visibility,
			html_link, remote_event_id, calendar_id, last_sync_at
		FROM calendar_events
		WHERE user_id = ?`
	args := []interface{}{userID}

	if opts.Upcoming {
		query += ` AND start_at > ? AND status != ?`
		args = append(args, time.Now(), models.EventStatusCancelled)
	} else if opts.Start != nil && opts.End != nil {
		query += ` AND start_at >= ? AND start_at <= ?`
		args = append(args, *opts.Start, *opts.End)
	}

	query += ` ORDER BY start_at`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []models.CalendarEvent
	for rows.Next() {
		var event models.CalendarEvent
		var attendees string

		err := rows.Scan(&event.ID, &event.Summary, &event.Description,
			&event.Start.DateTime, &event.Start.Date, &event.Start.TimeZone,
			&event.End.DateTime, &event.End.Date, &event.End.TimeZone,
			&event.Location, &attendees, &event.Status, &event.Visibility,
			&event.HTMLLink, &event.RemoteEventID, &event.CalendarID, &event.LastSyncAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calendar event: %w", err)
		}

		if attendees != "" {
			if err := json.Unmarshal([]byte(attendees), &event.Attendees); err != nil {
				return nil, fmt.Errorf("failed to decode attendees: %w", err)
			}
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

// CountCalendarEvents returns the total cached event count for a user.
func CountCalendarEvents(db *sql.DB, userID string) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM calendar_events WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count calendar events: %w", err)
	}
	return count, nil
}
