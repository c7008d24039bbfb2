// ABOUTME: Database operations for sync_state and sync_log tables
// ABOUTME: Manages per-user sync status and the record of completed sync passes
package db

import (
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// SyncState represents the sync state for one user's calendar link.
type SyncState struct {
	UserID       string
	LastSyncTime *time.Time
	Status       string
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GetSyncState retrieves the sync state for a user.
func GetSyncState(db *sql.DB, userID string) (*SyncState, error) {
	var state SyncState
	var lastSyncTime sql.NullTime
	var errorMessage sql.NullString

	err := db.QueryRow(`
		SELECT user_id, last_sync_time, status, error_message, created_at, updated_at
		FROM sync_state
		WHERE user_id = ?
	`, userID).Scan(
		&state.UserID,
		&lastSyncTime,
		&state.Status,
		&errorMessage,
		&state.CreatedAt,
		&state.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	if lastSyncTime.Valid {
		state.LastSyncTime = &lastSyncTime.Time
	}
	if errorMessage.Valid {
		state.ErrorMessage = &errorMessage.String
	}

	return &state, nil
}

// UpdateSyncStatus updates the sync status for a user.
func UpdateSyncStatus(db *sql.DB, userID, status string, errorMsg *string) error {
	var errorMsgVal sql.NullString
	if errorMsg != nil {
		errorMsgVal = sql.NullString{String: *errorMsg, Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO sync_state (user_id, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = CURRENT_TIMESTAMP
	`, userID, status, errorMsgVal)

	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}

	return nil
}

// TouchSyncTime marks a successful pass: status back to idle, error
// cleared, last sync time set.
func TouchSyncTime(db *sql.DB, userID string) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (user_id, last_sync_time, status, created_at, updated_at)
		VALUES (?, CURRENT_TIMESTAMP, 'idle', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			last_sync_time = CURRENT_TIMESTAMP,
			status = 'idle',
			error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
	`, userID)

	if err != nil {
		return fmt.Errorf("failed to touch sync time: %w", err)
	}

	return nil
}

// NewSyncLogID generates a ULID for a sync log entry.
func NewSyncLogID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// CreateSyncLog records one completed sync pass for a user.
func CreateSyncLog(db *sql.DB, id, userID string, eventCount, calendarsCount int, status string, errorMsg *string) error {
	var errorMsgVal sql.NullString
	if errorMsg != nil {
		errorMsgVal = sql.NullString{String: *errorMsg, Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO sync_log (id, user_id, event_count, calendars_count, status, error_message, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, id, userID, eventCount, calendarsCount, status, errorMsgVal)

	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}

	return nil
}

// SyncLogEntry is one recorded sync pass.
type SyncLogEntry struct {
	ID             string
	UserID         string
	EventCount     int
	CalendarsCount int
	Status         string
	ErrorMessage   *string
	SyncedAt       time.Time
}

// ListSyncLog returns the most recent sync passes for a user.
func ListSyncLog(db *sql.DB, userID string, limit int) ([]SyncLogEntry, error) {
	rows, err := db.Query(`
		SELECT id, user_id, event_count, calendars_count, status, error_message, synced_at
		FROM sync_log
		WHERE user_id = ?
		ORDER BY synced_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []SyncLogEntry
	for rows.Next() {
		var entry SyncLogEntry
		var errorMessage sql.NullString

		err := rows.Scan(&entry.ID, &entry.UserID, &entry.EventCount, &entry.CalendarsCount,
			&entry.Status, &errorMessage, &entry.SyncedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}

		if errorMessage.Valid {
			entry.ErrorMessage = &errorMessage.String
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
