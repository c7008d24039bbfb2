// ABOUTME: Invitation event database operations
// ABOUTME: Handles event creation, code lookup, RSVP upserts, and vote set replacement
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/gather/models"
)

// ErrEventNotFound is returned when no event matches the given code.
var ErrEventNotFound = fmt.Errorf("event not found")

func CreateEvent(db *sql.DB, event *models.Event) error {
	event.ID = uuid.New()
	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO events (id, title, description, date, location, event_code, created_by,
			max_attendees, has_voting, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID.String(), event.Title, event.Description, event.Date, event.Location,
		event.EventCode, event.CreatedBy, event.MaxAttendees, event.HasVoting,
		event.CreatedAt, event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	for _, email := range event.Emails {
		if _, err := tx.Exec(`INSERT INTO event_invitees (event_id, email) VALUES (?, ?)`,
			event.ID.String(), email); err != nil {
			return fmt.Errorf("failed to insert invitee: %w", err)
		}
	}

	for i, opt := range event.VoteOptions {
		_, err := tx.Exec(`
			INSERT INTO event_vote_options (event_id, option_id, title, description, image, position)
			VALUES (?, ?, ?, ?, ?, ?)
		`, event.ID.String(), opt.ID, opt.Title, opt.Description, opt.Image, i)
		if err != nil {
			return fmt.Errorf("failed to insert vote option: %w", err)
		}
	}

	return tx.Commit()
}

// EventCodeExists checks whether a join code is already taken.
func EventCodeExists(db *sql.DB, code string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM events WHERE event_code = ?`, strings.ToUpper(code)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check event code: %w", err)
	}
	return count > 0, nil
}

// GetEventByCode loads the full event aggregate: invitees, vote
// options, RSVPs, and vote records. The code is uppercased before
// lookup. Returns ErrEventNotFound when absent.
func GetEventByCode(db *sql.DB, code string) (*models.Event, error) {
	event := &models.Event{}
	var id string
	var maxAttendees sql.NullInt64

	err := db.QueryRow(`
		SELECT id, title, description, date, location, event_code, created_by,
			max_attendees, has_voting, created_at, updated_at
		FROM events WHERE event_code = ?
	`, strings.ToUpper(code)).Scan(
		&id,
		&event.Title,
		&event.Description,
		&event.Date,
		&event.Location,
		&event.EventCode,
		&event.CreatedBy,
		&maxAttendees,
		&event.HasVoting,
		&event.CreatedAt,
		&event.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	event.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse event id: %w", err)
	}
	if maxAttendees.Valid {
		n := int(maxAttendees.Int64)
		event.MaxAttendees = &n
	}

	if err := loadEventDetails(db, event); err != nil {
		return nil, err
	}

	return event, nil
}

func loadEventDetails(db *sql.DB, event *models.Event) error {
	id := event.ID.String()

	rows, err := db.Query(`SELECT email FROM event_invitees WHERE event_id = ? ORDER BY email`, id)
	if err != nil {
		return fmt.Errorf("failed to query invitees: %w", err)
	}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan invitee: %w", err)
		}
		event.Emails = append(event.Emails, email)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = db.Query(`
		SELECT option_id, title, description, image
		FROM event_vote_options WHERE event_id = ? ORDER BY position
	`, id)
	if err != nil {
		return fmt.Errorf("failed to query vote options: %w", err)
	}
	for rows.Next() {
		var opt models.VoteOption
		if err := rows.Scan(&opt.ID, &opt.Title, &opt.Description, &opt.Image); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan vote option: %w", err)
		}
		event.VoteOptions = append(event.VoteOptions, opt)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	event.RSVPs = make(map[string]models.RSVP)
	rows, err = db.Query(`SELECT email, status, responded_at FROM event_rsvps WHERE event_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to query rsvps: %w", err)
	}
	for rows.Next() {
		var email string
		var rsvp models.RSVP
		var respondedAt sql.NullTime
		if err := rows.Scan(&email, &rsvp.Status, &respondedAt); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan rsvp: %w", err)
		}
		if respondedAt.Valid {
			rsvp.RespondedAt = &respondedAt.Time
		}
		event.RSVPs[email] = rsvp
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	event.Votes = make(map[string]models.VoteRecord)
	rows, err = db.Query(`SELECT email, voted_at FROM event_votes WHERE event_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to query votes: %w", err)
	}
	for rows.Next() {
		var email string
		var votedAt time.Time
		if err := rows.Scan(&email, &votedAt); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan vote record: %w", err)
		}
		event.Votes[email] = models.VoteRecord{Choices: make(map[string]string), VotedAt: votedAt}
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = db.Query(`SELECT email, option_id, kind FROM event_vote_choices WHERE event_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to query vote choices: %w", err)
	}
	for rows.Next() {
		var email, optionID, kind string
		if err := rows.Scan(&email, &optionID, &kind); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan vote choice: %w", err)
		}
		if record, ok := event.Votes[email]; ok {
			record.Choices[optionID] = kind
		}
	}
	_ = rows.Close()

	return rows.Err()
}

// ListEventsByCreator returns events created by a user, newest first.
// Guest lists and responses are not loaded.
func ListEventsByCreator(db *sql.DB, userID string) ([]models.Event, error) {
	rows, err := db.Query(`
		SELECT id, title, description, date, location, event_code, created_by,
			max_attendees, has_voting, created_at, updated_at,
			(SELECT COUNT(*) FROM event_invitees WHERE event_id = events.id)
		FROM events
		WHERE created_by = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []models.Event
	for rows.Next() {
		var event models.Event
		var id string
		var maxAttendees sql.NullInt64
		var inviteeCount int

		err := rows.Scan(&id, &event.Title, &event.Description, &event.Date, &event.Location,
			&event.EventCode, &event.CreatedBy, &maxAttendees, &event.HasVoting,
			&event.CreatedAt, &event.UpdatedAt, &inviteeCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event id: %w", err)
		}
		if maxAttendees.Valid {
			n := int(maxAttendees.Int64)
			event.MaxAttendees = &n
		}
		// Carry the invitee count without the addresses themselves
		event.Emails = make([]string, inviteeCount)

		events = append(events, event)
	}

	return events, rows.Err()
}

// UpsertRSVP records or updates one guest's RSVP.
func UpsertRSVP(db *sql.DB, eventID uuid.UUID, email, status string, respondedAt time.Time) error {
	_, err := db.Exec(`
		INSERT INTO event_rsvps (event_id, email, status, responded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_id, email) DO UPDATE SET
			status = excluded.status,
			responded_at = excluded.responded_at
	`, eventID.String(), email, status, respondedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rsvp: %w", err)
	}
	return nil
}

// ReplaceVotes replaces one guest's full vote set in a single
// transaction. Any prior choices from that guest are discarded.
func ReplaceVotes(db *sql.DB, eventID uuid.UUID, email string, choices map[string]string, votedAt time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := eventID.String()

	if _, err := tx.Exec(`DELETE FROM event_vote_choices WHERE event_id = ? AND email = ?`, id, email); err != nil {
		return fmt.Errorf("failed to clear vote choices: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO event_votes (event_id, email, voted_at)
		VALUES (?, ?, ?)
		ON CONFLICT(event_id, email) DO UPDATE SET voted_at = excluded.voted_at
	`, id, email, votedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert vote record: %w", err)
	}

	for optionID, kind := range choices {
		if _, err := tx.Exec(`
			INSERT INTO event_vote_choices (event_id, email, option_id, kind)
			VALUES (?, ?, ?, ?)
		`, id, email, optionID, kind); err != nil {
			return fmt.Errorf("failed to insert vote choice: %w", err)
		}
	}

	return tx.Commit()
}
