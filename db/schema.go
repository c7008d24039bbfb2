// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation and initialization
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	name TEXT,
	image TEXT,
	gc_connected INTEGER NOT NULL DEFAULT 0,
	gc_access_token TEXT,
	gc_refresh_token TEXT,
	gc_token_expires_at DATETIME,
	gc_scope TEXT,
	gc_sync_enabled INTEGER NOT NULL DEFAULT 1,
	gc_last_sync_at DATETIME,
	pref_timezone TEXT NOT NULL DEFAULT 'UTC',
	pref_sync_frequency TEXT NOT NULL DEFAULT 'daily',
	pref_default_visibility TEXT NOT NULL DEFAULT 'private',
	pref_auto_create_events INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_profiles_email ON profiles(email);
CREATE INDEX IF NOT EXISTS idx_profiles_gc_connected ON profiles(gc_connected);

CREATE TABLE IF NOT EXISTS profile_calendars (
	user_id TEXT NOT NULL,
	calendar_id TEXT NOT NULL,
	summary TEXT NOT NULL,
	description TEXT,
	time_zone TEXT,
	access_role TEXT,
	is_primary INTEGER NOT NULL DEFAULT 0,
	selected INTEGER NOT NULL DEFAULT 1,
	background_color TEXT,
	foreground_color TEXT,
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, calendar_id),
	FOREIGN KEY (user_id) REFERENCES profiles(user_id)
);

CREATE TABLE IF NOT EXISTS calendar_events (
	user_id TEXT NOT NULL,
	id TEXT NOT NULL,
	summary TEXT NOT NULL,
	description TEXT,
	start_date_time TEXT,
	start_date TEXT,
	start_time_zone TEXT,
	end_date_time TEXT,
	end_date TEXT,
	end_time_zone TEXT,
	start_at DATETIME,
	location TEXT,
	attendees TEXT,
	status TEXT,
	visibility TEXT,
	html_link TEXT,
	remote_event_id TEXT NOT NULL,
	calendar_id TEXT NOT NULL,
	last_sync_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, id),
	FOREIGN KEY (user_id) REFERENCES profiles(user_id)
);

CREATE INDEX IF NOT EXISTS idx_calendar_events_calendar ON calendar_events(user_id, calendar_id);
CREATE INDEX IF NOT EXISTS idx_calendar_events_start ON calendar_events(user_id, start_at);

CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	date DATETIME NOT NULL,
	location TEXT,
	event_code TEXT NOT NULL UNIQUE,
	created_by TEXT NOT NULL,
	max_attendees INTEGER,
	has_voting INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_created_by ON events(created_by);
CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);

CREATE TABLE IF NOT EXISTS event_invitees (
	event_id TEXT NOT NULL,
	email TEXT NOT NULL,
	PRIMARY KEY (event_id, email),
	FOREIGN KEY (event_id) REFERENCES events(id)
);

CREATE TABLE IF NOT EXISTS event_vote_options (
	event_id TEXT NOT NULL,
	option_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT,
	image TEXT,
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (event_id, option_id),
	FOREIGN KEY (event_id) REFERENCES events(id)
);

CREATE TABLE IF NOT EXISTS event_rsvps (
	event_id TEXT NOT NULL,
	email TEXT NOT NULL,
	status TEXT NOT NULL,
	responded_at DATETIME,
	PRIMARY KEY (event_id, email),
	FOREIGN KEY (event_id) REFERENCES events(id)
);

CREATE TABLE IF NOT EXISTS event_votes (
	event_id TEXT NOT NULL,
	email TEXT NOT NULL,
	voted_at DATETIME NOT NULL,
	PRIMARY KEY (event_id, email),
	FOREIGN KEY (event_id) REFERENCES events(id)
);

CREATE TABLE IF NOT EXISTS event_vote_choices (
	event_id TEXT NOT NULL,
	email TEXT NOT NULL,
	option_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	PRIMARY KEY (event_id, email, option_id),
	FOREIGN KEY (event_id) REFERENCES events(id)
);

CREATE TABLE IF NOT EXISTS sync_state (
	user_id TEXT PRIMARY KEY,
	last_sync_time DATETIME,
	status TEXT NOT NULL DEFAULT 'idle',
	error_message TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_log (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	event_count INTEGER NOT NULL,
	calendars_count INTEGER NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	synced_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_log_user ON sync_log(user_id);
`

// InitSchema creates all tables if they don't exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
