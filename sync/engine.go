// ABOUTME: Synchronization engine for mirroring Google Calendar events into profiles
// ABOUTME: Handles token refresh, per-calendar fetch isolation, and merge-by-replace
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	gosync "sync"
	"time"

	"github.com/harperreed/gather/db"
	"github.com/harperreed/gather/models"
)

const (
	// Events are mirrored from 30 days back to 1 year ahead, capped
	// per calendar.
	windowPastDays       = 30
	windowFutureYears    = 1
	maxEventsPerCalendar = 100
)

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Success        bool
	EventCount     int
	CalendarsCount int
	Err            error
}

// Engine runs calendar synchronization passes. Passes for the same
// user are serialized; passes for different users are independent.
type Engine struct {
	db       *sql.DB
	provider Provider
	now      func() time.Time

	mu    gosync.Mutex
	locks map[string]*gosync.Mutex
}

func NewEngine(database *sql.DB, provider Provider) *Engine {
	return &Engine{
		db:       database,
		provider: provider,
		now:      time.Now,
		locks:    make(map[string]*gosync.Mutex),
	}
}

func (e *Engine) userLock(userID string) *gosync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[userID]
	if !ok {
		lock = &gosync.Mutex{}
		e.locks[userID] = lock
	}
	return lock
}

// Sync runs one synchronization pass for a user. Credential failures
// come back as Success=false with a tagged Err; a single calendar
// failing to fetch is logged and skipped without failing the pass.
func (e *Engine) Sync(ctx context.Context, userID string) SyncResult {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	return e.sync(ctx, userID)
}

// sync is the lock-free body; callers must hold the user's lock.
func (e *Engine) sync(ctx context.Context, userID string) SyncResult {
	profile, err := db.GetProfile(e.db, userID)
	if err != nil {
		return e.fail(userID, fmt.Errorf("failed to load profile: %w", err))
	}
	if profile == nil || !profile.Calendar.Connected {
		return e.fail(userID, ErrProfileNotConnected)
	}

	if err := db.UpdateSyncStatus(e.db, userID, models.SyncStatusSyncing, nil); err != nil {
		return e.fail(userID, err)
	}

	link := &profile.Calendar
	if err := e.ensureValidCredentials(ctx, userID, link); err != nil {
		return e.fail(userID, err)
	}

	creds := Credentials{
		AccessToken:  link.AccessToken,
		RefreshToken: link.RefreshToken,
		Expiry:       link.TokenExpiresAt,
	}

	// The remote list is authoritative: full replace.
	calendars, err := e.provider.ListCalendars(ctx, creds)
	if err != nil {
		return e.fail(userID, fmt.Errorf("failed to list calendars: %w", err))
	}
	link.Calendars = calendars

	now := e.now()
	windowStart := now.AddDate(0, 0, -windowPastDays)
	windowEnd := now.AddDate(windowFutureYears, 0, 0)

	var allEvents []models.CalendarEvent
	var fetchedIDs []string
	selectedCount := 0

	for _, cal := range calendars {
		if !cal.Selected {
			continue
		}
		selectedCount++

		events, err := e.provider.ListEvents(ctx, creds, cal.ID, windowStart, windowEnd, maxEventsPerCalendar)
		if err != nil {
			// One calendar failing must not poison the pass.
			log.Printf("sync %s: skipping calendar %s: %v", userID, cal.ID, err)
			continue
		}

		fetchedIDs = append(fetchedIDs, cal.ID)
		allEvents = append(allEvents, events...)
	}

	// No calendar's stale events are removed until every calendar in
	// this pass has finished fetching.
	if err := db.ReplaceCalendarEvents(e.db, userID, fetchedIDs, allEvents); err != nil {
		return e.fail(userID, fmt.Errorf("failed to merge calendar events: %w", err))
	}

	syncedAt := e.now()
	link.LastSyncAt = &syncedAt
	if err := db.SaveCalendarLink(e.db, userID, link); err != nil {
		return e.fail(userID, fmt.Errorf("failed to save calendar link: %w", err))
	}

	if err := db.TouchSyncTime(e.db, userID); err != nil {
		return e.fail(userID, err)
	}
	if err := db.CreateSyncLog(e.db, db.NewSyncLogID(), userID, len(allEvents), selectedCount, models.SyncStatusIdle, nil); err != nil {
		log.Printf("sync %s: failed to record sync log: %v", userID, err)
	}

	return SyncResult{
		Success:        true,
		EventCount:     len(allEvents),
		CalendarsCount: selectedCount,
	}
}

func (e *Engine) fail(userID string, err error) SyncResult {
	errMsg := err.Error()
	if statusErr := db.UpdateSyncStatus(e.db, userID, models.SyncStatusError, &errMsg); statusErr != nil {
		log.Printf("sync %s: failed to record error status: %v", userID, statusErr)
	}
	if logErr := db.CreateSyncLog(e.db, db.NewSyncLogID(), userID, 0, 0, models.SyncStatusError, &errMsg); logErr != nil {
		log.Printf("sync %s: failed to record sync log: %v", userID, logErr)
	}
	return SyncResult{Err: err}
}

// ensureValidCredentials refreshes an expired access token. The
// refreshed link is persisted before any fetch uses the new token, so a
// crash mid-pass cannot leave the store unaware of a token in use.
func (e *Engine) ensureValidCredentials(ctx context.Context, userID string, link *models.CalendarLink) error {
	if link.TokenExpiresAt == nil || e.now().Before(*link.TokenExpiresAt) {
		return nil
	}

	if link.RefreshToken == "" {
		return ErrTokenExpiredNoRefresh
	}

	bundle, err := e.provider.Refresh(ctx, link.RefreshToken)
	if err != nil {
		return err
	}

	link.AccessToken = bundle.AccessToken
	link.TokenExpiresAt = bundle.ExpiresAt

	if err := db.SaveCalendarLink(e.db, userID, link); err != nil {
		return fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	return nil
}

// Connect stores a fresh token bundle on an existing profile and runs
// one immediate sync. The connection succeeds even if that first sync
// fails; sync failures are independently retryable.
func (e *Engine) Connect(ctx context.Context, userID string, bundle *TokenBundle) error {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := db.GetProfile(e.db, userID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		return ErrProfileNotFound
	}

	link := &profile.Calendar
	link.Connected = true
	link.AccessToken = bundle.AccessToken
	link.RefreshToken = bundle.RefreshToken
	link.TokenExpiresAt = bundle.ExpiresAt
	link.Scope = bundle.Scope
	link.SyncEnabled = true

	if err := db.SaveCalendarLink(e.db, userID, link); err != nil {
		return fmt.Errorf("failed to save calendar link: %w", err)
	}

	if result := e.sync(ctx, userID); !result.Success {
		log.Printf("connect %s: initial sync failed: %v", userID, result.Err)
	}

	return nil
}

// Disconnect clears credentials and the calendar list. Cached events
// are retained: disconnecting a source does not delete history already
// mirrored.
func (e *Engine) Disconnect(ctx context.Context, userID string) error {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := db.GetProfile(e.db, userID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		return ErrProfileNotFound
	}

	profile.Calendar = models.CalendarLink{
		Connected:   false,
		SyncEnabled: false,
	}

	if err := db.SaveCalendarLink(e.db, userID, &profile.Calendar); err != nil {
		return fmt.Errorf("failed to save calendar link: %w", err)
	}

	return nil
}
