// ABOUTME: HTTP-level tests for the JSON API routes
// ABOUTME: Exercises auth gating, RSVP/vote flows, and creator-only projections
package web

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/gather/db"
	"github.com/harperreed/gather/invite"
	"github.com/harperreed/gather/models"
	gathersync "github.com/harperreed/gather/sync"
)

// stubSessions returns a fixed user, or nil when unauthenticated.
type stubSessions struct {
	user *SessionUser
}

func (s *stubSessions) GetSession(r *http.Request) (*SessionUser, error) {
	return s.user, nil
}

// stubProvider satisfies the calendar provider without a backend.
type stubProvider struct{}

func (stubProvider) ExchangeCode(ctx context.Context, code string) (*gathersync.TokenBundle, error) {
	return &gathersync.TokenBundle{AccessToken: "access-token", RefreshToken: "refresh-token"}, nil
}

func (stubProvider) Refresh(ctx context.Context, refreshToken string) (*gathersync.TokenBundle, error) {
	return &gathersync.TokenBundle{AccessToken: "access-token"}, nil
}

func (stubProvider) ListCalendars(ctx context.Context, creds gathersync.Credentials) ([]models.CalendarInfo, error) {
	return nil, nil
}

func (stubProvider) ListEvents(ctx context.Context, creds gathersync.Credentials, calendarID string, windowStart, windowEnd time.Time, maxResults int64) ([]models.CalendarEvent, error) {
	return nil, nil
}

func newTestServer(t *testing.T, sessions SessionStore) (*Server, *sql.DB) {
	t.Helper()

	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	provider := stubProvider{}
	engine := gathersync.NewEngine(database, provider)
	invites := invite.NewService(database)

	return NewServer(database, engine, invites, provider, nil, sessions), database
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func createEventViaAPI(t *testing.T, handler http.Handler, hasVoting bool) string {
	t.Helper()

	body := map[string]interface{}{
		"title":    "Team Offsite",
		"date":     time.Now().AddDate(0, 1, 0).Format(time.RFC3339),
		"location": "Chicago",
		"emails":   []string{"alice@example.com", "bob@example.com"},
	}
	if hasVoting {
		body["has_voting"] = true
		body["vote_options"] = []map[string]string{
			{"id": "opt-1", "title": "Pizza"},
			{"id": "opt-2", "title": "Sushi"},
		}
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/events", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	out := decodeBody(t, rec)
	event := out["event"].(map[string]interface{})
	return event["event_code"].(string)
}

func TestCreateEventRequiresSession(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{})
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/events", map[string]interface{}{
		"title":  "Team Offsite",
		"date":   time.Now().Format(time.RFC3339),
		"emails": []string{"alice@example.com"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateEventValidationError(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/events", map[string]interface{}{
		"title": "No Guests",
		"date":  time.Now().Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAndListEvents(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	code := createEventViaAPI(t, handler, false)
	assert.True(t, models.ValidEventCode(code))

	rec := doJSON(t, handler, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody(t, rec)
	events := out["events"].([]interface{})
	require.Len(t, events, 1)
	first := events[0].(map[string]interface{})
	assert.Equal(t, code, first["event_code"])
	assert.Equal(t, float64(2), first["email_count"])
}

func TestEventByCodeCreatorProjection(t *testing.T) {
	creator := &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}}
	server, _ := newTestServer(t, creator)
	handler := server.Handler()

	code := createEventViaAPI(t, handler, true)

	rec := doJSON(t, handler, http.MethodGet, "/api/events?eventCode="+code, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	event := decodeBody(t, rec)["event"].(map[string]interface{})
	assert.Contains(t, event, "emails")
	assert.Contains(t, event, "rsvps")
	assert.Contains(t, event, "vote_options")
	assert.Contains(t, event, "voting_stats")

	// Another visitor sees stats but never the guest list.
	creator.user = &SessionUser{ID: "user-2", Email: "user-2@example.com"}
	rec = doJSON(t, handler, http.MethodGet, "/api/events?eventCode="+code, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	event = decodeBody(t, rec)["event"].(map[string]interface{})
	assert.NotContains(t, event, "emails")
	assert.NotContains(t, event, "rsvps")
	assert.Contains(t, event, "rsvp_stats")
}

func TestRSVPFlow(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	code := createEventViaAPI(t, handler, false)

	rec := doJSON(t, handler, http.MethodPost, "/api/events/"+code+"/rsvp", map[string]string{
		"email":  "alice@example.com",
		"status": models.RSVPAccepted,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stats := decodeBody(t, rec)["rsvp_stats"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["total"])
	assert.Equal(t, float64(1), stats["accepted"])
}

func TestRSVPRejectsUninvited(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	code := createEventViaAPI(t, handler, false)

	rec := doJSON(t, handler, http.MethodPost, "/api/events/"+code+"/rsvp", map[string]string{
		"email":  "mallory@example.com",
		"status": models.RSVPAccepted,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRSVPUnknownEvent(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/events/ZZZZZZ/rsvp", map[string]string{
		"email":  "alice@example.com",
		"status": models.RSVPAccepted,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRSVPRejectsBadStatus(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	code := createEventViaAPI(t, handler, false)

	rec := doJSON(t, handler, http.MethodPost, "/api/events/"+code+"/rsvp", map[string]string{
		"email":  "alice@example.com",
		"status": "maybe",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVoteFlow(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	code := createEventViaAPI(t, handler, true)

	rec := doJSON(t, handler, http.MethodPost, "/api/events/"+code+"/vote", map[string]interface{}{
		"email": "alice@example.com",
		"votes": []map[string]string{
			{"option_id": "opt-1", "vote": models.VoteLike},
			{"option_id": "opt-2", "vote": models.VoteDislike},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stats := decodeBody(t, rec)["voting_stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["total_voters"])
}

func TestVoteRejectsUnknownOption(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	code := createEventViaAPI(t, handler, true)

	rec := doJSON(t, handler, http.MethodPost, "/api/events/"+code+"/vote", map[string]interface{}{
		"email": "alice@example.com",
		"votes": []map[string]string{
			{"option_id": "opt-bogus", "vote": models.VoteLike},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVoteRejectsWhenVotingDisabled(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	code := createEventViaAPI(t, handler, false)

	rec := doJSON(t, handler, http.MethodPost, "/api/events/"+code+"/vote", map[string]interface{}{
		"email": "alice@example.com",
		"votes": []map[string]string{
			{"option_id": "opt-1", "vote": models.VoteLike},
		},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPublicEventOmitsGuestList(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	code := createEventViaAPI(t, handler, true)

	rec := doJSON(t, handler, http.MethodGet, "/api/events/public/"+code, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	event := decodeBody(t, rec)["event"].(map[string]interface{})
	assert.Equal(t, "Team Offsite", event["title"])
	assert.NotContains(t, event, "emails")
	assert.NotContains(t, event, "rsvps")
	assert.NotContains(t, event, "rsvp_stats")
}

func TestGetProfileBootstrapsFromSession(t *testing.T) {
	server, database := newTestServer(t, &stubSessions{user: &SessionUser{
		ID:    "user-1",
		Email: "user-1@example.com",
		Name:  "Test User",
	}})
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody(t, rec)
	assert.Equal(t, "user-1", out["user_id"])
	assert.Equal(t, "user-1@example.com", out["email"])

	link := out["google_calendar"].(map[string]interface{})
	assert.Equal(t, false, link["connected"])
	assert.Equal(t, true, link["sync_enabled"])
	assert.NotContains(t, link, "access_token")

	prefs := out["preferences"].(map[string]interface{})
	assert.Equal(t, "UTC", prefs["timezone"])
	assert.Equal(t, models.SyncFrequencyDaily, prefs["sync_frequency"])

	profile, err := db.GetProfile(database, "user-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
}

func TestPatchProfileTogglesSync(t *testing.T) {
	server, database := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	// Bootstrap the profile.
	rec := doJSON(t, handler, http.MethodGet, "/api/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPatch, "/api/profile", map[string]interface{}{
		"google_calendar": map[string]interface{}{"sync_enabled": false},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	profile, err := db.GetProfile(database, "user-1")
	require.NoError(t, err)
	assert.False(t, profile.Calendar.SyncEnabled)
}

func TestPatchProfileUpdatesPreferences(t *testing.T) {
	server, database := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	// Bootstrap the profile.
	rec := doJSON(t, handler, http.MethodGet, "/api/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Partial update: untouched fields keep their defaults.
	rec = doJSON(t, handler, http.MethodPatch, "/api/profile", map[string]interface{}{
		"preferences": map[string]interface{}{"timezone": "America/Chicago"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	profile, err := db.GetProfile(database, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", profile.Preferences.Timezone)
	assert.Equal(t, models.SyncFrequencyDaily, profile.Preferences.SyncFrequency)

	rec = doJSON(t, handler, http.MethodPatch, "/api/profile", map[string]interface{}{
		"preferences": map[string]interface{}{
			"sync_frequency":     models.SyncFrequencyHourly,
			"auto_create_events": true,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	profile, err = db.GetProfile(database, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncFrequencyHourly, profile.Preferences.SyncFrequency)
	assert.True(t, profile.Preferences.AutoCreateEvents)
	assert.Equal(t, "America/Chicago", profile.Preferences.Timezone)
}

func TestPatchProfileRejectsBadPreferences(t *testing.T) {
	server, database := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPatch, "/api/profile", map[string]interface{}{
		"preferences": map[string]interface{}{"sync_frequency": "yearly"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPatch, "/api/profile", map[string]interface{}{
		"preferences": map[string]interface{}{"default_calendar_visibility": "secret"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	profile, err := db.GetProfile(database, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPreferences(), profile.Preferences)
}

func TestCalendarSyncNotConnected(t *testing.T) {
	server, database := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	require.NoError(t, db.CreateProfile(database, &models.Profile{
		UserID: "user-1",
		Email:  "user-1@example.com",
	}))

	rec := doJSON(t, handler, http.MethodPost, "/api/calendar/sync", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalendarEventsRequiresProfile(t *testing.T) {
	server, _ := newTestServer(t, &stubSessions{user: &SessionUser{ID: "user-1", Email: "user-1@example.com"}})
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/calendar/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
