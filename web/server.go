// ABOUTME: JSON API server exposing event, RSVP/vote, calendar, and profile routes
// ABOUTME: Session lookup is delegated to an injected auth collaborator
package web

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/harperreed/gather/db"
	"github.com/harperreed/gather/invite"
	"github.com/harperreed/gather/models"
	gathersync "github.com/harperreed/gather/sync"
)

// SessionUser is the authenticated identity resolved by the auth
// provider.
type SessionUser struct {
	ID    string
	Email string
	Name  string
	Image string
}

// SessionStore resolves the session attached to a request. It is an
// external collaborator; a nil user with nil error means no session.
type SessionStore interface {
	GetSession(r *http.Request) (*SessionUser, error)
}

type Server struct {
	db       *sql.DB
	engine   *gathersync.Engine
	invites  *invite.Service
	provider gathersync.Provider
	oauth    *oauth2.Config
	sessions SessionStore
}

func NewServer(database *sql.DB, engine *gathersync.Engine, invites *invite.Service, provider gathersync.Provider, oauthConfig *oauth2.Config, sessions SessionStore) *Server {
	return &Server{
		db:       database,
		engine:   engine,
		invites:  invites,
		provider: provider,
		oauth:    oauthConfig,
		sessions: sessions,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	mux.HandleFunc("GET /api/events", s.handleListEvents)
	mux.HandleFunc("POST /api/events/{code}/rsvp", s.handleRSVP)
	mux.HandleFunc("POST /api/events/{code}/vote", s.handleVote)
	mux.HandleFunc("GET /api/events/public/{code}", s.handlePublicEvent)

	mux.HandleFunc("GET /api/calendar/connect", s.handleCalendarConnect)
	mux.HandleFunc("GET /api/calendar/callback", s.handleCalendarCallback)
	mux.HandleFunc("POST /api/calendar/sync", s.handleCalendarSync)
	mux.HandleFunc("POST /api/calendar/disconnect", s.handleCalendarDisconnect)
	mux.HandleFunc("GET /api/calendar/events", s.handleCalendarEvents)

	mux.HandleFunc("GET /api/profile", s.handleGetProfile)
	mux.HandleFunc("PATCH /api/profile", s.handlePatchProfile)

	return mux
}

// Start runs the web server on the given address.
func (s *Server) Start(addr string) error {
	log.Printf("Starting web server at http://%s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the core error taxonomy onto HTTP codes
// without leaking internals.
func writeServiceError(w http.ResponseWriter, err error) {
	var invalidOpts *invite.InvalidOptionsError
	switch {
	case errors.Is(err, db.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "Event not found")
	case errors.Is(err, invite.ErrNotInvited):
		writeError(w, http.StatusForbidden, "This email is not on the guest list")
	case errors.Is(err, invite.ErrVotingDisabled):
		writeError(w, http.StatusForbidden, "Voting is not enabled for this event")
	case errors.Is(err, invite.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, `Status must be either "accepted" or "declined"`)
	case errors.As(err, &invalidOpts):
		writeError(w, http.StatusBadRequest, "Invalid vote options provided")
	case errors.Is(err, gathersync.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "User profile not found")
	case errors.Is(err, gathersync.ErrProfileNotConnected):
		writeError(w, http.StatusBadRequest, "Google Calendar not connected")
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// requireSession resolves the session or writes a 401.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) *SessionUser {
	user, err := s.sessions.GetSession(r)
	if err != nil {
		log.Printf("session lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return nil
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return nil
	}
	return user
}

type createEventRequest struct {
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Date         time.Time           `json:"date"`
	Location     string              `json:"location"`
	Emails       []string            `json:"emails"`
	MaxAttendees *int                `json:"max_attendees"`
	HasVoting    bool                `json:"has_voting"`
	VoteOptions  []models.VoteOption `json:"vote_options"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	user := s.requireSession(w, r)
	if user == nil {
		return
	}

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	event, err := s.invites.CreateEvent(invite.CreateEventParams{
		Title:        req.Title,
		Description:  req.Description,
		Date:         req.Date,
		Location:     req.Location,
		Emails:       req.Emails,
		CreatedBy:    user.ID,
		MaxAttendees: req.MaxAttendees,
		HasVoting:    req.HasVoting,
		VoteOptions:  req.VoteOptions,
	})
	if err != nil {
		if errors.Is(err, invite.ErrCodeCollision) {
			writeError(w, http.StatusInternalServerError, "Unable to generate unique event code. Please try again.")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"event": map[string]interface{}{
			"id":            event.ID,
			"title":         event.Title,
			"description":   event.Description,
			"date":          event.Date,
			"location":      event.Location,
			"event_code":    event.EventCode,
			"email_count":   len(event.Emails),
			"max_attendees": event.MaxAttendees,
			"created_at":    event.CreatedAt,
		},
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if code := r.URL.Query().Get("eventCode"); code != "" {
		s.handleEventByCode(w, r, code)
		return
	}

	user := s.requireSession(w, r)
	if user == nil {
		return
	}

	events, err := s.invites.ListByCreator(user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(events))
	for _, event := range events {
		out = append(out, map[string]interface{}{
			"id":            event.ID,
			"title":         event.Title,
			"description":   event.Description,
			"date":          event.Date,
			"location":      event.Location,
			"event_code":    event.EventCode,
			"email_count":   len(event.Emails),
			"max_attendees": event.MaxAttendees,
			"created_at":    event.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "events": out})
}

// handleEventByCode serves the code lookup on /api/events. The creator
// additionally sees the guest list, responses, and voting breakdown.
func (s *Server) handleEventByCode(w http.ResponseWriter, r *http.Request, code string) {
	event, err := s.invites.GetByCode(code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	user, _ := s.sessions.GetSession(r)
	isCreator := user != nil && event.CreatedBy == user.ID

	out := map[string]interface{}{
		"id":            event.ID,
		"title":         event.Title,
		"description":   event.Description,
		"date":          event.Date,
		"location":      event.Location,
		"event_code":    event.EventCode,
		"email_count":   len(event.Emails),
		"max_attendees": event.MaxAttendees,
		"rsvp_stats":    event.RSVPStats(),
		"has_voting":    event.HasVoting,
		"created_at":    event.CreatedAt,
	}
	if isCreator {
		out["emails"] = event.Emails
		out["rsvps"] = event.RSVPs
		if event.HasVoting {
			out["vote_options"] = event.VoteOptions
			out["voting_stats"] = event.VotingStats()
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "event": out})
}

func (s *Server) handlePublicEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.invites.GetByCode(r.PathValue("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"event": map[string]interface{}{
			"title":        event.Title,
			"description":  event.Description,
			"date":         event.Date,
			"location":     event.Location,
			"event_code":   event.EventCode,
			"has_voting":   event.HasVoting,
			"vote_options": event.VoteOptions,
		},
	})
}

type rsvpRequest struct {
	Email  string `json:"email"`
	Status string `json:"status"`
}

func (s *Server) handleRSVP(w http.ResponseWriter, r *http.Request) {
	var req rsvpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "Event code, email, and status are required")
		return
	}

	event, err := s.invites.RecordRSVP(r.PathValue("code"), req.Email, req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "RSVP submitted successfully",
		"rsvp_stats": event.RSVPStats(),
	})
}

type voteRequest struct {
	Email string              `json:"email"`
	Votes []invite.VoteChoice `json:"votes"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || len(req.Votes) == 0 {
		writeError(w, http.StatusBadRequest, "Event code, email, and votes are required")
		return
	}

	event, err := s.invites.RecordVotes(r.PathValue("code"), req.Email, req.Votes)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Votes submitted successfully",
		"voting_stats": event.VotingStats(),
	})
}

func (s *Server) handleCalendarConnect(w http.ResponseWriter, r *http.Request) {
	user := s.requireSession(w, r)
	if user == nil {
		return
	}

	http.Redirect(w, r, gathersync.AuthCodeURL(s.oauth, user.ID), http.StatusFound)
}

func (s *Server) handleCalendarCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if query.Get("error") != "" {
		http.Redirect(w, r, "/settings?calendar_error=access_denied", http.StatusFound)
		return
	}

	code := query.Get("code")
	userID := query.Get("state")
	if code == "" || userID == "" {
		http.Redirect(w, r, "/settings?calendar_error=invalid_callback", http.StatusFound)
		return
	}

	bundle, err := s.provider.ExchangeCode(r.Context(), code)
	if err != nil {
		log.Printf("calendar callback: %v", err)
		http.Redirect(w, r, "/settings?calendar_error=connection_failed", http.StatusFound)
		return
	}

	// Profile creation is the auth collaborator's edge: bootstrap one
	// from the session if the user connected before ever loading their
	// profile.
	profile, err := db.GetProfile(s.db, userID)
	if err == nil && profile == nil {
		if user, sessErr := s.sessions.GetSession(r); sessErr == nil && user != nil && user.ID == userID {
			err = db.CreateProfile(s.db, &models.Profile{
				UserID: user.ID,
				Email:  user.Email,
				Name:   user.Name,
				Image:  user.Image,
				Calendar: models.CalendarLink{
					SyncEnabled: true,
				},
			})
		}
	}
	if err != nil {
		log.Printf("calendar callback: %v", err)
		http.Redirect(w, r, "/settings?calendar_error=unknown", http.StatusFound)
		return
	}

	if err := s.engine.Connect(r.Context(), userID, bundle); err != nil {
		log.Printf("calendar callback: %v", err)
		http.Redirect(w, r, "/settings?calendar_error=connection_failed", http.StatusFound)
		return
	}

	http.Redirect(w, r, "/settings?calendar_connected=true", http.StatusFound)
}

func (s *Server) handleCalendarSync(w http.ResponseWriter, r *http.Request) {
	user := s.requireSession(w, r)
	if user == nil {
		return
	}

	result := s.engine.Sync(r.Context(), user.ID)
	if !result.Success {
		writeServiceError(w, result.Err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"event_count":     result.EventCount,
		"calendars_count": result.CalendarsCount,
	})
}

func (s *Server) handleCalendarDisconnect(w http.ResponseWriter, r *http.Request) {
	user := s.requireSession(w, r)
	if user == nil {
		return
	}

	if err := s.engine.Disconnect(r.Context(), user.ID); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Google Calendar disconnected"})
}

func (s *Server) handleCalendarEvents(w http.ResponseWriter, r *http.Request) {
	user := s.requireSession(w, r)
	if user == nil {
		return
	}

	profile, err := db.GetProfile(s.db, user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "User profile not found")
		return
	}

	query := r.URL.Query()
	limit := 50
	if v := query.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	opts := db.EventListOptions{Limit: limit}
	if query.Get("upcoming") == "true" {
		opts.Upcoming = true
	} else if query.Get("startDate") != "" && query.Get("endDate") != "" {
		start, startErr := time.Parse(time.RFC3339, query.Get("startDate"))
		end, endErr := time.Parse(time.RFC3339, query.Get("endDate"))
		if startErr != nil || endErr != nil {
			writeError(w, http.StatusBadRequest, "startDate and endDate must be RFC3339 timestamps")
			return
		}
		opts.Start = &start
		opts.End = &end
	}

	events, err := db.ListCalendarEvents(s.db, user.ID, opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	total, err := db.CountCalendarEvents(s.db, user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events":      events,
		"total_count": total,
		"google_calendar": map[string]interface{}{
			"connected":       profile.Calendar.Connected,
			"last_sync_at":    profile.Calendar.LastSyncAt,
			"calendars_count": len(profile.Calendar.Calendars),
		},
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user := s.requireSession(w, r)
	if user == nil {
		return
	}

	profile, err := db.GetProfile(s.db, user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if profile == nil {
		profile = &models.Profile{
			UserID: user.ID,
			Email:  user.Email,
			Name:   user.Name,
			Image:  user.Image,
			Calendar: models.CalendarLink{
				SyncEnabled: true,
			},
		}
		if err := db.CreateProfile(s.db, profile); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	upcoming, err := db.ListCalendarEvents(s.db, user.ID, db.EventListOptions{Limit: 5, Upcoming: true})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	total, err := db.CountCalendarEvents(s.db, user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// Safe projection: tokens never leave the store.
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": profile.UserID,
		"email":   profile.Email,
		"name":    profile.Name,
		"image":   profile.Image,
		"google_calendar": map[string]interface{}{
			"connected":    profile.Calendar.Connected,
			"last_sync_at": profile.Calendar.LastSyncAt,
			"sync_enabled": profile.Calendar.SyncEnabled,
			"calendars":    profile.Calendar.Calendars,
		},
		"preferences":     profile.Preferences,
		"upcoming_events": upcoming,
		"total_events":    total,
		"created_at":      profile.CreatedAt,
		"updated_at":      profile.UpdatedAt,
	})
}

type patchProfileRequest struct {
	GoogleCalendar *struct {
		SyncEnabled *bool `json:"sync_enabled"`
	} `json:"google_calendar"`
	Preferences *struct {
		Timezone                  *string `json:"timezone"`
		SyncFrequency             *string `json:"sync_frequency"`
		DefaultCalendarVisibility *string `json:"default_calendar_visibility"`
		AutoCreateEvents          *bool   `json:"auto_create_events"`
	} `json:"preferences"`
}

func (s *Server) handlePatchProfile(w http.ResponseWriter, r *http.Request) {
	user := s.requireSession(w, r)
	if user == nil {
		return
	}

	var req patchProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	profile, err := db.GetProfile(s.db, user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "User profile not found")
		return
	}

	if req.GoogleCalendar != nil && req.GoogleCalendar.SyncEnabled != nil {
		profile.Calendar.SyncEnabled = *req.GoogleCalendar.SyncEnabled
		if err := db.SaveCalendarLink(s.db, user.ID, &profile.Calendar); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	// Preferences merge field by field: absent fields keep their value.
	if req.Preferences != nil {
		prefs := &profile.Preferences
		if v := req.Preferences.Timezone; v != nil {
			prefs.Timezone = *v
		}
		if v := req.Preferences.SyncFrequency; v != nil {
			if !models.ValidSyncFrequency(*v) {
				writeError(w, http.StatusBadRequest, "Invalid sync frequency")
				return
			}
			prefs.SyncFrequency = *v
		}
		if v := req.Preferences.DefaultCalendarVisibility; v != nil {
			if *v != models.VisibilityPrivate && *v != models.VisibilityPublic {
				writeError(w, http.StatusBadRequest, "Invalid calendar visibility")
				return
			}
			prefs.DefaultCalendarVisibility = *v
		}
		if v := req.Preferences.AutoCreateEvents; v != nil {
			prefs.AutoCreateEvents = *v
		}
		if err := db.SavePreferences(s.db, user.ID, *prefs); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Profile updated successfully"})
}
