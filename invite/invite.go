// ABOUTME: Invitation event service: creation, RSVP recording, and vote recording
// ABOUTME: Enforces guest-list membership, code uniqueness, and all-or-nothing vote validation
package invite

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/gather/db"
	"github.com/harperreed/gather/models"
)

var (
	ErrNotInvited     = errors.New("this email is not on the guest list")
	ErrInvalidStatus  = errors.New("status must be either accepted or declined")
	ErrVotingDisabled = errors.New("voting is not enabled for this event")
	ErrCodeCollision  = errors.New("unable to generate unique event code")
)

// InvalidOptionsError reports vote submissions referencing option IDs
// the event does not have. The submission is rejected whole.
type InvalidOptionsError struct {
	OptionIDs []string
}

func (e *InvalidOptionsError) Error() string {
	return fmt.Sprintf("invalid vote options: %s", strings.Join(e.OptionIDs, ", "))
}

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

const maxCodeAttempts = 10

// Service exposes invitation event operations over the store.
type Service struct {
	db *sql.DB
}

func NewService(database *sql.DB) *Service {
	return &Service{db: database}
}

// CreateEventParams carries organizer input for a new event.
type CreateEventParams struct {
	Title        string
	Description  string
	Date         time.Time
	Location     string
	Emails       []string
	CreatedBy    string
	MaxAttendees *int
	HasVoting    bool
	VoteOptions  []models.VoteOption
}

// CreateEvent validates organizer input, normalizes and dedupes the
// guest list, and persists the event under a freshly generated unique
// join code (bounded retry on collision).
func (s *Service) CreateEvent(params CreateEventParams) (*models.Event, error) {
	if params.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if params.Date.IsZero() {
		return nil, fmt.Errorf("date is required")
	}
	if len(params.Emails) == 0 {
		return nil, fmt.Errorf("at least one email is required")
	}
	if params.CreatedBy == "" {
		return nil, fmt.Errorf("creator is required")
	}

	var invalid []string
	seen := make(map[string]bool)
	var emails []string
	for _, email := range params.Emails {
		norm := models.NormalizeEmail(email)
		if !emailPattern.MatchString(norm) {
			invalid = append(invalid, email)
			continue
		}
		if !seen[norm] {
			seen[norm] = true
			emails = append(emails, norm)
		}
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid email addresses: %s", strings.Join(invalid, ", "))
	}
	sort.Strings(emails)

	if params.HasVoting && len(params.VoteOptions) == 0 {
		return nil, fmt.Errorf("voting requires at least one option")
	}
	options := make([]models.VoteOption, len(params.VoteOptions))
	copy(options, params.VoteOptions)
	for i := range options {
		if options[i].ID == "" {
			options[i].ID = uuid.New().String()
		}
		if options[i].Title == "" {
			return nil, fmt.Errorf("vote option title is required")
		}
	}
	if !params.HasVoting {
		options = nil
	}

	code, err := s.generateUniqueCode()
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		Title:        params.Title,
		Description:  params.Description,
		Date:         params.Date,
		Location:     params.Location,
		Emails:       emails,
		EventCode:    code,
		CreatedBy:    params.CreatedBy,
		MaxAttendees: params.MaxAttendees,
		HasVoting:    params.HasVoting,
		VoteOptions:  options,
		RSVPs:        make(map[string]models.RSVP),
		Votes:        make(map[string]models.VoteRecord),
	}

	if err := db.CreateEvent(s.db, event); err != nil {
		return nil, err
	}

	return event, nil
}

func (s *Service) generateUniqueCode() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := models.GenerateEventCode()
		exists, err := db.EventCodeExists(s.db, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrCodeCollision
}

// GetByCode loads an event aggregate by join code.
func (s *Service) GetByCode(code string) (*models.Event, error) {
	return db.GetEventByCode(s.db, code)
}

// ListByCreator returns events created by a user, newest first.
func (s *Service) ListByCreator(userID string) ([]models.Event, error) {
	return db.ListEventsByCreator(s.db, userID)
}

// RecordRSVP upserts a guest's RSVP. Only accepted and declined are
// valid submissions. Resubmitting the same status refreshes the
// timestamp without changing the logical state.
func (s *Service) RecordRSVP(eventCode, email, status string) (*models.Event, error) {
	if status != models.RSVPAccepted && status != models.RSVPDeclined {
		return nil, ErrInvalidStatus
	}

	event, err := db.GetEventByCode(s.db, eventCode)
	if err != nil {
		return nil, err
	}

	norm := models.NormalizeEmail(email)
	if !event.IsInvited(norm) {
		return nil, ErrNotInvited
	}

	now := time.Now()
	if err := db.UpsertRSVP(s.db, event.ID, norm, status, now); err != nil {
		return nil, err
	}

	event.RSVPs[norm] = models.RSVP{Status: status, RespondedAt: &now}
	return event, nil
}

// VoteChoice is one guest's verdict on one option.
type VoteChoice struct {
	OptionID string `json:"option_id"`
	Vote     string `json:"vote"`
}

// RecordVotes replaces a guest's full vote set. Every submitted option
// ID must belong to the event: on any unknown ID the whole submission
// is rejected and the guest's prior record stays untouched.
func (s *Service) RecordVotes(eventCode, email string, votes []VoteChoice) (*models.Event, error) {
	event, err := db.GetEventByCode(s.db, eventCode)
	if err != nil {
		return nil, err
	}

	if !event.HasVoting {
		return nil, ErrVotingDisabled
	}

	norm := models.NormalizeEmail(email)
	if !event.IsInvited(norm) {
		return nil, ErrNotInvited
	}

	var badIDs []string
	choices := make(map[string]string, len(votes))
	for _, vote := range votes {
		if !event.HasVoteOption(vote.OptionID) {
			badIDs = append(badIDs, vote.OptionID)
			continue
		}
		if vote.Vote != models.VoteLike && vote.Vote != models.VoteDislike {
			return nil, fmt.Errorf("vote must be either %s or %s", models.VoteLike, models.VoteDislike)
		}
		choices[vote.OptionID] = vote.Vote
	}
	if len(badIDs) > 0 {
		return nil, &InvalidOptionsError{OptionIDs: badIDs}
	}

	now := time.Now()
	if err := db.ReplaceVotes(s.db, event.ID, norm, choices, now); err != nil {
		return nil, err
	}

	event.Votes[norm] = models.VoteRecord{Choices: choices, VotedAt: now}
	return event, nil
}
