// ABOUTME: Tests for the invitation event service
// ABOUTME: Covers creation validation, guest-list enforcement, RSVP upserts, and vote atomicity
package invite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/gather/db"
	"github.com/harperreed/gather/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	return NewService(database)
}

func validParams() CreateEventParams {
	return CreateEventParams{
		Title:     "Team Offsite",
		Date:      time.Now().AddDate(0, 1, 0),
		Location:  "Chicago",
		Emails:    []string{"alice@example.com", "bob@example.com"},
		CreatedBy: "user-1",
	}
}

func TestCreateEventValidation(t *testing.T) {
	service := newTestService(t)

	missingTitle := validParams()
	missingTitle.Title = ""
	_, err := service.CreateEvent(missingTitle)
	assert.Error(t, err)

	missingDate := validParams()
	missingDate.Date = time.Time{}
	_, err = service.CreateEvent(missingDate)
	assert.Error(t, err)

	missingEmails := validParams()
	missingEmails.Emails = nil
	_, err = service.CreateEvent(missingEmails)
	assert.Error(t, err)

	missingCreator := validParams()
	missingCreator.CreatedBy = ""
	_, err = service.CreateEvent(missingCreator)
	assert.Error(t, err)

	badEmail := validParams()
	badEmail.Emails = []string{"alice@example.com", "not-an-email"}
	_, err = service.CreateEvent(badEmail)
	assert.ErrorContains(t, err, "not-an-email")

	votingNoOptions := validParams()
	votingNoOptions.HasVoting = true
	_, err = service.CreateEvent(votingNoOptions)
	assert.Error(t, err)
}

func TestCreateEventNormalizesGuestList(t *testing.T) {
	service := newTestService(t)

	params := validParams()
	params.Emails = []string{"  Bob@Example.COM ", "alice@example.com", "bob@example.com"}

	event, err := service.CreateEvent(params)
	require.NoError(t, err)

	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, event.Emails)
	assert.True(t, models.ValidEventCode(event.EventCode))
	assert.NotEqual(t, uuid.Nil, event.ID)
}

func TestCreateEventGeneratesDistinctCodes(t *testing.T) {
	service := newTestService(t)

	codes := make(map[string]bool)
	for i := 0; i < 5; i++ {
		event, err := service.CreateEvent(validParams())
		require.NoError(t, err)
		assert.False(t, codes[event.EventCode], "code %s reused", event.EventCode)
		codes[event.EventCode] = true
	}
}

func TestCreateEventAssignsVoteOptionIDs(t *testing.T) {
	service := newTestService(t)

	params := validParams()
	params.HasVoting = true
	params.VoteOptions = []models.VoteOption{
		{Title: "Pizza"},
		{ID: "opt-sushi", Title: "Sushi"},
	}

	event, err := service.CreateEvent(params)
	require.NoError(t, err)
	require.Len(t, event.VoteOptions, 2)
	assert.NotEmpty(t, event.VoteOptions[0].ID)
	assert.Equal(t, "opt-sushi", event.VoteOptions[1].ID)
}

func TestRecordRSVP(t *testing.T) {
	service := newTestService(t)

	event, err := service.CreateEvent(validParams())
	require.NoError(t, err)

	updated, err := service.RecordRSVP(event.EventCode, "Alice@Example.com", models.RSVPAccepted)
	require.NoError(t, err)

	rsvp, ok := updated.RSVPs["alice@example.com"]
	require.True(t, ok)
	assert.Equal(t, models.RSVPAccepted, rsvp.Status)
	require.NotNil(t, rsvp.RespondedAt)

	// Changing the answer overwrites, it does not add.
	updated, err = service.RecordRSVP(event.EventCode, "alice@example.com", models.RSVPDeclined)
	require.NoError(t, err)
	assert.Len(t, updated.RSVPs, 1)
	assert.Equal(t, models.RSVPDeclined, updated.RSVPs["alice@example.com"].Status)

	stored, err := service.GetByCode(event.EventCode)
	require.NoError(t, err)
	assert.Equal(t, models.RSVPDeclined, stored.RSVPs["alice@example.com"].Status)
}

func TestRecordRSVPRejectsInvalidStatus(t *testing.T) {
	service := newTestService(t)

	event, err := service.CreateEvent(validParams())
	require.NoError(t, err)

	_, err = service.RecordRSVP(event.EventCode, "alice@example.com", models.RSVPPending)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = service.RecordRSVP(event.EventCode, "alice@example.com", "maybe")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestRecordRSVPRejectsUninvited(t *testing.T) {
	service := newTestService(t)

	event, err := service.CreateEvent(validParams())
	require.NoError(t, err)

	_, err = service.RecordRSVP(event.EventCode, "mallory@example.com", models.RSVPAccepted)
	assert.ErrorIs(t, err, ErrNotInvited)
}

func TestRecordRSVPUnknownCode(t *testing.T) {
	service := newTestService(t)

	_, err := service.RecordRSVP("ZZZZZZ", "alice@example.com", models.RSVPAccepted)
	assert.ErrorIs(t, err, db.ErrEventNotFound)
}

func votingEvent(t *testing.T, service *Service) *models.Event {
	t.Helper()

	params := validParams()
	params.HasVoting = true
	params.VoteOptions = []models.VoteOption{
		{ID: "opt-1", Title: "Pizza"},
		{ID: "opt-2", Title: "Sushi"},
	}

	event, err := service.CreateEvent(params)
	require.NoError(t, err)
	return event
}

func TestRecordVotes(t *testing.T) {
	service := newTestService(t)
	event := votingEvent(t, service)

	updated, err := service.RecordVotes(event.EventCode, "alice@example.com", []VoteChoice{
		{OptionID: "opt-1", Vote: models.VoteLike},
		{OptionID: "opt-2", Vote: models.VoteDislike},
	})
	require.NoError(t, err)

	record, ok := updated.Votes["alice@example.com"]
	require.True(t, ok)
	assert.Equal(t, models.VoteLike, record.Choices["opt-1"])
	assert.Equal(t, models.VoteDislike, record.Choices["opt-2"])
}

func TestRecordVotesReplacesPriorRecord(t *testing.T) {
	service := newTestService(t)
	event := votingEvent(t, service)

	_, err := service.RecordVotes(event.EventCode, "alice@example.com", []VoteChoice{
		{OptionID: "opt-1", Vote: models.VoteLike},
		{OptionID: "opt-2", Vote: models.VoteLike},
	})
	require.NoError(t, err)

	// Resubmitting replaces the whole set, not just the named options.
	_, err = service.RecordVotes(event.EventCode, "alice@example.com", []VoteChoice{
		{OptionID: "opt-2", Vote: models.VoteDislike},
	})
	require.NoError(t, err)

	stored, err := service.GetByCode(event.EventCode)
	require.NoError(t, err)

	record := stored.Votes["alice@example.com"]
	assert.Len(t, record.Choices, 1)
	assert.Equal(t, models.VoteDislike, record.Choices["opt-2"])
}

func TestRecordVotesRejectsUnknownOptions(t *testing.T) {
	service := newTestService(t)
	event := votingEvent(t, service)

	_, err := service.RecordVotes(event.EventCode, "alice@example.com", []VoteChoice{
		{OptionID: "opt-1", Vote: models.VoteLike},
	})
	require.NoError(t, err)

	// A submission with any unknown option is rejected whole; the prior
	// record must survive untouched.
	_, err = service.RecordVotes(event.EventCode, "alice@example.com", []VoteChoice{
		{OptionID: "opt-2", Vote: models.VoteLike},
		{OptionID: "opt-bogus", Vote: models.VoteLike},
	})

	var invalidErr *InvalidOptionsError
	require.True(t, errors.As(err, &invalidErr))
	assert.Equal(t, []string{"opt-bogus"}, invalidErr.OptionIDs)

	stored, err := service.GetByCode(event.EventCode)
	require.NoError(t, err)

	record := stored.Votes["alice@example.com"]
	assert.Len(t, record.Choices, 1)
	assert.Equal(t, models.VoteLike, record.Choices["opt-1"])
}

func TestRecordVotesRejectsBadVerdict(t *testing.T) {
	service := newTestService(t)
	event := votingEvent(t, service)

	_, err := service.RecordVotes(event.EventCode, "alice@example.com", []VoteChoice{
		{OptionID: "opt-1", Vote: "meh"},
	})
	assert.Error(t, err)
}

func TestRecordVotesRequiresVoting(t *testing.T) {
	service := newTestService(t)

	event, err := service.CreateEvent(validParams())
	require.NoError(t, err)

	_, err = service.RecordVotes(event.EventCode, "alice@example.com", []VoteChoice{
		{OptionID: "opt-1", Vote: models.VoteLike},
	})
	assert.ErrorIs(t, err, ErrVotingDisabled)
}

func TestRecordVotesRejectsUninvited(t *testing.T) {
	service := newTestService(t)
	event := votingEvent(t, service)

	_, err := service.RecordVotes(event.EventCode, "mallory@example.com", []VoteChoice{
		{OptionID: "opt-1", Vote: models.VoteLike},
	})
	assert.ErrorIs(t, err, ErrNotInvited)
}

func TestListByCreator(t *testing.T) {
	service := newTestService(t)

	first, err := service.CreateEvent(validParams())
	require.NoError(t, err)

	other := validParams()
	other.Title = "Book Club"
	other.CreatedBy = "user-2"
	_, err = service.CreateEvent(other)
	require.NoError(t, err)

	events, err := service.ListByCreator("user-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, first.EventCode, events[0].EventCode)
}
