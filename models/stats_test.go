// ABOUTME: Tests for RSVP/voting statistics and event code generation
// ABOUTME: Pins the explicit-pending counting behavior and the rate formulas
package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEventCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		code := GenerateEventCode()
		require.True(t, ValidEventCode(code), "code %q should match ^[A-Z0-9]{6}$", code)
		assert.False(t, seen[code], "code %q generated twice", code)
		seen[code] = true
	}
	assert.Len(t, seen, 10)
}

func TestValidEventCode(t *testing.T) {
	assert.True(t, ValidEventCode("ABC123"))
	assert.False(t, ValidEventCode("abc123"))
	assert.False(t, ValidEventCode("ABC12"))
	assert.False(t, ValidEventCode("ABC1234"))
	assert.False(t, ValidEventCode("ABC-12"))
}

func TestRSVPStatsScenario(t *testing.T) {
	now := time.Now()
	event := &Event{
		Emails: []string{"a@x.com", "b@x.com"},
		RSVPs: map[string]RSVP{
			"a@x.com": {Status: RSVPAccepted, RespondedAt: &now},
		},
	}

	stats := event.RSVPStats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Accepted)
	assert.Equal(t, 0, stats.Declined)
	assert.Equal(t, 50, stats.ResponseRate)
	// b@x.com never responded: they count into Total but not into
	// Pending, which only reflects explicit pending records.
	assert.Equal(t, 0, stats.Pending)
}

func TestRSVPStatsPendingOnlyExplicit(t *testing.T) {
	event := &Event{
		Emails: []string{"a@x.com", "b@x.com", "c@x.com"},
		RSVPs: map[string]RSVP{
			"a@x.com": {Status: RSVPPending},
		},
	}

	stats := event.RSVPStats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Pending, "only the explicit pending record counts")
	assert.Equal(t, 33, stats.ResponseRate)
}

func TestRSVPStatsNoInvitees(t *testing.T) {
	event := &Event{}
	stats := event.RSVPStats()
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0, stats.ResponseRate)
}

func TestVotingStatsScenario(t *testing.T) {
	event := &Event{
		Emails:    []string{"g1@x.com", "g2@x.com", "g3@x.com"},
		HasVoting: true,
		VoteOptions: []VoteOption{
			{ID: "O1", Title: "Option one"},
			{ID: "O2", Title: "Option two"},
		},
		Votes: map[string]VoteRecord{
			"g1@x.com": {Choices: map[string]string{"O1": VoteLike, "O2": VoteDislike}},
			"g2@x.com": {Choices: map[string]string{"O1": VoteLike}},
		},
	}

	stats := event.VotingStats()
	require.Len(t, stats.Options, 2)

	byID := make(map[string]OptionTally)
	for _, tally := range stats.Options {
		byID[tally.OptionID] = tally
	}

	assert.Equal(t, OptionTally{OptionID: "O1", Title: "Option one", Likes: 2, Dislikes: 0, Total: 2}, byID["O1"])
	assert.Equal(t, OptionTally{OptionID: "O2", Title: "Option two", Likes: 0, Dislikes: 1, Total: 1}, byID["O2"])
	assert.Equal(t, 2, stats.TotalVoters)
	assert.Equal(t, 67, stats.VotingRate)
}

func TestVotingStatsIncludesUnvotedOptions(t *testing.T) {
	event := &Event{
		Emails:      []string{"a@x.com"},
		HasVoting:   true,
		VoteOptions: []VoteOption{{ID: "O1", Title: "Lonely"}},
	}

	stats := event.VotingStats()
	require.Len(t, stats.Options, 1)
	assert.Equal(t, 0, stats.Options[0].Likes)
	assert.Equal(t, 0, stats.Options[0].Dislikes)
	assert.Equal(t, 0, stats.TotalVoters)
	assert.Equal(t, 0, stats.VotingRate)
}

func TestVotingStatsNoInvitees(t *testing.T) {
	event := &Event{HasVoting: true}
	stats := event.VotingStats()
	assert.Equal(t, 0, stats.VotingRate)
}

func TestVotingStatsIgnoresUnknownOptions(t *testing.T) {
	// A stale choice referencing a removed option must not panic or
	// skew tallies.
	event := &Event{
		Emails:      []string{"a@x.com"},
		HasVoting:   true,
		VoteOptions: []VoteOption{{ID: "O1", Title: "Kept"}},
		Votes: map[string]VoteRecord{
			"a@x.com": {Choices: map[string]string{"gone": VoteLike, "O1": VoteLike}},
		},
	}

	stats := event.VotingStats()
	require.Len(t, stats.Options, 1)
	assert.Equal(t, 1, stats.Options[0].Likes)
}
