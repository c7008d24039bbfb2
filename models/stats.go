// ABOUTME: RSVP and voting statistics computed over invitation events
// ABOUTME: Also generates the 6-character alphanumeric event codes
package models

import (
	"math"
	"math/rand"
	"regexp"
)

const eventCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// EventCodeLength is the fixed length of a join code.
const EventCodeLength = 6

var eventCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// GenerateEventCode returns a random 6-character uppercase alphanumeric
// join code. Uniqueness is the caller's responsibility.
func GenerateEventCode() string {
	code := make([]byte, EventCodeLength)
	for i := range code {
		code[i] = eventCodeChars[rand.Intn(len(eventCodeChars))]
	}
	return string(code)
}

// ValidEventCode reports whether s is a well-formed join code.
func ValidEventCode(s string) bool {
	return eventCodePattern.MatchString(s)
}

type RSVPStats struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	Accepted     int `json:"accepted"`
	Declined     int `json:"declined"`
	ResponseRate int `json:"response_rate"`
}

// RSVPStats tallies responses against the invite list. Counts are
// derived only from explicit RSVP records: an invitee who never
// responded contributes to Total but to no status bucket, so Pending
// undercounts non-responders. That matches the upstream behavior and is
// deliberately preserved.
func (e *Event) RSVPStats() RSVPStats {
	counts := map[string]int{
		RSVPPending:  0,
		RSVPAccepted: 0,
		RSVPDeclined: 0,
	}
	for _, rsvp := range e.RSVPs {
		if _, ok := counts[rsvp.Status]; ok {
			counts[rsvp.Status]++
		}
	}

	stats := RSVPStats{
		Total:    len(e.Emails),
		Pending:  counts[RSVPPending],
		Accepted: counts[RSVPAccepted],
		Declined: counts[RSVPDeclined],
	}
	if stats.Total > 0 && len(e.RSVPs) > 0 {
		stats.ResponseRate = int(math.Round(float64(len(e.RSVPs)) / float64(stats.Total) * 100))
	}
	return stats
}

type OptionTally struct {
	OptionID string `json:"option_id"`
	Title    string `json:"title"`
	Likes    int    `json:"likes"`
	Dislikes int    `json:"dislikes"`
	Total    int    `json:"total"`
}

type VotingStats struct {
	Options     []OptionTally `json:"options"`
	TotalVoters int           `json:"total_voters"`
	VotingRate  int           `json:"voting_rate"`
}

// VotingStats tallies likes and dislikes per option across all
// submitted vote records. Every configured option gets a row, including
// options nobody voted on.
func (e *Event) VotingStats() VotingStats {
	tallies := make([]OptionTally, len(e.VoteOptions))
	index := make(map[string]int, len(e.VoteOptions))
	for i, opt := range e.VoteOptions {
		tallies[i] = OptionTally{OptionID: opt.ID, Title: opt.Title}
		index[opt.ID] = i
	}

	for _, record := range e.Votes {
		for optionID, kind := range record.Choices {
			i, ok := index[optionID]
			if !ok {
				continue
			}
			switch kind {
			case VoteLike:
				tallies[i].Likes++
			case VoteDislike:
				tallies[i].Dislikes++
			default:
				continue
			}
			tallies[i].Total++
		}
	}

	stats := VotingStats{
		Options:     tallies,
		TotalVoters: len(e.Votes),
	}
	if len(e.Emails) > 0 {
		stats.VotingRate = int(math.Round(float64(len(e.Votes)) / float64(len(e.Emails)) * 100))
	}
	return stats
}
