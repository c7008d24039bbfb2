// ABOUTME: Calendar provider contract and its Google Calendar implementation
// ABOUTME: Covers token exchange, refresh, calendar listing, and windowed event fetches
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/harperreed/gather/models"
)

// Credential errors. All of them are fatal to the sync pass they occur
// in and surface to the user as "reconnect required".
var (
	ErrProfileNotFound       = errors.New("profile not found")
	ErrProfileNotConnected   = errors.New("google calendar not connected")
	ErrTokenExpiredNoRefresh = errors.New("access token expired and no refresh token available")
	ErrTokenExchangeFailed   = errors.New("failed to obtain access token")
	ErrTokenRefreshFailed    = errors.New("failed to refresh access token")
)

// TokenBundle is what a code exchange or refresh yields.
type TokenBundle struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Scope        string
}

// Credentials is the in-memory credential set for one provider call.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       *time.Time
}

// Provider is the remote calendar capability. ListCalendars excludes
// hidden and deleted calendars; ListEvents returns single expanded
// instances ordered by start time ascending, excluding deleted events.
type Provider interface {
	ExchangeCode(ctx context.Context, code string) (*TokenBundle, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error)
	ListCalendars(ctx context.Context, creds Credentials) ([]models.CalendarInfo, error)
	ListEvents(ctx context.Context, creds Credentials, calendarID string, windowStart, windowEnd time.Time, maxResults int64) ([]models.CalendarEvent, error)
}

// GoogleProvider implements Provider against the Google Calendar API.
// It is a constructed value carrying only the OAuth config; per-call
// credentials are passed in, never stored.
type GoogleProvider struct {
	config *oauth2.Config
}

func NewGoogleProvider(config *oauth2.Config) *GoogleProvider {
	return &GoogleProvider{config: config}
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*TokenBundle, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	if token.AccessToken == "" {
		return nil, ErrTokenExchangeFailed
	}

	bundle := &TokenBundle{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		bundle.ExpiresAt = &expiry
	}
	if scope, ok := token.Extra("scope").(string); ok {
		bundle.Scope = scope
	}

	return bundle, nil
}

func (p *GoogleProvider) Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error) {
	source := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRefreshFailed, err)
	}
	if token.AccessToken == "" {
		return nil, ErrTokenRefreshFailed
	}

	bundle := &TokenBundle{AccessToken: token.AccessToken}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		bundle.ExpiresAt = &expiry
	}

	return bundle, nil
}

func (p *GoogleProvider) service(ctx context.Context, creds Credentials) (*calendar.Service, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
	}
	if creds.Expiry != nil {
		token.Expiry = *creds.Expiry
	}

	client := p.config.Client(ctx, token)

	service, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return service, nil
}

func (p *GoogleProvider) ListCalendars(ctx context.Context, creds Credentials) ([]models.CalendarInfo, error) {
	service, err := p.service(ctx, creds)
	if err != nil {
		return nil, err
	}

	list, err := service.CalendarList.List().
		ShowHidden(false).
		ShowDeleted(false).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	calendars := make([]models.CalendarInfo, 0, len(list.Items))
	for _, item := range list.Items {
		calendars = append(calendars, mapCalendarEntry(item))
	}

	return calendars, nil
}

// mapCalendarEntry converts a calendar list entry. The wire format
// omits "selected" on many subscribed calendars and the typed client
// cannot tell absence from an explicit false, so every listed,
// non-hidden calendar counts as selected.
func mapCalendarEntry(item *calendar.CalendarListEntry) models.CalendarInfo {
	return models.CalendarInfo{
		ID:              item.Id,
		Summary:         item.Summary,
		Description:     item.Description,
		TimeZone:        item.TimeZone,
		AccessRole:      item.AccessRole,
		Primary:         item.Primary,
		Selected:        true,
		BackgroundColor: item.BackgroundColor,
		ForegroundColor: item.ForegroundColor,
	}
}

func (p *GoogleProvider) ListEvents(ctx context.Context, creds Credentials, calendarID string, windowStart, windowEnd time.Time, maxResults int64) ([]models.CalendarEvent, error) {
	service, err := p.service(ctx, creds)
	if err != nil {
		return nil, err
	}

	list, err := service.Events.List(calendarID).
		MaxResults(maxResults).
		SingleEvents(true).
		OrderBy("startTime").
		ShowDeleted(false).
		TimeMin(windowStart.Format(time.RFC3339)).
		TimeMax(windowEnd.Format(time.RFC3339)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events for calendar %s: %w", calendarID, err)
	}

	now := time.Now()
	events := make([]models.CalendarEvent, 0, len(list.Items))
	for _, item := range list.Items {
		events = append(events, mapRemoteEvent(item, calendarID, now))
	}

	return events, nil
}

func mapRemoteEvent(item *calendar.Event, calendarID string, syncedAt time.Time) models.CalendarEvent {
	summary := item.Summary
	if summary == "" {
		summary = "No Title"
	}

	event := models.CalendarEvent{
		ID:            models.CachedEventID(calendarID, item.Id),
		Summary:       summary,
		Description:   item.Description,
		Location:      item.Location,
		Status:        item.Status,
		Visibility:    item.Visibility,
		HTMLLink:      item.HtmlLink,
		RemoteEventID: item.Id,
		CalendarID:    calendarID,
		LastSyncAt:    syncedAt,
	}

	if item.Start != nil {
		event.Start = models.EventTime{
			DateTime: item.Start.DateTime,
			Date:     item.Start.Date,
			TimeZone: item.Start.TimeZone,
		}
	}
	if item.End != nil {
		event.End = models.EventTime{
			DateTime: item.End.DateTime,
			Date:     item.End.Date,
			TimeZone: item.End.TimeZone,
		}
	}

	for _, attendee := range item.Attendees {
		event.Attendees = append(event.Attendees, models.Attendee{
			Email:          attendee.Email,
			DisplayName:    attendee.DisplayName,
			ResponseStatus: attendee.ResponseStatus,
		})
	}

	return event
}
