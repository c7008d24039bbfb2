// ABOUTME: OAuth configuration for the Google Calendar connection flow
// ABOUTME: Builds the oauth2 config from environment and generates per-user consent URLs
package sync

import (
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const defaultAppURL = "http://localhost:8080"

// NewOAuthConfig creates the OAuth2 config for Google Calendar access.
// Client credentials come from GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET;
// the callback is served under APP_URL.
func NewOAuthConfig() *oauth2.Config {
	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		appURL = defaultAppURL
	}

	return &oauth2.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  appURL + "/api/calendar/callback",
		Scopes: []string{
			"https://www.googleapis.com/auth/calendar.readonly",
			"https://www.googleapis.com/auth/userinfo.profile",
			"https://www.googleapis.com/auth/userinfo.email",
		},
		Endpoint: google.Endpoint,
	}
}

// ValidateOAuthConfig checks that client credentials are configured.
func ValidateOAuthConfig(config *oauth2.Config) error {
	if config.ClientID == "" || config.ClientSecret == "" {
		return fmt.Errorf("google OAuth credentials not configured. Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET environment variables")
	}
	return nil
}

// AuthCodeURL builds the consent URL for a user. The user ID rides in
// the state parameter so the callback can identify the user.
func AuthCodeURL(config *oauth2.Config, userID string) string {
	return config.AuthCodeURL(userID,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}
