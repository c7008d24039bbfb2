// ABOUTME: Header-based session store for deployments behind an authenticating proxy
// ABOUTME: Trusts identity headers injected by the upstream auth layer
package web

import "net/http"

// HeaderSessionStore resolves sessions from identity headers set by a
// trusted reverse proxy (the auth provider terminates login upstream).
// Never expose it directly to untrusted clients.
type HeaderSessionStore struct{}

func (HeaderSessionStore) GetSession(r *http.Request) (*SessionUser, error) {
	id := r.Header.Get("X-User-Id")
	if id == "" {
		return nil, nil
	}

	return &SessionUser{
		ID:    id,
		Email: r.Header.Get("X-User-Email"),
		Name:  r.Header.Get("X-User-Name"),
		Image: r.Header.Get("X-User-Image"),
	}, nil
}
