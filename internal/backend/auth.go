package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dealsync/internal/services"
)

// Session carries the bearer credentials attached to authenticated calls.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthProvider exposes the current session and a refresh path. The sync
// engine retries a request exactly once after a 401 by refreshing.
type AuthProvider interface {
	Session(ctx context.Context) (Session, error)
	Refresh(ctx context.Context) (Session, error)
}

// StaticSession is an AuthProvider backed by a fixed token; refresh returns
// the same session. Used by tests and by service-role deployments.
type StaticSession struct {
	Token string
}

func (s StaticSession) Session(ctx context.Context) (Session, error) {
	if strings.TrimSpace(s.Token) == "" {
		return Session{}, services.Wrap(services.ErrAuth, "auth", "session", "no access token configured", nil)
	}
	return Session{AccessToken: s.Token}, nil
}

func (s StaticSession) Refresh(ctx context.Context) (Session, error) {
	return s.Session(ctx)
}

// FileSession reads the session the companion app persists after sign-in and
// refreshes it against the backend token endpoint when a call gets a 401.
type FileSession struct {
	Path       string
	AuthURL    string
	AnonKey    string
	HTTPClient *http.Client

	mu      sync.Mutex
	current *Session
}

// NewFileSession constructs a FileSession rooted at the shared session file.
func NewFileSession(path, baseURL, anonKey string) *FileSession {
	return &FileSession{
		Path:       path,
		AuthURL:    strings.TrimRight(baseURL, "/") + "/auth/v1",
		AnonKey:    anonKey,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (f *FileSession) Session(ctx context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current != nil && f.current.AccessToken != "" {
		return *f.current, nil
	}
	session, err := f.load()
	if err != nil {
		return Session{}, err
	}
	f.current = &session
	return session, nil
}

func (f *FileSession) Refresh(ctx context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session := f.current
	if session == nil {
		loaded, err := f.load()
		if err != nil {
			return Session{}, err
		}
		session = &loaded
	}
	if session.RefreshToken == "" {
		return Session{}, services.Wrap(services.ErrAuth, "auth", "refresh", "no refresh token available", nil)
	}

	body, err := json.Marshal(map[string]string{"refresh_token": session.RefreshToken})
	if err != nil {
		return Session{}, services.Wrap(services.ErrAuth, "auth", "refresh", "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.AuthURL+"/token?grant_type=refresh_token", bytes.NewReader(body))
	if err != nil {
		return Session{}, services.Wrap(services.ErrAuth, "auth", "refresh", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.AnonKey != "" {
		req.Header.Set("apikey", f.AnonKey)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return Session{}, services.Classify(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Session{}, services.Wrap(services.ErrAuth, "auth", "refresh", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var refreshed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil {
		return Session{}, services.Wrap(services.ErrAuth, "auth", "refresh", "decode response", err)
	}

	next := Session{
		AccessToken:  refreshed.AccessToken,
		RefreshToken: refreshed.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(refreshed.ExpiresIn) * time.Second),
	}
	f.current = &next
	f.persist(next)
	return next, nil
}

// Clear forgets the cached token and removes the session file. A missing
// file is fine; the user may never have signed in on this machine.
func (f *FileSession) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = nil
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrTransient, "auth", "sign out", "remove session file", err)
	}
	return nil
}

func (f *FileSession) load() (Session, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, services.Wrap(services.ErrAuth, "auth", "session", "not signed in", nil)
		}
		return Session{}, services.Wrap(services.ErrAuth, "auth", "session", "read session file", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, services.Wrap(services.ErrAuth, "auth", "session", "parse session file", err)
	}
	if session.AccessToken == "" {
		return Session{}, services.Wrap(services.ErrAuth, "auth", "session", "session file has no access token", nil)
	}
	return session, nil
}

// persist is best-effort: a failed write means the next refresh repeats work
// but never blocks the call that needed the token.
func (f *FileSession) persist(session Session) {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return
	}
	tmp := f.Path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return
	}
	_ = os.Rename(tmp, f.Path)
}
