package server

import (
	cryptorand "crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"maps"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

const (
	// SessionCookieName is the cookie carrying the login session token.
	SessionCookieName = "noisesense_session"
	sessionDuration   = 24 * time.Hour
	csrfTokenDuration = 10 * time.Minute
)

// tokenStore holds random tokens until they expire. It is safe for concurrent use.
type tokenStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	ttl    time.Duration
}

func newTokenStore(ttl time.Duration) *tokenStore {
	return &tokenStore{tokens: make(map[string]time.Time), ttl: ttl}
}

// issue returns a new token, or "" if the system random source failed.
func (s *tokenStore) issue() string {
	token := generateToken()
	if token == "" {
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	// Sweep expired tokens now and then instead of running a janitor.
	if rand.IntN(10) == 0 {
		maps.DeleteFunc(s.tokens, func(_ string, exp time.Time) bool {
			return now.After(exp)
		})
	}
	s.tokens[token] = now.Add(s.ttl)
	return token
}

// check reports whether token is live; consume removes it either way.
func (s *tokenStore) check(token string, consume bool) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.tokens[token]
	if !ok {
		return false
	}
	live := time.Now().Before(exp)
	if consume || !live {
		delete(s.tokens, token)
	}
	return live
}

func (s *tokenStore) revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// generateToken returns a cryptographically secure random token.
func generateToken() string {
	b := make([]byte, 32)
	if _, err := cryptorand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

// SessionManager manages login sessions and single-use CSRF tokens.
type SessionManager struct {
	sessions *tokenStore
	csrf     *tokenStore
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: newTokenStore(sessionDuration),
		csrf:     newTokenStore(csrfTokenDuration),
	}
}

// Create creates a new session and returns the token.
func (sm *SessionManager) Create() string {
	return sm.sessions.issue()
}

// Validate reports whether a session token is valid.
func (sm *SessionManager) Validate(token string) bool {
	return sm.sessions.check(token, false)
}

// Delete removes a session token.
func (sm *SessionManager) Delete(token string) {
	sm.sessions.revoke(token)
}

// Authenticated reports whether r carries a valid session cookie.
func (sm *SessionManager) Authenticated(r *http.Request) bool {
	cookie, err := r.Cookie(SessionCookieName)
	return err == nil && sm.Validate(cookie.Value)
}

// AuthMiddleware returns middleware that requires a valid session cookie.
// Unauthenticated requests are redirected to /login.
func (sm *SessionManager) AuthMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if sm.Authenticated(r) {
				next(w, r)
				return
			}
			http.Redirect(w, r, "/login", http.StatusFound)
		}
	}
}

// setSessionCookie sets or clears the session cookie.
func setSessionCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// Login reports whether login succeeded and creates a session if valid.
func (sm *SessionManager) Login(w http.ResponseWriter, r *http.Request, username, password, configUser, configPass string) bool {
	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(configUser)) == 1
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(configPass)) == 1
	if !userMatch || !passMatch {
		return false
	}

	token := sm.Create()
	if token == "" {
		return false
	}

	setSessionCookie(w, r, token, int(sessionDuration.Seconds()))
	return true
}

// Logout clears the session cookie and deletes the session.
func (sm *SessionManager) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		sm.Delete(cookie.Value)
	}
	setSessionCookie(w, r, "", -1)
}

// CreateCSRFToken generates a new CSRF token.
func (sm *SessionManager) CreateCSRFToken() string {
	return sm.csrf.issue()
}

// ValidateCSRFToken reports whether a CSRF token is valid and removes it.
func (sm *SessionManager) ValidateCSRFToken(token string) bool {
	return sm.csrf.check(token, true)
}
