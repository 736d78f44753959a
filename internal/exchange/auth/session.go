package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"

	"exchange-core/internal/core"
)

const (
	defaultSessionTTL = time.Hour
	sessionSkew       = 30 * time.Second
)

// Session holds a bearer token obtained from a login call. Expiry is read from
// the token's exp claim when it is a JWT, otherwise TTL after acceptance.
type Session struct {
	mu     sync.RWMutex
	token  string
	expiry time.Time

	TTL time.Duration
	now func() time.Time
}

func NewSession(ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Session{TTL: ttl, now: time.Now}
}

func (s *Session) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Accept stores a freshly issued token.
func (s *Session) Accept(token string) error {
	if token == "" {
		return fmt.Errorf("%w: login returned no token", core.ErrAuthentication)
	}
	expiry := s.clock().Add(s.TTL)
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			expiry = exp.Time
		}
	}
	s.mu.Lock()
	s.token, s.expiry = token, expiry
	s.mu.Unlock()
	return nil
}

// Valid reports whether a token is held and not within the expiry skew.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.clock().Add(sessionSkew).Before(s.expiry)
}

func (s *Session) Token() (string, error) {
	s.mu.RLock()
	token, expiry := s.token, s.expiry
	s.mu.RUnlock()
	if token == "" {
		return "", fmt.Errorf("%w: not logged in", core.ErrAuthentication)
	}
	if !s.clock().Add(sessionSkew).Before(expiry) {
		return "", fmt.Errorf("%w: session expired at %s", core.ErrAuthentication, expiry.UTC().Format(time.RFC3339))
	}
	return token, nil
}

func (s *Session) Expiry() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiry
}

func (s *Session) Clear() {
	s.mu.Lock()
	s.token, s.expiry = "", time.Time{}
	s.mu.Unlock()
}

// Bearer sends the session token as "Authorization: Bearer <token>".
type Bearer struct {
	Session *Session
}

func (Bearer) Required() []string { return []string{CredAPIKey} }

// Ready reports whether a token is on hand without touching the request.
func (b Bearer) Ready() error {
	if b.Session == nil {
		return fmt.Errorf("%w: no session", core.ErrAuthentication)
	}
	_, err := b.Session.Token()
	return err
}

func (b Bearer) Sign(req Request, creds Credentials, _ int64) (Signed, error) {
	if err := creds.Check(b.Required()); err != nil {
		return Signed{}, err
	}
	if b.Session == nil {
		return Signed{}, fmt.Errorf("%w: no session", core.ErrAuthentication)
	}
	token, err := b.Session.Token()
	if err != nil {
		return Signed{}, err
	}
	out, err := req.Unsigned()
	if err != nil {
		return Signed{}, err
	}
	out.Header.Set("Authorization", "Bearer "+token)
	return out, nil
}

// LoginParams is the body of a session login call. A one-time code is added
// when a TOTP secret is configured.
func LoginParams(creds Credentials, now time.Time) (map[string]any, error) {
	if err := creds.Check([]string{CredAPIKey}); err != nil {
		return nil, err
	}
	params := map[string]any{"apiKey": creds.APIKey}
	if creds.TwoFA != "" {
		code, err := totp.GenerateCode(creds.TwoFA, now)
		if err != nil {
			return nil, fmt.Errorf("%w: totp: %v", core.ErrAuthentication, err)
		}
		params["code"] = code
	}
	return params, nil
}
