// Package auth builds signed request descriptors. A Signer turns a logical
// request, the caller's credentials and a nonce into the concrete URL, headers
// and body to send. Signing never touches the network.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"exchange-core/internal/core"
)

// Credential names used in Required lists and error messages.
const (
	CredAPIKey   = "apiKey"
	CredSecret   = "secret"
	CredPassword = "password"
	CredUID      = "uid"
	CredTwoFA    = "twofa"
)

type Credentials struct {
	APIKey   string
	Secret   string
	Password string
	UID      string
	// TwoFA is a base32 TOTP secret used to generate login codes.
	TwoFA string
}

func (c Credentials) value(name string) string {
	switch name {
	case CredAPIKey:
		return c.APIKey
	case CredSecret:
		return c.Secret
	case CredPassword:
		return c.Password
	case CredUID:
		return c.UID
	case CredTwoFA:
		return c.TwoFA
	}
	return ""
}

// Check fails with core.ErrAuthentication naming the first missing credential.
func (c Credentials) Check(required []string) error {
	for _, name := range required {
		if strings.TrimSpace(c.value(name)) == "" {
			return fmt.Errorf("%w: requires %q credential", core.ErrAuthentication, name)
		}
	}
	return nil
}

// Signed is what gets handed to the transport.
type Signed struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

type Signer interface {
	// Required lists the credentials private calls need.
	Required() []string
	Sign(req Request, creds Credentials, nonce int64) (Signed, error)
}

// Readier is implemented by signers that can tell before dispatch that Sign
// would fail.
type Readier interface {
	Ready() error
}

// Nonce issues strictly increasing millisecond values, even when called
// several times within one millisecond.
type Nonce struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewNonce() *Nonce {
	return &Nonce{now: time.Now}
}

func (n *Nonce) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now
	if n.now != nil {
		now = n.now
	}
	v := now().UnixMilli()
	if v <= n.last {
		v = n.last + 1
	}
	n.last = v
	return v
}

// Last returns the most recently issued value, 0 before the first call.
func (n *Nonce) Last() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

// Public signs nothing. It is used for endpoints that need no credentials.
type Public struct{}

func (Public) Required() []string { return nil }

func (Public) Sign(req Request, _ Credentials, _ int64) (Signed, error) {
	return req.Unsigned()
}
