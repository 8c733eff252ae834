package mounts

import (
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Credentials is a short-lived holder for a username/password pair.
// It must be destroyed as soon as the invocation that needs it returns.
type Credentials struct {
	mu        sync.Mutex
	username  string
	password  []byte
	destroyed bool
}

// NewCredentials takes ownership of password. Destroy zeroes the caller's
// backing array, so callers must not reuse it.
func NewCredentials(username string, password []byte) *Credentials {
	return &Credentials{username: username, password: password}
}

// Username returns the account name, including any domain prefix.
func (c *Credentials) Username() string {
	if c == nil {
		return ""
	}
	return c.username
}

// Account splits DOMAIN\user or user@DOMAIN into its parts.
func (c *Credentials) Account() (user, domain string) {
	u := c.Username()
	if i := strings.IndexByte(u, '\\'); i > 0 {
		return u[i+1:], u[:i]
	}
	if i := strings.LastIndexByte(u, '@'); i > 0 {
		return u[:i], u[i+1:]
	}
	return u, ""
}

// HasPassword reports whether a non-empty password is still held.
func (c *Credentials) HasPassword() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.destroyed && len(c.password) > 0
}

// PasswordReader streams the password bytes. Reads after Destroy
// return io.EOF.
func (c *Credentials) PasswordReader() io.Reader {
	return &passwordReader{c: c}
}

// Destroy zeroes the password bytes. Safe to call more than once.
func (c *Credentials) Destroy() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.password)
	c.password = nil
	c.destroyed = true
}

// Destroyed reports whether Destroy has run.
func (c *Credentials) Destroyed() bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *Credentials) String() string {
	return "Credentials{username: " + c.Username() + ", password: <redacted>}"
}

// MarshalJSON refuses to serialize credentials.
func (c *Credentials) MarshalJSON() ([]byte, error) {
	return nil, errors.New("credentials are not serializable")
}

// MarshalZerologObject logs the username only.
func (c *Credentials) MarshalZerologObject(e *zerolog.Event) {
	e.Str("username", c.Username()).Bool("password_set", c.HasPassword())
}

type passwordReader struct {
	c   *Credentials
	off int
}

func (r *passwordReader) Read(p []byte) (int, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.destroyed || r.off >= len(r.c.password) {
		return 0, io.EOF
	}
	n := copy(p, r.c.password[r.off:])
	r.off += n
	return n, nil
}
