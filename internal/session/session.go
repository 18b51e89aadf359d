// Package session keeps the authenticated user's session in a signed and
// encrypted cookie. The server holds no session state.
package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"

	"uangku/internal/models"
)

const (
	// DefaultCookieName is the session cookie's name.
	DefaultCookieName = "session"
	// DefaultMaxAge bounds how long an issued cookie is accepted.
	DefaultMaxAge = 24 * time.Hour

	minSecretLen = 32

	KeyToken    = "token"
	KeyUserID   = "userId"
	KeyUsername = "username"
)

var (
	// ErrInvalidSecret is returned when the secret is empty or shorter than 32 bytes.
	ErrInvalidSecret = errors.New("session: secret must be at least 32 bytes")
	// ErrEmptyToken is returned when committing a session without a token.
	ErrEmptyToken = errors.New("session: refusing to commit a session without a token")
	// ErrUnknownKey is returned by Set for keys other than token, userId and username.
	ErrUnknownKey = errors.New("session: unknown key")
)

// Options configures a Store.
type Options struct {
	Secret     string
	CookieName string
	// Secure adds the Secure attribute; set it in production.
	Secure bool
	MaxAge time.Duration
}

// Store encodes and decodes session cookies.
type Store struct {
	codec  *securecookie.SecureCookie
	name   string
	secure bool
}

// New creates a Store. Signing and encryption keys are derived from
// opts.Secret with HKDF-SHA256.
func New(opts Options) (*Store, error) {
	if len(opts.Secret) < minSecretLen {
		return nil, ErrInvalidSecret
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}

	hashKey, err := deriveKey(opts.Secret, "uangku session signing", 64)
	if err != nil {
		return nil, err
	}
	blockKey, err := deriveKey(opts.Secret, "uangku session encryption", 32)
	if err != nil {
		return nil, err
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(opts.MaxAge / time.Second))

	return &Store{codec: codec, name: opts.CookieName, secure: opts.Secure}, nil
}

func deriveKey(secret, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return key, nil
}

// Session is one user's decoded session.
type Session struct {
	data models.SessionData
}

// New returns an empty session.
func (st *Store) New() *Session {
	return &Session{}
}

// Get decodes the request's session cookie. A missing, tampered or expired
// cookie yields an empty session.
func (st *Store) Get(r *http.Request) *Session {
	c, err := r.Cookie(st.name)
	if err != nil {
		return st.New()
	}
	var data models.SessionData
	if err := st.codec.Decode(st.name, c.Value, &data); err != nil {
		return st.New()
	}
	return &Session{data: data}
}

// Commit encodes s and returns the Set-Cookie header value for it.
// The cookie has no Max-Age, so it lives for the browser session.
func (st *Store) Commit(s *Session) (string, error) {
	if s.data.Token == "" {
		return "", ErrEmptyToken
	}
	value, err := st.codec.Encode(st.name, s.data)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	c := &http.Cookie{
		Name:     st.name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
	}
	return c.String(), nil
}

// Destroy returns a Set-Cookie header value that removes the session cookie.
func (st *Store) Destroy() string {
	c := &http.Cookie{
		Name:     st.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
	}
	return c.String()
}

// Set stores one value. token and username take strings; userId takes any
// integer type.
func (s *Session) Set(key string, value any) error {
	switch key {
	case KeyToken, KeyUsername:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("session: %s must be a string, got %T", key, value)
		}
		if key == KeyToken {
			s.data.Token = v
		} else {
			s.data.Username = v
		}
	case KeyUserID:
		switch v := value.(type) {
		case int64:
			s.data.UserID = v
		case int:
			s.data.UserID = int64(v)
		default:
			return fmt.Errorf("session: %s must be an integer, got %T", key, value)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return nil
}

func (s *Session) Token() string    { return s.data.Token }
func (s *Session) UserID() int64    { return s.data.UserID }
func (s *Session) Username() string { return s.data.Username }

// Data returns a copy of the session contents.
func (s *Session) Data() models.SessionData {
	return s.data
}
