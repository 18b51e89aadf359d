package models

import (
	"fmt"
	"time"
)

// Credentials are the username and password submitted on login or registration.
// They are never persisted.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SessionData is what the session cookie carries for an authenticated user.
type SessionData struct {
	Token    string `json:"token"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// Authenticated reports whether the session holds a bearer token.
func (s SessionData) Authenticated() bool {
	return s.Token != ""
}

// Category is the category embedded in a transaction by the remote API.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Transaction represents a spending record owned by the remote API.
// Amount is in minor currency units (rupiah have none, so whole rupiah).
type Transaction struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	CategoryID  int64     `json:"category_id"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Category    Category  `json:"category"`
}

// NewTransaction is the body sent to create a transaction.
type NewTransaction struct {
	Amount      int64  `json:"amount" validate:"gt=0"`
	CategoryID  int64  `json:"category_id" validate:"gte=1"`
	Description string `json:"description" validate:"required"`
}

// Window is a time window the remote API filters transactions by.
type Window string

const (
	WindowDay   Window = "day"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// Windows lists every window in display order.
var Windows = []Window{WindowDay, WindowWeek, WindowMonth}

// ParseWindow validates a window name.
func ParseWindow(s string) (Window, error) {
	for _, w := range Windows {
		if string(w) == s {
			return w, nil
		}
	}
	return "", fmt.Errorf("unknown window %q", s)
}

// Snapshot holds the three window lists fetched together from the remote API.
type Snapshot struct {
	Day       []Transaction `json:"day"`
	Week      []Transaction `json:"week"`
	Month     []Transaction `json:"month"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// Window returns the list for w.
func (s *Snapshot) Window(w Window) []Transaction {
	switch w {
	case WindowDay:
		return s.Day
	case WindowWeek:
		return s.Week
	case WindowMonth:
		return s.Month
	}
	return nil
}

// SetWindow replaces the list for w.
func (s *Snapshot) SetWindow(w Window, txs []Transaction) {
	switch w {
	case WindowDay:
		s.Day = txs
	case WindowWeek:
		s.Week = txs
	case WindowMonth:
		s.Month = txs
	}
}
