// Package upstreamtest provides an in-memory fake of the remote account API
// for tests and the e2e suite.
package upstreamtest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"uangku/internal/models"
)

// TokenMode selects where a successful login puts the bearer token.
type TokenMode int

const (
	TokenInHeader TokenMode = iota
	TokenInCookie
	TokenNowhere
)

// Route identifies an endpoint for failure injection.
type Route string

const (
	RouteLogin    Route = "login"
	RouteRegister Route = "register"
	RouteList     Route = "list"
	RouteCreate   Route = "create"
	RouteDelete   Route = "delete"
)

// Request is a recorded call.
type Request struct {
	Method        string
	Path          string
	Authorization string
}

var categoryNames = map[int64]string{
	1: "Food & Beverages", 2: "Transportation", 3: "Entertainment", 4: "Housing",
	5: "Health & Wellness", 6: "Education", 7: "Personal Care", 8: "Shopping",
	9: "Savings & Investments", 10: "Debt Payments", 11: "Loan Payments",
	12: "Insurance", 13: "Gifts & Donations", 14: "Travel", 15: "Miscellaneous",
}

type user struct {
	id       int64
	password string
}

// Server is the fake API. Its handlers live under /api.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	users      map[string]*user
	tokens     map[string]int64
	txs        []models.Transaction
	nextUserID int64
	nextTxID   int64
	tokenMode  TokenMode
	failures   map[Route]int
	requests   []Request
	afterWrite func(*Server)
	now        func() time.Time
}

// New starts a fake API server. Callers must Close it.
func New() *Server {
	s := &Server{
		users:      make(map[string]*user),
		tokens:     make(map[string]int64),
		failures:   make(map[Route]int),
		nextUserID: 1,
		nextTxID:   1,
		now:        time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users/login", s.login)
	mux.HandleFunc("POST /api/users/register", s.register)
	mux.HandleFunc("GET /api/transactions/get/{window}", s.list)
	mux.HandleFunc("POST /api/transactions/create", s.create)
	mux.HandleFunc("DELETE /api/transactions/delete/{id}", s.remove)

	s.Server = httptest.NewServer(s.record(mux))
	return s
}

// NewServer starts a fake API server that is closed when t finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := New()
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the API root to configure clients with.
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

// AddUser registers an account directly and returns its ID.
func (s *Server) AddUser(username, password string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, password)
}

func (s *Server) addUserLocked(username, password string) int64 {
	id := s.nextUserID
	s.nextUserID++
	s.users[username] = &user{id: id, password: password}
	return id
}

// IssueToken returns a valid bearer token for userID without a login call.
func (s *Server) IssueToken(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.tokens[token] = userID
	return token
}

// RevokeTokens invalidates every issued token, as an expiry would.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]int64)
}

// AddTransaction stores a transaction for userID. A zero CreatedAt means now.
func (s *Server) AddTransaction(userID, categoryID, amount int64, description string, createdAt time.Time) models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addTransactionLocked(userID, categoryID, amount, description, createdAt)
}

func (s *Server) addTransactionLocked(userID, categoryID, amount int64, description string, createdAt time.Time) models.Transaction {
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	tx := models.Transaction{
		ID:          s.nextTxID,
		UserID:      userID,
		CategoryID:  categoryID,
		Amount:      amount,
		Description: description,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
		Category: models.Category{
			ID:        categoryID,
			Name:      categoryNames[categoryID],
			CreatedAt: createdAt,
		},
	}
	s.nextTxID++
	s.txs = append(s.txs, tx)
	return tx
}

// Transactions returns userID's transactions, newest first.
func (s *Server) Transactions(userID int64) []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterLocked(userID, time.Time{})
}

// SetTokenMode selects where login responses carry the token.
func (s *Server) SetTokenMode(m TokenMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenMode = m
}

// FailNext makes the next call to route answer with status.
func (s *Server) FailNext(route Route, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = status
}

// AfterWrite registers a hook run after every successful create or delete,
// e.g. to simulate a concurrent write from another tab.
func (s *Server) AfterWrite(fn func(*Server)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterWrite = fn
}

// SetNow overrides the clock used for new transactions and windows.
func (s *Server) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Requests returns every call received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestCount returns the number of calls whose path starts with prefix.
func (s *Server) RequestCount(prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// injected consumes a pending failure for route.
func (s *Server) injected(w http.ResponseWriter, route Route) bool {
	s.mu.Lock()
	status, ok := s.failures[route]
	delete(s.failures, route)
	s.mu.Unlock()
	if !ok {
		return false
	}
	writeJSON(w, status, map[string]any{"status": "error", "message": "injected failure"})
	return true
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, RouteLogin) {
		return
	}
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "invalid body"})
		return
	}

	s.mu.Lock()
	u, ok := s.users[creds.Username]
	if !ok || u.password != creds.Password {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "error", "message": "Invalid username or password"})
		return
	}
	token := uuid.NewString()
	s.tokens[token] = u.id
	mode := s.tokenMode
	s.mu.Unlock()

	switch mode {
	case TokenInHeader:
		w.Header().Set("Authorization", "Bearer "+token)
	case TokenInCookie:
		w.Header().Add("Set-Cookie", "theme=dark; Path=/")
		w.Header().Add("Set-Cookie", "token="+token+"; Path=/; HttpOnly")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   map[string]any{"id": u.id, "username": creds.Username},
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, RouteRegister) {
		return
	}
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "username and password are required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[creds.Username]; exists {
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "message": "Username sudah digunakan"})
		return
	}
	s.addUserLocked(creds.Username, creds.Password)
	writeJSON(w, http.StatusCreated, map[string]any{"status": "success", "message": "User registered"})
}

// authenticate resolves the bearer token or writes a 401.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (int64, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	userID, known := s.tokens[token]
	s.mu.Unlock()
	if !ok || !known {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "error", "message": "Unauthorized"})
		return 0, false
	}
	return userID, true
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok || s.injected(w, RouteList) {
		return
	}
	window, err := models.ParseWindow(r.PathValue("window"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "error", "message": "unknown window"})
		return
	}

	s.mu.Lock()
	txs := s.filterLocked(userID, windowStart(s.now(), window))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": txs})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok || s.injected(w, RouteCreate) {
		return
	}
	var in models.NewTransaction
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "invalid body"})
		return
	}
	if _, known := categoryNames[in.CategoryID]; !known || in.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "invalid transaction"})
		return
	}

	tx := s.AddTransaction(userID, in.CategoryID, in.Amount, in.Description, time.Time{})
	s.runAfterWrite()
	writeJSON(w, http.StatusCreated, map[string]any{"status": "success", "data": tx})
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok || s.injected(w, RouteDelete) {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "invalid id"})
		return
	}

	s.mu.Lock()
	found := false
	for i, tx := range s.txs {
		if tx.ID == id && tx.UserID == userID {
			s.txs = append(s.txs[:i], s.txs[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "error", "message": "Transaction not found"})
		return
	}
	s.runAfterWrite()
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Transaction deleted"})
}

func (s *Server) runAfterWrite() {
	s.mu.Lock()
	fn := s.afterWrite
	s.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (s *Server) filterLocked(userID int64, since time.Time) []models.Transaction {
	out := []models.Transaction{}
	for _, tx := range s.txs {
		if tx.UserID == userID && !tx.CreatedAt.Before(since) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// windowStart is the inclusive lower bound of a window: start of today,
// start of the day six days ago, or the first of the month.
func windowStart(now time.Time, w models.Window) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch w {
	case models.WindowDay:
		return today
	case models.WindowWeek:
		return today.AddDate(0, 0, -6)
	default:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
