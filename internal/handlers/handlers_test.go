package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"uangku/internal/auth"
	"uangku/internal/dashboard"
	"uangku/internal/session"
	"uangku/internal/storage"
	"uangku/internal/upstream"
	"uangku/internal/upstream/upstreamtest"
)

const (
	testSecret  = "0123456789abcdef0123456789abcdef"
	templateDir = "../../web/templates"
)

// HandlersTestSuite wires the handlers to real components backed by the
// fake account API.
type HandlersTestSuite struct {
	suite.Suite
	srv      *upstreamtest.Server
	db       *storage.DB
	sessions *session.Store
	h        *Handlers
	router   http.Handler
	userID   int64
}

func (s *HandlersTestSuite) SetupTest() {
	s.srv = upstreamtest.NewServer(s.T())

	db, err := storage.NewDB(":memory:")
	require.NoError(s.T(), err)
	s.db = db

	s.sessions, err = session.New(session.Options{Secret: testSecret})
	require.NoError(s.T(), err)

	client := upstream.NewClient(upstream.Options{BaseURL: s.srv.BaseURL()})
	s.h = NewHandlers(Options{
		Auth:        auth.NewGateway(client, s.sessions, nil),
		Sync:        dashboard.NewController(client, db),
		Sessions:    s.sessions,
		Snapshots:   db,
		TemplateDir: templateDir,
		Location:    time.FixedZone("WIB", 7*60*60),
	})
	s.router = s.newRouter()
	s.userID = s.srv.AddUser("budi", "rahasia")
}

func (s *HandlersTestSuite) TearDownTest() {
	s.db.Close()
}

func (s *HandlersTestSuite) newRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.h.LoginForm)
	r.Post("/", s.h.Login)
	r.Get("/register", s.h.RegisterForm)
	r.Post("/register", s.h.Register)
	r.Post("/logout", s.h.Logout)
	r.Group(func(r chi.Router) {
		r.Use(s.h.AuthMiddleware)
		r.Get("/dashboard", s.h.Dashboard)
		r.Post("/transactions", s.h.CreateTransaction)
		r.Post("/transactions/{id}/delete", s.h.DeleteTransaction)
	})
	return r
}

func (s *HandlersTestSuite) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// login performs a real login and returns the session cookie.
func (s *HandlersTestSuite) login() *http.Cookie {
	rec := s.do(postForm("/", url.Values{"username": {"budi"}, "password": {"rahasia"}}))
	require.Equal(s.T(), http.StatusSeeOther, rec.Code)
	require.Equal(s.T(), "/dashboard", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.Len(s.T(), cookies, 1)
	return cookies[0]
}

func (s *HandlersTestSuite) TestLoginPage() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Contains(s.T(), rec.Body.String(), "Login ke Akun Anda")
	assert.Contains(s.T(), rec.Body.String(), "<html")
}

func (s *HandlersTestSuite) TestLoginSetsSessionCookie() {
	c := s.login()
	assert.Equal(s.T(), session.DefaultCookieName, c.Name)
	assert.True(s.T(), c.HttpOnly)
	assert.Equal(s.T(), http.SameSiteLaxMode, c.SameSite)
}

func (s *HandlersTestSuite) TestLoginWrongPassword() {
	rec := s.do(postForm("/", url.Values{"username": {"budi"}, "password": {"salah"}}))
	assert.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Contains(s.T(), rec.Body.String(), auth.MsgInvalidCredentials)
	assert.NotContains(s.T(), rec.Body.String(), "401")
	assert.Empty(s.T(), rec.Result().Cookies())
}

func (s *HandlersTestSuite) TestLoginWithoutTokenInResponse() {
	s.srv.SetTokenMode(upstreamtest.TokenNowhere)
	rec := s.do(postForm("/", url.Values{"username": {"budi"}, "password": {"rahasia"}}))
	assert.Contains(s.T(), rec.Body.String(), auth.MsgTransient)
	assert.Empty(s.T(), rec.Result().Cookies())
}

func (s *HandlersTestSuite) TestDashboardRequiresSession() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(s.T(), http.StatusFound, rec.Code)
	assert.Equal(s.T(), "/", rec.Header().Get("Location"))
	assert.Empty(s.T(), s.srv.Requests(), "no API call without a session")
}

func (s *HandlersTestSuite) TestDashboardRendersTotals() {
	s.srv.AddTransaction(s.userID, 1, 25000, "Nasi goreng", time.Time{})
	s.srv.AddTransaction(s.userID, 2, 1500000, "Tiket kereta", time.Time{})
	c := s.login()

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(c)
	rec := s.do(req)

	require.Equal(s.T(), http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(s.T(), body, "Rp 1.525.000")
	assert.Contains(s.T(), body, "Nasi goreng")
	assert.Contains(s.T(), body, "Transportation")
	assert.Contains(s.T(), body, "🚗")
}

func (s *HandlersTestSuite) TestDashboardWithRevokedTokenClearsCookie() {
	c := s.login()
	s.srv.RevokeTokens()

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(c)
	rec := s.do(req)

	assert.Equal(s.T(), http.StatusFound, rec.Code)
	assert.Equal(s.T(), "/", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(s.T(), cookies, 1)
	assert.Equal(s.T(), -1, cookies[0].MaxAge)
}

func (s *HandlersTestSuite) TestCreateTransaction() {
	c := s.login()

	req := postForm("/transactions", url.Values{"amount": {"1.500.000"}, "category_id": {"4"}, "description": {"Sewa kos"}})
	req.AddCookie(c)
	rec := s.do(req)

	assert.Equal(s.T(), http.StatusSeeOther, rec.Code)
	assert.Equal(s.T(), "/dashboard", rec.Header().Get("Location"))

	txs := s.srv.Transactions(s.userID)
	require.Len(s.T(), txs, 1)
	assert.Equal(s.T(), int64(1500000), txs[0].Amount)
	assert.Equal(s.T(), "Sewa kos", txs[0].Description)
}

func (s *HandlersTestSuite) TestCreateTransactionHTMXRendersPartial() {
	c := s.login()

	req := postForm("/transactions", url.Values{"amount": {"20000"}, "category_id": {"1"}, "description": {"Kopi"}})
	req.Header.Set("HX-Request", "true")
	req.AddCookie(c)
	rec := s.do(req)

	require.Equal(s.T(), http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(s.T(), body, "<html", "partial only")
	assert.Contains(s.T(), body, "Kopi")
	assert.Contains(s.T(), body, "Rp 20.000")
}

func (s *HandlersTestSuite) TestCreateTransactionValidation() {
	c := s.login()

	req := postForm("/transactions", url.Values{"amount": {"abc"}, "category_id": {"1"}, "description": {"Kopi"}})
	req.AddCookie(c)
	rec := s.do(req)

	assert.Contains(s.T(), rec.Body.String(), MsgInvalidTransaction)
	assert.Zero(s.T(), s.srv.RequestCount("/api/transactions/create"))
}

func (s *HandlersTestSuite) TestCreateTransactionFailureKeepsLastKnownGood() {
	s.srv.AddTransaction(s.userID, 1, 25000, "Nasi goreng", time.Time{})
	c := s.login()

	load := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	load.AddCookie(c)
	require.Equal(s.T(), http.StatusOK, s.do(load).Code)

	s.srv.FailNext(upstreamtest.RouteCreate, http.StatusInternalServerError)
	req := postForm("/transactions", url.Values{"amount": {"5000"}, "category_id": {"1"}, "description": {"Es teh"}})
	req.AddCookie(c)
	rec := s.do(req)

	require.Equal(s.T(), http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(s.T(), body, MsgCreateFailed)
	assert.Contains(s.T(), body, "Nasi goreng")
	assert.NotContains(s.T(), body, "Es teh")
}

func (s *HandlersTestSuite) TestDeleteTransaction() {
	tx := s.srv.AddTransaction(s.userID, 1, 25000, "Nasi goreng", time.Time{})
	c := s.login()

	req := postForm("/transactions/"+strconv.FormatInt(tx.ID, 10)+"/delete", url.Values{"offset": {"-150"}})
	req.AddCookie(c)
	rec := s.do(req)

	assert.Equal(s.T(), http.StatusSeeOther, rec.Code)
	assert.Empty(s.T(), s.srv.Transactions(s.userID))
}

func (s *HandlersTestSuite) TestDeleteBelowThresholdDoesNothing() {
	tx := s.srv.AddTransaction(s.userID, 1, 25000, "Nasi goreng", time.Time{})
	c := s.login()

	req := postForm("/transactions/"+strconv.FormatInt(tx.ID, 10)+"/delete", url.Values{"offset": {"-99"}})
	req.AddCookie(c)
	rec := s.do(req)

	assert.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Len(s.T(), s.srv.Transactions(s.userID), 1)
	assert.Zero(s.T(), s.srv.RequestCount("/api/transactions/delete/"))
}

func (s *HandlersTestSuite) TestDeleteFailure() {
	c := s.login()

	req := postForm("/transactions/999/delete", nil)
	req.AddCookie(c)
	rec := s.do(req)

	assert.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Contains(s.T(), rec.Body.String(), MsgDeleteFailed)
}

func (s *HandlersTestSuite) TestLogout() {
	c := s.login()
	load := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	load.AddCookie(c)
	require.Equal(s.T(), http.StatusOK, s.do(load).Code)

	req := postForm("/logout", nil)
	req.AddCookie(c)
	rec := s.do(req)

	assert.Equal(s.T(), http.StatusSeeOther, rec.Code)
	assert.Equal(s.T(), "/", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(s.T(), cookies, 1)
	assert.Equal(s.T(), -1, cookies[0].MaxAge)

	_, err := s.db.LoadSnapshot(context.Background(), s.userID)
	assert.ErrorIs(s.T(), err, storage.ErrNoSnapshot)
}

func (s *HandlersTestSuite) TestRegister() {
	rec := s.do(postForm("/register", url.Values{"username": {"sari"}, "password": {"x"}, "confirmPassword": {"x"}}))
	assert.Contains(s.T(), rec.Body.String(), auth.MsgRegistered)
	assert.Contains(s.T(), rec.Body.String(), `http-equiv="refresh"`)

	rec = s.do(postForm("/register", url.Values{"username": {"sari"}, "password": {"x"}, "confirmPassword": {"y"}}))
	assert.Contains(s.T(), rec.Body.String(), auth.MsgPasswordMismatch)

	rec = s.do(postForm("/register", url.Values{"username": {"budi"}, "password": {"x"}, "confirmPassword": {"x"}}))
	assert.Contains(s.T(), rec.Body.String(), "Username sudah digunakan")
}

func (s *HandlersTestSuite) TestHTMXRedirect() {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("HX-Request", "true")
	rec := s.do(req)

	assert.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Equal(s.T(), "/", rec.Header().Get("HX-Redirect"))
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
