package handlers

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"uangku/internal/auth"
	"uangku/internal/dashboard"
	"uangku/internal/logging"
	"uangku/internal/models"
	"uangku/internal/session"
)

// Context key type to avoid collisions.
type contextKey string

// SessionContextKey is the context key for the authenticated session.
const SessionContextKey contextKey = "session"

// MsgTooManyAttempts is shown when the login rate limit is hit.
const MsgTooManyAttempts = "Terlalu banyak percobaan. Silakan coba lagi nanti."

// Authenticator logs in and registers users.
type Authenticator interface {
	Login(ctx context.Context, creds models.Credentials) (*auth.LoginResult, error)
	Register(ctx context.Context, form auth.RegisterForm) error
}

// Syncer loads and mutates a user's transactions.
type Syncer interface {
	Load(ctx context.Context, sess models.SessionData) (*models.Snapshot, error)
	LastKnownGood(ctx context.Context, userID int64) *models.Snapshot
	Create(ctx context.Context, sess models.SessionData, in models.NewTransaction) (*models.Snapshot, error)
	Delete(ctx context.Context, sess models.SessionData, id int64) (*models.Snapshot, error)
}

// SnapshotCleaner drops a user's cached snapshot on logout.
type SnapshotCleaner interface {
	DeleteSnapshots(ctx context.Context, userID int64) error
}

var (
	_ Authenticator = (*auth.Gateway)(nil)
	_ Syncer        = (*dashboard.Controller)(nil)
)

// Options holds the dependencies of Handlers.
type Options struct {
	Auth        Authenticator
	Sync        Syncer
	Sessions    *session.Store
	Snapshots   SnapshotCleaner
	TemplateDir string
	// Location is the display timezone; nil means time.Local.
	Location *time.Location
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	auth        Authenticator
	sync        Syncer
	sessions    *session.Store
	snapshots   SnapshotCleaner
	templateDir string
	location    *time.Location
	validate    *validator.Validate
	now         func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(opts Options) *Handlers {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Handlers{
		auth:        opts.Auth,
		sync:        opts.Sync,
		sessions:    opts.Sessions,
		snapshots:   opts.Snapshots,
		templateDir: opts.TemplateDir,
		location:    loc,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         time.Now,
	}
}

// GetSessionFromContext retrieves the authenticated session from request context.
func GetSessionFromContext(r *http.Request) (models.SessionData, bool) {
	sess, ok := r.Context().Value(SessionContextKey).(models.SessionData)
	return sess, ok && sess.Authenticated()
}

// AuthMiddleware wraps handlers to require a session with a token.
// Requests without one are sent to the login page and never reach the API.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := h.sessions.Get(r).Data()
		if !sess.Authenticated() {
			h.redirect(w, r, "/")
			return
		}
		ctx := context.WithValue(r.Context(), SessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Error    string
	Username string
}

// LoginForm renders the login page. It does not redirect signed-in users:
// the dashboard sends users here when their token stops working.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login.html", LoginViewModel{})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderStatus(w, r, http.StatusBadRequest, "login.html", LoginViewModel{Error: auth.MsgTransient})
		return
	}

	creds := models.Credentials{
		Username: strings.TrimSpace(r.FormValue("username")),
		Password: r.FormValue("password"),
	}

	res, err := h.auth.Login(r.Context(), creds)
	if err != nil {
		h.render(w, r, "login.html", LoginViewModel{Error: auth.Message(err), Username: creds.Username})
		return
	}

	w.Header().Add("Set-Cookie", res.Cookie)
	h.redirect(w, r, "/dashboard")
}

// LoginRateLimited renders the login page for a client over the attempt limit.
func (h *Handlers) LoginRateLimited(w http.ResponseWriter, r *http.Request) {
	logging.Ctx(r.Context()).Warn().Str("remote_addr", r.RemoteAddr).Msg("login rate limit exceeded")
	h.renderStatus(w, r, http.StatusTooManyRequests, "login.html", LoginViewModel{Error: MsgTooManyAttempts})
}

// RegisterViewModel holds data for the registration page.
type RegisterViewModel struct {
	Error    string
	Success  string
	Username string
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "register.html", RegisterViewModel{})
}

// Register handles the registration form submission.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderStatus(w, r, http.StatusBadRequest, "register.html", RegisterViewModel{Error: auth.MsgTransient})
		return
	}

	form := auth.RegisterForm{
		Username:        strings.TrimSpace(r.FormValue("username")),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirmPassword"),
	}

	if err := h.auth.Register(r.Context(), form); err != nil {
		h.render(w, r, "register.html", RegisterViewModel{Error: auth.Message(err), Username: form.Username})
		return
	}
	h.render(w, r, "register.html", RegisterViewModel{Success: auth.MsgRegistered})
}

// Logout clears the session cookie and the user's cached snapshot.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(r).Data()
	if sess.UserID != 0 && h.snapshots != nil {
		if err := h.snapshots.DeleteSnapshots(r.Context(), sess.UserID); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Int64("user_id", sess.UserID).Msg("failed to delete snapshots")
		}
	}
	w.Header().Add("Set-Cookie", h.sessions.Destroy())
	h.redirect(w, r, "/")
}

// Healthz reports that the process is serving.
func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// redirect sends the browser to target. htmx requests get HX-Redirect so the
// whole page changes instead of a swapped fragment.
func (h *Handlers) redirect(w http.ResponseWriter, r *http.Request, target string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	status := http.StatusFound
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		status = http.StatusSeeOther
	}
	http.Redirect(w, r, target, status)
}

func (h *Handlers) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"rupiah": FormatRupiah,
		"inc":    func(i int) int { return i + 1 },
		"pct":    formatPercent,
	}
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	h.renderStatus(w, r, http.StatusOK, viewName, data)
}

func (h *Handlers) renderStatus(w http.ResponseWriter, r *http.Request, status int, viewName string, data any) {
	log := logging.Ctx(r.Context())
	tmpl, err := template.New("base.html").Funcs(h.templateFuncs()).
		ParseFiles(filepath.Join(h.templateDir, "base.html"), filepath.Join(h.templateDir, viewName))
	if err != nil {
		log.Error().Err(err).Str("view", viewName).Msg("template parse failed")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, target, data); err != nil {
		log.Error().Err(err).Str("view", viewName).Msg("template execution failed")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
