package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"uangku/internal/dashboard"
	"uangku/internal/logging"
	"uangku/internal/models"
	"uangku/internal/upstream"
)

// Dashboard copy.
const (
	MsgCreateFailed       = "Gagal menambahkan transaksi. Silakan coba lagi."
	MsgDeleteFailed       = "Gagal menghapus transaksi. Silakan coba lagi."
	MsgInvalidTransaction = "Jumlah, kategori dan deskripsi harus diisi dengan benar."
	MsgBusy               = "Transaksi sedang diproses. Mohon tunggu."
)

// TransactionItem represents a transaction in the day list.
type TransactionItem struct {
	ID            int64
	Description   string
	Amount        int64
	Time          string
	Category      string
	CategoryStyle CategoryStyle
}

// DashboardViewModel is the data passed to the dashboard template.
type DashboardViewModel struct {
	Username   string
	Today      string
	TotalDay   int64
	TotalWeek  int64
	TotalMonth int64
	Day        []TransactionItem
	Stats      StatsViewModel
	Categories []CategoryDef
	Error      string
}

func (h *Handlers) buildDashboard(sess models.SessionData, snap *models.Snapshot, errMsg string) DashboardViewModel {
	if snap == nil {
		snap = &models.Snapshot{}
	}

	day := make([]TransactionItem, 0, len(snap.Day))
	for _, tx := range snap.Day {
		day = append(day, TransactionItem{
			ID:            tx.ID,
			Description:   tx.Description,
			Amount:        tx.Amount,
			Time:          tx.CreatedAt.In(h.location).Format("15:04"),
			Category:      categoryName(tx.CategoryID, tx.Category.Name),
			CategoryStyle: getCategoryStyle(tx.CategoryID),
		})
	}

	return DashboardViewModel{
		Username:   sess.Username,
		Today:      FormatLongDate(h.now().In(h.location)),
		TotalDay:   dashboard.Total(snap.Day),
		TotalWeek:  dashboard.Total(snap.Week),
		TotalMonth: dashboard.Total(snap.Month),
		Day:        day,
		Stats:      buildStats(snap.Month),
		Categories: categories,
		Error:      errMsg,
	}
}

// Dashboard loads the three windows and renders the dashboard.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := GetSessionFromContext(r)
	if !ok {
		h.redirect(w, r, "/")
		return
	}

	snap, err := h.sync.Load(r.Context(), sess)
	if err != nil {
		h.loadFailed(w, r, err)
		return
	}
	h.render(w, r, "dashboard.html", h.buildDashboard(sess, snap, ""))
}

// loadFailed sends the user back to the login page. A token the API no
// longer accepts is dropped from the browser as well.
func (h *Handlers) loadFailed(w http.ResponseWriter, r *http.Request, err error) {
	logging.Ctx(r.Context()).Error().Err(err).Msg("dashboard load failed")
	if upstream.IsUnauthorized(err) || errors.Is(err, upstream.ErrNoToken) {
		w.Header().Add("Set-Cookie", h.sessions.Destroy())
	}
	h.redirect(w, r, "/")
}

// CreateTransaction handles the add-transaction form.
func (h *Handlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	sess, ok := GetSessionFromContext(r)
	if !ok {
		h.redirect(w, r, "/")
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderLastKnownGood(w, r, sess, MsgCreateFailed)
		return
	}

	categoryID, _ := strconv.ParseInt(r.FormValue("category_id"), 10, 64)
	in := models.NewTransaction{
		Amount:      parseAmount(r.FormValue("amount")),
		CategoryID:  categoryID,
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if err := h.validate.Struct(in); err != nil {
		h.renderLastKnownGood(w, r, sess, MsgInvalidTransaction)
		return
	}

	snap, err := h.sync.Create(r.Context(), sess, in)
	if err != nil {
		h.mutationFailed(w, r, sess, err, MsgCreateFailed)
		return
	}
	h.mutationSucceeded(w, r, sess, snap)
}

// DeleteTransaction handles a delete, either from the swipe gesture (which
// posts the release offset) or from the fallback button (no offset).
func (h *Handlers) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	sess, ok := GetSessionFromContext(r)
	if !ok {
		h.redirect(w, r, "/")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.renderLastKnownGood(w, r, sess, MsgDeleteFailed)
		return
	}

	if raw := r.FormValue("offset"); raw != "" {
		offset, err := strconv.ParseFloat(raw, 64)
		if err != nil || dashboard.ReleaseIntent(offset) == dashboard.IntentReset {
			h.renderLastKnownGood(w, r, sess, "")
			return
		}
	}

	snap, err := h.sync.Delete(r.Context(), sess, id)
	if err != nil {
		h.mutationFailed(w, r, sess, err, MsgDeleteFailed)
		return
	}
	h.mutationSucceeded(w, r, sess, snap)
}

func (h *Handlers) mutationSucceeded(w http.ResponseWriter, r *http.Request, sess models.SessionData, snap *models.Snapshot) {
	if r.Header.Get("HX-Request") == "true" {
		h.render(w, r, "dashboard.html", h.buildDashboard(sess, snap, ""))
		return
	}
	h.redirect(w, r, "/dashboard")
}

func (h *Handlers) mutationFailed(w http.ResponseWriter, r *http.Request, sess models.SessionData, err error, msg string) {
	if upstream.IsUnauthorized(err) {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("token rejected during mutation")
		w.Header().Add("Set-Cookie", h.sessions.Destroy())
		h.redirect(w, r, "/")
		return
	}

	var syncErr *dashboard.SyncError
	switch {
	case errors.As(err, &syncErr):
		h.render(w, r, "dashboard.html", h.buildDashboard(sess, syncErr.LastKnownGood, msg))
	case errors.Is(err, dashboard.ErrBusy):
		h.renderLastKnownGood(w, r, sess, MsgBusy)
	case errors.Is(err, dashboard.ErrReconcile):
		h.loadFailed(w, r, err)
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("mutation failed")
		h.renderLastKnownGood(w, r, sess, msg)
	}
}

func (h *Handlers) renderLastKnownGood(w http.ResponseWriter, r *http.Request, sess models.SessionData, msg string) {
	snap := h.sync.LastKnownGood(r.Context(), sess.UserID)
	h.render(w, r, "dashboard.html", h.buildDashboard(sess, snap, msg))
}
