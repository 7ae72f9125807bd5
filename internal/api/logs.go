package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/ledger"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// LogsHandler handles the audit trail.
type LogsHandler struct {
	DB     *sqlx.DB
	Ledger *ledger.Ledger
}

// List handles GET /api/logs.
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.LogFilter{
		SKU:    q.Get("sku"),
		UserID: q.Get("user_id"),
		ListID: q.Get("list_id"),
	}
	for name, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				jsonError(w, http.StatusBadRequest, "invalid "+name+" timestamp")
				return
			}
			*dst = t
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	logs, err := store.ListLogs(r.Context(), h.DB, f)
	if err != nil {
		writeError(w, r, model.Transient("listing logs", err))
		return
	}
	if logs == nil {
		logs = []model.AuditEntry{}
	}
	jsonResponse(w, http.StatusOK, logs)
}

// Undo handles POST /api/logs/{id}/undo.
func (h *LogsHandler) Undo(w http.ResponseWriter, r *http.Request) {
	res, err := h.Ledger.Undo(r.Context(), actorOf(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}
