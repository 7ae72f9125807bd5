package api

import (
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/clock"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// OnlineWindow is how recently a heartbeat must have arrived for an
// operator to count as online.
const OnlineWindow = 2 * time.Minute

// PresenceHandler tracks which operators are online.
type PresenceHandler struct {
	DB    *sqlx.DB
	Clock clock.Clock
}

// Touch handles POST /api/presence.
func (h *PresenceHandler) Touch(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	if err := store.TouchPresence(r.Context(), h.DB, actor.ID, actor.Name, h.Clock.Now()); err != nil {
		writeError(w, r, model.Transient("recording presence", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/presence.
func (h *PresenceHandler) List(w http.ResponseWriter, r *http.Request) {
	online, err := store.OnlineUsers(r.Context(), h.DB, h.Clock.Now().Add(-OnlineWindow))
	if err != nil {
		writeError(w, r, model.Transient("listing presence", err))
		return
	}
	if online == nil {
		online = []model.Presence{}
	}
	jsonResponse(w, http.StatusOK, online)
}
