package api

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/ledger"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/movement"
	"github.com/erazemk/stockledger/internal/store"
)

// SlotsHandler handles stock counters and their quantity changes.
type SlotsHandler struct {
	DB     *sqlx.DB
	Ledger *ledger.Ledger
	Mover  *movement.Mover
}

// slotView is a slot enriched with its SKU's display name.
type slotView struct {
	model.Slot
	Name string `json:"name,omitempty"`
}

type addStockRequest struct {
	model.SlotKey
	Quantity int `json:"quantity"`
	ledger.Options
}

type deltaRequest struct {
	Delta int `json:"delta"`
	ledger.Options
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type moveRequest struct {
	Warehouse string `json:"warehouse"`
	Location  string `json:"location"`
	Quantity  int    `json:"quantity"`
}

// List handles GET /api/slots.
func (h *SlotsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	slots, err := h.Ledger.Slots(r.Context(), store.SlotFilter{
		SKU:       q.Get("sku"),
		Warehouse: q.Get("warehouse"),
		Location:  q.Get("location"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	names := make(map[string]string)
	out := make([]slotView, len(slots))
	for i, s := range slots {
		name, seen := names[s.SKU]
		if !seen {
			if meta, err := store.GetSKUMeta(r.Context(), h.DB, s.SKU); err == nil && meta != nil {
				name = meta.Name
			}
			names[s.SKU] = name
		}
		out[i] = slotView{Slot: s, Name: name}
	}
	jsonResponse(w, http.StatusOK, out)
}

// Get handles GET /api/slots/{id}.
func (h *SlotsHandler) Get(w http.ResponseWriter, r *http.Request) {
	slot, err := h.Ledger.Slot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, slot)
}

// AddStock handles POST /api/slots.
func (h *SlotsHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	var req addStockRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	slot, err := h.Ledger.AddStock(r.Context(), actorOf(r), req.SlotKey, req.Quantity, req.Options)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, slot)
}

// Delta handles POST /api/slots/{id}/delta. The response carries the
// visible quantity; the write lands after the commit window.
func (h *SlotsHandler) Delta(w http.ResponseWriter, r *http.Request) {
	var req deltaRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	slot, err := h.Ledger.Slot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.Ledger.ApplyDelta(r.Context(), actorOf(r), slot.Key(), req.Delta, req.Options)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusAccepted, updated)
}

// SetQuantity handles PUT /api/slots/{id}.
func (h *SlotsHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var req setQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	slot, err := h.Ledger.Slot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.Ledger.SetQuantity(r.Context(), actorOf(r), slot.Key(), req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}

// Move handles POST /api/slots/{id}/move.
func (h *SlotsHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	slot, err := h.Ledger.Slot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Mover.Move(r.Context(), actorOf(r), slot.Key(), req.Warehouse, req.Location, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Delete handles DELETE /api/slots/{id}.
func (h *SlotsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteSlot(r.Context(), actorOf(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "slot deleted"})
}

// Flush handles POST /api/ledger/flush.
func (h *SlotsHandler) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.Flush(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "flushed"})
}
