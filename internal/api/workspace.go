package api

import (
	"net/http"
	"strconv"

	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/picking"
)

// WorkspaceHandler exposes the caller's picking workspace and stock
// availability.
type WorkspaceHandler struct {
	Service *picking.Service
	Hub     *picking.Hub
}

type cartQuantityRequest struct {
	model.SlotKey
	Quantity int `json:"quantity"`
}

type buildingRequest struct {
	Building bool `json:"building"`
}

func (h *WorkspaceHandler) state(w http.ResponseWriter, status int, ws *picking.Workspace) {
	jsonResponse(w, status, ws.State())
}

// Get handles GET /api/workspace.
func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, err := h.Hub.Workspace(r.Context(), actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.state(w, http.StatusOK, ws)
}

// AddToCart handles POST /api/workspace/cart.
func (h *WorkspaceHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var item model.PickingItem
	if err := decodeJSON(r, &item); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws, err := h.Hub.Workspace(r.Context(), actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := ws.AddToCart(r.Context(), item); err != nil {
		writeError(w, r, err)
		return
	}
	h.state(w, http.StatusOK, ws)
}

// UpdateQuantity handles PUT /api/workspace/cart.
func (h *WorkspaceHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req cartQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws, err := h.Hub.Workspace(r.Context(), actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := ws.UpdateQuantity(r.Context(), req.SlotKey, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	h.state(w, http.StatusOK, ws)
}

// SetBuilding handles PUT /api/workspace/building.
func (h *WorkspaceHandler) SetBuilding(w http.ResponseWriter, r *http.Request) {
	var req buildingRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws, err := h.Hub.Workspace(r.Context(), actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ws.SetBuilding(req.Building)
	h.state(w, http.StatusOK, ws)
}

// AcknowledgeTakeover handles POST /api/workspace/takeover/ack.
func (h *WorkspaceHandler) AcknowledgeTakeover(w http.ResponseWriter, r *http.Request) {
	ws, err := h.Hub.Workspace(r.Context(), actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ws.AcknowledgeTakeover()
	h.state(w, http.StatusOK, ws)
}

// Reservations handles GET /api/reservations.
func (h *WorkspaceHandler) Reservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := model.SlotKey{SKU: q.Get("sku"), Warehouse: q.Get("warehouse"), Location: q.Get("location")}
	if key.SKU == "" || key.Warehouse == "" || key.Location == "" {
		jsonError(w, http.StatusBadRequest, "sku, warehouse and location are required")
		return
	}
	building, _ := strconv.ParseBool(q.Get("building"))

	actor := actorOf(r)
	reserved, err := h.Service.ReservedByOthers(r.Context(), actor, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	available, err := h.Service.Available(r.Context(), actor, key, building)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int{"reserved": reserved, "available": available})
}
