package api

import (
	"net/http"

	"github.com/erazemk/stockledger/internal/locations"
	"github.com/erazemk/stockledger/internal/model"
)

// LocationsHandler handles the location registry.
type LocationsHandler struct {
	Resolver *locations.Resolver
}

type resolveRequest struct {
	Warehouse string `json:"warehouse"`
	Location  string `json:"location"`
	// Create registers the location when it is new.
	Create bool `json:"create"`
}

// List handles GET /api/locations.
func (h *LocationsHandler) List(w http.ResponseWriter, r *http.Request) {
	locs, err := h.Resolver.List(r.Context(), r.URL.Query().Get("warehouse"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if locs == nil {
		locs = []model.Location{}
	}
	jsonResponse(w, http.StatusOK, locs)
}

// Resolve handles POST /api/locations/resolve.
func (h *LocationsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		res *locations.Resolution
		err error
	)
	if req.Create {
		res, err = h.Resolver.Ensure(r.Context(), actorOf(r), req.Warehouse, req.Location)
	} else {
		res, err = h.Resolver.Resolve(r.Context(), req.Warehouse, req.Location)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Create handles POST /api/locations.
func (h *LocationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var loc model.Location
	if err := decodeJSON(r, &loc); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.Resolver.Create(r.Context(), actorOf(r), loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, created)
}

// Sync handles POST /api/locations/sync.
func (h *LocationsHandler) Sync(w http.ResponseWriter, r *http.Request) {
	n, err := h.Resolver.SyncLinks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int64{"linked": n})
}
