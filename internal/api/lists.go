package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/picking"
)

// ListsHandler handles picking lists. Requests about the list attached to
// the caller's workspace go through the workspace so its cart and mode stay
// in step; everything else goes to the service directly.
type ListsHandler struct {
	Service *picking.Service
	Hub     *picking.Hub
}

type listItemsRequest struct {
	Items       model.PickingItems `json:"items"`
	OrderNumber *string            `json:"order_number"`
}

type noteRequest struct {
	Body string `json:"body"`
}

type returnRequest struct {
	Notes string `json:"notes"`
}

// workspaceFor returns the caller's workspace and whether listID is the
// list attached to it.
func (h *ListsHandler) workspaceFor(r *http.Request, listID string) (*picking.Workspace, bool, error) {
	ws, err := h.Hub.Workspace(r.Context(), actorOf(r))
	if err != nil {
		return nil, false, err
	}
	st := ws.State()
	return ws, st.List != nil && st.List.ID == listID, nil
}

// List handles GET /api/lists.
func (h *ListsHandler) List(w http.ResponseWriter, r *http.Request) {
	var statuses []model.ListStatus
	if v := r.URL.Query().Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			statuses = append(statuses, model.ListStatus(strings.TrimSpace(s)))
		}
	}

	lists, err := h.Service.Lists(r.Context(), statuses...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if lists == nil {
		lists = []model.PickingList{}
	}
	jsonResponse(w, http.StatusOK, lists)
}

// Create handles POST /api/lists.
func (h *ListsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req listItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws, err := h.Hub.Workspace(r.Context(), actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Keep the cart of a list already being picked.
	if st := ws.State(); st.List != nil && st.List.Status.Open() {
		writeError(w, r, model.ErrOpenListExists)
		return
	}
	if req.Items != nil {
		ws.SetItems(req.Items, req.OrderNumber)
	}
	list, err := ws.Start(r.Context(), req.OrderNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, list)
}

// Get handles GET /api/lists/{id}.
func (h *ListsHandler) Get(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, list)
}

// Delete handles DELETE /api/lists/{id}.
func (h *ListsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ws, attached, err := h.workspaceFor(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if attached {
		err = ws.Delete(r.Context())
	} else {
		err = h.Service.DeleteList(r.Context(), actorOf(r), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "list deleted"})
}

// SaveItems handles PUT /api/lists/{id}/items.
func (h *ListsHandler) SaveItems(w http.ResponseWriter, r *http.Request) {
	var req listItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := r.PathValue("id")
	ws, attached, err := h.workspaceFor(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	saved := true
	if attached {
		ws.SetItems(req.Items, req.OrderNumber)
		err = ws.Flush(r.Context())
	} else {
		saved, err = h.Service.SaveItems(r.Context(), actorOf(r), id, req.Items, req.OrderNumber)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"saved": saved})
}

// MarkReady handles POST /api/lists/{id}/ready.
func (h *ListsHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ws, attached, err := h.workspaceFor(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var list *model.PickingList
	if attached {
		list, err = ws.MarkReady(r.Context())
	} else {
		list, err = h.Service.Get(r.Context(), id)
		if err == nil {
			list, err = h.Service.MarkReady(r.Context(), actorOf(r), id, list.Items, list.OrderNumber)
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, list)
}

// Lock handles POST /api/lists/{id}/lock.
func (h *ListsHandler) Lock(w http.ResponseWriter, r *http.Request) {
	ws, err := h.Hub.Workspace(r.Context(), actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := ws.Lock(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, list)
}

// Release handles POST /api/lists/{id}/release.
func (h *ListsHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.finish(w, r, (*picking.Workspace).Release, h.Service.ReleaseCheck)
}

// Revert handles POST /api/lists/{id}/revert.
func (h *ListsHandler) Revert(w http.ResponseWriter, r *http.Request) {
	h.finish(w, r, (*picking.Workspace).Revert, h.Service.RevertToPicking)
}

// Complete handles POST /api/lists/{id}/complete.
func (h *ListsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.finish(w, r, (*picking.Workspace).Complete, h.Service.CompleteList)
}

// Return handles POST /api/lists/{id}/return.
func (h *ListsHandler) Return(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.finish(w, r,
		func(ws *picking.Workspace, ctx context.Context) error { return ws.Return(ctx, req.Notes) },
		func(ctx context.Context, actor model.Actor, id string) (*model.PickingList, error) {
			return h.Service.ReturnToPicker(ctx, actor, id, req.Notes)
		},
	)
}

func (h *ListsHandler) finish(
	w http.ResponseWriter, r *http.Request,
	viaWorkspace func(*picking.Workspace, context.Context) error,
	direct func(context.Context, model.Actor, string) (*model.PickingList, error),
) {
	id := r.PathValue("id")
	ws, attached, err := h.workspaceFor(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if attached {
		err = viaWorkspace(ws, r.Context())
	} else {
		_, err = direct(r.Context(), actorOf(r), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, list)
}

// Notes handles GET /api/lists/{id}/notes.
func (h *ListsHandler) Notes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Service.Notes(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if notes == nil {
		notes = []model.ListNote{}
	}
	jsonResponse(w, http.StatusOK, notes)
}

// AddNote handles POST /api/lists/{id}/notes.
func (h *ListsHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	note, err := h.Service.AddNote(r.Context(), actorOf(r), r.PathValue("id"), req.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, note)
}
