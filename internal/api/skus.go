package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/blob"
	"github.com/erazemk/stockledger/internal/clock"
	"github.com/erazemk/stockledger/internal/imaging"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// SKUsHandler handles per-SKU metadata and reference photos.
type SKUsHandler struct {
	DB    *sqlx.DB
	Clock clock.Clock
	Blobs blob.Store
}

type skuView struct {
	model.SKUMeta
	HasPhoto bool `json:"has_photo"`
}

type skuRequest struct {
	Name     string   `json:"name"`
	LengthIn *float64 `json:"length_in"`
	WidthIn  *float64 `json:"width_in"`
	HeightIn *float64 `json:"height_in"`
}

// Get handles GET /api/skus/{sku}.
func (h *SKUsHandler) Get(w http.ResponseWriter, r *http.Request) {
	meta, err := store.GetSKUMeta(r.Context(), h.DB, r.PathValue("sku"))
	if err != nil {
		writeError(w, r, model.Transient("loading sku", err))
		return
	}
	if meta == nil {
		jsonError(w, http.StatusNotFound, "sku not found")
		return
	}
	jsonResponse(w, http.StatusOK, skuView{SKUMeta: *meta, HasPhoto: meta.HasPhoto()})
}

// Update handles PUT /api/skus/{sku}.
func (h *SKUsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req skuRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sku := strings.TrimSpace(r.PathValue("sku"))
	existing, err := store.GetSKUMeta(r.Context(), h.DB, sku)
	if err != nil {
		writeError(w, r, model.Transient("loading sku", err))
		return
	}

	meta := &model.SKUMeta{
		SKU:       sku,
		Name:      strings.TrimSpace(req.Name),
		LengthIn:  req.LengthIn,
		WidthIn:   req.WidthIn,
		HeightIn:  req.HeightIn,
		UpdatedAt: h.Clock.Now(),
	}
	if existing != nil {
		meta.PhotoKey, meta.ThumbKey = existing.PhotoKey, existing.ThumbKey
	}
	if err := store.UpsertSKUMeta(r.Context(), h.DB, meta); err != nil {
		writeError(w, r, model.Transient("saving sku", err))
		return
	}
	jsonResponse(w, http.StatusOK, skuView{SKUMeta: *meta, HasPhoto: meta.HasPhoto()})
}

// UploadPhoto handles PUT /api/skus/{sku}/photo. The multipart field
// "image" must hold a JPEG or PNG.
func (h *SKUsHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	photo, err := imaging.Process(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	sku := strings.TrimSpace(r.PathValue("sku"))
	fullKey, thumbKey := "skus/"+sku+"/photo.jpg", "skus/"+sku+"/thumb.jpg"
	if err := h.Blobs.Put(r.Context(), fullKey, bytes.NewReader(photo.Full), photo.MIME); err != nil {
		writeError(w, r, model.Transient("storing photo", err))
		return
	}
	if err := h.Blobs.Put(r.Context(), thumbKey, bytes.NewReader(photo.Thumb), photo.MIME); err != nil {
		writeError(w, r, model.Transient("storing thumbnail", err))
		return
	}
	if err := store.SetSKUPhoto(r.Context(), h.DB, sku, fullKey, thumbKey, h.Clock.Now()); err != nil {
		writeError(w, r, model.Transient("saving photo reference", err))
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "photo uploaded"})
}

// Photo handles GET /api/skus/{sku}/photo. ?thumb=1 returns the thumbnail.
func (h *SKUsHandler) Photo(w http.ResponseWriter, r *http.Request) {
	meta, err := store.GetSKUMeta(r.Context(), h.DB, r.PathValue("sku"))
	if err != nil {
		writeError(w, r, model.Transient("loading sku", err))
		return
	}
	if meta == nil || !meta.HasPhoto() {
		jsonError(w, http.StatusNotFound, "photo not found")
		return
	}

	key := *meta.PhotoKey
	if r.URL.Query().Get("thumb") != "" && meta.ThumbKey != nil {
		key = *meta.ThumbKey
	}
	rc, err := h.Blobs.Get(r.Context(), key)
	if errors.Is(err, blob.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "photo not found")
		return
	}
	if err != nil {
		writeError(w, r, model.Transient("reading photo", err))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}
