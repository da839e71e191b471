package api

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/pointsource/checkit/internal/asset"
	"github.com/pointsource/checkit/internal/imaging"
	"github.com/pointsource/checkit/internal/store"
)

// AssetsHandler handles asset lifecycle and view endpoints.
type AssetsHandler struct {
	DB      *sql.DB
	Service *asset.Service
}

type checkoutRequest struct {
	ReturnDate *time.Time `json:"return_date"`
}

type checkoutForRequest struct {
	ReturnDate *time.Time     `json:"return_date"`
	UserInfo   asset.UserInfo `json:"user_info"`
}

type checkinForRequest struct {
	UserInfo asset.UserInfo `json:"user_info"`
}

type editAssetRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	OS          *string `json:"os"`
	Location    *string `json:"location"`
	Attributes  *string `json:"attributes"`
}

func assetID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// List handles GET /api/assets.
func (h *AssetsHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.Service.Assets(r.Context(), r.URL.Query().Get("type"), requesterEmail(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, views)
}

// Get handles GET /api/assets/{id}.
func (h *AssetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	view, err := h.Service.Details(r.Context(), id, requesterEmail(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, view)
}

// GetRecords handles GET /api/assets/{id}/records.
func (h *AssetsHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	history, err := h.Service.AssetRecords(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, history)
}

// Create handles POST /api/assets.
func (h *AssetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input asset.CreateInput
	if err := decodeJSON(r, &input); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.Service.Create(r.Context(), input, requesterEmail(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, view)
}

// Edit handles PUT /api/assets/{id}.
func (h *AssetsHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	var req editAssetRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := store.AssetPatch{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		OS:          req.OS,
		Location:    req.Location,
		Attributes:  req.Attributes,
	}
	view, err := h.Service.Edit(r.Context(), id, patch, requesterEmail(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, view)
}

// Remove handles DELETE /api/assets/{id}. The asset is retired, not erased:
// its ledger stays intact.
func (h *AssetsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	view, err := h.Service.Remove(r.Context(), id, requesterEmail(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, view)
}

// Checkout handles POST /api/assets/{id}/checkout.
func (h *AssetsHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.Service.Checkout(r.Context(), id, req.ReturnDate, requesterEmail(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, view)
}

// Checkin handles POST /api/assets/{id}/checkin.
func (h *AssetsHandler) Checkin(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	view, err := h.Service.Checkin(r.Context(), id, requesterEmail(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, view)
}

// CheckoutFor handles POST /api/assets/{id}/checkout-for.
func (h *AssetsHandler) CheckoutFor(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	var req checkoutForRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.Service.CheckoutForUser(r.Context(), id, req.ReturnDate, requesterEmail(r), req.UserInfo)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, view)
}

// CheckinFor handles POST /api/assets/{id}/checkin-for.
func (h *AssetsHandler) CheckinFor(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	var req checkinForRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.Service.CheckinForUser(r.Context(), id, requesterEmail(r), req.UserInfo)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, view)
}

// Reconcile handles POST /api/assets/{id}/reconcile.
func (h *AssetsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	result, err := h.Service.Reconcile(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

// UploadImage handles PUT /api/assets/{id}/image.
func (h *AssetsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	a, err := store.GetAsset(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get asset")
		return
	}
	if a == nil {
		jsonError(w, http.StatusNotFound, "asset not found")
		return
	}

	// Limit to 5 MB.
	r.Body = http.MaxBytesReader(w, r.Body, 5<<20)

	if err := r.ParseMultipartForm(5 << 20); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	processed, err := imaging.Process(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetAssetImage(r.Context(), h.DB, id, processed.Data, processed.MIME); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// GetImage handles GET /api/assets/{id}/image.
func (h *AssetsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	data, mime, err := store.GetAssetImage(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// requesterEmail returns the authenticated caller's email, or empty when
// unauthenticated (only possible on routes without the auth middleware).
func requesterEmail(r *http.Request) string {
	if claims := GetClaims(r.Context()); claims != nil {
		return claims.Email
	}
	return ""
}
