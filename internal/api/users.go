package api

import (
	"database/sql"
	"net/http"

	"github.com/pointsource/checkit/internal/asset"
	"github.com/pointsource/checkit/internal/model"
	"github.com/pointsource/checkit/internal/store"
)

// UsersHandler handles the user directory and reservation endpoints.
type UsersHandler struct {
	DB      *sql.DB
	Service *asset.Service
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// MyReservations handles GET /api/users/me/reservations: the caller's open
// loans, derived from their ledger records.
func (h *UsersHandler) MyReservations(w http.ResponseWriter, r *http.Request) {
	reservations, err := h.Service.UserReservations(r.Context(), requesterEmail(r))
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, reservations)
}
