package api

import (
	"database/sql"
	"net/http"

	"github.com/pointsource/checkit/internal/asset"
	"github.com/pointsource/checkit/internal/model"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string, service *asset.Service) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	assetsHandler := &AssetsHandler{DB: db, Service: service}
	usersHandler := &UsersHandler{DB: db, Service: service}

	authMW := AuthMiddleware(jwtSecret)
	requireAdmin := RequireRole(model.RoleAdmin)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))

	// Assets: reads and self-service lifecycle (all roles).
	mux.Handle("GET /api/assets", authMW(http.HandlerFunc(assetsHandler.List)))
	mux.Handle("GET /api/assets/{id}", authMW(http.HandlerFunc(assetsHandler.Get)))
	mux.Handle("GET /api/assets/{id}/records", authMW(http.HandlerFunc(assetsHandler.GetRecords)))
	mux.Handle("GET /api/assets/{id}/image", authMW(http.HandlerFunc(assetsHandler.GetImage)))
	mux.Handle("POST /api/assets/{id}/checkout", authMW(http.HandlerFunc(assetsHandler.Checkout)))
	mux.Handle("POST /api/assets/{id}/checkin", authMW(http.HandlerFunc(assetsHandler.Checkin)))

	// Assets: administration.
	mux.Handle("POST /api/assets", authMW(requireAdmin(http.HandlerFunc(assetsHandler.Create))))
	mux.Handle("PUT /api/assets/{id}", authMW(requireAdmin(http.HandlerFunc(assetsHandler.Edit))))
	mux.Handle("DELETE /api/assets/{id}", authMW(requireAdmin(http.HandlerFunc(assetsHandler.Remove))))
	mux.Handle("POST /api/assets/{id}/checkout-for", authMW(requireAdmin(http.HandlerFunc(assetsHandler.CheckoutFor))))
	mux.Handle("POST /api/assets/{id}/checkin-for", authMW(requireAdmin(http.HandlerFunc(assetsHandler.CheckinFor))))
	mux.Handle("POST /api/assets/{id}/reconcile", authMW(requireAdmin(http.HandlerFunc(assetsHandler.Reconcile))))
	mux.Handle("PUT /api/assets/{id}/image", authMW(requireAdmin(http.HandlerFunc(assetsHandler.UploadImage))))

	// Users.
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("GET /api/users/me/reservations", authMW(http.HandlerFunc(usersHandler.MyReservations)))

	return mux
}
