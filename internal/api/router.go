package api

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/auth"
	"github.com/erazemk/stockledger/internal/blob"
	"github.com/erazemk/stockledger/internal/clock"
	"github.com/erazemk/stockledger/internal/ledger"
	"github.com/erazemk/stockledger/internal/locations"
	"github.com/erazemk/stockledger/internal/metrics"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/movement"
	"github.com/erazemk/stockledger/internal/picking"
)

// Deps are the services the API is built on.
type Deps struct {
	DB        *sqlx.DB
	Clock     clock.Clock
	Issuer    *auth.Issuer
	Ledger    *ledger.Ledger
	Mover     *movement.Mover
	Picking   *picking.Service
	Hub       *picking.Hub
	Locations *locations.Resolver
	Blobs     blob.Store
	Metrics   *metrics.Metrics
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB, Issuer: d.Issuer}
	usersHandler := &UsersHandler{DB: d.DB}
	slotsHandler := &SlotsHandler{DB: d.DB, Ledger: d.Ledger, Mover: d.Mover}
	logsHandler := &LogsHandler{DB: d.DB, Ledger: d.Ledger}
	locationsHandler := &LocationsHandler{Resolver: d.Locations}
	listsHandler := &ListsHandler{Service: d.Picking, Hub: d.Hub}
	workspaceHandler := &WorkspaceHandler{Service: d.Picking, Hub: d.Hub}
	presenceHandler := &PresenceHandler{DB: d.DB, Clock: d.Clock}
	skusHandler := &SKUsHandler{DB: d.DB, Clock: d.Clock, Blobs: d.Blobs}

	authMW := AuthMiddleware(d.Issuer, d.DB)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)
	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authed(authHandler.ChangePassword))
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Slots: quantity changes (all roles), flush (manager+).
	mux.Handle("GET /api/slots", authed(slotsHandler.List))
	mux.Handle("POST /api/slots", authed(slotsHandler.AddStock))
	mux.Handle("GET /api/slots/{id}", authed(slotsHandler.Get))
	mux.Handle("PUT /api/slots/{id}", authed(slotsHandler.SetQuantity))
	mux.Handle("DELETE /api/slots/{id}", authed(slotsHandler.Delete))
	mux.Handle("POST /api/slots/{id}/delta", authed(slotsHandler.Delta))
	mux.Handle("POST /api/slots/{id}/move", authed(slotsHandler.Move))
	mux.Handle("POST /api/ledger/flush", authMW(requireManager(http.HandlerFunc(slotsHandler.Flush))))

	// Audit trail.
	mux.Handle("GET /api/logs", authed(logsHandler.List))
	mux.Handle("POST /api/logs/{id}/undo", authed(logsHandler.Undo))

	// Locations: read and resolve (all), register and sync (manager+).
	mux.Handle("GET /api/locations", authed(locationsHandler.List))
	mux.Handle("POST /api/locations/resolve", authed(locationsHandler.Resolve))
	mux.Handle("POST /api/locations", authMW(requireManager(http.HandlerFunc(locationsHandler.Create))))
	mux.Handle("POST /api/locations/sync", authMW(requireManager(http.HandlerFunc(locationsHandler.Sync))))

	// Picking lists.
	mux.Handle("GET /api/lists", authed(listsHandler.List))
	mux.Handle("POST /api/lists", authed(listsHandler.Create))
	mux.Handle("GET /api/lists/{id}", authed(listsHandler.Get))
	mux.Handle("DELETE /api/lists/{id}", authed(listsHandler.Delete))
	mux.Handle("PUT /api/lists/{id}/items", authed(listsHandler.SaveItems))
	mux.Handle("POST /api/lists/{id}/ready", authed(listsHandler.MarkReady))
	mux.Handle("POST /api/lists/{id}/lock", authed(listsHandler.Lock))
	mux.Handle("POST /api/lists/{id}/release", authed(listsHandler.Release))
	mux.Handle("POST /api/lists/{id}/return", authed(listsHandler.Return))
	mux.Handle("POST /api/lists/{id}/revert", authed(listsHandler.Revert))
	mux.Handle("POST /api/lists/{id}/complete", authed(listsHandler.Complete))
	mux.Handle("GET /api/lists/{id}/notes", authed(listsHandler.Notes))
	mux.Handle("POST /api/lists/{id}/notes", authed(listsHandler.AddNote))

	// Workspace and availability.
	mux.Handle("GET /api/workspace", authed(workspaceHandler.Get))
	mux.Handle("POST /api/workspace/cart", authed(workspaceHandler.AddToCart))
	mux.Handle("PUT /api/workspace/cart", authed(workspaceHandler.UpdateQuantity))
	mux.Handle("PUT /api/workspace/building", authed(workspaceHandler.SetBuilding))
	mux.Handle("POST /api/workspace/takeover/ack", authed(workspaceHandler.AcknowledgeTakeover))
	mux.Handle("GET /api/reservations", authed(workspaceHandler.Reservations))

	// Presence.
	mux.Handle("POST /api/presence", authed(presenceHandler.Touch))
	mux.Handle("GET /api/presence", authed(presenceHandler.List))

	// SKU metadata: read (all), write (manager+).
	mux.Handle("GET /api/skus/{sku}", authed(skusHandler.Get))
	mux.Handle("PUT /api/skus/{sku}", authMW(requireManager(http.HandlerFunc(skusHandler.Update))))
	mux.Handle("GET /api/skus/{sku}/photo", authed(skusHandler.Photo))
	mux.Handle("PUT /api/skus/{sku}/photo", authMW(requireManager(http.HandlerFunc(skusHandler.UploadPhoto))))

	return LoggingMiddleware(d.Metrics)(mux)
}
