// goban/handlers/router.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func SetupRouter(app App) *chi.Mux {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(NewStructuredLogger(app.Logger()))
	mux.Use(middleware.Recoverer)
	mux.Use(CookieMiddleware)
	mux.Use(CSRFMiddleware)
	mux.Use(AuthMiddleware(app))

	// Action handlers
	mux.Post("/post", MakeHandler(app, HandlePost))
	mux.Post("/delete", MakeHandler(app, HandleCookieDelete))
	mux.Post("/report", MakeHandler(app, HandleReport))

	// Moderation handlers
	mux.Route("/mod", func(r chi.Router) {
		r.Use(RequireModerator)
		r.Post("/approve", MakeHandler(app, HandleApprove))
		r.Post("/hide", MakeHandler(app, HandleHide))
		r.Post("/delete-post", MakeHandler(app, HandleModDelete))
		r.Post("/toggle-sticky", MakeHandler(app, HandleToggleSticky))
		r.Post("/toggle-lock", MakeHandler(app, HandleToggleLock))
		r.Post("/ban", MakeHandler(app, HandleBan))
		r.Post("/remove-ban", MakeHandler(app, HandleRemoveBan))
		r.Get("/reports", MakeHandler(app, HandleReports))
		r.Post("/resolve-report", MakeHandler(app, HandleResolveReport))
		r.Get("/keywords", MakeHandler(app, HandleKeywords))
		r.Post("/keywords", MakeHandler(app, HandleAddKeyword))
		r.Post("/remove-keyword", MakeHandler(app, HandleRemoveKeyword))
		r.Get("/log", MakeHandler(app, HandleModLog))
		r.Get("/thread/{threadID}", MakeHandler(app, HandleModThread))
		r.Post("/rebuild", MakeHandler(app, HandleRebuild))
	})

	// The rendered site itself: static pages and uploaded files.
	mux.Handle("/*", http.FileServer(http.Dir(app.StaticDir())))

	return mux
}
