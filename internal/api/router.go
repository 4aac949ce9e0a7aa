package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events behind the same auth.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", h.ListNotes)
		r.Post("/", h.CreateNote)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetNote)
			r.Patch("/", h.PatchNote)
			r.Delete("/", h.DeleteNote)
			r.Put("/content", h.UpdateContent)
			r.Post("/migrate", h.MigrateNote)
		})
	})

	r.Get("/tags", h.ListTags)
	r.Get("/tags/{tag}/notes", h.NotesByTag)

	r.Post("/groups", h.CreateGroup)
	r.Get("/groups/{id}/children", h.GroupChildren)
	r.Patch("/groups/{id}", h.MoveGroup)
	r.Delete("/groups/{id}", h.DeleteGroup)

	r.Post("/index/rebuild", h.RebuildIndex)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
