// Package httpapi exposes the core services over HTTP: a chi router maps
// the route table onto the mutate/search/indexing/durability services and
// translates between api DTOs and domain types.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iwinterknight/vectordb/internal/vectordb/app"
)

// NewRouter builds the full route table against ctx.
func NewRouter(ctx *app.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(ctx))

	h := &handler{ctx: ctx}

	r.Get("/healthz", h.healthz)

	r.Route("/libraries", func(r chi.Router) {
		r.Post("/", h.createLibrary)
		r.Get("/", h.listLibraries)

		r.Route("/{libraryID}", func(r chi.Router) {
			r.Get("/", h.getLibrary)
			r.Patch("/", h.updateLibrary)
			r.Delete("/", h.deleteLibrary)

			r.Post("/search", h.search)
			r.Post("/search/rerank", h.rerank)

			r.Post("/index/build", h.buildIndex)
			r.Get("/index", h.getIndexState)

			r.Route("/documents", func(r chi.Router) {
				r.Post("/", h.createDocument)
				r.Get("/", h.listDocuments)

				r.Route("/{documentID}", func(r chi.Router) {
					r.Get("/", h.getDocument)
					r.Patch("/", h.updateDocument)
					r.Delete("/", h.deleteDocument)

					r.Route("/chunks", func(r chi.Router) {
						r.Post("/", h.createChunk)
						r.Get("/", h.listChunks)

						r.Route("/{chunkID}", func(r chi.Router) {
							r.Get("/", h.getChunk)
							r.Patch("/", h.updateChunk)
							r.Delete("/", h.deleteChunk)
						})
					})
				})
			})
		})
	})

	r.Post("/admin/snapshot", h.snapshot)

	return r
}

// requestLogger logs one structured line per request, in the style of
// chi's own middleware.Logger but against the application's slog.Logger.
func requestLogger(ctx *app.Context) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)
			ctx.Log.Info("http_request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(req.Context()),
			)
		})
	}
}
