// Package httpapi exposes a store over HTTP with a small CouchDB-flavoured
// JSON API.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/aretw0/humus/pkg/core"
)

// Store is the surface the API serves. *core.Service satisfies it.
type Store interface {
	core.Store
	Info(ctx context.Context) (core.Info, error)
}

type api struct {
	store  Store
	logger *slog.Logger
}

// NewRouter builds the HTTP handler for store.
//
//	GET    /             store info
//	POST   /docs         create with a generated (or body "_id") id
//	GET    /docs         list (pattern, limit, include_docs)
//	PUT    /docs/{id}    create, or update when a revision is supplied
//	GET    /docs/{id}    read
//	DELETE /docs/{id}    delete (rev query or If-Match)
//	GET    /changes      server-sent change feed (pattern)
//
// {id} is the rest of the path, so ids containing "/" may be sent either
// literally or percent-encoded.
func NewRouter(store Store, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &api{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "If-Match"},
		ExposedHeaders: []string{"ETag"},
		MaxAge:         300,
	}))

	r.Get("/", a.handleInfo)
	r.Route("/docs", func(r chi.Router) {
		r.Get("/", a.handleList)
		r.Post("/", a.handleCreate)
		r.Get("/*", a.handleGet)
		r.Put("/*", a.handlePut)
		r.Delete("/*", a.handleDelete)
	})
	r.Get("/changes", a.handleChanges)
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
