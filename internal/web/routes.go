package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/deep-saket/color-matching/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	cat := s.service.Matcher().Catalog()
	maxUpload := int64(s.config.Web.MaxUploadMB) << 20

	matchHandler := handlers.NewMatchHandler(s.service, s.labels, maxUpload, s.logger)
	swatchesHandler := handlers.NewSwatchesHandler(cat, s.labels)
	configHandler := handlers.NewConfigHandler(s.config, cat)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/config", configHandler.Get)

		r.Get("/swatches", swatchesHandler.List)
		r.Get("/swatches/{name}", swatchesHandler.Get)

		r.Post("/match", matchHandler.Match)
	})
}
