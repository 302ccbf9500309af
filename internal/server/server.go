// Package server exposes the trainer's operations over HTTP. The server is
// a thin shell: quality grades, timestamps and learner scoping are decoded
// here and everything else is delegated to the trainer service.
package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/chunktrainer/internal/database"
	"github.com/example/chunktrainer/internal/trainer"
)

// Server bundles the handlers' dependencies.
type Server struct {
	svc   *trainer.Service
	store *database.Store
	log   *zap.SugaredLogger
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(svc *trainer.Service, store *database.Store, log *zap.SugaredLogger) *gin.Engine {
	s := &Server{svc: svc, store: store, log: log}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthcheck", s.healthCheck)

	api := router.Group("/api")
	{
		api.GET("/chunks", s.listChunks)
		api.POST("/chunks", s.addChunk)
		api.PUT("/chunks/:id", s.editChunk)
		api.DELETE("/chunks", s.wipeAll)
		api.POST("/chunks/delete", s.deleteChunks)
		api.POST("/chunks/reset-intervals", s.resetIntervals)
		api.GET("/chunks/:id/history", s.chunkHistory)
		api.GET("/chunks/:id/verify", s.verifyChunk)
		api.POST("/chunks/:id/repair", s.repairChunk)

		api.GET("/review/batch", s.todayBatch)
		api.POST("/review", s.submitReview)

		api.GET("/stats", s.stats)
		api.GET("/export", s.exportCSV)
		api.POST("/import", s.importFile)
	}

	return router
}
