package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gatekeeper/internal/store"
)

// Server exposes the operational HTTP surface: a health check and the
// read-only request counters.
type Server struct {
	router *gin.Engine
	store  *store.Store
	log    *logrus.Logger
}

func NewServer(st *store.Store, log *logrus.Logger) *Server {
	router := gin.Default()

	s := &Server{
		router: router,
		store:  st,
		log:    log,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	s.router.GET("/api/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.store.Stats())
	})
}

func (s *Server) Run(addr string) {
	s.log.Infof("Server starting on port %s...", addr)
	if err := s.router.Run(addr); err != nil {
		s.log.Errorf("Server failed: %v", err)
	}
}
