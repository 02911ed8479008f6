package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/threadscope/internal/llm"
	"github.com/threadscope/internal/query"
	"github.com/threadscope/internal/store"
	"github.com/threadscope/pkg/models"
)

// Server is the HTTP edge: the streaming query endpoint plus thin read
// endpoints over the router snapshot and stored verdicts.
type Server struct {
	echo   *echo.Echo
	port   int
	engine *query.Engine
	router *llm.Router
	store  store.Store
}

// NewServer creates the API server.
func NewServer(port int, engine *query.Engine, router *llm.Router, st store.Store) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:   e,
		port:   port,
		engine: engine,
		router: router,
		store:  st,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	v1 := s.echo.Group("/api/v1")
	v1.POST("/query", s.handleQuery)
	v1.GET("/llm/status", s.handleLLMStatus)
	v1.GET("/verdicts", s.handleListVerdicts)
	v1.GET("/verdicts/:threadID", s.handleGetVerdict)
}

// Start runs the server until an interrupt, then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleLLMStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"providers": s.router.Status(),
	})
}

func (s *Server) handleListVerdicts(c echo.Context) error {
	status := models.VerdictStatus(c.QueryParam("status"))
	switch status {
	case "", models.StatusPending, models.StatusAnalyzed:
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown status"})
	}

	verdicts, err := s.store.ListVerdicts(c.Request().Context(), status)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"verdicts": verdicts})
}

func (s *Server) handleGetVerdict(c echo.Context) error {
	threadID := c.Param("threadID")
	verdict, err := s.store.FetchVerdict(c.Request().Context(), threadID)
	if err != nil {
		if err == store.ErrThreadNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "verdict not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, verdict)
}
