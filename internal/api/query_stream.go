package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/threadscope/internal/query"
)

// queryRequest is the body of POST /api/v1/query.
type queryRequest struct {
	Query     string `json:"query"`
	ChannelID string `json:"channel_id,omitempty"` // optional corpus scope
	Limit     int    `json:"limit,omitempty"`      // optional corpus bound
}

// handleQuery streams the query pipeline as newline-delimited JSON events.
// When the client disconnects, the request context cancels the stream:
// in-flight model calls finish upstream but their results go nowhere.
func (s *Server) handleQuery(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	}

	ctx := c.Request().Context()
	corpus, err := s.store.FetchCorpus(ctx, req.ChannelID, req.Limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
	c.Response().WriteHeader(http.StatusOK)

	job := query.NewJob(req.Query, corpus)
	events := s.engine.Run(ctx, job)
	return WriteEvents(c.Response(), events)
}

// flusher is what an NDJSON sink must support; echo's response implements it.
type flusher interface {
	io.Writer
	Flush()
}

// WriteEvents encodes each event as one JSON line and flushes immediately so
// consumers see progress as it happens.
func WriteEvents(w flusher, events <-chan query.Event) error {
	enc := json.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			// Client is gone; drain silently so the producer can finish.
			log.Debug().Err(err).Msg("Query stream write failed, draining events")
			for range events {
			}
			return nil
		}
		w.Flush()
	}
	return nil
}
