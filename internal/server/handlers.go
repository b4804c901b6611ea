package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/epimap/internal/classify"
	"github.com/ppiankov/epimap/internal/model"
	"github.com/ppiankov/epimap/internal/pipeline"
)

// TagRequest is the request body for POST /api/tag/text
type TagRequest struct {
	Text string `json:"text"`
}

// HealthResponse is the response body for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Nodes   int    `json:"nodes"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Nodes:   s.pipeline.Graph().Len(),
	})
}

func (s *Server) handleTagText(c echo.Context) error {
	start := time.Now()

	var req TagRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid tag request", zap.Error(err))
		return tagError(c, http.StatusBadRequest, "invalid request body", start)
	}

	res, err := s.pipeline.TagText(c.Request().Context(), req.Text)
	switch {
	case errors.Is(err, pipeline.ErrEmptyText):
		return tagError(c, http.StatusBadRequest, "Text cannot be empty", start)
	case errors.Is(err, pipeline.ErrTextTooLong):
		return tagError(c, http.StatusBadRequest, fmt.Sprintf("Text too long (max %d)", s.pipeline.MaxTextLength()), start)
	case err != nil:
		s.logger.Error("tagging failed", zap.Error(err))
		return tagError(c, http.StatusInternalServerError, "internal error", start)
	}

	elapsed := seconds(time.Since(start))
	s.logger.Info("processed text",
		zap.String("node_id", res.Node.ID),
		zap.Int("tags", len(res.Node.Tags)),
		zap.Float64("processing_time", elapsed),
	)

	node := res.Node
	return c.JSON(http.StatusOK, model.TagResponse{
		Success:        true,
		Node:           &node,
		ProcessingTime: elapsed,
	})
}

func tagError(c echo.Context, status int, msg string, start time.Time) error {
	return c.JSON(status, model.TagResponse{
		Success:        false,
		Error:          &msg,
		ProcessingTime: seconds(time.Since(start)),
	})
}

func seconds(d time.Duration) float64 {
	return classify.Round3(d.Seconds())
}

func (s *Server) handleEpistemologies(c echo.Context) error {
	explanations := s.pipeline.Classifier().Catalogue().Explanations()
	out := make(map[string]string, len(explanations))
	for cat, text := range explanations {
		out[cat.Label()] = text
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleCategories(c echo.Context) error {
	return c.JSON(http.StatusOK, s.pipeline.Classifier().Catalogue().Describe())
}

func (s *Server) handleGraph(c echo.Context) error {
	snap := s.pipeline.Graph().Snapshot()

	if c.QueryParam("format") == "yaml" {
		data, err := yaml.Marshal(snap)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "encode graph")
		}
		return c.Blob(http.StatusOK, "application/yaml", data)
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.pipeline.Graph().Stats())
}
