package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wearcoach/wearcoach/internal/chat"
	"github.com/wearcoach/wearcoach/internal/health"
	"github.com/wearcoach/wearcoach/internal/knowledge"
)

// Handler serves the chat and ingestion endpoints.
type Handler struct {
	Gen              *chat.Generator
	Knowledge        *knowledge.KnowledgeStore
	DefaultCharacter string
}

// Register mounts the API routes on g.
func (h *Handler) Register(g *echo.Group) {
	g.POST("/chat", h.chat)
	g.POST("/chat/fixed", h.chatFixed)
	g.POST("/ingest", h.ingest)
	g.POST("/ingest/batch", h.ingestBatch)
	g.GET("/users/:user_id/latest", h.latest)
}

type chatRequest struct {
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	Character string `json:"character"`
}

func (h *Handler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message required")
	}
	if req.Character == "" {
		req.Character = h.DefaultCharacter
	}
	reply, err := h.Gen.Generate(c.Request().Context(), req.UserID, req.Message, req.Character)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, reply)
}

type fixedRequest struct {
	UserID       string `json:"user_id"`
	QuestionType string `json:"question_type"`
	Character    string `json:"character"`
}

func (h *Handler) chatFixed(c echo.Context) error {
	var req fixedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.QuestionType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question_type required")
	}
	if req.Character == "" {
		req.Character = h.DefaultCharacter
	}
	reply, err := h.Gen.FixedResponse(c.Request().Context(), req.UserID, req.QuestionType, req.Character)
	if err != nil {
		// Only a bad question type is the client's fault; completion
		// failures are upstream errors.
		if errors.Is(err, chat.ErrUnknownQuestionType) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, reply)
}

type ingestRequest struct {
	UserID  string          `json:"user_id"`
	Source  string          `json:"source"`
	Summary health.Snapshot `json:"summary"`
}

func (h *Handler) ingest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	userID := chat.NormalizeUserID(req.UserID)
	if req.Source == "" {
		req.Source = "api"
	}
	res, err := h.Knowledge.IngestOne(c.Request().Context(), req.Summary, userID, req.Source)
	if err != nil {
		if errors.Is(err, knowledge.ErrMissingDate) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

type ingestBatchRequest struct {
	UserID    string            `json:"user_id"`
	Source    string            `json:"source"`
	Summaries []health.Snapshot `json:"summaries"`
}

func (h *Handler) ingestBatch(c echo.Context) error {
	var req ingestBatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	userID := chat.NormalizeUserID(req.UserID)
	if req.Source == "" {
		req.Source = "api"
	}
	res, err := h.Knowledge.IngestBatch(c.Request().Context(), req.Summaries, userID, req.Source)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) latest(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id required")
	}
	neighbor, ok, err := h.Knowledge.Latest(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no summaries for user")
	}
	return c.JSON(http.StatusOK, neighbor)
}
