package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"quiz-runner/internal/app"
	"quiz-runner/internal/domain"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string        `json:"message"`
	Session *domain.State `json:"session,omitempty"`
}

type startRequest struct {
	QuizID string `json:"quizId" binding:"required"`
}

type answerRequest struct {
	// OptionID may be omitted to give up on the question.
	OptionID domain.ID `json:"optionId"`
}

type powerUpResponse struct {
	Kind      domain.PowerUpKind `json:"kind"`
	Activated bool               `json:"activated"`
	Session   domain.State       `json:"session"`
}

// quizCache is implemented by quiz repositories that can drop cached content.
type quizCache interface {
	Invalidate(ctx context.Context, quizID string) error
}

// Handler exposes the quiz use cases over REST and websocket.
type Handler struct {
	service *app.QuizService
	quizzes app.QuizRepository
	ws      *WSHandler
	logger  *slog.Logger
}

func NewHandler(service *app.QuizService, quizzes app.QuizRepository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		quizzes: quizzes,
		ws:      NewWSHandler(service, logger),
		logger:  logger,
	}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger))
	h.SetupRoutes(router)
	return router
}

// SetupRoutes registers the quiz routes on router.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/quiz-data/:quizId", h.GetQuizData)
	router.DELETE("/quiz-data/:quizId", h.RefreshQuizData)
	router.GET("/ws", gin.WrapF(h.ws.ServeWS))

	sessions := router.Group("/sessions")
	{
		sessions.POST("", h.StartSession)
		sessions.GET("/:id", h.GetSession)
		sessions.DELETE("/:id", h.EndSession)
		sessions.POST("/:id/answer", h.SubmitAnswer)
		sessions.POST("/:id/power-ups/:kind", h.ActivatePowerUp)
		sessions.GET("/:id/results", h.GetResults)
		sessions.POST("/:id/restart", h.RestartSession)
	}
}

// GetQuizData serves quiz content in the question-source JSON shape.
func (h *Handler) GetQuizData(c *gin.Context) {
	quiz, err := h.quizzes.GetQuiz(c.Request.Context(), c.Param("quizId"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

// RefreshQuizData drops cached quiz content; sessions already running keep
// the questions they loaded.
func (h *Handler) RefreshQuizData(c *gin.Context) {
	cache, ok := h.quizzes.(quizCache)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	if err := cache.Invalidate(c.Request.Context(), c.Param("quizId")); err != nil {
		h.fail(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) StartSession(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "quizId is required"})
		return
	}
	state, err := h.service.Start(c.Request.Context(), strings.TrimSpace(req.QuizID))
	if err != nil {
		h.fail(c, err, &state)
		return
	}
	c.JSON(http.StatusCreated, state)
}

func (h *Handler) GetSession(c *gin.Context) {
	state, err := h.service.State(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) EndSession(c *gin.Context) {
	if _, err := h.service.State(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err, nil)
		return
	}
	h.service.End(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *Handler) SubmitAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid answer payload"})
		return
	}
	outcome, err := h.service.Answer(c.Request.Context(), c.Param("id"), req.OptionID)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *Handler) ActivatePowerUp(c *gin.Context) {
	kind, err := domain.ParsePowerUpKind(c.Param("kind"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	state, activated, err := h.service.ActivatePowerUp(c.Request.Context(), c.Param("id"), kind)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, powerUpResponse{Kind: kind, Activated: activated, Session: state})
}

func (h *Handler) GetResults(c *gin.Context) {
	results, err := h.service.Results(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *Handler) RestartSession(c *gin.Context) {
	state, err := h.service.Restart(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			h.fail(c, err, nil)
			return
		}
		h.fail(c, err, &state)
		return
	}
	c.JSON(http.StatusCreated, state)
}

func (h *Handler) fail(c *gin.Context, err error, state *domain.State) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.JSON(status, ErrorResponse{Message: err.Error(), Session: state})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownPowerUp):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInputLocked),
		errors.Is(err, domain.ErrSessionComplete),
		errors.Is(err, domain.ErrNotStarted),
		errors.Is(err, domain.ErrSessionNotComplete),
		errors.Is(err, domain.ErrAlreadyLoaded),
		errors.Is(err, domain.ErrNotRevealing):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidQuiz), errors.Is(err, domain.ErrNoQuestions):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
