package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/deepfake-detect/internal/logging"
	"github.com/example/deepfake-detect/internal/upload"
	"github.com/example/deepfake-detect/internal/usecase"
)

// DefaultMaxUploadSize caps the request body accepted by /detect.
const DefaultMaxUploadSize = 10 << 20

// multipartOverhead is the body allowance for boundaries and part headers
// on top of the file size limit.
const multipartOverhead = 1 << 20

// RequestIDHeader carries the identifier of a detection back to the client.
const RequestIDHeader = "X-Request-ID"

const (
	errNoFile           = "No file uploaded"
	errPredictionFailed = "Prediction failed"
	errTooLarge         = "File too large"
)

// Handler serves the detection API.
type Handler struct {
	uc            *usecase.DetectionUseCase
	store         *upload.Store
	logger        *zap.Logger
	maxUploadSize int64
}

// NewHandler builds the HTTP layer; a non-positive maxUploadSize means DefaultMaxUploadSize.
func NewHandler(uc *usecase.DetectionUseCase, store *upload.Store, logger *zap.Logger, maxUploadSize int64) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &Handler{
		uc:            uc,
		store:         store,
		logger:        logger.Named("http"),
		maxUploadSize: maxUploadSize,
	}
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, h *Handler) {
	router.GET("/health", h.Health)
	router.POST("/detect", h.Detect)
	router.GET("/result/:id", h.Result)
	router.GET("/metrics", h.Metrics)
}

// CORSMiddleware allows browser clients from origins; "*" allows any origin.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && strings.TrimSpace(origins[0]) == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Detect stores the multipart field "file", classifies it and answers with
// the verdict. The stored upload is released on every path.
func (h *Handler) Detect(c *gin.Context) {
	requestID := uuid.NewString()
	c.Header(RequestIDHeader, requestID)
	opLogger := logging.WithOperation(h.logger, "http.detect", requestID)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+multipartOverhead)
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": errTooLarge})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errNoFile})
		return
	}
	if file.Size > h.maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": errTooLarge})
		return
	}

	path := h.store.Path(requestID, file.Filename)
	defer h.store.Release(path)

	if err := c.SaveUploadedFile(file, path); err != nil {
		opLogger.Error("failed to save upload", zap.Error(err), zap.String("path", path))
		c.JSON(http.StatusInternalServerError, gin.H{"error": errPredictionFailed})
		return
	}

	detection, err := h.uc.Detect(c.Request.Context(), requestID, file.Filename, path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errPredictionFailed})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":     detection.Result,
		"confidence": confidenceNumber(detection.Confidence),
	})
}

// confidenceNumber renders whole values with a trailing ".0" (20 -> 20.0),
// the way the web client has always received them.
func confidenceNumber(v float64) json.Number {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.Number(s)
}

// Result returns a stored detection by request ID.
func (h *Handler) Result(c *gin.Context) {
	requestID := c.Param("id")
	if requestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	detection, err := h.uc.GetResult(c.Request.Context(), requestID)
	if errors.Is(err, usecase.ErrResultNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}
	if err != nil {
		logging.WithOperation(h.logger, "http.result", requestID).Error("failed to load result", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
		return
	}
	c.JSON(http.StatusOK, detection)
}

// Metrics returns aggregated detection statistics.
func (h *Handler) Metrics(c *gin.Context) {
	summary, err := h.uc.GetMetricsSummary(c.Request.Context())
	if errors.Is(err, usecase.ErrMetricsUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics unavailable"})
		return
	}
	if err != nil {
		logging.WithOperation(h.logger, "http.metrics", "").Error("failed to aggregate metrics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
		return
	}
	c.JSON(http.StatusOK, summary)
}
