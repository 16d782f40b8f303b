// Package server exposes the sync and dashboard API: idempotent collection
// writes from rep clients, reads and exports for the back office, and the
// live-position feed over websocket.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/veranda-labs/canvass/internal/export"
	"github.com/veranda-labs/canvass/internal/geo"
	"github.com/veranda-labs/canvass/internal/live"
	"github.com/veranda-labs/canvass/internal/shift"
	"github.com/veranda-labs/canvass/internal/store"
)

var errInvalidAuthorization = errors.New("authorization token missing or invalid")

// TokenValidator authorizes API callers. The identity layer is out of
// process; this seam is all the server needs.
type TokenValidator interface {
	Validate(token string) error
}

// StaticTokenValidator accepts a single pre-shared token.
type StaticTokenValidator struct {
	Token string
}

// Validate compares the presented token in constant time.
func (v StaticTokenValidator) Validate(token string) error {
	if v.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(v.Token)) != 1 {
		return errInvalidAuthorization
	}
	return nil
}

// PositionStore is the live-position collection consumed by the router.
type PositionStore interface {
	MergePosition(ctx context.Context, position geo.RepPosition) error
	ListPositions(ctx context.Context) ([]geo.RepPosition, error)
}

// Dependencies wires the router to its collaborators.
type Dependencies struct {
	Store     *store.Service
	Positions PositionStore
	Feed      *LiveFeed
	Validator TokenValidator
	Logger    *zap.Logger
}

// NewHTTPHandler builds the API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("server: store service is required")
	}
	if deps.Positions == nil {
		return nil, fmt.Errorf("server: position store is required")
	}
	if deps.Validator == nil {
		return nil, fmt.Errorf("server: token validator is required")
	}
	feed := deps.Feed
	if feed == nil {
		feed = NewLiveFeed()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		store:     deps.Store,
		positions: deps.Positions,
		feed:      feed,
		validator: deps.Validator,
		logger:    logger,
	}

	protected := router.Group("/v1")
	protected.Use(handler.authorizeRequest)
	protected.POST("/events", handler.handleUpsertDoorEvent)
	protected.POST("/summaries", handler.handleMergeSummary)
	protected.POST("/positions", handler.handleMergePosition)
	protected.GET("/live", handler.handleListLive)
	protected.GET("/live/ws", handler.handleLiveSocket)
	protected.GET("/shifts/:shiftID/events", handler.handleListShiftEvents)
	protected.GET("/shifts/:shiftID/summary", handler.handleGetSummary)
	protected.GET("/summaries", handler.handleListSummaries)
	protected.POST("/shifts/:shiftID/lock", handler.handleSetLock)
	protected.GET("/exports/shifts/:shiftID/events.csv", handler.handleExportEventsCSV)
	protected.GET("/exports/summaries.csv", handler.handleExportSummariesCSV)
	protected.GET("/exports/summaries.xlsx", handler.handleExportSummariesXLSX)

	return router, nil
}

type httpHandler struct {
	store     *store.Service
	positions PositionStore
	feed      *LiveFeed
	validator TokenValidator
	logger    *zap.Logger
}

// authorizeRequest accepts the token as a bearer header, or as a query
// parameter for the websocket route where browsers cannot set headers.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := ""
	header := c.GetHeader("Authorization")
	switch {
	case strings.HasPrefix(header, "Bearer "):
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	default:
		token = strings.TrimSpace(c.Query("token"))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	if err := h.validator.Validate(token); err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

type doorEventRequestPayload struct {
	RepID string          `json:"repId"`
	Event shift.DoorEvent `json:"event"`
}

func (h *httpHandler) handleUpsertDoorEvent(c *gin.Context) {
	var request doorEventRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.RepID) == "" ||
		strings.TrimSpace(request.Event.ID) == "" ||
		strings.TrimSpace(request.Event.ShiftID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.store.UpsertDoorEvent(c.Request.Context(), request.RepID, request.Event); err != nil {
		h.logger.Error("door event upsert failed",
			zap.String("event_id", request.Event.ID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleMergeSummary(c *gin.Context) {
	var summary shift.Summary
	if err := c.ShouldBindJSON(&summary); err != nil ||
		strings.TrimSpace(summary.ShiftID) == "" ||
		strings.TrimSpace(summary.RepID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	err := h.store.MergeShiftSummary(c.Request.Context(), summary)
	if errors.Is(err, store.ErrRemoteConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "superseded_by_admin"})
		return
	}
	if err != nil {
		h.logger.Error("summary merge failed",
			zap.String("shift_id", summary.ShiftID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleMergePosition(c *gin.Context) {
	var position geo.RepPosition
	if err := c.ShouldBindJSON(&position); err != nil || strings.TrimSpace(position.RepID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.positions.MergePosition(c.Request.Context(), position); err != nil {
		h.logger.Error("live position merge failed",
			zap.String("rep_id", position.RepID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write_failed"})
		return
	}
	h.feed.Publish(live.Delta{Type: live.DeltaModified, Position: position})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleListLive(c *gin.Context) {
	positions, err := h.positions.ListPositions(c.Request.Context())
	if err != nil {
		h.logger.Error("listing live positions failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

type doorEventResponsePayload struct {
	ID          string    `json:"id"`
	ShiftID     string    `json:"shiftId"`
	RepID       string    `json:"repId"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
	Position    geo.Fix   `json:"position"`
	HouseNumber string    `json:"houseNumber,omitempty"`
	RoadName    string    `json:"roadName,omitempty"`
	Note        string    `json:"note,omitempty"`
}

func (h *httpHandler) handleListShiftEvents(c *gin.Context) {
	records, err := h.store.ListShiftEvents(c.Request.Context(), c.Param("shiftID"))
	if err != nil {
		h.logger.Error("listing shift events failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}
	events := make([]doorEventResponsePayload, 0, len(records))
	for _, record := range records {
		events = append(events, doorEventResponsePayload{
			ID:          record.EventID,
			ShiftID:     record.ShiftID,
			RepID:       record.RepID,
			Timestamp:   time.UnixMilli(record.TimestampMillis).UTC(),
			Status:      record.Status,
			Position:    record.EventPosition(),
			HouseNumber: record.HouseNumber,
			RoadName:    record.RoadName,
			Note:        record.Note,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *httpHandler) handleGetSummary(c *gin.Context) {
	record, err := h.store.GetShiftSummary(c.Request.Context(), c.Param("shiftID"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("reading shift summary failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleListSummaries(c *gin.Context) {
	date := strings.TrimSpace(c.Query("date"))
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date_required"})
		return
	}
	records, err := h.store.ListSummariesByDate(c.Request.Context(), date)
	if err != nil {
		h.logger.Error("listing summaries failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": records})
}

type lockRequestPayload struct {
	Locked bool `json:"locked"`
}

func (h *httpHandler) handleSetLock(c *gin.Context) {
	var request lockRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.store.SetAdminLock(c.Request.Context(), c.Param("shiftID"), request.Locked); err != nil {
		h.logger.Error("setting admin lock failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleExportEventsCSV(c *gin.Context) {
	records, err := h.store.ListShiftEvents(c.Request.Context(), c.Param("shiftID"))
	if err != nil {
		h.logger.Error("event export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
		return
	}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="events.csv"`)
	if err := export.WriteEventsCSV(c.Writer, records); err != nil {
		h.logger.Error("writing event export", zap.Error(err))
	}
}

func (h *httpHandler) handleExportSummariesCSV(c *gin.Context) {
	records, ok := h.summariesForExport(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="summaries.csv"`)
	if err := export.WriteSummariesCSV(c.Writer, records); err != nil {
		h.logger.Error("writing summary export", zap.Error(err))
	}
}

func (h *httpHandler) handleExportSummariesXLSX(c *gin.Context) {
	records, ok := h.summariesForExport(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="summaries.xlsx"`)
	if err := export.WriteSummariesXLSX(c.Writer, records); err != nil {
		h.logger.Error("writing summary workbook", zap.Error(err))
	}
}

func (h *httpHandler) summariesForExport(c *gin.Context) ([]store.ShiftSummaryRecord, bool) {
	date := strings.TrimSpace(c.Query("date"))
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date_required"})
		return nil, false
	}
	records, err := h.store.ListSummariesByDate(c.Request.Context(), date)
	if err != nil {
		h.logger.Error("summary export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
		return nil, false
	}
	return records, true
}
