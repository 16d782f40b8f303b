package client

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/veranda-labs/canvass/internal/geo"
	"github.com/veranda-labs/canvass/internal/shift"
)

// NewControlHandler exposes the session over a localhost HTTP surface for
// the rep-facing UI. It is not authenticated: bind it to loopback only.
func NewControlHandler(session *Session, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	control := &controlHandler{session: session, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/control/start", control.handleStart)
	router.POST("/control/door", control.handleDoor)
	router.POST("/control/pause", control.handlePause)
	router.POST("/control/resume", control.handleResume)
	router.POST("/control/end", control.handleEnd)
	router.POST("/control/fix", control.handleFix)
	router.POST("/control/sync", control.handleSync)
	router.GET("/control/status", control.handleStatus)
	return router
}

type controlHandler struct {
	session *Session
	logger  *zap.Logger
}

func (h *controlHandler) handleStart(c *gin.Context) {
	opened, err := h.session.StartShift()
	if err != nil {
		respondShiftError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shiftId": opened.ShiftID, "state": h.session.State()})
}

type doorRequestPayload struct {
	Status      string  `json:"status"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Accuracy    float64 `json:"accuracy"`
	HouseNumber string  `json:"houseNumber"`
	RoadName    string  `json:"roadName"`
	Note        string  `json:"note"`
}

func (h *controlHandler) handleDoor(c *gin.Context) {
	var request doorRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	status, ok := parseDoorStatus(request.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	}
	event, err := h.session.RecordDoor(shift.DoorParams{
		Status:      status,
		Position:    geo.Fix{Lat: request.Lat, Lng: request.Lng, Accuracy: request.Accuracy},
		HouseNumber: request.HouseNumber,
		RoadName:    request.RoadName,
		Note:        request.Note,
	})
	if err != nil {
		respondShiftError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"eventId": event.ID})
}

func (h *controlHandler) handlePause(c *gin.Context) {
	if err := h.session.PauseShift(); err != nil {
		respondShiftError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.session.State()})
}

func (h *controlHandler) handleResume(c *gin.Context) {
	if err := h.session.ResumeShift(); err != nil {
		respondShiftError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.session.State()})
}

func (h *controlHandler) handleEnd(c *gin.Context) {
	summary, err := h.session.EndShift(c.Request.Context())
	if err != nil {
		respondShiftError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type fixRequestPayload struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"`
}

func (h *controlHandler) handleFix(c *gin.Context) {
	var request fixRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.session.ApplyFix(c.Request.Context(), geo.Fix{
		Lat:      request.Lat,
		Lng:      request.Lng,
		Accuracy: request.Accuracy,
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *controlHandler) handleSync(c *gin.Context) {
	drained, err := h.session.Sync(c.Request.Context())
	if err != nil {
		h.logger.Warn("manual sync failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "sync_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"drained": drained})
}

func (h *controlHandler) handleStatus(c *gin.Context) {
	pending, err := h.session.Pending()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status_failed"})
		return
	}
	response := gin.H{
		"state":   h.session.State(),
		"pending": pending,
	}
	if summary, err := h.session.Summary(); err == nil {
		response["summary"] = summary
	}
	c.JSON(http.StatusOK, response)
}

// respondShiftError maps lifecycle violations to 409 and everything else to
// 500; the UI renders 409s as user-facing notices.
func respondShiftError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, shift.ErrAlreadyActive),
		errors.Is(err, shift.ErrNoActiveShift),
		errors.Is(err, shift.ErrShiftEnded),
		errors.Is(err, shift.ErrAlreadyPaused),
		errors.Is(err, shift.ErrNotPaused):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func parseDoorStatus(value string) (shift.DoorStatus, bool) {
	switch shift.DoorStatus(value) {
	case shift.DoorStatusNoAnswer, shift.DoorStatusNoSale, shift.DoorStatusSignUp:
		return shift.DoorStatus(value), true
	default:
		return "", false
	}
}
