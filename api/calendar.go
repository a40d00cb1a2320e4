package api

import (
	"net/http"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/Domenick1991/staybooking/internal/service/calendar"
	"github.com/gin-gonic/gin"
)

type CalendarHandler struct {
	service       calendar.CalendarUseCase
	defaultBefore int
	defaultAfter  int
}

type conflictsQuery struct {
	rangeQuery
	Exclude string `form:"exclude"`
}

type alternativesQuery struct {
	rangeQuery
	Before *int `form:"before" binding:"omitempty,min=0"`
	After  *int `form:"after" binding:"omitempty,min=0"`
}

type resolveRequest struct {
	Start            string `json:"start" binding:"required,isodate"`
	End              string `json:"end" binding:"required,isodate"`
	Strategy         string `json:"strategy" binding:"required"`
	CurrentBookingID string `json:"current_booking_id"`
}

type blockRequest struct {
	Start  string `json:"start" binding:"required,isodate"`
	End    string `json:"end" binding:"required,isodate"`
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

type unblockRequest struct {
	Start string `json:"start" binding:"required,isodate"`
	End   string `json:"end" binding:"required,isodate"`
}

type alternativesResponse struct {
	UnitID       int64                      `json:"unit_id"`
	Preferred    domain.DateRange           `json:"preferred"`
	Alternatives []domain.AlternativePeriod `json:"alternatives"`
}

type recordsResponse struct {
	UnitID  int64                   `json:"unit_id"`
	Records []domain.ScheduleRecord `json:"records"`
}

func NewCalendarHandler(service calendar.CalendarUseCase, defaultBefore, defaultAfter int) *CalendarHandler {
	return &CalendarHandler{service: service, defaultBefore: defaultBefore, defaultAfter: defaultAfter}
}

// Register mounts the unit routes; admin guards the block endpoints.
func (h *CalendarHandler) Register(router *gin.RouterGroup, admin ...gin.HandlerFunc) {
	router.GET("/conflicts", h.conflicts)
	router.GET("/alternatives", h.alternatives)
	router.GET("/availability", h.availability)
	router.POST("/resolutions", h.resolve)

	blocks := router.Group("/blocks", admin...)
	blocks.POST("", h.block)
	blocks.DELETE("", h.unblock)
}

func (h *CalendarHandler) conflicts(c *gin.Context) {
	unitID, err := unitIDParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	var q conflictsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	check, err := h.service.CheckConflicts(c.Request.Context(), unitID, q.dateRange(), optionalString(q.Exclude))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (h *CalendarHandler) alternatives(c *gin.Context) {
	unitID, err := unitIDParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	var q alternativesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	before, after := h.defaultBefore, h.defaultAfter
	if q.Before != nil {
		before = *q.Before
	}
	if q.After != nil {
		after = *q.After
	}

	preferred := q.dateRange()
	periods, err := h.service.FindAlternativePeriods(c.Request.Context(), unitID, preferred, before, after)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alternativesResponse{UnitID: unitID, Preferred: preferred, Alternatives: periods})
}

func (h *CalendarHandler) availability(c *gin.Context) {
	unitID, err := unitIDParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	var q rangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	snap, err := h.service.GetAvailability(c.Request.Context(), unitID, q.dateRange())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *CalendarHandler) resolve(c *gin.Context) {
	unitID, err := unitIDParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	strategy, err := domain.ParseResolutionStrategy(req.Strategy)
	if err != nil {
		badRequest(c, err)
		return
	}

	r := domain.NewDateRange(parseDate(req.Start), parseDate(req.End))
	result, err := h.service.ResolveConflicts(c.Request.Context(), unitID, r, strategy, optionalString(req.CurrentBookingID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CalendarHandler) block(c *gin.Context) {
	unitID, err := unitIDParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	status, err := domain.ParseDayStatus(req.Status)
	if err != nil {
		badRequest(c, err)
		return
	}

	records, err := h.service.BlockDays(c.Request.Context(), calendar.BlockInput{
		UnitID: unitID,
		Range:  domain.NewDateRange(parseDate(req.Start), parseDate(req.End)),
		Status: status,
		Reason: req.Reason,
		Notes:  req.Notes,
		Actor:  c.GetString(ctxSubject),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, recordsResponse{UnitID: unitID, Records: records})
}

func (h *CalendarHandler) unblock(c *gin.Context) {
	unitID, err := unitIDParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	var req unblockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	records, err := h.service.UnblockDays(c.Request.Context(), calendar.UnblockInput{
		UnitID: unitID,
		Range:  domain.NewDateRange(parseDate(req.Start), parseDate(req.End)),
		Actor:  c.GetString(ctxSubject),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, recordsResponse{UnitID: unitID, Records: records})
}
