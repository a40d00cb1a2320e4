package api

import (
	"time"

	"github.com/Domenick1991/staybooking/internal/service/booking"
	"github.com/Domenick1991/staybooking/internal/service/calendar"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type RouterConfig struct {
	JWTSecret     []byte
	DefaultBefore int
	DefaultAfter  int
}

// NewRouter builds the /api/v1 routes.
func NewRouter(cfg RouterConfig, calendarSvc calendar.CalendarUseCase, bookingSvc booking.BookingUseCase, log logrus.FieldLogger) (*gin.Engine, error) {
	if err := RegisterValidators(); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	v1 := router.Group("/api/v1")
	NewCalendarHandler(calendarSvc, cfg.DefaultBefore, cfg.DefaultAfter).
		Register(v1.Group("/units/:unitID"), AuthMiddleware(cfg.JWTSecret), RequireRole(RoleAdmin, RoleOwner))
	NewBookingHandler(bookingSvc).Register(v1.Group("/bookings"))
	return router, nil
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= 500 {
			entry.Error("request failed")
			return
		}
		entry.Debug("request served")
	}
}
