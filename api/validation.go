package api

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const dateLayout = time.DateOnly

var registerOnce sync.Once

// RegisterValidators adds the custom binding rules used by the request structs.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("gin validator engine is not go-playground/validator")
			return
		}
		err = v.RegisterValidation("isodate", isoDate)
	})
	return err
}

// isoDate accepts calendar dates in YYYY-MM-DD form.
func isoDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(dateLayout, fl.Field().String())
	return err == nil
}

type rangeQuery struct {
	Start string `form:"start" binding:"required,isodate"`
	End   string `form:"end" binding:"required,isodate"`
}

func (q rangeQuery) dateRange() domain.DateRange {
	return domain.NewDateRange(parseDate(q.Start), parseDate(q.End))
}

// parseDate is only called on values that passed the isodate rule.
func parseDate(v string) time.Time {
	t, _ := time.Parse(dateLayout, v)
	return t
}

func unitIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("unitID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid unit id")
	}
	return id, nil
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
