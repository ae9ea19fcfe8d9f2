package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id <= 0 {
		AbortWithError(c, invalidRequestMessage(name+" must be a numeric id"))
		return 0, false
	}
	return id, true
}

func parseDate(value string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(value), time.UTC)
}

// queryPeriod reads start_date and end_date (YYYY-MM-DD, inclusive).
func queryPeriod(c *gin.Context) (calendar.DateRange, bool) {
	return periodFrom(c, c.Query("start_date"), c.Query("end_date"))
}

func periodFrom(c *gin.Context, startStr, endStr string) (calendar.DateRange, bool) {
	if strings.TrimSpace(startStr) == "" || strings.TrimSpace(endStr) == "" {
		AbortWithError(c, invalidRequestMessage("start_date and end_date are required"))
		return calendar.DateRange{}, false
	}
	start, err := parseDate(startStr)
	if err != nil {
		AbortWithError(c, invalidRequestMessage("start_date must be YYYY-MM-DD"))
		return calendar.DateRange{}, false
	}
	end, err := parseDate(endStr)
	if err != nil {
		AbortWithError(c, invalidRequestMessage("end_date must be YYYY-MM-DD"))
		return calendar.DateRange{}, false
	}
	period := calendar.NewDateRange(start, end)
	if !period.IsValid() {
		AbortWithError(c, invalidRequestMessage("end_date is before start_date"))
		return calendar.DateRange{}, false
	}
	return period, true
}

func queryBool(c *gin.Context, name string, fallback bool) (bool, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		AbortWithError(c, invalidRequestMessage(name+" must be a boolean"))
		return false, false
	}
	return v, true
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
