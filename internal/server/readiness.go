package server

import (
	"context"
	"net/http"
	"strconv"

	indexdomain "github.com/cityofhelsinki/mvj/internal/index/domain"
	leasedomain "github.com/cityofhelsinki/mvj/internal/lease/domain"
	"github.com/cityofhelsinki/mvj/internal/migration"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReadinessState string

const (
	ReadinessStateReady    ReadinessState = "ready"
	ReadinessStateNotReady ReadinessState = "not_ready"
	ReadinessStateOptional ReadinessState = "optional"
)

type ReadinessIssue struct {
	ID             string            `json:"id"`
	Status         ReadinessState    `json:"status"`
	DependencyHint *string           `json:"dependency_hint,omitempty"`
	Evidence       map[string]string `json:"evidence,omitempty"`
}

type ReadinessResponse struct {
	SystemState ReadinessState   `json:"system_state"`
	Issues      []ReadinessIssue `json:"issues"`
}

type readinessCheck func(ctx context.Context, s *Server) (ReadinessIssue, error)

// Optional checks never make the system not ready.
var readinessChecks = []struct {
	check    readinessCheck
	required bool
}{
	{checkSchema, true},
	{checkYearlyIndex, true},
	{checkServiceUnits, true},
	{checkPointFigures, false},
	{checkFileScan, false},
}

// @Summary      Readiness
// @Description  Reports whether the data the rent calculations depend on is in place.
// @Tags         system
// @Produce      json
// @Success      200  {object}  ReadinessResponse
// @Failure      503  {object}  ReadinessResponse
// @Router       /readyz [get]
func (s *Server) Readiness(c *gin.Context) {
	ctx := c.Request.Context()
	resp := ReadinessResponse{SystemState: ReadinessStateReady, Issues: []ReadinessIssue{}}

	for _, rc := range readinessChecks {
		issue, err := rc.check(ctx, s)
		if err != nil {
			s.log.Warn("readiness check failed", zap.String("check", issue.ID), zap.Error(err))
			issue.Status = ReadinessStateNotReady
			issue.Evidence = map[string]string{"error": err.Error()}
		}
		if issue.Status == ReadinessStateNotReady {
			if !rc.required {
				issue.Status = ReadinessStateOptional
			} else {
				resp.SystemState = ReadinessStateNotReady
			}
		}
		resp.Issues = append(resp.Issues, issue)
	}

	status := http.StatusOK
	if resp.SystemState == ReadinessStateNotReady {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func checkSchema(ctx context.Context, s *Server) (ReadinessIssue, error) {
	issue := ReadinessIssue{ID: "schema_migrated"}
	sqlDB, err := s.db.DB()
	if err != nil {
		return issue, err
	}
	state, err := migration.ReadSchemaState(ctx, sqlDB)
	if err != nil {
		return issue, err
	}
	current, err := state.Current()
	if err != nil {
		return issue, err
	}
	if !current {
		issue.Status = ReadinessStateNotReady
		if state != nil {
			issue.Evidence = map[string]string{"schema_version": state.SchemaVersion}
		}
		return issue, nil
	}
	issue.Status = ReadinessStateReady
	return issue, nil
}

func checkYearlyIndex(ctx context.Context, s *Server) (ReadinessIssue, error) {
	issue := ReadinessIssue{ID: "cost_of_living_index_imported", DependencyHint: ptr("schema_migrated")}
	year := s.clock.Now(ctx).Year() - 1

	var count int64
	err := s.db.WithContext(ctx).Model(&indexdomain.Index{}).
		Where("month IS NULL AND year = ?", year).
		Count(&count).Error
	if err != nil {
		return issue, err
	}
	issue.Status = ReadinessStateReady
	if count == 0 {
		issue.Status = ReadinessStateNotReady
		issue.Evidence = map[string]string{"missing_year": strconv.Itoa(year)}
	}
	return issue, nil
}

func checkServiceUnits(ctx context.Context, s *Server) (ReadinessIssue, error) {
	issue := ReadinessIssue{ID: "service_unit_receivable_types", DependencyHint: ptr("schema_migrated")}

	var missing int64
	err := s.db.WithContext(ctx).Model(&leasedomain.ServiceUnit{}).
		Where("default_receivable_type_rent_id IS NULL").
		Count(&missing).Error
	if err != nil {
		return issue, err
	}
	issue.Status = ReadinessStateReady
	if missing > 0 {
		issue.Status = ReadinessStateNotReady
		issue.Evidence = map[string]string{"without_default_receivable_type": strconv.FormatInt(missing, 10)}
	}
	return issue, nil
}

func checkPointFigures(ctx context.Context, s *Server) (ReadinessIssue, error) {
	issue := ReadinessIssue{ID: "price_index_point_figures_imported", DependencyHint: ptr("schema_migrated")}
	year := s.clock.Now(ctx).Year() - 1

	var count int64
	err := s.db.WithContext(ctx).Model(&indexdomain.IndexPointFigureYearly{}).
		Where("year = ? AND value IS NOT NULL", year).
		Count(&count).Error
	if err != nil {
		return issue, err
	}
	issue.Status = ReadinessStateReady
	if count == 0 {
		issue.Status = ReadinessStateNotReady
		issue.Evidence = map[string]string{"missing_year": strconv.Itoa(year)}
	}
	return issue, nil
}

func checkFileScan(_ context.Context, s *Server) (ReadinessIssue, error) {
	issue := ReadinessIssue{ID: "file_scan_enabled", Status: ReadinessStateReady}
	if !s.cfg.Core.FileScanEnabled() {
		issue.Status = ReadinessStateNotReady
	}
	return issue, nil
}

func ptr(s string) *string {
	return &s
}
