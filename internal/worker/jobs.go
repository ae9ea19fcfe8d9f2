package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/cityofhelsinki/mvj/internal/clock"
	"github.com/cityofhelsinki/mvj/internal/config"
	equalizationdomain "github.com/cityofhelsinki/mvj/internal/equalization/domain"
	filescandomain "github.com/cityofhelsinki/mvj/internal/filescan/domain"
	"github.com/cityofhelsinki/mvj/internal/index/importer"
	invoicedomain "github.com/cityofhelsinki/mvj/internal/invoice/domain"
	leasedomain "github.com/cityofhelsinki/mvj/internal/lease/domain"
	rentdomain "github.com/cityofhelsinki/mvj/internal/rent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobIndexImport       = "index_import"
	JobInvoiceGeneration = "invoice_generation"
	JobEqualization      = "equalization"
	JobPayableRentReport = "payable_rent_report"
	JobFileScan          = "file_scan"
)

type IndexImporter interface {
	ImportCostOfLiving(ctx context.Context) (importer.Report, error)
	ImportPriceIndexes(ctx context.Context) (importer.Report, error)
}

type JobsParams struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	Importer     IndexImporter
	Rents        rentdomain.Service
	Leases       leasedomain.Service
	Invoices     invoicedomain.Service
	Equalization equalizationdomain.Service
	Files        filescandomain.Service
}

// Jobs holds the handlers behind each queued job name.
type Jobs struct {
	log          *zap.Logger
	clock        clock.Clock
	importer     IndexImporter
	rents        rentdomain.Service
	leases       leasedomain.Service
	invoices     invoicedomain.Service
	equalization equalizationdomain.Service
	files        filescandomain.Service
}

func NewJobs(p JobsParams) *Jobs {
	return &Jobs{
		log:          p.Log.Named("worker.jobs"),
		clock:        p.Clock,
		importer:     p.Importer,
		rents:        p.Rents,
		leases:       p.Leases,
		invoices:     p.Invoices,
		equalization: p.Equalization,
		files:        p.Files,
	}
}

// RegisterJobs binds every job to the pool with its configured timeout.
func RegisterJobs(pool *Pool, jobs *Jobs, cfg config.SchedulerConfig) {
	pool.Register(JobIndexImport, cfg.DefaultJobTimeout, jobs.ImportIndexes)
	pool.Register(JobInvoiceGeneration, cfg.DefaultJobTimeout, jobs.GenerateInvoices)
	pool.Register(JobEqualization, cfg.EqualizationTimeout, jobs.Equalize)
	pool.Register(JobPayableRentReport, cfg.ReportTimeout, jobs.PayableRentReport)
	pool.Register(JobFileScan, cfg.DefaultJobTimeout, jobs.ScanFile)
}

func (j *Jobs) ImportIndexes(ctx context.Context, msg Message) error {
	col, err := j.importer.ImportCostOfLiving(ctx)
	if err != nil {
		return fmt.Errorf("cost of living import: %w", err)
	}
	prices, err := j.importer.ImportPriceIndexes(ctx)
	if err != nil {
		return fmt.Errorf("price index import: %w", err)
	}
	filled, err := j.rents.FillMissingStartPriceIndexPointFigures(ctx)
	if err != nil {
		return fmt.Errorf("fill start point figures: %w", err)
	}
	j.log.Info("indexes imported",
		zap.String("run_id", msg.RunID),
		zap.Int("cost_of_living_created", col.Created),
		zap.Int("cost_of_living_updated", col.Updated),
		zap.Int("price_index_created", prices.Created),
		zap.Int("price_index_updated", prices.Updated),
		zap.Int("start_point_figures_filled", filled),
	)
	return nil
}

// NextMonth is the calendar month after today.
func NextMonth(today time.Time) calendar.DateRange {
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return calendar.DateRange{Start: start, End: start.AddDate(0, 1, -1)}
}

// GenerateInvoices creates invoices for every due date in the next calendar month.
func (j *Jobs) GenerateInvoices(ctx context.Context, msg Message) error {
	period := NextMonth(clock.Today(ctx, j.clock))
	created, err := j.invoices.GenerateInvoicesForPeriod(ctx, period)
	if err != nil {
		return err
	}
	j.log.Info("invoices generated",
		zap.String("run_id", msg.RunID),
		zap.Time("period_start", period.Start),
		zap.Time("period_end", period.End),
		zap.Int("created", created),
	)
	return nil
}

func (j *Jobs) Equalize(ctx context.Context, msg Message) error {
	res, err := j.equalization.Run(ctx)
	if err != nil {
		return err
	}
	j.log.Info("equalization finished",
		zap.String("run_id", msg.RunID),
		zap.Int("periods", res.Periods),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("created", res.Created),
		zap.Int("duplicate", res.Duplicate),
		zap.Int("failed", res.Failed),
	)
	return nil
}

// PayableRentReport refreshes the payable rent of every rent on an invoicing lease.
// A failing rent is logged and the run continues.
func (j *Jobs) PayableRentReport(ctx context.Context, msg Message) error {
	leaseIDs, err := j.leases.ListInvoicingEnabledLeaseIDs(ctx)
	if err != nil {
		return err
	}
	var updated, failed int
	for _, leaseID := range leaseIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		rents, err := j.rents.ListRentsForLease(ctx, leaseID)
		if err != nil {
			return err
		}
		for _, rent := range rents {
			if _, err := j.rents.CalculatePayableRent(ctx, rent.ID); err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					return err
				}
				failed++
				j.log.Warn("payable rent failed",
					zap.String("lease_id", leaseID.String()),
					zap.String("rent_id", rent.ID.String()),
					zap.Error(err),
				)
				continue
			}
			updated++
		}
	}
	j.log.Info("payable rent report finished",
		zap.String("run_id", msg.RunID),
		zap.Int("leases", len(leaseIDs)),
		zap.Int("updated", updated),
		zap.Int("failed", failed),
	)
	return nil
}

// FileScanPayload is the body of a file_scan message.
type FileScanPayload struct {
	Owner filescandomain.Owner `json:"owner"`
}

func NewFileScanMessage(kind string, id snowflake.ID, field string, now time.Time) (Message, error) {
	return NewMessage(JobFileScan, FileScanPayload{Owner: filescandomain.Owner{Kind: kind, ID: id, Field: field}}, now)
}

func (j *Jobs) ScanFile(ctx context.Context, msg Message) error {
	var payload FileScanPayload
	if err := msg.Decode(&payload); err != nil {
		return err
	}
	status, err := j.files.ScanFile(ctx, payload.Owner)
	if errors.Is(err, filescandomain.ErrFileScanDisabled) {
		j.log.Info("file scan disabled, skipping", zap.String("run_id", msg.RunID))
		return nil
	}
	if err != nil {
		return err
	}
	j.log.Info("file scanned",
		zap.String("run_id", msg.RunID),
		zap.String("owner_kind", payload.Owner.Kind),
		zap.String("owner_id", payload.Owner.ID.String()),
		zap.Bool("deleted", status.FileDeletedAt != nil),
	)
	return nil
}
