package worker

import (
	"context"
	"errors"
	"testing"
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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mocks ---

type MockImporter struct{ mock.Mock }

func (m *MockImporter) ImportCostOfLiving(ctx context.Context) (importer.Report, error) {
	args := m.Called(ctx)
	return args.Get(0).(importer.Report), args.Error(1)
}

func (m *MockImporter) ImportPriceIndexes(ctx context.Context) (importer.Report, error) {
	args := m.Called(ctx)
	return args.Get(0).(importer.Report), args.Error(1)
}

type MockRents struct {
	rentdomain.Service
	mock.Mock
}

func (m *MockRents) FillMissingStartPriceIndexPointFigures(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockRents) ListRentsForLease(ctx context.Context, leaseID snowflake.ID) ([]rentdomain.Rent, error) {
	args := m.Called(ctx, leaseID)
	return args.Get(0).([]rentdomain.Rent), args.Error(1)
}

func (m *MockRents) CalculatePayableRent(ctx context.Context, rentID snowflake.ID) (*rentdomain.Rent, error) {
	args := m.Called(ctx, rentID)
	rent, _ := args.Get(0).(*rentdomain.Rent)
	return rent, args.Error(1)
}

type MockLeases struct {
	leasedomain.Service
	mock.Mock
}

func (m *MockLeases) ListInvoicingEnabledLeaseIDs(ctx context.Context) ([]snowflake.ID, error) {
	args := m.Called(ctx)
	return args.Get(0).([]snowflake.ID), args.Error(1)
}

type MockInvoices struct {
	invoicedomain.Service
	mock.Mock
}

func (m *MockInvoices) GenerateInvoicesForPeriod(ctx context.Context, period calendar.DateRange) (int, error) {
	args := m.Called(ctx, period)
	return args.Int(0), args.Error(1)
}

type MockEqualization struct{ mock.Mock }

func (m *MockEqualization) Run(ctx context.Context) (*equalizationdomain.Result, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*equalizationdomain.Result)
	return res, args.Error(1)
}

type MockFiles struct {
	filescandomain.Service
	mock.Mock
}

func (m *MockFiles) ScanFile(ctx context.Context, owner filescandomain.Owner) (*filescandomain.FileScanStatus, error) {
	args := m.Called(ctx, owner)
	status, _ := args.Get(0).(*filescandomain.FileScanStatus)
	return status, args.Error(1)
}

type mocks struct {
	importer     *MockImporter
	rents        *MockRents
	leases       *MockLeases
	invoices     *MockInvoices
	equalization *MockEqualization
	files        *MockFiles
}

func newJobs() (*Jobs, mocks) {
	m := mocks{
		importer:     &MockImporter{},
		rents:        &MockRents{},
		leases:       &MockLeases{},
		invoices:     &MockInvoices{},
		equalization: &MockEqualization{},
		files:        &MockFiles{},
	}
	jobs := NewJobs(JobsParams{
		Log:          zap.NewNop(),
		Clock:        clock.Fixed(now),
		Importer:     m.importer,
		Rents:        m.rents,
		Leases:       m.leases,
		Invoices:     m.invoices,
		Equalization: m.equalization,
		Files:        m.files,
	})
	return jobs, m
}

func TestNextMonth(t *testing.T) {
	period := NextMonth(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), period.Start)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), period.End)

	period = NextMonth(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), period.End)
}

func TestImportIndexes(t *testing.T) {
	jobs, m := newJobs()
	m.importer.On("ImportCostOfLiving", mock.Anything).Return(importer.Report{Created: 3}, nil)
	m.importer.On("ImportPriceIndexes", mock.Anything).Return(importer.Report{Updated: 1}, nil)
	m.rents.On("FillMissingStartPriceIndexPointFigures", mock.Anything).Return(2, nil)

	require.NoError(t, jobs.ImportIndexes(context.Background(), message(t, JobIndexImport)))
	m.importer.AssertExpectations(t)
	m.rents.AssertExpectations(t)
}

func TestImportIndexesStopsOnError(t *testing.T) {
	jobs, m := newJobs()
	boom := errors.New("statfin down")
	m.importer.On("ImportCostOfLiving", mock.Anything).Return(importer.Report{}, boom)

	err := jobs.ImportIndexes(context.Background(), message(t, JobIndexImport))
	assert.ErrorIs(t, err, boom)
	m.importer.AssertNotCalled(t, "ImportPriceIndexes", mock.Anything)
	m.rents.AssertNotCalled(t, "FillMissingStartPriceIndexPointFigures", mock.Anything)
}

func TestGenerateInvoicesTargetsNextMonth(t *testing.T) {
	jobs, m := newJobs()
	june := calendar.DateRange{
		Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	m.invoices.On("GenerateInvoicesForPeriod", mock.Anything, june).Return(4, nil)

	require.NoError(t, jobs.GenerateInvoices(context.Background(), message(t, JobInvoiceGeneration)))
	m.invoices.AssertExpectations(t)
}

func TestEqualize(t *testing.T) {
	jobs, m := newJobs()
	m.equalization.On("Run", mock.Anything).Return(&equalizationdomain.Result{Periods: 2, Created: 1}, nil)
	require.NoError(t, jobs.Equalize(context.Background(), message(t, JobEqualization)))

	jobs, m = newJobs()
	m.equalization.On("Run", mock.Anything).Return(nil, errors.New("db gone"))
	assert.Error(t, jobs.Equalize(context.Background(), message(t, JobEqualization)))
}

func TestPayableRentReportContinuesPastFailures(t *testing.T) {
	jobs, m := newJobs()
	m.leases.On("ListInvoicingEnabledLeaseIDs", mock.Anything).Return([]snowflake.ID{1, 2}, nil)
	m.rents.On("ListRentsForLease", mock.Anything, snowflake.ID(1)).Return([]rentdomain.Rent{{ID: 10}, {ID: 11}}, nil)
	m.rents.On("ListRentsForLease", mock.Anything, snowflake.ID(2)).Return([]rentdomain.Rent{{ID: 20}}, nil)
	m.rents.On("CalculatePayableRent", mock.Anything, snowflake.ID(10)).Return(&rentdomain.Rent{ID: 10}, nil)
	m.rents.On("CalculatePayableRent", mock.Anything, snowflake.ID(11)).Return(nil, errors.New("missing index"))
	m.rents.On("CalculatePayableRent", mock.Anything, snowflake.ID(20)).Return(&rentdomain.Rent{ID: 20}, nil)

	require.NoError(t, jobs.PayableRentReport(context.Background(), message(t, JobPayableRentReport)))
	m.rents.AssertNumberOfCalls(t, "CalculatePayableRent", 3)
}

func TestPayableRentReportStopsOnDeadline(t *testing.T) {
	jobs, m := newJobs()
	m.leases.On("ListInvoicingEnabledLeaseIDs", mock.Anything).Return([]snowflake.ID{1}, nil)
	m.rents.On("ListRentsForLease", mock.Anything, snowflake.ID(1)).Return([]rentdomain.Rent{{ID: 10}, {ID: 11}}, nil)
	m.rents.On("CalculatePayableRent", mock.Anything, snowflake.ID(10)).Return(nil, context.DeadlineExceeded)

	err := jobs.PayableRentReport(context.Background(), message(t, JobPayableRentReport))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	m.rents.AssertNumberOfCalls(t, "CalculatePayableRent", 1)
}

func TestScanFile(t *testing.T) {
	jobs, m := newJobs()
	owner := filescandomain.Owner{Kind: filescandomain.OwnerLeaseAttachment, ID: 5, Field: filescandomain.FieldFile}
	m.files.On("ScanFile", mock.Anything, owner).Return(&filescandomain.FileScanStatus{}, nil)

	msg, err := NewFileScanMessage(owner.Kind, owner.ID, owner.Field, now)
	require.NoError(t, err)
	require.NoError(t, jobs.ScanFile(context.Background(), msg))
	m.files.AssertExpectations(t)
}

func TestScanFileDisabledIsNotAFailure(t *testing.T) {
	jobs, m := newJobs()
	m.files.On("ScanFile", mock.Anything, mock.Anything).Return(nil, filescandomain.ErrFileScanDisabled)

	msg, err := NewFileScanMessage(filescandomain.OwnerLeaseAttachment, 5, filescandomain.FieldFile, now)
	require.NoError(t, err)
	assert.NoError(t, jobs.ScanFile(context.Background(), msg))
}

func TestRegisterJobs(t *testing.T) {
	pool, _, _ := newTestPool(t)
	jobs, _ := newJobs()
	RegisterJobs(pool, jobs, configForTest())
	assert.ElementsMatch(t, []string{
		JobIndexImport, JobInvoiceGeneration, JobEqualization, JobPayableRentReport, JobFileScan,
	}, pool.Jobs())
	assert.Equal(t, 30*time.Minute, pool.handlers[JobEqualization].timeout)
	assert.Equal(t, time.Hour, pool.handlers[JobPayableRentReport].timeout)
}

func configForTest() config.SchedulerConfig {
	return config.SchedulerConfig{
		DefaultJobTimeout:   10 * time.Minute,
		EqualizationTimeout: 30 * time.Minute,
		ReportTimeout:       time.Hour,
	}
}
