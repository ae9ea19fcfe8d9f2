package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/audit"
	"github.com/cityofhelsinki/mvj/internal/authorization"
	"github.com/cityofhelsinki/mvj/internal/bootstrap"
	"github.com/cityofhelsinki/mvj/internal/clock"
	"github.com/cityofhelsinki/mvj/internal/config"
	"github.com/cityofhelsinki/mvj/internal/equalization"
	"github.com/cityofhelsinki/mvj/internal/filescan"
	"github.com/cityofhelsinki/mvj/internal/index"
	"github.com/cityofhelsinki/mvj/internal/index/importer"
	"github.com/cityofhelsinki/mvj/internal/invoice"
	"github.com/cityofhelsinki/mvj/internal/lease"
	"github.com/cityofhelsinki/mvj/internal/migration"
	"github.com/cityofhelsinki/mvj/internal/observability"
	"github.com/cityofhelsinki/mvj/internal/rent"
	"github.com/cityofhelsinki/mvj/internal/scheduler"
	"github.com/cityofhelsinki/mvj/internal/server"
	"github.com/cityofhelsinki/mvj/internal/worker"
	"github.com/cityofhelsinki/mvj/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "mvj",
		Short:   "Land lease rent calculation and invoicing",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(
		newMigrateCmd(),
		newServeCmd(),
		newWorkerCmd(),
		newSchedulerCmd(),
		newJobCmd("import-indexes", "Import cost of living and housing price indexes", worker.JobIndexImport),
		newJobCmd("equalize", "Equalize generated invoices with recalculated rents", worker.JobEqualization),
		newJobCmd("generate-invoices", "Generate next month's invoices for all invoicing leases", worker.JobInvoiceGeneration),
		newAllCmd(),
	)
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and record schema state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			runApp(server.Module)
			return nil
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume background jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			runApp(worker.Runner)
			return nil
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Enqueue periodic jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runApp(scheduler.Module, scheduler.Runner)
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations, then the API, worker and scheduler in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrate(); err != nil {
				return err
			}
			runApp(server.Module, worker.Runner, scheduler.Module, scheduler.Runner)
			return nil
		},
	}
}

func newJobCmd(use, short, job string) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), job, timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Hour, "abort the job after this long")
	return cmd
}

func runMigrate() error {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

// coreModules wires the rent core on top of a migrated database.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		bootstrap.Module,
		authorization.Module,
		audit.Module,
		index.Module,
		rent.Module,
		lease.Module,
		invoice.Module,
		equalization.Module,
		filescan.Module,
	)
}

func runApp(opts ...fx.Option) {
	fx.New(append([]fx.Option{coreModules(), worker.Module}, opts...)...).Run()
}

// runJob executes one job in-process, bypassing the queue and the job lock.
func runJob(ctx context.Context, job string, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var jobs *worker.Jobs
	app := fx.New(
		coreModules(),
		fx.Provide(func(im *importer.Importer) worker.IndexImporter { return im }),
		fx.Provide(worker.NewJobs),
		fx.Populate(&jobs),
	)

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(context.Background()) }()

	handlers := map[string]worker.HandleFunc{
		worker.JobIndexImport:       jobs.ImportIndexes,
		worker.JobEqualization:      jobs.Equalize,
		worker.JobInvoiceGeneration: jobs.GenerateInvoices,
	}
	handle, ok := handlers[job]
	if !ok {
		return fmt.Errorf("%w: %s", worker.ErrUnknownJob, job)
	}
	msg, err := worker.NewMessage(job, nil, time.Now().UTC())
	if err != nil {
		return err
	}

	runCtx, cancelRun := context.WithTimeout(ctx, timeout)
	defer cancelRun()
	return handle(runCtx, msg)
}

func registerSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.App.NodeID)
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}
