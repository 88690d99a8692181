package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"invoiceflow/internal/app"
	"invoiceflow/internal/config"
	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/infrastructure/storage/postgres"
	"invoiceflow/pkg/logger"
)

var version = "0.1.0"

type globalFlags struct {
	tenant string
	user   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "invoicectl",
		Short: "Operate the invoiceflow invoice workflow and stock ledger",
		Long: `invoicectl runs invoice workflow operations and stock reports against the
configured database (DATABASE_URL), mints development tokens and runs an
in-memory demo of the workflow.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.tenant, "tenant", "", "Tenant to act in")
	root.PersistentFlags().StringVar(&flags.user, "user", "invoicectl", "Acting user id recorded in audit rows")

	root.AddCommand(
		newTokenCmd(),
		newInvoiceCmd(flags),
		newStockCmd(flags),
		newProductCmd(flags),
		newDBCmd(),
		newDemoCmd(),
	)
	return root
}

// runtime holds a database-backed service graph for one command.
type runtime struct {
	cfg      *config.Config
	log      *logger.Logger
	pool     *postgres.Pool
	services *app.Services
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.IsDevelopment(),
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = 4
	poolCfg.MinConns = 0
	poolCfg.ApplicationName = "invoicectl"
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	backend, err := app.NewPostgresBackend(postgres.NewTxManager(pool))
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		log:      log.WithComponent("invoicectl"),
		pool:     pool,
		services: app.NewServices(backend, app.Config{Workflow: cfg.Workflow, Invoice: cfg.Invoice}),
	}, nil
}

func (r *runtime) Close() {
	_ = r.log.Sync()
	r.pool.Close()
}

// actorContext acts as an administrator of the tenant given by --tenant.
func actorContext(ctx context.Context, log *logger.Logger, flags *globalFlags) (context.Context, error) {
	if flags.tenant == "" {
		return nil, fmt.Errorf("--tenant is required")
	}
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	ctx = appctx.WithUser(ctx, &appctx.UserContext{
		UserID:   flags.user,
		TenantID: flags.tenant,
		IsAdmin:  true,
	})
	if log != nil {
		ctx = logger.WithLogger(ctx, log)
	}
	return ctx, nil
}

// withRuntime opens the database runtime and runs fn in the actor context.
func withRuntime(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, rt *runtime) error) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, err := actorContext(cmd.Context(), rt.log, flags)
	if err != nil {
		return err
	}
	return fn(ctx, rt)
}
