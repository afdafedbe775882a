package main

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/app"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/logger"
	"github.com/Ramsey-B/fern/pkg/models"
)

type cli struct {
	envFile string
	cfg     config.Config
	logger  ectologger.Logger
	zap     *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "fern",
		Short:         "Contact identity reconciliation service",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.envFile)
			if err != nil {
				return err
			}
			log, zapLogger, err := logger.New(cfg.LogLevel, cfg.PrettyLogs)
			if err != nil {
				return err
			}
			c.cfg, c.logger, c.zap = cfg, log, zapLogger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.zap != nil {
				_ = c.zap.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "optional dotenv file loaded before the environment")

	root.AddCommand(c.serveCmd(), c.migrateCmd(), c.identifyCmd())
	return root
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /identify and consume fragments until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := app.New(c.cfg, c.logger)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	var version int
	var force int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the contact schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			cfg := c.cfg
			if cmd.Flags().Changed("version") {
				cfg.DatabaseMigrationVersion = version
			}
			if cmd.Flags().Changed("force") {
				cfg.DatabaseMigrationForce = force
			}

			db, err := app.Connect(ctx, cfg, c.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			return app.Migrate(cfg, db, c.logger)
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "target schema version (latest when 0)")
	cmd.Flags().IntVar(&force, "force", 0, "force the schema to this version before migrating")
	return cmd
}

func (c *cli) identifyCmd() *cobra.Command {
	var email, phone string

	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Resolve one fragment and print the resulting contact cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			fragment := models.NewFragment(email, phone)
			if fragment.IsEmpty() {
				return errors.New("at least one of --email or --phone is required")
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := app.New(c.cfg, c.logger)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = a.Stop(context.WithoutCancel(ctx)) }()

			ctx = appctx.SetSource(ctx, appctx.SourceCLI)
			if c.cfg.ResolveTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, c.cfg.ResolveTimeout)
				defer cancel()
			}

			res, err := a.Resolver().Resolve(ctx, fragment)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(models.IdentifyResponse{Contact: res.View()})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address of the fragment")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number of the fragment")
	return cmd
}
